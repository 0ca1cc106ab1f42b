// Package fetcher drives paginated, date-windowed fetches against a remote
// transaction API under a shared request budget, with per-channel exponential
// backoff and persisted progress so an interrupted sync resumes instead of
// restarting.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/username/cryptofolio/src/logger"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/utils"
	"golang.org/x/time/rate"
)

// ErrRateLimited marks a throttling response from the remote API. Clients
// wrap it so the fetch loop can tell a retryable failure from a fatal one.
var ErrRateLimited = errors.New("rate limited by remote API")

// ErrTransient marks a transient network or server failure, retried the same
// way as throttling.
var ErrTransient = errors.New("transient fetch failure")

// IsRetryable reports whether the fetch loop should back off and retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrTransient)
}

// Client fetches one window of raw records for a channel. Errors are either
// retryable (see IsRetryable) or fatal for the channel.
type Client interface {
	FetchWindow(ctx context.Context, channel string, start, end time.Time) ([]models.RawRecord, error)
}

// ProgressStore persists the end of the last fully committed window per
// channel.
type ProgressStore interface {
	LastCheckpoint(channel string) (time.Time, bool, error)
	SaveCheckpoint(channel string, windowEnd time.Time) error
}

// EmitFunc receives the raw records of one fully fetched window. It runs
// before the window's checkpoint is saved, so a failed emit is refetched on
// the next run.
type EmitFunc func(channel string, records []models.RawRecord) error

// Backoff is the retry state of a single channel. Delays start at Base and
// double up to Cap; after MaxRetries the window is given up.
type Backoff struct {
	Base       time.Duration
	Cap        time.Duration
	MaxRetries int

	attempt int
}

// Next returns the delay before the next retry, or false when the retry
// budget is exhausted.
func (b *Backoff) Next() (time.Duration, bool) {
	if b.attempt >= b.MaxRetries {
		return 0, false
	}
	delay := b.Base << b.attempt
	if delay > b.Cap || delay <= 0 {
		delay = b.Cap
	}
	b.attempt++
	return delay, true
}

// Reset clears the retry state after a successful fetch.
func (b *Backoff) Reset() { b.attempt = 0 }

// ChannelResult reports the outcome of syncing one channel.
type ChannelResult struct {
	Channel string
	Windows int
	Records int
	Err     error
}

// WindowError is a retryable-sync-failure for a single window: the retry
// budget ran out. The channel stops at this window so the checkpoint never
// skips past unfetched data; other channels are unaffected.
type WindowError struct {
	Channel string
	Window  utils.Window
	Err     error
}

func (e *WindowError) Error() string {
	return fmt.Sprintf("window %s..%s on channel %s: %v",
		e.Window.Start.Format(time.RFC3339), e.Window.End.Format(time.RFC3339), e.Channel, e.Err)
}

func (e *WindowError) Unwrap() error { return e.Err }

// Fetcher coordinates windowed fetches for all channels under one request
// budget.
type Fetcher struct {
	client     Client
	progress   ProgressStore
	limiter    *rate.Limiter
	windowSpan time.Duration

	backoffBase time.Duration
	backoffCap  time.Duration
	maxRetries  int
}

// New builds a Fetcher. requestsPerMinute is the shared global ceiling across
// all channels.
func New(client Client, progress ProgressStore, requestsPerMinute int, windowDays int, backoffBase, backoffCap time.Duration, maxRetries int) *Fetcher {
	return &Fetcher{
		client:      client,
		progress:    progress,
		limiter:     rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), requestsPerMinute),
		windowSpan:  time.Duration(windowDays) * 24 * time.Hour,
		backoffBase: backoffBase,
		backoffCap:  backoffCap,
		maxRetries:  maxRetries,
	}
}

// Sync fetches [start, end) for every channel. Channels run concurrently,
// each with its own backoff state; windows within a channel run strictly in
// order. Cancellation takes effect at window boundaries; committed windows
// stay committed.
func (f *Fetcher) Sync(ctx context.Context, channels []string, start, end time.Time, emit EmitFunc) []ChannelResult {
	results := make([]ChannelResult, len(channels))
	var wg sync.WaitGroup
	for i, channel := range channels {
		wg.Add(1)
		go func(i int, channel string) {
			defer wg.Done()
			results[i] = f.syncChannel(ctx, channel, start, end, emit)
		}(i, channel)
	}
	wg.Wait()
	return results
}

func (f *Fetcher) syncChannel(ctx context.Context, channel string, start, end time.Time, emit EmitFunc) ChannelResult {
	result := ChannelResult{Channel: channel}

	if checkpoint, ok, err := f.progress.LastCheckpoint(channel); err != nil {
		result.Err = fmt.Errorf("reading checkpoint for channel %s: %w", channel, err)
		return result
	} else if ok && checkpoint.After(start) {
		logger.L.Info("Resuming channel from checkpoint", "channel", channel, "checkpoint", checkpoint)
		start = checkpoint
	}

	backoff := &Backoff{Base: f.backoffBase, Cap: f.backoffCap, MaxRetries: f.maxRetries}

	for _, window := range utils.SplitWindows(start, end, f.windowSpan) {
		select {
		case <-ctx.Done():
			result.Err = ctx.Err()
			return result
		default:
		}

		records, err := f.fetchWithRetry(ctx, backoff, channel, window)
		if err != nil {
			result.Err = err
			return result
		}

		if err := emit(channel, records); err != nil {
			result.Err = fmt.Errorf("committing window %s..%s on channel %s: %w",
				window.Start.Format(time.RFC3339), window.End.Format(time.RFC3339), channel, err)
			return result
		}
		if err := f.progress.SaveCheckpoint(channel, window.End); err != nil {
			result.Err = fmt.Errorf("saving checkpoint for channel %s: %w", channel, err)
			return result
		}

		result.Windows++
		result.Records += len(records)
		logger.L.Debug("Window committed", "channel", channel,
			"windowStart", window.Start, "windowEnd", window.End, "records", len(records))
	}
	return result
}

// fetchWithRetry fetches one window, backing off on retryable failures until
// the channel's retry budget runs out.
func (f *Fetcher) fetchWithRetry(ctx context.Context, backoff *Backoff, channel string, window utils.Window) ([]models.RawRecord, error) {
	for {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		records, err := f.client.FetchWindow(ctx, channel, window.Start, window.End)
		if err == nil {
			backoff.Reset()
			return records, nil
		}
		if !IsRetryable(err) {
			return nil, fmt.Errorf("fatal fetch failure on channel %s: %w", channel, err)
		}

		delay, ok := backoff.Next()
		if !ok {
			return nil, &WindowError{Channel: channel, Window: window, Err: err}
		}
		logger.L.Warn("Retrying window after backoff", "channel", channel,
			"delay", delay.String(), "error", err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}
}
