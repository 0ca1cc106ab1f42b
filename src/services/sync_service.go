package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/username/cryptofolio/src/fetcher"
	"github.com/username/cryptofolio/src/ledger"
	"github.com/username/cryptofolio/src/logger"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/normalizer"
	"github.com/username/cryptofolio/src/parsers"
	"github.com/username/cryptofolio/src/processors"
)

type syncServiceImpl struct {
	fetcher    *fetcher.Fetcher
	normalizer *normalizer.Normalizer
	store      *ledger.Store
	reconciler *processors.ReconciliationProcessor
	channels   []string
	syncStart  time.Time
}

func NewSyncService(
	f *fetcher.Fetcher,
	n *normalizer.Normalizer,
	store *ledger.Store,
	reconciler *processors.ReconciliationProcessor,
	channels []string,
	syncStart time.Time,
) SyncService {
	return &syncServiceImpl{
		fetcher:    f,
		normalizer: n,
		store:      store,
		reconciler: reconciler,
		channels:   channels,
		syncStart:  syncStart,
	}
}

// SyncExchange pulls every configured channel up to now and ingests the
// results. A failed channel is reported in the result, not fatal: the other
// channels still land, and checkpoints guarantee the failed one resumes from
// its last committed window next run.
func (s *syncServiceImpl) SyncExchange(ctx context.Context) (*SyncResult, error) {
	startTime := time.Now()
	logger.L.Info("SyncExchange START", "channels", s.channels)

	result := &SyncResult{}
	emit := func(channel string, records []models.RawRecord) error {
		inserted, duplicates, quarantined, err := s.ingest(records)
		if err != nil {
			return err
		}
		result.Inserted += inserted
		result.Duplicates += duplicates
		result.Quarantined += quarantined
		return nil
	}

	result.Channels = s.fetcher.Sync(ctx, s.channels, s.syncStart, time.Now().UTC(), emit)

	for _, ch := range result.Channels {
		if ch.Err != nil {
			logger.L.Warn("channel sync incomplete", "channel", ch.Channel, "error", ch.Err)
		}
	}
	logger.L.Info("SyncExchange END",
		"inserted", result.Inserted,
		"duplicates", result.Duplicates,
		"quarantined", result.Quarantined,
		"duration", time.Since(startTime))
	return result, nil
}

// ImportFile parses a broker export and ingests it. An empty source triggers
// header-based autodetection.
func (s *syncServiceImpl) ImportFile(file io.Reader, source string) (*ImportResult, error) {
	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("reading import file: %w", err)
	}

	if source == "" {
		source, err = detectCSVSource(content)
		if err != nil {
			return nil, err
		}
		logger.L.Info("autodetected import source", "source", source)
	}

	parser, err := parsers.GetParser(source)
	if err != nil {
		return nil, err
	}
	records, err := parser.Parse(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing %s file: %w", source, err)
	}

	inserted, duplicates, quarantined, err := s.ingest(records)
	if err != nil {
		return nil, err
	}
	logger.L.Info("ImportFile END",
		"source", source,
		"parsed", len(records),
		"inserted", inserted,
		"duplicates", duplicates,
		"quarantined", quarantined)
	return &ImportResult{
		Source:      source,
		Parsed:      len(records),
		Inserted:    inserted,
		Duplicates:  duplicates,
		Quarantined: quarantined,
	}, nil
}

// ingest normalizes raw records and appends the survivors. Records the
// normalizer rejects are quarantined with the field-level reason instead of
// failing the batch.
func (s *syncServiceImpl) ingest(records []models.RawRecord) (inserted, duplicates, quarantined int, err error) {
	var batch []models.Transaction
	for _, rec := range records {
		txs, nerr := s.normalizer.Normalize(rec)
		if nerr != nil {
			var normErr *normalizer.Error
			if errors.As(nerr, &normErr) {
				if qerr := s.store.Quarantine(rec, normErr.Error()); qerr != nil {
					return 0, 0, 0, fmt.Errorf("quarantining record %s: %w", rec.RefID, qerr)
				}
				quarantined++
				continue
			}
			return 0, 0, 0, nerr
		}
		batch = append(batch, txs...)
	}

	inserted, err = s.store.AppendBatch(batch)
	if err != nil {
		return 0, 0, 0, err
	}
	return inserted, len(batch) - inserted, quarantined, nil
}

// Reconcile recomputes the api/file cross-check over the active ledger and
// replaces the stored view with the fresh one.
func (s *syncServiceImpl) Reconcile() ([]models.ReconciliationRecord, error) {
	txs, err := s.store.ActiveTransactions()
	if err != nil {
		return nil, err
	}
	records := s.reconciler.Reconcile(txs)
	if err := s.store.ReplaceReconciliation(records); err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Status]++
	}
	logger.L.Info("reconciliation complete",
		"matched", counts[models.ReconMatched],
		"apiOnlyGaps", counts[models.ReconAPIOnlyGap],
		"fileOnlyGaps", counts[models.ReconFileOnlyGap],
		"conflicts", counts[models.ReconConflictingAmount])
	return records, nil
}

func detectCSVSource(content []byte) (string, error) {
	reader := csv.NewReader(bytes.NewReader(content))
	reader.FieldsPerRecord = -1
	header, err := reader.Read()
	if err != nil {
		return "", fmt.Errorf("reading csv header: %w", err)
	}
	return parsers.DetectSource(header)
}
