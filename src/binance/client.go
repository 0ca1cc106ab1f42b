// Package binance implements the remote exchange client. It issues signed
// requests and returns raw records; windowing, budgeting and backoff belong
// to the caller.
package binance

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/username/cryptofolio/src/fetcher"
	"github.com/username/cryptofolio/src/logger"
	"github.com/username/cryptofolio/src/models"
)

const exchangeName = "binance"

// Channel names understood by the client. Spot channels carry the symbol,
// e.g. "spot/BTCEUR".
const (
	ChannelDeposit    = "deposit"
	ChannelWithdrawal = "withdrawal"
	spotPrefix        = "spot/"
)

type Client struct {
	baseURL    string
	apiKey     string
	apiSecret  string
	httpClient *http.Client
	now        func() time.Time
}

func NewClient(baseURL, apiKey, apiSecret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// TestConnection checks reachability via the unauthenticated server-time
// endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	body, err := c.get(ctx, "/api/v3/time", nil, false)
	if err != nil {
		return err
	}
	var resp struct {
		ServerTime int64 `json:"serverTime"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.ServerTime == 0 {
		return fmt.Errorf("unexpected server time response: %s", string(body))
	}
	return nil
}

// FetchWindow implements fetcher.Client. The channel selects the endpoint;
// start/end bound the server-side query.
func (c *Client) FetchWindow(ctx context.Context, channel string, start, end time.Time) ([]models.RawRecord, error) {
	switch {
	case strings.HasPrefix(channel, spotPrefix):
		return c.fetchTrades(ctx, channel, strings.TrimPrefix(channel, spotPrefix), start, end)
	case channel == ChannelDeposit:
		return c.fetchTransfers(ctx, channel, "/sapi/v1/capital/deposit/hisrec", "txId", start, end)
	case channel == ChannelWithdrawal:
		return c.fetchTransfers(ctx, channel, "/sapi/v1/capital/withdraw/history", "id", start, end)
	default:
		return nil, fmt.Errorf("unknown channel %q", channel)
	}
}

func (c *Client) fetchTrades(ctx context.Context, channel, symbol string, start, end time.Time) ([]models.RawRecord, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("startTime", fmt.Sprintf("%d", start.UnixMilli()))
	params.Set("endTime", fmt.Sprintf("%d", end.UnixMilli()))

	body, err := c.get(ctx, "/api/v3/myTrades", params, true)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("malformed trade response for %s: %w", symbol, err)
	}

	records := make([]models.RawRecord, 0, len(rows))
	for _, row := range rows {
		refID, ok := row["id"]
		if !ok || refID == "" {
			return nil, fmt.Errorf("malformed trade response for %s: row without id", symbol)
		}
		records = append(records, models.RawRecord{
			Origin:   models.OriginAPI,
			Exchange: exchangeName,
			Channel:  channel,
			RefID:    "trade_" + refID,
			Fields:   row,
		})
	}
	return records, nil
}

func (c *Client) fetchTransfers(ctx context.Context, channel, endpoint, idField string, start, end time.Time) ([]models.RawRecord, error) {
	params := url.Values{}
	params.Set("startTime", fmt.Sprintf("%d", start.UnixMilli()))
	params.Set("endTime", fmt.Sprintf("%d", end.UnixMilli()))

	body, err := c.get(ctx, endpoint, params, true)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("malformed %s response: %w", channel, err)
	}

	records := make([]models.RawRecord, 0, len(rows))
	for _, row := range rows {
		refID, ok := row[idField]
		if !ok || refID == "" {
			return nil, fmt.Errorf("malformed %s response: row without %s", channel, idField)
		}
		records = append(records, models.RawRecord{
			Origin:   models.OriginAPI,
			Exchange: exchangeName,
			Channel:  channel,
			RefID:    channel + "_" + refID,
			Fields:   row,
		})
	}
	return records, nil
}

// get issues a GET request, signing it when the endpoint requires it, and
// maps the response status onto the fetch error contract.
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, signed bool) ([]byte, error) {
	if params == nil {
		params = url.Values{}
	}
	if signed {
		params.Set("timestamp", fmt.Sprintf("%d", c.now().UnixMilli()))
		params.Set("signature", c.sign(params.Encode()))
	}

	reqURL := c.baseURL + endpoint
	if encoded := params.Encode(); encoded != "" {
		reqURL += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	if signed {
		req.Header.Set("X-MBX-APIKEY", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", fetcher.ErrTransient, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response body: %v", fetcher.ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == 418:
		logger.L.Warn("Binance throttled request", "endpoint", endpoint, "status", resp.StatusCode)
		return nil, fmt.Errorf("%w: status %d from %s", fetcher.ErrRateLimited, resp.StatusCode, endpoint)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d from %s", fetcher.ErrTransient, resp.StatusCode, endpoint)
	default:
		// 401/403 and other client errors are not retryable.
		return nil, fmt.Errorf("request to %s failed with status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

func (c *Client) sign(queryString string) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(queryString))
	return hex.EncodeToString(mac.Sum(nil))
}

// decodeRows flattens a JSON array of objects into string-keyed field maps.
// Deposit history nests its rows under "depositList" on older API versions;
// both shapes are accepted.
func decodeRows(body []byte) ([]map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(string(body)))
	dec.UseNumber()

	var raw interface{}
	if err := dec.Decode(&raw); err != nil {
		return nil, err
	}

	list, ok := raw.([]interface{})
	if !ok {
		obj, okObj := raw.(map[string]interface{})
		if !okObj {
			return nil, fmt.Errorf("expected JSON array, got %T", raw)
		}
		for _, key := range []string{"depositList", "withdrawList"} {
			if nested, okNested := obj[key].([]interface{}); okNested {
				list = nested
				ok = true
				break
			}
		}
		if !ok {
			return nil, fmt.Errorf("expected JSON array, got object without record list")
		}
	}

	rows := make([]map[string]string, 0, len(list))
	for _, item := range list {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("expected JSON object row, got %T", item)
		}
		row := make(map[string]string, len(obj))
		for k, v := range obj {
			switch val := v.(type) {
			case string:
				row[k] = val
			case json.Number:
				row[k] = val.String()
			case bool:
				row[k] = fmt.Sprintf("%t", val)
			case nil:
				row[k] = ""
			default:
				encoded, _ := json.Marshal(val)
				row[k] = string(encoded)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}
