// Package rates is the price-oracle boundary: a table of quote-asset to EUR
// conversion rates loaded from a JSON file. The calculation core never guesses
// a rate; a missing observation surfaces as an error to the caller.
package rates

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/logger"
)

// Table holds daily conversion rates into EUR, keyed by asset and date.
type Table struct {
	byAssetDate map[string]map[string]decimal.Decimal
}

type ratesFile struct {
	Root struct {
		Obs []struct {
			TimePeriod string `json:"_TIME_PERIOD"`
			ObsValue   string `json:"_OBS_VALUE"`
			Asset      string `json:"_CCY"`
		} `json:"Obs"`
	} `json:"root"`
}

// Load reads historical EUR conversion rates from the specified file path.
func Load(filePath string) (*Table, error) {
	logger.L.Info("Loading historical conversion rates", "path", filePath)
	file, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("error reading conversion rate file '%s': %w", filePath, err)
	}

	var parsed ratesFile
	if err := json.Unmarshal(file, &parsed); err != nil {
		return nil, fmt.Errorf("error unmarshalling conversion rates from '%s': %w", filePath, err)
	}

	t := &Table{byAssetDate: make(map[string]map[string]decimal.Decimal)}
	for _, obs := range parsed.Root.Obs {
		value, err := decimal.NewFromString(obs.ObsValue)
		if err != nil {
			logger.L.Warn("Invalid conversion rate value in data", "asset", obs.Asset, "date", obs.TimePeriod, "value", obs.ObsValue)
			continue
		}
		if t.byAssetDate[obs.Asset] == nil {
			t.byAssetDate[obs.Asset] = make(map[string]decimal.Decimal)
		}
		t.byAssetDate[obs.Asset][obs.TimePeriod] = value
	}
	logger.L.Info("Historical conversion rates loaded", "path", filePath, "assets", len(t.byAssetDate))
	return t, nil
}

// Empty returns a table with no observations. EUR lookups still succeed.
func Empty() *Table {
	return &Table{byAssetDate: make(map[string]map[string]decimal.Decimal)}
}

// ToEUR returns the conversion rate from asset into EUR on the given date.
func (t *Table) ToEUR(asset string, date time.Time) (decimal.Decimal, error) {
	if asset == "EUR" {
		return decimal.NewFromInt(1), nil
	}
	dateStr := date.UTC().Format("2006-01-02")
	if byDate, ok := t.byAssetDate[asset]; ok {
		if rate, ok := byDate[dateStr]; ok {
			return rate, nil
		}
	}
	logger.L.Warn("Conversion rate not found", "asset", asset, "date", dateStr)
	return decimal.Zero, fmt.Errorf("conversion rate not found for %s on %s", asset, dateStr)
}

// Add records one observation. Used by tests and manual overrides.
func (t *Table) Add(asset string, date time.Time, rate decimal.Decimal) {
	dateStr := date.UTC().Format("2006-01-02")
	if t.byAssetDate[asset] == nil {
		t.byAssetDate[asset] = make(map[string]decimal.Decimal)
	}
	t.byAssetDate[asset][dateStr] = rate
}
