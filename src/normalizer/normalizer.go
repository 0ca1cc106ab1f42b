// Package normalizer maps exchange-specific raw records onto the canonical
// transaction shape. Each mapping is pure: the same raw record always yields
// the same transactions or the same error.
package normalizer

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/rates"
)

// Error is a data-shape failure naming the offending field. Records failing
// normalization are quarantined by the caller, never silently dropped.
type Error struct {
	RefID  string
	Field  string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("cannot normalize record %s: field %q: %s", e.RefID, e.Field, e.Reason)
}

type Normalizer struct {
	rates *rates.Table
}

func New(rateTable *rates.Table) *Normalizer {
	return &Normalizer{rates: rateTable}
}

// Normalize maps one raw record onto zero or more canonical transactions.
// A swap decomposes into exactly two: a disposal of the sold asset and an
// acquisition of the bought asset at the same EUR value. Rows that are not
// transactions at all (e.g. card payments in a Revolut export) yield an
// empty slice.
func (n *Normalizer) Normalize(rec models.RawRecord) ([]models.Transaction, error) {
	switch rec.Exchange {
	case "binance":
		return n.normalizeBinance(rec)
	case "revolut":
		return n.normalizeRevolut(rec)
	case "coinbase":
		return n.normalizeCoinbase(rec)
	case "kraken":
		return n.normalizeKraken(rec)
	default:
		return nil, &Error{RefID: rec.RefID, Field: "exchange", Reason: "no normalizer for exchange " + rec.Exchange}
	}
}

func requireField(rec models.RawRecord, name string) (string, error) {
	value, ok := rec.Fields[name]
	if !ok || value == "" {
		return "", &Error{RefID: rec.RefID, Field: name, Reason: "missing or empty"}
	}
	return value, nil
}

func requireDecimal(rec models.RawRecord, name string) (decimal.Decimal, error) {
	value, err := requireField(rec, name)
	if err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &Error{RefID: rec.RefID, Field: name, Reason: "not a number: " + value}
	}
	return d, nil
}

func optionalDecimal(rec models.RawRecord, name string) (decimal.Decimal, error) {
	value, ok := rec.Fields[name]
	if !ok || value == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, &Error{RefID: rec.RefID, Field: name, Reason: "not a number: " + value}
	}
	return d, nil
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.9999",
	"2006-01-02",
}

func parseTimestamp(rec models.RawRecord, name, value string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &Error{RefID: rec.RefID, Field: name, Reason: "unparseable timestamp: " + value}
}

// swap builds the two legs of an asset-for-asset swap: a disposal of
// soldAsset and an acquisition of boughtAsset, both at valueEUR, with the fee
// allocated to the disposal side. The matcher never sees the swap itself.
func swap(rec models.RawRecord, ts time.Time, soldAsset string, soldQty decimal.Decimal, boughtAsset string, boughtQty decimal.Decimal, valueEUR, feeEUR decimal.Decimal, description string) []models.Transaction {
	disposal := models.Transaction{
		ID:          rec.Exchange + "_" + rec.RefID + "_disposal",
		Timestamp:   ts,
		Exchange:    rec.Exchange,
		Channel:     rec.Channel,
		Asset:       soldAsset,
		Action:      models.ActionSell,
		Quantity:    soldQty.Neg(),
		PriceEUR:    valueEUR.Div(soldQty),
		Fee:         feeEUR,
		FeeAsset:    "EUR",
		Origin:      rec.Origin,
		RefID:       rec.RefID + ":disposal",
		IsTaxable:   true,
		Description: description,
	}
	acquisition := models.Transaction{
		ID:          rec.Exchange + "_" + rec.RefID + "_acquisition",
		Timestamp:   ts,
		Exchange:    rec.Exchange,
		Channel:     rec.Channel,
		Asset:       boughtAsset,
		Action:      models.ActionBuy,
		Quantity:    boughtQty,
		PriceEUR:    valueEUR.Div(boughtQty),
		Fee:         decimal.Zero,
		FeeAsset:    "EUR",
		Origin:      rec.Origin,
		RefID:       rec.RefID + ":acquisition",
		IsTaxable:   true,
		Description: description,
	}
	return []models.Transaction{disposal, acquisition}
}
