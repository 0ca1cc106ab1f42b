package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Origin of a record: fetched from an exchange API, imported from a file
// export, or entered manually.
const (
	OriginAPI    = "api"
	OriginFile   = "file"
	OriginManual = "manual"
)

// Action classification after normalization.
const (
	ActionBuy      = "buy"
	ActionSell     = "sell"
	ActionTransfer = "transfer"
	ActionFee      = "fee"
)

// RawRecord is a single source record exactly as produced by an exchange API
// response or a file export row, before normalization. Fields preserves the
// source's own field names so normalization errors can point at the offending
// field.
type RawRecord struct {
	Origin   string            `json:"origin"`
	Exchange string            `json:"exchange"`
	Channel  string            `json:"channel"`
	RefID    string            `json:"ref_id"`
	Fields   map[string]string `json:"fields"`
}

// Transaction is the canonical, normalized transaction shape shared by every
// source. Quantity is signed: positive for acquisitions, negative for
// disposals. A committed transaction is never edited; a correction is a new
// record whose SupersedesID points at the one it replaces.
type Transaction struct {
	ID           string          `json:"id"`
	Timestamp    time.Time       `json:"timestamp"` // UTC
	Exchange     string          `json:"exchange"`
	Channel      string          `json:"channel"` // e.g. spot, deposit, withdrawal
	Asset        string          `json:"asset"`
	Action       string          `json:"action"`
	Quantity     decimal.Decimal `json:"quantity"`  // signed
	PriceEUR     decimal.Decimal `json:"price_eur"` // unit price in reporting currency
	Fee          decimal.Decimal `json:"fee"`
	FeeAsset     string          `json:"fee_asset"`
	Origin       string          `json:"origin"`
	RefID        string          `json:"ref_id"` // stable id of the source record
	IsTaxable    bool            `json:"is_taxable"`
	Description  string          `json:"description,omitempty"`
	SupersedesID string          `json:"supersedes_id,omitempty"`
}

// IsDisposal reports whether the transaction disposes of the asset.
func (t Transaction) IsDisposal() bool {
	return t.Quantity.IsNegative()
}

// IsAcquisition reports whether the transaction acquires the asset.
func (t Transaction) IsAcquisition() bool {
	return t.Quantity.IsPositive()
}

// ValueEUR returns |quantity| * unit price.
func (t Transaction) ValueEUR() decimal.Decimal {
	return t.Quantity.Abs().Mul(t.PriceEUR)
}

// QuarantinedRecord is a raw record that failed normalization. It is kept out
// of the ledger but retained with the reason so a sync never silently drops
// data.
type QuarantinedRecord struct {
	ID       int64     `json:"id"`
	Origin   string    `json:"origin"`
	Exchange string    `json:"exchange"`
	RefID    string    `json:"ref_id"`
	Reason   string    `json:"reason"`
	Fields   string    `json:"fields"` // JSON of RawRecord.Fields
	Created  time.Time `json:"created_at"`
}
