package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AcquisitionLot is a discrete acquisition tracked with its own remaining
// quantity and unit cost. Lots are derived state: they are rebuilt from the
// ledger on every calculation run and never persisted.
type AcquisitionLot struct {
	TransactionID string          `json:"transaction_id"`
	AcquiredAt    time.Time       `json:"acquired_at"`
	Asset         string          `json:"asset"`
	Remaining     decimal.Decimal `json:"remaining"`
	UnitCost      decimal.Decimal `json:"unit_cost"` // includes allocated acquisition fee
}

// LotConsumption records one slice of a disposal matched against one lot.
type LotConsumption struct {
	LotTransactionID string          `json:"lot_transaction_id"`
	AcquiredAt       time.Time       `json:"acquired_at"`
	Quantity         decimal.Decimal `json:"quantity"`
	CostBasis        decimal.Decimal `json:"cost_basis"`
}

// DisposalResult is a matched disposal: the consumed lots sum exactly to the
// disposal's absolute quantity, and Gain = Proceeds - total cost basis. The
// disposal's own fee is already subtracted from Proceeds.
type DisposalResult struct {
	TransactionID string           `json:"transaction_id"`
	Timestamp     time.Time        `json:"timestamp"`
	Asset         string           `json:"asset"`
	Quantity      decimal.Decimal  `json:"quantity"` // absolute quantity disposed
	Proceeds      decimal.Decimal  `json:"proceeds"`
	CostBasis     decimal.Decimal  `json:"cost_basis"`
	Gain          decimal.Decimal  `json:"gain"` // negative for a loss
	TaxYear       int              `json:"tax_year"`
	Consumptions  []LotConsumption `json:"consumptions"`
}
