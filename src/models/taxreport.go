package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxYearSummary is the annual roll-up of matched disposals. It is recomputed
// from the full disposal history on every run, never patched incrementally.
type TaxYearSummary struct {
	TaxYear          int                        `json:"tax_year"`
	PeriodStart      time.Time                  `json:"period_start"`
	PeriodEnd        time.Time                  `json:"period_end"`
	TotalGains       decimal.Decimal            `json:"total_gains"`
	TotalLosses      decimal.Decimal            `json:"total_losses"` // positive number
	NetGains         decimal.Decimal            `json:"net_gains"`
	LossCarriedIn    decimal.Decimal            `json:"loss_carried_in"`
	LossCarriedOut   decimal.Decimal            `json:"loss_carried_out"`
	ExemptionApplied decimal.Decimal            `json:"exemption_applied"`
	TaxableAmount    decimal.Decimal            `json:"taxable_amount"`
	TaxDue           decimal.Decimal            `json:"tax_due"`
	Disposals        int                        `json:"disposals"`
	GainsByAsset     map[string]decimal.Decimal `json:"gains_by_asset,omitempty"`
}

// Holding is an open position left after replay: the remaining part of one
// acquisition lot.
type Holding struct {
	Asset      string          `json:"asset"`
	AcquiredAt time.Time       `json:"acquired_at"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	CostBasis  decimal.Decimal `json:"cost_basis"`
}

// TaxReport is the full audit-proof calculation output: every number in the
// summaries can be reconstructed from the disposal and lot-consumption detail
// without re-running the matcher.
type TaxReport struct {
	GeneratedAt time.Time          `json:"generated_at"`
	RunID       string             `json:"run_id"`
	Summaries   []TaxYearSummary   `json:"summaries"`
	Disposals   []DisposalResult   `json:"disposals"`
	Holdings    []Holding          `json:"holdings"`
	Errors      []CalculationError `json:"errors,omitempty"`
}

// CalculationError is a blocking integrity failure for one asset, e.g. a
// disposal that exceeds the available acquisition history. The affected
// asset's figures are withheld rather than silently wrong.
type CalculationError struct {
	Asset  string `json:"asset"`
	Reason string `json:"reason"`
}
