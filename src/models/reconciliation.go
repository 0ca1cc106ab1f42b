package models

import "time"

// Reconciliation classifications. A record is never auto-resolved or
// discarded; conflicts wait for a manual decision.
const (
	ReconMatched           = "matched"
	ReconAPIOnlyGap        = "api-only-gap"
	ReconFileOnlyGap       = "file-only-gap"
	ReconConflictingAmount = "conflicting-amount"
)

// ReconciliationRecord groups transactions from different origins believed to
// represent the same economic event.
type ReconciliationRecord struct {
	ID             string    `json:"id"`
	Status         string    `json:"status"`
	Exchange       string    `json:"exchange"`
	Asset          string    `json:"asset"`
	TransactionIDs []string  `json:"transaction_ids"`
	WinnerOrigin   string    `json:"winner_origin,omitempty"` // only for matched groups
	Detail         string    `json:"detail,omitempty"`
	Created        time.Time `json:"created_at"`
}
