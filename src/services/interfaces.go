package services

import (
	"context"
	"io"

	"github.com/username/cryptofolio/src/fetcher"
	"github.com/username/cryptofolio/src/models"
)

// ImportResult summarises a single file or API ingestion run.
type ImportResult struct {
	Source      string
	Parsed      int
	Inserted    int
	Duplicates  int
	Quarantined int
}

// SyncResult aggregates the per-channel outcome of an API sync run plus the
// ingestion totals of the records that came back.
type SyncResult struct {
	Channels    []fetcher.ChannelResult
	Inserted    int
	Duplicates  int
	Quarantined int
}

// SyncService feeds the ledger: API sync, file imports, and reconciliation of
// the two origins.
type SyncService interface {
	SyncExchange(ctx context.Context) (*SyncResult, error)
	ImportFile(file io.Reader, source string) (*ImportResult, error)
	Reconcile() ([]models.ReconciliationRecord, error)
}

// ReportService derives tax output from whatever the ledger currently holds.
type ReportService interface {
	GenerateReport() (*models.TaxReport, error)
}
