package processors

import (
	"testing"
	"time"

	"github.com/username/cryptofolio/src/models"
)

func reconConfig() ReconciliationConfig {
	return ReconciliationConfig{
		QuantityTolerance: dec("0.00000001"),
		ValueTolerance:    dec("0.01"),
		TimeWindow:        5 * time.Minute,
		PreferredOrigin:   models.OriginFile,
	}
}

func reconTx(id, origin, exchange, asset, qty, price string, ts time.Time) models.Transaction {
	t := tx(id, ts, asset, qty, price, "0")
	t.Origin = origin
	t.Exchange = exchange
	return t
}

func TestReconcileMatchesWithinTolerances(t *testing.T) {
	p := NewReconciliationProcessor(reconConfig())
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	records := p.Reconcile([]models.Transaction{
		reconTx("api1", models.OriginAPI, "binance", "BTC", "1.0", "20000", ts),
		reconTx("file1", models.OriginFile, "binance", "BTC", "1.0", "20000.005", ts.Add(2*time.Minute)),
	})
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	r := records[0]
	if r.Status != models.ReconMatched {
		t.Fatalf("status: want matched, got %s", r.Status)
	}
	if r.WinnerOrigin != models.OriginFile {
		t.Errorf("winner: want file, got %s", r.WinnerOrigin)
	}
	if len(r.TransactionIDs) != 2 {
		t.Errorf("matched record must reference both transactions, got %v", r.TransactionIDs)
	}
}

func TestReconcileClassifiesGapsAndConflicts(t *testing.T) {
	p := NewReconciliationProcessor(reconConfig())
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	records := p.Reconcile([]models.Transaction{
		// Quantity agrees, EUR value does not: conflict.
		reconTx("api1", models.OriginAPI, "binance", "BTC", "1.0", "20000", ts),
		reconTx("file1", models.OriginFile, "binance", "BTC", "1.0", "21000", ts),
		// No file counterpart.
		reconTx("api2", models.OriginAPI, "binance", "ETH", "2.0", "1500", ts),
		// No api counterpart.
		reconTx("file2", models.OriginFile, "binance", "SOL", "10", "20", ts),
	})

	byStatus := make(map[string]models.ReconciliationRecord)
	for _, r := range records {
		byStatus[r.Status] = r
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %+v", len(records), records)
	}
	conflict, ok := byStatus[models.ReconConflictingAmount]
	if !ok {
		t.Fatal("expected a conflicting-amount record")
	}
	if conflict.WinnerOrigin != "" {
		t.Errorf("a conflict must not pick a winner, got %q", conflict.WinnerOrigin)
	}
	if _, ok := byStatus[models.ReconAPIOnlyGap]; !ok {
		t.Error("expected an api-only-gap record for ETH")
	}
	if _, ok := byStatus[models.ReconFileOnlyGap]; !ok {
		t.Error("expected a file-only-gap record for SOL")
	}
}

func TestReconcileOutsideTimeWindowIsGap(t *testing.T) {
	p := NewReconciliationProcessor(reconConfig())
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	records := p.Reconcile([]models.Transaction{
		reconTx("api1", models.OriginAPI, "binance", "BTC", "1.0", "20000", ts),
		reconTx("file1", models.OriginFile, "binance", "BTC", "1.0", "20000", ts.Add(10*time.Minute)),
	})
	if len(records) != 2 {
		t.Fatalf("expected 2 gap records, got %d", len(records))
	}
	for _, r := range records {
		if r.Status == models.ReconMatched {
			t.Errorf("records 10m apart must not match, got %+v", r)
		}
	}
}

func TestReconcileSingleOriginExchangeSkipped(t *testing.T) {
	p := NewReconciliationProcessor(reconConfig())
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	// Only file-origin records exist for this exchange, so there is nothing
	// to reconcile against and no gap noise.
	records := p.Reconcile([]models.Transaction{
		reconTx("file1", models.OriginFile, "revolut", "BTC", "1.0", "20000", ts),
		reconTx("file2", models.OriginFile, "revolut", "ETH", "2.0", "1500", ts),
	})
	if len(records) != 0 {
		t.Fatalf("expected no records for a single-origin exchange, got %d", len(records))
	}
}

func TestReconcileCommutative(t *testing.T) {
	p := NewReconciliationProcessor(reconConfig())
	ts := time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC)

	txs := []models.Transaction{
		reconTx("api1", models.OriginAPI, "binance", "BTC", "1.0", "20000", ts),
		reconTx("api2", models.OriginAPI, "binance", "BTC", "0.5", "20000", ts.Add(time.Minute)),
		reconTx("file1", models.OriginFile, "binance", "BTC", "0.5", "20000", ts.Add(time.Minute)),
		reconTx("file2", models.OriginFile, "binance", "BTC", "1.0", "20000", ts),
	}
	reversed := make([]models.Transaction, len(txs))
	for i, tx := range txs {
		reversed[len(txs)-1-i] = tx
	}

	a := p.Reconcile(txs)
	b := p.Reconcile(reversed)
	if len(a) != len(b) {
		t.Fatalf("record count differs by input order: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Status != b[i].Status {
			t.Errorf("record %d differs by input order: %+v vs %+v", i, a[i], b[i])
		}
	}
}
