// Package ledger is the append-only store of normalized transactions.
// Append is idempotent on (origin, ref id); committed records are never
// mutated or deleted, and queries return a deterministic order.
package ledger

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/logger"
	"github.com/username/cryptofolio/src/models"
)

// tsLayout is fixed-width so lexicographic order of stored timestamps equals
// chronological order.
const tsLayout = "2006-01-02T15:04:05.000000000Z"

type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// AppendBatch commits a batch of transactions atomically. Re-appending a
// record that is already in the ledger is a no-op; the returned count is the
// number of genuinely new records.
func (s *Store) AppendBatch(txs []models.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	dbTx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	stmt, err := dbTx.Prepare(`INSERT INTO transactions
		(id, ts, exchange, channel, asset, action, quantity, price_eur, fee, fee_asset, origin, ref_id, is_taxable, description, supersedes_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(origin, ref_id) DO NOTHING`)
	if err != nil {
		return 0, fmt.Errorf("error preparing insert statement: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, tx := range txs {
		res, err := stmt.Exec(tx.ID, tx.Timestamp.UTC().Format(tsLayout), tx.Exchange, tx.Channel,
			tx.Asset, tx.Action, tx.Quantity.String(), tx.PriceEUR.String(), tx.Fee.String(),
			tx.FeeAsset, tx.Origin, tx.RefID, boolToInt(tx.IsTaxable), tx.Description, tx.SupersedesID)
		if err != nil {
			return 0, fmt.Errorf("error inserting transaction (RefID: %s): %w", tx.RefID, err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		} else {
			logger.L.Debug("Skipping duplicate transaction on append", "origin", tx.Origin, "refID", tx.RefID)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return 0, fmt.Errorf("error committing transaction batch: %w", err)
	}
	return inserted, nil
}

// Append commits a single transaction. Idempotent like AppendBatch.
func (s *Store) Append(tx models.Transaction) (bool, error) {
	n, err := s.AppendBatch([]models.Transaction{tx})
	return n > 0, err
}

const selectColumns = `id, ts, exchange, channel, asset, action, quantity, price_eur, fee, fee_asset, origin, ref_id, is_taxable, description, COALESCE(supersedes_id, '')`

// Query returns the asset's transactions within [from, to) in non-decreasing
// timestamp order, ties broken by ref id.
func (s *Store) Query(asset string, from, to time.Time) ([]models.Transaction, error) {
	rows, err := s.db.Query(`SELECT `+selectColumns+` FROM transactions
		WHERE asset = ? AND ts >= ? AND ts < ?
		ORDER BY ts, ref_id`,
		asset, from.UTC().Format(tsLayout), to.UTC().Format(tsLayout))
	if err != nil {
		return nil, fmt.Errorf("error querying transactions for %s: %w", asset, err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// QueryAll returns every committed transaction, ordered by timestamp then
// ref id.
func (s *Store) QueryAll() ([]models.Transaction, error) {
	rows, err := s.db.Query(`SELECT ` + selectColumns + ` FROM transactions ORDER BY ts, ref_id`)
	if err != nil {
		return nil, fmt.Errorf("error querying transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

// Supersede appends a correcting transaction linked to the record it
// replaces. The superseded record stays in the ledger untouched.
func (s *Store) Supersede(oldID string, replacement models.Transaction) error {
	var exists int
	if err := s.db.QueryRow(`SELECT COUNT(1) FROM transactions WHERE id = ?`, oldID).Scan(&exists); err != nil {
		return fmt.Errorf("error checking superseded transaction %s: %w", oldID, err)
	}
	if exists == 0 {
		return fmt.Errorf("cannot supersede unknown transaction %s", oldID)
	}
	replacement.SupersedesID = oldID
	_, err := s.Append(replacement)
	return err
}

// ActiveTransactions returns the ledger with superseded records filtered
// out, in query order. This is the view calculations run on.
func (s *Store) ActiveTransactions() ([]models.Transaction, error) {
	all, err := s.QueryAll()
	if err != nil {
		return nil, err
	}
	superseded := make(map[string]bool)
	for _, tx := range all {
		if tx.SupersedesID != "" {
			superseded[tx.SupersedesID] = true
		}
	}
	active := all[:0]
	for _, tx := range all {
		if !superseded[tx.ID] {
			active = append(active, tx)
		}
	}
	return active, nil
}

// Quarantine records a raw record that failed normalization, with the
// reason. Idempotent on (origin, ref id) so re-syncs do not duplicate.
func (s *Store) Quarantine(rec models.RawRecord, reason string) error {
	fields, err := json.Marshal(rec.Fields)
	if err != nil {
		fields = []byte("{}")
	}
	_, err = s.db.Exec(`INSERT INTO quarantined_records (origin, exchange, ref_id, reason, fields)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(origin, ref_id) DO NOTHING`,
		rec.Origin, rec.Exchange, rec.RefID, reason, string(fields))
	if err != nil {
		return fmt.Errorf("error quarantining record %s: %w", rec.RefID, err)
	}
	logger.L.Warn("Record quarantined", "origin", rec.Origin, "exchange", rec.Exchange, "refID", rec.RefID, "reason", reason)
	return nil
}

// QuarantinedCount returns the number of quarantined records.
func (s *Store) QuarantinedCount() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(1) FROM quarantined_records`).Scan(&n)
	return n, err
}

// LastCheckpoint implements fetcher.ProgressStore.
func (s *Store) LastCheckpoint(channel string) (time.Time, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT last_window_end FROM sync_progress WHERE channel = ?`, channel).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	t, err := time.Parse(tsLayout, raw)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt checkpoint for channel %s: %w", channel, err)
	}
	return t, true, nil
}

// SaveCheckpoint implements fetcher.ProgressStore.
func (s *Store) SaveCheckpoint(channel string, windowEnd time.Time) error {
	_, err := s.db.Exec(`INSERT INTO sync_progress (channel, last_window_end, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(channel) DO UPDATE SET last_window_end = excluded.last_window_end, updated_at = CURRENT_TIMESTAMP`,
		channel, windowEnd.UTC().Format(tsLayout))
	return err
}

// ReplaceReconciliation stores the reconciliation view of the latest sync
// cycle atomically.
func (s *Store) ReplaceReconciliation(records []models.ReconciliationRecord) error {
	dbTx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("error beginning database transaction: %w", err)
	}
	defer dbTx.Rollback()

	if _, err := dbTx.Exec(`DELETE FROM reconciliation_records`); err != nil {
		return fmt.Errorf("error clearing reconciliation records: %w", err)
	}
	stmt, err := dbTx.Prepare(`INSERT INTO reconciliation_records (id, status, exchange, asset, transaction_ids, winner_origin, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("error preparing reconciliation insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		ids, _ := json.Marshal(rec.TransactionIDs)
		if _, err := stmt.Exec(rec.ID, rec.Status, rec.Exchange, rec.Asset, string(ids), rec.WinnerOrigin, rec.Detail); err != nil {
			return fmt.Errorf("error inserting reconciliation record %s: %w", rec.ID, err)
		}
	}
	return dbTx.Commit()
}

// Reconciliation returns the stored reconciliation records.
func (s *Store) Reconciliation() ([]models.ReconciliationRecord, error) {
	rows, err := s.db.Query(`SELECT id, status, exchange, asset, transaction_ids, COALESCE(winner_origin, ''), COALESCE(detail, '') FROM reconciliation_records ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.ReconciliationRecord
	for rows.Next() {
		var rec models.ReconciliationRecord
		var ids string
		if err := rows.Scan(&rec.ID, &rec.Status, &rec.Exchange, &rec.Asset, &ids, &rec.WinnerOrigin, &rec.Detail); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(ids), &rec.TransactionIDs); err != nil {
			return nil, fmt.Errorf("corrupt transaction id list on record %s: %w", rec.ID, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Revision is a cheap fingerprint of ledger content, used to key cached
// calculation results. Append-only storage makes (count, max rowid) enough.
func (s *Store) Revision() (string, error) {
	var count, maxRow int64
	err := s.db.QueryRow(`SELECT COUNT(1), COALESCE(MAX(rowid), 0) FROM transactions`).Scan(&count, &maxRow)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d-%d", count, maxRow), nil
}

func scanTransactions(rows *sql.Rows) ([]models.Transaction, error) {
	var txs []models.Transaction
	for rows.Next() {
		var tx models.Transaction
		var ts, quantity, priceEUR, fee string
		var isTaxable int
		if err := rows.Scan(&tx.ID, &ts, &tx.Exchange, &tx.Channel, &tx.Asset, &tx.Action,
			&quantity, &priceEUR, &fee, &tx.FeeAsset, &tx.Origin, &tx.RefID, &isTaxable,
			&tx.Description, &tx.SupersedesID); err != nil {
			return nil, fmt.Errorf("error scanning transaction row: %w", err)
		}

		var err error
		if tx.Timestamp, err = time.Parse(tsLayout, ts); err != nil {
			return nil, fmt.Errorf("corrupt timestamp on transaction %s: %w", tx.ID, err)
		}
		if tx.Quantity, err = parseStoredDecimal(quantity); err != nil {
			return nil, fmt.Errorf("corrupt quantity on transaction %s: %w", tx.ID, err)
		}
		if tx.PriceEUR, err = parseStoredDecimal(priceEUR); err != nil {
			return nil, fmt.Errorf("corrupt price on transaction %s: %w", tx.ID, err)
		}
		if tx.Fee, err = parseStoredDecimal(fee); err != nil {
			return nil, fmt.Errorf("corrupt fee on transaction %s: %w", tx.ID, err)
		}
		tx.IsTaxable = isTaxable != 0
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func parseStoredDecimal(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
