package processors

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/models"
)

// ReconciliationConfig is the business policy for cross-source matching:
// tolerances, the pairing time window, and which origin is considered
// authoritative for a cleanly matched pair.
type ReconciliationConfig struct {
	QuantityTolerance decimal.Decimal
	ValueTolerance    decimal.Decimal
	TimeWindow        time.Duration
	PreferredOrigin   string // "file" or "api"
}

// ReconciliationProcessor groups api- and file-origin ledger records that
// plausibly describe the same economic event. Matching is commutative:
// inputs are canonically ordered first, so arrival order never changes the
// groupings.
type ReconciliationProcessor struct {
	cfg ReconciliationConfig
}

func NewReconciliationProcessor(cfg ReconciliationConfig) *ReconciliationProcessor {
	return &ReconciliationProcessor{cfg: cfg}
}

// Reconcile classifies every api/file record of exchanges reporting through
// both origins. Exchanges seen through a single origin have nothing to
// reconcile against and yield no records; emitting gaps for them would flag
// every transaction of a file-only exchange as missing from the API. Conflicts
// are reported, never auto-resolved.
func (p *ReconciliationProcessor) Reconcile(transactions []models.Transaction) []models.ReconciliationRecord {
	type groupKey struct {
		exchange string
		asset    string
	}

	groups := make(map[groupKey][]models.Transaction)
	originsByExchange := make(map[string]map[string]bool)
	for _, tx := range transactions {
		if tx.Origin != models.OriginAPI && tx.Origin != models.OriginFile {
			continue
		}
		groups[groupKey{tx.Exchange, tx.Asset}] = append(groups[groupKey{tx.Exchange, tx.Asset}], tx)
		if originsByExchange[tx.Exchange] == nil {
			originsByExchange[tx.Exchange] = make(map[string]bool)
		}
		originsByExchange[tx.Exchange][tx.Origin] = true
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].exchange != keys[j].exchange {
			return keys[i].exchange < keys[j].exchange
		}
		return keys[i].asset < keys[j].asset
	})

	var records []models.ReconciliationRecord
	for _, key := range keys {
		if len(originsByExchange[key.exchange]) < 2 {
			continue
		}
		records = append(records, p.reconcileGroup(key.exchange, key.asset, groups[key])...)
	}
	return records
}

func (p *ReconciliationProcessor) reconcileGroup(exchange, asset string, txs []models.Transaction) []models.ReconciliationRecord {
	var apiSide, fileSide []models.Transaction
	for _, tx := range txs {
		if tx.Origin == models.OriginAPI {
			apiSide = append(apiSide, tx)
		} else {
			fileSide = append(fileSide, tx)
		}
	}
	sortCanonical(apiSide)
	sortCanonical(fileSide)

	matchedAPI := make([]bool, len(apiSide))
	var records []models.ReconciliationRecord

	for _, fileTx := range fileSide {
		pairIdx := -1
		for i, apiTx := range apiSide {
			if matchedAPI[i] {
				continue
			}
			if !withinWindow(fileTx.Timestamp, apiTx.Timestamp, p.cfg.TimeWindow) {
				continue
			}
			if fileTx.Quantity.Sub(apiTx.Quantity).Abs().GreaterThan(p.cfg.QuantityTolerance) {
				continue
			}
			pairIdx = i
			break
		}

		if pairIdx < 0 {
			records = append(records, p.record(models.ReconFileOnlyGap, exchange, asset,
				[]string{fileTx.ID}, "", "no api-origin counterpart"))
			continue
		}

		apiTx := apiSide[pairIdx]
		matchedAPI[pairIdx] = true
		valueDiff := fileTx.ValueEUR().Sub(apiTx.ValueEUR()).Abs()
		if valueDiff.GreaterThan(p.cfg.ValueTolerance) {
			records = append(records, p.record(models.ReconConflictingAmount, exchange, asset,
				[]string{fileTx.ID, apiTx.ID}, "",
				fmt.Sprintf("EUR value differs by %s; manual resolution required", valueDiff.String())))
			continue
		}
		records = append(records, p.record(models.ReconMatched, exchange, asset,
			[]string{fileTx.ID, apiTx.ID}, p.cfg.PreferredOrigin, ""))
	}

	for i, apiTx := range apiSide {
		if !matchedAPI[i] {
			records = append(records, p.record(models.ReconAPIOnlyGap, exchange, asset,
				[]string{apiTx.ID}, "", "no file-origin counterpart"))
		}
	}
	return records
}

// record builds a ReconciliationRecord with an id derived from its member
// transactions, so the same grouping always gets the same id.
func (p *ReconciliationProcessor) record(status, exchange, asset string, txIDs []string, winner, detail string) models.ReconciliationRecord {
	sorted := append([]string(nil), txIDs...)
	sort.Strings(sorted)
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte(status+"|"+strings.Join(sorted, "|"))).String()
	return models.ReconciliationRecord{
		ID:             id,
		Status:         status,
		Exchange:       exchange,
		Asset:          asset,
		TransactionIDs: sorted,
		WinnerOrigin:   winner,
		Detail:         detail,
		Created:        time.Now().UTC(),
	}
}

func sortCanonical(txs []models.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].RefID < txs[j].RefID
	})
}

func withinWindow(a, b time.Time, window time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= window
}
