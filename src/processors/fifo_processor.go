package processors

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/utils"
)

// OversoldError is a data-integrity failure: a disposal exceeds the asset's
// available acquisition history. The asset's calculation halts rather than
// clipping to zero.
type OversoldError struct {
	Asset         string
	TransactionID string
	Requested     decimal.Decimal
	Available     decimal.Decimal
}

func (e *OversoldError) Error() string {
	return fmt.Sprintf("oversold %s: disposal %s needs %s but only %s acquired before it",
		e.Asset, e.TransactionID, e.Requested.String(), e.Available.String())
}

// FIFOProcessor matches disposals against acquisition lots in strict
// first-in-first-out order. Lot queues are rebuilt from the ledger on every
// run; nothing here persists between calculations.
type FIFOProcessor struct {
	boundary utils.YearBoundary
}

func NewFIFOProcessor(boundary utils.YearBoundary) *FIFOProcessor {
	return &FIFOProcessor{boundary: boundary}
}

// Process replays one asset's transactions in ascending timestamp order
// (ties broken by ref id) and returns the matched disposals plus the lots
// still open at the end. Non-taxable records are excluded from matching.
// Matching one disposal is atomic: on an oversell nothing is returned for
// the asset.
func (p *FIFOProcessor) Process(asset string, transactions []models.Transaction) ([]models.DisposalResult, []models.AcquisitionLot, error) {
	txs := make([]models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx.Asset == asset && tx.IsTaxable && !tx.Quantity.IsZero() {
			txs = append(txs, tx)
		}
	}
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Timestamp.Equal(txs[j].Timestamp) {
			return txs[i].Timestamp.Before(txs[j].Timestamp)
		}
		return txs[i].RefID < txs[j].RefID
	})

	var queue []*models.AcquisitionLot
	var disposals []models.DisposalResult

	for _, tx := range txs {
		if tx.IsAcquisition() {
			// Unit cost carries the acquisition fee spread across the lot.
			unitCost := tx.PriceEUR
			if tx.Fee.IsPositive() {
				unitCost = unitCost.Add(tx.Fee.Div(tx.Quantity))
			}
			queue = append(queue, &models.AcquisitionLot{
				TransactionID: tx.ID,
				AcquiredAt:    tx.Timestamp,
				Asset:         asset,
				Remaining:     tx.Quantity,
				UnitCost:      unitCost,
			})
			continue
		}

		needed := tx.Quantity.Abs()
		available := decimal.Zero
		for _, lot := range queue {
			available = available.Add(lot.Remaining)
		}
		if needed.GreaterThan(available) {
			return nil, nil, &OversoldError{
				Asset:         asset,
				TransactionID: tx.ID,
				Requested:     needed,
				Available:     available,
			}
		}

		proceeds := needed.Mul(tx.PriceEUR).Sub(tx.Fee)
		var consumptions []models.LotConsumption
		costBasis := decimal.Zero

		for needed.IsPositive() {
			lot := queue[0]
			take := decimal.Min(needed, lot.Remaining)
			cost := take.Mul(lot.UnitCost)
			consumptions = append(consumptions, models.LotConsumption{
				LotTransactionID: lot.TransactionID,
				AcquiredAt:       lot.AcquiredAt,
				Quantity:         take,
				CostBasis:        cost,
			})
			costBasis = costBasis.Add(cost)
			needed = needed.Sub(take)
			lot.Remaining = lot.Remaining.Sub(take)
			if lot.Remaining.IsZero() {
				queue = queue[1:]
			}
		}

		disposals = append(disposals, models.DisposalResult{
			TransactionID: tx.ID,
			Timestamp:     tx.Timestamp,
			Asset:         asset,
			Quantity:      tx.Quantity.Abs(),
			Proceeds:      proceeds,
			CostBasis:     costBasis,
			Gain:          proceeds.Sub(costBasis),
			TaxYear:       p.boundary.TaxYearOf(tx.Timestamp),
			Consumptions:  consumptions,
		})
	}

	holdings := make([]models.AcquisitionLot, 0, len(queue))
	for _, lot := range queue {
		holdings = append(holdings, *lot)
	}
	return disposals, holdings, nil
}
