package processors

import (
	"sort"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/utils"
)

// TaxYearProcessor rolls matched disposals into annual summaries under a
// flat-rate regime with a fixed exemption and loss carry-forward. Summaries
// are always recomputed from the full disposal set so a corrected old
// transaction propagates through every later year's carry-forward.
type TaxYearProcessor struct {
	rate      decimal.Decimal
	exemption decimal.Decimal
	boundary  utils.YearBoundary
}

func NewTaxYearProcessor(rate, exemption decimal.Decimal, boundary utils.YearBoundary) *TaxYearProcessor {
	return &TaxYearProcessor{rate: rate, exemption: exemption, boundary: boundary}
}

// Aggregate produces one summary per tax year, ascending. Carried-forward
// losses offset gains before the exemption; the exemption applies to net
// gains only and never increases a loss.
func (p *TaxYearProcessor) Aggregate(disposals []models.DisposalResult) []models.TaxYearSummary {
	byYear := make(map[int][]models.DisposalResult)
	for _, d := range disposals {
		byYear[d.TaxYear] = append(byYear[d.TaxYear], d)
	}

	years := make([]int, 0, len(byYear))
	for year := range byYear {
		years = append(years, year)
	}
	sort.Ints(years)

	var summaries []models.TaxYearSummary
	carried := decimal.Zero

	for _, year := range years {
		gains := decimal.Zero
		losses := decimal.Zero
		byAsset := make(map[string]decimal.Decimal)
		for _, d := range byYear[year] {
			if d.Gain.IsNegative() {
				losses = losses.Add(d.Gain.Abs())
			} else {
				gains = gains.Add(d.Gain)
			}
			byAsset[d.Asset] = byAsset[d.Asset].Add(d.Gain)
		}
		net := gains.Sub(losses)

		summary := models.TaxYearSummary{
			TaxYear:       year,
			TotalGains:    gains,
			TotalLosses:   losses,
			NetGains:      net,
			LossCarriedIn: carried,
			Disposals:     len(byYear[year]),
			GainsByAsset:  byAsset,
		}
		summary.PeriodStart, summary.PeriodEnd = p.boundary.Period(year)

		if net.IsPositive() {
			offset := decimal.Min(carried, net)
			afterLoss := net.Sub(offset)
			exemptionApplied := decimal.Min(p.exemption, afterLoss)
			taxable := afterLoss.Sub(exemptionApplied)

			summary.LossCarriedOut = carried.Sub(offset)
			summary.ExemptionApplied = exemptionApplied
			summary.TaxableAmount = taxable
			summary.TaxDue = taxable.Mul(p.rate)
		} else {
			// A loss year: the exemption never offsets losses, and the net
			// loss joins the carry-forward.
			summary.LossCarriedOut = carried.Add(net.Abs())
			summary.ExemptionApplied = decimal.Zero
			summary.TaxableAmount = decimal.Zero
			summary.TaxDue = decimal.Zero
		}

		carried = summary.LossCarriedOut
		summaries = append(summaries, summary)
	}
	return summaries
}
