package normalizer

import (
	"fmt"

	"github.com/username/cryptofolio/src/models"
)

func (n *Normalizer) normalizeRevolut(rec models.RawRecord) ([]models.Transaction, error) {
	// Revolut exports mix crypto exchanges with card payments and top-ups;
	// only EXCHANGE rows are transactions here.
	if rec.Fields["Type"] != "EXCHANGE" {
		return nil, nil
	}

	asset, err := requireField(rec, "Currency")
	if err != nil {
		return nil, err
	}
	if asset == "EUR" {
		// The fiat leg of the exchange; the crypto row carries the event.
		return nil, nil
	}

	amount, err := requireDecimal(rec, "Amount")
	if err != nil {
		return nil, err
	}
	if amount.IsZero() {
		return nil, &Error{RefID: rec.RefID, Field: "Amount", Reason: "zero quantity"}
	}
	fiatExFees, err := requireDecimal(rec, "Fiat amount (ex. fees)")
	if err != nil {
		return nil, err
	}
	fee, err := optionalDecimal(rec, "Fee")
	if err != nil {
		return nil, err
	}

	startedDate, err := requireField(rec, "Started Date")
	if err != nil {
		return nil, err
	}
	ts, err := parseTimestamp(rec, "Started Date", startedDate)
	if err != nil {
		return nil, err
	}

	action := models.ActionBuy
	if amount.IsNegative() {
		action = models.ActionSell
	}
	priceEUR := fiatExFees.Abs().Div(amount.Abs())

	return []models.Transaction{{
		ID:          "revolut_" + rec.RefID,
		Timestamp:   ts,
		Exchange:    rec.Exchange,
		Channel:     rec.Channel,
		Asset:       asset,
		Action:      action,
		Quantity:    amount,
		PriceEUR:    priceEUR,
		Fee:         fee.Abs(),
		FeeAsset:    "EUR",
		Origin:      rec.Origin,
		RefID:       rec.RefID,
		IsTaxable:   true,
		Description: fmt.Sprintf("Revolut %s %s %s", action, amount.Abs().String(), asset),
	}}, nil
}
