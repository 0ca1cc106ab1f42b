package normalizer

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/models"
)

// convertNotesRe matches Coinbase conversion notes, e.g.
// "Converted 0.5 BTC to 10.25 ETH".
var convertNotesRe = regexp.MustCompile(`(?i)converted\s+([\d.]+)\s+(\S+)\s+to\s+([\d.]+)\s+(\S+)`)

func (n *Normalizer) normalizeCoinbase(rec models.RawRecord) ([]models.Transaction, error) {
	txType, err := requireField(rec, "Transaction Type")
	if err != nil {
		return nil, err
	}
	asset, err := requireField(rec, "Asset")
	if err != nil {
		return nil, err
	}
	qty, err := requireDecimal(rec, "Quantity Transacted")
	if err != nil {
		return nil, err
	}
	if qty.IsZero() {
		return nil, &Error{RefID: rec.RefID, Field: "Quantity Transacted", Reason: "zero quantity"}
	}
	timestamp, err := requireField(rec, "Timestamp")
	if err != nil {
		return nil, err
	}
	ts, err := parseTimestamp(rec, "Timestamp", timestamp)
	if err != nil {
		return nil, err
	}
	fee, err := optionalDecimal(rec, "EUR Fees")
	if err != nil {
		return nil, err
	}

	switch txType {
	case "Buy", "Sell":
		price, pErr := requireDecimal(rec, "EUR Spot Price at Transaction")
		if pErr != nil {
			return nil, pErr
		}
		quantity := qty.Abs()
		action := models.ActionBuy
		if txType == "Sell" {
			quantity = quantity.Neg()
			action = models.ActionSell
		}
		return []models.Transaction{{
			ID:          "coinbase_" + rec.RefID,
			Timestamp:   ts,
			Exchange:    rec.Exchange,
			Channel:     rec.Channel,
			Asset:       asset,
			Action:      action,
			Quantity:    quantity,
			PriceEUR:    price,
			Fee:         fee.Abs(),
			FeeAsset:    "EUR",
			Origin:      rec.Origin,
			RefID:       rec.RefID,
			IsTaxable:   true,
			Description: rec.Fields["Notes"],
		}}, nil

	case "Convert":
		notes, nErr := requireField(rec, "Notes")
		if nErr != nil {
			return nil, nErr
		}
		m := convertNotesRe.FindStringSubmatch(notes)
		if m == nil {
			return nil, &Error{RefID: rec.RefID, Field: "Notes", Reason: "cannot parse conversion: " + notes}
		}
		soldQty, dErr := decimal.NewFromString(m[1])
		if dErr != nil || soldQty.IsZero() {
			return nil, &Error{RefID: rec.RefID, Field: "Notes", Reason: "bad sold quantity: " + m[1]}
		}
		boughtQty, dErr := decimal.NewFromString(m[3])
		if dErr != nil || boughtQty.IsZero() {
			return nil, &Error{RefID: rec.RefID, Field: "Notes", Reason: "bad bought quantity: " + m[3]}
		}
		price, pErr := requireDecimal(rec, "EUR Spot Price at Transaction")
		if pErr != nil {
			return nil, pErr
		}
		valueEUR := soldQty.Mul(price)
		return swap(rec, ts, m[2], soldQty, m[4], boughtQty, valueEUR, fee.Abs(), notes), nil

	case "Send", "Receive":
		quantity := qty.Abs()
		if txType == "Send" {
			quantity = quantity.Neg()
		}
		return []models.Transaction{{
			ID:          "coinbase_" + rec.RefID,
			Timestamp:   ts,
			Exchange:    rec.Exchange,
			Channel:     rec.Channel,
			Asset:       asset,
			Action:      models.ActionTransfer,
			Quantity:    quantity,
			PriceEUR:    decimal.Zero,
			Fee:         fee.Abs(),
			FeeAsset:    "EUR",
			Origin:      rec.Origin,
			RefID:       rec.RefID,
			IsTaxable:   false,
			Description: fmt.Sprintf("Coinbase %s %s %s", txType, qty.Abs().String(), asset),
		}}, nil

	default:
		return nil, &Error{RefID: rec.RefID, Field: "Transaction Type", Reason: "unmapped action " + txType}
	}
}
