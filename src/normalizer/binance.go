package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/binance"
	"github.com/username/cryptofolio/src/models"
)

// Quote assets treated as cash equivalents: a trade against them is a plain
// buy or sell with the price converted into EUR. A trade against any other
// quote asset is an asset-for-asset swap.
var cashQuotes = []string{"EUR", "USDT", "BUSD", "USDC", "USD"}

// Crypto quote assets Binance lists pairs against, longest first so suffix
// matching is unambiguous.
var cryptoQuotes = []string{"USDT", "BUSD", "USDC", "BTC", "ETH", "BNB", "EUR", "USD"}

func splitSymbol(symbol string) (base, quote string, ok bool) {
	for _, q := range cryptoQuotes {
		if strings.HasSuffix(symbol, q) && len(symbol) > len(q) {
			return strings.TrimSuffix(symbol, q), q, true
		}
	}
	return "", "", false
}

func isCashQuote(asset string) bool {
	for _, q := range cashQuotes {
		if asset == q {
			return true
		}
	}
	return false
}

func (n *Normalizer) normalizeBinance(rec models.RawRecord) ([]models.Transaction, error) {
	switch {
	case strings.HasPrefix(rec.Channel, "spot/"):
		return n.normalizeBinanceTrade(rec)
	case rec.Channel == binance.ChannelDeposit:
		return n.normalizeBinanceTransfer(rec, false)
	case rec.Channel == binance.ChannelWithdrawal:
		return n.normalizeBinanceTransfer(rec, true)
	default:
		return nil, &Error{RefID: rec.RefID, Field: "channel", Reason: "unknown binance channel " + rec.Channel}
	}
}

func (n *Normalizer) normalizeBinanceTrade(rec models.RawRecord) ([]models.Transaction, error) {
	symbol, err := requireField(rec, "symbol")
	if err != nil {
		return nil, err
	}
	base, quote, ok := splitSymbol(symbol)
	if !ok {
		return nil, &Error{RefID: rec.RefID, Field: "symbol", Reason: "cannot split pair " + symbol}
	}

	qty, err := requireDecimal(rec, "qty")
	if err != nil {
		return nil, err
	}
	if qty.IsZero() {
		return nil, &Error{RefID: rec.RefID, Field: "qty", Reason: "zero quantity"}
	}
	price, err := requireDecimal(rec, "price")
	if err != nil {
		return nil, err
	}
	if price.IsZero() {
		return nil, &Error{RefID: rec.RefID, Field: "price", Reason: "zero price"}
	}
	tsMillis, err := requireField(rec, "time")
	if err != nil {
		return nil, err
	}
	millis, convErr := strconv.ParseInt(tsMillis, 10, 64)
	if convErr != nil {
		return nil, &Error{RefID: rec.RefID, Field: "time", Reason: "not a millisecond timestamp: " + tsMillis}
	}
	ts := time.UnixMilli(millis).UTC()

	isBuyer := rec.Fields["isBuyer"] == "true"

	commission, err := optionalDecimal(rec, "commission")
	if err != nil {
		return nil, err
	}
	feeEUR := decimal.Zero
	if commission.IsPositive() {
		feeAsset := rec.Fields["commissionAsset"]
		feeRate, rateErr := n.rates.ToEUR(feeAsset, ts)
		if rateErr != nil {
			return nil, &Error{RefID: rec.RefID, Field: "commissionAsset", Reason: rateErr.Error()}
		}
		feeEUR = commission.Mul(feeRate)
	}

	quoteRate, rateErr := n.rates.ToEUR(quote, ts)
	if isCashQuote(quote) {
		if rateErr != nil {
			return nil, &Error{RefID: rec.RefID, Field: "symbol", Reason: rateErr.Error()}
		}
		priceEUR := price.Mul(quoteRate)
		quantity := qty
		action := models.ActionBuy
		if !isBuyer {
			quantity = qty.Neg()
			action = models.ActionSell
		}
		return []models.Transaction{{
			ID:          "binance_" + rec.RefID,
			Timestamp:   ts,
			Exchange:    rec.Exchange,
			Channel:     rec.Channel,
			Asset:       base,
			Action:      action,
			Quantity:    quantity,
			PriceEUR:    priceEUR,
			Fee:         feeEUR,
			FeeAsset:    "EUR",
			Origin:      rec.Origin,
			RefID:       rec.RefID,
			IsTaxable:   true,
			Description: fmt.Sprintf("Binance %s %s %s", action, qty.String(), base),
		}}, nil
	}

	// Crypto-quoted pair: decompose into two legs of equal EUR value.
	if rateErr != nil {
		return nil, &Error{RefID: rec.RefID, Field: "symbol", Reason: rateErr.Error()}
	}
	quoteQty := qty.Mul(price)
	valueEUR := quoteQty.Mul(quoteRate)
	description := fmt.Sprintf("Binance swap %s", symbol)
	if isBuyer {
		// Bought base, paid in quote: dispose quote, acquire base.
		return swap(rec, ts, quote, quoteQty, base, qty, valueEUR, feeEUR, description), nil
	}
	// Sold base for quote: dispose base, acquire quote.
	return swap(rec, ts, base, qty, quote, quoteQty, valueEUR, feeEUR, description), nil
}

func (n *Normalizer) normalizeBinanceTransfer(rec models.RawRecord, withdrawal bool) ([]models.Transaction, error) {
	asset, err := requireField(rec, "coin")
	if err != nil {
		return nil, err
	}
	amount, err := requireDecimal(rec, "amount")
	if err != nil {
		return nil, err
	}

	var ts time.Time
	if withdrawal {
		applyTime, fErr := requireField(rec, "applyTime")
		if fErr != nil {
			return nil, fErr
		}
		ts, err = parseTimestamp(rec, "applyTime", strings.Replace(applyTime, "Z", "", 1))
		if err != nil {
			return nil, err
		}
	} else {
		insertTime, fErr := requireField(rec, "insertTime")
		if fErr != nil {
			return nil, fErr
		}
		millis, convErr := strconv.ParseInt(insertTime, 10, 64)
		if convErr != nil {
			return nil, &Error{RefID: rec.RefID, Field: "insertTime", Reason: "not a millisecond timestamp: " + insertTime}
		}
		ts = time.UnixMilli(millis).UTC()
	}

	quantity := amount
	verb := "deposit"
	fee := decimal.Zero
	if withdrawal {
		quantity = amount.Neg()
		verb = "withdrawal"
		fee, err = optionalDecimal(rec, "transactionFee")
		if err != nil {
			return nil, err
		}
	}

	// Internal transfers move custody, not ownership: normalized for audit
	// completeness, excluded from matching.
	return []models.Transaction{{
		ID:          fmt.Sprintf("binance_%s", rec.RefID),
		Timestamp:   ts,
		Exchange:    rec.Exchange,
		Channel:     rec.Channel,
		Asset:       asset,
		Action:      models.ActionTransfer,
		Quantity:    quantity,
		PriceEUR:    decimal.Zero,
		Fee:         fee,
		FeeAsset:    asset,
		Origin:      rec.Origin,
		RefID:       rec.RefID,
		IsTaxable:   false,
		Description: fmt.Sprintf("Binance %s %s %s", verb, amount.String(), asset),
	}}, nil
}
