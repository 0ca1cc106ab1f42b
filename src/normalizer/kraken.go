package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/username/cryptofolio/src/models"
)

func (n *Normalizer) normalizeKraken(rec models.RawRecord) ([]models.Transaction, error) {
	pair, err := requireField(rec, "pair")
	if err != nil {
		return nil, err
	}
	asset, ok := krakenPairToAsset(pair)
	if !ok {
		return nil, &Error{RefID: rec.RefID, Field: "pair", Reason: "unsupported pair " + pair + " (only EUR-quoted pairs)"}
	}

	txType, err := requireField(rec, "type")
	if err != nil {
		return nil, err
	}
	vol, err := requireDecimal(rec, "vol")
	if err != nil {
		return nil, err
	}
	price, err := requireDecimal(rec, "price")
	if err != nil {
		return nil, err
	}
	fee, err := optionalDecimal(rec, "fee")
	if err != nil {
		return nil, err
	}

	rawTime, err := requireField(rec, "time")
	if err != nil {
		return nil, err
	}
	var ts time.Time
	if seconds, convErr := strconv.ParseFloat(rawTime, 64); convErr == nil {
		ts = time.Unix(int64(seconds), 0).UTC()
	} else if ts, err = parseTimestamp(rec, "time", rawTime); err != nil {
		return nil, err
	}

	var action string
	quantity := vol.Abs()
	switch strings.ToLower(txType) {
	case "buy":
		action = models.ActionBuy
	case "sell":
		action = models.ActionSell
		quantity = quantity.Neg()
	default:
		return nil, &Error{RefID: rec.RefID, Field: "type", Reason: "unmapped action " + txType}
	}

	return []models.Transaction{{
		ID:          rec.RefID, // kraken ref ids already carry the exchange prefix
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
		Description: fmt.Sprintf("Kraken %s %s %s", action, vol.Abs().String(), asset),
	}}, nil
}

// krakenPairToAsset strips the EUR quote and Kraken's legacy X/Z prefixes
// from a pair name, e.g. XXBTZEUR -> BTC, ETHEUR -> ETH.
func krakenPairToAsset(pair string) (string, bool) {
	base := pair
	switch {
	case strings.HasSuffix(base, "ZEUR"):
		base = strings.TrimSuffix(base, "ZEUR")
	case strings.HasSuffix(base, "EUR"):
		base = strings.TrimSuffix(base, "EUR")
	default:
		return "", false
	}
	if len(base) == 4 && strings.HasPrefix(base, "X") {
		base = strings.TrimPrefix(base, "X")
	}
	if base == "XBT" {
		base = "BTC"
	}
	return base, base != ""
}
