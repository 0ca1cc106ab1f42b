package normalizer

import (
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/cryptofolio/src/logger"
	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/rates"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testRates() *rates.Table {
	t := rates.Empty()
	day := time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)
	t.Add("USDT", day, dec("0.9"))
	t.Add("BTC", day, dec("25000"))
	t.Add("BNB", day, dec("280"))
	return t
}

func binanceTrade(refID, symbol string, fields map[string]string) models.RawRecord {
	base := map[string]string{
		"symbol":  symbol,
		"qty":     "1.0",
		"price":   "20000",
		"time":    strconv.FormatInt(time.Date(2023, 5, 1, 12, 0, 0, 0, time.UTC).UnixMilli(), 10),
		"isBuyer": "true",
	}
	for k, v := range fields {
		base[k] = v
	}
	return models.RawRecord{
		Origin:   models.OriginAPI,
		Exchange: "binance",
		Channel:  "spot/" + symbol,
		RefID:    refID,
		Fields:   base,
	}
}

func TestNormalizeBinanceEURTrade(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(binanceTrade("trade_1", "BTCEUR", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	tx := txs[0]
	if tx.Asset != "BTC" || tx.Action != models.ActionBuy {
		t.Errorf("want BTC buy, got %s %s", tx.Asset, tx.Action)
	}
	if !tx.Quantity.Equal(dec("1.0")) || !tx.PriceEUR.Equal(dec("20000")) {
		t.Errorf("want 1.0 @ 20000, got %s @ %s", tx.Quantity, tx.PriceEUR)
	}
	if !tx.IsTaxable {
		t.Error("a trade must be taxable")
	}
}

func TestNormalizeBinanceStablecoinQuoteConverted(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(binanceTrade("trade_2", "BTCUSDT", map[string]string{
		"isBuyer": "false",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := txs[0]
	if !tx.Quantity.Equal(dec("-1.0")) || tx.Action != models.ActionSell {
		t.Errorf("seller side must be a disposal, got %s %s", tx.Quantity, tx.Action)
	}
	// 20000 USDT at 0.9 EUR/USDT.
	if !tx.PriceEUR.Equal(dec("18000")) {
		t.Errorf("price: want 18000, got %s", tx.PriceEUR)
	}
}

func TestNormalizeBinanceCryptoQuoteSwap(t *testing.T) {
	n := New(testRates())

	// Sell 10 BNB for 0.1 BTC: disposal of BNB plus acquisition of BTC at
	// the same EUR value.
	txs, err := n.Normalize(binanceTrade("trade_3", "BNBBTC", map[string]string{
		"qty":     "10",
		"price":   "0.01",
		"isBuyer": "false",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("a swap must decompose into 2 transactions, got %d", len(txs))
	}

	disposal, acquisition := txs[0], txs[1]
	if disposal.Asset != "BNB" || !disposal.Quantity.Equal(dec("-10")) {
		t.Errorf("disposal leg: want -10 BNB, got %s %s", disposal.Quantity, disposal.Asset)
	}
	if acquisition.Asset != "BTC" || !acquisition.Quantity.Equal(dec("0.1")) {
		t.Errorf("acquisition leg: want 0.1 BTC, got %s %s", acquisition.Quantity, acquisition.Asset)
	}
	if disposal.RefID == acquisition.RefID {
		t.Error("swap legs must have distinct ref ids")
	}

	// 0.1 BTC at 25000 EUR/BTC on both legs.
	if !disposal.ValueEUR().Equal(dec("2500")) || !acquisition.ValueEUR().Equal(dec("2500")) {
		t.Errorf("legs must carry equal EUR value, got %s vs %s",
			disposal.ValueEUR(), acquisition.ValueEUR())
	}
	if !acquisition.Fee.IsZero() {
		t.Errorf("fee belongs to the disposal leg only, got %s", acquisition.Fee)
	}
}

func TestNormalizeBinanceDepositNotTaxable(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(models.RawRecord{
		Origin:   models.OriginAPI,
		Exchange: "binance",
		Channel:  "deposit",
		RefID:    "dep_1",
		Fields: map[string]string{
			"coin":       "BTC",
			"amount":     "0.5",
			"insertTime": strconv.FormatInt(time.Date(2023, 5, 1, 9, 0, 0, 0, time.UTC).UnixMilli(), 10),
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := txs[0]
	if tx.Action != models.ActionTransfer || tx.IsTaxable {
		t.Errorf("a deposit is a non-taxable transfer, got %s taxable=%v", tx.Action, tx.IsTaxable)
	}
	if !tx.Quantity.Equal(dec("0.5")) {
		t.Errorf("quantity: want 0.5, got %s", tx.Quantity)
	}
}

func TestNormalizeMissingFieldNamesField(t *testing.T) {
	n := New(testRates())

	rec := binanceTrade("trade_bad", "BTCEUR", nil)
	delete(rec.Fields, "qty")

	_, err := n.Normalize(rec)
	var normErr *Error
	if !errors.As(err, &normErr) {
		t.Fatalf("expected a normalization error, got %v", err)
	}
	if normErr.Field != "qty" {
		t.Errorf("error must name the offending field, got %q", normErr.Field)
	}
	if normErr.RefID != "trade_bad" {
		t.Errorf("error must carry the source ref id, got %q", normErr.RefID)
	}
}

func TestNormalizeZeroAmountsQuarantinable(t *testing.T) {
	n := New(testRates())

	cases := []struct {
		name   string
		symbol string
		fields map[string]string
		field  string
	}{
		{"zero qty crypto quote", "BNBBTC", map[string]string{"qty": "0", "price": "0.05"}, "qty"},
		{"zero price crypto quote", "BNBBTC", map[string]string{"qty": "10", "price": "0"}, "price"},
		{"zero qty cash quote", "BTCEUR", map[string]string{"qty": "0"}, "qty"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := n.Normalize(binanceTrade("trade_zero", c.symbol, c.fields))
			var normErr *Error
			if !errors.As(err, &normErr) {
				t.Fatalf("expected a normalization error, got %v", err)
			}
			if normErr.Field != c.field {
				t.Errorf("error must name the %s field, got %q", c.field, normErr.Field)
			}
		})
	}
}

func TestNormalizeMissingRateIsError(t *testing.T) {
	n := New(rates.Empty())

	// USDT quote with no rate available: the record must fail, never guess.
	_, err := n.Normalize(binanceTrade("trade_norate", "BTCUSDT", nil))
	var normErr *Error
	if !errors.As(err, &normErr) {
		t.Fatalf("expected a normalization error for missing rate, got %v", err)
	}
}

func TestNormalizeUnknownExchange(t *testing.T) {
	n := New(testRates())

	_, err := n.Normalize(models.RawRecord{Exchange: "unknown", RefID: "x"})
	var normErr *Error
	if !errors.As(err, &normErr) {
		t.Fatalf("expected a normalization error, got %v", err)
	}
}

func TestNormalizeDeterministic(t *testing.T) {
	n := New(testRates())
	rec := binanceTrade("trade_det", "BNBBTC", map[string]string{
		"qty": "10", "price": "0.01", "isBuyer": "false",
	})

	a, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := n.Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := range a {
		if a[i].ID != b[i].ID || !a[i].Quantity.Equal(b[i].Quantity) || !a[i].PriceEUR.Equal(b[i].PriceEUR) {
			t.Errorf("normalization must be pure, leg %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
