package normalizer

import (
	"errors"
	"testing"

	"github.com/username/cryptofolio/src/models"
)

func coinbaseRow(refID string, fields map[string]string) models.RawRecord {
	base := map[string]string{
		"Timestamp":                     "2023-05-01T12:00:00Z",
		"Transaction Type":              "Buy",
		"Asset":                         "BTC",
		"Quantity Transacted":           "0.5",
		"EUR Spot Price at Transaction": "25000",
		"EUR Fees":                      "10",
	}
	for k, v := range fields {
		base[k] = v
	}
	return models.RawRecord{
		Origin:   models.OriginFile,
		Exchange: "coinbase",
		Channel:  "export",
		RefID:    refID,
		Fields:   base,
	}
}

func TestNormalizeCoinbaseBuy(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(coinbaseRow("row1", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := txs[0]
	if tx.Action != models.ActionBuy || !tx.Quantity.Equal(dec("0.5")) {
		t.Errorf("want buy 0.5, got %s %s", tx.Action, tx.Quantity)
	}
	if !tx.PriceEUR.Equal(dec("25000")) || !tx.Fee.Equal(dec("10")) {
		t.Errorf("want 25000 / fee 10, got %s / %s", tx.PriceEUR, tx.Fee)
	}
}

func TestNormalizeCoinbaseSellNegativeQuantity(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(coinbaseRow("row2", map[string]string{
		"Transaction Type": "Sell",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !txs[0].Quantity.Equal(dec("-0.5")) {
		t.Errorf("sell quantity must be negative, got %s", txs[0].Quantity)
	}
}

func TestNormalizeCoinbaseConvertDecomposes(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(coinbaseRow("row3", map[string]string{
		"Transaction Type": "Convert",
		"Notes":            "Converted 0.5 BTC to 10.25 ETH",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 2 {
		t.Fatalf("a conversion must decompose into 2 transactions, got %d", len(txs))
	}
	disposal, acquisition := txs[0], txs[1]
	if disposal.Asset != "BTC" || !disposal.Quantity.Equal(dec("-0.5")) {
		t.Errorf("disposal leg: want -0.5 BTC, got %s %s", disposal.Quantity, disposal.Asset)
	}
	if acquisition.Asset != "ETH" || !acquisition.Quantity.Equal(dec("10.25")) {
		t.Errorf("acquisition leg: want 10.25 ETH, got %s %s", acquisition.Quantity, acquisition.Asset)
	}
	if disposal.ValueEUR().Sub(acquisition.ValueEUR()).Abs().GreaterThan(dec("0.000001")) {
		t.Errorf("legs must carry equal EUR value, got %s vs %s", disposal.ValueEUR(), acquisition.ValueEUR())
	}
}

func TestNormalizeCoinbaseSendNotTaxable(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(coinbaseRow("row4", map[string]string{
		"Transaction Type": "Send",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := txs[0]
	if tx.IsTaxable || tx.Action != models.ActionTransfer {
		t.Errorf("a send is a non-taxable transfer, got %s taxable=%v", tx.Action, tx.IsTaxable)
	}
	if !tx.Quantity.IsNegative() {
		t.Errorf("send quantity must be negative, got %s", tx.Quantity)
	}
}

func TestNormalizeCoinbaseUnknownTypeQuarantinable(t *testing.T) {
	n := New(testRates())

	_, err := n.Normalize(coinbaseRow("row5", map[string]string{
		"Transaction Type": "Staking Income",
	}))
	var normErr *Error
	if !errors.As(err, &normErr) {
		t.Fatalf("expected a normalization error, got %v", err)
	}
	if normErr.Field != "Transaction Type" {
		t.Errorf("error must name the type field, got %q", normErr.Field)
	}
}

func TestNormalizeRevolutSkipsNonExchangeRows(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(models.RawRecord{
		Origin:   models.OriginFile,
		Exchange: "revolut",
		RefID:    "rev1",
		Fields:   map[string]string{"Type": "CARD_PAYMENT"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 0 {
		t.Errorf("non-exchange rows yield no transactions, got %d", len(txs))
	}
}

func TestNormalizeRevolutExchange(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(models.RawRecord{
		Origin:   models.OriginFile,
		Exchange: "revolut",
		RefID:    "rev2",
		Fields: map[string]string{
			"Type":                   "EXCHANGE",
			"Currency":               "BTC",
			"Amount":                 "0.1",
			"Fiat amount (ex. fees)": "-2500",
			"Fee":                    "5",
			"Started Date":           "2023-05-01 12:00:00",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := txs[0]
	if tx.Action != models.ActionBuy || !tx.Quantity.Equal(dec("0.1")) {
		t.Errorf("want buy 0.1, got %s %s", tx.Action, tx.Quantity)
	}
	if !tx.PriceEUR.Equal(dec("25000")) {
		t.Errorf("price: want 25000, got %s", tx.PriceEUR)
	}
}

func TestNormalizeKrakenLegacyPairNames(t *testing.T) {
	n := New(testRates())

	txs, err := n.Normalize(models.RawRecord{
		Origin:   models.OriginFile,
		Exchange: "kraken",
		RefID:    "kraken_tx1",
		Fields: map[string]string{
			"pair":  "XXBTZEUR",
			"type":  "buy",
			"vol":   "0.25",
			"price": "24000",
			"fee":   "3",
			"time":  "1682942400.123",
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tx := txs[0]
	if tx.Asset != "BTC" {
		t.Errorf("XXBTZEUR must normalize to BTC, got %s", tx.Asset)
	}
	if !tx.Quantity.Equal(dec("0.25")) || !tx.PriceEUR.Equal(dec("24000")) {
		t.Errorf("want 0.25 @ 24000, got %s @ %s", tx.Quantity, tx.PriceEUR)
	}
}

func TestNormalizeKrakenNonEURPairRejected(t *testing.T) {
	n := New(testRates())

	_, err := n.Normalize(models.RawRecord{
		Origin:   models.OriginFile,
		Exchange: "kraken",
		RefID:    "kraken_tx2",
		Fields: map[string]string{
			"pair":  "XXBTZUSD",
			"type":  "buy",
			"vol":   "0.25",
			"price": "26000",
			"time":  "1682942400",
		},
	})
	var normErr *Error
	if !errors.As(err, &normErr) {
		t.Fatalf("expected a normalization error, got %v", err)
	}
	if normErr.Field != "pair" {
		t.Errorf("error must name the pair field, got %q", normErr.Field)
	}
}
