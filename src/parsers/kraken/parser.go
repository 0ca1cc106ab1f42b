package kraken

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/utils"
)

// RequiredColumns identifies a Kraken trades export.
var RequiredColumns = []string{"txid", "pair", "time", "type", "price", "vol"}

type KrakenParser struct{}

func NewParser() *KrakenParser {
	return &KrakenParser{}
}

func (p *KrakenParser) Parse(file io.Reader) ([]models.RawRecord, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records []models.RawRecord
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV record: %w", err)
		}

		fields := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(row) {
				fields[col] = row[i]
			}
		}

		// Kraken exports carry their own stable trade id.
		txid := fields["txid"]
		if txid == "" {
			txid = utils.HashID(row...)
		}
		records = append(records, models.RawRecord{
			Origin:   models.OriginFile,
			Exchange: "kraken",
			Channel:  "spot",
			RefID:    "kraken_" + txid,
			Fields:   fields,
		})
	}
	return records, nil
}
