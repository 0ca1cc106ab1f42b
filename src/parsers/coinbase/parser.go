package coinbase

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/utils"
)

// RequiredColumns identifies a Coinbase transaction export.
var RequiredColumns = []string{"Timestamp", "Transaction Type", "Asset", "Quantity Transacted"}

type CoinbaseParser struct{}

func NewParser() *CoinbaseParser {
	return &CoinbaseParser{}
}

func (p *CoinbaseParser) Parse(file io.Reader) ([]models.RawRecord, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	var records []models.RawRecord
	seen := make(map[string]int)
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

		key := utils.HashID(row...)
		seen[key]++
		records = append(records, models.RawRecord{
			Origin:   models.OriginFile,
			Exchange: "coinbase",
			Channel:  "spot",
			RefID:    utils.HashID("coinbase", key, strconv.Itoa(seen[key])),
			Fields:   fields,
		})
	}
	return records, nil
}
