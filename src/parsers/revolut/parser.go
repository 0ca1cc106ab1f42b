package revolut

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/username/cryptofolio/src/models"
	"github.com/username/cryptofolio/src/utils"
)

// RequiredColumns identifies a Revolut crypto export.
var RequiredColumns = []string{"Type", "Product", "Started Date", "Amount", "Currency"}

type RevolutParser struct{}

func NewParser() *RevolutParser {
	return &RevolutParser{}
}

func (p *RevolutParser) Parse(file io.Reader) ([]models.RawRecord, error) {
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

		// Row content plus occurrence count keeps the reference id stable
		// across re-imports, including files with genuinely repeated rows.
		key := utils.HashID(row...)
		seen[key]++
		records = append(records, models.RawRecord{
			Origin:   models.OriginFile,
			Exchange: "revolut",
			Channel:  "spot",
			RefID:    utils.HashID("revolut", key, strconv.Itoa(seen[key])),
			Fields:   fields,
		})
	}
	return records, nil
}
