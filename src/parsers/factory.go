package parsers

import (
	"fmt"

	"github.com/username/cryptofolio/src/parsers/coinbase"
	"github.com/username/cryptofolio/src/parsers/kraken"
	"github.com/username/cryptofolio/src/parsers/revolut"
)

func GetParser(source string) (Parser, error) {
	switch source {
	case "revolut":
		return revolut.NewParser(), nil
	case "coinbase":
		return coinbase.NewParser(), nil
	case "kraken":
		return kraken.NewParser(), nil
	default:
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
}

// DetectSource guesses the exchange from a file's header row by its required
// column set.
func DetectSource(header []string) (string, error) {
	have := make(map[string]bool, len(header))
	for _, col := range header {
		have[col] = true
	}

	candidates := []struct {
		source   string
		required []string
	}{
		{"revolut", revolut.RequiredColumns},
		{"coinbase", coinbase.RequiredColumns},
		{"kraken", kraken.RequiredColumns},
	}
	for _, c := range candidates {
		all := true
		for _, col := range c.required {
			if !have[col] {
				all = false
				break
			}
		}
		if all {
			return c.source, nil
		}
	}
	return "", fmt.Errorf("unsupported exchange format: header %v", header)
}
