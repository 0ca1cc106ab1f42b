package parsers

import (
	"io"

	"github.com/username/cryptofolio/src/models"
)

// Parser reads one exchange's file export into raw records tagged with
// origin=file and a stable per-row reference id. Parsing extracts fields
// verbatim; interpretation belongs to the normalizer.
type Parser interface {
	Parse(file io.Reader) ([]models.RawRecord, error)
}
