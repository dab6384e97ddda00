package output

import (
	"io"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// Formatter renders command results
type Formatter interface {
	FormatReport(r *Report, w io.Writer) error
	FormatManifest(m *models.BuildManifest, w io.Writer) error
}

// Format selects a Formatter
type Format string

const (
	FormatQuiet Format = "quiet" // one-line summary
	FormatTable Format = "table" // aligned columns for terminals
	FormatJSON  Format = "json"  // machine-readable
	FormatCSV   Format = "csv"   // spreadsheet friendly
)

// FormatEnv overrides the detected default format
const FormatEnv = "ADDRLINKS_FORMAT"

// ParseFormat validates a user supplied format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatQuiet, FormatTable, FormatJSON, FormatCSV:
		return f, nil
	default:
		return "", errors.ValidationErrorf("unknown output format %q (want quiet, table, json or csv)", s)
	}
}

// NewFormatter creates the formatter for f, falling back to table
func NewFormatter(f Format) Formatter {
	switch f {
	case FormatQuiet:
		return &QuietFormatter{}
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatCSV:
		return &CSVFormatter{}
	default:
		return &TableFormatter{}
	}
}

// DefaultFormat picks table for interactive terminals and json otherwise.
// FormatEnv wins when it names a valid format.
func DefaultFormat(out *os.File) Format {
	if env := os.Getenv(FormatEnv); env != "" {
		if f, err := ParseFormat(env); err == nil {
			return f
		}
	}
	if out != nil && term.IsTerminal(int(out.Fd())) {
		return FormatTable
	}
	return FormatJSON
}
