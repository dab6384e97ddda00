package output

import (
	"encoding/json"
	"io"

	"github.com/rohankatakam/addrlinks/internal/models"
)

// JSONFormatter writes results as JSON
type JSONFormatter struct {
	Indent bool
}

func (f *JSONFormatter) FormatReport(r *Report, w io.Writer) error {
	return f.encode(r, w)
}

func (f *JSONFormatter) FormatManifest(m *models.BuildManifest, w io.Writer) error {
	return f.encode(m, w)
}

func (f *JSONFormatter) encode(v interface{}, w io.Writer) error {
	enc := json.NewEncoder(w)
	if f.Indent {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
