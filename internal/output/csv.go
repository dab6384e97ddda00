package output

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rohankatakam/addrlinks/internal/models"
)

// CSVFormatter writes one table: the edge rows when the report has them,
// otherwise the ranked addresses
type CSVFormatter struct{}

func (f *CSVFormatter) FormatReport(r *Report, w io.Writer) error {
	cw := csv.NewWriter(w)
	if len(r.Edges) > 0 {
		cw.Write([]string{"contributor", "contrib_type", "address", "tx_count", "total_amount"})
		for _, e := range r.Edges {
			cw.Write([]string{e.Contributor, e.ContribType, e.Address,
				strconv.Itoa(e.TxCount), e.TotalAmount.String()})
		}
	} else {
		cw.Write([]string{"rank", "address", "contributors", "links", "tx_count", "total_amount"})
		for i, row := range r.Summary.Top {
			cw.Write([]string{strconv.Itoa(i + 1), row.Label, strconv.Itoa(row.Contributors),
				strconv.Itoa(row.Links), strconv.Itoa(row.TxCount), row.TotalAmount.String()})
		}
	}
	cw.Flush()
	return cw.Error()
}

func (f *CSVFormatter) FormatManifest(m *models.BuildManifest, w io.Writer) error {
	cw := csv.NewWriter(w)
	cw.WriteAll([][]string{
		{"key", "value"},
		{"run_id", m.RunID},
		{"built_at", m.BuiltAt.UTC().Format(time.RFC3339)},
		{"input_path", m.InputPath},
		{"input_fingerprint", m.InputFingerprint},
		{"min_contributors_at_address", strconv.Itoa(m.MinContributorsAtAddress)},
		{"record_count", strconv.Itoa(m.RecordCount)},
		{"address_count", strconv.Itoa(m.AddressCount)},
		{"contributor_count", strconv.Itoa(m.ContributorCount)},
		{"edge_count", strconv.Itoa(m.EdgeCount)},
	})
	return cw.Error()
}
