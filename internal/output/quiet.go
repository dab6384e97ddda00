package output

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"

	"github.com/rohankatakam/addrlinks/internal/models"
)

// QuietFormatter prints a one-line summary, for scripts and hooks
type QuietFormatter struct{}

func (f *QuietFormatter) FormatReport(r *Report, w io.Writer) error {
	s := r.Summary
	_, err := fmt.Fprintf(w, "%s addresses, %s contributors, %s links\n",
		humanize.Comma(int64(s.AddressesShown)),
		humanize.Comma(int64(s.ContributorsShown)),
		humanize.Comma(int64(s.EdgesShown)))
	return err
}

func (f *QuietFormatter) FormatManifest(m *models.BuildManifest, w io.Writer) error {
	_, err := fmt.Fprintf(w, "built %s addresses, %s contributors, %s edges from %s records\n",
		humanize.Comma(int64(m.AddressCount)),
		humanize.Comma(int64(m.ContributorCount)),
		humanize.Comma(int64(m.EdgeCount)),
		humanize.Comma(int64(m.RecordCount)))
	return err
}
