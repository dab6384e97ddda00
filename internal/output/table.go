package output

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/rohankatakam/addrlinks/internal/filter"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// TableFormatter prints aligned columns (default on terminals)
type TableFormatter struct {
	// Now is used for relative build times; zero means time.Now
	Now func() time.Time
}

func (f *TableFormatter) FormatReport(r *Report, w io.Writer) error {
	s := r.Summary
	fmt.Fprintf(w, "Addresses shown: %s   Contributors shown: %s   Links: %s\n",
		humanize.Comma(int64(s.AddressesShown)),
		humanize.Comma(int64(s.ContributorsShown)),
		humanize.Comma(int64(s.EdgesShown)))
	fmt.Fprintf(w, "Filters: %s\n\n", describeParams(r.Params))

	if len(s.Top) == 0 {
		fmt.Fprintln(w, "No shared addresses match these filters.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tADDRESS\tCONTRIBUTORS\tLINKS\tTX\tTOTAL")
	for i, row := range s.Top {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%d\t%d\t%s\n",
			i+1, row.Label, row.Contributors, row.Links, row.TxCount, filter.FormatAmount(row.TotalAmount))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Edges) == 0 {
		return nil
	}
	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONTRIBUTOR\tTYPE\tADDRESS\tTX\tTOTAL")
	for _, e := range r.Edges {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			e.Contributor, e.ContribType, e.Address, e.TxCount, filter.FormatAmount(e.TotalAmount))
	}
	return tw.Flush()
}

func (f *TableFormatter) FormatManifest(m *models.BuildManifest, w io.Writer) error {
	now := time.Now
	if f.Now != nil {
		now = f.Now
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Run:\t%s\n", m.RunID)
	if !m.BuiltAt.IsZero() {
		fmt.Fprintf(tw, "Built:\t%s (%s)\n",
			m.BuiltAt.Format(time.RFC3339), humanize.RelTime(m.BuiltAt, now(), "ago", "from now"))
	}
	fmt.Fprintf(tw, "Input:\t%s\n", m.InputPath)
	fmt.Fprintf(tw, "Records:\t%s\n", humanize.Comma(int64(m.RecordCount)))
	fmt.Fprintf(tw, "Addresses:\t%s\n", humanize.Comma(int64(m.AddressCount)))
	fmt.Fprintf(tw, "Contributors:\t%s\n", humanize.Comma(int64(m.ContributorCount)))
	fmt.Fprintf(tw, "Edges:\t%s\n", humanize.Comma(int64(m.EdgeCount)))
	fmt.Fprintf(tw, "Min contributors at address:\t%d\n", m.MinContributorsAtAddress)
	return tw.Flush()
}

func describeParams(p filter.Params) string {
	parts := []string{fmt.Sprintf("min contributors %d", p.MinContributorsPerAddress)}
	if len(p.ContributorTypes) > 0 {
		parts = append(parts, "types "+strings.Join(p.ContributorTypes, ", "))
	} else {
		parts = append(parts, "all types")
	}
	if p.AmountRange != nil {
		parts = append(parts, fmt.Sprintf("amount %s to %s",
			filter.FormatAmount(p.AmountRange.Min), filter.FormatAmount(p.AmountRange.Max)))
	}
	return strings.Join(parts, "; ")
}
