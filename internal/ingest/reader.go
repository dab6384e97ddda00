package ingest

import (
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"io"
	"os"
	"strings"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/logging"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// Input column names
const (
	ColContributorName = "Contributor Name"
	ColContributorType = "Contributor Type"
	ColFullAddress     = "full_address"
	ColAmount          = "Amount"
	ColDate            = "Date"
	ColGroupID         = "group_id"
)

// RequiredColumns must be present in every input table
var RequiredColumns = []string{ColContributorName, ColContributorType, ColFullAddress}

// Batch is one fully parsed input file
type Batch struct {
	Path        string
	Fingerprint string // sha256 of the raw file bytes
	Records     []models.ContributionRecord
}

// ReadFile parses the contribution table at path. A missing file is an
// InputNotFoundError; any bad row fails the whole read.
func ReadFile(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.InputNotFoundError(path, "set build.input_path or pass --input")
		}
		return nil, errors.FileSystemErrorf(err, "open input %s", path)
	}
	defer f.Close()

	h := sha256.New()
	records, err := Read(io.TeeReader(f, h))
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.WithContext("path", path)
		}
		return nil, err
	}

	batch := &Batch{
		Path:        path,
		Fingerprint: hex.EncodeToString(h.Sum(nil)),
		Records:     records,
	}
	logging.Component("ingest").Info("input parsed",
		"path", path, "records", len(records), "fingerprint", batch.Fingerprint[:12])
	return batch, nil
}

// FingerprintFile hashes the file at path the same way ReadFile does, so
// the result can be compared with a build manifest
func FingerprintFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.InputNotFoundError(path, "set build.input_path or pass --input")
		}
		return "", errors.FileSystemErrorf(err, "open input %s", path)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.FileSystemErrorf(err, "read input %s", path)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// columnIndex maps header names to positions; -1 means absent
type columnIndex struct {
	name, ctype, address, amount, date, groupID int
}

func indexHeader(header []string) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if _, dup := pos[h]; !dup {
			pos[h] = i
		}
	}

	for _, col := range RequiredColumns {
		if _, ok := pos[col]; !ok {
			return columnIndex{}, errors.MissingFieldError(col)
		}
	}

	lookup := func(col string) int {
		if i, ok := pos[col]; ok {
			return i
		}
		return -1
	}
	return columnIndex{
		name:    lookup(ColContributorName),
		ctype:   lookup(ColContributorType),
		address: lookup(ColFullAddress),
		amount:  lookup(ColAmount),
		date:    lookup(ColDate),
		groupID: lookup(ColGroupID),
	}, nil
}

// Read parses a contribution table from r
func Read(r io.Reader) ([]models.ContributionRecord, error) {
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.MissingFieldError(ColContributorName).
			WithContext("reason", "empty input, no header row")
	}
	if err != nil {
		return nil, errors.DataFormatError(0, "header", "", err)
	}

	idx, err := indexHeader(header)
	if err != nil {
		return nil, err
	}

	var records []models.ContributionRecord
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.DataFormatError(row, "", "", err)
		}

		rec, err := parseRow(row, fields, idx)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

func field(fields []string, i int) string {
	if i < 0 || i >= len(fields) {
		return ""
	}
	return fields[i]
}

func parseRow(row int, fields []string, idx columnIndex) (models.ContributionRecord, error) {
	rec := models.ContributionRecord{
		Row:             row,
		ContributorName: field(fields, idx.name),
		ContributorType: field(fields, idx.ctype),
		FullAddress:     field(fields, idx.address),
		GroupID:         strings.TrimSpace(field(fields, idx.groupID)),
	}

	if idx.amount >= 0 {
		raw := field(fields, idx.amount)
		amount, err := ParseAmount(raw)
		if err != nil {
			return rec, errors.DataFormatError(row, ColAmount, raw, err)
		}
		rec.Amount = amount
	}

	if err := ValidateRecord(rec); err != nil {
		return rec, err
	}

	if idx.date >= 0 {
		rec.Date = ParseDate(field(fields, idx.date))
	}

	return rec, nil
}

// ValidateRecord checks that the grouping fields are present. Values are
// kept verbatim since grouping is exact string equality.
func ValidateRecord(rec models.ContributionRecord) error {
	switch {
	case strings.TrimSpace(rec.ContributorName) == "":
		return errors.MissingValueError(rec.Row, ColContributorName)
	case strings.TrimSpace(rec.ContributorType) == "":
		return errors.MissingValueError(rec.Row, ColContributorType)
	case strings.TrimSpace(rec.FullAddress) == "":
		return errors.MissingValueError(rec.Row, ColFullAddress)
	}
	return nil
}
