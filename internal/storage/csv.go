package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// ManifestFile is written next to the tables after every successful save
const ManifestFile = "manifest.yaml"

var (
	nodeHeader      = []string{"id", "label", "type", "contrib_type", "total_amount", "tx_count"}
	edgeHeader      = []string{"source", "target", "edge_type", "address", "tx_count", "total_amount"}
	topSharedHeader = []string{"group_id", "full_address", "contributors", "total_amount", "tx_count"}
)

// loadAttempts bounds how often LoadDataset retries when a save lands
// while it is reading
const loadAttempts = 3

// CSVStore keeps the three tables as CSV files in one directory
type CSVStore struct {
	dir    string
	logger *logrus.Logger
	rename func(oldpath, newpath string) error
}

// NewCSVStore creates a CSV directory store
func NewCSVStore(dir string, logger *logrus.Logger) (*CSVStore, error) {
	if dir == "" {
		return nil, errors.ConfigErrorf("csv store needs an output directory")
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &CSVStore{dir: dir, logger: logger, rename: os.Rename}, nil
}

// Location returns the output directory
func (s *CSVStore) Location() string { return s.dir }

// Close is a no-op for files
func (s *CSVStore) Close() error { return nil }

func (s *CSVStore) tablePath(table string) string {
	return filepath.Join(s.dir, table+".csv")
}

// SaveDataset writes every table and the manifest to temp files, then
// swaps them in together. If any swap fails the files already swapped are
// rolled back, so the directory keeps the old tables.
func (s *CSVStore) SaveDataset(ctx context.Context, ds *models.Dataset) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return errors.FileSystemErrorf(err, "create output directory %s", s.dir)
	}

	tables := []struct {
		name  string
		write func(w *csv.Writer) error
	}{
		{TableNodes, func(w *csv.Writer) error { return writeNodes(w, ds.Nodes) }},
		{TableEdges, func(w *csv.Writer) error { return writeEdges(w, ds.Edges) }},
		{TableTopShared, func(w *csv.Writer) error { return writeTopShared(w, ds.TopShared) }},
	}

	var swaps []fileSwap
	discard := func() {
		for _, sw := range swaps {
			os.Remove(sw.tmp)
		}
	}

	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			discard()
			return err
		}
		tmp, err := writeTemp(s.dir, t.name, t.write)
		if err != nil {
			discard()
			return errors.StorageErrorf(err, "write %s table", t.name)
		}
		swaps = append(swaps, fileSwap{name: t.name, tmp: tmp, dst: s.tablePath(t.name)})
	}
	if ds.Manifest != nil {
		tmp, err := s.writeManifestTemp(ds.Manifest)
		if err != nil {
			discard()
			return err
		}
		swaps = append(swaps, fileSwap{name: "manifest", tmp: tmp, dst: filepath.Join(s.dir, ManifestFile)})
	}

	if err := s.commit(swaps); err != nil {
		discard()
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"dir":        s.dir,
		"nodes":      len(ds.Nodes),
		"edges":      len(ds.Edges),
		"top_shared": len(ds.TopShared),
	}).Info("tables written")
	return nil
}

// fileSwap moves tmp over dst, parking the previous dst at backup
type fileSwap struct {
	name   string
	tmp    string
	dst    string
	backup string
	parked bool // previous dst moved to backup
	placed bool // tmp moved to dst
}

// commit performs every swap or none of them
func (s *CSVStore) commit(swaps []fileSwap) error {
	for i := range swaps {
		fi, err := os.Lstat(swaps[i].dst)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return errors.FileSystemErrorf(err, "stat %s", swaps[i].dst)
		case !fi.Mode().IsRegular():
			return errors.StorageErrorf(fmt.Errorf("%s is not a regular file", swaps[i].dst),
				"replace %s table", swaps[i].name)
		default:
			swaps[i].backup = fmt.Sprintf("%s.bak-%s", swaps[i].dst, uuid.NewString()[:8])
		}
	}

	for i := range swaps {
		sw := &swaps[i]
		if sw.backup != "" {
			if err := s.rename(sw.dst, sw.backup); err != nil {
				s.rollback(swaps)
				return errors.StorageErrorf(err, "replace %s table", sw.name)
			}
			sw.parked = true
		}
		if err := s.rename(sw.tmp, sw.dst); err != nil {
			s.rollback(swaps)
			return errors.StorageErrorf(err, "replace %s table", sw.name)
		}
		sw.placed = true
	}

	for _, sw := range swaps {
		if sw.backup != "" {
			os.Remove(sw.backup)
		}
	}
	return nil
}

func (s *CSVStore) rollback(swaps []fileSwap) {
	for i := len(swaps) - 1; i >= 0; i-- {
		sw := swaps[i]
		if sw.placed && !sw.parked {
			os.Remove(sw.dst)
			continue
		}
		if sw.parked {
			if err := s.rename(sw.backup, sw.dst); err != nil {
				s.logger.WithError(err).WithField("table", sw.name).
					Error("could not restore previous table, copy left at " + sw.backup)
			}
		}
	}
}

func writeTemp(dir, table string, write func(w *csv.Writer) error) (string, error) {
	f, err := os.CreateTemp(dir, "."+table+"-*.csv")
	if err != nil {
		return "", err
	}
	w := csv.NewWriter(f)
	if err := write(w); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func writeNodes(w *csv.Writer, nodes []models.Node) error {
	if err := w.Write(nodeHeader); err != nil {
		return err
	}
	for _, n := range nodes {
		ctype := ""
		if n.ContribType != nil {
			ctype = *n.ContribType
		}
		if err := w.Write([]string{
			n.ID, n.Label, n.Type, ctype,
			n.TotalAmount.String(), strconv.Itoa(n.TxCount),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeEdges(w *csv.Writer, edges []models.Edge) error {
	if err := w.Write(edgeHeader); err != nil {
		return err
	}
	for _, e := range edges {
		if err := w.Write([]string{
			e.Source, e.Target, e.EdgeType, e.Address,
			strconv.Itoa(e.TxCount), e.TotalAmount.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func writeTopShared(w *csv.Writer, rows []models.TopSharedAddress) error {
	if err := w.Write(topSharedHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := w.Write([]string{
			r.GroupID, r.FullAddress, strconv.Itoa(r.Contributors),
			r.TotalAmount.String(), strconv.Itoa(r.TxCount),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *CSVStore) writeManifestTemp(m *models.BuildManifest) (string, error) {
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", errors.StorageError(err, "encode manifest")
	}
	f, err := os.CreateTemp(s.dir, ".manifest-*.yaml")
	if err != nil {
		return "", errors.FileSystemErrorf(err, "write manifest")
	}
	_, werr := f.Write(data)
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(f.Name())
		return "", errors.FileSystemErrorf(werr, "write manifest")
	}
	return f.Name(), nil
}

// Exists reports whether all three table files are present
func (s *CSVStore) Exists(ctx context.Context) (bool, error) {
	for _, t := range []string{TableNodes, TableEdges, TableTopShared} {
		_, err := os.Stat(s.tablePath(t))
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, errors.FileSystemErrorf(err, "stat %s", s.tablePath(t))
		}
	}
	return true, nil
}

// Fingerprint combines size and modification time of the table files
func (s *CSVStore) Fingerprint(ctx context.Context) (string, error) {
	var parts []string
	for _, t := range []string{TableNodes, TableEdges, TableTopShared} {
		fi, err := os.Stat(s.tablePath(t))
		if os.IsNotExist(err) {
			return "", notFound(s.dir, t)
		}
		if err != nil {
			return "", errors.FileSystemErrorf(err, "stat %s", s.tablePath(t))
		}
		parts = append(parts, fmt.Sprintf("%s:%d:%d", t, fi.Size(), fi.ModTime().UnixNano()))
	}
	return strings.Join(parts, "|"), nil
}

// LoadDataset reads the tables. Columns are matched by header name so
// files written by other tools load as long as the columns exist. A load
// that overlaps a save is retried so tables from two builds never mix.
func (s *CSVStore) LoadDataset(ctx context.Context) (*models.Dataset, error) {
	for attempt := 1; ; attempt++ {
		before, _ := s.Fingerprint(ctx)
		ds, err := s.loadOnce()
		if err != nil {
			return nil, err
		}
		after, _ := s.Fingerprint(ctx)
		if before == after {
			return ds, nil
		}
		if attempt == loadAttempts {
			return nil, errors.StorageErrorf(fmt.Errorf("fingerprint %q became %q", before, after),
				"tables in %s kept changing while loading", s.dir)
		}
		s.logger.WithField("attempt", attempt).Warn("tables changed while loading, retrying")
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
}

func (s *CSVStore) loadOnce() (*models.Dataset, error) {
	ds := &models.Dataset{}

	if err := s.readTable(TableNodes, nodeHeader, func(row func(string) string, line int) error {
		n, err := parseNode(row, line)
		if err != nil {
			return err
		}
		ds.Nodes = append(ds.Nodes, n)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.readTable(TableEdges, edgeHeader, func(row func(string) string, line int) error {
		e, err := parseEdge(row, line)
		if err != nil {
			return err
		}
		ds.Edges = append(ds.Edges, e)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := s.readTable(TableTopShared, topSharedHeader, func(row func(string) string, line int) error {
		r, err := parseTopShared(row, line)
		if err != nil {
			return err
		}
		ds.TopShared = append(ds.TopShared, r)
		return nil
	}); err != nil {
		return nil, err
	}

	m, err := s.readManifest()
	if err != nil {
		return nil, err
	}
	ds.Manifest = m

	restoreAddressCounts(ds)
	return ds, nil
}

func (s *CSVStore) readManifest() (*models.BuildManifest, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, ManifestFile))
	if os.IsNotExist(err) {
		// Tables written by other tools carry no manifest
		return nil, nil
	}
	if err != nil {
		return nil, errors.FileSystemErrorf(err, "read manifest")
	}
	var m models.BuildManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, errors.StorageError(err, "decode manifest")
	}
	return &m, nil
}

func (s *CSVStore) readTable(table string, columns []string, fn func(row func(string) string, line int) error) error {
	path := s.tablePath(table)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return notFound(s.dir, table)
	}
	if err != nil {
		return errors.FileSystemErrorf(err, "open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err == io.EOF {
		return errors.MissingFieldError(columns[0]).WithContext("table", table)
	}
	if err != nil {
		return errors.DataFormatError(0, "header", "", err).WithContext("table", table)
	}

	pos := make(map[string]int, len(header))
	for i, h := range header {
		pos[strings.TrimSpace(h)] = i
	}
	for _, c := range columns {
		if _, ok := pos[c]; !ok {
			return errors.MissingFieldError(c).WithContext("table", table)
		}
	}

	for line := 1; ; line++ {
		rec, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.DataFormatError(line, "", "", err).WithContext("table", table)
		}
		get := func(col string) string {
			i := pos[col]
			if i >= len(rec) {
				return ""
			}
			return rec[i]
		}
		if err := fn(get, line); err != nil {
			if e, ok := err.(*errors.Error); ok {
				e.WithContext("table", table)
			}
			return err
		}
	}
}

// maxExponent bounds scientific notation in loaded tables ("1.5e+03" is
// fine, "1e50000000" would expand to fifty million digits)
const maxExponent = 30

func parseDecimal(line int, col, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, errors.DataFormatError(line, col, raw, err)
	}
	if exp := d.Exponent(); exp > maxExponent || exp < -maxExponent {
		return decimal.Zero, errors.DataFormatError(line, col, raw, fmt.Errorf("exponent %d out of range", exp))
	}
	return d, nil
}

func parseInt(line int, col, raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		// Some tools write integer columns as floats ("3.0")
		d, derr := parseDecimal(line, col, raw)
		if derr != nil || !d.IsInteger() {
			return 0, errors.DataFormatError(line, col, raw, err)
		}
		return int(d.IntPart()), nil
	}
	return v, nil
}

func parseNode(row func(string) string, line int) (models.Node, error) {
	n := models.Node{
		ID:    row("id"),
		Label: row("label"),
		Type:  row("type"),
	}
	if ct := row("contrib_type"); ct != "" {
		n.ContribType = &ct
	}
	var err error
	if n.TotalAmount, err = parseDecimal(line, "total_amount", row("total_amount")); err != nil {
		return n, err
	}
	if n.TxCount, err = parseInt(line, "tx_count", row("tx_count")); err != nil {
		return n, err
	}
	if n.Type != models.NodeTypeAddress && n.Type != models.NodeTypeContributor {
		return n, errors.DataFormatError(line, "type", n.Type, nil)
	}
	return n, nil
}

func parseEdge(row func(string) string, line int) (models.Edge, error) {
	e := models.Edge{
		Source:   row("source"),
		Target:   row("target"),
		EdgeType: row("edge_type"),
		Address:  row("address"),
	}
	var err error
	if e.TxCount, err = parseInt(line, "tx_count", row("tx_count")); err != nil {
		return e, err
	}
	if e.TotalAmount, err = parseDecimal(line, "total_amount", row("total_amount")); err != nil {
		return e, err
	}
	return e, nil
}

func parseTopShared(row func(string) string, line int) (models.TopSharedAddress, error) {
	r := models.TopSharedAddress{
		GroupID:     row("group_id"),
		FullAddress: row("full_address"),
	}
	var err error
	if r.Contributors, err = parseInt(line, "contributors", row("contributors")); err != nil {
		return r, err
	}
	if r.TotalAmount, err = parseDecimal(line, "total_amount", row("total_amount")); err != nil {
		return r, err
	}
	if r.TxCount, err = parseInt(line, "tx_count", row("tx_count")); err != nil {
		return r, err
	}
	return r, nil
}
