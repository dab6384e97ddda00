package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/models"
)

// Amounts are TEXT in both dialects so decimals round-trip exactly
const sqlSchema = `
	CREATE TABLE IF NOT EXISTS nodes (
		position INTEGER NOT NULL,
		id TEXT PRIMARY KEY,
		label TEXT NOT NULL,
		type TEXT NOT NULL,
		contrib_type TEXT,
		total_amount TEXT NOT NULL,
		tx_count INTEGER NOT NULL,
		contributors INTEGER
	);

	CREATE TABLE IF NOT EXISTS edges (
		position INTEGER NOT NULL,
		source TEXT NOT NULL,
		target TEXT NOT NULL,
		edge_type TEXT NOT NULL,
		address TEXT NOT NULL,
		tx_count INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		PRIMARY KEY (source, target)
	);

	CREATE TABLE IF NOT EXISTS top_shared_addresses (
		position INTEGER NOT NULL,
		group_id TEXT PRIMARY KEY,
		full_address TEXT NOT NULL,
		contributors INTEGER NOT NULL,
		total_amount TEXT NOT NULL,
		tx_count INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS build_manifest (
		run_id TEXT PRIMARY KEY,
		built_at TIMESTAMP NOT NULL,
		input_path TEXT NOT NULL,
		input_fingerprint TEXT NOT NULL,
		min_contributors_at_address INTEGER NOT NULL,
		record_count INTEGER NOT NULL,
		address_count INTEGER NOT NULL,
		contributor_count INTEGER NOT NULL,
		edge_count INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_edges_target ON edges(target);
`

// SQLStore keeps the tables in SQLite or PostgreSQL through sqlx
type SQLStore struct {
	db       *sqlx.DB
	location string
	logger   *logrus.Logger
}

// NewSQLiteStore opens (and creates) a SQLite database file
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.FileSystemErrorf(err, "create database directory")
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, errors.StorageError(err, "connect to sqlite")
	}
	if path == ":memory:" {
		// Every connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	} else {
		db.Exec("PRAGMA journal_mode = WAL")
	}

	return NewSQLStore(db, "sqlite:"+path, logger)
}

// NewPostgresStore connects to PostgreSQL through the pgx stdlib driver
func NewPostgresStore(dsn string, logger *logrus.Logger) (*SQLStore, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, errors.StorageError(err, "connect to postgres")
	}

	// Configure connection pool
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewSQLStore(db, "postgres", logger)
}

// NewSQLStore wraps an open database and makes sure the schema exists
func NewSQLStore(db *sqlx.DB, location string, logger *logrus.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &SQLStore{db: db, location: location, logger: logger}

	if _, err := db.Exec(sqlSchema); err != nil {
		db.Close()
		return nil, errors.StorageError(err, "init schema")
	}
	return s, nil
}

// Location identifies the database for logs and cache keys
func (s *SQLStore) Location() string { return s.location }

// Close closes the database connection
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// SaveDataset replaces all tables inside one transaction
func (s *SQLStore) SaveDataset(ctx context.Context, ds *models.Dataset) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError(err, "begin transaction")
	}
	defer tx.Rollback()

	for _, table := range []string{TableNodes, TableEdges, TableTopShared, "build_manifest"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return errors.StorageErrorf(err, "clear %s", table)
		}
	}

	nodeStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO nodes
		(position, id, label, type, contrib_type, total_amount, tx_count, contributors)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return errors.StorageError(err, "prepare node insert")
	}
	defer nodeStmt.Close()
	for i, n := range ds.Nodes {
		if _, err := nodeStmt.ExecContext(ctx,
			i, n.ID, n.Label, n.Type, n.ContribType,
			n.TotalAmount.String(), n.TxCount, n.Contributors); err != nil {
			return errors.StorageErrorf(err, "insert node %s", n.ID)
		}
	}

	edgeStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO edges
		(position, source, target, edge_type, address, tx_count, total_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return errors.StorageError(err, "prepare edge insert")
	}
	defer edgeStmt.Close()
	for i, e := range ds.Edges {
		if _, err := edgeStmt.ExecContext(ctx,
			i, e.Source, e.Target, e.EdgeType, e.Address,
			e.TxCount, e.TotalAmount.String()); err != nil {
			return errors.StorageErrorf(err, "insert edge %s -> %s", e.Source, e.Target)
		}
	}

	topStmt, err := tx.PreparexContext(ctx, tx.Rebind(`
		INSERT INTO top_shared_addresses
		(position, group_id, full_address, contributors, total_amount, tx_count)
		VALUES (?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return errors.StorageError(err, "prepare top shared insert")
	}
	defer topStmt.Close()
	for i, r := range ds.TopShared {
		if _, err := topStmt.ExecContext(ctx,
			i, r.GroupID, r.FullAddress, r.Contributors,
			r.TotalAmount.String(), r.TxCount); err != nil {
			return errors.StorageErrorf(err, "insert top shared address %s", r.GroupID)
		}
	}

	m := manifestFor(ds)
	if _, err := tx.NamedExecContext(ctx, `
		INSERT INTO build_manifest
		(run_id, built_at, input_path, input_fingerprint, min_contributors_at_address,
		 record_count, address_count, contributor_count, edge_count)
		VALUES (:run_id, :built_at, :input_path, :input_fingerprint, :min_contributors_at_address,
		 :record_count, :address_count, :contributor_count, :edge_count)
	`, m); err != nil {
		return errors.StorageError(err, "insert manifest")
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError(err, "commit")
	}

	s.logger.WithFields(logrus.Fields{
		"location": s.location,
		"nodes":    len(ds.Nodes),
		"edges":    len(ds.Edges),
		"run_id":   m.RunID,
	}).Info("tables written")
	return nil
}

// manifestFor returns the dataset's manifest, or a minimal one so every
// save has a row that identifies it
func manifestFor(ds *models.Dataset) *models.BuildManifest {
	if ds.Manifest != nil && ds.Manifest.RunID != "" {
		m := *ds.Manifest
		m.BuiltAt = m.BuiltAt.UTC()
		return &m
	}
	m := models.BuildManifest{}
	if ds.Manifest != nil {
		m = *ds.Manifest
	}
	m.RunID = uuid.NewString()
	if m.BuiltAt.IsZero() {
		m.BuiltAt = time.Now()
	}
	m.BuiltAt = m.BuiltAt.UTC()
	m.ContributorCount = len(ds.ContributorNodes())
	m.AddressCount = len(ds.AddressNodes())
	m.EdgeCount = len(ds.Edges)
	return &m
}

func (s *SQLStore) manifest(ctx context.Context) (*models.BuildManifest, error) {
	return readManifest(ctx, s.db)
}

func readManifest(ctx context.Context, q sqlx.QueryerContext) (*models.BuildManifest, error) {
	var m models.BuildManifest
	err := sqlx.GetContext(ctx, q, &m, `SELECT * FROM build_manifest LIMIT 1`)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError(err, "read manifest")
	}
	return &m, nil
}

// Exists reports whether a dataset has been saved
func (s *SQLStore) Exists(ctx context.Context) (bool, error) {
	m, err := s.manifest(ctx)
	if err != nil {
		return false, err
	}
	return m != nil, nil
}

// Fingerprint is the run id and build time of the saved dataset
func (s *SQLStore) Fingerprint(ctx context.Context) (string, error) {
	m, err := s.manifest(ctx)
	if err != nil {
		return "", err
	}
	if m == nil {
		return "", notFound(s.location, TableNodes)
	}
	return fmt.Sprintf("%s:%d", m.RunID, m.BuiltAt.UnixNano()), nil
}

// LoadDataset reads the saved tables in their original order. All four
// reads share one read-only transaction so a concurrent save is seen
// either entirely or not at all.
func (s *SQLStore) LoadDataset(ctx context.Context) (*models.Dataset, error) {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return nil, errors.StorageError(err, "begin read transaction")
	}
	defer tx.Rollback()

	m, err := readManifest(ctx, tx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, notFound(s.location, TableNodes)
	}

	ds := &models.Dataset{Manifest: m}
	queries := []struct {
		table string
		dest  any
		cols  []string
	}{
		{TableNodes, &ds.Nodes, []string{"id", "label", "type", "contrib_type", "total_amount", "tx_count", "contributors"}},
		{TableEdges, &ds.Edges, []string{"source", "target", "edge_type", "address", "tx_count", "total_amount"}},
		{TableTopShared, &ds.TopShared, []string{"group_id", "full_address", "contributors", "total_amount", "tx_count"}},
	}
	for _, q := range queries {
		query := fmt.Sprintf("SELECT %s FROM %s ORDER BY position", strings.Join(q.cols, ", "), q.table)
		if err := tx.SelectContext(ctx, q.dest, query); err != nil {
			return nil, errors.StorageErrorf(err, "read %s", q.table)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.StorageError(err, "end read transaction")
	}

	restoreAddressCounts(ds)
	return ds, nil
}
