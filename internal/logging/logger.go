package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// runLogPrefix names the per-run log files written under a log directory
const runLogPrefix = "addrlinks_"

// DefaultKeepRuns is how many run logs survive pruning
const DefaultKeepRuns = 10

// Config holds logger configuration
type Config struct {
	Level     slog.Level
	Console   io.Writer // nil means os.Stderr
	Dir       string    // per-run JSON log files go here; empty = console only
	KeepRuns  int       // older run logs beyond this count are removed
	JSON      bool      // console encoding; the file is always JSON
	AddSource bool
	now       func() time.Time
}

// Logger pairs a slog.Logger with the run log file it writes to
type Logger struct {
	slog *slog.Logger
	file *os.File
	path string
}

var (
	mu     sync.RWMutex
	active *Logger
)

// DefaultConfig is the CLI setup: text on stderr, plus a run log under
// logDir when one is given
func DefaultConfig(debug bool, logDir string) Config {
	cfg := Config{Level: slog.LevelInfo, Dir: logDir, KeepRuns: DefaultKeepRuns}
	if debug {
		cfg.Level = slog.LevelDebug
		cfg.AddSource = true
	}
	return cfg
}

// NewLogger builds a logger. When cfg.Dir is set a fresh run log is
// opened there and the oldest run logs past cfg.KeepRuns are pruned.
func NewLogger(cfg Config) (*Logger, error) {
	if cfg.Console == nil {
		cfg.Console = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}

	var console slog.Handler = slog.NewTextHandler(cfg.Console, opts)
	if cfg.JSON {
		console = slog.NewJSONHandler(cfg.Console, opts)
	}
	if cfg.Dir == "" {
		return &Logger{slog: slog.New(console)}, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory %s: %w", cfg.Dir, err)
	}
	now := time.Now
	if cfg.now != nil {
		now = cfg.now
	}
	path := filepath.Join(cfg.Dir, runLogPrefix+now().Format("2006-01-02_15-04-05.000")+".log")
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	if cfg.KeepRuns > 0 {
		pruneRunLogs(cfg.Dir, cfg.KeepRuns)
	}

	h := fanout{console, slog.NewJSONHandler(file, opts)}
	return &Logger{slog: slog.New(h), file: file, path: path}, nil
}

// pruneRunLogs removes the oldest run logs so at most keep remain.
// Names sort chronologically.
func pruneRunLogs(dir string, keep int) {
	matches, err := filepath.Glob(filepath.Join(dir, runLogPrefix+"*.log"))
	if err != nil || len(matches) <= keep {
		return
	}
	sort.Strings(matches)
	for _, old := range matches[:len(matches)-keep] {
		os.Remove(old)
	}
}

// Slog exposes the underlying slog.Logger
func (l *Logger) Slog() *slog.Logger { return l.slog }

// Path is the run log file, empty when logging to the console only
func (l *Logger) Path() string { return l.path }

// Close closes the run log file
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Initialize installs the process logger. A previous one is closed.
func Initialize(cfg Config) error {
	l, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	old := active
	active = l
	mu.Unlock()
	if old != nil {
		old.Close()
	}
	return nil
}

// Close closes the process logger; later calls fall back to slog.Default
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if active == nil {
		return nil
	}
	err := active.Close()
	active = nil
	return err
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if active != nil {
		return active.slog
	}
	return slog.Default()
}

// Component returns the process logger tagged with component=name
func Component(name string) *slog.Logger {
	return current().With("component", name)
}

// Debug logs on the process logger
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// fanout sends every record to each handler that accepts its level
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []string
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("log handler: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
