// Package server serves the filtered contributor/address graph over HTTP.
//
// The current dataset is held as an immutable snapshot behind an atomic
// pointer. Reloads and rebuilds publish a whole new snapshot, so a request
// always sees one consistent set of tables.
package server

import (
	"context"
	_ "embed"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/addrlinks/internal/cache"
	"github.com/rohankatakam/addrlinks/internal/config"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/storage"
)

//go:embed static/index.html
var indexHTML []byte

// CustomValidator plugs validator/v10 into echo's c.Validate
type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

// Server is the HTTP front end over one store
type Server struct {
	cfg       *config.Config
	store     storage.Store
	snapshots *cache.SnapshotCache
	results   cache.ResultCache
	logger    *logrus.Logger

	echo     *echo.Echo
	registry *prometheus.Registry
	metrics  *metrics

	current   atomic.Pointer[cache.Snapshot]
	rebuildMu sync.Mutex
}

// New wires the routes. results may be nil to disable result caching.
func New(cfg *config.Config, store storage.Store, results cache.ResultCache, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	registry := prometheus.NewRegistry()
	s := &Server{
		cfg:       cfg,
		store:     store,
		snapshots: cache.NewSnapshotCache(store, 0, logger),
		results:   results,
		logger:    logger,
		registry:  registry,
		metrics:   newMetrics(registry),
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = &CustomValidator{validator: validator.New()}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.WithFields(logrus.Fields{
				"method":  v.Method,
				"uri":     v.URI,
				"status":  v.Status,
				"latency": v.Latency,
			}).Debug("request")
			return nil
		},
	}))
	e.Use(s.metrics.middleware())

	s.echo = e
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	e := s.echo

	e.GET("/", func(c echo.Context) error {
		return c.HTMLBlob(http.StatusOK, indexHTML)
	})
	e.GET("/health", s.handleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	var mw []echo.MiddlewareFunc
	if s.cfg.Server.RateLimit > 0 {
		burst := s.cfg.Server.Burst
		if burst < 1 {
			burst = 1
		}
		mw = append(mw, rateLimit(rate.NewLimiter(rate.Limit(s.cfg.Server.RateLimit), burst)))
	}

	api := e.Group("/api", mw...)
	api.GET("/controls", s.handleControls)
	api.GET("/graph", s.handleGraph)
	api.GET("/summary", s.handleSummary)
	api.POST("/rebuild", s.handleRebuild)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// URL is the browser address of the server
func (s *Server) URL() string {
	return "http://" + s.cfg.Server.Addr + "/"
}

// Reload publishes the store's current tables. The snapshot cache makes
// this a no-op when nothing changed on disk.
func (s *Server) Reload(ctx context.Context) error {
	snap, err := s.snapshots.Get(ctx)
	if err != nil {
		s.metrics.reloads.WithLabelValues("error").Inc()
		return err
	}

	prev := s.current.Swap(snap)
	s.metrics.reloads.WithLabelValues("ok").Inc()
	if prev == nil || prev.Fingerprint != snap.Fingerprint {
		s.metrics.observeDataset(snap.Dataset)
		s.logger.WithFields(logrus.Fields{
			"location":    snap.Location,
			"fingerprint": snap.Fingerprint,
			"nodes":       len(snap.Dataset.Nodes),
			"edges":       len(snap.Dataset.Edges),
		}).Info("snapshot published")
	}
	return nil
}

// snapshot returns the published snapshot, loading it on first use
func (s *Server) snapshot(ctx context.Context) (*cache.Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	if err := s.Reload(ctx); err != nil {
		return nil, err
	}
	return s.current.Load(), nil
}

// watchTarget is the directory and file names whose changes trigger a reload
func (s *Server) watchTarget() (string, []string, bool) {
	switch s.cfg.Storage.Type {
	case "", "csv":
		return s.cfg.Build.OutputDir, []string{
			storage.TableNodes + ".csv",
			storage.TableEdges + ".csv",
			storage.TableTopShared + ".csv",
			storage.ManifestFile,
		}, true
	case "sqlite":
		base := filepath.Base(s.cfg.Storage.LocalPath)
		return filepath.Dir(s.cfg.Storage.LocalPath), []string{base, base + "-wal"}, true
	default:
		return "", nil, false
	}
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		if !errors.IsInputNotFound(err) {
			return err
		}
		s.logger.WithError(err).Warn("no dataset yet; data endpoints return 503 until a build runs")
	}

	if s.cfg.Server.Watch {
		if dir, files, ok := s.watchTarget(); ok {
			if err := os.MkdirAll(dir, 0755); err != nil {
				s.logger.WithError(err).Warn("cannot create watched directory")
			}
			w, err := newReloadWatcher(dir, files, defaultDebounce, func() {
				if err := s.Reload(ctx); err != nil {
					s.logger.WithError(err).Warn("reload after change failed")
				}
			}, s.logger)
			if err != nil {
				s.logger.WithError(err).Warn("file watching disabled")
			} else {
				go w.Run(ctx)
				defer w.Close()
			}
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.cfg.Server.Addr).Info("starting server")
		if err := s.echo.Start(s.cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	if s.cfg.Server.OpenBrowser {
		go func() {
			time.Sleep(300 * time.Millisecond)
			if err := browser.OpenURL(s.URL()); err != nil {
				s.logger.WithError(err).Warn("could not open browser")
			}
		}()
	}

	select {
	case err := <-errCh:
		if err != nil {
			return errors.ExternalErrorf(err, "listen on %s", s.cfg.Server.Addr)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		s.logger.WithError(err).Error("failed to shutdown server")
		return err
	}
	s.logger.Info("server stopped")
	return nil
}
