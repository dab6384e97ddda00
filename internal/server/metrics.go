package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rohankatakam/addrlinks/internal/models"
)

type metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	filterCache     *prometheus.CounterVec
	reloads         *prometheus.CounterVec
	rebuilds        *prometheus.CounterVec
	datasetNodes    *prometheus.GaugeVec
	datasetEdges    prometheus.Gauge
}

// newMetrics registers the collectors on reg. Each server gets its own
// registry so tests can create several.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "addrlinks",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code",
		}, []string{"route", "method", "status"}),

		requestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "addrlinks",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}, []string{"route"}),

		filterCache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "addrlinks",
			Name:      "filter_cache_total",
			Help:      "Filter result cache lookups by result (hit, miss)",
		}, []string{"result"}),

		reloads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "addrlinks",
			Name:      "snapshot_reloads_total",
			Help:      "Snapshot reloads by outcome",
		}, []string{"outcome"}),

		rebuilds: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "addrlinks",
			Name:      "rebuilds_total",
			Help:      "Graph rebuilds triggered over HTTP by outcome",
		}, []string{"outcome"}),

		datasetNodes: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "addrlinks",
			Name:      "dataset_nodes",
			Help:      "Nodes in the published dataset by type",
		}, []string{"type"}),

		datasetEdges: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "addrlinks",
			Name:      "dataset_edges",
			Help:      "Edges in the published dataset",
		}),
	}
}

func (m *metrics) observeDataset(ds *models.Dataset) {
	m.datasetNodes.WithLabelValues(models.NodeTypeAddress).Set(float64(len(ds.AddressNodes())))
	m.datasetNodes.WithLabelValues(models.NodeTypeContributor).Set(float64(len(ds.ContributorNodes())))
	m.datasetEdges.Set(float64(len(ds.Edges)))
}

func (m *metrics) cacheResult(hit bool) {
	if hit {
		m.filterCache.WithLabelValues("hit").Inc()
	} else {
		m.filterCache.WithLabelValues("miss").Inc()
	}
}

// middleware records every request under its route pattern, not the raw
// path, to keep label cardinality bounded
func (m *metrics) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}

			m.requests.WithLabelValues(route, c.Request().Method, strconv.Itoa(status)).Inc()
			m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}
