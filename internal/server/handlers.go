package server

import (
	"context"
	stderrors "errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/addrlinks/internal/cache"
	"github.com/rohankatakam/addrlinks/internal/errors"
	"github.com/rohankatakam/addrlinks/internal/filter"
	"github.com/rohankatakam/addrlinks/internal/graph"
	"github.com/rohankatakam/addrlinks/internal/models"
	"github.com/rohankatakam/addrlinks/internal/pipeline"
)

type errorResponse struct {
	Error   string         `json:"error"`
	Type    string         `json:"type"`
	Context map[string]any `json:"context,omitempty"`
}

// statusFor maps the error taxonomy onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.IsValidation(err):
		return http.StatusBadRequest
	case errors.IsMissingField(err), errors.IsDataFormat(err):
		return http.StatusUnprocessableEntity
	case errors.IsInputNotFound(err):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c echo.Context, status int, err error) error {
	body := errorResponse{Error: err.Error(), Type: errors.GetType(err).String()}
	var e *errors.Error
	if stderrors.As(err, &e) && len(e.Context) > 0 {
		body.Context = e.Context
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).WithField("path", c.Path()).Error("request failed")
	}
	return c.JSON(status, body)
}

// loadSnapshot answers 503 while no dataset has been built
func (s *Server) loadSnapshot(c echo.Context) (*cache.Snapshot, error) {
	snap, err := s.snapshot(c.Request().Context())
	if err == nil {
		return snap, nil
	}
	if errors.IsInputNotFound(err) {
		return nil, s.fail(c, http.StatusServiceUnavailable, err)
	}
	return nil, s.fail(c, http.StatusInternalServerError, err)
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := map[string]any{"status": "ok", "dataset_loaded": false}
	if snap := s.current.Load(); snap != nil {
		resp["dataset_loaded"] = true
		resp["fingerprint"] = snap.Fingerprint
		resp["loaded_at"] = snap.LoadedAt
	}
	return c.JSON(http.StatusOK, resp)
}

type controlsResponse struct {
	ContributorTypes       []string              `json:"contributor_types"`
	DefaultTypes           []string              `json:"default_types"`
	AmountMin              *decimal.Decimal      `json:"amount_min,omitempty"`
	AmountMax              *decimal.Decimal      `json:"amount_max,omitempty"`
	MinContributorsFloor   int                   `json:"min_contributors_floor"`
	MinContributorsMax     int                   `json:"min_contributors_max"`
	DefaultMinContributors int                   `json:"default_min_contributors"`
	TopLimit               int                   `json:"top_limit"`
	Manifest               *models.BuildManifest `json:"manifest,omitempty"`
}

func (s *Server) handleControls(c echo.Context) error {
	snap, err := s.loadSnapshot(c)
	if snap == nil {
		return err
	}
	ds := snap.Dataset

	resp := controlsResponse{
		MinContributorsFloor:   graph.DefaultMinContributorsAtAddress,
		DefaultMinContributors: s.defaultMinContributors(),
		TopLimit:               s.topLimit(),
		Manifest:               ds.Manifest,
	}
	resp.ContributorTypes, resp.DefaultTypes = filter.DefaultTypes(ds.Nodes)
	if bounds, ok := filter.AmountBounds(ds.Nodes); ok {
		resp.AmountMin, resp.AmountMax = &bounds.Min, &bounds.Max
	}
	if ds.Manifest != nil && ds.Manifest.MinContributorsAtAddress > 0 {
		resp.MinContributorsFloor = ds.Manifest.MinContributorsAtAddress
	}
	for _, n := range ds.Nodes {
		if n.Contributors != nil && *n.Contributors > resp.MinContributorsMax {
			resp.MinContributorsMax = *n.Contributors
		}
	}
	if resp.MinContributorsMax < resp.MinContributorsFloor {
		resp.MinContributorsMax = resp.MinContributorsFloor
	}
	return c.JSON(http.StatusOK, resp)
}

// filterQuery is the query string shared by /api/graph and /api/summary.
// Repeat types to select several; omit it for no type restriction.
type filterQuery struct {
	Types           []string `query:"types"`
	MinContributors int      `query:"min_contributors" validate:"omitempty,min=1"`
	MinAmount       string   `query:"min_amount" validate:"omitempty,number"`
	MaxAmount       string   `query:"max_amount" validate:"omitempty,number"`
	Limit           int      `query:"limit" validate:"omitempty,min=1,max=500"`
}

func (s *Server) defaultMinContributors() int {
	if n := s.cfg.Filter.DefaultMinContributors; n > 0 {
		return n
	}
	return graph.DefaultMinContributorsAtAddress
}

func (s *Server) topLimit() int {
	if n := s.cfg.Filter.TopLimit; n > 0 {
		return n
	}
	return filter.DefaultTopLimit
}

func validationMessage(err error) error {
	var verrs validator.ValidationErrors
	if stderrors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return errors.ValidationErrorf("invalid %s: failed %q check", fe.Field(), fe.Tag()).
			WithContext("field", fe.Field())
	}
	return errors.ValidationErrorf("invalid request: %v", err)
}

// params turns the query into filter params. A missing amount bound is
// taken from the dataset's observed range.
func (s *Server) params(q *filterQuery, ds *models.Dataset) (filter.Params, error) {
	p := filter.Params{
		ContributorTypes:          q.Types,
		MinContributorsPerAddress: q.MinContributors,
	}
	if p.MinContributorsPerAddress == 0 {
		p.MinContributorsPerAddress = s.defaultMinContributors()
	}

	r, err := filter.ParseRange(ds.Nodes, q.MinAmount, q.MaxAmount)
	if err != nil {
		return p, err
	}
	p.AmountRange = r
	return p, p.Validate()
}

// filtered is one answered filter request
type filtered struct {
	snap   *cache.Snapshot
	query  *filterQuery
	params filter.Params
	view   *filter.View
	hit    bool
}

// applyQuery binds the query and filters through the result cache. A nil
// result means an error response was already written.
func (s *Server) applyQuery(c echo.Context) (*filtered, error) {
	q := new(filterQuery)
	if err := c.Bind(q); err != nil {
		return nil, s.fail(c, http.StatusBadRequest, errors.ValidationErrorf("invalid query: %v", err))
	}
	if err := c.Validate(q); err != nil {
		return nil, s.fail(c, http.StatusBadRequest, validationMessage(err))
	}

	snap, err := s.loadSnapshot(c)
	if snap == nil {
		return nil, err
	}

	params, err := s.params(q, snap.Dataset)
	if err != nil {
		return nil, s.fail(c, statusFor(err), err)
	}

	key := cache.ResultKey(snap.Fingerprint, params)
	view, hit, err := cache.Lookup(c.Request().Context(), s.results, key, s.logger, func() (*filter.View, error) {
		return filter.Apply(snap.Dataset.Nodes, snap.Dataset.Edges, params)
	})
	if err != nil {
		return nil, s.fail(c, statusFor(err), err)
	}
	s.metrics.cacheResult(hit)
	return &filtered{snap: snap, query: q, params: params, view: view, hit: hit}, nil
}

type graphNode struct {
	models.Node
	Title string `json:"title"`
	Shape string `json:"shape"`
}

type graphEdge struct {
	models.Edge
	Title string `json:"title"`
	Value int    `json:"value"`
}

type graphResponse struct {
	Fingerprint string        `json:"fingerprint"`
	Params      filter.Params `json:"params"`
	Cached      bool          `json:"cached"`
	Nodes       []graphNode   `json:"nodes"`
	Edges       []graphEdge   `json:"edges"`
}

func (s *Server) handleGraph(c echo.Context) error {
	f, err := s.applyQuery(c)
	if f == nil {
		return err
	}

	resp := graphResponse{
		Fingerprint: f.snap.Fingerprint,
		Params:      f.params,
		Cached:      f.hit,
		Nodes:       make([]graphNode, 0, len(f.view.Nodes)),
		Edges:       make([]graphEdge, 0, len(f.view.Edges)),
	}
	for _, n := range f.view.Nodes {
		resp.Nodes = append(resp.Nodes, graphNode{Node: n, Title: filter.NodeTitle(n), Shape: filter.NodeShape(n)})
	}
	for _, e := range f.view.Edges {
		resp.Edges = append(resp.Edges, graphEdge{Edge: e, Title: filter.EdgeTitle(e), Value: e.TxCount})
	}
	return c.JSON(http.StatusOK, resp)
}

type summaryResponse struct {
	Fingerprint string          `json:"fingerprint"`
	Params      filter.Params   `json:"params"`
	Summary     *filter.Summary `json:"summary"`
}

func (s *Server) handleSummary(c echo.Context) error {
	f, err := s.applyQuery(c)
	if f == nil {
		return err
	}
	limit := f.query.Limit
	if limit == 0 {
		limit = s.topLimit()
	}
	return c.JSON(http.StatusOK, summaryResponse{
		Fingerprint: f.snap.Fingerprint,
		Params:      f.params,
		Summary:     filter.Summarize(f.view, limit),
	})
}

type rebuildBody struct {
	MinContributorsAtAddress int    `json:"min_contributors_at_address" validate:"omitempty,min=1"`
	IDScheme                 string `json:"id_scheme" validate:"omitempty,oneof=sequential hash"`
}

type rebuildResponse struct {
	Manifest   *models.BuildManifest `json:"manifest"`
	DurationMS int64                 `json:"duration_ms"`
}

// handleRebuild reruns the build from the configured input. Only one
// rebuild runs at a time; a concurrent request gets 409.
func (s *Server) handleRebuild(c echo.Context) error {
	body := new(rebuildBody)
	if err := c.Bind(body); err != nil {
		return s.fail(c, http.StatusBadRequest, errors.ValidationErrorf("invalid body: %v", err))
	}
	if err := c.Validate(body); err != nil {
		return s.fail(c, http.StatusBadRequest, validationMessage(err))
	}

	if !s.rebuildMu.TryLock() {
		return s.fail(c, http.StatusConflict, errors.ValidationError("a rebuild is already running"))
	}
	defer s.rebuildMu.Unlock()

	opts := pipeline.OptionsFromConfig(s.cfg)
	if body.MinContributorsAtAddress > 0 {
		opts.MinContributorsAtAddress = body.MinContributorsAtAddress
	}
	if body.IDScheme != "" {
		opts.IDScheme = graph.IDScheme(body.IDScheme)
	}

	ctx := c.Request().Context()
	res, err := pipeline.Run(ctx, s.store, opts, s.logger)
	if err != nil {
		s.metrics.rebuilds.WithLabelValues("error").Inc()
		return s.fail(c, statusFor(err), err)
	}
	s.metrics.rebuilds.WithLabelValues("ok").Inc()

	s.afterRebuild(ctx)
	return c.JSON(http.StatusOK, rebuildResponse{
		Manifest:   res.Manifest,
		DurationMS: res.Duration.Milliseconds(),
	})
}

// afterRebuild drops cached state explicitly and publishes the new tables
func (s *Server) afterRebuild(ctx context.Context) {
	s.snapshots.Invalidate()
	if s.results != nil {
		purgeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.results.Purge(purgeCtx); err != nil {
			s.logger.WithError(err).Warn("result cache purge failed")
		}
	}
	if err := s.Reload(ctx); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"location": s.store.Location()}).
			Error("reload after rebuild failed")
	}
}
