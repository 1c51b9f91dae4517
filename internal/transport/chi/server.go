package chi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kailas-cloud/searchbridge/internal/domain/content"
	"github.com/kailas-cloud/searchbridge/internal/domain/index"
	"github.com/kailas-cloud/searchbridge/internal/domain/search/options"
	"github.com/kailas-cloud/searchbridge/internal/engine"
	healthuc "github.com/kailas-cloud/searchbridge/internal/usecase/health"
	"github.com/kailas-cloud/searchbridge/internal/usecase/indexsync"
)

const maxBodyBytes = 1 << 20

// Server holds the HTTP handlers.
type Server struct {
	search  Searcher
	sync    Syncer
	indexes IndexLister
	health  HealthChecker
}

// NewServer creates an HTTP API server.
func NewServer(search Searcher, sync Syncer, indexes IndexLister, health HealthChecker) *Server {
	return &Server{search: search, sync: sync, indexes: indexes, health: health}
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Get("/indexes", s.ListIndexes)
	r.Route("/indexes/{handle}", func(r chi.Router) {
		r.Get("/schema", s.GetSchema)
		r.Get("/search", s.SearchQuery)
		r.Post("/search", s.SearchBody)
		r.Get("/documents/{id}", s.GetDocument)
		r.Get("/count", s.CountDocuments)
		r.Post("/facets/{field}/search", s.SearchFacetValues)
		r.Post("/import", s.Import)
	})
	r.Post("/events/content", s.ContentEvent)
}

// IndexField describes one field mapping.
type IndexField struct {
	Name    string `json:"name"`
	Source  string `json:"source"`
	Type    string `json:"type"`
	Weight  int    `json:"weight"`
	Enabled bool   `json:"enabled"`
	Role    string `json:"role,omitempty"`
}

// IndexResponse describes a configured index.
type IndexResponse struct {
	Handle     string       `json:"handle"`
	Engine     string       `json:"engine"`
	Mode       string       `json:"mode"`
	Enabled    bool         `json:"enabled"`
	SiteIDs    []string     `json:"siteIds,omitempty"`
	Categories []string     `json:"categories,omitempty"`
	Subtypes   []string     `json:"subtypes,omitempty"`
	Fields     []IndexField `json:"fields"`
}

// HealthResponse is the /healthz body.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// CountResponse is the /count body.
type CountResponse struct {
	Count int `json:"count"`
}

// FacetSearchRequest is the facet-value search body.
type FacetSearchRequest struct {
	Query   string         `json:"query"`
	Filters map[string]any `json:"filters,omitempty"`
	Limit   int            `json:"limit,omitempty"`
}

// FacetSearchResponse is the facet-value search body.
type FacetSearchResponse struct {
	Field  string `json:"field"`
	Values any    `json:"values"`
}

// ImportRequest is the bulk import body. An empty body means no flush.
type ImportRequest struct {
	Flush bool `json:"flush"`
}

// ImportResponse describes the submitted generation.
type ImportResponse struct {
	Index      string `json:"index"`
	Generation string `json:"generation"`
	Target     string `json:"target"`
	Total      int    `json:"total"`
	BatchSize  int    `json:"batchSize"`
	Batches    int    `json:"batches"`
	Trailer    string `json:"trailer"`
	Swap       bool   `json:"swap"`
}

// EventResponse acknowledges a content event.
type EventResponse struct {
	Accepted bool `json:"accepted"`
	Units    int  `json:"units"`
}

// searchBody is the POST search body: the unified options plus the query.
type searchBody struct {
	options.Options
	Query string `json:"q"`
	Raw   bool   `json:"raw,omitempty"`
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, HealthResponse{Status: string(report.Status), Checks: checks})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// ListIndexes handles GET /indexes. site, category and subtype narrow the list to
// enabled indexes whose scope contains that content.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	var site, category, subtype string
	q := r.URL.Query()
	for name, dest := range map[string]*string{"site": &site, "category": &category, "subtype": &subtype} {
		if err := runtime.BindQueryParameter("form", true, false, name, q, dest); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid "+name+" parameter")
			return
		}
	}

	var idxs []index.Index
	if site != "" || category != "" || subtype != "" {
		idxs = s.indexes.ForContent(site, category, subtype)
	} else {
		idxs = s.indexes.List()
	}

	out := make([]IndexResponse, len(idxs))
	for i, idx := range idxs {
		out[i] = indexToResponse(idx)
	}
	writeJSON(w, http.StatusOK, out)
}

// GetSchema handles GET /indexes/{handle}/schema.
func (s *Server) GetSchema(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathParam(w, r, "handle")
	if !ok {
		return
	}
	schema, err := s.search.Schema(handle)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// SearchQuery handles GET /indexes/{handle}/search?q=&page=&perPage=.
func (s *Server) SearchQuery(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathParam(w, r, "handle")
	if !ok {
		return
	}

	var (
		query         string
		page, perPage int
		raw           bool
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "q", q, &query); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid q parameter")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "page", q, &page); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid page parameter")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "perPage", q, &perPage); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid perPage parameter")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "raw", q, &raw); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid raw parameter")
		return
	}

	s.runSearch(w, r, handle, query, options.Options{Page: page, PerPage: perPage}, raw)
}

// SearchBody handles POST /indexes/{handle}/search.
func (s *Server) SearchBody(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathParam(w, r, "handle")
	if !ok {
		return
	}
	var body searchBody
	if !decodeBody(w, r, &body, false) {
		return
	}
	s.runSearch(w, r, handle, body.Query, body.Options, body.Raw)
}

func (s *Server) runSearch(w http.ResponseWriter, r *http.Request, handle, query string, opts options.Options, raw bool) {
	res, err := s.search.Search(r.Context(), handle, query, opts)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if !raw {
		res = res.WithoutRaw()
	}
	writeJSON(w, http.StatusOK, res)
}

// GetDocument handles GET /indexes/{handle}/documents/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathParam(w, r, "handle")
	if !ok {
		return
	}
	id, ok := pathParam(w, r, "id")
	if !ok {
		return
	}
	hit, err := s.search.GetDocument(r.Context(), handle, id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, hit)
}

// CountDocuments handles GET /indexes/{handle}/count.
func (s *Server) CountDocuments(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathParam(w, r, "handle")
	if !ok {
		return
	}
	n, err := s.search.Count(r.Context(), handle)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// SearchFacetValues handles POST /indexes/{handle}/facets/{field}/search.
func (s *Server) SearchFacetValues(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathParam(w, r, "handle")
	if !ok {
		return
	}
	field, ok := pathParam(w, r, "field")
	if !ok {
		return
	}
	var req FacetSearchRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	values, err := s.search.SearchFacetValues(r.Context(), handle, engine.FacetQuery{
		Field:   field,
		Query:   req.Query,
		Filters: req.Filters,
		Limit:   req.Limit,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, FacetSearchResponse{Field: field, Values: values})
}

// Import handles POST /indexes/{handle}/import.
func (s *Server) Import(w http.ResponseWriter, r *http.Request) {
	handle, ok := pathParam(w, r, "handle")
	if !ok {
		return
	}
	var req ImportRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	plan, err := s.sync.Import(r.Context(), handle, indexsync.ImportOptions{Flush: req.Flush})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ImportResponse{
		Index:      plan.Index,
		Generation: plan.Generation,
		Target:     plan.Target,
		Total:      plan.Total,
		BatchSize:  plan.BatchSize,
		Batches:    plan.Batches,
		Trailer:    string(plan.Trailer),
		Swap:       plan.Swap,
	})
}

// ContentEvent handles POST /events/content. Each request gets its own
// dedup tracker, so one save cascading into related items enqueues each
// (index, item, site) at most once.
func (s *Server) ContentEvent(w http.ResponseWriter, r *http.Request) {
	var ev content.Event
	if !decodeBody(w, r, &ev, false) {
		return
	}
	if err := ev.Validate(); err != nil {
		handleDomainError(w, r, err)
		return
	}

	ctx := indexsync.WithTracker(r.Context())
	var err error
	switch ev.Type {
	case content.EventSave:
		err = s.sync.OnSave(ctx, ev.Item)
	case content.EventDelete:
		err = s.sync.OnDelete(ctx, ev.Item)
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EventResponse{Accepted: true, Units: indexsync.TrackedUnits(ctx)})
}

// pathParam binds a required simple-style path parameter.
func pathParam(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithLocation("simple", false, name, runtime.ParamLocationPath, chi.URLParam(r, name), &v)
	if err != nil || v == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid "+name+" parameter")
		return "", false
	}
	return v, true
}

// decodeBody decodes a JSON body into dest. allowEmpty accepts a missing body.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any, allowEmpty bool) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dest); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func indexToResponse(idx index.Index) IndexResponse {
	scope := idx.Scope()
	resp := IndexResponse{
		Handle:     idx.Handle(),
		Engine:     string(idx.EngineType()),
		Mode:       string(idx.Mode()),
		Enabled:    idx.Enabled(),
		SiteIDs:    scope.SiteIDs,
		Categories: scope.Categories,
		Subtypes:   scope.Subtypes,
		Fields:     make([]IndexField, 0, len(idx.Mappings())),
	}
	for _, m := range idx.Mappings() {
		resp.Fields = append(resp.Fields, IndexField{
			Name:    m.Name(),
			Source:  m.Source(),
			Type:    string(m.FieldType()),
			Weight:  m.Weight(),
			Enabled: m.Enabled(),
			Role:    string(m.Role()),
		})
	}
	return resp
}
