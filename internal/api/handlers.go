package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/enrich"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/ingest"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/internal/store"
)

// Request limits.
const (
	defaultListLimit    = 50
	maxListLimit        = 500
	defaultHistoryLimit = 100
	maxBodyBytes        = 1 << 20
	manualProvider      = "manual"
)

// healthResponse is the body of GET /health.
type healthResponse struct {
	Status   string            `json:"status"`
	Store    string            `json:"store,omitempty"`
	Circuits map[string]string `json:"circuits,omitempty"`
}

// health fails only when the store is unreachable. An open upstream
// circuit marks the service degraded but still answers 200.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok"}
	if s.circuits != nil {
		resp.Circuits = make(map[string]string)
		for name, st := range s.circuits() {
			resp.Circuits[name] = st.String()
			if st == resilience.CircuitOpen {
				resp.Status = "degraded"
			}
		}
	}
	if err := s.store.Ping(r.Context()); err != nil {
		resp.Status = "degraded"
		resp.Store = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	st, err := s.store.Stats(r.Context())
	if err != nil {
		internalError(w, r, "failed to read stats", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// listQuery is the parsed query of GET /api/properties.
type listQuery struct {
	County   string `query:"county" validate:"max=64"`
	Priority string `query:"priority" validate:"omitempty,oneof=low medium high urgent"`
	MinScore *int   `query:"min_score" validate:"omitempty,min=0,max=100"`
	Limit    int    `query:"limit" validate:"min=0,max=500"`
	Offset   int    `query:"offset" validate:"min=0"`
}

func parseListQuery(r *http.Request) (listQuery, error) {
	q := r.URL.Query()
	lq := listQuery{County: q.Get("county"), Priority: q.Get("priority")}
	ints := []struct {
		key string
		dst *int
	}{{"limit", &lq.Limit}, {"offset", &lq.Offset}}
	for _, it := range ints {
		if v := q.Get(it.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return lq, errors.New(it.key + " must be an integer")
			}
			*it.dst = n
		}
	}
	if v := q.Get("min_score"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return lq, errors.New("min_score must be an integer")
		}
		lq.MinScore = &n
	}
	return lq, nil
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request) {
	lq, err := parseListQuery(r)
	if err == nil {
		err = s.validate.Struct(lq)
	}
	if err != nil {
		validationError(w, err)
		return
	}
	if lq.Limit == 0 {
		lq.Limit = defaultListLimit
	}
	props, err := s.store.ListProperties(r.Context(), store.PropertyFilter{
		County:   lq.County,
		Priority: model.Priority(lq.Priority),
		MinScore: lq.MinScore,
		Limit:    min(lq.Limit, maxListLimit),
		Offset:   lq.Offset,
	})
	if err != nil {
		internalError(w, r, "failed to list properties", err)
		return
	}
	if props == nil {
		props = []store.PropertySummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"properties": props,
		"count":      len(props),
		"limit":      lq.Limit,
		"offset":     lq.Offset,
	})
}

// loadBundle loads the {id} property, answering 404 or 500 itself when it
// cannot.
func (s *Server) loadBundle(w http.ResponseWriter, r *http.Request) (*model.Bundle, bool) {
	id := chi.URLParam(r, "id")
	b, err := s.store.LoadBundle(r.Context(), id)
	switch {
	case err == nil:
		return b, true
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, CodeNotFound, "property "+id+" not found")
	default:
		internalError(w, r, "failed to load property", err)
	}
	return nil, false
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request) {
	b, ok := s.loadBundle(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := s.analyzer.Analyze(r.Context(), id)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case store.IsNotFound(err):
		writeError(w, http.StatusNotFound, CodeNotFound, "property "+id+" not found")
	default:
		internalError(w, r, "failed to analyze property", err)
	}
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	if _, ok := s.loadBundle(w, r); !ok {
		return
	}
	entries, err := s.store.ListHistory(r.Context(), id, limit)
	if err != nil {
		internalError(w, r, "failed to list history", err)
		return
	}
	if entries == nil {
		entries = []model.HistoryEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

// AnalyzeRequest is the body of POST /api/analyze: one raw source record
// in either schema.
type AnalyzeRequest struct {
	Mode   string          `json:"mode" validate:"omitempty,oneof=legacy vnext"`
	Source string          `json:"source" validate:"max=64"`
	Record json.RawMessage `json:"record" validate:"required"`
}

func (s *Server) analyzeRecord(w http.ResponseWriter, r *http.Request) {
	var req AnalyzeRequest
	if !s.decode(w, r, &req, false) {
		return
	}

	mode := s.mode
	if req.Mode != "" {
		mode = adapter.SchemaMode(req.Mode)
	}
	rec, err := ingest.DecodeRecord(mode, req.Source, req.Record)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "record is not a "+string(mode)+" record")
		return
	}
	conv := s.conv
	if conv.VNext.Now.IsZero() {
		conv.VNext.Now = time.Now().UTC()
	}
	b, err := conv.Convert(mode, rec)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, err.Error())
		return
	}
	if b.Property.FullAddress == "" {
		writeError(w, http.StatusUnprocessableEntity, CodeUnprocessable, "record has no property address")
		return
	}

	if s.resolver != nil {
		opts := s.proximity
		opts.PrimaryOnly = mode == adapter.SchemaLegacy
		geo.ApplyProximity(r.Context(), s.resolver, &b.Property, opts)
	}
	writeJSON(w, http.StatusOK, s.analyzer.Build(r.Context(), b))
}

// EnrichRequest is the optional body of POST /api/properties/{id}/enrich.
// With contact data, the data is merged as the named provider's result;
// without, the configured providers are run.
type EnrichRequest struct {
	Provider string `json:"provider" validate:"max=64"`
	enrich.Result
}

// EnrichResponse reports one enrichment.
type EnrichResponse struct {
	PropertyID string         `json:"property_id"`
	Provider   string         `json:"provider,omitempty"`
	Found      bool           `json:"found"`
	Contact    *model.Contact `json:"contact,omitempty"`
	Warnings   []string       `json:"warnings,omitempty"`
}

func (s *Server) enrichProperty(w http.ResponseWriter, r *http.Request) {
	if s.enricher == nil {
		writeError(w, http.StatusServiceUnavailable, CodeUnavailable, "enrichment is not configured")
		return
	}
	var req EnrichRequest
	if !s.decode(w, r, &req, true) {
		return
	}
	b, ok := s.loadBundle(w, r)
	if !ok {
		return
	}

	target := enrich.TargetFor(*b)
	var (
		out enrich.Outcome
		err error
	)
	if req.Empty() {
		out, err = s.enricher.Run(r.Context(), target)
	} else {
		provider := req.Provider
		if provider == "" {
			provider = manualProvider
		}
		out, err = s.enricher.Apply(r.Context(), target, provider, req.Result)
	}
	if err != nil {
		internalError(w, r, "failed to save enrichment", err)
		return
	}
	if out.Err != nil {
		writeError(w, http.StatusBadGateway, CodeUpstream, out.Err.Error())
		return
	}

	resp := EnrichResponse{PropertyID: b.Property.ID, Provider: out.Provider, Found: out.Found()}
	if out.Merged != nil {
		resp.Contact = &out.Merged.Contact
		resp.Warnings = out.Merged.Warnings
	}
	writeJSON(w, http.StatusOK, resp)
}

// decode reads a JSON body into dst and validates it. An empty body is
// accepted when optional.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "invalid request body")
			return false
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		validationError(w, err)
		return false
	}
	return true
}
