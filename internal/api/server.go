// Package api serves stored properties, their analyses and history over
// HTTP, scores unsaved records on demand, and accepts enrichment results.
package api

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/analyze"
	"github.com/sells-group/property-scorer/internal/enrich"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/internal/store"
)

// Store is the persistence the API reads from.
type Store interface {
	LoadBundle(ctx context.Context, propertyID string) (*model.Bundle, error)
	ListProperties(ctx context.Context, filter store.PropertyFilter) ([]store.PropertySummary, error)
	ListHistory(ctx context.Context, propertyID string, limit int) ([]model.HistoryEntry, error)
	Stats(ctx context.Context) (*store.Stats, error)
	Ping(ctx context.Context) error
}

// Enricher runs or applies enrichment for one property.
type Enricher interface {
	Run(ctx context.Context, t enrich.Target) (enrich.Outcome, error)
	Apply(ctx context.Context, t enrich.Target, provider string, res enrich.Result) (enrich.Outcome, error)
}

// Server holds the API's dependencies.
type Server struct {
	store     Store
	analyzer  *analyze.Analyzer
	conv      adapter.Converter
	mode      adapter.SchemaMode
	resolver  geo.Resolver
	proximity geo.ProximityOptions
	enricher  Enricher
	origins   []string
	circuits  func() map[string]resilience.CircuitState
	validate  *validator.Validate
}

// Option configures a Server.
type Option func(*Server)

// WithResolver resolves geography of records posted to /api/analyze.
func WithResolver(r geo.Resolver, opts geo.ProximityOptions) Option {
	return func(s *Server) {
		s.resolver = r
		s.proximity = opts
	}
}

// WithEnricher enables POST /api/properties/{id}/enrich.
func WithEnricher(e Enricher) Option { return func(s *Server) { s.enricher = e } }

// WithAllowedOrigins sets the CORS origins. Defaults to any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.origins = origins
		}
	}
}

// WithCircuits reports upstream circuit breaker states on /health.
func WithCircuits(fn func() map[string]resilience.CircuitState) Option {
	return func(s *Server) { s.circuits = fn }
}

// New creates a Server. mode is the schema assumed for posted records that
// do not name one.
func New(st Store, a *analyze.Analyzer, conv adapter.Converter, mode adapter.SchemaMode, opts ...Option) *Server {
	s := &Server{
		store:    st,
		analyzer: a,
		conv:     conv,
		mode:     mode,
		origins:  []string{"*"},
		validate: newValidator(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		for _, tag := range []string{"json", "query"} {
			name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
			if name != "" && name != "-" {
				return name
			}
		}
		return f.Name
	})
	return v
}

// Routes returns the API handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", s.stats)
		r.Post("/analyze", s.analyzeRecord)
		r.Route("/properties", func(r chi.Router) {
			r.Get("/", s.listProperties)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.getProperty)
				r.Get("/analysis", s.getAnalysis)
				r.Get("/history", s.getHistory)
				r.Post("/enrich", s.enrichProperty)
			})
		})
	})
	return r
}

// ListenAndServe serves the API on port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		zap.L().Info("api: listening", zap.Int("port", port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return eris.Wrap(err, "api: listen")
	case <-ctx.Done():
		zap.L().Info("api: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return eris.Wrap(srv.Shutdown(shutdownCtx), "api: shutdown")
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
