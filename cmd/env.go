package main

import (
	"context"
	"encoding/json"
	"io"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/analyze"
	"github.com/sells-group/property-scorer/internal/config"
	"github.com/sells-group/property-scorer/internal/enrich"
	"github.com/sells-group/property-scorer/internal/geo"
	"github.com/sells-group/property-scorer/internal/insight"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/internal/scorer"
	"github.com/sells-group/property-scorer/internal/store"
	"github.com/sells-group/property-scorer/pkg/anthropic"
	"github.com/sells-group/property-scorer/pkg/apify"
	"github.com/sells-group/property-scorer/pkg/geocode"
	"github.com/sells-group/property-scorer/pkg/skiptrace"
)

// openStore validates cfg for mode, opens the configured store and applies
// migrations.
func openStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}
	st, err := initStore(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		st.Close() //nolint:errcheck
		return nil, err
	}
	return st, nil
}

func initStore(ctx context.Context, sc config.StoreConfig) (store.Store, error) {
	switch sc.Driver {
	case "sqlite":
		return store.NewSQLite(sc.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, sc.DatabaseURL, sc.Pool)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", sc.Driver)
	}
}

// newEngine builds the scoring engine from the configured rules. Rules that
// fail to load fall back to the defaults with a warning.
func newEngine(c *config.Config) *scorer.Engine {
	rules, err := c.Rules.LoadRules()
	if err != nil {
		zap.L().Warn("scorer: load investor rules, using defaults", zap.Error(err))
		return scorer.NewFallbackEngine()
	}
	return scorer.NewEngine(rules)
}

// newGeoService resolves through the city table, the store's geocode cache
// and, when enabled, the Census/Google geocoder.
func newGeoService(c *config.Config, cache geo.Cache) *geo.Service {
	var gc geocode.Client
	if c.Geocode.Enabled {
		opts := []geocode.Option{geocode.WithRateLimit(c.Geocode.RateLimit)}
		if c.Geocode.GoogleAPIKey != "" {
			opts = append(opts, geocode.WithGoogleAPIKey(c.Geocode.GoogleAPIKey))
		}
		gc = geocode.NewClient(opts...)
	}
	return geo.NewService(gc,
		geo.WithCountyTable(geo.DefaultCountyTable().With(c.Geo.Counties)),
		geo.WithCache(cache),
		geo.WithLookupTimeout(c.Geo.LookupTimeout()),
		geo.WithRetry(c.Resilience.Retry()),
		geo.WithBreaker(resilience.NewCircuitBreaker(c.Resilience.Circuit())),
	)
}

func proximityOptions(engine *scorer.Engine) geo.ProximityOptions {
	return geo.ProximityOptions{
		Hubs:            geo.DefaultHubs(),
		MaxDriveMinutes: engine.Rules().MaxDriveTimeMin,
	}
}

func newConverter(c *config.Config) adapter.Converter {
	merger := enrich.Merger{Confidence: c.Enrich.Confidence, NamedConfidence: c.Enrich.NamedConfidence}
	counties := geo.DefaultCountyTable().With(c.Geo.Counties)
	return adapter.Converter{
		Legacy: adapter.LegacyAdapter{State: c.Adapter.State},
		VNext:  adapter.VNextAdapter{State: c.Adapter.State, Counties: counties, Merger: merger},
	}
}

// newNarrator returns nil when narratives are disabled. The LLM summary is
// attached only when an Anthropic key is configured.
func newNarrator(c *config.Config, force bool) *insight.Narrator {
	if !c.Insight.Enabled && !force {
		return nil
	}
	opts := []insight.Option{insight.WithTimeout(c.Insight.Timeout())}
	if c.Anthropic.Key != "" {
		opts = append(opts, insight.WithLLM(anthropic.NewClient(c.Anthropic.Key), c.Anthropic.Model, c.Anthropic.MaxTokens))
	}
	return insight.NewNarrator(opts...)
}

func newAnalyzer(c *config.Config, st analyze.BundleLoader, engine *scorer.Engine, narrate bool) *analyze.Analyzer {
	var opts []analyze.Option
	if n := newNarrator(c, narrate); n != nil {
		opts = append(opts, analyze.WithNarrator(n))
	}
	return analyze.New(st, engine, opts...)
}

func newApify(c *config.Config) apify.Client {
	return apify.NewClient(c.Apify.Token,
		apify.WithBaseURL(c.Apify.BaseURL),
		apify.WithRateLimit(c.Apify.RateLimit),
		apify.WithWaitSecs(c.Apify.WaitSecs),
	)
}

// newOrchestrator wires the skip-trace provider when credentials are set;
// without them the orchestrator can still apply posted results.
func newOrchestrator(c *config.Config, sink enrich.Sink) *enrich.Orchestrator {
	reg := enrich.NewRegistry()
	if c.Apify.Token != "" && c.SkipTrace.Username != "" {
		st := skiptrace.NewClient(newApify(c), c.SkipTrace.ActorID, skiptrace.Credentials{
			Username: c.SkipTrace.Username,
			Password: c.SkipTrace.Password,
		})
		reg.Register(enrich.SkipTraceProvider{Client: st})
	}
	return enrich.NewOrchestrator(reg,
		enrich.WithMerger(enrich.Merger{Confidence: c.Enrich.Confidence, NamedConfidence: c.Enrich.NamedConfidence}),
		enrich.WithTimeout(c.Enrich.Timeout()),
		enrich.WithMaxConcurrent(c.Enrich.MaxConcurrent),
		enrich.WithMaxRetries(c.Enrich.MaxRetries),
		enrich.WithRetry(c.Resilience.Retry()),
		enrich.WithBreakers(resilience.NewBreakers(c.Resilience.Circuit())),
		enrich.WithSink(sink),
	)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// withSignals cancels ctx on SIGINT or SIGTERM.
func withSignals(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
}
