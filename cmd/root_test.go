package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/config"
	"github.com/sells-group/property-scorer/internal/fetcher"
	"github.com/sells-group/property-scorer/internal/ingest"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/resilience"
	"github.com/sells-group/property-scorer/internal/scorer"
)

func testConfig() *config.Config {
	return &config.Config{
		Adapter: config.AdapterConfig{SchemaMode: "vnext", State: "TN"},
		Enrich:  config.EnrichConfig{Confidence: 0.7, NamedConfidence: 0.8},
		Insight: config.InsightConfig{Enabled: true, TimeoutSecs: 5},
		Apify:   config.ApifyConfig{Token: "tok", BaseURL: "https://api.apify.com/v2", RateLimit: 5},
	}
}

func TestNewEngine_RulesFallback(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("weights: {has_contact: -5}\n"), 0o600))

	tests := []struct {
		name     string
		rules    config.RulesConfig
		defaults bool
	}{
		{"no rules configured", config.RulesConfig{}, false},
		{"invalid rules file", config.RulesConfig{File: bad}, true},
		{"missing rules file", config.RulesConfig{File: filepath.Join(dir, "missing.yaml")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Rules = tt.rules

			engine := newEngine(cfg)
			assert.Equal(t, tt.defaults, engine.UsingDefaults())

			res := engine.Score(scorer.Input{Property: model.Property{ID: "p1"}}, time.Now())
			if tt.defaults {
				assert.Contains(t, res.Warnings, scorer.WarnDefaultRulesUsed)
			} else {
				assert.NotContains(t, res.Warnings, scorer.WarnDefaultRulesUsed)
			}
		})
	}
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"migrate", "ingest", "failures", "analyze", "score", "enrich", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "property-scorer", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestIngestCommand_Flags(t *testing.T) {
	for _, name := range []string{"mode", "source", "file", "format", "apify-dataset", "dry-run"} {
		assert.NotNil(t, ingestCmd.Flags().Lookup(name), "ingest should have --%s", name)
	}
}

func TestScoreCommand_Flags(t *testing.T) {
	for _, name := range []string{"all", "county", "limit", "dry-run", "push-notion", "ai"} {
		assert.NotNil(t, scoreCmd.Flags().Lookup(name), "score should have --%s", name)
	}
	assert.Equal(t, "0", scoreCmd.Flags().Lookup("limit").DefValue)
}

func TestEnrichCommand_Flags(t *testing.T) {
	flag := enrichCmd.Flags().Lookup("limit")
	require.NotNil(t, flag)
	assert.Equal(t, "50", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestFailuresCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range failuresCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["list"])
	assert.True(t, names["retry"])
}

func TestBuildReader(t *testing.T) {
	cfg = testConfig()

	r, err := buildReader(ingestFlags{file: "export.xlsx", sheet: "Sales", source: "wilsonassociates"}, adapter.SchemaVNext)
	require.NoError(t, err)
	fr, ok := r.(*ingest.FileReader)
	require.True(t, ok)
	assert.Equal(t, fetcher.FormatXLSX, fr.Format)
	assert.Equal(t, "Sales", fr.XLSX.SheetName)
	assert.Equal(t, "wilsonassociates", fr.Name())

	r, err = buildReader(ingestFlags{file: "rows.txt", delimiter: ";"}, adapter.SchemaLegacy)
	require.NoError(t, err)
	assert.Equal(t, ';', r.(*ingest.FileReader).CSV.Delimiter)

	r, err = buildReader(ingestFlags{dataset: "ds-1"}, adapter.SchemaVNext)
	require.NoError(t, err)
	dr, ok := r.(*ingest.DatasetReader)
	require.True(t, ok)
	assert.Equal(t, "apify:ds-1", dr.Name())

	_, err = buildReader(ingestFlags{}, adapter.SchemaVNext)
	assert.Error(t, err)
	_, err = buildReader(ingestFlags{file: "a.csv", dataset: "ds-1"}, adapter.SchemaVNext)
	assert.Error(t, err)
}

func TestIngestMode(t *testing.T) {
	cfg = testConfig()

	m, err := ingestMode("")
	require.NoError(t, err)
	assert.Equal(t, adapter.SchemaVNext, m)

	m, err = ingestMode("legacy")
	require.NoError(t, err)
	assert.Equal(t, adapter.SchemaLegacy, m)

	_, err = ingestMode("xml")
	assert.Error(t, err)
}

func TestNewNarrator(t *testing.T) {
	c := testConfig()
	assert.NotNil(t, newNarrator(c, false))

	c.Insight.Enabled = false
	assert.Nil(t, newNarrator(c, false))
	assert.NotNil(t, newNarrator(c, true))
}

func TestFormatFailures(t *testing.T) {
	var buf bytes.Buffer
	formatFailures(&buf, []resilience.Failure{{
		ID:         "0123456789abcdef",
		Source:     "wilsonassociates",
		Mode:       "vnext",
		ErrorType:  "transient",
		RetryCount: 1,
		MaxRetries: 3,
		Error:      "store: upsert bundle: database is locked",
		LastFailed: time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC),
	}})

	out := buf.String()
	assert.Contains(t, out, "SOURCE")
	assert.Contains(t, out, "01234567")
	assert.NotContains(t, out, "0123456789abcdef")
	assert.Contains(t, out, "1/3")
	assert.Contains(t, out, "2026-03-14 15:00")
}

func TestReachable(t *testing.T) {
	assert.False(t, reachable(nil))
	assert.True(t, reachable([]model.Contact{{Phones: []model.Phone{{Number: "(615) 555-0100"}}}}))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
