package main

import (
	"github.com/spf13/cobra"

	"github.com/sells-group/property-scorer/internal/api"
	"github.com/sells-group/property-scorer/internal/config"
	"github.com/sells-group/property-scorer/internal/resilience"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the property and analysis API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := withSignals(cmd.Context())
		defer stop()

		st, err := openStore(ctx, config.ModeServe)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine := newEngine(cfg)
		geoSvc := newGeoService(cfg, st)
		orch := newOrchestrator(cfg, st)
		srv := api.New(st, newAnalyzer(cfg, st, engine, false), newConverter(cfg), cfg.SchemaMode(),
			api.WithResolver(geoSvc, proximityOptions(engine)),
			api.WithEnricher(orch),
			api.WithAllowedOrigins(cfg.Server.AllowedOrigins),
			api.WithCircuits(func() map[string]resilience.CircuitState {
				states := orch.BreakerStates()
				states["geocode"] = geoSvc.BreakerState()
				return states
			}),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		return srv.ListenAndServe(ctx, port)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
