package main

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/property-scorer/internal/config"
	"github.com/sells-group/property-scorer/internal/enrich"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/store"
)

type enrichFlags struct {
	limit  int
	county string
	all    bool
}

var enrichOpts enrichFlags

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Skip-trace owners of properties without a reachable contact",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := withSignals(cmd.Context())
		defer stop()

		st, err := openStore(ctx, config.ModeEnrich)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		targets, err := enrichTargets(ctx, st, enrichOpts)
		if err != nil {
			return err
		}
		if len(targets) == 0 {
			zap.L().Info("enrich: nothing to enrich")
			return printJSON(cmd.OutOrStdout(), enrich.BatchStats{})
		}

		_, stats, err := newOrchestrator(cfg, st).EnrichBatch(ctx, targets)
		if err != nil {
			return eris.Wrap(err, "enrich")
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

// enrichTargets pages through stored properties and keeps those with no
// reachable linked contact (every property with all), up to limit.
func enrichTargets(ctx context.Context, st store.Store, f enrichFlags) ([]enrich.Target, error) {
	const page = 200
	filter := store.PropertyFilter{County: f.county, Limit: page}

	var out []enrich.Target
	for {
		props, err := st.ListProperties(ctx, filter)
		if err != nil {
			return nil, eris.Wrap(err, "enrich: list properties")
		}
		for _, p := range props {
			b, err := st.LoadBundle(ctx, p.Property.ID)
			if err != nil {
				return nil, eris.Wrapf(err, "enrich: load %s", p.Property.ID)
			}
			t := enrich.TargetFor(*b)
			if !f.all && reachable(t.Contacts) {
				continue
			}
			out = append(out, t)
			if f.limit > 0 && len(out) >= f.limit {
				return out, nil
			}
		}
		if len(props) < page {
			return out, nil
		}
		filter.Offset += len(props)
	}
}

func reachable(contacts []model.Contact) bool {
	for _, c := range contacts {
		if c.Reachable() {
			return true
		}
	}
	return false
}

func init() {
	f := enrichCmd.Flags()
	f.IntVar(&enrichOpts.limit, "limit", 50, "max properties to enrich (0 = no limit)")
	f.StringVar(&enrichOpts.county, "county", "", "only enrich properties in this county")
	f.BoolVar(&enrichOpts.all, "all", false, "re-enrich properties that already have a reachable contact")
	rootCmd.AddCommand(enrichCmd)
}
