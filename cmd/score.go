package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-scorer/internal/analyze"
	"github.com/sells-group/property-scorer/internal/config"
	"github.com/sells-group/property-scorer/internal/model"
	"github.com/sells-group/property-scorer/internal/outreach"
	"github.com/sells-group/property-scorer/pkg/notion"
)

type scoreFlags struct {
	all        bool
	county     string
	limit      int
	dryRun     bool
	pushNotion bool
	ai         bool
}

var scoreOpts scoreFlags

// scoreOutput is printed by the score command.
type scoreOutput struct {
	RulesHash    string             `json:"rules_hash"`
	DefaultRules bool               `json:"default_rules"`
	Stats        analyze.BatchStats `json:"stats"`
	Outreach     *outreach.Stats    `json:"outreach,omitempty"`
	Top          []scoreLine        `json:"top"`
}

type scoreLine struct {
	PropertyID  string         `json:"property_id"`
	Address     string         `json:"address"`
	Score       int            `json:"score"`
	Priority    model.Priority `json:"priority"`
	UrgencyDays *int           `json:"urgency_days,omitempty"`
}

const topLines = 20

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score stored properties and persist the results",
	Long: `Scores properties never scored or scored under other rules (all with
--all), saves the score snapshots, records rescored history, and optionally
pushes high-priority properties to the Notion outreach database.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := withSignals(cmd.Context())
		defer stop()

		if scoreOpts.pushNotion {
			if err := cfg.Validate(config.ModeOutreach); err != nil {
				return err
			}
		}
		st, err := openStore(ctx, config.ModeScore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		engine := newEngine(cfg)
		a := newAnalyzer(cfg, st, engine, scoreOpts.ai)
		res, err := a.ScoreBatch(ctx, st, analyze.BatchOptions{
			County:      scoreOpts.county,
			All:         scoreOpts.all,
			Limit:       scoreOpts.limit,
			Concurrency: cfg.Batch.MaxConcurrency,
			PageSize:    cfg.Batch.PageSize,
			Narrate:     scoreOpts.ai,
			DryRun:      scoreOpts.dryRun,
		})
		if err != nil {
			return eris.Wrap(err, "score")
		}

		out := scoreOutput{
			RulesHash:    engine.RulesHash(),
			DefaultRules: engine.UsingDefaults(),
			Stats:        res.Stats,
		}
		for i, an := range res.Analyses {
			if i == topLines {
				break
			}
			out.Top = append(out.Top, scoreLine{
				PropertyID:  an.Property.ID,
				Address:     an.Property.FullAddress,
				Score:       an.Score.Score,
				Priority:    an.Score.Priority,
				UrgencyDays: an.Score.UrgencyDays,
			})
		}

		if scoreOpts.pushNotion && !scoreOpts.dryRun {
			minPriority, _ := model.ParsePriority(cfg.Notion.MinPriority)
			pusher := outreach.NewPusher(notion.NewClient(cfg.Notion.Token, notion.WithRetries(cfg.Resilience.Retry().MaxAttempts)), cfg.Notion.OutreachDB, minPriority)
			analyses := make([]model.AnalysisResponse, len(res.Analyses))
			for i, an := range res.Analyses {
				analyses[i] = *an
			}
			ps, err := pusher.Push(ctx, analyses)
			if err != nil {
				return eris.Wrap(err, "score: push outreach")
			}
			out.Outreach = &ps
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

func init() {
	f := scoreCmd.Flags()
	f.BoolVar(&scoreOpts.all, "all", false, "rescore every property, not only stale ones")
	f.StringVar(&scoreOpts.county, "county", "", "only score properties in this county")
	f.IntVar(&scoreOpts.limit, "limit", 0, "max properties to score (0 = no limit)")
	f.BoolVar(&scoreOpts.dryRun, "dry-run", false, "score without saving or pushing")
	f.BoolVar(&scoreOpts.pushNotion, "push-notion", false, "push qualifying properties to the Notion outreach database")
	f.BoolVar(&scoreOpts.ai, "ai", false, "attach narratives to the scored analyses")
	rootCmd.AddCommand(scoreCmd)
}
