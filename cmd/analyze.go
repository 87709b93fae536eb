package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-scorer/internal/config"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <property-id>",
	Short: "Score one stored property and print its analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := withSignals(cmd.Context())
		defer stop()

		st, err := openStore(ctx, config.ModeScore)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ai, _ := cmd.Flags().GetBool("ai")
		resp, err := newAnalyzer(cfg, st, newEngine(cfg), ai).Analyze(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "analyze")
		}
		return printJSON(cmd.OutOrStdout(), resp)
	},
}

func init() {
	analyzeCmd.Flags().Bool("ai", false, "attach a narrative even when insight.enabled is false")
	rootCmd.AddCommand(analyzeCmd)
}
