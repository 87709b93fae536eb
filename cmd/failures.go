package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-scorer/internal/config"
	"github.com/sells-group/property-scorer/internal/resilience"
)

var failuresCmd = &cobra.Command{
	Use:   "failures",
	Short: "Inspect and replay failed records",
	Long:  "Commands for listing records that failed ingest or enrichment, and replaying ingest failures.",
}

func failureFilter(cmd *cobra.Command) resilience.FailureFilter {
	errType, _ := cmd.Flags().GetString("error-type")
	source, _ := cmd.Flags().GetString("source")
	limit, _ := cmd.Flags().GetInt("limit")
	return resilience.FailureFilter{ErrorType: errType, Source: source, Limit: limit}
}

// -- failures list --

var failuresListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded failures",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx, config.ModeIngest)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		failures, err := st.ListFailures(ctx, failureFilter(cmd))
		if err != nil {
			return eris.Wrap(err, "failures list")
		}
		if len(failures) == 0 {
			fmt.Fprintln(os.Stderr, "No failures recorded.")
			return nil
		}
		formatFailures(cmd.OutOrStdout(), failures)
		return nil
	},
}

// -- failures retry --

var failuresRetryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Replay ingest failures that have retries left",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := withSignals(cmd.Context())
		defer stop()

		st, err := openStore(ctx, config.ModeIngest)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		dryRun, _ := cmd.Flags().GetBool("dry-run")
		stats, err := newIngester(st, cfg.SchemaMode(), dryRun, false).Retry(ctx, failureFilter(cmd))
		if err != nil {
			return eris.Wrap(err, "failures retry")
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

func formatFailures(w io.Writer, failures []resilience.Failure) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tMODE\tTYPE\tRETRIES\tLAST FAILED\tERROR")
	for _, f := range failures {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\t%s\n",
			shortID(f.ID), f.Source, f.Mode, f.ErrorType,
			f.RetryCount, f.MaxRetries,
			f.LastFailed.Format("2006-01-02 15:04"),
			truncate(f.Error, 80),
		)
	}
	tw.Flush() //nolint:errcheck
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func init() {
	for _, c := range []*cobra.Command{failuresListCmd, failuresRetryCmd} {
		c.Flags().String("error-type", "", "filter by error type (transient, permanent)")
		c.Flags().String("source", "", "filter by source")
		c.Flags().Int("limit", 100, "max number of failures")
	}
	failuresRetryCmd.Flags().Bool("dry-run", false, "replay without writing")

	failuresCmd.AddCommand(failuresListCmd, failuresRetryCmd)
	rootCmd.AddCommand(failuresCmd)
}
