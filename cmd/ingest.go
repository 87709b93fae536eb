package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/config"
	"github.com/sells-group/property-scorer/internal/fetcher"
	"github.com/sells-group/property-scorer/internal/ingest"
	"github.com/sells-group/property-scorer/internal/store"
)

type ingestFlags struct {
	mode      string
	source    string
	file      string
	format    string
	sheet     string
	delimiter string
	dataset   string
	pageSize  int
	dryRun    bool
	noGeo     bool
}

var ingestOpts ingestFlags

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest source records from a file or an Apify dataset",
	Long: `Reads legacy rows or vNext source records, converts them to canonical
properties with their distress events and contacts, resolves geography,
records sale-date and status changes, and upserts the result. Records that
fail are kept for "failures retry".`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := withSignals(cmd.Context())
		defer stop()

		mode, err := ingestMode(ingestOpts.mode)
		if err != nil {
			return err
		}
		validate := config.ModeIngest
		if ingestOpts.dataset != "" {
			validate = config.ModeApify
		}
		st, err := openStore(ctx, validate)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		r, err := buildReader(ingestOpts, mode)
		if err != nil {
			return err
		}

		stats, err := newIngester(st, mode, ingestOpts.dryRun, ingestOpts.noGeo).Run(ctx, r)
		if err != nil {
			return eris.Wrap(err, "ingest")
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

func ingestMode(flag string) (adapter.SchemaMode, error) {
	if flag == "" {
		return cfg.SchemaMode(), nil
	}
	return adapter.ParseSchemaMode(flag)
}

// buildReader picks the reader named by the flags: a dataset when
// --apify-dataset is set, else a file.
func buildReader(f ingestFlags, mode adapter.SchemaMode) (ingest.Reader, error) {
	switch {
	case f.dataset != "" && f.file != "":
		return nil, eris.New("ingest: use either --file or --apify-dataset, not both")
	case f.dataset != "":
		return &ingest.DatasetReader{
			Client:    newApify(cfg),
			DatasetID: f.dataset,
			Mode:      mode,
			Source:    f.source,
			PageSize:  f.pageSize,
		}, nil
	case f.file != "":
		format, err := fetcher.ParseFormat(f.format, f.file)
		if err != nil {
			return nil, err
		}
		r := &ingest.FileReader{
			Path:    f.file,
			Format:  format,
			Mode:    mode,
			Source:  f.source,
			Fetcher: fetcher.NewHTTPFetcher(fetcher.HTTPOptions{}),
			XLSX:    fetcher.XLSXOptions{SheetName: f.sheet},
		}
		if f.delimiter != "" {
			r.CSV.Delimiter = []rune(f.delimiter)[0]
		}
		return r, nil
	}
	return nil, eris.New("ingest: --file or --apify-dataset is required")
}

func newIngester(st store.Store, mode adapter.SchemaMode, dryRun, noGeo bool) *ingest.Ingester {
	opts := []ingest.Option{
		ingest.WithDryRun(dryRun),
		ingest.WithMaxRetries(cfg.Ingest.MaxRetries),
	}
	if !noGeo {
		engine := newEngine(cfg)
		opts = append(opts, ingest.WithResolver(newGeoService(cfg, st), proximityOptions(engine), cfg.Geo.Concurrency))
	}
	return ingest.New(st, mode, newConverter(cfg), opts...)
}

func init() {
	f := ingestCmd.Flags()
	f.StringVar(&ingestOpts.mode, "mode", "", "record schema: legacy or vnext (default from adapter.schema_mode)")
	f.StringVar(&ingestOpts.source, "source", "", "vNext source identifier (e.g. wilsonassociates)")
	f.StringVar(&ingestOpts.file, "file", "", "path or URL of a csv, xlsx or json export")
	f.StringVar(&ingestOpts.format, "format", "", "file format: csv, xlsx or json (default from extension)")
	f.StringVar(&ingestOpts.sheet, "sheet", "", "xlsx sheet name (default first sheet)")
	f.StringVar(&ingestOpts.delimiter, "delimiter", "", "csv field delimiter (default comma)")
	f.StringVar(&ingestOpts.dataset, "apify-dataset", "", "Apify dataset ID to read")
	f.IntVar(&ingestOpts.pageSize, "page-size", 1000, "Apify dataset page size")
	f.BoolVar(&ingestOpts.dryRun, "dry-run", false, "report changes without writing")
	f.BoolVar(&ingestOpts.noGeo, "no-geo", false, "skip county and distance resolution")
	rootCmd.AddCommand(ingestCmd)
}

