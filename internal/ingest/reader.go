package ingest

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/property-scorer/internal/adapter"
	"github.com/sells-group/property-scorer/internal/fetcher"
)

// Item is one raw record read from a source. Raw is the record as read, kept
// for the failure log; Err is set when the record could not be decoded.
type Item struct {
	Record adapter.RawSourceRecord
	Raw    json.RawMessage
	Err    error
}

// Reader yields source records to fn in source order. Returning an error
// from fn stops the read.
type Reader interface {
	Read(ctx context.Context, fn func(Item) error) error
	// Name labels the source in failures and history.
	Name() string
}

// DecodeRecord turns a stored raw record back into a RawSourceRecord for
// mode. JSON objects of the shape {"source","fields"} are taken as vNext
// envelopes; any other object is the record's fields and source names it.
func DecodeRecord(mode adapter.SchemaMode, source string, raw json.RawMessage) (adapter.RawSourceRecord, error) {
	switch mode {
	case adapter.SchemaLegacy:
		var rec adapter.LegacyRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, eris.Wrap(err, "ingest: decode legacy record")
		}
		return rec, nil
	case adapter.SchemaVNext:
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, eris.Wrap(err, "ingest: decode vnext record")
		}
		if inner, ok := fields["fields"].(map[string]any); ok {
			if s, ok := fields["source"].(string); ok && len(fields) == 2 {
				return adapter.VNextRecord{Source: s, Fields: inner}, nil
			}
		}
		return adapter.VNextRecord{Source: source, Fields: fields}, nil
	}
	return nil, eris.Errorf("ingest: unknown schema mode %q", mode)
}

// rowRecord maps a header-keyed row onto a record for mode.
func rowRecord(mode adapter.SchemaMode, source string, row map[string]string) (adapter.RawSourceRecord, json.RawMessage) {
	raw, _ := json.Marshal(row)
	if mode == adapter.SchemaLegacy {
		return adapter.LegacyRecordFromRow(row), raw
	}
	fields := make(map[string]any, len(row))
	for k, v := range row {
		if v != "" {
			fields[k] = v
		}
	}
	return adapter.VNextRecord{Source: source, Fields: fields}, raw
}

// FileReader reads a CSV, XLSX or JSON export from a path or URL.
type FileReader struct {
	Path    string
	Format  fetcher.Format
	Mode    adapter.SchemaMode
	Source  string // vNext source identifier
	Fetcher fetcher.Fetcher
	CSV     fetcher.CSVOptions
	XLSX    fetcher.XLSXOptions
}

// Name implements Reader.
func (r *FileReader) Name() string {
	if r.Source != "" {
		return r.Source
	}
	return "file"
}

// Read implements Reader.
func (r *FileReader) Read(ctx context.Context, fn func(Item) error) error {
	format := r.Format
	if format == "" {
		f, err := fetcher.ParseFormat("", r.Path)
		if err != nil {
			return err
		}
		format = f
	}

	switch format {
	case fetcher.FormatCSV:
		body, err := fetcher.Open(ctx, r.Fetcher, r.Path)
		if err != nil {
			return err
		}
		defer body.Close() //nolint:errcheck
		rows, errs := fetcher.StreamCSV(ctx, body, r.CSV)
		return r.drainRows(rows, errs, fn)

	case fetcher.FormatXLSX:
		path, err := fetcher.LocalPath(ctx, r.Fetcher, r.Path, "")
		if err != nil {
			return err
		}
		if path != r.Path {
			defer os.Remove(path) //nolint:errcheck
		}
		rows, errs := fetcher.StreamXLSX(ctx, path, r.XLSX)
		return r.drainRows(rows, errs, fn)

	case fetcher.FormatJSON:
		body, err := fetcher.Open(ctx, r.Fetcher, r.Path)
		if err != nil {
			return err
		}
		defer body.Close() //nolint:errcheck
		items, errs := fetcher.StreamJSON(ctx, body)
		for raw := range items {
			if err := fn(r.jsonItem(raw)); err != nil {
				drain(items)
				return err
			}
		}
		return <-errs
	}
	return eris.Errorf("ingest: unsupported format %q", format)
}

func (r *FileReader) jsonItem(raw json.RawMessage) Item {
	rec, err := DecodeRecord(r.Mode, r.Source, raw)
	return Item{Record: rec, Raw: raw, Err: err}
}

func (r *FileReader) drainRows(rows <-chan map[string]string, errs <-chan error, fn func(Item) error) error {
	for row := range rows {
		rec, raw := rowRecord(r.Mode, r.Source, row)
		if err := fn(Item{Record: rec, Raw: raw}); err != nil {
			drain(rows)
			return err
		}
	}
	return <-errs
}

// drain empties ch so the producing goroutine can exit.
func drain[T any](ch <-chan T) {
	for range ch {
	}
}

// DatasetIterator is the part of the Apify client the dataset reader needs.
type DatasetIterator interface {
	IterateDataset(ctx context.Context, datasetID string, pageSize int, fn func(json.RawMessage) error) error
}

// DatasetReader reads the items of an Apify dataset.
type DatasetReader struct {
	Client    DatasetIterator
	DatasetID string
	Mode      adapter.SchemaMode
	Source    string
	PageSize  int
}

// Name implements Reader.
func (r *DatasetReader) Name() string {
	if r.Source != "" {
		return r.Source
	}
	return "apify:" + r.DatasetID
}

// Read implements Reader.
func (r *DatasetReader) Read(ctx context.Context, fn func(Item) error) error {
	if r.Client == nil || strings.TrimSpace(r.DatasetID) == "" {
		return eris.New("ingest: dataset reader needs a client and dataset id")
	}
	err := r.Client.IterateDataset(ctx, r.DatasetID, r.PageSize, func(raw json.RawMessage) error {
		rec, err := DecodeRecord(r.Mode, r.Source, raw)
		return fn(Item{Record: rec, Raw: raw, Err: err})
	})
	return eris.Wrapf(err, "ingest: read dataset %s", r.DatasetID)
}
