package fetcher

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions selects the sheet to read. The first non-empty row of the
// sheet is the header.
type XLSXOptions struct {
	SheetIndex int
	SheetName  string // overrides SheetIndex
}

// StreamXLSX reads one sheet of the workbook at path and sends each data
// row, keyed by the normalized header, to the returned channel. Both
// channels are closed when reading ends.
func StreamXLSX(ctx context.Context, path string, opts XLSXOptions) (<-chan map[string]string, <-chan error) {
	rowCh := make(chan map[string]string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		f, err := xlsx.OpenFile(path)
		if err != nil {
			errCh <- eris.Wrapf(err, "xlsx: open %s", path)
			return
		}
		sheet, err := pickSheet(f, opts)
		if err != nil {
			errCh <- err
			return
		}

		var header []string
		for _, row := range sheet.Rows {
			if err := ctx.Err(); err != nil {
				errCh <- eris.Wrap(err, "xlsx: cancelled")
				return
			}
			if row == nil {
				continue
			}
			cells := cellStrings(row)
			if blank(cells) {
				continue
			}
			if header == nil {
				header = make([]string, len(cells))
				for i, h := range cells {
					header[i] = HeaderKey(h)
				}
				continue
			}

			select {
			case rowCh <- KeyRow(header, cells):
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "xlsx: cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

func pickSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		for name, s := range f.Sheet {
			if strings.EqualFold(name, opts.SheetName) {
				return s, nil
			}
		}
		return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
	}
	if opts.SheetIndex < 0 || opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (%d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func cellStrings(row *xlsx.Row) []string {
	out := make([]string, len(row.Cells))
	for i, c := range row.Cells {
		out[i] = strings.TrimSpace(c.String())
	}
	return out
}
