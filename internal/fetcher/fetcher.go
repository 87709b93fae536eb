// Package fetcher reads source exports (CSV, XLSX, JSON) from local files or
// HTTP URLs as header-keyed rows.
package fetcher

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Fetcher downloads remote exports.
type Fetcher interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadToFile fetches the URL into path. Returns bytes written.
	DownloadToFile(ctx context.Context, url string, path string) (int64, error)
}

// Format is the encoding of a source export.
type Format string

// Supported formats.
const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatJSON Format = "json"
)

// ParseFormat accepts a format name, or detects it from a path or URL
// extension when name is empty.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		if i := strings.IndexAny(path, "?#"); i >= 0 {
			path = path[:i]
		}
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch strings.ToLower(name) {
	case "csv", "txt":
		return FormatCSV, nil
	case "xlsx":
		return FormatXLSX, nil
	case "json", "ndjson", "jsonl":
		return FormatJSON, nil
	}
	return "", eris.Errorf("fetcher: unsupported format %q", name)
}

// IsRemote reports whether src is an HTTP(S) URL.
func IsRemote(src string) bool {
	s := strings.ToLower(src)
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// Open returns a reader over src, downloading it when it is a URL.
func Open(ctx context.Context, f Fetcher, src string) (io.ReadCloser, error) {
	if IsRemote(src) {
		if f == nil {
			return nil, eris.Errorf("fetcher: no http fetcher for %s", src)
		}
		return f.Download(ctx, src)
	}
	file, err := os.Open(src)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: open %s", src)
	}
	return file, nil
}

// LocalPath returns a local path for src, downloading a URL into dir first.
// XLSX files need random access, so they cannot be streamed.
func LocalPath(ctx context.Context, f Fetcher, src, dir string) (string, error) {
	if !IsRemote(src) {
		return src, nil
	}
	if f == nil {
		return "", eris.Errorf("fetcher: no http fetcher for %s", src)
	}
	tmp, err := os.CreateTemp(dir, "source-*"+filepath.Ext(strings.SplitN(src, "?", 2)[0]))
	if err != nil {
		return "", eris.Wrap(err, "fetcher: create temp file")
	}
	path := tmp.Name()
	_ = tmp.Close()
	if _, err := f.DownloadToFile(ctx, src, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

// HeaderKey normalizes a column header: trimmed, lower case, runs of spaces
// and dashes collapsed to "_".
func HeaderKey(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	var b strings.Builder
	sep := false
	for _, r := range h {
		if r == ' ' || r == '-' || r == '_' || r == '\t' {
			sep = true
			continue
		}
		if sep && b.Len() > 0 {
			b.WriteByte('_')
		}
		sep = false
		b.WriteRune(r)
	}
	return b.String()
}

// KeyRow maps a row onto header keys. Missing trailing cells are empty;
// cells beyond the header are dropped.
func KeyRow(header, row []string) map[string]string {
	out := make(map[string]string, len(header))
	for i, h := range header {
		if h == "" {
			continue
		}
		if i < len(row) {
			out[h] = strings.TrimSpace(row[i])
		} else {
			out[h] = ""
		}
	}
	return out
}
