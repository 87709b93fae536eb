// Package apify provides a client for the Apify actor-run and dataset API.
package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.apify.com/v2"

// Run statuses reported by the API.
const (
	StatusReady     = "READY"
	StatusRunning   = "RUNNING"
	StatusSucceeded = "SUCCEEDED"
	StatusFailed    = "FAILED"
	StatusTimingOut = "TIMING-OUT"
	StatusTimedOut  = "TIMED-OUT"
	StatusAborting  = "ABORTING"
	StatusAborted   = "ABORTED"
)

// Client defines the Apify operations used by ingestion and skip tracing.
type Client interface {
	// RunActor starts an actor with input and blocks until the run finishes
	// or ctx is done.
	RunActor(ctx context.Context, actorID string, input any) (*Run, error)
	// GetRun fetches a run, waiting up to the server-side limit for it to finish.
	GetRun(ctx context.Context, runID string) (*Run, error)
	// DatasetItems returns one page of dataset items.
	DatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]json.RawMessage, error)
	// IterateDataset calls fn for every item, paging through the dataset.
	IterateDataset(ctx context.Context, datasetID string, pageSize int, fn func(json.RawMessage) error) error
}

// Run is an actor run.
type Run struct {
	ID               string     `json:"id"`
	ActID            string     `json:"actId"`
	Status           string     `json:"status"`
	StatusMessage    string     `json:"statusMessage"`
	DefaultDatasetID string     `json:"defaultDatasetId"`
	StartedAt        *time.Time `json:"startedAt"`
	FinishedAt       *time.Time `json:"finishedAt"`
}

// Finished reports whether the run reached a terminal status.
func (r *Run) Finished() bool {
	switch r.Status {
	case StatusSucceeded, StatusFailed, StatusTimedOut, StatusAborted:
		return true
	}
	return false
}

// Succeeded reports whether the run finished successfully.
func (r *Run) Succeeded() bool { return r.Status == StatusSucceeded }

// APIError is a non-2xx response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: status %d: %s", e.StatusCode, e.Body)
}

// HTTPStatus returns the response status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL sets a custom base URL (for testing).
func WithBaseURL(u string) Option {
	return func(c *httpClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *httpClient) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// WithWaitSecs sets the server-side wait per request while a run is active.
func WithWaitSecs(secs int) Option {
	return func(c *httpClient) {
		if secs >= 0 {
			c.waitSecs = secs
		}
	}
}

type httpClient struct {
	token    string
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	waitSecs int
}

// NewClient creates an Apify client authenticated with token.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:    token,
		baseURL:  defaultBaseURL,
		http:     &http.Client{Timeout: 90 * time.Second},
		limiter:  rate.NewLimiter(rate.Limit(5), 1),
		waitSecs: 60,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// actorPath escapes an actor ID; "user/actor" becomes "user~actor".
func actorPath(actorID string) string {
	return url.PathEscape(strings.ReplaceAll(actorID, "/", "~"))
}

func (c *httpClient) RunActor(ctx context.Context, actorID string, input any) (*Run, error) {
	if actorID == "" {
		return nil, eris.New("apify: actor id is required")
	}
	body, err := json.Marshal(input)
	if err != nil {
		return nil, eris.Wrap(err, "apify: marshal actor input")
	}

	q := url.Values{"waitForFinish": {strconv.Itoa(c.waitSecs)}}
	endpoint := fmt.Sprintf("%s/acts/%s/runs?%s", c.baseURL, actorPath(actorID), q.Encode())
	var env struct {
		Data Run `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, endpoint, body, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: run actor %s", actorID)
	}

	run := &env.Data
	for !run.Finished() {
		if err := ctx.Err(); err != nil {
			return run, eris.Wrapf(err, "apify: wait for run %s", run.ID)
		}
		run, err = c.GetRun(ctx, run.ID)
		if err != nil {
			return nil, err
		}
	}
	return run, nil
}

func (c *httpClient) GetRun(ctx context.Context, runID string) (*Run, error) {
	q := url.Values{"waitForFinish": {strconv.Itoa(c.waitSecs)}}
	endpoint := fmt.Sprintf("%s/actor-runs/%s?%s", c.baseURL, url.PathEscape(runID), q.Encode())
	var env struct {
		Data Run `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &env); err != nil {
		return nil, eris.Wrapf(err, "apify: get run %s", runID)
	}
	return &env.Data, nil
}

func (c *httpClient) DatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]json.RawMessage, error) {
	q := url.Values{
		"format": {"json"},
		"clean":  {"true"},
		"offset": {strconv.Itoa(offset)},
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	endpoint := fmt.Sprintf("%s/datasets/%s/items?%s", c.baseURL, url.PathEscape(datasetID), q.Encode())
	var items []json.RawMessage
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &items); err != nil {
		return nil, eris.Wrapf(err, "apify: dataset %s items", datasetID)
	}
	return items, nil
}

func (c *httpClient) IterateDataset(ctx context.Context, datasetID string, pageSize int, fn func(json.RawMessage) error) error {
	if pageSize <= 0 {
		pageSize = 1000
	}
	for offset := 0; ; offset += pageSize {
		items, err := c.DatasetItems(ctx, datasetID, offset, pageSize)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
		if len(items) < pageSize {
			return nil
		}
	}
}

func (c *httpClient) do(ctx context.Context, method, endpoint string, body []byte, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, rdr)
	if err != nil {
		return eris.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "request")
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return eris.Wrap(err, "read body")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(data)
		if len(msg) > 200 {
			msg = msg[:200]
		}
		return &APIError{StatusCode: resp.StatusCode, Body: msg}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "parse response")
	}
	return nil
}
