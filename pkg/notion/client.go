// Package notion talks to the Notion API on behalf of the outreach board.
// Pages are keyed by a rich-text column, so the package offers a lookup by
// that column and an upsert built on it. API failures come back as
// *APIError carrying the HTTP status, which lets callers tell a throttled or
// unavailable Notion apart from a rejected request.
package notion

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// DefaultRateLimit is Notion's published average request rate.
const DefaultRateLimit = 3

// Client is the subset of the Notion API the outreach board uses.
type Client interface {
	QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error)
	CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error)
	UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error)
}

// APIError is a request Notion answered with an error status.
type APIError struct {
	Op      string
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("notion: %s: status %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("notion: %s: status %d (%s): %s", e.Op, e.Status, e.Code, e.Message)
}

// HTTPStatus returns the status Notion answered with.
func (e *APIError) HTTPStatus() int { return e.Status }

// apiError converts notionapi's error types into *APIError. Other errors
// (transport, context) are wrapped unchanged.
func apiError(op string, err error) error {
	var nerr *notionapi.Error
	if errors.As(err, &nerr) {
		return &APIError{Op: op, Status: nerr.Status, Code: string(nerr.Code), Message: nerr.Message}
	}
	var rerr *notionapi.RateLimitedError
	if errors.As(err, &rerr) {
		return &APIError{Op: op, Status: http.StatusTooManyRequests, Code: "rate_limited", Message: rerr.Message}
	}
	return eris.Wrapf(err, "notion: %s", op)
}

// ClientOption configures the Notion client.
type ClientOption func(*notionClient)

// WithRateLimit overrides the request rate. Zero or less disables limiting.
func WithRateLimit(rps float64) ClientOption {
	return func(c *notionClient) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
	}
}

// WithHTTPClient sends requests through hc.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *notionClient) { c.apiOpts = append(c.apiOpts, notionapi.WithHTTPClient(hc)) }
}

// WithRetries sets how often a 429 answer is retried after its Retry-After
// delay before the call fails.
func WithRetries(n int) ClientOption {
	return func(c *notionClient) { c.apiOpts = append(c.apiOpts, notionapi.WithRetry(n)) }
}

type notionClient struct {
	inner   *notionapi.Client
	limiter *rate.Limiter
	apiOpts []notionapi.ClientOption
}

// NewClient creates a Notion client for an integration token.
func NewClient(token string, opts ...ClientOption) Client {
	c := &notionClient{limiter: rate.NewLimiter(DefaultRateLimit, 1)}
	for _, opt := range opts {
		opt(c)
	}
	c.inner = notionapi.NewClient(notionapi.Token(token), c.apiOpts...)
	return c
}

// call runs one rate-limited API request.
func call[T any](ctx context.Context, c *notionClient, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return zero, eris.Wrap(err, "notion: rate limit")
		}
	}
	v, err := fn(ctx)
	if err != nil {
		return zero, apiError(op, err)
	}
	return v, nil
}

func (c *notionClient) QueryDatabase(ctx context.Context, dbID string, req *notionapi.DatabaseQueryRequest) (*notionapi.DatabaseQueryResponse, error) {
	return call(ctx, c, "query database "+dbID, func(ctx context.Context) (*notionapi.DatabaseQueryResponse, error) {
		return c.inner.Database.Query(ctx, notionapi.DatabaseID(dbID), req)
	})
}

func (c *notionClient) CreatePage(ctx context.Context, req *notionapi.PageCreateRequest) (*notionapi.Page, error) {
	return call(ctx, c, "create page", func(ctx context.Context) (*notionapi.Page, error) {
		return c.inner.Page.Create(ctx, req)
	})
}

func (c *notionClient) UpdatePage(ctx context.Context, pageID string, req *notionapi.PageUpdateRequest) (*notionapi.Page, error) {
	return call(ctx, c, "update page "+pageID, func(ctx context.Context) (*notionapi.Page, error) {
		return c.inner.Page.Update(ctx, notionapi.PageID(pageID), req)
	})
}

// FindByText returns the first page whose rich-text property equals value,
// or nil when none does.
func FindByText(ctx context.Context, c Client, dbID, property, value string) (*notionapi.Page, error) {
	resp, err := c.QueryDatabase(ctx, dbID, &notionapi.DatabaseQueryRequest{
		Filter: notionapi.PropertyFilter{
			Property: property,
			RichText: &notionapi.TextFilterCondition{Equals: value},
		},
		PageSize: 1,
	})
	if err != nil {
		return nil, eris.Wrapf(err, "notion: find %s=%s", property, value)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}
	return &resp.Results[0], nil
}

// Keyed identifies a page by the value of a rich-text column.
type Keyed struct {
	DatabaseID string
	Column     string
	Value      string
}

// Upsert updates the page matching key with props or, when there is none,
// creates it with props plus onCreate. onCreate holds columns owned by
// people once the page exists (workflow status, notes). It reports whether
// a page was created.
func Upsert(ctx context.Context, c Client, key Keyed, props, onCreate notionapi.Properties) (bool, error) {
	page, err := FindByText(ctx, c, key.DatabaseID, key.Column, key.Value)
	if err != nil {
		return false, err
	}
	if page != nil {
		if _, err := c.UpdatePage(ctx, string(page.ID), &notionapi.PageUpdateRequest{Properties: props}); err != nil {
			return false, eris.Wrapf(err, "notion: update %s=%s", key.Column, key.Value)
		}
		return false, nil
	}

	all := make(notionapi.Properties, len(props)+len(onCreate))
	for k, v := range props {
		all[k] = v
	}
	for k, v := range onCreate {
		all[k] = v
	}
	_, err = c.CreatePage(ctx, &notionapi.PageCreateRequest{
		Parent: notionapi.Parent{
			Type:       notionapi.ParentTypeDatabaseID,
			DatabaseID: notionapi.DatabaseID(key.DatabaseID),
		},
		Properties: all,
	})
	if err != nil {
		return false, eris.Wrapf(err, "notion: create %s=%s", key.Column, key.Value)
	}
	return true, nil
}
