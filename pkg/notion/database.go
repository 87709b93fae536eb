package notion

import (
	"context"

	"github.com/jomei/notionapi"
	"github.com/rotisserie/eris"
)

// QueryAll fetches every page matching req, following cursors. The next
// page is requested while the current one is being appended.
func QueryAll(ctx context.Context, c Client, dbID string, req *notionapi.DatabaseQueryRequest) ([]notionapi.Page, error) {
	next := func(cursor notionapi.Cursor) *notionapi.DatabaseQueryRequest {
		r := &notionapi.DatabaseQueryRequest{StartCursor: cursor}
		if req != nil {
			r.Filter = req.Filter
			r.Sorts = req.Sorts
			r.PageSize = req.PageSize
		}
		return r
	}

	type result struct {
		resp *notionapi.DatabaseQueryResponse
		err  error
	}
	fetch := func(r *notionapi.DatabaseQueryRequest) <-chan result {
		ch := make(chan result, 1)
		go func() {
			resp, err := c.QueryDatabase(ctx, dbID, r)
			ch <- result{resp: resp, err: err}
		}()
		return ch
	}

	var all []notionapi.Page
	pending := fetch(next(""))
	for {
		res := <-pending
		if res.err != nil {
			return nil, eris.Wrap(res.err, "notion: query all")
		}
		if res.resp.HasMore {
			pending = fetch(next(res.resp.NextCursor))
		}
		all = append(all, res.resp.Results...)
		if !res.resp.HasMore {
			return all, nil
		}
	}
}
