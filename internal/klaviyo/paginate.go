package klaviyo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"go.uber.org/zap"
)

// cursorParam is the query parameter carrying the next-page cursor. The
// API emits it either raw or percent-encoded in the "next" link.
const cursorParam = "page[cursor]"

// ErrBadCursor reports a "next" link whose cursor could not be extracted.
// Returned only in strict pagination mode; otherwise the partial
// collection is kept and a warning logged.
var ErrBadCursor = errors.New("klaviyo: unrecognized next-page link")

// FetchAll drives Do across every page of a collection resource and
// returns the concatenation of all pages' data arrays.
//
// Termination: a null/absent "next" link or a page without a data array
// ends the collection normally. A failed page mid-way ends it with the
// records accumulated so far (the client already logged the cause). An
// unrecognized next-link format ends it loudly: a warning and partial
// data by default, a hard error when StrictPagination is set.
func (c *Client) FetchAll(ctx context.Context, resource string, query map[string]string) ([]json.RawMessage, error) {
	var records []json.RawMessage
	cursor := ""

	for {
		q := make(map[string]string, len(query)+1)
		for k, v := range query {
			q[k] = v
		}
		if cursor != "" {
			q[cursorParam] = cursor
		}

		page, err := c.Do(ctx, Request{Path: resource, Query: q})
		if err != nil {
			if errors.Is(err, ErrNoData) && len(records) > 0 {
				c.logger.Warn("pagination stopped early, keeping partial collection",
					zap.String("resource", resource),
					zap.Int("records", len(records)),
					zap.Error(err),
				)
				c.abortPagination(resource, "request_failed")
				return records, nil
			}
			return records, err
		}

		pageRecords := page.Records()
		if pageRecords == nil {
			// No data array at all: end of the collection. An empty
			// array with a next link is just a sparse page.
			return records, nil
		}
		records = append(records, pageRecords...)
		if c.metrics != nil {
			c.metrics.PagesFetched.WithLabelValues(resource).Inc()
		}
		c.logger.Debug("fetched page",
			zap.String("resource", resource),
			zap.Int("page_records", len(pageRecords)),
			zap.Int("total_records", len(records)),
		)

		if page.Links.Next == "" {
			return records, nil
		}

		next, err := nextCursor(page.Links.Next)
		if err != nil {
			c.abortPagination(resource, "bad_cursor")
			if c.cfg.StrictPagination {
				return records, fmt.Errorf("%w: %q", ErrBadCursor, page.Links.Next)
			}
			c.logger.Warn("unrecognized next-page link, returning partial collection",
				zap.String("resource", resource),
				zap.String("next", page.Links.Next),
				zap.Int("records", len(records)),
			)
			return records, nil
		}
		cursor = next
	}
}

// nextCursor extracts the cursor from a "next" link. Parsing the URL's
// query handles both the raw and the percent-encoded parameter form.
func nextCursor(next string) (string, error) {
	u, err := url.Parse(next)
	if err != nil {
		return "", fmt.Errorf("parse next link: %w", err)
	}
	if cur := u.Query().Get(cursorParam); cur != "" {
		return cur, nil
	}
	return "", fmt.Errorf("no %s parameter in next link", cursorParam)
}

func (c *Client) abortPagination(resource, reason string) {
	if c.metrics != nil {
		c.metrics.PaginationAborted.WithLabelValues(resource, reason).Inc()
	}
}
