package zohocrm

import (
	"context"
	"iter"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// QueryOptions narrows a module listing.
type QueryOptions struct {
	// Criteria switches the request to the search endpoint.
	Criteria string
	// Params are extra query parameters such as fields or sort_by.
	Params url.Values
	// ModifiedSince is sent as If-Modified-Since when non-zero.
	ModifiedSince time.Time
}

// Pages lazily walks a module page by page, starting at page 1. Each page is
// requested only when the consumer asks for the next element. Iterating
// again starts over at page 1 against whatever the remote holds by then.
//
// The sequence ends on an empty response, when info.more_records is false,
// or when the response carries no info block at all. A success body without
// a data key yields an ErrProtocol error and ends the sequence.
func (c *Client) Pages(ctx context.Context, module string, opts QueryOptions) iter.Seq2[Page, error] {
	return func(yield func(Page, error) bool) {
		path := module
		query := url.Values{}
		for k, v := range opts.Params {
			query[k] = append([]string(nil), v...)
		}
		if opts.Criteria != "" {
			path = module + "/search"
			query.Set("criteria", opts.Criteria)
		}

		var headers map[string]string
		if !opts.ModifiedSince.IsZero() {
			headers = map[string]string{"If-Modified-Since": FormatTime(opts.ModifiedSince)}
		}

		for number := 1; ; number++ {
			if err := ctx.Err(); err != nil {
				yield(Page{}, err)
				return
			}

			pageQuery := maps.Clone(query)
			pageQuery.Set("page", strconv.Itoa(number))
			outcome, err := c.do(ctx, apiRequest{
				method:  http.MethodGet,
				path:    path,
				query:   pageQuery,
				headers: headers,
			})
			if err != nil {
				yield(Page{}, err)
				return
			}
			if outcome.Kind == OutcomeEmpty {
				c.logger.Debug("No records returned",
					zap.String("module", module),
					zap.Int("page", number))
				return
			}

			page, err := decodePage(number, outcome.Body)
			if err != nil {
				yield(Page{}, err)
				return
			}

			c.logger.Debug("Fetched page",
				zap.String("module", module),
				zap.Int("page", number),
				zap.Int("records", len(page.Records)),
				zap.Bool("more_records", page.MoreRecords))

			if !yield(page, nil) || !page.MoreRecords {
				return
			}
		}
	}
}

// Collect drains Pages into one slice.
func (c *Client) Collect(ctx context.Context, module string, opts QueryOptions) ([]Record, error) {
	var records []Record
	for page, err := range c.Pages(ctx, module, opts) {
		if err != nil {
			return nil, err
		}
		records = append(records, page.Records...)
	}
	return records, nil
}

func decodePage(number int, body map[string]any) (Page, error) {
	raw, ok := body["data"]
	if !ok {
		return Page{}, protocolError("response for page %d has no data key", number)
	}
	records, err := toRecords(raw)
	if err != nil {
		return Page{}, err
	}

	page := Page{Number: number, Records: records}
	if info, ok := body["info"].(map[string]any); ok {
		more, _ := info["more_records"].(bool)
		page.MoreRecords = more
	}
	return page, nil
}

func toRecords(raw any) ([]Record, error) {
	items, ok := raw.([]any)
	if !ok {
		return nil, protocolError("data is %T, expected a list", raw)
	}
	records := make([]Record, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, protocolError("data[%d] is %T, expected an object", i, item)
		}
		records = append(records, Record(fields))
	}
	return records, nil
}
