package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yatrik/scheduler/core/scheduler"
)

// Pages lists /api/admin/<resource> one page at a time. The sequence stops
// after the page that brings the item count to the reported total, after an
// empty page, or after the first error. Errors are *scheduler.FetchError
// unless authentication failed, in which case the *scheduler.AuthError is
// yielded as is.
func Pages[T any](ctx context.Context, c *Client, resource string, filter url.Values) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		fetched := 0
		for page := 1; ; page++ {
			if page > c.cfg.MaxPages {
				yield(nil, &scheduler.FetchError{Resource: resource, Page: page, Msg: "page ceiling exceeded"})
				return
			}
			items, pg, err := fetchPage[T](ctx, c, resource, filter, page)
			if err != nil {
				yield(nil, err)
				return
			}
			if pg == nil {
				yield(nil, &scheduler.FetchError{Resource: resource, Page: page, Msg: "missing pagination metadata"})
				return
			}
			if pg.Total == nil {
				yield(nil, &scheduler.FetchError{Resource: resource, Page: page, Msg: "missing total in pagination metadata"})
				return
			}
			total := *pg.Total
			if total < 0 {
				yield(nil, &scheduler.FetchError{Resource: resource, Page: page, Msg: "negative total in pagination metadata"})
				return
			}
			fetched += len(items)
			if fetched > total {
				yield(nil, &scheduler.FetchError{Resource: resource, Page: page, Msg: fmt.Sprintf("fetched %d items but total is %d", fetched, total)})
				return
			}
			if !yield(items, nil) {
				return
			}
			if len(items) == 0 || fetched == total {
				return
			}
		}
	}
}

func fetchPage[T any](ctx context.Context, c *Client, resource string, filter url.Values, page int) ([]T, *pagination, error) {
	q := url.Values{}
	for k, v := range filter {
		q[k] = v
	}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(c.cfg.PageLimit))

	data, err := withRetry(ctx, c, "list "+resource, func() (map[string]json.RawMessage, error) {
		var out map[string]json.RawMessage
		err := c.call(ctx, http.MethodGet, "/api/admin/"+resource, q, nil, &out)
		return out, err
	})
	if err != nil {
		var ae *scheduler.AuthError
		if errors.As(err, &ae) {
			return nil, nil, err
		}
		fe := &scheduler.FetchError{Resource: resource, Page: page, Msg: "request failed", Err: err}
		var se *statusError
		if errors.As(err, &se) {
			fe.Status, fe.Msg, fe.Err = se.Status, se.Msg, nil
		}
		return nil, nil, fe
	}

	var items []T
	if raw, ok := data[resource]; ok && len(raw) > 0 {
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, nil, &scheduler.FetchError{Resource: resource, Page: page, Msg: "malformed items", Err: err}
		}
	}
	raw, ok := data["pagination"]
	if !ok || len(raw) == 0 || string(raw) == "null" {
		return items, nil, nil
	}
	var pg pagination
	if err := json.Unmarshal(raw, &pg); err != nil {
		return nil, nil, &scheduler.FetchError{Resource: resource, Page: page, Msg: "malformed pagination metadata", Err: err}
	}
	return items, &pg, nil
}

// collect drains a page sequence into one slice.
func collect[T any](seq iter.Seq2[[]T, error]) ([]T, error) {
	var all []T
	for items, err := range seq {
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
	}
	return all, nil
}
