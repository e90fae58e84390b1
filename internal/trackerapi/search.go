package trackerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
)

// maxScrollPages caps pagination against a server that never stops returning
// pages. 100 pages at the default page size covers any realistic filter.
const maxScrollPages = 100

type searchRequest struct {
	Query string   `json:"query,omitempty"`
	Keys  []string `json:"keys,omitempty"`
}

// Scroll drives v3 scroll pagination one page at a time. The first Next call
// opens the scroll; later calls continue it with the server-issued scroll id.
// Not safe for concurrent use; one producer owns a Scroll.
type Scroll struct {
	c        *Client
	query    string
	scrollID string
	pages    int
	done     bool
}

// Search prepares a scroll over all issues matching the query. No request is
// made until Next.
func (c *Client) Search(query string) *Scroll {
	return &Scroll{c: c, query: query}
}

// Next fetches the next page of issues. Returns (nil, nil) once the scroll is
// exhausted. The consumer may simply stop calling Next to abandon the scroll;
// the server expires it after the TTL.
func (s *Scroll) Next(ctx context.Context) ([]Issue, error) {
	if s.done {
		return nil, nil
	}
	if s.pages >= maxScrollPages {
		s.c.log.Warn().Int("pages", s.pages).Msg("scroll page cap reached; stopping pagination")
		s.done = true
		return nil, nil
	}

	params := url.Values{"expand": {"links"}}
	if s.scrollID == "" {
		params.Set("scrollType", "unsorted")
		params.Set("perScroll", strconv.Itoa(s.c.pageSize))
		params.Set("scrollTTLMillis", strconv.FormatInt(s.c.scrollTTL.Milliseconds(), 10))
	} else {
		params.Set("scrollId", s.scrollID)
	}

	body, err := json.Marshal(searchRequest{Query: s.query})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	apiURL := fmt.Sprintf("%s/v3/issues/_search?%s", s.c.baseURL, params.Encode())
	respBody, header, err := s.c.doRequest(ctx, "POST", apiURL, body)
	if err != nil {
		return nil, fmt.Errorf("search scroll page %d: %w", s.pages+1, err)
	}
	s.pages++

	var issues []Issue
	if err := json.Unmarshal(respBody, &issues); err != nil {
		return nil, fmt.Errorf("parse search response: %w", err)
	}

	s.scrollID = header.Get("X-Scroll-Id")
	if s.scrollID == "" || len(issues) < s.c.pageSize {
		s.done = true
	}
	if len(issues) == 0 {
		return nil, nil
	}
	return issues, nil
}

// SearchAll runs a scroll to completion, honoring limit (0 = unlimited).
func (c *Client) SearchAll(ctx context.Context, query string, limit int) ([]Issue, error) {
	scroll := c.Search(query)
	var all []Issue
	for {
		page, err := scroll.Next(ctx)
		if err != nil {
			return nil, err
		}
		if page == nil {
			break
		}
		all = append(all, page...)
		if limit > 0 && len(all) >= limit {
			all = all[:limit]
			break
		}
	}
	return all, nil
}

// GetTask fetches a single issue by key, links expanded.
func (c *Client) GetTask(ctx context.Context, key string) (*Issue, error) {
	apiURL := fmt.Sprintf("%s/v2/issues/%s?expand=links", c.baseURL, url.PathEscape(key))

	body, _, err := c.doRequest(ctx, "GET", apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("get issue %s: %w", key, err)
	}

	var issue Issue
	if err := json.Unmarshal(body, &issue); err != nil {
		return nil, fmt.Errorf("parse issue response: %w", err)
	}
	return &issue, nil
}

// GetTasksBatch fetches full issue records for the given keys, chunked at the
// server's maximum batch size. One request per chunk.
func (c *Client) GetTasksBatch(ctx context.Context, keys []string) ([]Issue, error) {
	var all []Issue
	for start := 0; start < len(keys); start += c.batchSize {
		end := min(start+c.batchSize, len(keys))
		chunk := keys[start:end]

		body, err := json.Marshal(searchRequest{Keys: chunk})
		if err != nil {
			return nil, fmt.Errorf("marshal batch request: %w", err)
		}

		params := url.Values{
			"expand":  {"links"},
			"perPage": {strconv.Itoa(len(chunk))},
		}
		apiURL := fmt.Sprintf("%s/v2/issues/_search?%s", c.baseURL, params.Encode())

		respBody, _, err := c.doRequest(ctx, "POST", apiURL, body)
		if err != nil {
			return nil, fmt.Errorf("batch get %d issues: %w", len(chunk), err)
		}

		var issues []Issue
		if err := json.Unmarshal(respBody, &issues); err != nil {
			return nil, fmt.Errorf("parse batch response: %w", err)
		}
		all = append(all, issues...)
	}
	return all, nil
}
