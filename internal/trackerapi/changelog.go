package trackerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// maxChangelogPages guards the Link-header loop against a malformed server
// that keeps pointing at itself.
const maxChangelogPages = 500

// GetChangelog fetches all workflow change events for an issue, following
// RFC 5988 Link rel="next" pagination until exhaustion. Events come back in
// server order.
func (c *Client) GetChangelog(ctx context.Context, key string) ([]ChangeEvent, error) {
	apiURL := fmt.Sprintf("%s/v2/issues/%s/changelog?perPage=50&type=IssueWorkflow",
		c.baseURL, url.PathEscape(key))

	var events []ChangeEvent
	for page := 0; apiURL != ""; page++ {
		if page >= maxChangelogPages {
			c.log.Warn().Str("issue", key).Int("pages", page).Msg("changelog page cap reached; stopping pagination")
			break
		}

		body, header, err := c.doRequest(ctx, "GET", apiURL, nil)
		if err != nil {
			return nil, fmt.Errorf("changelog for %s: %w", key, err)
		}

		var pageEvents []ChangeEvent
		if err := json.Unmarshal(body, &pageEvents); err != nil {
			return nil, fmt.Errorf("parse changelog response: %w", err)
		}
		events = append(events, pageEvents...)

		apiURL = nextLink(header)
	}
	return events, nil
}

// nextLink extracts the rel="next" target from a Link response header, or ""
// when the current page is the last one.
func nextLink(h http.Header) string {
	for _, link := range h.Values("Link") {
		for _, part := range strings.Split(link, ",") {
			segs := strings.Split(part, ";")
			if len(segs) < 2 {
				continue
			}
			target := strings.Trim(strings.TrimSpace(segs[0]), "<>")
			for _, p := range segs[1:] {
				if strings.TrimSpace(p) == `rel="next"` {
					return target
				}
			}
		}
	}
	return ""
}
