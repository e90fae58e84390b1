package trackerapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeLayouts(t *testing.T) {
	cases := map[string]time.Time{
		`"2021-06-09T04:08:28.123+0000"`: time.Date(2021, 6, 9, 4, 8, 28, 123000000, time.UTC),
		`"2025-01-05T10:30:00Z"`:         time.Date(2025, 1, 5, 10, 30, 0, 0, time.UTC),
		`"2025-01-05"`:                   time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC),
	}
	for raw, want := range cases {
		var ts Time
		require.NoError(t, json.Unmarshal([]byte(raw), &ts), raw)
		assert.True(t, ts.Equal(want), "parsed %s as %s, want %s", raw, ts, want)
	}

	var ts Time
	require.Error(t, json.Unmarshal([]byte(`"yesterday-ish"`), &ts))
}

func TestIssueCustomFields(t *testing.T) {
	raw := `{
		"id": "abc123",
		"key": "CPO-77",
		"summary": "Checkout flow rework",
		"status": {"key": "inProgress", "display": "В работе"},
		"createdBy": {"id": "u1", "display": "Ivanova A."},
		"assignee": {"id": "u2", "display": "Petrov B."},
		"businessClient": [{"id": "u3", "display": "Client One"}, {"id": "u4", "display": "Client Two"}],
		"createdAt": "2025-02-01T09:00:00.000+0000",
		"updatedAt": "2025-03-01T09:00:00.000+0000",
		"links": [
			{"type": {"id": "subtask"}, "direction": "inward", "object": {"key": "FULLSTACK-5"}}
		],
		"63515d47fe387b7ce7b9fc55--team": "payments",
		"63515d47fe387b7ce7b9fc55--prodteam": "checkout",
		"63515d47fe387b7ce7b9fc55--profitForecast": 1250.5
	}`

	var issue Issue
	require.NoError(t, json.Unmarshal([]byte(raw), &issue))

	assert.Equal(t, "CPO-77", issue.Key)
	assert.Equal(t, "В работе", issue.StatusDisplay())
	assert.Equal(t, "payments", issue.Team())
	assert.Equal(t, "checkout", issue.Prodteam())
	assert.Equal(t, "1250.5", issue.ProfitForecast())
	assert.Equal(t, "Client One, Client Two", issue.BusinessClientNames())
	assert.Equal(t, "", issue.CustomString("nonexistent"))

	require.Len(t, issue.Links, 1)
	assert.Equal(t, "subtask", issue.Links[0].Type.ID)
	assert.Equal(t, "inward", issue.Links[0].Direction)
	assert.Equal(t, "FULLSTACK-5", issue.Links[0].Object.Key)
}

func TestNextLink(t *testing.T) {
	h := http.Header{}
	h.Set("Link",
		`<https://api.example.com/v2/issues/X-1/changelog?id=a>; rel="first", `+
			`<https://api.example.com/v2/issues/X-1/changelog?id=b>; rel="next"`)
	assert.Equal(t, "https://api.example.com/v2/issues/X-1/changelog?id=b", nextLink(h))

	assert.Equal(t, "", nextLink(http.Header{}))
}
