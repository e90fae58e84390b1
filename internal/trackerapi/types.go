// Package trackerapi provides HTTP access to the Yandex Tracker REST API.
//
// The client covers the three calls the sync engine depends on: scroll-based
// search (v3), batch issue fetch by keys (v2), and per-issue changelog (v2).
// All requests pass a process-global rate gate and a bounded retry policy.
package trackerapi

import (
	"encoding/json"
	"strings"
	"time"
)

// Custom field identifiers. Tracker exposes org-defined fields as top-level
// JSON keys prefixed with the field-schema id.
const (
	customFieldPrefix   = "63515d47fe387b7ce7b9fc55"
	FieldTeam           = customFieldPrefix + "--team"
	FieldProdteam       = customFieldPrefix + "--prodteam"
	FieldProfitForecast = customFieldPrefix + "--profitForecast"
)

// Time wraps time.Time to accept the timestamp layouts Tracker emits.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.000-0700",
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
}

// UnmarshalJSON parses a Tracker timestamp string.
func (t *Time) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.Parse(layout, s)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// StatusRef is a status reference as it appears on issues and in diffs.
type StatusRef struct {
	ID      string `json:"id"`
	Key     string `json:"key"`
	Display string `json:"display"`
}

// UserRef is a user reference (createdBy, assignee, businessClient items).
type UserRef struct {
	ID      string `json:"id"`
	Display string `json:"display"`
}

// LinkType identifies the relation kind ("subtask", "relates", "epic", ...).
type LinkType struct {
	ID string `json:"id"`
}

// LinkObject is the issue on the far end of a link.
type LinkObject struct {
	Key     string `json:"key"`
	Display string `json:"display"`
}

// Link is one entry of an issue's links array (expand=links form).
type Link struct {
	Type      LinkType   `json:"type"`
	Direction string     `json:"direction"`
	Object    LinkObject `json:"object"`
}

// Issue is a Tracker issue. Org-defined custom fields arrive as arbitrary
// top-level keys and are kept in an extras map, reachable via CustomString.
type Issue struct {
	ID             string    `json:"id"`
	Key            string    `json:"key"`
	Summary        string    `json:"summary"`
	Description    string    `json:"description"`
	Status         *StatusRef `json:"status"`
	CreatedBy      *UserRef   `json:"createdBy"`
	Assignee       *UserRef   `json:"assignee"`
	BusinessClient []UserRef  `json:"businessClient"`
	CreatedAt      Time       `json:"createdAt"`
	UpdatedAt      Time       `json:"updatedAt"`
	ResolvedAt     *Time      `json:"resolvedAt"`
	Links          []Link     `json:"links"`

	extra map[string]json.RawMessage
}

// UnmarshalJSON decodes the typed fields and retains every top-level key for
// custom-field access.
func (i *Issue) UnmarshalJSON(data []byte) error {
	type alias Issue
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	a.extra = m
	*i = Issue(a)
	return nil
}

// CustomString returns the named top-level field as a string. Non-string
// scalars (numbers) come back in their literal form; missing fields are "".
func (i *Issue) CustomString(field string) string {
	raw, ok := i.extra[field]
	if !ok || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.Trim(string(raw), `"`)
}

// Team returns the org "team" custom field.
func (i *Issue) Team() string { return i.CustomString(FieldTeam) }

// Prodteam returns the org "prodteam" custom field.
func (i *Issue) Prodteam() string { return i.CustomString(FieldProdteam) }

// ProfitForecast returns the org "profitForecast" custom field.
func (i *Issue) ProfitForecast() string { return i.CustomString(FieldProfitForecast) }

// BusinessClientNames joins the business-client user displays with ", ".
func (i *Issue) BusinessClientNames() string {
	if len(i.BusinessClient) == 0 {
		return ""
	}
	names := make([]string, 0, len(i.BusinessClient))
	for _, u := range i.BusinessClient {
		if u.Display != "" {
			names = append(names, u.Display)
		}
	}
	return strings.Join(names, ", ")
}

// StatusDisplay returns the current status display name, or "".
func (i *Issue) StatusDisplay() string {
	if i.Status == nil {
		return ""
	}
	return i.Status.Display
}

// FieldRef names the field a changelog diff applies to.
type FieldRef struct {
	ID string `json:"id"`
}

// FieldChange is one field diff inside a changelog event. From/To stay raw
// because workflow events can carry non-status diffs (resolution, arrays);
// status values are decoded on demand.
type FieldChange struct {
	Field *FieldRef       `json:"field"`
	From  json.RawMessage `json:"from"`
	To    json.RawMessage `json:"to"`
}

// IsStatus reports whether this diff is a status transition.
func (fc *FieldChange) IsStatus() bool {
	return fc.Field != nil && fc.Field.ID == "status"
}

// StatusFrom decodes the From side as a status reference, or nil.
func (fc *FieldChange) StatusFrom() *StatusRef { return decodeStatus(fc.From) }

// StatusTo decodes the To side as a status reference, or nil.
func (fc *FieldChange) StatusTo() *StatusRef { return decodeStatus(fc.To) }

func decodeStatus(raw json.RawMessage) *StatusRef {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var ref StatusRef
	if err := json.Unmarshal(raw, &ref); err != nil {
		return nil
	}
	if ref.Key == "" && ref.Display == "" {
		return nil
	}
	return &ref
}

// ChangeEvent is one changelog entry for an issue.
type ChangeEvent struct {
	ID        string        `json:"id"`
	UpdatedAt Time          `json:"updatedAt"`
	Fields    []FieldChange `json:"fields"`
}
