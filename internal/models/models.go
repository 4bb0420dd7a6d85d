package models

import (
	"fmt"
	"strings"
	"time"
)

// Status is the severity of a single status item.
type Status string

const (
	StatusOK   Status = "ok"
	StatusWarn Status = "warn"
	StatusBad  Status = "bad"
)

// Rank orders statuses by urgency. Unknown values rank as bad.
func (s Status) Rank() int {
	switch s {
	case StatusOK:
		return 0
	case StatusWarn:
		return 1
	default:
		return 2
	}
}

// Valid reports whether s is one of the three known statuses.
func (s Status) Valid() bool {
	return s == StatusOK || s == StatusWarn || s == StatusBad
}

// Worse returns the more urgent of the two statuses.
func Worse(a, b Status) Status {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// UnmarshalText rejects anything but ok, warn and bad.
func (s *Status) UnmarshalText(text []byte) error {
	v := Status(strings.TrimSpace(string(text)))
	if !v.Valid() {
		return fmt.Errorf("unknown status %q", string(text))
	}
	*s = v
	return nil
}

// StatusItem is the outcome of one probe invocation.
type StatusItem struct {
	Title     string    `json:"title"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail"`
	Timestamp Timestamp `json:"ts"`
}

// Feed is the ordered result of one aggregation run.
type Feed struct {
	UpdatedAt *Timestamp   `json:"updated_at"`
	Items     []StatusItem `json:"items"`
}

// EmptyFeed is what readers see before the first aggregation run.
func EmptyFeed() Feed {
	return Feed{Items: []StatusItem{}}
}

// timestampLayout keeps the numeric offset even for UTC so every reader
// parses the same shape.
const timestampLayout = "2006-01-02T15:04:05-07:00"

// Timestamp is a local, second-precision point in time serialised as
// ISO-8601 with a numeric zone offset.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to whole seconds in the local zone.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.Local().Truncate(time.Second)}
}

// String formats the timestamp the same way it is persisted.
func (t Timestamp) String() string {
	return t.Time.Format(timestampLayout)
}

// MarshalJSON overrides the promoted time.Time encoding.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON accepts any RFC 3339 timestamp. null reads as the zero time.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	raw := strings.Trim(string(data), `"`)
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return fmt.Errorf("parse timestamp: %w", err)
	}
	t.Time = parsed
	return nil
}
