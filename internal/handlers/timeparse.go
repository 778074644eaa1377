package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Layouts without a zone are parsed as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

func parseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	// An unescaped "+00:00" in a query string arrives as " 00:00".
	if sep := strings.IndexByte(s, 'T'); sep > 0 {
		if i := strings.LastIndexByte(s, ' '); i > sep {
			s = s[:i] + "+" + s[i+1:]
		}
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// nullableTime tells an absent field, an explicit null and a value apart.
// A value that does not parse is kept in Raw with Invalid set so the handler
// can report it as a field error.
type nullableTime struct {
	Set     bool
	Null    bool
	Invalid bool
	Raw     string
	Time    time.Time
}

func (t *nullableTime) UnmarshalJSON(data []byte) error {
	t.Set = true
	if bytes.Equal(data, []byte("null")) {
		t.Null = true
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		t.Invalid = true
		t.Raw = string(data)
		return nil
	}
	if s == "" {
		t.Null = true
		return nil
	}
	parsed, err := parseTimestamp(s)
	if err != nil {
		t.Invalid = true
		t.Raw = s
		return nil
	}
	t.Time = parsed
	return nil
}

func (t nullableTime) ptr() *time.Time {
	if !t.Set || t.Null || t.Invalid {
		return nil
	}
	return &t.Time
}
