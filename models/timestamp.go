package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// timestampLayouts are tried in order. Python's datetime.isoformat omits the
// zone for naive values, which are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// Timestamp is a display-only server time. Values that match none of the
// known layouts decode as the zero time instead of failing the response.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Time = parseTimestamp(raw)
	return nil
}

// parseTimestamp reads s with the first layout that fits, naive values as
// UTC. It returns the zero time when nothing fits.
func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if v, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return v
		}
	}
	return time.Time{}
}
