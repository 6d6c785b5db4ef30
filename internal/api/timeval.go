package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Timestamp is a time.Time that tolerates the API's two timestamp
// spellings: RFC3339 strings and epoch seconds (bare or quoted). Epoch
// values past the year 33658 are assumed to be milliseconds, which covers
// gateways that re-encode timestamps on the way through.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t}
}

// UnmarshalJSON implements json.Unmarshaler. Null, empty strings, and
// unparseable values decode to the zero time rather than failing the
// whole payload.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			t.Time = time.Time{}
			return nil
		}
		t.Time = parseTimeString(s)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		t.Time = time.Time{}
		return nil
	}
	t.Time = fromEpoch(f)
	return nil
}

// MarshalJSON implements json.Marshaler, emitting RFC3339 or null for the
// zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func parseTimeString(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed
		}
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpoch(f)
	}
	return time.Time{}
}

func fromEpoch(v float64) time.Time {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return time.Time{}
	}
	// Heuristic: epoch seconds fit in 12 digits until the year 33658.
	if v >= 1e12 {
		v /= 1000
	}
	secs := int64(v)
	nanos := int64((v - float64(secs)) * float64(time.Second))
	return time.Unix(secs, nanos).UTC()
}
