package event

import "time"

// TimeFormat is the wire timestamp layout: RFC3339 in UTC with milliseconds.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ParseTime accepts RFC3339 timestamps with or without fractional seconds.
func ParseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// FormatTime formats t for the wire envelope.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}

// Now returns the current UTC time truncated to the wire precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
