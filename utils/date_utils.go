package utils

import (
	"time"
)

// DateLayout is the ISO calendar date format used by the analytics endpoints.
const DateLayout = "2006-01-02"

var dateFormats = []string{
	DateLayout,
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

// ParseDate parses an ISO date (or timestamp) and truncates it to the UTC day.
func ParseDate(dateStr string) (time.Time, error) {
	var lastErr error
	for _, format := range dateFormats {
		t, err := time.Parse(format, dateStr)
		if err == nil {
			return StartOfDay(t), nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// StartOfDay returns midnight UTC of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the last nanosecond of t's UTC calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).Add(24*time.Hour - time.Nanosecond)
}
