package models

import (
	"strings"
	"time"
)

// DateLayout is the calendar date format used in storage and on the wire.
const DateLayout = "2006-01-02"

// ParseDate parses a calendar date (no time component) as UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, strings.TrimSpace(raw), time.UTC)
}

// DateOf drops the clock part of t, keeping its calendar date in t's location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
