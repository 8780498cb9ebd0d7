package timeutil

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// DayFormat is the canonical calendar-day key (UTC).
const DayFormat = "2006-01-02"

var (
	fractionRe  = regexp.MustCompile(`\.(\d+)`)
	bareOffsetRe = regexp.MustCompile(`([+-]\d{2})(\d{2})$`)
)

// Layouts tried after normalization. Timestamps without an offset are
// interpreted as UTC.
var isoLayouts = []string{
	"2006-01-02T15:04:05.000000-07:00",
	"2006-01-02T15:04:05-07:00",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.000000-07:00",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// AsUTC converts a timestamp to UTC.
func AsUTC(t time.Time) time.Time {
	return t.UTC()
}

// ISOUTC formats a timestamp as ISO-8601 in UTC with microsecond precision
// and a trailing Z, the form the upstream gateway expects.
func ISOUTC(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000") + "Z"
}

// ParseTimestamp coerces an arbitrary decoded JSON value into a UTC
// timestamp. Accepts ISO-8601 strings with variable fractional precision,
// trailing Z, offsets without a colon, plus numeric epoch seconds or
// milliseconds. Returns ok=false for anything unparseable.
func ParseTimestamp(value interface{}) (time.Time, bool) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), true
	case string:
		return parseString(v)
	case float64:
		return fromEpoch(v), true
	case int:
		return fromEpoch(float64(v)), true
	case int64:
		return fromEpoch(float64(v)), true
	default:
		return time.Time{}, false
	}
}

// ParseISO parses an ISO-8601 string only (no epoch fallback).
func ParseISO(s string) (time.Time, bool) {
	normalized := NormalizeISO(s)
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, normalized); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// NormalizeISO rewrites the timestamp variants the gateway emits into a
// form the standard layouts can parse: trailing Z becomes +00:00, bare
// offsets gain a colon, fractional seconds are padded or truncated to
// exactly six digits.
func NormalizeISO(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}
	if strings.HasSuffix(s, "Z") || strings.HasSuffix(s, "z") {
		s = s[:len(s)-1] + "+00:00"
	}
	s = fractionRe.ReplaceAllStringFunc(s, func(m string) string {
		digits := m[1:]
		if len(digits) > 6 {
			digits = digits[:6]
		}
		for len(digits) < 6 {
			digits += "0"
		}
		return "." + digits
	})
	s = bareOffsetRe.ReplaceAllString(s, "$1:$2")
	return s
}

// DayKey returns the UTC calendar-day key for a timestamp.
func DayKey(t time.Time) string {
	return t.UTC().Format(DayFormat)
}

// ParseDay parses a calendar-day key into midnight UTC.
func ParseDay(day string) (time.Time, error) {
	return time.Parse(DayFormat, day)
}

// DayBounds returns the inclusive UTC window covering one calendar day:
// midnight through one microsecond before the next midnight.
func DayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	end := start.Add(24*time.Hour - time.Microsecond)
	return start, end
}

func parseString(s string) (time.Time, bool) {
	if t, ok := ParseISO(s); ok {
		return t, true
	}
	// Epoch encoded as a string
	if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
		return fromEpoch(f), true
	}
	return time.Time{}, false
}

// fromEpoch treats values of at least 1e12 as epoch milliseconds, anything
// smaller as epoch seconds.
func fromEpoch(v float64) time.Time {
	if v >= 1e12 || v <= -1e12 {
		return time.UnixMilli(int64(v)).UTC()
	}
	sec := int64(v)
	nsec := int64((v - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
