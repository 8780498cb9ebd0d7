package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp_ISOVariants(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  time.Time
	}{
		{"zulu suffix", "2024-03-01T14:30:00Z", time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)},
		{"lowercase zulu", "2024-03-01T14:30:00z", time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)},
		{"explicit offset", "2024-03-01T14:30:00+02:00", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"offset without colon", "2024-03-01T14:30:00+0200", time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)},
		{"no offset assumed utc", "2024-03-01T14:30:00", time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)},
		{"space separator", "2024-03-01 14:30:00", time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)},
		{"short fraction", "2024-03-01T14:30:00.5Z", time.Date(2024, 3, 1, 14, 30, 0, 500000000, time.UTC)},
		{"three digit fraction", "2024-03-01T14:30:00.123Z", time.Date(2024, 3, 1, 14, 30, 0, 123000000, time.UTC)},
		{"overlong fraction truncated", "2024-03-01T14:30:00.1234567890Z", time.Date(2024, 3, 1, 14, 30, 0, 123456000, time.UTC)},
		{"date only", "2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}
}

func TestParseTimestamp_Epoch(t *testing.T) {
	want := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

	got, ok := ParseTimestamp(float64(want.Unix()))
	require.True(t, ok)
	assert.True(t, want.Equal(got), "epoch seconds")

	got, ok = ParseTimestamp(float64(want.UnixMilli()))
	require.True(t, ok)
	assert.True(t, want.Equal(got), "epoch milliseconds")

	got, ok = ParseTimestamp("1709303400")
	require.True(t, ok)
	assert.True(t, want.Equal(got), "epoch in string")
}

func TestParseTimestamp_Unparseable(t *testing.T) {
	for _, input := range []interface{}{"not-a-date", "", nil, true, map[string]interface{}{}} {
		_, ok := ParseTimestamp(input)
		assert.False(t, ok, "input %v", input)
	}
}

func TestISOUTC(t *testing.T) {
	ts := time.Date(2024, 3, 1, 14, 30, 0, 123456000, time.FixedZone("EET", 2*3600))
	assert.Equal(t, "2024-03-01T12:30:00.123456Z", ISOUTC(ts))
}

func TestDayBounds(t *testing.T) {
	day, err := ParseDay("2024-03-01")
	require.NoError(t, err)

	start, end := DayBounds(day)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2024, 3, 1, 23, 59, 59, 999999000, time.UTC), end)
}

func TestDayKey(t *testing.T) {
	// 23:30 local on March 1st in UTC+2 is still March 1st in UTC
	ts := time.Date(2024, 3, 1, 23, 30, 0, 0, time.FixedZone("EET", 2*3600))
	assert.Equal(t, "2024-03-01", DayKey(ts))
}
