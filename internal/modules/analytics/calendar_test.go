package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeDailyPnlCalendar(t *testing.T) {
	day1 := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	samples := []Sample{
		closedSample(day2, -30, 4),
		closedSample(day1, 100, 10),
		closedSample(day1.Add(time.Hour), 50, 6),
		openSample(day1.Add(2*time.Hour), 2),
	}

	calendar := ComputeDailyPnlCalendar(samples)
	require.Len(t, calendar, 2)

	assert.Equal(t, "2024-03-01", calendar[0].Date)
	assert.Equal(t, 2, calendar[0].TradeCount)
	assert.InDelta(t, 150, calendar[0].GrossPnl, 0.005)
	assert.InDelta(t, 16, calendar[0].Fees, 0.005)
	assert.InDelta(t, 134, calendar[0].NetPnl, 0.005)

	assert.Equal(t, "2024-03-02", calendar[1].Date)
	assert.InDelta(t, -34, calendar[1].NetPnl, 0.005)
}

func TestComputeDailyPnlCalendar_LateNightCrossesUTCDate(t *testing.T) {
	// 23:59 and 00:01 land on different UTC dates
	samples := []Sample{
		closedSample(time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC), 10, 0),
		closedSample(time.Date(2024, 3, 2, 0, 1, 0, 0, time.UTC), 20, 0),
	}

	calendar := ComputeDailyPnlCalendar(samples)
	require.Len(t, calendar, 2)
	assert.Equal(t, "2024-03-01", calendar[0].Date)
	assert.Equal(t, "2024-03-02", calendar[1].Date)
}

func TestComputeDailyPnlCalendar_Empty(t *testing.T) {
	assert.Empty(t, ComputeDailyPnlCalendar(nil))
	assert.Empty(t, ComputeDailyPnlCalendar([]Sample{openSample(time.Now(), 1)}))
}
