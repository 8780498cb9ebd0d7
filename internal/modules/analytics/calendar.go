package analytics

import (
	"sort"

	"github.com/topsignal/trader-go/pkg/timeutil"
)

// CalendarDay is one UTC day of closed-trade activity.
type CalendarDay struct {
	Date       string  `json:"date"`
	TradeCount int     `json:"trade_count"`
	GrossPnl   float64 `json:"gross_pnl"`
	Fees       float64 `json:"fees"`
	NetPnl     float64 `json:"net_pnl"`
}

// ComputeDailyPnlCalendar groups closing samples by UTC date. Open legs are
// excluded entirely: a day with only open legs does not appear.
func ComputeDailyPnlCalendar(samples []Sample) []CalendarDay {
	byDate := map[string]*CalendarDay{}

	for _, s := range samples {
		if !s.Closed() {
			continue
		}
		key := timeutil.DayKey(s.Timestamp)
		day := byDate[key]
		if day == nil {
			day = &CalendarDay{Date: key}
			byDate[key] = day
		}
		day.TradeCount++
		day.GrossPnl += *s.PnL
		day.Fees += s.EffectiveFees()
	}

	calendar := make([]CalendarDay, 0, len(byDate))
	for _, day := range byDate {
		day.NetPnl = round2(day.GrossPnl - day.Fees)
		day.GrossPnl = round2(day.GrossPnl)
		day.Fees = round2(day.Fees)
		calendar = append(calendar, *day)
	}

	sort.Slice(calendar, func(i, j int) bool { return calendar[i].Date < calendar[j].Date })
	return calendar
}
