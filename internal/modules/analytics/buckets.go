package analytics

import (
	"sort"

	"github.com/topsignal/trader-go/pkg/formulas"
)

var dayLabels = map[int]string{
	1: "Monday", 2: "Tuesday", 3: "Wednesday", 4: "Thursday",
	5: "Friday", 6: "Saturday", 7: "Sunday",
}

// HourBucket is net P&L grouped by UTC hour of day.
type HourBucket struct {
	Hour       int     `json:"hour"`
	TradeCount int     `json:"trade_count"`
	Pnl        float64 `json:"pnl"`
}

// WeekdayBucket is net P&L grouped by ISO weekday (1 = Monday).
type WeekdayBucket struct {
	DayOfWeek  int     `json:"day_of_week"`
	DayLabel   string  `json:"day_label"`
	TradeCount int     `json:"trade_count"`
	Pnl        float64 `json:"pnl"`
}

// SymbolBucket is per-symbol net P&L with win rate, sorted by P&L.
type SymbolBucket struct {
	Symbol     string  `json:"symbol"`
	TradeCount int     `json:"trade_count"`
	Pnl        float64 `json:"pnl"`
	WinRate    float64 `json:"win_rate"`
}

// PositionSize summarizes closed-trade sizing.
type PositionSize struct {
	TradeCount          int     `json:"trade_count"`
	AveragePositionSize float64 `json:"average_position_size"`
	MaxPositionSize     float64 `json:"max_position_size"`
}

// BucketMetrics groups closed-trade net P&L across time-of-day, weekday and
// symbol, plus position sizing.
type BucketMetrics struct {
	ByHour       []HourBucket    `json:"by_hour"`
	ByDayOfWeek  []WeekdayBucket `json:"by_day_of_week"`
	BySymbol     []SymbolBucket  `json:"by_symbol"`
	PositionSize PositionSize    `json:"position_size"`
}

// ComputeBucketMetrics aggregates closing samples only. Hour and weekday
// rows are emitted for every slot, symbol rows only where trades exist.
func ComputeBucketMetrics(input []Sample) BucketMetrics {
	type agg struct {
		count int
		pnl   float64
		wins  int
	}

	hours := map[int]*agg{}
	weekdays := map[int]*agg{}
	symbols := map[string]*agg{}
	var sizes []float64
	maxSize := 0.0

	bump := func(m map[int]*agg, key int, net float64) {
		a := m[key]
		if a == nil {
			a = &agg{}
			m[key] = a
		}
		a.count++
		a.pnl += net
	}

	for _, s := range input {
		if !s.Closed() {
			continue
		}
		net := s.Net()
		ts := s.Timestamp.UTC()

		bump(hours, ts.Hour(), net)

		isoWeekday := (int(ts.Weekday())+6)%7 + 1
		bump(weekdays, isoWeekday, net)

		sym := symbols[s.Symbol]
		if sym == nil {
			sym = &agg{}
			symbols[s.Symbol] = sym
		}
		sym.count++
		sym.pnl += net
		if net > 0 {
			sym.wins++
		}

		sizes = append(sizes, s.Size)
		if s.Size > maxSize {
			maxSize = s.Size
		}
	}

	metrics := BucketMetrics{}

	for hour := 0; hour < 24; hour++ {
		bucket := HourBucket{Hour: hour}
		if a := hours[hour]; a != nil {
			bucket.TradeCount = a.count
			bucket.Pnl = round2(a.pnl)
		}
		metrics.ByHour = append(metrics.ByHour, bucket)
	}

	for day := 1; day <= 7; day++ {
		bucket := WeekdayBucket{DayOfWeek: day, DayLabel: dayLabels[day]}
		if a := weekdays[day]; a != nil {
			bucket.TradeCount = a.count
			bucket.Pnl = round2(a.pnl)
		}
		metrics.ByDayOfWeek = append(metrics.ByDayOfWeek, bucket)
	}

	for symbol, a := range symbols {
		bucket := SymbolBucket{
			Symbol:     symbol,
			TradeCount: a.count,
			Pnl:        round2(a.pnl),
		}
		if a.count > 0 {
			bucket.WinRate = round2(float64(a.wins) / float64(a.count) * 100)
		}
		metrics.BySymbol = append(metrics.BySymbol, bucket)
	}
	sort.Slice(metrics.BySymbol, func(i, j int) bool {
		if metrics.BySymbol[i].Pnl != metrics.BySymbol[j].Pnl {
			return metrics.BySymbol[i].Pnl > metrics.BySymbol[j].Pnl
		}
		return metrics.BySymbol[i].Symbol < metrics.BySymbol[j].Symbol
	})

	metrics.PositionSize = PositionSize{
		TradeCount:          len(sizes),
		AveragePositionSize: round4(formulas.Mean(sizes)),
		MaxPositionSize:     round4(maxSize),
	}

	return metrics
}
