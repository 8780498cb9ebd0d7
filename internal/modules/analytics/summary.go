package analytics

import (
	"sort"
	"time"

	"github.com/topsignal/trader-go/pkg/formulas"
	"github.com/topsignal/trader-go/pkg/timeutil"
)

// TradeSummary is the full per-account performance record. Money fields are
// rounded to 2 decimals at emission, rates to 2, profit factor to 4.
type TradeSummary struct {
	RealizedPnl float64 `json:"realized_pnl"`
	GrossPnl    float64 `json:"gross_pnl"`
	Fees        float64 `json:"fees"`
	NetPnl      float64 `json:"net_pnl"`

	TradeCount     int `json:"trade_count"`
	ExecutionCount int `json:"execution_count"`
	HalfTurnCount  int `json:"half_turn_count"`

	WinCount       int     `json:"win_count"`
	LossCount      int     `json:"loss_count"`
	BreakevenCount int     `json:"breakeven_count"`
	WinRate        float64 `json:"win_rate"`
	ProfitFactor   float64 `json:"profit_factor"`

	AvgWin             float64 `json:"avg_win"`
	AvgLoss            float64 `json:"avg_loss"`
	ExpectancyPerTrade float64 `json:"expectancy_per_trade"`
	PnlStdDev          float64 `json:"pnl_std_dev"`
	TailRisk5Pct       float64 `json:"tail_risk_5pct"`

	MaxDrawdown                float64 `json:"max_drawdown"`
	AverageDrawdown            float64 `json:"average_drawdown"`
	RiskDrawdownScore          float64 `json:"risk_drawdown_score"`
	MaxDrawdownLengthHours     float64 `json:"max_drawdown_length_hours"`
	RecoveryTimeHours          float64 `json:"recovery_time_hours"`
	AverageRecoveryLengthHours float64 `json:"average_recovery_length_hours"`

	ActiveDays      int     `json:"active_days"`
	GreenDays       int     `json:"green_days"`
	RedDays         int     `json:"red_days"`
	FlatDays        int     `json:"flat_days"`
	DayWinRate      float64 `json:"day_win_rate"`
	AvgTradesPerDay float64 `json:"avg_trades_per_day"`

	EfficiencyPerHour float64 `json:"efficiency_per_hour"`
	ProfitPerDay      float64 `json:"profit_per_day"`
}

// ComputeTradeSummary derives the summary from a sample sequence. Only
// closing samples contribute to realized P&L and win/loss classification;
// open legs count toward execution and half-turn totals and extend the
// active-hours window.
func ComputeTradeSummary(input []Sample) TradeSummary {
	if len(input) == 0 {
		return TradeSummary{}
	}

	samples := make([]Sample, len(input))
	copy(samples, input)
	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })

	var (
		closedPnls []float64
		wins       []float64
		losses     []float64
		grossPnl   float64
		totalFees  float64
	)

	points := make([]equityPoint, 0, len(samples))
	equity := 0.0
	orderIDs := map[string]struct{}{}
	anonymousExecutions := 0

	type dayAgg struct {
		net     float64
		first   time.Time
		last    time.Time
		started bool
	}
	days := map[string]*dayAgg{}

	for _, s := range samples {
		day := days[timeutil.DayKey(s.Timestamp)]
		if day == nil {
			day = &dayAgg{}
			days[timeutil.DayKey(s.Timestamp)] = day
		}
		if !day.started {
			day.first, day.last, day.started = s.Timestamp, s.Timestamp, true
		} else if s.Timestamp.After(day.last) {
			day.last = s.Timestamp
		}

		if s.OrderID != "" {
			orderIDs[s.OrderID] = struct{}{}
		} else {
			anonymousExecutions++
		}

		if s.Closed() {
			pnl := *s.PnL
			closedPnls = append(closedPnls, pnl)
			grossPnl += pnl
			totalFees += s.EffectiveFees()
			switch {
			case pnl > 0:
				wins = append(wins, pnl)
			case pnl < 0:
				losses = append(losses, pnl)
			}
			day.net += s.Net()
		}

		equity += s.Net()
		points = append(points, equityPoint{ts: s.Timestamp, equity: equity})
	}

	netPnl := grossPnl - totalFees
	closed := len(closedPnls)

	summary := TradeSummary{
		RealizedPnl:    round2(grossPnl),
		GrossPnl:       round2(grossPnl),
		Fees:           round2(totalFees),
		NetPnl:         round2(netPnl),
		TradeCount:     closed,
		ExecutionCount: len(samples),
		HalfTurnCount:  len(orderIDs) + anonymousExecutions,
		WinCount:       len(wins),
		LossCount:      len(losses),
		BreakevenCount: closed - len(wins) - len(losses),
		AvgWin:         round2(formulas.Mean(wins)),
		AvgLoss:        round2(formulas.Mean(losses)),
	}

	if closed > 0 {
		summary.WinRate = round2(float64(len(wins)) / float64(closed) * 100)
		summary.ExpectancyPerTrade = round2(formulas.Mean(closedPnls))
		summary.PnlStdDev = round2(formulas.StdDev(closedPnls))
		tail := formulas.TailMean(closedPnls, 0.05)
		if tail > 0 {
			tail = 0
		}
		summary.TailRisk5Pct = round2(tail)
	}

	sumWins := 0.0
	for _, w := range wins {
		sumWins += w
	}
	sumLosses := 0.0
	for _, l := range losses {
		sumLosses += l
	}
	if sumLosses != 0 {
		summary.ProfitFactor = round4(sumWins / -sumLosses)
	}

	stats := summarizeDrawdowns(buildDrawdownEpisodes(points), samples[len(samples)-1].Timestamp)
	summary.MaxDrawdown = round2(stats.maxDrawdown)
	summary.AverageDrawdown = round2(stats.averageDrawdown)
	summary.RiskDrawdownScore = round2(stats.riskDrawdownScore)
	summary.MaxDrawdownLengthHours = round2(stats.maxDrawdownLengthHours)
	summary.RecoveryTimeHours = round2(stats.recoveryTimeHours)
	summary.AverageRecoveryLengthHours = round2(stats.averageRecoveryLengthHours)

	activeDays := len(days)
	summary.ActiveDays = activeDays

	activeHours := 0.0
	for _, day := range days {
		span := day.last.Sub(day.first)
		if span < time.Minute {
			span = time.Minute
		}
		activeHours += span.Hours()

		switch {
		case day.net > 0:
			summary.GreenDays++
		case day.net < 0:
			summary.RedDays++
		default:
			summary.FlatDays++
		}
	}

	if activeDays > 0 {
		summary.DayWinRate = round2(float64(summary.GreenDays) / float64(activeDays) * 100)
		summary.AvgTradesPerDay = round2(float64(closed) / float64(activeDays))
		summary.ProfitPerDay = round2(netPnl / float64(activeDays))
	}
	if activeHours > 0 {
		summary.EfficiencyPerHour = round2(netPnl / activeHours)
	}

	return summary
}
