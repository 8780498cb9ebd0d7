package analytics

import (
	"sort"

	"github.com/topsignal/trader-go/pkg/formulas"
)

// LossStreakBucket aggregates the P&L of trades taken immediately after a
// run of N consecutive losses (3 means "3 or more").
type LossStreakBucket struct {
	LossStreak int     `json:"loss_streak"`
	TradeCount int     `json:"trade_count"`
	TotalPnl   float64 `json:"total_pnl"`
	AveragePnl float64 `json:"average_pnl"`
}

// StreakMetrics captures win/loss runs over the closed-trade sequence.
type StreakMetrics struct {
	CurrentWinStreak  int                `json:"current_win_streak"`
	CurrentLossStreak int                `json:"current_loss_streak"`
	LongestWinStreak  int                `json:"longest_win_streak"`
	LongestLossStreak int                `json:"longest_loss_streak"`
	PnlAfterLosses    []LossStreakBucket `json:"pnl_after_losses"`
}

// ComputeStreakMetrics walks closing samples in time order classifying each
// by the sign of its net P&L. Breakeven trades reset both streaks.
func ComputeStreakMetrics(input []Sample) StreakMetrics {
	var closed []Sample
	for _, s := range input {
		if s.Closed() {
			closed = append(closed, s)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool { return closed[i].Timestamp.Before(closed[j].Timestamp) })

	var currentWin, currentLoss, longestWin, longestLoss, consecutiveLosses int
	afterLosses := map[int][]float64{1: nil, 2: nil, 3: nil}

	for _, s := range closed {
		net := s.Net()

		if consecutiveLosses > 0 {
			bucket := consecutiveLosses
			if bucket > 3 {
				bucket = 3
			}
			afterLosses[bucket] = append(afterLosses[bucket], net)
		}

		switch {
		case net > 0:
			currentWin++
			currentLoss = 0
			consecutiveLosses = 0
		case net < 0:
			currentLoss++
			currentWin = 0
			consecutiveLosses++
		default:
			currentWin = 0
			currentLoss = 0
			consecutiveLosses = 0
		}

		if currentWin > longestWin {
			longestWin = currentWin
		}
		if currentLoss > longestLoss {
			longestLoss = currentLoss
		}
	}

	metrics := StreakMetrics{
		CurrentWinStreak:  currentWin,
		CurrentLossStreak: currentLoss,
		LongestWinStreak:  longestWin,
		LongestLossStreak: longestLoss,
	}

	for _, streak := range []int{1, 2, 3} {
		values := afterLosses[streak]
		total := 0.0
		for _, v := range values {
			total += v
		}
		metrics.PnlAfterLosses = append(metrics.PnlAfterLosses, LossStreakBucket{
			LossStreak: streak,
			TradeCount: len(values),
			TotalPnl:   round2(total),
			AveragePnl: round2(formulas.Mean(values)),
		})
	}

	return metrics
}
