package analytics

import (
	"time"

	"github.com/topsignal/trader-go/pkg/formulas"
)

// equityPoint is one step of the cumulative-net equity curve.
type equityPoint struct {
	ts     time.Time
	equity float64
}

// drawdownEpisode is a contiguous interval where equity stays below its
// prior peak. EndTs is nil while the episode has not recovered.
type drawdownEpisode struct {
	peakEquity     float64
	startTs        time.Time
	troughTs       time.Time
	endTs          *time.Time
	troughDrawdown float64 // negative
}

// buildDrawdownEpisodes walks the equity curve tracking the running peak.
// An episode starts at the first point strictly below the peak and ends at
// the first point at or above it. An unfinished episode is emitted with a
// nil end.
func buildDrawdownEpisodes(points []equityPoint) []drawdownEpisode {
	peak := 0.0
	var episodes []drawdownEpisode
	var open *drawdownEpisode

	for _, p := range points {
		if open == nil {
			if p.equity < peak {
				open = &drawdownEpisode{
					peakEquity:     peak,
					startTs:        p.ts,
					troughTs:       p.ts,
					troughDrawdown: p.equity - peak,
				}
			} else if p.equity > peak {
				peak = p.equity
			}
			continue
		}

		if p.equity >= peak {
			end := p.ts
			open.endTs = &end
			episodes = append(episodes, *open)
			open = nil
			if p.equity > peak {
				peak = p.equity
			}
			continue
		}

		if dd := p.equity - peak; dd < open.troughDrawdown {
			open.troughDrawdown = dd
			open.troughTs = p.ts
		}
	}

	if open != nil {
		episodes = append(episodes, *open)
	}
	return episodes
}

// drawdownStats summarizes episodes for the trade summary. lastTs stands in
// for the end of any unrecovered episode.
type drawdownStats struct {
	maxDrawdown                float64
	averageDrawdown            float64
	riskDrawdownScore          float64
	maxDrawdownLengthHours     float64
	recoveryTimeHours          float64
	averageRecoveryLengthHours float64
}

func summarizeDrawdowns(episodes []drawdownEpisode, lastTs time.Time) drawdownStats {
	var stats drawdownStats
	if len(episodes) == 0 {
		return stats
	}

	deepest := episodes[0]
	var troughs []float64
	var recoveries []float64

	for _, ep := range episodes {
		troughs = append(troughs, ep.troughDrawdown)
		if ep.troughDrawdown < deepest.troughDrawdown {
			deepest = ep
		}

		end := lastTs
		if ep.endTs != nil {
			end = *ep.endTs
			recoveries = append(recoveries, end.Sub(ep.troughTs).Hours())
		}
		if length := end.Sub(ep.startTs).Hours(); length > stats.maxDrawdownLengthHours {
			stats.maxDrawdownLengthHours = length
		}
	}

	stats.maxDrawdown = deepest.troughDrawdown
	stats.averageDrawdown = formulas.Mean(troughs)

	depth := -deepest.troughDrawdown
	denominator := deepest.peakEquity
	if depth > denominator {
		denominator = depth
	}
	if denominator < 1 {
		denominator = 1
	}
	stats.riskDrawdownScore = depth / denominator * 100

	recoveryEnd := lastTs
	if deepest.endTs != nil {
		recoveryEnd = *deepest.endTs
	}
	stats.recoveryTimeHours = recoveryEnd.Sub(deepest.troughTs).Hours()
	stats.averageRecoveryLengthHours = formulas.Mean(recoveries)

	return stats
}
