package analytics

import (
	"math"
	"time"
)

// Sample is one execution event prepared for metric computation.
//
// PnL is nil for open-leg rows: the gateway reports realized P&L only on the
// execution that closes a position. Fees on a closing sample are the
// round-trip fees (the stored per-leg fee doubled), since the entry leg's fee
// was charged on a separate open-leg event.
type Sample struct {
	Timestamp time.Time
	PnL       *float64
	Fees      float64
	OrderID   string
	Symbol    string
	Side      string
	Size      float64
	Price     float64
}

// Closed reports whether this sample closed a position.
func (s Sample) Closed() bool {
	return s.PnL != nil
}

// Net is the sample's contribution to the equity curve. Open legs contribute
// nothing; their fee is accounted for by the doubled closing fee.
func (s Sample) Net() float64 {
	if s.PnL == nil {
		return 0
	}
	return *s.PnL - s.Fees
}

// EffectiveFees is the fee amount that counts toward totals.
func (s Sample) EffectiveFees() float64 {
	if s.PnL == nil {
		return 0
	}
	return s.Fees
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}

func round4(value float64) float64 {
	return math.Round(value*10000) / 10000
}
