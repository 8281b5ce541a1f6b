// Package delta evaluates intraday percentage change against an alert threshold.
package delta

import (
	"fmt"
	"math"

	"github.com/rs/zerolog"
)

// Epsilon is the smallest open price considered valid for a delta computation.
const Epsilon = 1e-15

// ZeroOpenPriceError signals an unusable session open for a single ticker.
// Callers treat it as a per-ticker failure, not a cycle abort.
type ZeroOpenPriceError struct {
	Ticker string
	Open   float64
}

func (e *ZeroOpenPriceError) Error() string {
	return fmt.Sprintf("ticker %s: open price %g is zero or near zero", e.Ticker, e.Open)
}

// Direction indicates the sign of the delta for display purposes.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionFlat Direction = "flat"
)

// Icon returns the display icon for the direction.
func (d Direction) Icon() string {
	switch d {
	case DirectionUp:
		return "📈"
	case DirectionDown:
		return "📉"
	default:
		return "➖"
	}
}

// Override carries the test-run substitution for the computed delta.
type Override struct {
	Enabled  bool
	ForcePct *float64
}

// Evaluation is the outcome of one delta check. When the delta was forced,
// LastPrice is recomputed from the open so downstream formatting stays
// internally consistent, and ObservedPct keeps the real value.
type Evaluation struct {
	DeltaPct    float64
	LastPrice   float64
	Triggered   bool
	Direction   Direction
	Forced      bool
	ObservedPct float64
}

// Evaluator decides whether a price move crosses the alert threshold.
type Evaluator struct {
	thresholdPct float64
	override     Override
	log          zerolog.Logger
}

// New creates an evaluator. ThresholdPct is in percentage points (3.0 = 3%).
func New(thresholdPct float64, override Override, log zerolog.Logger) *Evaluator {
	return &Evaluator{thresholdPct: thresholdPct, override: override, log: log}
}

// Evaluate computes delta_pct = (last-open)/open*100 and the alert decision.
// The threshold boundary is inclusive: |delta| == threshold fires.
func (e *Evaluator) Evaluate(ticker string, open, last float64) (Evaluation, error) {
	if open <= Epsilon {
		return Evaluation{}, &ZeroOpenPriceError{Ticker: ticker, Open: open}
	}

	observed := (last - open) / open * 100
	ev := Evaluation{
		DeltaPct:    observed,
		LastPrice:   last,
		ObservedPct: observed,
	}

	if e.override.Enabled && e.override.ForcePct != nil {
		forced := *e.override.ForcePct
		ev.Forced = true
		ev.DeltaPct = forced
		ev.LastPrice = open * (1 + forced/100)
		e.log.Warn().
			Str("ticker", ticker).
			Float64("observed_pct", observed).
			Float64("forced_pct", forced).
			Msg("test mode: substituting forced delta")
	}

	ev.Triggered = math.Abs(ev.DeltaPct) >= e.thresholdPct

	switch {
	case ev.DeltaPct > 0:
		ev.Direction = DirectionUp
	case ev.DeltaPct < 0:
		ev.Direction = DirectionDown
	default:
		ev.Direction = DirectionFlat
	}

	return ev, nil
}
