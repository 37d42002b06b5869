// Package replay implements the PriceReplaySimulator: deterministic outcome
// determination from OHLC data, grounded on the event-walking structure of
// the teacher's backtester engine but narrowed to the single-session,
// single-plan contract spec.md §4.4 describes.
package replay

import (
	"crypto/sha1"
	"encoding/binary"
	"time"

	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Simulator is stateless and safe for concurrent use; Simulate is a pure
// function of its arguments (spec.md §4.4 determinism property, §8).
type Simulator struct {
	logger *zap.Logger
	cfg    types.Config
}

// New builds a Simulator bound to cfg's pip-scale and fallback-probability
// tables.
func New(logger *zap.Logger, cfg types.Config) *Simulator {
	return &Simulator{logger: logger.Named("replay-simulator"), cfg: cfg}
}

// Simulate decides {no_entry, win, loss, open} for plan against candles, the
// ordered OHLC sequence for plan's session. unavailableReason is surfaced in
// the result (and logged) only when candles is empty and a fallback is used;
// callers should describe why data was unavailable (e.g. "weekend",
// "upstream fetch error").
func (s *Simulator) Simulate(plan types.TradingPlan, candles []types.Candle, instrument string, unavailableReason string) types.ExecutionOutcome {
	if plan.Bias == types.BiasNeutral {
		return types.ExecutionOutcome{
			Outcome: types.OutcomeNoEntry,
			Method:  types.MethodRealPriceData,
			PnLPips: decimal.Zero,
		}
	}

	if len(candles) == 0 {
		if unavailableReason == "" {
			unavailableReason = "no price data available"
		}
		s.logger.Warn("ohlc session unavailable, using hash-based fallback",
			zap.String("plan_date", plan.Date),
			zap.String("reason", unavailableReason),
		)
		return s.fallback(plan, instrument, unavailableReason)
	}

	return s.replay(plan, candles, instrument)
}

// replay implements the four-step algorithm in spec.md §4.4 exactly.
func (s *Simulator) replay(plan types.TradingPlan, candles []types.Candle, instrument string) types.ExecutionOutcome {
	eLow, eHigh := plan.EntryZone[0], plan.EntryZone[1]
	sl := *plan.StopLoss
	tp := *plan.TakeProfit1

	entryIdx := -1
	var entryPrice decimal.Decimal
	for i, c := range candles {
		low, high := maxDecimal(c.Low, eLow), minDecimal(c.High, eHigh)
		if low.LessThanOrEqual(high) {
			entryIdx = i
			entryPrice = low.Add(high).Div(decimal.NewFromInt(2))
			break
		}
	}

	if entryIdx == -1 {
		return types.ExecutionOutcome{
			Outcome: types.OutcomeNoEntry,
			Method:  types.MethodRealPriceData,
			PnLPips: decimal.Zero,
		}
	}

	entryTime := candles[entryIdx].OpenTime

	for i := entryIdx + 1; i < len(candles); i++ {
		c := candles[i]
		hitsSL := contains(c, sl)
		hitsTP := contains(c, tp)

		switch {
		case hitsSL:
			// Tie-break: stop-loss wins when both are contained in the
			// same candle — conservative, assumes adverse traversal order.
			return s.finish(plan, instrument, entryTime, entryPrice, c.OpenTime, sl, types.OutcomeLoss)
		case hitsTP:
			return s.finish(plan, instrument, entryTime, entryPrice, c.OpenTime, tp, types.OutcomeWin)
		}
	}

	// End of session: entered but neither SL nor TP reached.
	last := candles[len(candles)-1]
	return s.finish(plan, instrument, entryTime, entryPrice, last.OpenTime, last.Close, types.OutcomeOpen)
}

func (s *Simulator) finish(plan types.TradingPlan, instrument string, entryTime time.Time, entryPrice decimal.Decimal, exitTime time.Time, exitPrice decimal.Decimal, outcome types.Outcome) types.ExecutionOutcome {
	pnl := pnlPips(plan.Bias, entryPrice, exitPrice, s.cfg.PipScaleFor(instrument))
	return types.ExecutionOutcome{
		Outcome:    outcome,
		EntryTime:  timePtr(entryTime),
		EntryPrice: decimalPtr(entryPrice),
		ExitTime:   timePtr(exitTime),
		ExitPrice:  decimalPtr(exitPrice),
		PnLPips:    pnl,
		Method:     types.MethodRealPriceData,
	}
}

func contains(c types.Candle, price decimal.Decimal) bool {
	return c.Low.LessThanOrEqual(price) && c.High.GreaterThanOrEqual(price)
}

func maxDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

func minDecimal(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// fallback derives a deterministic {win, loss} outcome from (plan.date,
// plan.confidence) per spec.md §4.4/§9: the open question's win-probability
// table is pinned in DESIGN.md to {high: 0.66, medium: 0.50, low: 0.0}.
func (s *Simulator) fallback(plan types.TradingPlan, instrument string, reason string) types.ExecutionOutcome {
	p := s.cfg.FallbackWinProbability[plan.Confidence]
	roll := deterministicUnitFloat(plan.Date, string(plan.Confidence))

	outcome := types.OutcomeLoss
	if roll < p {
		outcome = types.OutcomeWin
	}

	var entryPrice, exitPrice decimal.Decimal
	if len(plan.EntryZone) == 2 {
		entryPrice = plan.EntryZone[0].Add(plan.EntryZone[1]).Div(decimal.NewFromInt(2))
	}
	if outcome == types.OutcomeWin && plan.TakeProfit1 != nil {
		exitPrice = *plan.TakeProfit1
	} else if plan.StopLoss != nil {
		exitPrice = *plan.StopLoss
	}

	pnl := pnlPips(plan.Bias, entryPrice, exitPrice, s.cfg.PipScaleFor(instrument))

	return types.ExecutionOutcome{
		Outcome:        outcome,
		EntryPrice:     decimalPtr(entryPrice),
		ExitPrice:      decimalPtr(exitPrice),
		PnLPips:        pnl,
		Method:         types.MethodHashBasedFallback,
		FallbackReason: reason,
	}
}

// deterministicUnitFloat maps (date, confidence) onto [0, 1) via SHA-1,
// giving the fallback path the same byte-identical-output guarantee the
// real replay path gets from walking candles in a fixed order.
func deterministicUnitFloat(date, confidence string) float64 {
	sum := sha1.Sum([]byte(date + "|" + confidence))
	n := binary.BigEndian.Uint64(sum[:8])
	return float64(n) / float64(^uint64(0))
}

func decimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }
func timePtr(t time.Time) *time.Time                { return &t }

// pnlPips scales (exit - entry), sign-conditioned on bias, into pips.
func pnlPips(bias types.Bias, entry, exit decimal.Decimal, scale int) decimal.Decimal {
	diff := exit.Sub(entry)
	if bias == types.BiasBearish {
		diff = diff.Neg()
	}
	return diff.Mul(decimal.NewFromInt(int64(scale)))
}
