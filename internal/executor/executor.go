// Package executor implements the Executor role: replays a TradingPlan
// against OHLC history, grades execution quality, and computes the
// Playbook usage delta — grounded on the teacher's execution.Executor order
// lifecycle, narrowed from live order placement to a pure replay-and-grade
// step.
package executor

import (
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/replay"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// entryQualityTolerance is the fraction of the entry zone's half-width the
// fill price may drift from the zone midpoint and still be graded "good".
const entryQualityTolerance = 0.20

// Executor turns one TradingPlan into a TradeLog and a PlaybookDelta.
type Executor struct {
	logger    *zap.Logger
	simulator *replay.Simulator
}

// New builds an Executor around a PriceReplaySimulator.
func New(logger *zap.Logger, simulator *replay.Simulator) *Executor {
	return &Executor{logger: logger.Named("executor"), simulator: simulator}
}

// Execute implements spec.md §4.6: invoke the simulator, build the TradeLog
// with heuristic feedback, and emit a PlaybookDelta touching only entry IDs
// that actually exist in playbook. plan_id is plan.Date verbatim, per
// spec.md §3's `plan_id (= plan.date)` contract.
func (e *Executor) Execute(plan types.TradingPlan, ohlcSession []types.Candle, instrument string, unavailableReason string, pb types.Playbook) (types.TradeLog, types.PlaybookDelta) {
	outcome := e.simulator.Simulate(plan, ohlcSession, instrument, unavailableReason)

	feedback := types.TradeFeedback{
		EntryQuality:            entryQuality(plan, outcome),
		ExitTiming:              exitTiming(outcome),
		PlaybookEntriesFeedback: entryFeedback(plan, outcome),
	}

	log := types.TradeLog{PlanID: plan.Date, Execution: outcome, Feedback: feedback}

	now := time.Now().UTC()
	delta := types.PlaybookDelta{LastUsed: map[string]time.Time{}}
	for _, id := range plan.PlaybookEntriesUsed {
		if _, _, ok := pb.FindEntry(id); !ok {
			e.logger.Warn("plan cites unknown playbook entry, dropping", zap.String("entry_id", id))
			continue
		}
		delta.LastUsed[id] = now
	}

	return log, delta
}

// entryQuality grades how close the simulated fill landed to the entry
// zone's midpoint. A plan with no fill (no_entry) or no zone (neutral) has
// no entry to grade.
func entryQuality(plan types.TradingPlan, outcome types.ExecutionOutcome) string {
	if outcome.EntryPrice == nil || len(plan.EntryZone) != 2 {
		return "no_entry"
	}

	low, high := plan.EntryZone[0], plan.EntryZone[1]
	mid := low.Add(high).Div(decimal.NewFromInt(2))
	halfWidth := high.Sub(low).Div(decimal.NewFromInt(2))
	if halfWidth.IsZero() {
		return "good"
	}

	drift := outcome.EntryPrice.Sub(mid).Abs()
	tolerance := halfWidth.Mul(decimal.NewFromFloat(entryQualityTolerance))
	if drift.LessThanOrEqual(tolerance) {
		return "good"
	}
	return "slippage"
}

// exitTiming classifies how the trade ended.
func exitTiming(outcome types.ExecutionOutcome) string {
	switch outcome.Outcome {
	case types.OutcomeWin:
		return "target_hit"
	case types.OutcomeLoss:
		return "stopped_out"
	case types.OutcomeOpen:
		return "session_close"
	default:
		return "none"
	}
}

// entryFeedback grades each cited Playbook entry's apparent contribution by
// the trade's outcome: a win credits every cited entry as helpful, a loss
// marks them harmful, and no_entry/open trades are left neutral since the
// cited entries did not get a conclusive test.
func entryFeedback(plan types.TradingPlan, outcome types.ExecutionOutcome) map[string]types.EntryFeedback {
	verdict := types.FeedbackNeutral
	switch outcome.Outcome {
	case types.OutcomeWin:
		verdict = types.FeedbackHelpful
	case types.OutcomeLoss:
		verdict = types.FeedbackHarmful
	}

	feedback := make(map[string]types.EntryFeedback, len(plan.PlaybookEntriesUsed))
	for _, id := range plan.PlaybookEntriesUsed {
		feedback[id] = verdict
	}
	return feedback
}
