// Package reflector implements the Reflector role: deterministic summary
// statistics over a window of TradeLogs plus a single LLM call that
// proposes prioritized Playbook updates, grounded on the teacher's
// learning.FeedbackEngine/PerformanceAnalyzer aggregation style but
// narrowed to the weekly ReflectionReport contract spec.md §4.7 describes.
package reflector

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlas-desktop/ace-playbook/internal/jsonutil"
	"github.com/atlas-desktop/ace-playbook/internal/llm"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Reflector turns a window of TradeLogs into a ReflectionReport.
type Reflector struct {
	logger  *zap.Logger
	client  llm.Client
	decoder *jsonutil.Decoder
	cfg     types.Config
}

// New builds a Reflector.
func New(logger *zap.Logger, client llm.Client, decoder *jsonutil.Decoder, cfg types.Config) *Reflector {
	return &Reflector{logger: logger.Named("reflector"), client: client, decoder: decoder, cfg: cfg}
}

// WindowedLog pairs a TradeLog with the plan it came from — the Reflector
// needs the plan's date, bias, and rationale for its evidence bundle, none
// of which the bare TradeLog carries.
type WindowedLog struct {
	PlanID string
	Plan   types.TradingPlan
	Log    types.TradeLog
}

// Reflect implements spec.md §4.7: compute summary deterministically, build
// a compact evidence bundle, make one LLM call, and validate the result.
// Decode/schema failures yield an empty-insights report with Error set
// rather than aborting — the Executor's counters from the period are
// preserved regardless of reflection quality.
func (r *Reflector) Reflect(ctx context.Context, window types.ReflectionWindow, logs []WindowedLog) types.ReflectionReport {
	summary := computeSummary(logs)

	report := types.ReflectionReport{Window: window, Summary: summary}

	if len(logs) == 0 {
		report.MarketRegimeNotes = "no trades in window"
		return report
	}

	systemPrompt := systemPrompt()
	userPrompt := buildEvidenceBundle(window, summary, logs, r.cfg.MaxReflectionInsights)

	callCtx := ctx
	if r.cfg.LLM.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.LLM.Timeout)
		defer cancel()
	}
	resp, err := r.client.Generate(callCtx, systemPrompt, userPrompt, r.cfg.LLM)
	if err != nil {
		r.logger.Warn("reflector llm call failed", zap.Error(err))
		report.Error = fmt.Sprintf("upstream LLM error: %v", err)
		return report
	}

	text, err := resp.Text()
	if err != nil {
		r.logger.Warn("reflector response blocked", zap.Error(err))
		report.Error = fmt.Sprintf("response blocked: %v", err)
		return report
	}

	var raw rawReport
	if err := r.decoder.Decode(text, &raw); err != nil {
		r.logger.Warn("failed to decode reflector response", zap.Error(err))
		report.Error = fmt.Sprintf("malformed response: %v", err)
		return report
	}

	insights, err := raw.toInsights(r.cfg.MaxReflectionInsights)
	if err != nil {
		r.logger.Warn("schema violation in reflection report", zap.Error(err))
		report.Error = fmt.Sprintf("schema violation: %v", err)
		return report
	}

	report.Insights = insights
	report.MarketRegimeNotes = raw.MarketRegimeNotes
	return report
}

// computeSummary is the no-LLM half of the report — pure aggregation over
// the window's outcomes, mirroring the teacher's PerformanceAnalyzer.Analyze
// win-rate/avg-pnl bucketing but narrowed to the four Outcome states.
func computeSummary(logs []WindowedLog) types.ReflectionSummary {
	var s types.ReflectionSummary
	s.TotalTrades = len(logs)

	totalPips := decimal.Zero
	winPips := decimal.Zero
	lossPips := decimal.Zero

	for _, wl := range logs {
		switch wl.Log.Execution.Outcome {
		case types.OutcomeWin:
			s.Wins++
			winPips = winPips.Add(wl.Log.Execution.PnLPips)
		case types.OutcomeLoss:
			s.Losses++
			lossPips = lossPips.Add(wl.Log.Execution.PnLPips)
		case types.OutcomeNoEntry:
			s.NoEntries++
		}
		totalPips = totalPips.Add(wl.Log.Execution.PnLPips)
	}

	s.TotalPips = totalPips

	decided := s.Wins + s.Losses
	if decided > 0 {
		s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(decimal.NewFromInt(int64(decided)))
	}
	if s.Wins > 0 {
		s.AvgWinPips = winPips.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AvgLossPips = lossPips.Div(decimal.NewFromInt(int64(s.Losses)))
	}

	return s
}

// rawInsight/rawReport mirror the LLM's expected wire shape.
type rawInsight struct {
	Kind            string   `json:"kind"`
	Description     string   `json:"description"`
	EvidencePlanIDs []string `json:"evidence_plan_ids"`
	SuggestedAction string   `json:"suggested_action"`
	TargetSection   string   `json:"target_section,omitempty"`
	TargetEntryID   string   `json:"target_entry_id,omitempty"`
	ProposedContent string   `json:"proposed_content,omitempty"`
	Priority        string   `json:"priority"`
}

type rawReport struct {
	Insights          []rawInsight `json:"insights"`
	MarketRegimeNotes string       `json:"market_regime_notes"`
}

func (r rawReport) toInsights(maxInsights int) ([]types.Insight, error) {
	if len(r.Insights) > maxInsights {
		r.Insights = r.Insights[:maxInsights]
	}

	insights := make([]types.Insight, 0, len(r.Insights))
	for i, raw := range r.Insights {
		kind := types.InsightKind(raw.Kind)
		switch kind {
		case types.InsightSuccessPattern, types.InsightFailurePattern, types.InsightOutdatedRule:
		default:
			return nil, fmt.Errorf("insight %d: invalid kind %q", i, raw.Kind)
		}

		action := types.SuggestedAction(raw.SuggestedAction)
		switch action {
		case types.ActionAddEntry, types.ActionIncrementHelpful, types.ActionIncrementHarmful, types.ActionPrune:
		default:
			return nil, fmt.Errorf("insight %d: invalid suggested_action %q", i, raw.SuggestedAction)
		}

		priority := types.Priority(raw.Priority)
		switch priority {
		case types.PriorityHigh, types.PriorityMedium, types.PriorityLow:
		default:
			return nil, fmt.Errorf("insight %d: invalid priority %q", i, raw.Priority)
		}

		if action == types.ActionAddEntry && (raw.TargetSection == "" || raw.ProposedContent == "") {
			return nil, fmt.Errorf("insight %d: add_entry requires target_section and proposed_content", i)
		}
		if (action == types.ActionIncrementHelpful || action == types.ActionIncrementHarmful || action == types.ActionPrune) && raw.TargetEntryID == "" {
			return nil, fmt.Errorf("insight %d: %s requires target_entry_id", i, raw.SuggestedAction)
		}

		insights = append(insights, types.Insight{
			Kind:            kind,
			Description:     raw.Description,
			EvidencePlanIDs: raw.EvidencePlanIDs,
			SuggestedAction: action,
			TargetSection:   raw.TargetSection,
			TargetEntryID:   raw.TargetEntryID,
			ProposedContent: raw.ProposedContent,
			Priority:        priority,
		})
	}

	return insights, nil
}

func systemPrompt() string {
	return "You are the Reflector role in an Agentic Context Engineering trading loop. " +
		"Given deterministic summary statistics and a compact evidence bundle of the week's " +
		"trades, respond with a single JSON object: " +
		`{"insights":[{"kind":"success_pattern|failure_pattern|outdated_rule","description":"...",` +
		`"evidence_plan_ids":["..."],"suggested_action":"add_entry|increment_helpful|increment_harmful|prune",` +
		`"target_section":"...","target_entry_id":"...","proposed_content":"...","priority":"high|medium|low"}],` +
		`"market_regime_notes":"..."}. ` +
		"Propose concrete, testable changes only. Output JSON only."
}

// buildEvidenceBundle serializes plan dates, outcomes, cited entry IDs,
// pips, and short rationale fragments into compact text, per spec.md §4.7
// step 2.
func buildEvidenceBundle(window types.ReflectionWindow, summary types.ReflectionSummary, logs []WindowedLog, maxInsights int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Window: %s to %s\n", window.Start, window.End)
	fmt.Fprintf(&b, "Summary: trades=%d wins=%d losses=%d no_entries=%d win_rate=%s total_pips=%s\n",
		summary.TotalTrades, summary.Wins, summary.Losses, summary.NoEntries, summary.WinRate, summary.TotalPips)
	fmt.Fprintf(&b, "Propose no more than %d insights.\n\nTrades:\n", maxInsights)

	for _, wl := range logs {
		rationale := wl.Plan.Rationale
		if len(rationale) > 120 {
			rationale = rationale[:120]
		}
		fmt.Fprintf(&b, "- plan_id=%s date=%s bias=%s outcome=%s pnl_pips=%s cited=%v rationale=%q\n",
			wl.PlanID, wl.Plan.Date, wl.Plan.Bias, wl.Log.Execution.Outcome, wl.Log.Execution.PnLPips,
			wl.Plan.PlaybookEntriesUsed, rationale)
	}

	return b.String()
}

// NewWindowedLog exposes the package-private pairing type to callers
// (the cycle orchestrator) so it does not need to duplicate the shape.
func NewWindowedLog(planID string, plan types.TradingPlan, log types.TradeLog) WindowedLog {
	return WindowedLog{PlanID: planID, Plan: plan, Log: log}
}
