// Package types provides shared type definitions for the ACE trading loop.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Bias represents the directional stance of a TradingPlan.
type Bias string

const (
	BiasBullish Bias = "bullish"
	BiasBearish Bias = "bearish"
	BiasNeutral Bias = "neutral"
)

// Confidence represents the Generator's self-reported confidence in a plan.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Outcome is the result of replaying a TradingPlan against OHLC history.
type Outcome string

const (
	OutcomeNoEntry Outcome = "no_entry"
	OutcomeWin     Outcome = "win"
	OutcomeLoss    Outcome = "loss"
	OutcomeOpen    Outcome = "open"
)

// ExecutionMethod distinguishes a real price-data replay from the
// deterministic fallback used when OHLC history is unavailable.
type ExecutionMethod string

const (
	MethodRealPriceData     ExecutionMethod = "real_price_data"
	MethodHashBasedFallback ExecutionMethod = "hash_based_fallback"
)

// EntryFeedback is the Executor's judgement on whether a cited Playbook
// entry helped or hurt the outcome of the trade it was cited in.
type EntryFeedback string

const (
	FeedbackHelpful EntryFeedback = "helpful"
	FeedbackHarmful EntryFeedback = "harmful"
	FeedbackNeutral EntryFeedback = "neutral"
)

// InsightKind classifies a Reflector insight.
type InsightKind string

const (
	InsightSuccessPattern InsightKind = "success_pattern"
	InsightFailurePattern InsightKind = "failure_pattern"
	InsightOutdatedRule   InsightKind = "outdated_rule"
)

// SuggestedAction is the update the Curator should perform for an insight.
type SuggestedAction string

const (
	ActionAddEntry         SuggestedAction = "add_entry"
	ActionIncrementHelpful SuggestedAction = "increment_helpful"
	ActionIncrementHarmful SuggestedAction = "increment_harmful"
	ActionPrune            SuggestedAction = "prune"
)

// Priority orders the insights are applied by the Curator, high first.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// PriorityRank gives high/medium/low a sortable weight, high first, for use
// by the Curator's application ordering.
func PriorityRank(p Priority) int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Entry is one actionable item in the Playbook: a strategy, a reusable
// template, or a documented pitfall, tracked with usage counters.
type Entry struct {
	ID           string     `json:"id"`
	Content      string     `json:"content"`
	HelpfulCount int        `json:"helpful_count"`
	HarmfulCount int        `json:"harmful_count"`
	CreatedAt    time.Time  `json:"created_at"`
	LastUsed     *time.Time `json:"last_used"`
}

// PlaybookMetadata carries the version, freshness, and size of a Playbook.
type PlaybookMetadata struct {
	Version      string    `json:"version"`
	LastUpdated  time.Time `json:"last_updated"`
	TotalEntries int       `json:"total_entries"`

	// PrunedEntries records what the Curator removed to produce this
	// version, per spec.md §4.8's requirement that pruned entries are
	// recorded in the new version's snapshot metadata. Replaced, not
	// accumulated, on every Curator.Apply call.
	PrunedEntries []PrunedEntry `json:"pruned_entries,omitempty"`
}

// PrunedEntry is a record of one Entry the Curator removed from the
// Playbook, kept for audit purposes once the entry itself is gone.
type PrunedEntry struct {
	ID       string    `json:"id"`
	Section  string    `json:"section"`
	Content  string    `json:"content"`
	PrunedAt time.Time `json:"pruned_at"`
}

// Recognized Playbook section names. Additional sections are permitted and
// preserved untouched by every component that is not the Curator.
const (
	SectionStrategiesAndHardRules    = "strategies_and_hard_rules"
	SectionUsefulCodeAndTemplates    = "useful_code_and_templates"
	SectionTroubleshootingAndPitfalls = "troubleshooting_and_pitfalls"
)

// sectionPrefix maps a recognized section to its entry-ID prefix convention.
var sectionPrefix = map[string]string{
	SectionStrategiesAndHardRules:     "strat-",
	SectionUsefulCodeAndTemplates:     "code-",
	SectionTroubleshootingAndPitfalls: "pit-",
}

// SectionPrefix returns the ID prefix for a section, defaulting to "misc-"
// for sections outside the recognized set.
func SectionPrefix(section string) string {
	if p, ok := sectionPrefix[section]; ok {
		return p
	}
	return "misc-"
}

// Playbook is the versioned, human-readable knowledge base consumed by the
// Generator and mutated only by the Executor (last_used) and the Curator
// (everything else).
type Playbook struct {
	Metadata PlaybookMetadata    `json:"metadata"`
	Sections map[string][]Entry `json:"sections"`
}

// TotalEntries recomputes metadata.total_entries from the section lengths.
func (p *Playbook) TotalEntries() int {
	n := 0
	for _, entries := range p.Sections {
		n += len(entries)
	}
	return n
}

// FindEntry locates an entry by ID across all sections. Returns the section
// name, the index within that section, and whether it was found.
func (p *Playbook) FindEntry(id string) (section string, index int, ok bool) {
	for sec, entries := range p.Sections {
		for i, e := range entries {
			if e.ID == id {
				return sec, i, true
			}
		}
	}
	return "", 0, false
}

// MarketTimeframe captures the Generator-facing view of one timeframe.
type MarketTimeframe struct {
	Trend         string            `json:"trend"`
	KeySupport    []decimal.Decimal `json:"key_support"`
	KeyResistance []decimal.Decimal `json:"key_resistance"`
}

// Volatility captures ATR-style volatility context.
type Volatility struct {
	ATRDailyPips decimal.Decimal `json:"atr_daily_pips"`
}

// EconomicEvent is one scheduled calendar item relevant to the pair.
type EconomicEvent struct {
	Name    string    `json:"name"`
	TimeUTC time.Time `json:"time_utc"`
	Impact  string    `json:"impact"`
}

// MarketSnapshot is the opaque structured market context handed to the
// Generator; only the Generator inspects its fields.
type MarketSnapshot struct {
	Pair           string                     `json:"pair"`
	CurrentPrice   decimal.Decimal            `json:"current_price"`
	CurrentTimeUTC time.Time                  `json:"current_time_utc"`
	Timeframes     map[string]MarketTimeframe `json:"timeframes"`
	Volatility     Volatility                 `json:"volatility"`
	EconomicEvents []EconomicEvent            `json:"economic_events"`
	Intermarket    map[string]string          `json:"intermarket"`
}

// TradingPlan is the Generator's daily output and the Executor's input.
type TradingPlan struct {
	Date                string            `json:"date"`
	Bias                Bias              `json:"bias"`
	EntryZone           []decimal.Decimal `json:"entry_zone"`
	StopLoss            *decimal.Decimal  `json:"stop_loss"`
	TakeProfit1         *decimal.Decimal  `json:"take_profit_1"`
	TakeProfit2         *decimal.Decimal  `json:"take_profit_2"`
	PositionSizePct     *decimal.Decimal  `json:"position_size_pct"`
	RiskReward          *string           `json:"risk_reward"`
	Rationale           string            `json:"rationale"`
	PlaybookEntriesUsed []string          `json:"playbook_entries_used"`
	Confidence          Confidence        `json:"confidence"`
	Error               string            `json:"error,omitempty"`
}

// Candle is one OHLC bar of a replay session, interval-agnostic.
type Candle struct {
	OpenTime time.Time       `json:"open_time"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
}

// ExecutionOutcome is the PriceReplaySimulator's deterministic verdict.
type ExecutionOutcome struct {
	Outcome        Outcome          `json:"outcome"`
	EntryTime      *time.Time       `json:"entry_time"`
	EntryPrice     *decimal.Decimal `json:"entry_price"`
	ExitTime       *time.Time       `json:"exit_time"`
	ExitPrice      *decimal.Decimal `json:"exit_price"`
	PnLPips        decimal.Decimal  `json:"pnl_pips"`
	Method         ExecutionMethod  `json:"method"`
	FallbackReason string           `json:"fallback_reason,omitempty"`
}

// TradeFeedback is the Executor's heuristic read on execution quality.
type TradeFeedback struct {
	EntryQuality            string                   `json:"entry_quality"`
	ExitTiming              string                   `json:"exit_timing"`
	UnexpectedEvents        []string                 `json:"unexpected_events"`
	PlaybookEntriesFeedback map[string]EntryFeedback `json:"playbook_entries_feedback"`
}

// TradeLog is the Executor's output: one execution record per TradingPlan.
type TradeLog struct {
	PlanID    string           `json:"plan_id"`
	Execution ExecutionOutcome `json:"execution"`
	Feedback  TradeFeedback    `json:"feedback"`
}

// PlaybookDelta is the set of last_used timestamps the Executor asks the
// cycle orchestrator to apply to the Playbook after a run.
type PlaybookDelta struct {
	LastUsed map[string]time.Time `json:"last_used"`
}

// ReflectionWindow bounds a Reflector invocation by inclusive start and end
// dates (YYYY-MM-DD). The weekly cycle fills it with the trailing seven
// calendar days ending on the invocation date; weekends and holidays are
// not skipped.
type ReflectionWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// ReflectionSummary is the deterministic, no-LLM half of a ReflectionReport.
type ReflectionSummary struct {
	TotalTrades int             `json:"total_trades"`
	Wins        int             `json:"wins"`
	Losses      int             `json:"losses"`
	NoEntries   int             `json:"no_entries"`
	WinRate     decimal.Decimal `json:"win_rate"`
	TotalPips   decimal.Decimal `json:"total_pips"`
	AvgWinPips  decimal.Decimal `json:"avg_win_pips"`
	AvgLossPips decimal.Decimal `json:"avg_loss_pips"`
}

// Insight is one proposed Playbook update from the Reflector.
type Insight struct {
	Kind            InsightKind     `json:"kind"`
	Description     string          `json:"description"`
	EvidencePlanIDs []string        `json:"evidence_plan_ids"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
	TargetSection   string          `json:"target_section,omitempty"`
	TargetEntryID   string          `json:"target_entry_id,omitempty"`
	ProposedContent string          `json:"proposed_content,omitempty"`
	Priority        Priority        `json:"priority"`
}

// ReflectionReport is the Reflector's weekly output and the Curator's input.
type ReflectionReport struct {
	Window            ReflectionWindow  `json:"window"`
	Summary           ReflectionSummary `json:"summary"`
	Insights          []Insight         `json:"insights"`
	MarketRegimeNotes string            `json:"market_regime_notes"`
	Error             string            `json:"error,omitempty"`
}

// CuratorOutcome records what the Curator did with one insight, consumed
// by the weekly cycle for logging and Prometheus apply-result labels.
// Pruned entries themselves are recorded separately, on
// PlaybookMetadata.PrunedEntries.
type CuratorOutcome struct {
	Insight Insight `json:"insight"`
	Applied bool    `json:"applied"`
	Reason  string  `json:"reason,omitempty"`
}

// ArtifactSummary is the top-level index of the persisted state. It is built
// from disk on request (cycle.ArtifactIndex) and is not written to a file.
type ArtifactSummary struct {
	Playbook struct {
		Version      string    `json:"version"`
		TotalEntries int       `json:"total_entries"`
		LastUpdated  time.Time `json:"last_updated"`
	} `json:"playbook"`
	TradingSessions   []string `json:"trading_sessions"`
	WeeklyReflections []string `json:"weekly_reflections"`
}
