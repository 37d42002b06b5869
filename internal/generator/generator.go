// Package generator implements the Generator role: produces a TradingPlan
// from (Playbook, MarketSnapshot) via a single LLM call, degrading to a
// safe neutral plan on any failure.
package generator

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atlas-desktop/ace-playbook/internal/jsonutil"
	"github.com/atlas-desktop/ace-playbook/internal/llm"
	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Generator produces one TradingPlan per invocation. Config-driven shape
// grounded on the teacher's autonomous.TradingAgent constructor pattern,
// narrowed to a single stateless LLM call.
type Generator struct {
	logger  *zap.Logger
	client  llm.Client
	decoder *jsonutil.Decoder
	cfg     types.Config
}

// New builds a Generator.
func New(logger *zap.Logger, client llm.Client, decoder *jsonutil.Decoder, cfg types.Config) *Generator {
	return &Generator{logger: logger.Named("generator"), client: client, decoder: decoder, cfg: cfg}
}

// Generate implements spec.md §4.5: prompt, decode, validate, and on any
// failure collapse to a safe neutral plan with the error class recorded.
func (g *Generator) Generate(ctx context.Context, pb types.Playbook, snapshot types.MarketSnapshot) types.TradingPlan {
	date := snapshot.CurrentTimeUTC.Format("2006-01-02")

	systemPrompt := systemPrompt()
	userPrompt, err := g.buildUserPrompt(pb, snapshot)
	if err != nil {
		return safeNeutral(date, fmt.Sprintf("failed to build prompt: %v", err))
	}

	callCtx := ctx
	if g.cfg.LLM.Timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, g.cfg.LLM.Timeout)
		defer cancel()
	}
	resp, err := g.client.Generate(callCtx, systemPrompt, userPrompt, g.cfg.LLM)
	if err != nil {
		g.logger.Warn("llm call failed", zap.Error(err))
		return safeNeutral(date, fmt.Sprintf("upstream LLM error: %v", err))
	}

	text, err := resp.Text()
	if err != nil {
		g.logger.Warn("llm response blocked", zap.Error(err))
		return safeNeutral(date, fmt.Sprintf("response blocked: %v", err))
	}

	var raw rawPlan
	if err := g.decoder.Decode(text, &raw); err != nil {
		g.logger.Warn("failed to decode generator response", zap.Error(err))
		return safeNeutral(date, fmt.Sprintf("malformed response: %v", err))
	}

	plan, err := raw.toTradingPlan(date)
	if err != nil {
		g.logger.Warn("schema violation in generated plan", zap.Error(err))
		return safeNeutral(date, fmt.Sprintf("schema violation: %v", err))
	}

	return plan
}

// rawPlan mirrors TradingPlan's wire shape but with plain strings for
// numeric fields, since models frequently emit numbers as strings and
// RobustJSONDecoder's job is to tolerate that without losing precision.
type rawPlan struct {
	Bias                string   `json:"bias"`
	EntryZone           []string `json:"entry_zone"`
	StopLoss            *string  `json:"stop_loss"`
	TakeProfit1         *string  `json:"take_profit_1"`
	TakeProfit2         *string  `json:"take_profit_2"`
	PositionSizePct     *string  `json:"position_size_pct"`
	RiskReward          *string  `json:"risk_reward"`
	Rationale           string   `json:"rationale"`
	PlaybookEntriesUsed []string `json:"playbook_entries_used"`
	Confidence          string   `json:"confidence"`
}

func (r rawPlan) toTradingPlan(date string) (types.TradingPlan, error) {
	bias := types.Bias(r.Bias)
	if bias != types.BiasBullish && bias != types.BiasBearish && bias != types.BiasNeutral {
		return types.TradingPlan{}, fmt.Errorf("invalid bias %q", r.Bias)
	}

	confidence := types.Confidence(r.Confidence)
	if confidence != types.ConfidenceHigh && confidence != types.ConfidenceMedium && confidence != types.ConfidenceLow {
		return types.TradingPlan{}, fmt.Errorf("invalid confidence %q", r.Confidence)
	}

	plan := types.TradingPlan{
		Date:                date,
		Bias:                bias,
		Rationale:           r.Rationale,
		PlaybookEntriesUsed: r.PlaybookEntriesUsed,
		Confidence:          confidence,
		RiskReward:          r.RiskReward,
	}

	if bias == types.BiasNeutral {
		return plan, nil
	}

	if len(r.EntryZone) != 2 || r.StopLoss == nil || r.TakeProfit1 == nil {
		return types.TradingPlan{}, fmt.Errorf("non-neutral plan missing entry_zone/stop_loss/take_profit_1")
	}

	eLow, err := decimal.NewFromString(r.EntryZone[0])
	if err != nil {
		return types.TradingPlan{}, fmt.Errorf("invalid entry_zone[0]: %w", err)
	}
	eHigh, err := decimal.NewFromString(r.EntryZone[1])
	if err != nil {
		return types.TradingPlan{}, fmt.Errorf("invalid entry_zone[1]: %w", err)
	}
	sl, err := decimal.NewFromString(*r.StopLoss)
	if err != nil {
		return types.TradingPlan{}, fmt.Errorf("invalid stop_loss: %w", err)
	}
	tp, err := decimal.NewFromString(*r.TakeProfit1)
	if err != nil {
		return types.TradingPlan{}, fmt.Errorf("invalid take_profit_1: %w", err)
	}

	if eLow.GreaterThanOrEqual(eHigh) {
		return types.TradingPlan{}, fmt.Errorf("entry_zone bounds out of order")
	}

	switch bias {
	case types.BiasBullish:
		if !(sl.LessThan(eLow) && eHigh.LessThan(tp)) {
			return types.TradingPlan{}, fmt.Errorf("bullish plan must satisfy sl < entry_low < entry_high < tp")
		}
	case types.BiasBearish:
		if !(tp.LessThan(eLow) && eHigh.LessThan(sl)) {
			return types.TradingPlan{}, fmt.Errorf("bearish plan must satisfy tp < entry_low < entry_high < sl")
		}
	}

	plan.EntryZone = []decimal.Decimal{eLow, eHigh}
	plan.StopLoss = &sl
	plan.TakeProfit1 = &tp

	if r.TakeProfit2 != nil {
		tp2, err := decimal.NewFromString(*r.TakeProfit2)
		if err == nil {
			plan.TakeProfit2 = &tp2
		}
	}
	if r.PositionSizePct != nil {
		pct, err := decimal.NewFromString(*r.PositionSizePct)
		if err == nil {
			plan.PositionSizePct = &pct
		}
	}

	return plan, nil
}

// safeNeutral builds the degraded plan every failure class collapses to,
// per spec.md §4.5.
func safeNeutral(date, reason string) types.TradingPlan {
	return types.TradingPlan{
		Date:       date,
		Bias:       types.BiasNeutral,
		Rationale:  "generator degraded to neutral: " + reason,
		Confidence: types.ConfidenceLow,
		Error:      reason,
	}
}

func systemPrompt() string {
	return "You are the Generator role in an Agentic Context Engineering trading loop. " +
		"Given a Playbook of prior strategies/templates/pitfalls and a structured market " +
		"snapshot, respond with a single JSON object matching the TradingPlan schema: " +
		`{"bias":"bullish|bearish|neutral","entry_zone":["low","high"],"stop_loss":"...",` +
		`"take_profit_1":"...","take_profit_2":"...","position_size_pct":"...",` +
		`"risk_reward":"...","rationale":"...","playbook_entries_used":["id1","id2"],` +
		`"confidence":"high|medium|low"}. ` +
		"You must cite the IDs of any Playbook entries you actually used in playbook_entries_used. " +
		"If bias is neutral, leave the numeric fields null or empty. Output JSON only."
}

// buildUserPrompt serializes the Playbook (entry IDs visible) and the
// MarketSnapshot as structured data, per spec.md §4.5's prompting protocol.
func (g *Generator) buildUserPrompt(pb types.Playbook, snapshot types.MarketSnapshot) (string, error) {
	type entryView struct {
		ID      string `json:"id"`
		Content string `json:"content"`
	}

	sections := map[string][]entryView{}
	for _, section := range playbook.SortedSectionNames(pb) {
		for _, e := range pb.Sections[section] {
			sections[section] = append(sections[section], entryView{ID: e.ID, Content: e.Content})
		}
	}

	payload := struct {
		Playbook map[string][]entryView `json:"playbook"`
		Snapshot types.MarketSnapshot   `json:"market_snapshot"`
	}{
		Playbook: sections,
		Snapshot: snapshot,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt payload: %w", err)
	}

	return string(body), nil
}
