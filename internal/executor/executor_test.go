package executor

import (
	"testing"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/internal/replay"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func dp(s string) *decimal.Decimal {
	v := d(s)
	return &v
}

func candleAt(minute int, low, high string) types.Candle {
	base := time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)
	return types.Candle{OpenTime: base.Add(time.Duration(minute) * time.Minute), Open: d(low), High: d(high), Low: d(low), Close: d(high)}
}

func TestExecute_WinGradesEntriesHelpful(t *testing.T) {
	pb := playbook.Seed()
	var citedID string
	for _, entries := range pb.Sections {
		if len(entries) > 0 {
			citedID = entries[0].ID
			break
		}
	}

	plan := types.TradingPlan{
		Date:                "2025-10-29",
		Bias:                types.BiasBullish,
		EntryZone:           []decimal.Decimal{d("1.0840"), d("1.0850")},
		StopLoss:            dp("1.0820"),
		TakeProfit1:         dp("1.0900"),
		Confidence:          types.ConfidenceHigh,
		PlaybookEntriesUsed: []string{citedID, "nonexistent-id"},
	}

	candles := []types.Candle{
		candleAt(0, "1.0842", "1.0855"),
		candleAt(5, "1.0896", "1.0905"),
	}

	sim := replay.New(zap.NewNop(), types.DefaultConfig())
	ex := New(zap.NewNop(), sim)

	log, delta := ex.Execute(plan, candles, "EURUSD", "", pb)

	if log.PlanID != plan.Date {
		t.Fatalf("expected plan_id to equal plan.Date, got %s", log.PlanID)
	}
	if log.Execution.Outcome != types.OutcomeWin {
		t.Fatalf("expected win outcome, got %s", log.Execution.Outcome)
	}
	if log.Feedback.ExitTiming != "target_hit" {
		t.Fatalf("expected target_hit, got %s", log.Feedback.ExitTiming)
	}
	if log.Feedback.PlaybookEntriesFeedback[citedID] != types.FeedbackHelpful {
		t.Fatalf("expected cited entry graded helpful")
	}
	if _, ok := delta.LastUsed[citedID]; !ok {
		t.Fatalf("expected delta to touch cited entry")
	}
	if _, ok := delta.LastUsed["nonexistent-id"]; ok {
		t.Fatalf("expected unknown entry id to be dropped from delta")
	}
}

func TestExecute_LossGradesEntriesHarmful(t *testing.T) {
	pb := playbook.Seed()
	var citedID string
	for _, entries := range pb.Sections {
		if len(entries) > 0 {
			citedID = entries[0].ID
			break
		}
	}

	plan := types.TradingPlan{
		Date:                "2025-10-29",
		Bias:                types.BiasBullish,
		EntryZone:           []decimal.Decimal{d("1.0840"), d("1.0850")},
		StopLoss:            dp("1.0820"),
		TakeProfit1:         dp("1.0900"),
		Confidence:          types.ConfidenceHigh,
		PlaybookEntriesUsed: []string{citedID},
	}

	candles := []types.Candle{
		candleAt(0, "1.0842", "1.0855"),
		candleAt(5, "1.0815", "1.0830"),
	}

	sim := replay.New(zap.NewNop(), types.DefaultConfig())
	ex := New(zap.NewNop(), sim)

	log, _ := ex.Execute(plan, candles, "EURUSD", "", pb)

	if log.Execution.Outcome != types.OutcomeLoss {
		t.Fatalf("expected loss outcome, got %s", log.Execution.Outcome)
	}
	if log.Feedback.ExitTiming != "stopped_out" {
		t.Fatalf("expected stopped_out, got %s", log.Feedback.ExitTiming)
	}
	if log.Feedback.PlaybookEntriesFeedback[citedID] != types.FeedbackHarmful {
		t.Fatalf("expected cited entry graded harmful")
	}
}

func TestExecute_NoEntryReportsNoEntryQuality(t *testing.T) {
	pb := playbook.Seed()
	plan := types.TradingPlan{
		Date:        "2025-10-29",
		Bias:        types.BiasBullish,
		EntryZone:   []decimal.Decimal{d("1.0840"), d("1.0850")},
		StopLoss:    dp("1.0820"),
		TakeProfit1: dp("1.0900"),
		Confidence:  types.ConfidenceHigh,
	}

	candles := []types.Candle{candleAt(0, "1.0800", "1.0835")}

	sim := replay.New(zap.NewNop(), types.DefaultConfig())
	ex := New(zap.NewNop(), sim)

	log, delta := ex.Execute(plan, candles, "EURUSD", "", pb)

	if log.Execution.Outcome != types.OutcomeNoEntry {
		t.Fatalf("expected no_entry, got %s", log.Execution.Outcome)
	}
	if log.Feedback.EntryQuality != "no_entry" {
		t.Fatalf("expected entry_quality no_entry, got %s", log.Feedback.EntryQuality)
	}
	if len(delta.LastUsed) != 0 {
		t.Fatalf("expected empty delta when plan cites no entries")
	}
}
