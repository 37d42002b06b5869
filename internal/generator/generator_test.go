package generator

import (
	"context"
	"testing"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/jsonutil"
	"github.com/atlas-desktop/ace-playbook/internal/llm"
	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

type stubClient struct {
	text    string
	blocked bool
	err     error
}

func (s stubClient) Generate(ctx context.Context, systemPrompt, userPrompt string, cfg types.LLMConfig) (llm.Response, error) {
	if s.err != nil {
		return llm.Response{}, s.err
	}
	if s.blocked {
		return llm.NewBlockedResponse(types.SafetyHarassment), nil
	}
	return llm.NewTextResponse(s.text, llm.FinishStop), nil
}

func snapshot() types.MarketSnapshot {
	return types.MarketSnapshot{CurrentTimeUTC: time.Date(2025, 10, 29, 13, 0, 0, 0, time.UTC)}
}

func TestGenerate_HappyPathBullish(t *testing.T) {
	pb := playbook.Seed()
	client := stubClient{text: `{"bias":"bullish","entry_zone":["1.0840","1.0850"],"stop_loss":"1.0820",` +
		`"take_profit_1":"1.0900","confidence":"high","rationale":"trend continuation",` +
		`"playbook_entries_used":[]}`}
	decoder := jsonutil.New(zap.NewNop(), t.TempDir())
	g := New(zap.NewNop(), client, decoder, types.DefaultConfig())

	plan := g.Generate(context.Background(), pb, snapshot())

	if plan.Bias != types.BiasBullish {
		t.Fatalf("expected bullish plan, got %s (error=%s)", plan.Bias, plan.Error)
	}
	if plan.Date != "2025-10-29" {
		t.Fatalf("expected date from snapshot, got %s", plan.Date)
	}
	if plan.Error != "" {
		t.Fatalf("expected no error, got %s", plan.Error)
	}
}

func TestGenerate_SchemaViolationFallsBackToNeutral(t *testing.T) {
	pb := playbook.Seed()
	client := stubClient{text: `{"bias":"bullish","entry_zone":["1.0840","1.0850"],"stop_loss":"1.0845",` +
		`"take_profit_1":"1.0900","confidence":"high","rationale":"broken ordering"}`}
	decoder := jsonutil.New(zap.NewNop(), t.TempDir())
	g := New(zap.NewNop(), client, decoder, types.DefaultConfig())

	plan := g.Generate(context.Background(), pb, snapshot())

	if plan.Bias != types.BiasNeutral {
		t.Fatalf("expected neutral fallback on schema violation, got %s", plan.Bias)
	}
	if plan.Error == "" {
		t.Fatalf("expected error to be recorded on fallback")
	}
}

func TestGenerate_MalformedJSONFallsBackToNeutral(t *testing.T) {
	pb := playbook.Seed()
	client := stubClient{text: "not json at all"}
	decoder := jsonutil.New(zap.NewNop(), t.TempDir())
	g := New(zap.NewNop(), client, decoder, types.DefaultConfig())

	plan := g.Generate(context.Background(), pb, snapshot())

	if plan.Bias != types.BiasNeutral {
		t.Fatalf("expected neutral fallback on malformed json, got %s", plan.Bias)
	}
}

func TestGenerate_BlockedResponseFallsBackToNeutral(t *testing.T) {
	pb := playbook.Seed()
	client := stubClient{blocked: true}
	decoder := jsonutil.New(zap.NewNop(), t.TempDir())
	g := New(zap.NewNop(), client, decoder, types.DefaultConfig())

	plan := g.Generate(context.Background(), pb, snapshot())

	if plan.Bias != types.BiasNeutral {
		t.Fatalf("expected neutral fallback on blocked response, got %s", plan.Bias)
	}
}

func TestGenerate_TransportErrorFallsBackToNeutral(t *testing.T) {
	pb := playbook.Seed()
	client := stubClient{err: llm.ErrTransport}
	decoder := jsonutil.New(zap.NewNop(), t.TempDir())
	g := New(zap.NewNop(), client, decoder, types.DefaultConfig())

	plan := g.Generate(context.Background(), pb, snapshot())

	if plan.Bias != types.BiasNeutral {
		t.Fatalf("expected neutral fallback on transport error, got %s", plan.Bias)
	}
}

func TestGenerate_NeutralBiasSkipsNumericValidation(t *testing.T) {
	pb := playbook.Seed()
	client := stubClient{text: `{"bias":"neutral","confidence":"low","rationale":"no clear setup"}`}
	decoder := jsonutil.New(zap.NewNop(), t.TempDir())
	g := New(zap.NewNop(), client, decoder, types.DefaultConfig())

	plan := g.Generate(context.Background(), pb, snapshot())

	if plan.Bias != types.BiasNeutral {
		t.Fatalf("expected neutral plan, got %s", plan.Bias)
	}
	if plan.Error != "" {
		t.Fatalf("valid neutral plan should not carry an error, got %s", plan.Error)
	}
}
