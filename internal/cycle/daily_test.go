package cycle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/bundlestore"
	"github.com/atlas-desktop/ace-playbook/internal/executor"
	"github.com/atlas-desktop/ace-playbook/internal/generator"
	"github.com/atlas-desktop/ace-playbook/internal/jsonutil"
	"github.com/atlas-desktop/ace-playbook/internal/llm"
	"github.com/atlas-desktop/ace-playbook/internal/notify"
	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/internal/replay"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type stubBundles struct {
	latest     *bundlestore.Handle
	uploads    int
	downloaded bool
}

func (s *stubBundles) Latest(ctx context.Context) (*bundlestore.Handle, error) { return s.latest, nil }
func (s *stubBundles) Download(ctx context.Context, handle bundlestore.Handle, destDir string) error {
	s.downloaded = true
	return nil
}
func (s *stubBundles) Upload(ctx context.Context, sourceDir string, runNumber int, cycle string) (bundlestore.Handle, error) {
	s.uploads++
	return bundlestore.Handle{Key: "stub"}, nil
}
func (s *stubBundles) Prune(ctx context.Context, retentionDays int) (int, error) { return 0, nil }

type stubMarket struct {
	snapshotErr error
	ohlcErr     error
}

func (s stubMarket) FetchSnapshot(ctx context.Context, now time.Time) (types.MarketSnapshot, error) {
	if s.snapshotErr != nil {
		return types.MarketSnapshot{}, s.snapshotErr
	}
	return types.MarketSnapshot{Pair: "EURUSD", CurrentPrice: decimal.NewFromFloat(1.1000), CurrentTimeUTC: now}, nil
}

func (s stubMarket) FetchSessionOHLC(ctx context.Context, date string, windowHours int, interval string) ([]types.Candle, error) {
	if s.ohlcErr != nil {
		return nil, s.ohlcErr
	}
	base := decimal.NewFromFloat(1.1000)
	return []types.Candle{
		{OpenTime: time.Now(), Open: base, High: base.Add(decimal.NewFromFloat(0.0005)), Low: base.Sub(decimal.NewFromFloat(0.0005)), Close: base},
	}, nil
}

type stubLLM struct{ text string }

func (s stubLLM) Generate(ctx context.Context, systemPrompt, userPrompt string, cfg types.LLMConfig) (llm.Response, error) {
	return llm.NewTextResponse(s.text, llm.FinishStop), nil
}

type recordingNotifier struct{ events []notify.Event }

func (r *recordingNotifier) Send(ctx context.Context, event notify.Event) error {
	r.events = append(r.events, event)
	return nil
}

func newTestDailyCycle(t *testing.T) (*DailyCycle, string) {
	t.Helper()
	dataRoot := t.TempDir()
	cfg := types.DefaultConfig()
	cfg.Paths = types.DefaultPaths(dataRoot)
	cfg.Pair = "EURUSD"

	logger := zap.NewNop()
	decoder := jsonutil.New(logger, cfg.Paths.DiagnosticDir)
	neutralJSON := `{"bias":"neutral","entry_zone":[],"rationale":"no edge today","playbook_entries_used":[],"confidence":"low"}`
	gen := generator.New(logger, stubLLM{text: neutralJSON}, decoder, cfg)
	sim := replay.New(logger, cfg)
	exec := executor.New(logger, sim)
	pbStore := playbook.New(logger, cfg.Paths.DataDir)
	bundles := &stubBundles{}
	notifier := &recordingNotifier{}

	daily := NewDailyCycle(logger, cfg, bundles, pbStore, stubMarket{}, gen, exec, nil, notifier)
	return daily, dataRoot
}

func TestDailyCycle_RunPersistsArtifactsAndPublishesBundle(t *testing.T) {
	daily, _ := newTestDailyCycle(t)
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	if err := daily.Run(context.Background(), now); err != nil {
		t.Fatalf("daily cycle run failed: %v", err)
	}

	date := now.Format("2006-01-02")
	if !daily.HasRun(date) {
		t.Fatalf("expected HasRun true after a completed run")
	}
	if _, err := os.Stat(daily.planPath(date)); err != nil {
		t.Fatalf("expected plan persisted: %v", err)
	}
	if _, err := os.Stat(daily.logPath(date)); err != nil {
		t.Fatalf("expected log persisted: %v", err)
	}
	if uploads := daily.bundles.(*stubBundles).uploads; uploads != 1 {
		t.Fatalf("expected one bundle publish, got %d", uploads)
	}
}

func TestDailyCycle_RunDegradesOnMarketFetchFailureInsteadOfAborting(t *testing.T) {
	daily, _ := newTestDailyCycle(t)
	daily.market = stubMarket{snapshotErr: context.DeadlineExceeded, ohlcErr: context.DeadlineExceeded}
	now := time.Date(2025, 10, 29, 14, 0, 0, 0, time.UTC)

	if err := daily.Run(context.Background(), now); err != nil {
		t.Fatalf("expected degraded run to still succeed, got %v", err)
	}
	if !daily.HasRun(now.Format("2006-01-02")) {
		t.Fatalf("expected a degraded run to still persist artifacts")
	}
}
