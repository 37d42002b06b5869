package cycle

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/curator"
	"github.com/atlas-desktop/ace-playbook/internal/jsonutil"
	"github.com/atlas-desktop/ace-playbook/internal/reflector"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

func newTestWeeklyCycle(t *testing.T, daily *DailyCycle, reflectorJSON string) *WeeklyCycle {
	t.Helper()
	cfg := daily.cfg
	logger := zap.NewNop()
	decoder := jsonutil.New(logger, cfg.Paths.DiagnosticDir)
	refl := reflector.New(logger, stubLLM{text: reflectorJSON}, decoder, cfg)
	cur := curator.New(logger, cfg)
	notifier := &recordingNotifier{}

	return NewWeeklyCycle(logger, cfg, daily.bundles, daily.playbooks, daily, refl, cur, nil, notifier)
}

func TestWeeklyCycle_CatchesUpUnrunDailyCycleBeforeReflecting(t *testing.T) {
	daily, _ := newTestDailyCycle(t)
	weekly := newTestWeeklyCycle(t, daily, `{"insights":[],"market_regime_notes":"quiet"}`)

	now := time.Date(2025, 10, 29, 18, 0, 0, 0, time.UTC)
	if daily.HasRun(now.Format("2006-01-02")) {
		t.Fatalf("test setup invariant broken: daily cycle should not have run yet")
	}

	if err := weekly.Run(context.Background(), now); err != nil {
		t.Fatalf("weekly cycle run failed: %v", err)
	}
	if !daily.HasRun(now.Format("2006-01-02")) {
		t.Fatalf("expected weekly cycle to trigger the missing daily cycle")
	}
}

func TestWeeklyCycle_PersistsReportAndCuratesPlaybook(t *testing.T) {
	daily, _ := newTestDailyCycle(t)
	now := time.Date(2025, 10, 29, 18, 0, 0, 0, time.UTC)
	if err := daily.Run(context.Background(), now); err != nil {
		t.Fatalf("daily cycle run failed: %v", err)
	}

	pbBefore, err := daily.playbooks.Load()
	if err != nil {
		t.Fatalf("failed to load playbook: %v", err)
	}
	entryID := pbBefore.Sections[types.SectionStrategiesAndHardRules][0].ID

	reflectorJSON := `{"insights":[{"kind":"success_pattern","description":"x","evidence_plan_ids":[],` +
		`"suggested_action":"increment_helpful","target_entry_id":"` + entryID + `","priority":"high"}],` +
		`"market_regime_notes":"trending"}`
	weekly := newTestWeeklyCycle(t, daily, reflectorJSON)

	if err := weekly.Run(context.Background(), now); err != nil {
		t.Fatalf("weekly cycle run failed: %v", err)
	}
	if _, err := os.Stat(weekly.reportPath(now)); err != nil {
		t.Fatalf("expected reflection report persisted: %v", err)
	}

	pbAfter, err := daily.playbooks.Load()
	if err != nil {
		t.Fatalf("failed to reload playbook: %v", err)
	}
	_, idx, ok := pbAfter.FindEntry(entryID)
	if !ok {
		t.Fatalf("expected entry to still exist after curation")
	}
	if pbAfter.Sections[types.SectionStrategiesAndHardRules][idx].HelpfulCount != pbBefore.Sections[types.SectionStrategiesAndHardRules][0].HelpfulCount+1 {
		t.Fatalf("expected helpful count incremented by curation")
	}
}
