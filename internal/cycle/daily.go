// Package cycle implements the DailyCycle and WeeklyCycle orchestrators:
// the strictly sequential pipelines spec.md §4.9 and §5 describe, wiring
// bundlestore, playbook, market, generator, executor, reflector, and
// curator into one run. Grounded on the teacher's
// internal/orchestrator/orchestrator.go for its coordinate-every-subsystem
// shape and internal/autonomous/enhanced_agent.go for its
// stage-by-stage structured-logging idiom, narrowed from an event-driven
// loop to spec.md's fixed, non-event-driven sequence.
package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/bundlestore"
	"github.com/atlas-desktop/ace-playbook/internal/executor"
	"github.com/atlas-desktop/ace-playbook/internal/generator"
	"github.com/atlas-desktop/ace-playbook/internal/market"
	"github.com/atlas-desktop/ace-playbook/internal/metrics"
	"github.com/atlas-desktop/ace-playbook/internal/notify"
	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

// DailyCycle runs one Generator → Executor pass and persists its artifacts.
type DailyCycle struct {
	logger     *zap.Logger
	cfg        types.Config
	bundles    bundlestore.Store
	playbooks  *playbook.Store
	market     market.Provider
	generator  *generator.Generator
	executor   *executor.Executor
	metricsReg *metrics.Registry
	notifier   notify.Notifier

	runCounter int
}

// NewDailyCycle wires a DailyCycle from its collaborators.
func NewDailyCycle(
	logger *zap.Logger,
	cfg types.Config,
	bundles bundlestore.Store,
	playbooks *playbook.Store,
	mkt market.Provider,
	gen *generator.Generator,
	exec *executor.Executor,
	metricsReg *metrics.Registry,
	notifier notify.Notifier,
) *DailyCycle {
	return &DailyCycle{
		logger: logger.Named("daily-cycle"), cfg: cfg, bundles: bundles, playbooks: playbooks,
		market: mkt, generator: gen, executor: exec, metricsReg: metricsReg, notifier: notifier,
	}
}

// sessionDir returns the directory a given date's plan/log artifacts live
// in. The on-disk directory name uses underscores (YYYY_MM_DD) per
// spec.md §6's layout, while date itself stays ISO-8601 (YYYY-MM-DD)
// everywhere else — market lookups, plan.Date, HasRun.
func (c *DailyCycle) sessionDir(date string) string {
	return filepath.Join(c.cfg.Paths.SessionDir, strings.ReplaceAll(date, "-", "_"))
}

func (c *DailyCycle) planPath(date string) string {
	return filepath.Join(c.sessionDir(date), "trading_plan.json")
}
func (c *DailyCycle) logPath(date string) string {
	return filepath.Join(c.sessionDir(date), "trade_log.json")
}

// HasRun reports whether date's session artifacts already exist — the
// WeeklyCycle uses this to decide whether to trigger a catch-up DailyCycle
// run before reflecting.
func (c *DailyCycle) HasRun(date string) bool {
	_, err := os.Stat(c.planPath(date))
	return err == nil
}

// Run implements spec.md §4.9's DailyCycle pipeline:
// restore state, load Playbook, fetch the market snapshot, generate a
// plan, notify, fetch the session's OHLC, execute/replay, apply the
// resulting delta, save the Playbook, persist the plan/log, and publish
// state. Every stage but state persistence degrades rather than aborts:
// a restore failure proceeds on local state, a notify failure is logged
// and ignored, a market-fetch failure routes into the replay simulator's
// own fallback path. Playbook save, plan/log persistence and bundle publish
// failures are fatal and returned to the caller.
func (c *DailyCycle) Run(ctx context.Context, now time.Time) error {
	start := time.Now()
	date := now.Format("2006-01-02")
	log := c.logger.With(zap.String("date", date))

	if latest, err := c.bundles.Latest(ctx); err != nil {
		log.Warn("bundle restore lookup failed, continuing on local state", zap.Error(err))
	} else if latest != nil {
		if err := c.bundles.Download(ctx, *latest, c.cfg.Paths.StateRoot); err != nil {
			log.Warn("bundle restore failed, continuing on local state", zap.Error(err))
		}
	}

	pb, err := c.playbooks.Load()
	if err != nil {
		log.Warn("playbook load reported an issue, continuing with recovered state", zap.Error(err))
	}
	if c.metricsReg != nil {
		c.metricsReg.ObservePlaybook(pb)
	}

	snapshot, err := c.market.FetchSnapshot(ctx, now)
	if err != nil {
		log.Warn("market snapshot fetch failed, generator will see a degraded snapshot", zap.Error(err))
		snapshot = types.MarketSnapshot{Pair: c.cfg.Pair, CurrentTimeUTC: now}
	}

	plan := c.generator.Generate(ctx, pb, snapshot)
	if c.metricsReg != nil {
		c.metricsReg.GeneratorPlansTotal.WithLabelValues(string(plan.Bias), errLabel(plan.Error)).Inc()
	}

	if err := c.notifier.Send(ctx, notify.Event{
		Kind: "plan_generated", Message: "daily trading plan generated",
		Fields: map[string]string{"date": date, "bias": string(plan.Bias), "confidence": string(plan.Confidence)},
	}); err != nil {
		log.Warn("notifier send failed", zap.Error(err))
	}

	unavailableReason := ""
	ohlc, err := c.market.FetchSessionOHLC(ctx, date, c.cfg.SessionWindowHours, c.cfg.CandleInterval)
	if err != nil {
		unavailableReason = err.Error()
		log.Warn("session OHLC fetch failed, replay will use its hash-based fallback", zap.Error(err))
	}

	tradeLog, delta := c.executor.Execute(plan, ohlc, c.cfg.Pair, unavailableReason, pb)
	if c.metricsReg != nil {
		c.metricsReg.ExecutorOutcomesTotal.WithLabelValues(string(tradeLog.Execution.Outcome), string(tradeLog.Execution.Method)).Inc()
	}

	applyDelta(&pb, delta)
	pb.Metadata.TotalEntries = pb.TotalEntries()

	if err := c.playbooks.Save(pb); err != nil {
		return fmt.Errorf("daily cycle: failed to save playbook: %w", err)
	}
	if c.metricsReg != nil {
		c.metricsReg.ObservePlaybook(pb)
	}

	if err := writeJSONFile(c.planPath(date), plan); err != nil {
		return fmt.Errorf("daily cycle: failed to persist plan: %w", err)
	}
	if err := writeJSONFile(c.logPath(date), tradeLog); err != nil {
		return fmt.Errorf("daily cycle: failed to persist trade log: %w", err)
	}

	c.runCounter++
	if _, err := c.bundles.Upload(ctx, c.cfg.Paths.StateRoot, c.runCounter, "daily"); err != nil {
		return fmt.Errorf("daily cycle: failed to publish state bundle: %w", err)
	}

	if c.metricsReg != nil {
		c.metricsReg.CycleDurationSeconds.WithLabelValues("daily").Observe(time.Since(start).Seconds())
	}
	log.Info("daily cycle completed", zap.String("outcome", string(tradeLog.Execution.Outcome)))
	return nil
}

// applyDelta stamps last_used timestamps from a PlaybookDelta onto the
// matching entries, skipping ids the Playbook no longer has (already
// filtered by the Executor, but defended here too since delta can in
// principle be reused by a caller).
func applyDelta(pb *types.Playbook, delta types.PlaybookDelta) {
	for id, ts := range delta.LastUsed {
		section, idx, ok := pb.FindEntry(id)
		if !ok {
			continue
		}
		t := ts
		pb.Sections[section][idx].LastUsed = &t
	}
}

func errLabel(errMsg string) string {
	if errMsg == "" {
		return "false"
	}
	return "true"
}

func writeJSONFile(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
