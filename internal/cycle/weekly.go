package cycle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/bundlestore"
	"github.com/atlas-desktop/ace-playbook/internal/curator"
	"github.com/atlas-desktop/ace-playbook/internal/metrics"
	"github.com/atlas-desktop/ace-playbook/internal/notify"
	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/internal/reflector"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

// WeeklyCycle runs the Reflector → Curator pass over the trailing week's
// trade logs.
type WeeklyCycle struct {
	logger     *zap.Logger
	cfg        types.Config
	bundles    bundlestore.Store
	playbooks  *playbook.Store
	daily      *DailyCycle
	reflector  *reflector.Reflector
	curator    *curator.Curator
	metricsReg *metrics.Registry
	notifier   notify.Notifier

	runCounter int
}

// NewWeeklyCycle wires a WeeklyCycle. daily is the DailyCycle used for the
// unrun-catch-up step spec.md §4.9 describes.
func NewWeeklyCycle(
	logger *zap.Logger,
	cfg types.Config,
	bundles bundlestore.Store,
	playbooks *playbook.Store,
	daily *DailyCycle,
	refl *reflector.Reflector,
	cur *curator.Curator,
	metricsReg *metrics.Registry,
	notifier notify.Notifier,
) *WeeklyCycle {
	return &WeeklyCycle{
		logger: logger.Named("weekly-cycle"), cfg: cfg, bundles: bundles, playbooks: playbooks,
		daily: daily, reflector: refl, curator: cur, metricsReg: metricsReg, notifier: notifier,
	}
}

// reportPath returns where a week's ReflectionReport is persisted, named
// by the ISO-8601 week of the window's end date per spec.md §6's
// weekly_reflections/{YYYY}_W{WW}_reflection.json layout.
func (c *WeeklyCycle) reportPath(weekEnd time.Time) string {
	year, week := weekEnd.ISOWeek()
	return fmt.Sprintf("%s/%04d_W%02d_reflection.json", c.cfg.Paths.ReflectionDir, year, week)
}

// Run implements spec.md §4.9's WeeklyCycle pipeline: catch up an unrun
// daily cycle, load the trailing week's trade logs, reflect, persist the
// report, apply the Curator's update algebra, save the Playbook, notify,
// and publish state. Playbook save and bundle publish failures are fatal;
// everything else degrades with a logged warning.
func (c *WeeklyCycle) Run(ctx context.Context, now time.Time) error {
	start := time.Now()
	today := now.Format("2006-01-02")
	log := c.logger.With(zap.String("week_ending", today))

	if !c.daily.HasRun(today) {
		log.Info("today's daily cycle has not run, catching up before reflecting")
		if err := c.daily.Run(ctx, now); err != nil {
			log.Warn("catch-up daily cycle failed, reflecting on logs collected so far", zap.Error(err))
		}
	}

	window := weekWindow(now)
	logs := c.collectWindowLogs(window)

	report := c.reflector.Reflect(ctx, window, logs)
	if c.metricsReg != nil {
		for _, insight := range report.Insights {
			c.metricsReg.ReflectorInsightsTotal.WithLabelValues(string(insight.Kind)).Inc()
		}
	}

	if err := writeJSONFile(c.reportPath(now), report); err != nil {
		log.Error("failed to persist reflection report", zap.Error(err))
	}

	pb, err := c.playbooks.Load()
	if err != nil {
		log.Warn("playbook load reported an issue before curation, continuing with recovered state", zap.Error(err))
	}

	newPB, outcomes := c.curator.Apply(pb, report)
	if c.metricsReg != nil {
		for _, o := range outcomes {
			c.metricsReg.CuratorApplyTotal.WithLabelValues(applyResultLabel(o.Applied)).Inc()
		}
		c.metricsReg.ObservePlaybook(newPB)
	}

	if err := c.playbooks.Save(newPB); err != nil {
		return fmt.Errorf("weekly cycle: failed to save curated playbook: %w", err)
	}

	if err := c.notifier.Send(ctx, notify.Event{
		Kind: "reflection_completed", Message: "weekly reflection and curation completed",
		Fields: map[string]string{
			"window_start": window.Start, "window_end": window.End,
			"insights_applied": fmt.Sprintf("%d", countApplied(outcomes)),
		},
	}); err != nil {
		log.Warn("notifier send failed", zap.Error(err))
	}

	c.runCounter++
	if _, err := c.bundles.Upload(ctx, c.cfg.Paths.StateRoot, c.runCounter, "weekly"); err != nil {
		return fmt.Errorf("weekly cycle: failed to publish state bundle: %w", err)
	}

	if c.metricsReg != nil {
		c.metricsReg.CycleDurationSeconds.WithLabelValues("weekly").Observe(time.Since(start).Seconds())
	}
	log.Info("weekly cycle completed", zap.Int("trades_reflected", len(logs)))
	return nil
}

// weekWindow returns the trailing 7-day calendar window ending at now.
func weekWindow(now time.Time) types.ReflectionWindow {
	end := now
	start := end.AddDate(0, 0, -6)
	return types.ReflectionWindow{Start: start.Format("2006-01-02"), End: end.Format("2006-01-02")}
}

// collectWindowLogs reads every day in window that has a persisted
// plan+log pair, pairing them via reflector.NewWindowedLog. Days with no
// session artifacts (market closed, process never ran) are skipped rather
// than treated as errors.
func (c *WeeklyCycle) collectWindowLogs(window types.ReflectionWindow) []reflector.WindowedLog {
	startDate, err := time.Parse("2006-01-02", window.Start)
	if err != nil {
		c.logger.Error("invalid window start, returning empty log set", zap.Error(err))
		return nil
	}
	endDate, err := time.Parse("2006-01-02", window.End)
	if err != nil {
		c.logger.Error("invalid window end, returning empty log set", zap.Error(err))
		return nil
	}

	var logs []reflector.WindowedLog
	for d := startDate; !d.After(endDate); d = d.AddDate(0, 0, 1) {
		date := d.Format("2006-01-02")
		if !c.daily.HasRun(date) {
			continue
		}

		var plan types.TradingPlan
		if err := readJSONFile(c.daily.planPath(date), &plan); err != nil {
			c.logger.Warn("failed to read persisted plan, skipping day", zap.String("date", date), zap.Error(err))
			continue
		}
		var tradeLog types.TradeLog
		if err := readJSONFile(c.daily.logPath(date), &tradeLog); err != nil {
			c.logger.Warn("failed to read persisted trade log, skipping day", zap.String("date", date), zap.Error(err))
			continue
		}

		logs = append(logs, reflector.NewWindowedLog(tradeLog.PlanID, plan, tradeLog))
	}
	return logs
}

func applyResultLabel(applied bool) string {
	if applied {
		return "applied"
	}
	return "rejected"
}

func countApplied(outcomes []types.CuratorOutcome) int {
	n := 0
	for _, o := range outcomes {
		if o.Applied {
			n++
		}
	}
	return n
}

func readJSONFile(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}
