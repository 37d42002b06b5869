package cycle

import (
	"context"
	"time"
)

// Runner adapts a DailyCycle/WeeklyCycle pair to opsapi.CycleRunner's
// two-method contract without opsapi importing cycle's larger surface.
type Runner struct {
	Daily  *DailyCycle
	Weekly *WeeklyCycle
}

// NewRunner builds a Runner over an already-wired Daily/Weekly pair.
func NewRunner(daily *DailyCycle, weekly *WeeklyCycle) *Runner {
	return &Runner{Daily: daily, Weekly: weekly}
}

// RunDaily implements opsapi.CycleRunner.
func (r *Runner) RunDaily(ctx context.Context, now time.Time) error {
	return r.Daily.Run(ctx, now)
}

// RunWeekly implements opsapi.CycleRunner.
func (r *Runner) RunWeekly(ctx context.Context, now time.Time) error {
	return r.Weekly.Run(ctx, now)
}
