// Package curator implements the Curator role: a deterministic, LLM-free
// update algebra that applies a ReflectionReport's insights to a Playbook,
// grounded on the teacher's optimization.Optimizer in spirit (a config-driven
// deterministic pass over evidence) but replacing numeric parameter search
// with the fixed add/increment/prune algebra spec.md §4.8 describes.
package curator

import (
	"fmt"
	"sort"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

// Curator applies ReflectionReports to a Playbook.
type Curator struct {
	logger *zap.Logger
	cfg    types.Config
}

// New builds a Curator bound to cfg's prune guard thresholds.
func New(logger *zap.Logger, cfg types.Config) *Curator {
	return &Curator{logger: logger.Named("curator"), cfg: cfg}
}

// Apply implements spec.md §4.8: process insights in priority order
// (high → low), apply the update algebra, bump metadata, validate, and
// return the new Playbook plus a per-insight outcome log.
func (c *Curator) Apply(pb types.Playbook, report types.ReflectionReport) (types.Playbook, []types.CuratorOutcome) {
	insights := make([]types.Insight, len(report.Insights))
	copy(insights, report.Insights)
	sort.SliceStable(insights, func(i, j int) bool {
		return types.PriorityRank(insights[i].Priority) < types.PriorityRank(insights[j].Priority)
	})

	var outcomes []types.CuratorOutcome
	var pruned []types.PrunedEntry
	for _, insight := range insights {
		applied, reason := c.applyOne(&pb, insight, &pruned)
		outcomes = append(outcomes, types.CuratorOutcome{Insight: insight, Applied: applied, Reason: reason})
	}

	if len(insights) > 0 {
		pb.Metadata.Version = bumpMinor(pb.Metadata.Version)
	}
	pb.Metadata.LastUpdated = time.Now().UTC()
	pb.Metadata.TotalEntries = pb.TotalEntries()
	pb.Metadata.PrunedEntries = pruned

	if violations := playbook.Validate(pb); len(violations) > 0 {
		c.logger.Warn("curated playbook failed validation", zap.Strings("violations", violations))
	}

	return pb, outcomes
}

func (c *Curator) applyOne(pb *types.Playbook, insight types.Insight, pruned *[]types.PrunedEntry) (bool, string) {
	switch insight.SuggestedAction {
	case types.ActionAddEntry:
		return c.addEntry(pb, insight)
	case types.ActionIncrementHelpful:
		return c.incrementCounter(pb, insight.TargetEntryID, true)
	case types.ActionIncrementHarmful:
		return c.incrementCounter(pb, insight.TargetEntryID, false)
	case types.ActionPrune:
		return c.prune(pb, insight.TargetEntryID, pruned)
	default:
		c.logger.Warn("unknown suggested action, skipping", zap.String("action", string(insight.SuggestedAction)))
		return false, fmt.Sprintf("unknown suggested_action %q", insight.SuggestedAction)
	}
}

// addEntry inserts a new Entry, rejecting silently (per spec.md §4.8) when
// proposed_content exactly matches existing content in the same section.
func (c *Curator) addEntry(pb *types.Playbook, insight types.Insight) (bool, string) {
	for _, e := range pb.Sections[insight.TargetSection] {
		if e.Content == insight.ProposedContent {
			return false, "duplicate content, rejected"
		}
	}

	id := playbook.UniqueEntryID(*pb, insight.TargetSection, insight.ProposedContent)
	now := time.Now().UTC()
	if pb.Sections == nil {
		pb.Sections = map[string][]types.Entry{}
	}
	pb.Sections[insight.TargetSection] = append(pb.Sections[insight.TargetSection], types.Entry{
		ID:        id,
		Content:   insight.ProposedContent,
		CreatedAt: now,
	})
	return true, ""
}

func (c *Curator) incrementCounter(pb *types.Playbook, entryID string, helpful bool) (bool, string) {
	section, idx, ok := pb.FindEntry(entryID)
	if !ok {
		c.logger.Warn("increment targets unknown entry id", zap.String("entry_id", entryID))
		return false, "unknown target_entry_id"
	}
	if helpful {
		pb.Sections[section][idx].HelpfulCount++
	} else {
		pb.Sections[section][idx].HarmfulCount++
	}
	return true, ""
}

// prune removes target_entry_id only when the guard holds:
// harmful_count >= helpful_count + PruneHelpfulMargin AND
// harmful_count >= PruneMinHarmful. A removed entry is appended to pruned
// so the caller can record it in the new version's snapshot metadata, per
// spec.md §4.8.
func (c *Curator) prune(pb *types.Playbook, entryID string, pruned *[]types.PrunedEntry) (bool, string) {
	section, idx, ok := pb.FindEntry(entryID)
	if !ok {
		c.logger.Warn("prune targets unknown entry id", zap.String("entry_id", entryID))
		return false, "unknown target_entry_id"
	}

	entry := pb.Sections[section][idx]
	if entry.HarmfulCount < entry.HelpfulCount+c.cfg.PruneHelpfulMargin || entry.HarmfulCount < c.cfg.PruneMinHarmful {
		return false, "prune guard not satisfied"
	}

	pb.Sections[section] = append(pb.Sections[section][:idx], pb.Sections[section][idx+1:]...)
	*pruned = append(*pruned, types.PrunedEntry{
		ID: entry.ID, Section: section, Content: entry.Content, PrunedAt: time.Now().UTC(),
	})
	return true, ""
}

// bumpMinor increments the minor ("X.Y" -> "X.(Y+1)") component of a
// version string, leaving any unparseable version unchanged except for
// appending ".1" as a best-effort bump.
func bumpMinor(version string) string {
	var major, minor int
	if _, err := fmt.Sscanf(version, "%d.%d", &major, &minor); err != nil {
		return version + ".1"
	}
	return fmt.Sprintf("%d.%d", major, minor+1)
}
