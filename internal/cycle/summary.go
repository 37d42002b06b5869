package cycle

import (
	"context"
	"os"
	"sort"

	"github.com/atlas-desktop/ace-playbook/internal/playbook"
	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

// ArtifactIndex builds the ArtifactSummary spec.md §6 describes as the
// bundle's top-level index, read fresh off disk on every call — it
// satisfies opsapi.SummaryProvider without opsapi needing to import cycle.
type ArtifactIndex struct {
	logger    *zap.Logger
	cfg       types.Config
	playbooks *playbook.Store
}

// NewArtifactIndex builds an ArtifactIndex over cfg's paths.
func NewArtifactIndex(logger *zap.Logger, cfg types.Config, playbooks *playbook.Store) *ArtifactIndex {
	return &ArtifactIndex{logger: logger.Named("artifact-index"), cfg: cfg, playbooks: playbooks}
}

// ArtifactSummary implements opsapi.SummaryProvider.
func (a *ArtifactIndex) ArtifactSummary(ctx context.Context) (types.ArtifactSummary, error) {
	pb, err := a.playbooks.Load()
	if err != nil {
		a.logger.Warn("playbook load reported an issue while building summary", zap.Error(err))
	}

	var summary types.ArtifactSummary
	summary.Playbook.Version = pb.Metadata.Version
	summary.Playbook.TotalEntries = pb.TotalEntries()
	summary.Playbook.LastUpdated = pb.Metadata.LastUpdated
	summary.TradingSessions = listSubdirs(a.cfg.Paths.SessionDir)
	summary.WeeklyReflections = listFiles(a.cfg.Paths.ReflectionDir)
	return summary, nil
}

// listSubdirs returns the names of root's immediate subdirectories, used
// for trading_session/{YYYY_MM_DD}/ date directories.
func listSubdirs(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}

// listFiles returns the names of root's immediate files, used for
// weekly_reflections/{YYYY}_W{WW}_reflection.json report files.
func listFiles(root string) []string {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names
}
