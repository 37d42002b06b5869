package playbook

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

func TestLoad_SeedsFreshPlaybook(t *testing.T) {
	store := New(zap.NewNop(), t.TempDir())

	pb, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pb.Metadata.Version != "1.0" {
		t.Fatalf("expected version 1.0, got %s", pb.Metadata.Version)
	}
	if pb.Metadata.TotalEntries < 3 {
		t.Fatalf("expected >= 3 default entries, got %d", pb.Metadata.TotalEntries)
	}
	if pb.TotalEntries() != pb.Metadata.TotalEntries {
		t.Fatalf("I2 violated on seed")
	}
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store := New(zap.NewNop(), dir)

	pb, err := store.Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Save(pb); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	reloaded, err := store.Load()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}

	if reloaded.Metadata.Version != pb.Metadata.Version {
		t.Fatalf("version mismatch after round trip")
	}
	if reloaded.TotalEntries() != pb.TotalEntries() {
		t.Fatalf("entry count mismatch after round trip")
	}
}

func TestSave_WritesHistorySnapshotOnVersionChange(t *testing.T) {
	dir := t.TempDir()
	store := New(zap.NewNop(), dir)

	pb, _ := store.Load()
	if err := store.Save(pb); err != nil {
		t.Fatalf("initial save failed: %v", err)
	}

	pb.Metadata.Version = "1.1"
	if err := store.Save(pb); err != nil {
		t.Fatalf("versioned save failed: %v", err)
	}

	snapshotPath := filepath.Join(dir, "history", "playbook_v1.0.json")
	if _, err := os.Stat(snapshotPath); err != nil {
		t.Fatalf("expected history snapshot at %s: %v", snapshotPath, err)
	}
}

func TestLoad_QuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "playbook.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	store := New(zap.NewNop(), dir)
	pb, err := store.Load()
	if !errors.Is(err, ErrCorruptState) {
		t.Fatalf("expected ErrCorruptState, got %v", err)
	}
	if pb.Metadata.Version != "1.0" {
		t.Fatalf("expected reseed to version 1.0, got %s", pb.Metadata.Version)
	}

	if _, err := os.Stat(filepath.Join(dir, "playbook.json.corrupt")); err != nil {
		t.Fatalf("expected quarantined file: %v", err)
	}
}

func TestValidate_DetectsDuplicateIDs(t *testing.T) {
	pb := types.Playbook{
		Metadata: types.PlaybookMetadata{TotalEntries: 2},
		Sections: map[string][]types.Entry{
			types.SectionStrategiesAndHardRules: {
				{ID: "strat-abc", Content: "a"},
				{ID: "strat-abc", Content: "b"},
			},
		},
	}

	violations := Validate(pb)
	if len(violations) == 0 {
		t.Fatalf("expected duplicate-id violation")
	}
}

func TestUniqueEntryID_DisambiguatesCollision(t *testing.T) {
	pb, _ := New(zap.NewNop(), t.TempDir()).Load()

	content := "a brand new strategy idea"
	id1 := UniqueEntryID(pb, types.SectionStrategiesAndHardRules, content)
	pb.Sections[types.SectionStrategiesAndHardRules] = append(pb.Sections[types.SectionStrategiesAndHardRules], types.Entry{ID: id1, Content: content})

	id2 := UniqueEntryID(pb, types.SectionStrategiesAndHardRules, content)
	if id1 == id2 {
		t.Fatalf("expected disambiguated id, got same: %s", id2)
	}
}
