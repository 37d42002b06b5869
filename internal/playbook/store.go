// Package playbook persists, loads, validates, and versions the Playbook —
// the ACE loop's only writer-contended resource (spec.md §5).
package playbook

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/ace-playbook/pkg/types"
	"go.uber.org/zap"
)

// Store is the single writer-contended resource guarding the Playbook on
// disk, grounded on the cache/dataDir shape of the teacher's data.Store but
// hardened to true write-temp-then-rename atomicity per spec.md §4.1.
type Store struct {
	mu      sync.Mutex
	logger  *zap.Logger
	dataDir string
}

// New creates a Store rooted at dataDir. It does not touch disk until Load
// or Save is called.
func New(logger *zap.Logger, dataDir string) *Store {
	return &Store{logger: logger.Named("playbook-store"), dataDir: dataDir}
}

func (s *Store) playbookPath() string {
	return filepath.Join(s.dataDir, "playbook.json")
}

func (s *Store) historyPath(version string) string {
	return filepath.Join(s.dataDir, "history", fmt.Sprintf("playbook_v%s.json", version))
}

// Load reads the current Playbook. If none exists, it seeds a fresh one at
// version 1.0 with a minimal default entry set and returns it. A malformed
// on-disk Playbook is quarantined (renamed with a .corrupt suffix) and a
// fresh seed is installed in its place; ErrCorruptState is returned so the
// caller can surface the event, but the loop continues with the seed.
func (s *Store) Load() (types.Playbook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.playbookPath())
	if err != nil {
		if os.IsNotExist(err) {
			seed := Seed()
			if werr := s.writeLocked(seed); werr != nil {
				return seed, werr
			}
			return seed, nil
		}
		return types.Playbook{}, fmt.Errorf("failed to read playbook: %w", err)
	}

	var pb types.Playbook
	if err := json.Unmarshal(raw, &pb); err != nil {
		return s.quarantineLocked(err)
	}

	if violations := Validate(pb); len(violations) > 0 {
		return s.quarantineLocked(fmt.Errorf("validation failed: %s", strings.Join(violations, "; ")))
	}

	return pb, nil
}

// quarantineLocked renames the current on-disk Playbook aside and installs a
// fresh seed. Caller must hold s.mu.
func (s *Store) quarantineLocked(cause error) (types.Playbook, error) {
	corruptPath := s.playbookPath() + ".corrupt"
	if err := os.Rename(s.playbookPath(), corruptPath); err != nil {
		s.logger.Error("failed to quarantine corrupt playbook", zap.Error(err))
	} else {
		s.logger.Error("quarantined corrupt playbook", zap.String("path", corruptPath), zap.Error(cause))
	}

	seed := Seed()
	if err := s.writeLocked(seed); err != nil {
		return seed, err
	}
	return seed, fmt.Errorf("%w: %v", ErrCorruptState, cause)
}

// Save atomically writes playbook (write-to-temp + rename). When the
// version differs from what's currently on disk, it also writes an
// immutable history snapshot before overwriting the live file.
func (s *Store) Save(pb types.Playbook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if violations := Validate(pb); len(violations) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidPlaybook, strings.Join(violations, "; "))
	}

	previousVersion := s.currentVersionLocked()
	if previousVersion != "" && previousVersion != pb.Metadata.Version {
		if err := s.snapshotLocked(pb); err != nil {
			return err
		}
	}

	return s.writeLocked(pb)
}

// currentVersionLocked reads the version currently on disk without
// validating it, returning "" if nothing is there yet. Caller must hold s.mu.
func (s *Store) currentVersionLocked() string {
	raw, err := os.ReadFile(s.playbookPath())
	if err != nil {
		return ""
	}
	var meta struct {
		Metadata types.PlaybookMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return ""
	}
	return meta.Metadata.Version
}

// snapshotLocked writes the immutable history/playbook_v{version}.json for
// the version currently on disk (the version being superseded), using an
// atomic write of its own.
func (s *Store) snapshotLocked(incoming types.Playbook) error {
	raw, err := os.ReadFile(s.playbookPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read playbook for snapshot: %w", err)
	}

	var current types.Playbook
	if err := json.Unmarshal(raw, &current); err != nil {
		return fmt.Errorf("failed to parse playbook for snapshot: %w", err)
	}

	path := s.historyPath(current.Metadata.Version)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create history dir: %w", err)
	}

	return atomicWriteJSON(path, current)
}

func (s *Store) writeLocked(pb types.Playbook) error {
	if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	return atomicWriteJSON(s.playbookPath(), pb)
}

// atomicWriteJSON writes value to path via a temp file in the same
// directory followed by os.Rename, so readers never observe a partial file.
func atomicWriteJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to rename into place: %w", err)
	}
	return nil
}

// Validate checks invariants I1 (unique IDs) and I2 (total_entries matches
// section lengths) plus basic section schema, returning a human-readable
// violation per problem found.
func Validate(pb types.Playbook) []string {
	var violations []string

	seen := make(map[string]bool)
	total := 0
	for section, entries := range pb.Sections {
		total += len(entries)
		for _, e := range entries {
			if e.ID == "" {
				violations = append(violations, fmt.Sprintf("entry in section %q has empty id", section))
				continue
			}
			if seen[e.ID] {
				violations = append(violations, fmt.Sprintf("duplicate entry id %q", e.ID))
			}
			seen[e.ID] = true
		}
	}

	if total != pb.Metadata.TotalEntries {
		violations = append(violations, fmt.Sprintf("metadata.total_entries=%d does not match actual count=%d", pb.Metadata.TotalEntries, total))
	}

	return violations
}

// Seed builds the initial Playbook: version 1.0 with a minimal default
// entry set, satisfying scenario 1 of spec.md §8 ("≥3 default entries").
func Seed() types.Playbook {
	now := time.Now().UTC()
	entries := []struct {
		section string
		content string
	}{
		{types.SectionStrategiesAndHardRules, "Never risk more than 2% of account equity on a single idea; position_size_pct must reflect this cap."},
		{types.SectionUsefulCodeAndTemplates, "Default entry_zone width should bracket at least 0.5x the daily ATR to avoid noise-driven stop-outs."},
		{types.SectionTroubleshootingAndPitfalls, "A neutral bias with a populated entry_zone is a schema violation — clear numeric fields whenever bias is neutral."},
	}

	sections := map[string][]types.Entry{}
	for _, e := range entries {
		id := NewEntryID(e.section, e.content)
		sections[e.section] = append(sections[e.section], types.Entry{
			ID:        id,
			Content:   e.content,
			CreatedAt: now,
		})
	}

	pb := types.Playbook{
		Metadata: types.PlaybookMetadata{
			Version:     "1.0",
			LastUpdated: now,
		},
		Sections: sections,
	}
	pb.Metadata.TotalEntries = pb.TotalEntries()
	return pb
}

// NewEntryID generates a section-prefixed, content-derived, stable token.
// Determinism from content (rather than random bytes, unlike the teacher's
// pkg/utils.GenerateID) lets two independent Curator runs that propose the
// same content land on the same ID, and guarantees uniqueness-on-insert is
// checkable by the caller before committing.
func NewEntryID(section, content string) string {
	sum := sha1.Sum([]byte(content))
	token := hex.EncodeToString(sum[:])[:10]
	return types.SectionPrefix(section) + token
}

// UniqueEntryID returns an entry ID guaranteed not to collide with any ID
// already in pb, appending a short disambiguating suffix if needed.
func UniqueEntryID(pb types.Playbook, section, content string) string {
	base := NewEntryID(section, content)
	if _, _, ok := pb.FindEntry(base); !ok {
		return base
	}
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, _, ok := pb.FindEntry(candidate); !ok {
			return candidate
		}
	}
}

// SortedSectionNames returns section keys in a stable order (recognized
// sections first, in their canonical order, then any extras alphabetically)
// — useful for deterministic serialization/iteration in tests and prompts.
func SortedSectionNames(pb types.Playbook) []string {
	canonical := []string{
		types.SectionStrategiesAndHardRules,
		types.SectionUsefulCodeAndTemplates,
		types.SectionTroubleshootingAndPitfalls,
	}
	canonicalSet := map[string]bool{}
	var ordered []string
	for _, c := range canonical {
		if _, ok := pb.Sections[c]; ok {
			ordered = append(ordered, c)
			canonicalSet[c] = true
		}
	}

	var extra []string
	for name := range pb.Sections {
		if !canonicalSet[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	return append(ordered, extra...)
}
