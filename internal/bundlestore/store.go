// Package bundlestore implements the StateSynchronizer's storage half: a
// StateBundleStore that restores and publishes the whole persisted-state
// bundle (Playbook + history + trading_session + weekly_reflections) across
// ephemeral runs, grounded on the teacher's data.Store persistence shape and
// using the teacher's workers.Pool (internal/workers) to parallelize the
// per-file copy a bundle restore/publish involves.
package bundlestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/atlas-desktop/ace-playbook/internal/workers"
	"go.uber.org/zap"
)

// bundleDirs are the top-level entries a complete bundle is made of, per
// spec.md §5's state persistence contract: data/ (playbook.json plus its
// history/ snapshots), trading_session/, and weekly_reflections/.
var bundleDirs = []string{"data", "trading_session", "weekly_reflections"}

// Handle identifies one published bundle.
type Handle struct {
	Key       string
	RunNumber int
	Cycle     string
	Timestamp time.Time
}

// Store is the external collaborator the StateSynchronizer depends on.
type Store interface {
	Latest(ctx context.Context) (*Handle, error)
	Download(ctx context.Context, handle Handle, destDir string) error
	Upload(ctx context.Context, sourceDir string, runNumber int, cycle string) (Handle, error)
	Prune(ctx context.Context, retentionDays int) (int, error)
}

// FilesystemStore keeps bundles as timestamped sibling directories under
// root — a stand-in for an object-store-backed implementation (S3, GCS)
// that would satisfy the same interface in production; local runs and CI
// use this directly.
type FilesystemStore struct {
	logger *zap.Logger
	root   string
	pool   *workers.Pool
}

// NewFilesystemStore builds a Store rooted at root, backed by a worker pool
// sized for the concurrent small-file copies a bundle restore/publish does.
func NewFilesystemStore(logger *zap.Logger, root string) *FilesystemStore {
	pool := workers.NewPool(logger.Named("bundlestore-pool"), workers.DefaultPoolConfig("bundlestore"))
	pool.Start()
	return &FilesystemStore{logger: logger.Named("bundlestore"), root: root, pool: pool}
}

// Close stops the underlying worker pool.
func (s *FilesystemStore) Close() error {
	return s.pool.Stop()
}

func (s *FilesystemStore) bundlePath(key string) string {
	return filepath.Join(s.root, key)
}

// Latest returns the most recently published bundle, or nil if none exists
// (first-run semantics per spec.md §5).
func (s *FilesystemStore) Latest(ctx context.Context) (*Handle, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("bundlestore: failed to list bundles: %w", err)
	}

	var handles []Handle
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		h, ok := parseKey(e.Name())
		if !ok {
			continue
		}
		handles = append(handles, h)
	}
	if len(handles) == 0 {
		return nil, nil
	}

	sort.Slice(handles, func(i, j int) bool { return handles[i].Timestamp.Before(handles[j].Timestamp) })
	latest := handles[len(handles)-1]
	return &latest, nil
}

// Download materializes handle's bundle into destDir, copying every tracked
// directory/file concurrently via the worker pool.
func (s *FilesystemStore) Download(ctx context.Context, handle Handle, destDir string) error {
	src := s.bundlePath(handle.Key)
	files, err := collectFiles(src)
	if err != nil {
		return fmt.Errorf("bundlestore: failed to enumerate bundle %s: %w", handle.Key, err)
	}

	return s.copyAll(files, src, destDir)
}

// Upload publishes sourceDir as a new bundle keyed by (runNumber, cycle,
// now), copying files concurrently, then returns the new Handle. Callers
// must have already made sourceDir's contents durable (spec.md §5:
// DailyCycle's session-directory save must precede publish).
func (s *FilesystemStore) Upload(ctx context.Context, sourceDir string, runNumber int, cycle string) (Handle, error) {
	now := time.Now().UTC()
	handle := Handle{Key: formatKey(runNumber, cycle, now), RunNumber: runNumber, Cycle: cycle, Timestamp: now}
	dest := s.bundlePath(handle.Key)

	files, err := collectFiles(sourceDir)
	if err != nil {
		return Handle{}, fmt.Errorf("bundlestore: failed to enumerate source %s: %w", sourceDir, err)
	}

	if err := s.copyAll(files, sourceDir, dest); err != nil {
		return Handle{}, err
	}
	return handle, nil
}

// Prune deletes bundles older than retentionDays, returning the count
// removed.
func (s *FilesystemStore) Prune(ctx context.Context, retentionDays int) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("bundlestore: failed to list bundles: %w", err)
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		h, ok := parseKey(e.Name())
		if !ok || !h.Timestamp.Before(cutoff) {
			continue
		}
		if err := os.RemoveAll(s.bundlePath(e.Name())); err != nil {
			s.logger.Warn("failed to prune bundle", zap.String("key", e.Name()), zap.Error(err))
			continue
		}
		removed++
	}
	return removed, nil
}

// copyAll fans out one copy task per file across the worker pool, blocking
// until every copy has either completed or failed.
func (s *FilesystemStore) copyAll(files []string, srcRoot, destRoot string) error {
	if err := os.MkdirAll(destRoot, 0o755); err != nil {
		return fmt.Errorf("bundlestore: failed to create destination: %w", err)
	}

	errCh := make(chan error, len(files))
	var wg sync.WaitGroup
	for _, rel := range files {
		rel := rel
		task := workers.TaskFunc(func() error {
			return copyFile(filepath.Join(srcRoot, rel), filepath.Join(destRoot, rel))
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.pool.SubmitWait(task); err != nil {
				errCh <- fmt.Errorf("bundlestore: failed to copy %s: %w", rel, err)
			}
		}()
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}

	out, err := os.CreateTemp(filepath.Dir(dest), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := out.Name()

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(tmpName)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, dest)
}

// collectFiles walks root's tracked directories/files and returns paths
// relative to root.
func collectFiles(root string) ([]string, error) {
	var files []string

	for _, d := range bundleDirs {
		dirPath := filepath.Join(root, d)
		err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if os.IsNotExist(err) {
					return nil
				}
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, rel)
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	return files, nil
}

func formatKey(runNumber int, cycle string, ts time.Time) string {
	return fmt.Sprintf("run-%06d-%s-%s", runNumber, cycle, ts.Format("20060102T150405Z"))
}

func parseKey(name string) (Handle, bool) {
	parts := strings.SplitN(name, "-", 4)
	if len(parts) != 4 || parts[0] != "run" {
		return Handle{}, false
	}
	var runNumber int
	if _, err := fmt.Sscanf(parts[1], "%d", &runNumber); err != nil {
		return Handle{}, false
	}
	ts, err := time.Parse("20060102T150405Z", parts[3])
	if err != nil {
		return Handle{}, false
	}
	return Handle{Key: name, RunNumber: runNumber, Cycle: parts[2], Timestamp: ts}, true
}
