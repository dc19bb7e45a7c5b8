package writer

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/danwakefield/fnmatch"
	"github.com/turbot/tailwriter/internal/filesystem"
	"golang.org/x/sync/semaphore"
)

const maxConcurrentRecoveries = 5

// RecoverReport lists the temporary files handled by Recover
type RecoverReport struct {
	// Finalized holds the final paths of temporary files which were renamed
	Finalized []string
	// Removed holds empty temporary files which were deleted
	Removed []string
}

// Recover finalizes temporary files left in dir by a previous run which did not shut down cleanly.
// Non-empty temporary files matching the name provider's pattern are renamed to their final names;
// empty ones are removed. It must not be called for a directory with open handles.
func Recover(ctx context.Context, fs filesystem.FileSystem, dir string, names *NameProvider) (*RecoverReport, error) {
	entries, err := fs.List(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	pattern := names.TempPattern()
	report := &RecoverReport{}
	sem := semaphore.NewWeighted(maxConcurrentRecoveries)
	var wg sync.WaitGroup
	var mutex sync.Mutex
	var failures int

	for _, entry := range entries {
		if entry.IsDir() || !fnmatch.Match(pattern, entry.Name(), fnmatch.FNM_PERIOD) {
			continue
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			// started recoveries still append to report
			wg.Wait()
			return report, err
		}
		wg.Add(1)
		go func(name string, size int64) {
			defer wg.Done()
			defer sem.Release(1)

			tempPath := path.Join(dir, name)
			if size == 0 {
				err := fs.Remove(ctx, tempPath)
				mutex.Lock()
				defer mutex.Unlock()
				if err != nil {
					slog.Warn("writer.Recover failed to remove empty temporary file", "path", tempPath, "error", err)
					failures++
					return
				}
				report.Removed = append(report.Removed, tempPath)
				return
			}

			finalPath := path.Join(dir, FinalNameFor(name))
			err := fs.Rename(ctx, tempPath, finalPath)
			mutex.Lock()
			defer mutex.Unlock()
			if err != nil {
				slog.Warn("writer.Recover failed to finalize temporary file", "path", tempPath, "error", err)
				failures++
				return
			}
			slog.Info("writer.Recover finalized orphaned temporary file", "path", finalPath)
			report.Finalized = append(report.Finalized, finalPath)
		}(entry.Name(), entry.Size())
	}
	wg.Wait()

	if failures > 0 {
		return report, fmt.Errorf("failed to recover %d temporary files in %s", failures, dir)
	}
	return report, nil
}
