package segment

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/fsutil"
)

// maxNameAttempts bounds the suffix search so a pathological project cannot
// spin forever.
const maxNameAttempts = 1000

// UniqueName finds the first free ".1", ".2", ... suffix of originalName
// for the project. A candidate is free only when no directory of that name
// exists under projectDir AND no session row carries it; the directory
// check runs first because it is the cheap one. The pre-check is advisory
// under concurrency: the sessions UNIQUE index is the final arbiter, and
// callers retry on an insert conflict.
func UniqueName(ctx context.Context, fsys fsutil.FileSystem, store *db.DB, originalName, projectDir string, projectID int64) (string, error) {
	return uniqueName(ctx, fsys, store, originalName, projectDir, projectID, nil)
}

// uniqueName is UniqueName with an extra set of names already claimed by the
// current run. Sibling segments of one split are named before any of them
// reaches disk or the database, so the in-run set is what keeps them from
// all claiming the same suffix.
func uniqueName(ctx context.Context, fsys fsutil.FileSystem, store *db.DB, originalName, projectDir string, projectID int64, taken map[string]bool) (string, error) {
	for i := 1; i <= maxNameAttempts; i++ {
		candidate := fmt.Sprintf("%s.%d", originalName, i)

		if taken[candidate] {
			continue
		}
		if fsys.DirExists(filepath.Join(projectDir, candidate)) {
			continue
		}

		exists, err := store.SessionNameExists(ctx, projectID, candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check session name %q: %w", candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name suffix for %q after %d attempts", originalName, maxNameAttempts)
}
