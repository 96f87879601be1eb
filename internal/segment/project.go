package segment

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/progress"
)

// ProcessProject ingests every unprocessed session directory under a
// project's path, publishing progress under the given token. Runs to
// completion once started; a listener abandoning the progress channel does
// not stop the work.
//
// Per-session failures are recorded as skips and processing continues. Only
// project-level failures (project missing, unreadable directory) terminate
// the run with an error event.
func (p *Processor) ProcessProject(ctx context.Context, projectID int64, token string) {
	fail := func(msg string, err error) {
		monitoring.Logf("[segment] %s: %v", msg, err)
		p.Progress.Set(token, progress.Event{
			Status:  progress.StatusError,
			Message: fmt.Sprintf("%s: %v", msg, err),
		})
	}

	project, err := p.DB.GetProject(ctx, projectID)
	if err != nil {
		fail("failed to load project", err)
		return
	}

	dirs, err := p.pendingSessionDirs(ctx, project.Path, projectID)
	if err != nil {
		fail("failed to scan project directory", err)
		return
	}

	var created, skipped []string
	for i, name := range dirs {
		p.Progress.Set(token, progress.Event{
			Status:          progress.StatusProcessing,
			CurrentSession:  name,
			TotalSessions:   len(dirs),
			SessionsCreated: created,
			SkippedSessions: skipped,
		})

		names, err := p.ProcessSessionDir(ctx, project, name)
		if err != nil {
			monitoring.Logf("[segment] skipping session %s (%d/%d): %v", name, i+1, len(dirs), err)
			skipped = append(skipped, name)
			continue
		}
		created = append(created, names...)
	}

	monitoring.Logf("[segment] project %s processed: %d sessions created, %d skipped",
		project.Name, len(created), len(skipped))
	p.Progress.Set(token, progress.Event{
		Status:          progress.StatusComplete,
		TotalSessions:   len(dirs),
		SessionsCreated: created,
		SkippedSessions: skipped,
	})
}

// pendingSessionDirs lists session directories not yet present in the
// session store, in name order. Dot-prefixed entries are skipped; those are
// staging leftovers, not recordings.
func (p *Processor) pendingSessionDirs(ctx context.Context, projectDir string, projectID int64) ([]string, error) {
	entries, err := p.FS.ReadDir(projectDir)
	if err != nil {
		return nil, err
	}

	var dirs []string
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		exists, err := p.DB.SessionNameExists(ctx, projectID, e.Name())
		if err != nil {
			return nil, err
		}
		if !exists {
			dirs = append(dirs, e.Name())
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}
