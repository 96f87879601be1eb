package segment

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/progress"
)

func TestProcessProject_MixedOutcomes(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	writeSession(t, p.FS, "/data/study/P01_wk1", uniformTimestamps(t0, 1000), "")
	writeSession(t, p.FS, "/data/study/P02_wk1", uniformTimestamps(t0, 5), "") // too few rows

	p.ProcessProject(ctx, project.ID, "tok-1")

	ev, ok := p.Progress.Get("tok-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusComplete, ev.Status)
	assert.Equal(t, 2, ev.TotalSessions)
	assert.Equal(t, []string{"P01_wk1"}, ev.SessionsCreated)
	assert.Equal(t, []string{"P02_wk1"}, ev.SkippedSessions)
}

func TestProcessProject_SkipsAlreadyProcessed(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	writeSession(t, p.FS, "/data/study/P01_wk1", uniformTimestamps(t0, 1000), "")

	p.ProcessProject(ctx, project.ID, "tok-1")
	p.ProcessProject(ctx, project.ID, "tok-2")

	ev, ok := p.Progress.Get("tok-2")
	require.True(t, ok)
	assert.Equal(t, progress.StatusComplete, ev.Status)
	assert.Zero(t, ev.TotalSessions, "second run has nothing to do")

	sessions, err := p.DB.ListSessions(ctx, project.ID, true)
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}

func TestProcessProject_MissingProject(t *testing.T) {
	p, _ := newTestProcessor(t)

	p.ProcessProject(context.Background(), 9999, "tok-1")

	ev, ok := p.Progress.Get("tok-1")
	require.True(t, ok)
	assert.Equal(t, progress.StatusError, ev.Status)
	assert.NotEmpty(t, ev.Message)
}
