package segment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/progress"
	"github.com/banshee-data/motion.report/internal/timeseries"
)

const (
	t0     = int64(1_000_000_000_000) // arbitrary ns-since-reboot origin
	stepNs = int64(20_000_000)        // 50 Hz
)

func newTestProcessor(t *testing.T) (*Processor, *db.Project) {
	t.Helper()

	store, err := db.NewDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fsys := fsutil.NewMemoryFileSystem()
	require.NoError(t, fsys.MkdirAll("/data/study", 0755))

	project := &db.Project{Name: "study", Path: "/data/study"}
	require.NoError(t, store.CreateProject(context.Background(), project))

	return NewProcessor(store, fsys, progress.NewStore()), project
}

// sensorCSV renders n+1 uniform rows starting at start; the loader drops the
// trailing row, so n rows survive.
func sensorCSV(timestamps []int64) []byte {
	var b strings.Builder
	b.WriteString("ns_since_reboot,x,y,z\n")
	for _, ts := range timestamps {
		fmt.Fprintf(&b, "%d,1.5,-0.5,9.8\n", ts)
	}
	b.WriteString("0,0,0\n") // partial trailing line, dropped by the loader
	return []byte(b.String())
}

func uniformTimestamps(start int64, n int) []int64 {
	ts := make([]int64, n)
	for i := range ts {
		ts[i] = start + int64(i)*stepNs
	}
	return ts
}

func writeSession(t *testing.T, fsys fsutil.FileSystem, dir string, timestamps []int64, labels string) {
	t.Helper()
	require.NoError(t, fsys.MkdirAll(dir, 0755))
	require.NoError(t, fsys.WriteFile(filepath.Join(dir, AccelFile), sensorCSV(timestamps), 0644))
	if labels != "" {
		require.NoError(t, fsys.WriteFile(filepath.Join(dir, LabelsFile), []byte(labels), 0644))
	}
}

func TestProcessSessionDir_NoGaps(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	// 1000 uniform rows at 50 Hz, one bout at [t0+2s, t0+5s].
	labels := fmt.Sprintf(`[{"start": %d, "end": %d}]`, t0+2_000_000_000, t0+5_000_000_000)
	writeSession(t, p.FS, "/data/study/P01_wk1", uniformTimestamps(t0, 1000), labels)

	created, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)
	require.Equal(t, []string{"P01_wk1"}, created)

	sessions, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, "P01_wk1", s.Name)
	assert.Equal(t, db.StatusInitial, s.Status)
	require.Len(t, s.Bouts, 1)
	assert.Equal(t, t0+2_000_000_000, s.Bouts[0].StartNs)
	assert.Equal(t, t0+5_000_000_000, s.Bouts[0].EndNs)
	assert.Equal(t, "smoking", s.Bouts[0].Label)

	// The directory was rewritten with resampled data: still uniform, same
	// row count give or take the dropped trailing row.
	table, err := timeseries.LoadSensorCSV(p.FS, "/data/study/P01_wk1/"+AccelFile, "accel")
	require.NoError(t, err)
	assert.InDelta(t, 999, table.Len(), 2)
	for i := 1; i < table.Len(); i++ {
		assert.Equal(t, stepNs, table.Timestamps[i]-table.Timestamps[i-1])
	}
}

func TestProcessSessionDir_SplitsOnGap(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	// 40 minute jump between rows 499 and 500.
	gap := int64(40) * 60 * 1_000_000_000
	ts := uniformTimestamps(t0, 1000)
	for i := 500; i < 1000; i++ {
		ts[i] += gap
	}

	// First bout sits inside segment one; second straddles the gap and must
	// land, clipped, in segment one only.
	seg1End := ts[499]
	labels := fmt.Sprintf(`[{"start": %d, "end": %d}, {"start": %d, "end": %d, "label": "eating"}]`,
		t0+2_000_000_000, t0+5_000_000_000,
		seg1End-1_000_000_000, ts[500]+1_000_000_000)
	writeSession(t, p.FS, "/data/study/P01_wk1", ts, labels)

	created, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)
	require.Equal(t, []string{"P01_wk1.1", "P01_wk1.2"}, created)

	sessions, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	first, second := sessions[0], sessions[1]
	require.Len(t, first.Bouts, 2)
	assert.Equal(t, t0+2_000_000_000, first.Bouts[0].StartNs)
	// The straddling bout is clipped at the segment end, keeps its label,
	// and is not duplicated into segment two.
	assert.Equal(t, seg1End, first.Bouts[1].EndNs)
	assert.Equal(t, "eating", first.Bouts[1].Label)
	assert.Empty(t, second.Bouts)

	// Original directory is gone; child directories are live.
	assert.False(t, p.FS.DirExists("/data/study/P01_wk1"))
	assert.True(t, p.FS.DirExists("/data/study/P01_wk1.1"))
	assert.True(t, p.FS.DirExists("/data/study/P01_wk1.2"))

	// Audit breadcrumbs point back at the parent data.
	require.NotNil(t, first.ParentDataPath)
	assert.Equal(t, "/data/study/P01_wk1", *first.ParentDataPath)
	require.NotNil(t, second.DataStartOffset)
	assert.Equal(t, int64(500), *second.DataStartOffset)
}

func TestProcessSessionDir_InvalidDiscarded(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	// Too few rows to be usable.
	writeSession(t, p.FS, "/data/study/P01_bad", uniformTimestamps(t0, 5), "")

	_, err := p.ProcessSessionDir(ctx, project, "P01_bad")
	require.ErrorIs(t, err, timeseries.ErrInvalidSession)

	assert.False(t, p.FS.DirExists("/data/study/P01_bad"),
		"invalid session directory must be deleted")

	sessions, err := p.DB.ListSessions(ctx, project.ID, true)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

// stagingFailFS fails any write under a staging path, forcing the split
// stage to fail after the data has loaded cleanly.
type stagingFailFS struct {
	fsutil.FileSystem
}

func (f stagingFailFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if strings.Contains(name, ".staging-") {
		return errors.New("disk full")
	}
	return f.FileSystem.WriteFile(name, data, perm)
}

func TestProcessSessionDir_FallsBackToUnsplit(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	gap := int64(40) * 60 * 1_000_000_000
	ts := uniformTimestamps(t0, 1000)
	for i := 500; i < 1000; i++ {
		ts[i] += gap
	}
	labels := fmt.Sprintf(`[{"start": %d, "end": %d}]`, t0+2_000_000_000, t0+5_000_000_000)
	writeSession(t, p.FS, "/data/study/P01_wk1", ts, labels)

	p.FS = stagingFailFS{p.FS}

	created, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)
	require.Equal(t, []string{"P01_wk1"}, created)

	// The session landed unsplit with its bouts intact; the raw directory
	// survives untouched.
	sessions, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "P01_wk1", sessions[0].Name)
	require.Len(t, sessions[0].Bouts, 1)
	assert.True(t, p.FS.DirExists("/data/study/P01_wk1"))
}

func TestProcessSessionDir_ClipsBoutsToResampledSpan(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	// The final row sits 10 ms off the 20 ms bucket grid, so resampling
	// pulls the last timestamp back onto the grid. A bout ending at the raw
	// last timestamp must be clipped to the stored span.
	ts := uniformTimestamps(t0, 999)
	ts[998] += 10_000_000
	labels := fmt.Sprintf(`[{"start": %d, "end": %d}]`, t0+2_000_000_000, ts[998])
	writeSession(t, p.FS, "/data/study/P01_wk1", ts, labels)

	_, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)

	sessions, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	require.Len(t, sessions, 1)

	s := sessions[0]
	assert.Equal(t, t0+998*stepNs, s.StopNs)
	require.Len(t, s.Bouts, 1)
	assert.Equal(t, t0+2_000_000_000, s.Bouts[0].StartNs)
	assert.Equal(t, s.StopNs, s.Bouts[0].EndNs)
	require.LessOrEqual(t, s.Bouts[0].EndNs, s.StopNs)
}

type renameFailFS struct {
	fsutil.FileSystem
}

func (f renameFailFS) Rename(oldpath, newpath string) error {
	return errors.New("rename not permitted")
}

func TestProcessSessionDir_SwapFailureKeepsCommittedRow(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	writeSession(t, p.FS, "/data/study/P01_wk1", uniformTimestamps(t0, 1000), "")

	p.FS = renameFailFS{p.FS}

	// The session row commits before the directory swap. A failed swap must
	// not surface as an error, or the fallback would collide with the row
	// that already exists.
	created, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)
	require.Equal(t, []string{"P01_wk1"}, created)

	sessions, err := p.DB.ListSessions(ctx, project.ID, true)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "P01_wk1", sessions[0].Name)

	// The raw directory is still in place for a later retry.
	assert.True(t, p.FS.DirExists("/data/study/P01_wk1"))
}

func TestSplitSession_Manual(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	labels := fmt.Sprintf(`[{"start": %d, "end": %d, "label": "eating", "confidence": 0.8}]`,
		t0+2_000_000_000, t0+5_000_000_000)
	writeSession(t, p.FS, "/data/study/P01_wk1", uniformTimestamps(t0, 1000), labels)

	created, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)
	require.Equal(t, []string{"P01_wk1"}, created)

	sessions, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	parent := sessions[0]

	keep := 1
	require.NoError(t, p.DB.SetReviewFlags(ctx, parent.ID, &keep, nil))

	// Split at 10 seconds in.
	names, err := p.SplitSession(ctx, parent.ID, []int64{t0 + 10_000_000_000})
	require.NoError(t, err)
	require.Equal(t, []string{"P01_wk1.1", "P01_wk1.2"}, names)

	// Parent is logically deactivated and hidden from default listings.
	got, err := p.DB.GetSession(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusSplit, got.Status)
	require.NotNil(t, got.Keep)
	assert.Equal(t, 0, *got.Keep)

	visible, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	require.Len(t, visible, 2)

	for _, child := range visible {
		// Keep carries over from the parent on the manual path.
		require.NotNil(t, child.Keep, "child %s keep flag", child.Name)
		assert.Equal(t, 1, *child.Keep)

		parentID, ok, err := p.DB.ParentSessionID(ctx, child.ID)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, parent.ID, parentID)

		rootName, isVirtual, err := p.DB.RootSession(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, "P01_wk1", rootName)
		assert.True(t, isVirtual)
	}

	// The bout lived entirely before the split point, so it belongs to the
	// first child with label and confidence preserved.
	require.Len(t, visible[0].Bouts, 1)
	assert.Equal(t, "eating", visible[0].Bouts[0].Label)
	require.NotNil(t, visible[0].Bouts[0].Confidence)
	assert.Equal(t, 0.8, *visible[0].Bouts[0].Confidence)
	assert.Empty(t, visible[1].Bouts)

	assert.False(t, p.FS.DirExists("/data/study/P01_wk1"))
	assert.True(t, p.FS.DirExists("/data/study/P01_wk1.1"))
	assert.True(t, p.FS.DirExists("/data/study/P01_wk1.2"))
}

func TestSplitSession_NotEnoughSegments(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	writeSession(t, p.FS, "/data/study/P01_wk1", uniformTimestamps(t0, 1000), "")
	_, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)

	sessions, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	parent := sessions[0]

	// A target past the end maps to the last row, which is discarded as a
	// boundary, leaving a single segment.
	_, err = p.SplitSession(ctx, parent.ID, []int64{t0 + int64(2000)*stepNs})
	require.ErrorIs(t, err, ErrNotEnoughSegments)

	// No side effects: parent untouched, directory intact.
	got, err := p.DB.GetSession(ctx, parent.ID)
	require.NoError(t, err)
	assert.Equal(t, db.StatusInitial, got.Status)
	assert.True(t, p.FS.DirExists("/data/study/P01_wk1"))
}

func TestSplitSession_AlreadySplit(t *testing.T) {
	p, project := newTestProcessor(t)
	ctx := context.Background()

	writeSession(t, p.FS, "/data/study/P01_wk1", uniformTimestamps(t0, 1000), "")
	_, err := p.ProcessSessionDir(ctx, project, "P01_wk1")
	require.NoError(t, err)

	sessions, err := p.DB.ListSessions(ctx, project.ID, false)
	require.NoError(t, err)
	parent := sessions[0]

	_, err = p.SplitSession(ctx, parent.ID, []int64{t0 + 10_000_000_000})
	require.NoError(t, err)

	_, err = p.SplitSession(ctx, parent.ID, []int64{t0 + 12_000_000_000})
	require.ErrorIs(t, err, db.ErrAlreadySplit)
}
