// Package segment orchestrates session segmentation: loading a raw session
// directory, splitting it on temporal gaps or user-chosen points, resampling
// each segment to a uniform rate, re-projecting bouts onto the segments, and
// committing the results to disk and the session store.
//
// Two entry paths share the pipeline. The auto path runs during upload
// processing and degrades gracefully, falling back to inserting the session
// unsplit when anything goes wrong. The manual path is a direct user action
// and fails loudly instead.
package segment

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/motion.report/internal/bouts"
	"github.com/banshee-data/motion.report/internal/db"
	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/monitoring"
	"github.com/banshee-data/motion.report/internal/progress"
	"github.com/banshee-data/motion.report/internal/timeseries"
)

// ErrNotEnoughSegments is returned by the manual path when the requested
// split points would not produce at least two non-empty segments. The
// message is client-facing.
var ErrNotEnoughSegments = errors.New("Split would not create multiple valid recordings")

// insertRetries bounds how many times a split retries with a fresh name
// after losing a UNIQUE race to a concurrent run.
const insertRetries = 3

// Processor runs the segmentation pipeline against one database and
// filesystem. Zero-value thresholds select the defaults.
type Processor struct {
	DB       *db.DB
	FS       fsutil.FileSystem
	Progress *progress.Store

	GapThreshold time.Duration
	TargetHz     float64
	MinRows      int
}

func NewProcessor(store *db.DB, fsys fsutil.FileSystem, prog *progress.Store) *Processor {
	return &Processor{
		DB:           store,
		FS:           fsys,
		Progress:     prog,
		GapThreshold: timeseries.DefaultGapThreshold,
		TargetHz:     timeseries.DefaultTargetHz,
		MinRows:      timeseries.DefaultMinRows,
	}
}

func (p *Processor) gapThreshold() time.Duration {
	if p.GapThreshold > 0 {
		return p.GapThreshold
	}
	return timeseries.DefaultGapThreshold
}

func (p *Processor) targetHz() float64 {
	if p.TargetHz > 0 {
		return p.TargetHz
	}
	return timeseries.DefaultTargetHz
}

// loadSessionDir reads one raw session directory into an aligned sample
// table plus its bout list. labels.json takes priority over the device log
// for bout derivation. Validation failures wrap timeseries.ErrInvalidSession.
func (p *Processor) loadSessionDir(dir string) (*timeseries.Table, []bouts.Bout, error) {
	accel, err := timeseries.LoadSensorCSV(p.FS, filepath.Join(dir, AccelFile), "accel")
	if err != nil {
		return nil, nil, err
	}
	if err := timeseries.ValidateSensorTable(accel, "accel", p.MinRows); err != nil {
		return nil, nil, err
	}

	table := accel
	gyroPath := filepath.Join(dir, GyroFile)
	if p.FS.Exists(gyroPath) {
		gyro, err := timeseries.LoadSensorCSV(p.FS, gyroPath, "gyro")
		if err != nil {
			return nil, nil, err
		}
		if err := timeseries.ValidateSensorTable(gyro, "gyro", p.MinRows); err != nil {
			return nil, nil, err
		}
		tolNs, err := timeseries.CheckRates(accel, gyro)
		if err != nil {
			return nil, nil, err
		}
		table = timeseries.AlignAsOf(accel, gyro, tolNs)
	}

	boutList, err := p.loadBouts(dir)
	if err != nil {
		return nil, nil, err
	}
	return table, boutList, nil
}

func (p *Processor) loadBouts(dir string) ([]bouts.Bout, error) {
	labelsPath := filepath.Join(dir, LabelsFile)
	if p.FS.Exists(labelsPath) {
		data, err := p.FS.ReadFile(labelsPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", LabelsFile, err)
		}
		list, err := bouts.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", LabelsFile, err)
		}
		return normalizeAll(list), nil
	}

	logPath := filepath.Join(dir, DeviceLog)
	if p.FS.Exists(logPath) {
		data, err := p.FS.ReadFile(logPath)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", DeviceLog, err)
		}
		list, err := bouts.FromDeviceLog(data)
		if err != nil {
			return nil, fmt.Errorf("derive bouts from %s: %w", DeviceLog, err)
		}
		return normalizeAll(list), nil
	}

	return nil, nil
}

func normalizeAll(list []bouts.Bout) []bouts.Bout {
	out := make([]bouts.Bout, 0, len(list))
	for _, b := range list {
		out = append(out, b.Normalize())
	}
	return out
}

// ProcessSessionDir ingests one raw session directory: gap-split, resample,
// reallocate bouts, persist. Returns the created session names.
//
// Data-quality failures delete the directory and return the error; nothing
// invalid is retained. Failures after loading fall back to inserting the
// session unsplit with its bouts untouched, and only a failure of that
// fallback yields zero sessions.
func (p *Processor) ProcessSessionDir(ctx context.Context, project *db.Project, name string) ([]string, error) {
	dir := filepath.Join(project.Path, name)

	table, boutList, err := p.loadSessionDir(dir)
	if err != nil {
		if errors.Is(err, timeseries.ErrInvalidSession) || errors.Is(err, timeseries.ErrRateMismatch) {
			monitoring.Logf("[segment] session %s invalid, discarding: %v", name, err)
			if rmErr := p.FS.RemoveAll(dir); rmErr != nil {
				monitoring.Logf("[segment] failed to remove invalid session dir %s: %v", dir, rmErr)
			}
		}
		return nil, err
	}

	created, err := p.autoSplit(ctx, project, name, dir, table, boutList)
	if err == nil {
		return created, nil
	}
	monitoring.Logf("[segment] auto split of %s failed, inserting unsplit: %v", name, err)

	// Local recovery: worst case is "no split happened", never lost data.
	s := newSessionRow(project.ID, name, table.StartNs(), table.StopNs(), boutList)
	if insErr := p.DB.InsertSession(ctx, s); insErr != nil {
		return nil, fmt.Errorf("fallback insert of %s failed: %w (split error: %v)", name, insErr, err)
	}
	return []string{name}, nil
}

func (p *Processor) autoSplit(ctx context.Context, project *db.Project, name, dir string, table *timeseries.Table, boutList []bouts.Bout) ([]string, error) {
	boundaries := timeseries.GapBoundaries(table.Timestamps, p.gapThreshold())
	parts, offsets := partitionWithOffsets(table, boundaries)

	if len(parts) < 2 {
		return p.commitSingle(ctx, project, name, dir, table, boutList)
	}

	for i := range parts {
		parts[i] = timeseries.Resample(parts[i], p.targetHz())
	}

	// Bouts are clipped against the resampled spans so a stored bout never
	// extends past its session's stop_ns.
	allocated := bouts.Reallocate(boutList, segmentRanges(parts))

	children := make([]*db.Session, len(parts))
	staging, names, err := p.stageSegments(ctx, project, name, dir, parts, allocated, func(i int, childName string) {
		children[i] = newSessionRow(project.ID, childName, parts[i].StartNs(), parts[i].StopNs(), allocated[i])
		children[i].ParentDataPath = &dir
		children[i].DataStartOffset = &offsets[i][0]
		children[i].DataEndOffset = &offsets[i][1]
	})
	if err != nil {
		return nil, err
	}

	if err := p.DB.InsertSessionsTx(ctx, children); err != nil {
		p.FS.RemoveAll(staging)
		return nil, err
	}

	// The rows are committed; from here the database is the truth. A failed
	// rename leaves the staging directory behind as a detectable orphan
	// rather than unwinding the split.
	if err := p.promoteStaging(staging, project.Path, names); err != nil {
		monitoring.Logf("[segment] split of %s committed but staging promotion failed, orphan left at %s: %v", name, staging, err)
		return names, nil
	}
	p.FS.RemoveAll(staging)
	if err := p.FS.RemoveAll(dir); err != nil {
		monitoring.Logf("[segment] failed to remove original session dir %s: %v", dir, err)
	}
	return names, nil
}

// commitSingle rewrites a session that produced no usable split: resampled,
// re-committed under its own name. "No gaps" is a normal outcome.
func (p *Processor) commitSingle(ctx context.Context, project *db.Project, name, dir string, table *timeseries.Table, boutList []bouts.Bout) ([]string, error) {
	resampled := timeseries.Resample(table, p.targetHz())

	// Resampling can pull the last timestamp back onto the bucket grid, so
	// the bouts are clipped to the resampled span before storage.
	span := bouts.Range{StartNs: resampled.StartNs(), EndNs: resampled.StopNs()}
	clipped := bouts.Reallocate(boutList, []bouts.Range{span})[0]

	staging := filepath.Join(project.Path, ".staging-"+uuid.NewString())
	if err := writeSessionDir(p.FS, filepath.Join(staging, name), dir, resampled, clipped); err != nil {
		p.FS.RemoveAll(staging)
		return nil, err
	}
	defer p.FS.RemoveAll(staging)

	s := newSessionRow(project.ID, name, resampled.StartNs(), resampled.StopNs(), clipped)
	if err := p.DB.InsertSession(ctx, s); err != nil {
		return nil, err
	}

	// The row is committed; from here the directory swap can only be logged,
	// never propagated, or the caller's fallback would try to re-insert the
	// same name. The raw dir is moved aside first so a failed rename can be
	// undone instead of losing data.
	aside := dir + ".raw-" + uuid.NewString()
	if err := p.FS.Rename(dir, aside); err != nil {
		monitoring.Logf("[segment] session %s committed but moving raw dir aside failed: %v", name, err)
		return []string{name}, nil
	}
	if err := p.FS.Rename(filepath.Join(staging, name), filepath.Join(project.Path, name)); err != nil {
		if restoreErr := p.FS.Rename(aside, dir); restoreErr != nil {
			monitoring.Logf("[segment] failed to restore original dir %s: %v", dir, restoreErr)
		}
		monitoring.Logf("[segment] session %s committed but staging promotion failed: %v", name, err)
		return []string{name}, nil
	}
	if err := p.FS.RemoveAll(aside); err != nil {
		monitoring.Logf("[segment] failed to remove original session dir %s: %v", aside, err)
	}
	return []string{name}, nil
}

// SplitSession performs a user-requested split of an existing session at the
// given target timestamps. Each target maps to the nearest sample row;
// boundaries landing on the first or last row are discarded. Fewer than two
// resulting segments is ErrNotEnoughSegments.
//
// Children keep the parent's keep flag and carry its labels and confidences
// through clipping. Commit order is staging dirs, then one transaction
// (children + lineage + parent marked Split), then rename into place and
// removal of the original directory.
func (p *Processor) SplitSession(ctx context.Context, sessionID int64, splitPoints []int64) ([]string, error) {
	parent, err := p.DB.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if parent.Status == db.StatusSplit {
		return nil, db.ErrAlreadySplit
	}
	project, err := p.DB.GetProject(ctx, parent.ProjectID)
	if err != nil {
		return nil, err
	}
	dir := filepath.Join(project.Path, parent.Name)

	table, _, err := p.loadSessionDir(dir)
	if err != nil {
		return nil, err
	}

	boundaries := timeseries.BoundariesForTargets(table.Timestamps, splitPoints)
	parts, offsets := partitionWithOffsets(table, boundaries)
	if len(parts) < 2 {
		return nil, ErrNotEnoughSegments
	}

	for i := range parts {
		parts[i] = timeseries.Resample(parts[i], p.targetHz())
	}
	allocated := bouts.Reallocate(parent.Bouts, segmentRanges(parts))

	var names []string
	for attempt := 0; attempt < insertRetries; attempt++ {
		children := make([]*db.Session, len(parts))
		var staging string
		staging, names, err = p.stageSegments(ctx, project, parent.Name, dir, parts, allocated, func(i int, childName string) {
			children[i] = newSessionRow(project.ID, childName, parts[i].StartNs(), parts[i].StopNs(), allocated[i])
			children[i].Keep = parent.Keep
			children[i].ParentDataPath = &dir
			children[i].DataStartOffset = &offsets[i][0]
			children[i].DataEndOffset = &offsets[i][1]
		})
		if err != nil {
			return nil, err
		}

		_, err = p.DB.SplitTx(ctx, parent.ID, children)
		if err == nil {
			// Committed; a failed rename leaves staging as a detectable
			// orphan rather than unwinding the split.
			if err := p.promoteStaging(staging, project.Path, names); err != nil {
				monitoring.Logf("[segment] split of %s committed but staging promotion failed, orphan left at %s: %v", parent.Name, staging, err)
				return names, nil
			}
			p.FS.RemoveAll(staging)
			if err := p.FS.RemoveAll(dir); err != nil {
				monitoring.Logf("[segment] failed to remove original session dir %s: %v", dir, err)
			}
			return names, nil
		}

		p.FS.RemoveAll(staging)
		if !db.IsUniqueConstraint(err) {
			return nil, err
		}
		// Lost the naming race to a concurrent split; pick fresh names.
		monitoring.Logf("[segment] name conflict splitting %s, retrying: %v", parent.Name, err)
	}
	return nil, fmt.Errorf("failed to split %s after %d name conflicts: %w", parent.Name, insertRetries, err)
}

// stageSegments names each segment and writes its directory under a fresh
// staging path. build is called with each child's index and name so the
// caller can assemble the session rows alongside.
func (p *Processor) stageSegments(ctx context.Context, project *db.Project, baseName, srcDir string, parts []*timeseries.Table, allocated [][]bouts.Bout, build func(i int, name string)) (string, []string, error) {
	staging := filepath.Join(project.Path, ".staging-"+uuid.NewString())
	taken := make(map[string]bool, len(parts))
	names := make([]string, len(parts))

	for i, part := range parts {
		childName, err := uniqueName(ctx, p.FS, p.DB, baseName, project.Path, project.ID, taken)
		if err != nil {
			p.FS.RemoveAll(staging)
			return "", nil, err
		}
		taken[childName] = true
		names[i] = childName

		if err := writeSessionDir(p.FS, filepath.Join(staging, childName), srcDir, part, allocated[i]); err != nil {
			p.FS.RemoveAll(staging)
			return "", nil, err
		}
		build(i, childName)
	}
	return staging, names, nil
}

// promoteStaging renames committed child directories from the staging path
// into the project directory.
func (p *Processor) promoteStaging(staging, projectDir string, names []string) error {
	for _, name := range names {
		if err := p.FS.Rename(filepath.Join(staging, name), filepath.Join(projectDir, name)); err != nil {
			return fmt.Errorf("failed to move %s into place: %w", name, err)
		}
	}
	return nil
}

func newSessionRow(projectID int64, name string, startNs, stopNs int64, boutList []bouts.Bout) *db.Session {
	return &db.Session{
		ProjectID: projectID,
		Name:      name,
		Status:    db.StatusInitial,
		Bouts:     boutList,
		StartNs:   startNs,
		StopNs:    stopNs,
	}
}

// partitionWithOffsets splits the table at the given row indices like
// Table.Partition, additionally returning each part's [start, end) row
// offsets into the parent.
func partitionWithOffsets(t *timeseries.Table, boundaries []int) ([]*timeseries.Table, [][2]int64) {
	var parts []*timeseries.Table
	var offsets [][2]int64
	prev := 0
	emit := func(i, j int) {
		if j > i {
			parts = append(parts, t.Slice(i, j))
			offsets = append(offsets, [2]int64{int64(i), int64(j)})
		}
	}
	for _, b := range boundaries {
		if b < prev || b > t.Len() {
			continue
		}
		emit(prev, b)
		prev = b
	}
	emit(prev, t.Len())
	return parts, offsets
}

func segmentRanges(parts []*timeseries.Table) []bouts.Range {
	ranges := make([]bouts.Range, len(parts))
	for i, part := range parts {
		ranges[i] = bouts.Range{StartNs: part.StartNs(), EndNs: part.StopNs()}
	}
	return ranges
}
