package segment

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"math"
	"path/filepath"
	"strconv"

	"github.com/banshee-data/motion.report/internal/bouts"
	"github.com/banshee-data/motion.report/internal/fsutil"
	"github.com/banshee-data/motion.report/internal/timeseries"
)

// Raw file names inside a session directory.
const (
	AccelFile  = "accelerometer_data.csv"
	GyroFile   = "gyroscope_data.csv"
	LabelsFile = "labels.json"
	DeviceLog  = "log.csv"
)

// writeSessionDir materializes one session directory: sensor CSVs from the
// table, the bout list as labels.json, and the device log copied over from
// the source directory when one exists.
func writeSessionDir(fsys fsutil.FileSystem, dir, srcDir string, t *timeseries.Table, boutList []bouts.Bout) error {
	if err := fsys.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	if err := writeSensorCSV(fsys, filepath.Join(dir, AccelFile), t, "accel"); err != nil {
		return err
	}
	if hasColumns(t, "gyro") {
		if err := writeSensorCSV(fsys, filepath.Join(dir, GyroFile), t, "gyro"); err != nil {
			return err
		}
	}

	encoded, err := bouts.Encode(boutList)
	if err != nil {
		return fmt.Errorf("failed to encode bouts: %w", err)
	}
	if err := fsys.WriteFile(filepath.Join(dir, LabelsFile), encoded, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", LabelsFile, err)
	}

	// Device logs are ancillary; carry them along when present.
	srcLog := filepath.Join(srcDir, DeviceLog)
	if srcDir != "" && fsys.Exists(srcLog) {
		data, err := fsys.ReadFile(srcLog)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", DeviceLog, err)
		}
		if err := fsys.WriteFile(filepath.Join(dir, DeviceLog), data, 0644); err != nil {
			return fmt.Errorf("failed to copy %s: %w", DeviceLog, err)
		}
	}

	return nil
}

// writeSensorCSV writes one sensor stream's rows in the raw-file format:
// header ns_since_reboot,x,y,z with the prefixed columns mapped back to
// their short axis names. NaN values are written as empty fields.
func writeSensorCSV(fsys fsutil.FileSystem, path string, t *timeseries.Table, prefix string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{timeseries.TimeColumn, "x", "y", "z"}); err != nil {
		return err
	}

	axes := []string{prefix + "_x", prefix + "_y", prefix + "_z"}
	record := make([]string, 4)
	for i, ts := range t.Timestamps {
		record[0] = strconv.FormatInt(ts, 10)
		for j, col := range axes {
			v := t.Values[col][i]
			if math.IsNaN(v) {
				record[j+1] = ""
			} else {
				record[j+1] = strconv.FormatFloat(v, 'g', -1, 64)
			}
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if err := fsys.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func hasColumns(t *timeseries.Table, prefix string) bool {
	for _, c := range t.Columns {
		if c == prefix+"_x" {
			return true
		}
	}
	return false
}
