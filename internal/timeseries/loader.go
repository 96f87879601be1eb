package timeseries

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/motion.report/internal/fsutil"
)

// ErrInvalidSession marks a recording that fails the data-quality checks.
// Callers must discard the on-disk session directory when they see it;
// invalid sessions are never retained, even partially.
var ErrInvalidSession = errors.New("invalid session data")

const (
	// minFileBytes rejects files too small to hold a header plus the
	// minimum row count.
	minFileBytes = 100

	// DefaultMinRows is the default minimum usable row count.
	DefaultMinRows = 10
)

// LoadSensorCSV reads a raw sensor file into a Table. The file must have
// header ns_since_reboot,x,y,z; the axis columns are renamed to
// <prefix>_x, <prefix>_y, <prefix>_z. Unparseable axis values become NaN and
// unparseable timestamps become 0, matching how validation counts them as
// null. The trailing row is dropped and rows are sorted ascending by
// timestamp.
//
// Failures of the §-style quality contract return errors wrapping
// ErrInvalidSession so callers can distinguish bad data from I/O trouble.
func LoadSensorCSV(fsys fsutil.FileSystem, path, prefix string) (*Table, error) {
	if !fsys.Exists(path) {
		return nil, fmt.Errorf("%w: file %s does not exist", ErrInvalidSession, path)
	}
	info, err := fsys.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() < minFileBytes {
		return nil, fmt.Errorf("%w: file %s is only %d bytes", ErrInvalidSession, path, info.Size())
	}

	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	return parseSensorCSV(data, path, prefix)
}

func parseSensorCSV(data []byte, path, prefix string) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("%w: file %s has no header", ErrInvalidSession, path)
	}

	// Locate the four expected columns by name; order in the file is not
	// assumed.
	colIdx := make(map[string]int, len(header))
	for i, name := range header {
		colIdx[strings.TrimSpace(name)] = i
	}
	required := []string{TimeColumn, "x", "y", "z"}
	for _, name := range required {
		if _, ok := colIdx[name]; !ok {
			return nil, fmt.Errorf("%w: file %s is missing column %q", ErrInvalidSession, path, name)
		}
	}

	t := NewTable(prefix+"_x", prefix+"_y", prefix+"_z")
	axes := []string{"x", "y", "z"}
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}

		ts := parseInt64(field(record, colIdx[TimeColumn]))
		vals := make([]float64, len(axes))
		for i, a := range axes {
			vals[i] = parseFloat(field(record, colIdx[a]))
		}
		if err := t.Append(ts, vals...); err != nil {
			return nil, err
		}
	}

	// The last line may be a partial write from an in-progress recording.
	t.DropLastRow()
	t.SortByTime()
	return t, nil
}

// ValidateSensorTable applies the row-count and null checks to a loaded
// table. minRows <= 0 selects DefaultMinRows.
func ValidateSensorTable(t *Table, prefix string, minRows int) error {
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	if t.Len() < minRows {
		return fmt.Errorf("%w: only %d rows (minimum %d)", ErrInvalidSession, t.Len(), minRows)
	}

	allZero := true
	for _, ts := range t.Timestamps {
		if ts != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return fmt.Errorf("%w: all timestamps null or zero", ErrInvalidSession)
	}

	if t.allNaN(prefix+"_x") && t.allNaN(prefix+"_y") && t.allNaN(prefix+"_z") {
		return fmt.Errorf("%w: all %s axis values null", ErrInvalidSession, prefix)
	}
	return nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

func parseInt64(s string) int64 {
	if s == "" {
		return 0
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	// Some exporters write timestamps in scientific notation.
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int64(f)
	}
	return 0
}

func parseFloat(s string) float64 {
	if s == "" {
		return nan()
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	return nan()
}
