// Package timeseries holds the in-memory sample table for a recording and the
// primitives the segmenter is built from: CSV loading and validation,
// dual-stream alignment, gap detection, and fixed-rate resampling.
//
// Timestamps are nanoseconds since device reboot, not wall-clock time. A
// recording's timestamps are monotonic only within one reboot epoch; a large
// jump between consecutive samples is what the gap detector looks for.
package timeseries

import (
	"fmt"
	"math"
	"sort"
)

// TimeColumn is the canonical timestamp column name in raw sensor files.
const TimeColumn = "ns_since_reboot"

// Table is a column-oriented sample table ordered by timestamp. Columns holds
// the value column names in order; every value slice has the same length as
// Timestamps.
type Table struct {
	Timestamps []int64
	Columns    []string
	Values     map[string][]float64
}

// NewTable creates an empty table with the given value columns.
func NewTable(columns ...string) *Table {
	t := &Table{
		Columns: append([]string(nil), columns...),
		Values:  make(map[string][]float64, len(columns)),
	}
	for _, c := range columns {
		t.Values[c] = nil
	}
	return t
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Timestamps) }

// Append adds one row. vals must be ordered like t.Columns.
func (t *Table) Append(ts int64, vals ...float64) error {
	if len(vals) != len(t.Columns) {
		return fmt.Errorf("append: got %d values, table has %d columns", len(vals), len(t.Columns))
	}
	t.Timestamps = append(t.Timestamps, ts)
	for i, c := range t.Columns {
		t.Values[c] = append(t.Values[c], vals[i])
	}
	return nil
}

// Row returns the values of row i ordered like t.Columns.
func (t *Table) Row(i int) []float64 {
	vals := make([]float64, len(t.Columns))
	for j, c := range t.Columns {
		vals[j] = t.Values[c][i]
	}
	return vals
}

// StartNs returns the first timestamp, or 0 for an empty table.
func (t *Table) StartNs() int64 {
	if t.Len() == 0 {
		return 0
	}
	return t.Timestamps[0]
}

// StopNs returns the last timestamp, or 0 for an empty table.
func (t *Table) StopNs() int64 {
	if t.Len() == 0 {
		return 0
	}
	return t.Timestamps[t.Len()-1]
}

// SortByTime sorts rows ascending by timestamp. The sort is stable so
// duplicate timestamps keep their input order.
func (t *Table) SortByTime() {
	n := t.Len()
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return t.Timestamps[idx[a]] < t.Timestamps[idx[b]]
	})

	ts := make([]int64, n)
	for i, j := range idx {
		ts[i] = t.Timestamps[j]
	}
	t.Timestamps = ts

	for _, c := range t.Columns {
		src := t.Values[c]
		dst := make([]float64, n)
		for i, j := range idx {
			dst[i] = src[j]
		}
		t.Values[c] = dst
	}
}

// Slice returns a copy of rows [i, j).
func (t *Table) Slice(i, j int) *Table {
	out := NewTable(t.Columns...)
	out.Timestamps = append(out.Timestamps, t.Timestamps[i:j]...)
	for _, c := range t.Columns {
		out.Values[c] = append(out.Values[c], t.Values[c][i:j]...)
	}
	return out
}

// Partition splits the table at the given ascending row indices. Each
// boundary index becomes the first row of the next part. Empty parts are
// dropped, so the result may have fewer than len(boundaries)+1 entries.
func (t *Table) Partition(boundaries []int) []*Table {
	var parts []*Table
	prev := 0
	for _, b := range boundaries {
		if b < prev || b > t.Len() {
			continue
		}
		if b > prev {
			parts = append(parts, t.Slice(prev, b))
		}
		prev = b
	}
	if t.Len() > prev {
		parts = append(parts, t.Slice(prev, t.Len()))
	}
	return parts
}

// DropLastRow removes the trailing row. Raw files can end mid-write when the
// device is interrupted, so the loader always discards the final line.
func (t *Table) DropLastRow() {
	n := t.Len()
	if n == 0 {
		return
	}
	t.Timestamps = t.Timestamps[:n-1]
	for _, c := range t.Columns {
		t.Values[c] = t.Values[c][:n-1]
	}
}

// allNaN reports whether every entry of the named column is NaN.
func (t *Table) allNaN(column string) bool {
	vals, ok := t.Values[column]
	if !ok {
		return true
	}
	for _, v := range vals {
		if !math.IsNaN(v) {
			return false
		}
	}
	return true
}
