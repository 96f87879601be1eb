package timeseries

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// DefaultTargetHz is the uniform output rate segments are resampled to.
const DefaultTargetHz = 50.0

// Resample converts an irregularly-sampled table (sorted by timestamp) to a
// uniform grid at targetHz. Rows are bucketed into fixed-width intervals of
// 1e9/targetHz nanoseconds anchored at the first timestamp; each bucket
// becomes one output row holding the per-column mean of its samples. Empty
// buckets are forward-filled from the previous bucket, which smooths over
// internal gaps shorter than the split threshold; gaps long enough to matter
// must be split before resampling, never across a boundary.
//
// The output is strictly uniformly spaced and monotonic, with no NaN values
// after the first populated bucket. Resampling an already-uniform input at
// targetHz is idempotent: one sample lands in each bucket and the mean of a
// single sample is that sample.
func Resample(t *Table, targetHz float64) *Table {
	out := NewTable(t.Columns...)
	if t.Len() == 0 || targetHz <= 0 {
		return out
	}

	bucketNs := int64(math.Round(1e9 / targetHz))
	t0 := t.Timestamps[0]
	nBuckets := int((t.Timestamps[t.Len()-1]-t0)/bucketNs) + 1

	// Gather per-bucket samples, then reduce each bucket to its mean.
	type bucket struct {
		samples map[string][]float64
	}
	buckets := make([]*bucket, nBuckets)
	for i := 0; i < t.Len(); i++ {
		bi := int((t.Timestamps[i] - t0) / bucketNs)
		if bi < 0 || bi >= nBuckets {
			continue
		}
		b := buckets[bi]
		if b == nil {
			b = &bucket{samples: make(map[string][]float64, len(t.Columns))}
			buckets[bi] = b
		}
		for _, c := range t.Columns {
			v := t.Values[c][i]
			if math.IsNaN(v) {
				continue
			}
			b.samples[c] = append(b.samples[c], v)
		}
	}

	prev := make(map[string]float64, len(t.Columns))
	for _, c := range t.Columns {
		prev[c] = math.NaN()
	}

	for bi := 0; bi < nBuckets; bi++ {
		vals := make([]float64, len(t.Columns))
		b := buckets[bi]
		for ci, c := range t.Columns {
			v := math.NaN()
			if b != nil && len(b.samples[c]) > 0 {
				v = stat.Mean(b.samples[c], nil)
			}
			if math.IsNaN(v) {
				// Forward-fill from the previous bucket. Before the
				// first populated bucket there is nothing to carry.
				v = prev[c]
			}
			prev[c] = v
			vals[ci] = v
		}
		_ = out.Append(t0+int64(bi)*bucketNs, vals...)
	}
	return out
}
