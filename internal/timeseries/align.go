package timeseries

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ErrRateMismatch reports that the accelerometer and gyroscope streams were
// recorded at materially different sample rates.
var ErrRateMismatch = errors.New("sensor sample rates differ")

// RateToleranceHz is the maximum allowed difference between the effective
// sample rates of two streams before alignment is refused.
const RateToleranceHz = 0.01

func nan() float64 { return math.NaN() }

// SampleRateHz estimates the effective sample rate of a sorted timestamp
// sequence as 1 / median(diff) scaled to Hz. Returns 0 for fewer than two
// samples.
func SampleRateHz(ts []int64) float64 {
	if len(ts) < 2 {
		return 0
	}
	diffs := make([]float64, 0, len(ts)-1)
	for i := 1; i < len(ts); i++ {
		diffs = append(diffs, float64(ts[i]-ts[i-1]))
	}
	sort.Float64s(diffs)
	median := stat.Quantile(0.5, stat.Empirical, diffs, nil)
	if median <= 0 {
		return 0
	}
	return 1e9 / median
}

// AlignAsOf merges a secondary stream onto a primary via a nearest-neighbor
// as-of join. Each primary row takes the secondary row whose timestamp is
// closest within tolNs; primary rows with no match inside the tolerance are
// dropped. The result carries the primary timestamps and both streams'
// columns.
//
// Both streams must already have the same effective sample rate; call
// CheckRates first.
func AlignAsOf(primary, secondary *Table, tolNs int64) *Table {
	out := NewTable(append(append([]string(nil), primary.Columns...), secondary.Columns...)...)

	for i, ts := range primary.Timestamps {
		j, ok := nearestWithin(secondary.Timestamps, ts, tolNs)
		if !ok {
			continue
		}
		vals := primary.Row(i)
		vals = append(vals, secondary.Row(j)...)
		// Append cannot fail here: vals is built from both column sets.
		_ = out.Append(ts, vals...)
	}
	return out
}

// CheckRates verifies the two streams' sample rates agree within
// RateToleranceHz and returns the alignment tolerance in nanoseconds
// (one sample period of the slower stream).
func CheckRates(primary, secondary *Table) (int64, error) {
	ra := SampleRateHz(primary.Timestamps)
	rb := SampleRateHz(secondary.Timestamps)
	if math.Abs(ra-rb) > RateToleranceHz {
		return 0, fmt.Errorf("%w: %.4f Hz vs %.4f Hz", ErrRateMismatch, ra, rb)
	}
	slower := math.Min(ra, rb)
	if slower <= 0 {
		return 0, fmt.Errorf("%w: cannot estimate sample rate", ErrRateMismatch)
	}
	return int64(1e9 / slower), nil
}

// nearestWithin finds the index of the value in sorted ts closest to target,
// if the distance is within tol.
func nearestWithin(ts []int64, target, tol int64) (int, bool) {
	if len(ts) == 0 {
		return 0, false
	}
	i := sort.Search(len(ts), func(k int) bool { return ts[k] >= target })

	best := -1
	var bestDist int64
	for _, cand := range []int{i - 1, i} {
		if cand < 0 || cand >= len(ts) {
			continue
		}
		d := ts[cand] - target
		if d < 0 {
			d = -d
		}
		if best == -1 || d < bestDist {
			best, bestDist = cand, d
		}
	}
	if best == -1 || bestDist > tol {
		return 0, false
	}
	return best, true
}
