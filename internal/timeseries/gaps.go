package timeseries

import (
	"sort"
	"time"
)

// DefaultGapThreshold is the gap size presumed to indicate a device reboot
// or recording pause.
const DefaultGapThreshold = 30 * time.Minute

// GapBoundaries scans a sorted timestamp sequence for discontinuities
// strictly exceeding threshold and returns the row index at the end of each
// gap, ascending. A gap of exactly threshold does not split.
//
// A boundary landing on the first or last row is discarded: a gap touching
// either edge of the data cannot produce two non-empty sides.
func GapBoundaries(ts []int64, threshold time.Duration) []int {
	thresholdNs := threshold.Nanoseconds()
	var boundaries []int
	for i := 1; i < len(ts); i++ {
		if ts[i]-ts[i-1] > thresholdNs {
			boundaries = append(boundaries, i)
		}
	}
	return discardEdges(boundaries, len(ts))
}

// NearestIndex maps a target timestamp onto the row whose timestamp
// minimises abs(ts - target). The sequence must be sorted and non-empty.
func NearestIndex(ts []int64, target int64) int {
	i := sort.Search(len(ts), func(k int) bool { return ts[k] >= target })
	if i == 0 {
		return 0
	}
	if i == len(ts) {
		return len(ts) - 1
	}
	if target-ts[i-1] <= ts[i]-target {
		return i - 1
	}
	return i
}

// BoundariesForTargets converts user-chosen split timestamps into row
// boundaries using the same edge-discard rule as gap detection. The result
// is ascending and de-duplicated.
func BoundariesForTargets(ts []int64, targets []int64) []int {
	if len(ts) == 0 {
		return nil
	}
	var boundaries []int
	for _, target := range targets {
		boundaries = append(boundaries, NearestIndex(ts, target))
	}
	sort.Ints(boundaries)
	return discardEdges(dedupInts(boundaries), len(ts))
}

func discardEdges(boundaries []int, n int) []int {
	out := boundaries[:0]
	for _, b := range boundaries {
		if b == 0 || b == n-1 {
			continue
		}
		out = append(out, b)
	}
	return out
}

func dedupInts(sorted []int) []int {
	out := sorted[:0]
	for i, v := range sorted {
		if i > 0 && v == sorted[i-1] {
			continue
		}
		out = append(out, v)
	}
	return out
}
