package bouts

// Range is one segment's [StartNs, EndNs] span on the parent timeline.
type Range struct {
	StartNs int64
	EndNs   int64
}

// Contains reports whether ts lies within the range, inclusive on both ends.
func (r Range) Contains(ts int64) bool {
	return r.StartNs <= ts && ts <= r.EndNs
}

// Reallocate redistributes a parent session's bouts over the segment ranges
// produced by a split. Ranges must be non-overlapping and ordered; segments
// are contiguous row partitions of one timeline, and the segmenter must
// uphold that before calling here.
//
// For each parent bout the segments are scanned in order and, per segment,
// four rules are tried in priority order:
//
//  1. fully contained          -> copied unmodified
//  2. overlaps the left edge   -> clipped to [seg.StartNs, bout.EndNs]
//  3. overlaps the right edge  -> clipped to [bout.StartNs, seg.EndNs]
//  4. spans the whole segment  -> clipped to [seg.StartNs, seg.EndNs]
//
// The first rule that matches wins and the bout is assigned to exactly that
// one segment; it is never duplicated even when it degenerately overlaps
// several. A bout matching nothing lies entirely in a gap outside all
// segments and is silently dropped. First-match-wins rather than best-match
// is load-bearing legacy behaviour: downstream tooling depends on a clipped
// bout landing in the earliest overlapping segment.
//
// Labels and confidence are carried through unchanged on every path; an
// empty label gets DefaultLabel.
func Reallocate(parent []Bout, segments []Range) [][]Bout {
	out := make([][]Bout, len(segments))
	for i := range out {
		out[i] = []Bout{}
	}

	for _, b := range parent {
		b = b.Normalize()
		for i, seg := range segments {
			clipped, ok := clipToSegment(b, seg)
			if ok {
				out[i] = append(out[i], clipped)
				break
			}
		}
	}
	return out
}

func clipToSegment(b Bout, seg Range) (Bout, bool) {
	startIn := seg.Contains(b.StartNs)
	endIn := seg.Contains(b.EndNs)

	switch {
	case startIn && endIn:
		return b, true
	case b.StartNs < seg.StartNs && endIn:
		b.StartNs = seg.StartNs
		return b, true
	case startIn && b.EndNs > seg.EndNs:
		b.EndNs = seg.EndNs
		return b, true
	case b.StartNs < seg.StartNs && b.EndNs > seg.EndNs:
		b.StartNs = seg.StartNs
		b.EndNs = seg.EndNs
		return b, true
	}
	return Bout{}, false
}
