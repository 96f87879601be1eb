// Package bouts defines labeled time intervals over a recording's timeline
// and the rules for re-projecting them onto split segments.
package bouts

import "encoding/json"

// DefaultLabel is applied to bouts whose source carries no label. Legacy
// recordings predate per-bout labels and were all smoking observations.
const DefaultLabel = "smoking"

// Bout is a labeled interval in the session's timestamp space. StartNs and
// EndNs use the same ns-since-reboot counter as the sample data, with the
// invariant StartNs <= EndNs.
type Bout struct {
	StartNs    int64    `json:"start"`
	EndNs      int64    `json:"end"`
	Label      string   `json:"label,omitempty"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// Normalize fills the default label on an unlabeled bout and swaps a
// reversed interval.
func (b Bout) Normalize() Bout {
	if b.Label == "" {
		b.Label = DefaultLabel
	}
	if b.EndNs < b.StartNs {
		b.StartNs, b.EndNs = b.EndNs, b.StartNs
	}
	return b
}

// Encode marshals a bout list to the JSON stored in the sessions table. A
// nil list encodes as an empty array, never null.
func Encode(bouts []Bout) ([]byte, error) {
	if bouts == nil {
		bouts = []Bout{}
	}
	return json.Marshal(bouts)
}
