package bouts

import (
	"encoding/json"
	"fmt"
)

// Decode parses a labels.json payload. Three historical shapes are accepted:
//
//   - an array of {start, end, label?, confidence?} objects
//   - an array of [start, end, ...] arrays (older exports)
//   - an object wrapping one of the above under "bouts", "labels" or
//     "smoking_bouts"
//
// Elements that are not at least a two-value start/end pair are skipped, not
// errors. List order is preserved: it is insertion order, not temporal order.
func Decode(data []byte) ([]Bout, error) {
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err == nil {
		for _, key := range []string{"bouts", "labels", "smoking_bouts"} {
			if inner, ok := wrapper[key]; ok {
				return decodeList(inner)
			}
		}
		return nil, fmt.Errorf("labels object has none of bouts/labels/smoking_bouts")
	}
	return decodeList(data)
}

func decodeList(data []byte) ([]Bout, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("labels payload is not a list: %w", err)
	}

	bouts := make([]Bout, 0, len(raw))
	for _, item := range raw {
		var obj struct {
			Start      *float64 `json:"start"`
			End        *float64 `json:"end"`
			Label      string   `json:"label"`
			Confidence *float64 `json:"confidence"`
		}
		if err := json.Unmarshal(item, &obj); err == nil && obj.Start != nil && obj.End != nil {
			bouts = append(bouts, Bout{
				StartNs:    int64(*obj.Start),
				EndNs:      int64(*obj.End),
				Label:      obj.Label,
				Confidence: obj.Confidence,
			}.Normalize())
			continue
		}

		var pair []float64
		if err := json.Unmarshal(item, &pair); err == nil {
			if len(pair) < 2 {
				// Malformed shape: skipped rather than fatal.
				continue
			}
			bouts = append(bouts, Bout{
				StartNs: int64(pair[0]),
				EndNs:   int64(pair[1]),
			}.Normalize())
			continue
		}
		// Unrecognised element shape: skip.
	}
	return bouts, nil
}
