package bouts

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

const (
	// logHeaderLines is the number of device metadata lines before the
	// CSV header in log.csv.
	logHeaderLines = 5

	logBoutStart = "Updating walking status from false to true"
	logBoutEnd   = "Updating walking status from true to false"
)

// FromDeviceLog derives bouts from a device log.csv, used only when a
// session has no labels.json. The log's paired status-transition lines mark
// bout starts and ends. A leading end with no matching start and a trailing
// start with no matching end are dropped; the remainder is zipped index-wise
// into intervals.
func FromDeviceLog(data []byte) ([]Bout, error) {
	// Skip the device metadata preamble.
	for i := 0; i < logHeaderLines; i++ {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			return nil, fmt.Errorf("device log shorter than %d header lines", logHeaderLines)
		}
		data = data[idx+1:]
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("device log has no column header")
	}

	msgCol, tsCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(name) {
		case "message", "Message":
			msgCol = i
		case "ns_since_reboot":
			tsCol = i
		}
	}
	if msgCol < 0 || tsCol < 0 {
		return nil, fmt.Errorf("device log missing message or ns_since_reboot column")
	}

	var starts, ends []int64
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse device log: %w", err)
		}
		if msgCol >= len(record) || tsCol >= len(record) {
			continue
		}
		ts := parseLogTimestamp(record[tsCol])
		switch {
		case strings.Contains(record[msgCol], logBoutStart):
			starts = append(starts, ts)
		case strings.Contains(record[msgCol], logBoutEnd):
			ends = append(ends, ts)
		}
	}

	// An end recorded before the first start belongs to a bout begun
	// before this recording; drop it.
	if len(ends) > 0 && (len(starts) == 0 || ends[0] < starts[0]) {
		ends = ends[1:]
	}
	// A start with no end means the recording stopped mid-bout; drop the
	// dangling tail.
	if len(starts) > len(ends) {
		starts = starts[:len(ends)]
	}
	if len(ends) > len(starts) {
		ends = ends[:len(starts)]
	}

	bouts := make([]Bout, 0, len(starts))
	for i := range starts {
		bouts = append(bouts, Bout{StartNs: starts[i], EndNs: ends[i]}.Normalize())
	}
	return bouts, nil
}

func parseLogTimestamp(s string) int64 {
	s = strings.TrimSpace(s)
	var v int64
	var frac float64
	if _, err := fmt.Sscanf(s, "%d", &v); err == nil {
		return v
	}
	if _, err := fmt.Sscanf(s, "%g", &frac); err == nil {
		return int64(frac)
	}
	return 0
}
