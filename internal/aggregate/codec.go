package aggregate

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"zerobyte/internal/bitmap"
)

// Row is the column layout the SQL backends persist. Counters are kept in
// their own columns for inspection; the rest travels as a JSON document.
type Row struct {
	ActiveWorkers int64
	TotalZeroBits int64
	Generation    int64
	State         string
}

type state struct {
	Geometry  Geometry             `json:"geometry"`
	Leases    map[string]time.Time `json:"leases,omitempty"`
	Claimed   bitmap.Bitmap        `json:"claimed,omitempty"`
	Degraded  bool                 `json:"degraded,omitempty"`
	Completed []Outcome            `json:"completed,omitempty"`
}

// EncodeRow converts rec to its persisted form.
func EncodeRow(rec Record) (Row, error) {
	if rec.TotalZeroBits > math.MaxInt64 || rec.Generation > math.MaxInt64 {
		return Row{}, fmt.Errorf("aggregate: counter overflows a signed 64-bit column")
	}
	raw, err := json.Marshal(state{
		Geometry:  rec.Geometry,
		Leases:    rec.Leases,
		Claimed:   rec.Claimed,
		Degraded:  rec.Degraded,
		Completed: rec.Completed,
	})
	if err != nil {
		return Row{}, fmt.Errorf("aggregate: encode state: %w", err)
	}
	return Row{
		ActiveWorkers: int64(rec.ActiveWorkers),
		TotalZeroBits: int64(rec.TotalZeroBits),
		Generation:    int64(rec.Generation),
		State:         string(raw),
	}, nil
}

// DecodeRow converts a persisted row back into a Record.
func DecodeRow(row Row) (Record, error) {
	if row.ActiveWorkers < 0 || row.TotalZeroBits < 0 || row.Generation < 0 {
		return Record{}, fmt.Errorf("aggregate: negative counter in stored row")
	}
	rec := Record{
		ActiveWorkers: uint32(row.ActiveWorkers),
		TotalZeroBits: uint64(row.TotalZeroBits),
		Generation:    uint64(row.Generation),
	}
	if row.State == "" {
		return rec, nil
	}
	var st state
	if err := json.Unmarshal([]byte(row.State), &st); err != nil {
		return Record{}, fmt.Errorf("aggregate: decode state: %w", err)
	}
	rec.Geometry = st.Geometry
	rec.Leases = st.Leases
	rec.Claimed = st.Claimed
	rec.Degraded = st.Degraded
	rec.Completed = st.Completed
	return rec, nil
}
