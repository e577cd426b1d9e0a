package domain

import "fmt"

// Represents one stop of a traveler's day plan.
// At least one of StartTime and EndTime is set; times are simulation seconds.
type Activity struct {
	Type      string   `json:"type"`
	Coord     Coord    `json:"coord"`
	ZoneID    int      `json:"zone"`
	StartTime *float64 `json:"start_time,omitempty"`
	EndTime   *float64 `json:"end_time,omitempty"`
}

func (a *Activity) Validate() error {
	if a.StartTime == nil && a.EndTime == nil {
		return fmt.Errorf("activity %s: neither start nor end time is set", a.Type)
	}
	if a.StartTime != nil && a.EndTime != nil && *a.EndTime < *a.StartTime {
		return fmt.Errorf("activity %s: ends before it starts", a.Type)
	}
	return nil
}

// Float is a helper for building optional activity times.
func Float(v float64) *float64 { return &v }
