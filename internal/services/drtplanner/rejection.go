package drtplanner

import "fmt"

// Reason classifies why no DRT alternative was produced.
type Reason string

const (
	ReasonNoStop        Reason = "no_stop"
	ReasonTooShort      Reason = "too_short_drt_leg"
	ReasonUndeliverable Reason = "undeliverable"
	ReasonUnassigned    Reason = "unassigned"
	ReasonOvernight     Reason = "overnight_trip"
	ReasonOneLeg        Reason = "one_leg"
	ReasonTooLate       Reason = "too_late_request"
	ReasonTooLongPT     Reason = "too_long_pt_trip"
)

// Counter is the accounting key incremented for the reason.
func (r Reason) Counter() string {
	switch r {
	case ReasonNoStop:
		return "no_suitable_pt_stop"
	case ReasonUndeliverable:
		return "undeliverable_drt"
	case ReasonUnassigned:
		return "unassigned_drt_trips"
	}
	return string(r)
}

// Rejection is a recoverable planning outcome; callers count it and move on.
type Rejection struct {
	Reason Reason
	Detail string
}

func (r *Rejection) Error() string {
	if r.Detail == "" {
		return "drt rejected: " + string(r.Reason)
	}
	return fmt.Sprintf("drt rejected: %s: %s", r.Reason, r.Detail)
}

func reject(reason Reason, format string, args ...any) *Rejection {
	return &Rejection{Reason: reason, Detail: fmt.Sprintf(format, args...)}
}
