package behaviour

import "fmt"

type State string

const (
	StateInitial  State = "initial"
	StateActivity State = "activity"
	StatePlanning State = "planning"
	StateChoosing State = "choosing"
	StateTrip     State = "trip"
	StateFinal    State = "final"
)

type Transition string

const (
	Activate    Transition = "activate"
	Plan        Transition = "plan"
	Choose      Transition = "choose"
	ExecuteTrip Transition = "execute_trip"
	Reactivate  Transition = "reactivate"
	Finalize    Transition = "finalize"

	Unactivatable   Transition = "unactivatable"
	Unplannable     Transition = "unplannable"
	Unchoosable     Transition = "unchoosable"
	Unreactivatable Transition = "unreactivatable"
)

var transitions = map[Transition]struct {
	from State
	to   State
}{
	Activate:        {StateInitial, StateActivity},
	Plan:            {StateActivity, StatePlanning},
	Choose:          {StatePlanning, StateChoosing},
	ExecuteTrip:     {StateChoosing, StateTrip},
	Reactivate:      {StateTrip, StateActivity},
	Finalize:        {StateTrip, StateFinal},
	Unactivatable:   {StateInitial, StateFinal},
	Unplannable:     {StatePlanning, StateFinal},
	Unchoosable:     {StateChoosing, StateFinal},
	Unreactivatable: {StateTrip, StateFinal},
}

// Counter is the accounting key of an exceptional exit, or "" for regular transitions.
func (tr Transition) Counter() string {
	switch tr {
	case Unactivatable, Unplannable, Unchoosable, Unreactivatable:
		return string(tr) + "_persons"
	}
	return ""
}

// machine is the traveler lifecycle.
type machine struct {
	state State
	// exit is the transition that reached StateFinal.
	exit Transition
}

func (m *machine) fire(tr Transition) error {
	t, ok := transitions[tr]
	if !ok {
		return fmt.Errorf("fsm: unknown transition %q", tr)
	}
	if m.state != t.from {
		return fmt.Errorf("fsm: %s not allowed in state %s", tr, m.state)
	}
	m.state = t.to
	if t.to == StateFinal {
		m.exit = tr
	}
	return nil
}
