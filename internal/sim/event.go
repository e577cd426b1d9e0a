package sim

// Priority orders events that share a timestamp. Lower runs first.
type Priority int

const (
	Urgent Priority = iota
	Normal
	Low
)

type callback struct {
	fn      func(*Event)
	removed bool
}

// Handle allows a registered callback to be dropped in constant time.
type Handle struct{ cb *callback }

// Remove detaches the callback; calling it after the event fired is harmless.
func (h Handle) Remove() {
	if h.cb != nil {
		h.cb.removed = true
	}
}

// Event is a one-shot latch. It is triggered once, scheduled on the
// queue and processed when the clock reaches it; callbacks run at processing.
type Event struct {
	env       *Env
	callbacks []*callback
	triggered bool
	processed bool
	value     any
}

func (env *Env) NewEvent() *Event { return &Event{env: env} }

// Triggered reports whether the event has been scheduled to fire.
func (e *Event) Triggered() bool { return e.triggered }

// Processed reports whether callbacks already ran.
func (e *Event) Processed() bool { return e.processed }

func (e *Event) Value() any { return e.value }

// OnFire registers fn to run when the event is processed.
// If it already was, fn runs immediately.
func (e *Event) OnFire(fn func(*Event)) Handle {
	cb := &callback{fn: fn}
	if e.processed {
		fn(e)
		return Handle{cb: cb}
	}
	e.callbacks = append(e.callbacks, cb)
	return Handle{cb: cb}
}

// Succeed schedules the event now with normal priority.
func (e *Event) Succeed(value any) bool {
	return e.Trigger(value, Normal)
}

// Trigger schedules the event at the current time with the given priority.
// It returns false if the event was already triggered.
func (e *Event) Trigger(value any, prio Priority) bool {
	if e.triggered {
		return false
	}
	e.triggered = true
	e.value = value
	e.env.schedule(e, 0, prio)
	return true
}

// fire runs callbacks in registration order, skipping removed ones.
func (e *Event) fire() {
	e.processed = true
	cbs := e.callbacks
	e.callbacks = nil
	for _, cb := range cbs {
		if cb.removed {
			continue
		}
		cb.fn(e)
	}
}
