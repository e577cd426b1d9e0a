package sim

// AnyOf returns an event that fires as soon as one of events is processed.
// Its value is the event that won. The losing callbacks are removed.
func (env *Env) AnyOf(events ...*Event) *Event {
	cond := env.NewEvent()
	for _, e := range events {
		if e.processed {
			cond.triggered = true
			cond.processed = true
			cond.value = e
			return cond
		}
	}

	var handles []Handle
	for _, e := range events {
		h := e.OnFire(func(fired *Event) {
			if cond.triggered {
				return
			}
			cond.triggered = true
			cond.value = fired
			for _, h := range handles {
				h.Remove()
			}
			cond.fire()
		})
		handles = append(handles, h)
	}
	return cond
}

// Lock serializes critical sections across processes, FIFO.
type Lock struct {
	env     *Env
	held    bool
	waiters []*Event
}

func (env *Env) NewLock() *Lock { return &Lock{env: env} }

// Acquire returns an event that is processed once the caller owns the lock.
func (l *Lock) Acquire() *Event {
	e := l.env.NewEvent()
	if !l.held {
		l.held = true
		e.triggered = true
		e.processed = true
		return e
	}
	l.waiters = append(l.waiters, e)
	return e
}

// Release hands the lock to the oldest waiter, if any.
func (l *Lock) Release() {
	if len(l.waiters) == 0 {
		l.held = false
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	next.Trigger(nil, Urgent)
}

func (l *Lock) Held() bool { return l.held }
