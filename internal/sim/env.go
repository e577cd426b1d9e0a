// Package sim is a single-threaded discrete-event kernel.
//
// Processes are goroutines that hand control back and forth with the
// event loop, so exactly one of them runs at any instant. Simulation time
// only advances when no event is left at the current timestamp.
// Events sharing a timestamp fire by priority, then in scheduling order.
package sim

import (
	"container/heap"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("sim: environment closed")

type queued struct {
	at    float64
	prio  Priority
	seq   uint64
	event *Event
}

type eventQueue []queued

func (q eventQueue) Len() int { return len(q) }
func (q eventQueue) Less(i, j int) bool {
	if q[i].at != q[j].at {
		return q[i].at < q[j].at
	}
	if q[i].prio != q[j].prio {
		return q[i].prio < q[j].prio
	}
	return q[i].seq < q[j].seq
}
func (q eventQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }
func (q *eventQueue) Push(x any)   { *q = append(*q, x.(queued)) }
func (q *eventQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	*q = old[:n-1]
	return it
}

// Env owns the clock, the event queue and the random source.
type Env struct {
	now    float64
	queue  eventQueue
	seq    uint64
	yield  chan struct{}
	done   chan struct{}
	closed bool
	err    error
	rng    *rand.Rand
}

// NewEnv creates an environment whose clock starts at start.
func NewEnv(start float64, seed uint64) *Env {
	return &Env{
		now:   start,
		yield: make(chan struct{}),
		done:  make(chan struct{}),
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (env *Env) Now() float64 { return env.now }

// Rand is the single seeded generator every stochastic decision draws from.
func (env *Env) Rand() *rand.Rand { return env.rng }

func (env *Env) schedule(e *Event, delay float64, prio Priority) {
	env.seq++
	heap.Push(&env.queue, queued{at: env.now + delay, prio: prio, seq: env.seq, event: e})
}

// Timeout returns an event that fires after delay seconds. Negative delays clamp to zero.
func (env *Env) Timeout(delay float64) *Event {
	return env.TimeoutAt(delay, Normal)
}

// TimeoutAt is Timeout with an explicit tie-break priority.
func (env *Env) TimeoutAt(delay float64, prio Priority) *Event {
	if delay < 0 || math.IsNaN(delay) {
		delay = 0
	}
	e := env.NewEvent()
	e.triggered = true
	env.schedule(e, delay, prio)
	return e
}

// Peek returns the time of the next event, or +Inf.
func (env *Env) Peek() float64 {
	if len(env.queue) == 0 {
		return math.Inf(1)
	}
	return env.queue[0].at
}

// Step processes the next event.
func (env *Env) Step() error {
	if env.closed {
		return ErrClosed
	}
	if len(env.queue) == 0 {
		return nil
	}
	it := heap.Pop(&env.queue).(queued)
	env.now = it.at
	it.event.fire()
	return env.err
}

// Run processes events until none remain or the next one is past until.
// The first process error stops the loop and is returned.
func (env *Env) Run(until float64) error {
	for len(env.queue) > 0 && env.Peek() <= until {
		if err := env.Step(); err != nil {
			return err
		}
	}
	if env.now < until && !math.IsInf(until, 1) {
		env.now = until
	}
	return env.err
}

// Close releases every goroutine still parked in a process.
func (env *Env) Close() {
	if env.closed {
		return
	}
	env.closed = true
	close(env.done)
}

func (env *Env) fail(name string, err error) {
	if env.err == nil {
		env.err = fmt.Errorf("process %s: %w", name, err)
	}
}
