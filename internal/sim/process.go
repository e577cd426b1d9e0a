package sim

import "fmt"

// parkedPanic unwinds a goroutine parked in Wait after the environment closed.
type parkedPanic struct{}

// Process is a suspendable task. Its body runs on its own goroutine but only
// while the event loop is blocked on it.
type Process struct {
	env    *Env
	name   string
	fn     func(p *Process) error
	resume chan struct{}
	done   *Event
}

// Process registers fn to start at the current time.
func (env *Env) Process(name string, fn func(p *Process) error) *Process {
	p := &Process{
		env:    env,
		name:   name,
		fn:     fn,
		resume: make(chan struct{}),
		done:   env.NewEvent(),
	}
	env.TimeoutAt(0, Normal).OnFire(func(*Event) {
		go p.run()
		p.env.waitYield()
	})
	return p
}

func (p *Process) Env() *Env    { return p.env }
func (p *Process) Name() string { return p.name }

// Done fires with the body's error (or nil) once the process returns.
func (p *Process) Done() *Event { return p.done }

func (p *Process) run() {
	var err error
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(parkedPanic); ok {
				return
			}
			err = fmt.Errorf("panic: %v", r)
		}
		if err != nil {
			p.env.fail(p.name, err)
		}
		p.done.Succeed(err)
		p.env.yield <- struct{}{}
	}()
	err = p.fn(p)
}

// Wait suspends the process until ev is processed and returns its value.
func (p *Process) Wait(ev *Event) any {
	if ev.processed {
		return ev.value
	}
	ev.OnFire(func(*Event) {
		p.resume <- struct{}{}
		p.env.waitYield()
	})
	p.env.yield <- struct{}{}
	select {
	case <-p.resume:
	case <-p.env.done:
		panic(parkedPanic{})
	}
	return ev.value
}

// Sleep waits for delay seconds.
func (p *Process) Sleep(delay float64) {
	p.Wait(p.env.Timeout(delay))
}

func (env *Env) waitYield() {
	select {
	case <-env.yield:
	case <-env.done:
	}
}
