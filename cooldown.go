package authflow

import (
	"sync"
	"time"
)

// Stopper cancels a scheduled callback. It reports whether the call was
// stopped before it ran. *time.Timer satisfies it.
type Stopper interface {
	Stop() bool
}

// Scheduler runs f once after d. The default uses time.AfterFunc; tests
// substitute a manual clock.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Stopper
}

type realScheduler struct{}

func (realScheduler) AfterFunc(d time.Duration, f func()) Stopper {
	return time.AfterFunc(d, f)
}

// CooldownTimer counts down the seconds until a resend is allowed.
//
// Exactly one tick is scheduled while Remaining is positive and none once it
// reaches zero. Arm restarts the window; it never adds to what is left.
type CooldownTimer struct {
	mu        sync.Mutex
	sched     Scheduler
	tick      time.Duration
	remaining int
	gen       uint64
	handle    Stopper
	listeners []func(remaining int)
}

// NewCooldownTimer returns an inactive timer ticking once per tick. A nil
// scheduler uses the wall clock; a non-positive tick means one second.
func NewCooldownTimer(sched Scheduler, tick time.Duration) *CooldownTimer {
	if sched == nil {
		sched = realScheduler{}
	}
	if tick <= 0 {
		tick = time.Second
	}
	return &CooldownTimer{sched: sched, tick: tick}
}

// Arm sets Remaining to seconds and restarts the countdown. A non-positive
// value behaves like Cancel.
func (t *CooldownTimer) Arm(seconds int) {
	if seconds <= 0 {
		t.Cancel()
		return
	}

	t.mu.Lock()
	t.stopLocked()
	t.remaining = seconds
	t.scheduleLocked(t.gen)
	listeners := t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, seconds)
}

// Cancel stops the countdown and resets Remaining to zero.
func (t *CooldownTimer) Cancel() {
	t.mu.Lock()
	wasActive := t.remaining > 0
	t.stopLocked()
	t.remaining = 0
	listeners := t.listenersLocked()
	t.mu.Unlock()

	if wasActive {
		notify(listeners, 0)
	}
}

func (t *CooldownTimer) IsActive() bool {
	return t.Remaining() > 0
}

// Remaining returns the whole seconds left, never negative.
func (t *CooldownTimer) Remaining() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// OnChange registers fn to be called with the new value after every change.
// fn runs without the timer's lock held and may call back into the timer.
func (t *CooldownTimer) OnChange(fn func(remaining int)) {
	if fn == nil {
		return
	}
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

func (t *CooldownTimer) stopLocked() {
	t.gen++
	if t.handle != nil {
		t.handle.Stop()
		t.handle = nil
	}
}

func (t *CooldownTimer) scheduleLocked(gen uint64) {
	t.handle = t.sched.AfterFunc(t.tick, func() { t.fire(gen) })
}

func (t *CooldownTimer) fire(gen uint64) {
	t.mu.Lock()
	// A tick from a cancelled or re-armed countdown may still run once.
	if gen != t.gen || t.remaining == 0 {
		t.mu.Unlock()
		return
	}
	t.remaining--
	if t.remaining > 0 {
		t.scheduleLocked(gen)
	} else {
		t.handle = nil
	}
	remaining := t.remaining
	listeners := t.listenersLocked()
	t.mu.Unlock()

	notify(listeners, remaining)
}

func (t *CooldownTimer) listenersLocked() []func(int) {
	if len(t.listeners) == 0 {
		return nil
	}
	out := make([]func(int), len(t.listeners))
	copy(out, t.listeners)
	return out
}

func notify(listeners []func(int), remaining int) {
	for _, fn := range listeners {
		fn(remaining)
	}
}
