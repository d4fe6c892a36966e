// Package timerutil provides a cancelable countdown timer used by the
// ARQ retransmit loop and the reward-wait slot.
package timerutil

import "time"

// Timer wraps time.AfterFunc with an explicit Running/Stop contract so a
// slot can be torn down cleanly from another goroutine (an ACK or a
// reward arriving) without racing the fire callback.
type Timer struct {
	timer    *time.Timer
	interval time.Duration
	running  bool
}

// New creates a Timer that calls f after d elapses.
func New(d time.Duration, f func()) *Timer {
	t := &Timer{
		interval: d,
		running:  true,
	}
	t.timer = time.AfterFunc(d, t.preflight(f))
	return t
}

// preflight marks the timer as no longer running before invoking f, so a
// Running() check inside f observes the timer as already fired.
func (t *Timer) preflight(f func()) func() {
	return func() {
		t.running = false
		f()
	}
}

// Reset restarts the countdown at its original interval, used by a
// retransmit loop moving to the next attempt.
func (t *Timer) Reset() {
	if !t.timer.Stop() {
		drain(t.timer)
	}
	t.running = true
	t.timer.Reset(t.interval)
}

// Stop cancels the timer. It is safe to call on an already-fired timer.
func (t *Timer) Stop() {
	if !t.timer.Stop() {
		drain(t.timer)
	}
	t.running = false
}

// Running reports whether the timer is still counting down.
func (t *Timer) Running() bool {
	return t.running
}

func drain(t *time.Timer) {
	select {
	case <-t.C:
	default:
	}
}
