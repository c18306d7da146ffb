// Package deadline arms a per-request timer that concludes an invocation from
// the response side when the handler does not finish in time.
package deadline

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// State of a Controller. Disarmed is terminal; a fired controller can only be
// disarmed.
type State int32

const (
	Idle State = iota
	Armed
	Fired
	Disarmed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Armed:
		return "armed"
	case Fired:
		return "fired"
	case Disarmed:
		return "disarmed"
	}
	return "unknown"
}

// TimeoutError is the cause recorded when the deadline fires.
type TimeoutError struct{}

func (TimeoutError) Error() string { return "deadline: invocation timed out" }

func (TimeoutError) StatusCode() int { return http.StatusGatewayTimeout }

func (TimeoutError) Timeout() bool { return true }

var ErrTimeout error = TimeoutError{}

// Controller owns one request's timer.
type Controller struct {
	state atomic.Int32
	mu    sync.Mutex
	timer *time.Timer
}

// Arm starts the timer. When d elapses before Disarm, fire runs once in its own
// goroutine. A zero or negative d arms nothing and leaves the controller idle.
// Arm on a controller that is not idle is a no-op.
func (c *Controller) Arm(d time.Duration, fire func()) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.CompareAndSwap(int32(Idle), int32(Armed)) {
		return
	}
	c.timer = time.AfterFunc(d, func() {
		if c.state.CompareAndSwap(int32(Armed), int32(Fired)) {
			fire()
		}
	})
}

// Disarm stops a pending timer and leaves the controller disarmed. It reports
// whether the timer was stopped before firing.
func (c *Controller) Disarm() bool {
	if !c.state.CompareAndSwap(int32(Armed), int32(Disarmed)) {
		c.state.Store(int32(Disarmed))
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	return true
}

func (c *Controller) State() State { return State(c.state.Load()) }
