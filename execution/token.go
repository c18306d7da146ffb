package execution

import (
	"context"
	"errors"
	"sync/atomic"
)

// Reason says why a token was cancelled.
type Reason int32

const (
	ReasonNone Reason = iota
	ReasonTimeout
	ReasonClientDisconnect

	released Reason = -1
)

func (r Reason) String() string {
	switch r {
	case ReasonTimeout:
		return "timeout"
	case ReasonClientDisconnect:
		return "client-disconnect"
	default:
		return "none"
	}
}

var (
	ErrClientDisconnect = errors.New("execution: client disconnected")
	errReleased         = errors.New("execution: request completed")
)

// Token is the per-request cancellation handle. It moves from active to
// cancelled exactly once and never back. Cancellation is advisory: handlers
// observe it through Done, Cancelled or OnCancel and stop on their own.
type Token struct {
	ctx    context.Context
	cancel context.CancelCauseFunc
	reason atomic.Int32
}

// NewToken creates an active token. The token's context carries parent's
// values but not its cancellation, so only Cancel and Release end it.
func NewToken(parent context.Context) *Token {
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	return &Token{ctx: ctx, cancel: cancel}
}

// Cancel moves the token to cancelled with reason. It reports whether this
// call made the transition.
func (t *Token) Cancel(reason Reason, cause error) bool {
	if reason == ReasonNone {
		return false
	}
	if !t.reason.CompareAndSwap(int32(ReasonNone), int32(reason)) {
		return false
	}
	t.cancel(cause)
	return true
}

// Release frees the token's resources once the response is complete. Done is
// closed afterwards, Cancelled keeps reporting false and later Cancel calls
// are no-ops.
func (t *Token) Release() {
	t.reason.CompareAndSwap(int32(ReasonNone), int32(released))
	t.cancel(errReleased)
}

func (t *Token) Cancelled() bool { return t.Reason() != ReasonNone }

func (t *Token) Reason() Reason {
	r := Reason(t.reason.Load())
	if r == released {
		return ReasonNone
	}
	return r
}

func (t *Token) Done() <-chan struct{} { return t.ctx.Done() }

// Err returns the cause passed to Cancel, or nil while the token is active.
func (t *Token) Err() error {
	if !t.Cancelled() {
		return nil
	}
	return context.Cause(t.ctx)
}

// Context returns a context that is done when the token is cancelled or
// released.
func (t *Token) Context() context.Context { return t.ctx }

// OnCancel arranges for f to run in its own goroutine once the token is
// cancelled. The returned stop function unregisters f.
func (t *Token) OnCancel(f func()) (stop func() bool) {
	return context.AfterFunc(t.ctx, func() {
		if t.Cancelled() {
			f()
		}
	})
}
