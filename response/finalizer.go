package response

import (
	"net/http"
	"sync/atomic"
)

const HeaderStatus = "X-Google-Status"

// Hook observes the outcome once the response has been written.
type Hook func(Outcome)

// Finalizer writes exactly one Outcome to a Writer. The first Finalize call
// claims the response; later calls are discarded without error.
type Finalizer struct {
	w       *Writer
	claimed atomic.Bool
	outcome Outcome
	hooks   []Hook
	done    chan struct{}
}

// NewFinalizer wraps w. Hooks run in order after the response is written.
func NewFinalizer(w *Writer, hooks ...Hook) *Finalizer {
	return &Finalizer{w: w, hooks: hooks, done: make(chan struct{})}
}

// Finalize writes o unless another outcome got there first. It reports
// whether o won.
func (f *Finalizer) Finalize(o Outcome) bool {
	if !f.claimed.CompareAndSwap(false, true) {
		return false
	}
	f.outcome = o
	f.write(o)
	for _, h := range f.hooks {
		h(o)
	}
	close(f.done)
	return true
}

func (f *Finalizer) write(o Outcome) {
	switch o := o.(type) {
	case Responded:
		if f.w.Touched() {
			f.w.complete()
			return
		}
		f.w.replace(StatusOf(o), o.Header, o.Body)
	case Errored, TimedOut:
		status := StatusOf(o)
		f.w.replace(status, errorHeader(), []byte(http.StatusText(status)))
	}
}

func errorHeader() http.Header {
	return http.Header{
		HeaderStatus:             {"error"},
		"Content-Type":           {"text/plain; charset=utf-8"},
		"X-Content-Type-Options": {"nosniff"},
	}
}

// Done is closed once the response has been finalized.
func (f *Finalizer) Done() <-chan struct{} { return f.done }

// Claimed reports whether an outcome has been chosen. The response may still
// be in the middle of being written.
func (f *Finalizer) Claimed() bool { return f.claimed.Load() }

// Outcome returns the winning outcome. It is nil until Done is closed.
func (f *Finalizer) Outcome() Outcome {
	select {
	case <-f.done:
		return f.outcome
	default:
		return nil
	}
}
