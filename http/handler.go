package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/aura-studio/funcframe/deadline"
	"github.com/aura-studio/funcframe/event"
	"github.com/aura-studio/funcframe/execution"
	"github.com/aura-studio/funcframe/function"
	"github.com/aura-studio/funcframe/logging"
	"github.com/aura-studio/funcframe/response"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	InvocationContext = "invocation"
)

// statusError is a pipeline error with a fixed status.
type statusError struct {
	status int
	err    error
}

func (e *statusError) Error() string   { return e.err.Error() }
func (e *statusError) Unwrap() error   { return e.err }
func (e *statusError) StatusCode() int { return e.status }

var errNotFinalized = errors.New("http: request left the pipeline without a response")

// invocation is the pipeline state of one request. It never refers to the
// gin.Context, which is recycled as soon as the request returns.
type invocation struct {
	start     time.Time
	record    *execution.Record
	writer    *response.Writer
	finalizer *response.Finalizer
	deadline  deadline.Controller
	logger    *zap.Logger
	body      []byte
	event     *event.Event
}

func (e *Engine) InstallHandlers() {
	e.Use(e.Invocation, e.Body, e.Translate, e.FilterRoutes)

	if e.signature == function.SignatureHTTP {
		e.Any("/*path", e.Dispatch)
		e.NoRoute(e.Dispatch)
		return
	}
	e.POST("/*path", e.Dispatch)
	e.NoRoute(e.PageNotFound)
}

func invocationFrom(c *gin.Context) *invocation {
	return c.MustGet(InvocationContext).(*invocation)
}

// Invocation creates the execution record, arms the deadline and waits for
// the response to be finalized before handing the request back to gin.
func (e *Engine) Invocation(c *gin.Context) {
	token := execution.NewToken(c.Request.Context())
	rec := execution.NewRecord(c.Request.Header, token)
	c.Writer.Header().Set(execution.HeaderExecutionID, rec.ExecutionID)

	inv := &invocation{
		start:  time.Now(),
		record: rec,
		writer: response.NewWriter(c.Writer),
		logger: e.logger.With(logging.Fields(rec)...),
	}
	inv.finalizer = response.NewFinalizer(inv.writer,
		func(response.Outcome) { inv.deadline.Disarm() },
		e.observe(inv),
	)

	clientCtx := c.Request.Context()
	c.Request = c.Request.WithContext(execution.Bind(token.Context(), rec))
	c.Set(InvocationContext, inv)

	inv.deadline.Arm(e.Timeout, func() {
		token.Cancel(execution.ReasonTimeout, deadline.ErrTimeout)
		inv.finalizer.Finalize(response.TimedOut{})
	})
	stop := context.AfterFunc(clientCtx, func() {
		// a transport deadline is a timeout, not a disconnect
		if errors.Is(clientCtx.Err(), context.DeadlineExceeded) {
			if token.Cancel(execution.ReasonTimeout, deadline.ErrTimeout) {
				inv.finalizer.Finalize(response.TimedOut{})
			}
			return
		}
		if token.Cancel(execution.ReasonClientDisconnect, execution.ErrClientDisconnect) {
			inv.finalizer.Finalize(response.Errored{Cause: execution.ErrClientDisconnect})
		}
	})

	if e.Metrics != nil {
		e.Metrics.InFlight.Inc()
		defer e.Metrics.InFlight.Dec()
	}

	c.Next()

	inv.finalizer.Finalize(response.Errored{Cause: errNotFinalized})
	<-inv.finalizer.Done()
	stop()
	inv.deadline.Disarm()
	token.Release()
}

// Body reads the whole request body, bounded by MaxBodyBytes, and keeps it
// available as the raw body.
func (e *Engine) Body(c *gin.Context) {
	inv := invocationFrom(c)
	if c.Request.Body == nil || c.Request.Body == http.NoBody {
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, e.MaxBodyBytes))
	c.Request.Body.Close()
	if err != nil {
		status := http.StatusBadRequest
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			status = http.StatusRequestEntityTooLarge
		}
		inv.finalizer.Finalize(response.Errored{Cause: &statusError{status: status, err: fmt.Errorf("read body: %w", err)}})
		c.Abort()
		return
	}

	inv.body = body
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	c.Request = c.Request.WithContext(execution.WithRawBody(c.Request.Context(), body))
}

// Translate normalizes event bodies into the shape the function expects.
func (e *Engine) Translate(c *gin.Context) {
	if e.signature == function.SignatureHTTP || c.Request.Method != http.MethodPost {
		return
	}
	inv := invocationFrom(c)

	ev, err := event.ToUnified(&event.Request{
		Method: c.Request.Method,
		Path:   c.Request.URL.Path,
		Header: c.Request.Header,
		Body:   inv.body,
	}, e.signature.Shape())
	if err != nil {
		inv.finalizer.Finalize(response.Errored{Cause: err})
		c.Abort()
		return
	}
	inv.event = ev
}

// FilterRoutes answers ignored paths with 404 before dispatch.
func (e *Engine) FilterRoutes(c *gin.Context) {
	if e.ignored == nil || !e.ignored.MatchString(c.Request.URL.Path) {
		return
	}
	if e.Metrics != nil {
		e.Metrics.Ignored.Inc()
	}
	invocationFrom(c).finalizer.Finalize(response.Responded{Status: http.StatusNotFound})
	c.Abort()
}

// Dispatch calls the function and waits until some completion path has
// finalized the response.
func (e *Engine) Dispatch(c *gin.Context) {
	inv := invocationFrom(c)
	defer c.Abort()
	if inv.finalizer.Claimed() {
		return
	}

	req := c.Request
	go func() {
		if err := e.doSafe(func() { e.call(inv, req) }); err != nil {
			inv.finalizer.Finalize(response.Errored{Cause: err})
		}
	}()
	<-inv.finalizer.Done()
}

func (e *Engine) call(inv *invocation, req *http.Request) {
	if e.Options.Function.Kind == function.KindHTTP {
		e.Options.Function.ServeHTTP(inv.writer, req)
		inv.finalizer.Finalize(response.Responded{Status: http.StatusOK})
		return
	}

	var calls atomic.Int32
	e.Options.Function.Invoke(req.Context(), inv.event, func(result any, err error) {
		if calls.Add(1) > 1 {
			inv.logger.Debug("ignoring extra callback call", zap.Error(err))
			return
		}
		if err != nil {
			inv.finalizer.Finalize(response.Errored{Cause: err})
			return
		}
		inv.finalizer.Finalize(response.FromResult(result))
	})
}

func (e *Engine) PageNotFound(c *gin.Context) {
	invocationFrom(c).finalizer.Finalize(response.Responded{
		Status: http.StatusNotFound,
		Header: http.Header{"Content-Type": {"text/plain; charset=utf-8"}},
		Body:   []byte("404 page not found"),
	})
	c.Abort()
}

// observe logs and counts the finalized outcome.
func (e *Engine) observe(inv *invocation) response.Hook {
	return func(o response.Outcome) {
		status := response.StatusOf(o)
		elapsed := time.Since(inv.start)
		if e.Metrics != nil {
			e.Metrics.Observe(string(e.signature), response.Label(o), status, elapsed)
			if _, ok := o.(response.TimedOut); ok {
				e.Metrics.Timeouts.Inc()
			}
		}

		switch o := o.(type) {
		case response.TimedOut:
			inv.logger.Warn("function timed out", zap.Duration("timeout", e.Timeout))
		case response.Errored:
			var he *function.HandlerError
			switch {
			case errors.As(o.Cause, &he) && he.Panicked():
				inv.logger.Error("function panicked", zap.Error(he.Cause), zap.ByteString("stack", he.Stack))
			case errors.As(o.Cause, &he):
				inv.logger.Error("function failed", zap.Error(he.Cause))
			case errors.Is(o.Cause, execution.ErrClientDisconnect):
				inv.logger.Info("client disconnected")
			default:
				inv.logger.Warn("request rejected", zap.Int("status", status), zap.Error(o.Cause))
			}
		}
		inv.logger.Debug("invocation finalized",
			zap.String("outcome", response.Label(o)),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
		)
	}
}

func (e *Engine) doSafe(f func()) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &function.HandlerError{Cause: fmt.Errorf("panic: %v", v), Stack: debug.Stack()}
		}
	}()

	f()

	return nil
}
