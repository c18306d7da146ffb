// Package function resolves a user handler into one of the five supported
// shapes once, at registration, and invokes it uniformly afterwards.
//
// Supported shapes:
//
//	http:                  func(http.ResponseWriter, *http.Request) or http.Handler
//	event:                 func(context.Context, T, *event.Context) error
//	event with callback:   func(context.Context, T, *event.Context, function.Callback)
//	cloudevent:            func(context.Context, event.CloudEvent) error
//	cloudevent w/callback: func(context.Context, event.CloudEvent, function.Callback)
//
// T is any type the event data can be JSON decoded into; json.RawMessage
// receives the data untouched.
package function

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/aura-studio/funcframe/event"
)

// SignatureType is the call contract the hosted function is written against.
type SignatureType string

const (
	SignatureHTTP       SignatureType = "http"
	SignatureEvent      SignatureType = "event"
	SignatureCloudEvent SignatureType = "cloudevent"
)

func ParseSignatureType(s string) (SignatureType, error) {
	switch t := SignatureType(strings.ToLower(strings.TrimSpace(s))); t {
	case SignatureHTTP, SignatureEvent, SignatureCloudEvent:
		return t, nil
	}
	return "", configErr("signature type", "unsupported signature type %q", s)
}

// Shape is the event envelope handlers of this signature type receive.
func (s SignatureType) Shape() event.Shape {
	switch s {
	case SignatureEvent:
		return event.ShapeBackground
	case SignatureCloudEvent:
		return event.ShapeCloudEvent
	}
	return 0
}

// Kind is the resolved handler shape.
type Kind int

const (
	KindHTTP Kind = iota + 1
	KindEvent
	KindEventCallback
	KindCloudEvent
	KindCloudEventCallback
)

func (k Kind) String() string {
	switch k {
	case KindHTTP:
		return "http"
	case KindEvent:
		return "event"
	case KindEventCallback:
		return "event+callback"
	case KindCloudEvent:
		return "cloudevent"
	case KindCloudEventCallback:
		return "cloudevent+callback"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Callback completes a callback-style handler. Only the first call counts.
type Callback func(err error, result any)

// Done receives the outcome of an event invocation.
type Done func(result any, err error)

type (
	CloudEventFunc         func(context.Context, event.CloudEvent) error
	CloudEventCallbackFunc func(context.Context, event.CloudEvent, Callback)
)

type eventInvoker func(ctx context.Context, ev *event.Event, done Done)

// Function is a resolved handler.
type Function struct {
	Name      string
	Signature SignatureType
	Kind      Kind

	handler http.Handler
	invoke  eventInvoker
}

var (
	contextType    = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	metaType       = reflect.TypeOf((*event.Context)(nil))
	callbackType   = reflect.TypeOf(Callback(nil))
	rawMessageType = reflect.TypeOf(json.RawMessage(nil))
)

// New resolves fn against sig. A handler that does not fit sig is a
// ConfigurationError.
func New(name string, sig SignatureType, fn any) (*Function, error) {
	if fn == nil {
		return nil, configErr("function", "%q: nil handler", name)
	}
	f := &Function{Name: name, Signature: sig}

	switch sig {
	case SignatureHTTP:
		switch h := fn.(type) {
		case http.Handler:
			f.handler = h
		case func(http.ResponseWriter, *http.Request):
			f.handler = http.HandlerFunc(h)
		default:
			return nil, configErr("function", "%q: %T is not an http handler", name, fn)
		}
		f.Kind = KindHTTP

	case SignatureCloudEvent:
		switch h := fn.(type) {
		case func(context.Context, event.CloudEvent) error:
			f.Kind, f.invoke = KindCloudEvent, cloudEventInvoker(h)
		case CloudEventFunc:
			f.Kind, f.invoke = KindCloudEvent, cloudEventInvoker(h)
		case func(context.Context, event.CloudEvent, Callback):
			f.Kind, f.invoke = KindCloudEventCallback, cloudEventCallbackInvoker(h)
		case func(context.Context, event.CloudEvent, func(error, any)):
			f.Kind, f.invoke = KindCloudEventCallback, cloudEventCallbackInvoker(func(ctx context.Context, ce event.CloudEvent, cb Callback) { h(ctx, ce, cb) })
		case CloudEventCallbackFunc:
			f.Kind, f.invoke = KindCloudEventCallback, cloudEventCallbackInvoker(h)
		default:
			return nil, configErr("function", "%q: %T is not a cloudevent handler", name, fn)
		}

	case SignatureEvent:
		kind, invoke, err := resolveEvent(fn)
		if err != nil {
			return nil, configErr("function", "%q: %v", name, err)
		}
		f.Kind, f.invoke = kind, invoke

	default:
		return nil, configErr("signature type", "unsupported signature type %q", sig)
	}
	return f, nil
}

func resolveEvent(fn any) (Kind, eventInvoker, error) {
	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return 0, nil, fmt.Errorf("%T is not a function", fn)
	}
	if t.NumIn() < 3 || t.In(0) != contextType || t.In(2) != metaType {
		return 0, nil, fmt.Errorf("%v: want func(context.Context, T, *event.Context, ...)", t)
	}
	dataType := t.In(1)

	switch {
	case t.NumIn() == 3 && t.NumOut() == 1 && t.Out(0) == errorType:
		return KindEvent, func(ctx context.Context, ev *event.Event, done Done) {
			args, err := eventArgs(ctx, ev, dataType)
			if err != nil {
				done(nil, err)
				return
			}
			out := v.Call(args)
			err, _ = out[0].Interface().(error)
			done(nil, wrapHandlerErr(err))
		}, nil

	case t.NumIn() == 4 && t.NumOut() == 0 && callbackType.AssignableTo(t.In(3)):
		return KindEventCallback, func(ctx context.Context, ev *event.Event, done Done) {
			args, err := eventArgs(ctx, ev, dataType)
			if err != nil {
				done(nil, err)
				return
			}
			cb := Callback(func(err error, result any) { done(result, wrapHandlerErr(err)) })
			v.Call(append(args, reflect.ValueOf(cb)))
		}, nil
	}
	return 0, nil, fmt.Errorf("%v: want an error result, or a trailing callback and no results", t)
}

func eventArgs(ctx context.Context, ev *event.Event, dataType reflect.Type) ([]reflect.Value, error) {
	if ev == nil || ev.Background == nil {
		return nil, fmt.Errorf("function: event handler needs a background event")
	}
	data := reflect.New(dataType)
	raw := ev.Background.Data
	switch {
	case dataType == rawMessageType:
		data.Elem().Set(reflect.ValueOf(append(json.RawMessage(nil), raw...)))
	case len(raw) > 0:
		if err := json.Unmarshal(raw, data.Interface()); err != nil {
			return nil, &event.MalformedEventError{Reason: fmt.Sprintf("data does not decode into %v", dataType), Err: err}
		}
	}
	meta := ev.Background.Context
	return []reflect.Value{reflect.ValueOf(ctx), data.Elem(), reflect.ValueOf(&meta)}, nil
}

func cloudEventInvoker(h func(context.Context, event.CloudEvent) error) eventInvoker {
	return func(ctx context.Context, ev *event.Event, done Done) {
		if ev == nil || ev.CloudEvent == nil {
			done(nil, fmt.Errorf("function: cloudevent handler needs a cloud event"))
			return
		}
		done(nil, wrapHandlerErr(h(ctx, *ev.CloudEvent)))
	}
}

func cloudEventCallbackInvoker(h func(context.Context, event.CloudEvent, Callback)) eventInvoker {
	return func(ctx context.Context, ev *event.Event, done Done) {
		if ev == nil || ev.CloudEvent == nil {
			done(nil, fmt.Errorf("function: cloudevent handler needs a cloud event"))
			return
		}
		h(ctx, *ev.CloudEvent, func(err error, result any) { done(result, wrapHandlerErr(err)) })
	}
}

func wrapHandlerErr(err error) error {
	if err == nil {
		return nil
	}
	return &HandlerError{Cause: err}
}

// ServeHTTP runs an http handler. It panics for other kinds.
func (f *Function) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.handler == nil {
		panic(fmt.Sprintf("function %q: ServeHTTP on a %v handler", f.Name, f.Kind))
	}
	f.handler.ServeHTTP(w, r)
}

// Invoke runs an event or cloudevent handler with ev, which must already be in
// the shape the signature type expects. done is called when the handler
// returns or calls back; a callback handler may call it more than once, and
// may call it from another goroutine.
func (f *Function) Invoke(ctx context.Context, ev *event.Event, done Done) {
	if f.invoke == nil {
		panic(fmt.Sprintf("function %q: Invoke on a %v handler", f.Name, f.Kind))
	}
	f.invoke(ctx, ev, done)
}

// UsesCallback reports whether completion is signalled through a callback.
func (f *Function) UsesCallback() bool {
	return f.Kind == KindEventCallback || f.Kind == KindCloudEventCallback
}
