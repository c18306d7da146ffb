// Package event translates between the two event envelopes a function can be
// written against: the legacy background event ({data, context}) and the
// CloudEvents envelope (structured JSON or binary ce-* headers). It also
// rewrites push payloads from the Pub/Sub emulator into background events.
//
// Everything in this package is pure: no I/O and no state.
package event

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Shape identifies which envelope an Event is held in.
type Shape int

const (
	ShapeBackground Shape = iota + 1
	ShapeCloudEvent
)

func (s Shape) String() string {
	switch s {
	case ShapeBackground:
		return "background"
	case ShapeCloudEvent:
		return "cloudevent"
	default:
		return fmt.Sprintf("shape(%d)", int(s))
	}
}

// Request is the part of an inbound invocation the translator reads.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Resource names the entity that emitted a background event. Older producers
// send an object {service, name, type}; newer ones send the bare name.
// Subject is only set for cloud event subjects that cannot be folded into
// Name, and forces the object form.
type Resource struct {
	Service string `json:"service,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Subject string `json:"subject,omitempty"`

	// Structured is true when the resource was (or must be) encoded as an object.
	Structured bool `json:"-"`
}

type resourceObject struct {
	Service string `json:"service,omitempty"`
	Name    string `json:"name,omitempty"`
	Type    string `json:"type,omitempty"`
	Subject string `json:"subject,omitempty"`
}

func (r Resource) MarshalJSON() ([]byte, error) {
	if !r.Structured {
		return json.Marshal(r.Name)
	}
	return json.Marshal(resourceObject{Service: r.Service, Name: r.Name, Type: r.Type, Subject: r.Subject})
}

func (r *Resource) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*r = Resource{Name: name}
		return nil
	}
	var obj resourceObject
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("resource must be a string or an object: %w", err)
	}
	*r = Resource{Service: obj.Service, Name: obj.Name, Type: obj.Type, Subject: obj.Subject, Structured: true}
	return nil
}

// Context is the metadata half of a background event. Absent fields stay
// empty; they are never defaulted.
type Context struct {
	EventID   string    `json:"eventId,omitempty"`
	Timestamp string    `json:"timestamp,omitempty"`
	EventType string    `json:"eventType,omitempty"`
	Resource  *Resource `json:"resource,omitempty"`
}

// Background is the legacy background event envelope.
type Background struct {
	Data    json.RawMessage `json:"data,omitempty"`
	Context Context         `json:"context"`
}

// Event is the unified representation handed to the dispatcher. Exactly one
// of Background and CloudEvent is set, as selected by Shape.
type Event struct {
	Shape      Shape
	Background *Background
	CloudEvent *CloudEvent
}

// Data returns the payload regardless of shape.
func (e *Event) Data() json.RawMessage {
	switch e.Shape {
	case ShapeBackground:
		return e.Background.Data
	case ShapeCloudEvent:
		return e.CloudEvent.Data
	}
	return nil
}

// As converts e into target, returning e itself when it already has that shape.
func (e *Event) As(target Shape) (*Event, error) {
	if e.Shape == target {
		return e, nil
	}
	switch target {
	case ShapeBackground:
		bg, err := Downgrade(e.CloudEvent)
		if err != nil {
			return nil, err
		}
		return &Event{Shape: ShapeBackground, Background: bg}, nil
	case ShapeCloudEvent:
		return &Event{Shape: ShapeCloudEvent, CloudEvent: Upgrade(e.Background)}, nil
	}
	return nil, fmt.Errorf("event: unsupported target shape %v", target)
}
