package event

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/cloudevents/sdk-go/v2/binding"
	cloudevents "github.com/cloudevents/sdk-go/v2/event"
	cehttp "github.com/cloudevents/sdk-go/v2/protocol/http"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const (
	SpecVersion = "1.0"

	// StructuredContentType marks a request body holding a whole cloud event.
	StructuredContentType = "application/cloudevents+json"

	binaryHeaderPrefix = "ce-"
)

// CloudEvent is a CloudEvents v1.0 event as handed to cloudevent functions.
// Data always holds a JSON value: payloads with a non-JSON content type are
// kept as a JSON string. Attributes outside the core set are kept in
// Extensions.
//
// Attribute encoding, validation and the binary content mode are done by the
// CloudEvents SDK.
type CloudEvent struct {
	ID              string
	Source          string
	SpecVersion     string
	Type            string
	Time            string
	Subject         string
	DataContentType string
	DataSchema      string
	Data            json.RawMessage
	Extensions      map[string]any
}

// Validate checks the required context attributes, then the attribute
// formats.
func (ce *CloudEvent) Validate() error {
	var missing []string
	if ce.ID == "" {
		missing = append(missing, "id")
	}
	if ce.Source == "" {
		missing = append(missing, "source")
	}
	if ce.SpecVersion == "" {
		missing = append(missing, "specversion")
	}
	if ce.Type == "" {
		missing = append(missing, "type")
	}
	if len(missing) > 0 {
		return malformed(nil, "cloud event is missing required attributes: %s", strings.Join(missing, ", "))
	}

	e, err := ce.sdkEvent()
	if err != nil {
		return err
	}
	if err := e.Validate(); err != nil {
		return malformed(err, "invalid cloud event")
	}
	return nil
}

// sdkEvent copies the attributes of ce into an SDK event. Data is left out.
func (ce *CloudEvent) sdkEvent() (cloudevents.Event, error) {
	e := cloudevents.New()
	if ce.SpecVersion != "" {
		e.SetSpecVersion(ce.SpecVersion)
	}
	if ce.ID != "" {
		e.SetID(ce.ID)
	}
	if ce.Source != "" {
		e.SetSource(ce.Source)
	}
	if ce.Type != "" {
		e.SetType(ce.Type)
	}
	if ce.Time != "" {
		t, err := time.Parse(time.RFC3339Nano, ce.Time)
		if err != nil {
			return e, malformed(err, "cloud event time %q is not an RFC 3339 timestamp", ce.Time)
		}
		e.SetTime(t)
	}
	if ce.Subject != "" {
		e.SetSubject(ce.Subject)
	}
	if ce.DataContentType != "" {
		e.SetDataContentType(ce.DataContentType)
	}
	if ce.DataSchema != "" {
		e.SetDataSchema(ce.DataSchema)
	}
	for k, v := range ce.Extensions {
		e.SetExtension(k, extensionValue(v))
	}
	return e, nil
}

func fromSDK(e *cloudevents.Event) *CloudEvent {
	ce := &CloudEvent{
		ID:              e.ID(),
		Source:          e.Source(),
		SpecVersion:     e.SpecVersion(),
		Type:            e.Type(),
		Subject:         e.Subject(),
		DataContentType: e.DataContentType(),
		DataSchema:      e.DataSchema(),
	}
	if t := e.Time(); !t.IsZero() {
		ce.Time = t.UTC().Format(time.RFC3339Nano)
	}
	for k, v := range e.Extensions() {
		if ce.Extensions == nil {
			ce.Extensions = make(map[string]any)
		}
		switch v := v.(type) {
		case string, bool, int32, float64:
			ce.Extensions[k] = v
		default:
			ce.Extensions[k] = fmt.Sprint(v)
		}
	}
	return ce
}

// extensionValue narrows v to a CloudEvents attribute type: integral numbers
// become int32 and other non-scalar values are sent as their JSON text.
func extensionValue(v any) any {
	switch v := v.(type) {
	case string, bool, int32:
		return v
	case int:
		if v >= math.MinInt32 && v <= math.MaxInt32 {
			return int32(v)
		}
	case float64:
		if v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			return int32(v)
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// MarshalJSON renders ce in structured mode.
func (ce CloudEvent) MarshalJSON() ([]byte, error) {
	e, err := ce.sdkEvent()
	if err != nil {
		return nil, err
	}
	b, err := e.MarshalJSON()
	if err != nil {
		return nil, malformed(err, "invalid cloud event")
	}
	if len(ce.Data) > 0 {
		if b, err = sjson.SetRawBytes(b, "data", ce.Data); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// UnmarshalJSON reads a structured mode event. A data member is kept as is;
// data_base64 is decoded.
func (ce *CloudEvent) UnmarshalJSON(b []byte) error {
	root := gjson.ParseBytes(b)
	if !root.IsObject() {
		return malformed(nil, "cloud event must be a JSON object")
	}

	var e cloudevents.Event
	if err := e.UnmarshalJSON(b); err != nil {
		return malformed(err, "invalid cloud event")
	}
	if e.Context == nil {
		return malformed(nil, "cloud event has no specversion")
	}

	*ce = *fromSDK(&e)
	switch d := root.Get("data"); {
	case d.Exists():
		ce.Data = json.RawMessage(d.Raw)
	case len(e.Data()) > 0:
		ce.Data = rawOrString(e.Data())
	}
	return nil
}

// isBinary reports whether the request carries a cloud event in binary
// content mode.
func isBinary(h http.Header) bool {
	return h.Get(binaryHeaderPrefix+"specversion") != ""
}

func isStructured(h http.Header) bool {
	return strings.HasPrefix(strings.ToLower(h.Get("Content-Type")), StructuredContentType)
}

func fromBinary(h http.Header, body []byte) (*CloudEvent, error) {
	header := make(http.Header, len(h))
	for k, vs := range h {
		for _, v := range vs {
			header.Add(k, v)
		}
	}

	msg := cehttp.NewMessage(header, io.NopCloser(bytes.NewReader(body)))
	defer msg.Finish(nil)

	e, err := binding.ToEvent(context.Background(), msg)
	if err != nil {
		return nil, malformed(err, "invalid binary cloud event")
	}

	ce := fromSDK(e)
	if data := e.Data(); len(data) > 0 {
		ce.Data = dataFromWire(data, ce.DataContentType)
	}
	if err := ce.Validate(); err != nil {
		return nil, err
	}
	return ce, nil
}

// ToBinary renders ce in binary content mode.
func ToBinary(ce *CloudEvent) (http.Header, []byte, error) {
	e, err := ce.sdkEvent()
	if err != nil {
		return nil, nil, err
	}
	if len(ce.Data) > 0 {
		e.DataEncoded = ce.wireData()
	}

	req, err := http.NewRequest(http.MethodPost, "/", nil)
	if err != nil {
		return nil, nil, err
	}
	ctx := binding.WithForceBinary(context.Background())
	if err := cehttp.WriteRequest(ctx, binding.ToMessage(&e), req); err != nil {
		return nil, nil, malformed(err, "invalid cloud event")
	}

	var body []byte
	if req.Body != nil {
		defer req.Body.Close()
		if body, err = io.ReadAll(req.Body); err != nil {
			return nil, nil, err
		}
	}
	return req.Header, body, nil
}

func jsonContentType(ct string) bool {
	return ct == "" || strings.Contains(strings.ToLower(ct), "json")
}

// wireData is Data as carried in a binary mode body.
func (ce *CloudEvent) wireData() []byte {
	if !jsonContentType(ce.DataContentType) {
		if r := gjson.ParseBytes(ce.Data); r.Type == gjson.String {
			return []byte(r.String())
		}
	}
	return ce.Data
}

func dataFromWire(b []byte, contentType string) json.RawMessage {
	if !jsonContentType(contentType) {
		s, _ := json.Marshal(string(b))
		return s
	}
	return rawOrString(b)
}

// rawOrString keeps valid JSON as is and encodes anything else as a JSON string.
func rawOrString(b []byte) json.RawMessage {
	if gjson.ValidBytes(b) {
		return json.RawMessage(b)
	}
	s, _ := json.Marshal(string(b))
	return json.RawMessage(s)
}
