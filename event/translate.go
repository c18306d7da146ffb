package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// hoistedFields are the context attributes a background event may carry at
// the top level instead of under "context".
var hoistedFields = []string{"eventId", "timestamp", "eventType", "resource"}

// ToUnified decodes req and converts it to the target shape. Pub/Sub emulator
// pushes are rewritten into background events first.
func ToUnified(req *Request, target Shape) (*Event, error) {
	if !isBinary(req.Header) && IsPubSubPush(req.Body) {
		body, err := RewritePubSubPush(req.Path, req.Body)
		if err != nil {
			return nil, err
		}
		req = &Request{Method: req.Method, Path: req.Path, Header: req.Header, Body: body}
	}
	ev, err := Decode(req)
	if err != nil {
		return nil, err
	}
	return ev.As(target)
}

// FromUnified converts ev to the target shape and renders it as a JSON body.
// Cloud events are rendered in structured mode.
func FromUnified(ev *Event, target Shape) ([]byte, error) {
	out, err := ev.As(target)
	if err != nil {
		return nil, err
	}
	switch out.Shape {
	case ShapeBackground:
		return json.Marshal(out.Background)
	case ShapeCloudEvent:
		return json.Marshal(out.CloudEvent)
	}
	return nil, fmt.Errorf("event: unsupported target shape %v", target)
}

// Decode recognizes the envelope req is carrying without converting it.
func Decode(req *Request) (*Event, error) {
	if isBinary(req.Header) {
		ce, err := fromBinary(req.Header, req.Body)
		if err != nil {
			return nil, err
		}
		return &Event{Shape: ShapeCloudEvent, CloudEvent: ce}, nil
	}

	body := bytes.TrimSpace(req.Body)
	if len(body) == 0 {
		return nil, malformed(nil, "empty body")
	}
	if !gjson.ValidBytes(body) {
		return nil, malformed(nil, "body is not valid JSON")
	}
	root := gjson.ParseBytes(body)
	if !root.IsObject() {
		return nil, malformed(nil, "body must be a JSON object")
	}

	switch {
	case isStructured(req.Header) || root.Get("specversion").Exists():
		ce := &CloudEvent{}
		if err := ce.UnmarshalJSON(body); err != nil {
			return nil, err
		}
		if err := ce.Validate(); err != nil {
			return nil, err
		}
		return &Event{Shape: ShapeCloudEvent, CloudEvent: ce}, nil

	case root.Get("context").Exists():
		if !root.Get("context").IsObject() {
			return nil, malformed(nil, "context must be a JSON object")
		}
		bg := &Background{}
		if err := json.Unmarshal(body, bg); err != nil {
			return nil, malformed(err, "invalid background event")
		}
		return &Event{Shape: ShapeBackground, Background: bg}, nil

	case hasHoistedContext(root):
		bg := &Background{}
		if d := root.Get("data"); d.Exists() {
			bg.Data = json.RawMessage(d.Raw)
		}
		if err := json.Unmarshal(body, &bg.Context); err != nil {
			return nil, malformed(err, "invalid background event")
		}
		return &Event{Shape: ShapeBackground, Background: bg}, nil
	}

	return nil, malformed(nil, "unrecognized event shape")
}

func hasHoistedContext(root gjson.Result) bool {
	if root.Get("data").Exists() {
		return true
	}
	for _, f := range hoistedFields {
		if root.Get(f).Exists() {
			return true
		}
	}
	return false
}

// Upgrade builds the cloud event equivalent of a background event.
func Upgrade(bg *Background) *CloudEvent {
	ctx := bg.Context
	ce := &CloudEvent{
		ID:          ctx.EventID,
		Time:        ctx.Timestamp,
		SpecVersion: SpecVersion,
		Type:        ctx.EventType,
		Data:        bg.Data,
	}

	var service, name, subject string
	if m, ok := backgroundTypes[ctx.EventType]; ok {
		ce.Type = m.cloudType
		service = m.service
	}
	if r := ctx.Resource; r != nil {
		name, subject = r.Name, r.Subject
		if r.Service != "" {
			service = r.Service
		}
	}

	switch {
	case service == "":
		ce.Source = name
		ce.Subject = subject
	case subject != "":
		ce.Source = "//" + service + "/" + name
		ce.Subject = subject
	default:
		source, split := splitResource(service, name)
		ce.Source = "//" + service + "/" + source
		ce.Subject = split
	}

	if service == ServicePubSub {
		ce.Data = wrapPubSubMessage(bg.Data, ctx)
	}
	if len(ce.Data) > 0 {
		ce.DataContentType = "application/json"
	}
	return ce
}

// Downgrade builds the background event equivalent of a cloud event. An
// event of a mapped type whose source is not a "//service/resource" name has
// no background form and is rejected.
func Downgrade(ce *CloudEvent) (*Background, error) {
	bg := &Background{
		Data: ce.Data,
		Context: Context{
			EventID:   ce.ID,
			Timestamp: ce.Time,
			EventType: ce.Type,
		},
	}

	var mapped string
	if m, ok := cloudTypes[ce.Type]; ok {
		bg.Context.EventType = m.backgroundType
		mapped = m.service
	}

	service, source, ok := parseSource(ce.Source)
	if !ok {
		if mapped != "" {
			return nil, malformed(nil, "%s event source %q is not a //service/resource name", ce.Type, ce.Source)
		}
		service, source = "", ce.Source
	}
	if source == "" && service == "" && ce.Subject == "" {
		return bg, nil
	}

	r := &Resource{Service: service, Name: joinResource(service, source, ce.Subject)}
	if ce.Subject != "" {
		// keep subjects the resource name cannot carry
		if s, sub := splitResource(service, r.Name); s != source || sub != ce.Subject {
			r.Name = source
			r.Subject = ce.Subject
			r.Structured = true
		}
	}
	switch {
	case service == ServicePubSub:
		r.Type = PubSubMessageType
		r.Structured = true
		bg.Data = unwrapPubSubMessage(ce.Data)
	case service == ServiceStorage:
		r.Type = gjson.GetBytes(ce.Data, "kind").String()
		r.Structured = true
	case service != mapped:
		r.Structured = true
	}
	if !r.Structured {
		r.Service = ""
	}
	bg.Context.Resource = r
	return bg, nil
}

// parseSource splits a "//service/resource" source.
func parseSource(source string) (service, rest string, ok bool) {
	if !strings.HasPrefix(source, "//") {
		return "", "", false
	}
	service, rest, ok = strings.Cut(source[2:], "/")
	if !ok || service == "" {
		return "", "", false
	}
	return service, rest, true
}

func wrapPubSubMessage(data json.RawMessage, ctx Context) json.RawMessage {
	msg := []byte("{}")
	if len(data) > 0 {
		if !gjson.ParseBytes(data).IsObject() {
			return data
		}
		msg = append([]byte(nil), data...)
	}
	var err error
	if ctx.EventID != "" {
		if msg, err = sjson.SetBytes(msg, "messageId", ctx.EventID); err != nil {
			return data
		}
	}
	if ctx.Timestamp != "" {
		if msg, err = sjson.SetBytes(msg, "publishTime", ctx.Timestamp); err != nil {
			return data
		}
	}
	out, err := sjson.SetRawBytes([]byte("{}"), "message", msg)
	if err != nil {
		return data
	}
	return out
}

func unwrapPubSubMessage(data json.RawMessage) json.RawMessage {
	msg := gjson.GetBytes(data, "message")
	if !msg.IsObject() {
		return data
	}
	out := []byte(msg.Raw)
	out, _ = sjson.DeleteBytes(out, "messageId")
	out, _ = sjson.DeleteBytes(out, "publishTime")
	return out
}
