package event

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func jsonEqual(a, b []byte) bool {
	var va, vb any
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}

func genTimestamp() gopter.Gen {
	return gen.OneConstOf("", "2020-01-01T00:00:00Z", "2024-06-30T12:34:56.789Z")
}

func genBackgroundType() gopter.Gen {
	return gen.OneConstOf(
		"",
		PubSubPublishType,
		"google.storage.object.finalize",
		"providers/cloud.firestore/eventTypes/document.write",
		"custom.event.type",
	)
}

type backgroundInput struct {
	EventID    string
	Timestamp  string
	EventType  string
	Resource   string
	Structured bool
	Value      string
	Hoisted    bool
}

func genBackgroundInput() gopter.Gen {
	return gopter.CombineGens(
		gen.OneGenOf(gen.Const(""), gen.Identifier()),
		genTimestamp(),
		genBackgroundType(),
		gen.OneGenOf(gen.Const(""), gen.Identifier()),
		gen.Bool(),
		gen.AlphaString(),
		gen.Bool(),
	).Map(func(v []any) backgroundInput {
		return backgroundInput{
			EventID:    v[0].(string),
			Timestamp:  v[1].(string),
			EventType:  v[2].(string),
			Resource:   v[3].(string),
			Structured: v[4].(bool),
			Value:      v[5].(string),
			Hoisted:    v[6].(bool),
		}
	})
}

func (in backgroundInput) body() []byte {
	data, _ := json.Marshal(map[string]string{"value": in.Value})
	ctx := Context{EventID: in.EventID, Timestamp: in.Timestamp, EventType: in.EventType}
	if in.Resource != "" {
		ctx.Resource = &Resource{Name: in.Resource, Structured: in.Structured}
		if in.Structured {
			ctx.Resource.Service = "example.googleapis.com"
		}
	}
	if !in.Hoisted {
		b, _ := json.Marshal(Background{Data: data, Context: ctx})
		return b
	}
	m := map[string]any{"data": json.RawMessage(data)}
	c, _ := json.Marshal(ctx)
	var fields map[string]any
	_ = json.Unmarshal(c, &fields)
	for k, v := range fields {
		m[k] = v
	}
	b, _ := json.Marshal(m)
	return b
}

func TestBackgroundRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("background body survives toUnified/fromUnified", prop.ForAll(
		func(in backgroundInput) bool {
			body := in.body()
			ev, err := ToUnified(&Request{Method: http.MethodPost, Path: "/", Header: http.Header{}, Body: body}, ShapeBackground)
			if err != nil {
				t.Logf("ToUnified(%s) error: %v", body, err)
				return false
			}
			out, err := FromUnified(ev, ShapeBackground)
			if err != nil {
				return false
			}

			var want Background
			if in.Hoisted {
				want.Data = json.RawMessage(`{"value":` + mustJSON(in.Value) + `}`)
				_ = json.Unmarshal(body, &want.Context)
			} else {
				_ = json.Unmarshal(body, &want)
			}
			wantBody, _ := json.Marshal(want)
			return jsonEqual(out, wantBody)
		},
		genBackgroundInput(),
	))

	properties.TestingRun(t)
}

type cloudInput struct {
	ID    string
	Time  string
	Kind  int
	Name  string
	Value string
}

func genCloudInput() gopter.Gen {
	return gopter.CombineGens(
		gen.Identifier(),
		gen.OneConstOf("2020-01-01T00:00:00Z", "2024-06-30T12:34:56.789Z"),
		gen.IntRange(0, 9),
		gen.Identifier(),
		gen.AlphaString(),
	).Map(func(v []any) cloudInput {
		return cloudInput{
			ID:    v[0].(string),
			Time:  v[1].(string),
			Kind:  v[2].(int),
			Name:  v[3].(string),
			Value: v[4].(string),
		}
	})
}

func (in cloudInput) event() *CloudEvent {
	ce := &CloudEvent{
		ID:              in.ID,
		Time:            in.Time,
		SpecVersion:     SpecVersion,
		DataContentType: "application/json",
		Data:            json.RawMessage(`{"value":` + mustJSON(in.Value) + `}`),
	}
	switch in.Kind {
	case 0:
		ce.Type = "google.cloud.storage.object.v1.finalized"
		ce.Source = "//storage.googleapis.com/projects/_/buckets/" + in.Name
		ce.Subject = "objects/" + in.Name + ".txt"
	case 1:
		ce.Type = "google.cloud.pubsub.topic.v1.messagePublished"
		ce.Source = "//pubsub.googleapis.com/projects/p/topics/" + in.Name
		ce.Data = json.RawMessage(`{"message":{"data":` + mustJSON(in.Value) +
			`,"messageId":` + mustJSON(in.ID) + `,"publishTime":` + mustJSON(in.Time) + `}}`)
	case 2:
		ce.Type = "google.cloud.firestore.document.v1.written"
		ce.Source = "//firestore.googleapis.com/projects/p/databases/(default)"
		ce.Subject = "documents/users/" + in.Name
	case 3:
		ce.Type = "com.example." + in.Name
		ce.Source = "//example.com/things/" + in.Name
	case 4:
		ce.Type = "com.example." + in.Name
		ce.Source = "urn:example:" + in.Name
	case 5:
		ce.Type = "com.example." + in.Name
		ce.Source = "//example.com/things/" + in.Name
		ce.Subject = "parts/" + in.ID
	case 6:
		ce.Type = "com.example." + in.Name
		ce.Source = "urn:example:" + in.Name
		ce.Subject = in.ID
	case 7:
		ce.Type = "google.cloud.storage.object.v1.finalized"
		ce.Source = "//storage.googleapis.com/projects/_/buckets/" + in.Name
		ce.Subject = "folders/" + in.Name
	case 8:
		ce.Type = "google.cloud.pubsub.topic.v1.messagePublished"
		ce.Source = "https://example.com/feeds/" + in.Name
	default:
		ce.Type = "google.cloud.storage.object.v1.finalized"
		ce.Source = "storage/" + in.Name
		ce.Subject = "objects/" + in.Name
	}
	return ce
}

// foreignMapped reports whether the input pairs a mapped type with a source
// that has no //service form.
func (in cloudInput) foreignMapped() bool {
	return in.Kind >= 8
}

func mustJSON(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func TestCloudEventRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("cloud event survives downgrade then upgrade", prop.ForAll(
		func(in cloudInput) bool {
			orig := in.event()
			ev := &Event{Shape: ShapeCloudEvent, CloudEvent: orig}

			bg, err := ev.As(ShapeBackground)
			if in.foreignMapped() {
				var me *MalformedEventError
				return errors.As(err, &me)
			}
			if err != nil {
				return false
			}
			back, err := bg.As(ShapeCloudEvent)
			if err != nil {
				return false
			}
			got := back.CloudEvent
			if got.ID != orig.ID || got.Type != orig.Type || got.Time != orig.Time ||
				got.Source != orig.Source || got.Subject != orig.Subject {
				t.Logf("got %+v, want %+v", got, orig)
				return false
			}
			return jsonEqual(got.Data, orig.Data)
		},
		genCloudInput(),
	))

	properties.TestingRun(t)
}
