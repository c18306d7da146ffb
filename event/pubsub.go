package event

import (
	"encoding/base64"
	"regexp"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// topicPath matches the request path the Pub/Sub emulator pushes to when a
// subscription is configured with a topic-scoped endpoint.
var topicPath = regexp.MustCompile(`^/projects/([^/?]+)/topics/([^/?]+)`)

// IsPubSubPush reports whether body is a raw Pub/Sub push delivery
// ({subscription, message}) rather than a background event.
func IsPubSubPush(body []byte) bool {
	if !gjson.ValidBytes(body) {
		return false
	}
	root := gjson.ParseBytes(body)
	return root.IsObject() &&
		root.Get("subscription").Exists() &&
		root.Get("message").IsObject() &&
		!root.Get("context").Exists()
}

// RewritePubSubPush turns a Pub/Sub push delivery into a background event
// body. The message payload is base64 decoded into data.data and the
// attributes are copied to data.attributes.
func RewritePubSubPush(path string, body []byte) ([]byte, error) {
	msg := gjson.GetBytes(body, "message")

	out := []byte(`{"data":{},"context":{}}`)
	var err error

	if d := msg.Get("data"); d.Exists() {
		raw, derr := base64.StdEncoding.DecodeString(d.String())
		if derr != nil {
			return nil, malformed(derr, "pubsub message data is not valid base64")
		}
		if out, err = sjson.SetBytes(out, "data.data", string(raw)); err != nil {
			return nil, malformed(err, "pubsub rewrite")
		}
	}
	if a := msg.Get("attributes"); a.Exists() {
		if out, err = sjson.SetRawBytes(out, "data.attributes", []byte(a.Raw)); err != nil {
			return nil, malformed(err, "pubsub rewrite")
		}
	}

	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, v)
		}
	}
	if id := msg.Get("messageId"); id.Exists() {
		set("context.eventId", id.String())
	}
	if ts := msg.Get("publishTime"); ts.Exists() {
		set("context.timestamp", ts.String())
	}
	set("context.eventType", PubSubPublishType)
	if m := topicPath.FindStringSubmatch(path); m != nil {
		set("context.resource", map[string]string{
			"service": ServicePubSub,
			"type":    PubSubMessageType,
			"name":    "projects/" + m[1] + "/topics/" + m[2],
		})
	}
	if err != nil {
		return nil, malformed(err, "pubsub rewrite")
	}
	return out, nil
}
