package sqs

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	events "github.com/aws/aws-lambda-go/events"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// Message attributes understood by the adapter.
const (
	AttrPath          = "Path"
	AttrContentType   = "Content-Type"
	AttrReplyTo       = "ReplyTo"
	AttrCorrelationID = "CorrelationId"
	AttrStatus        = "Status"
)

const (
	ContentTypeJSON       = "application/json"
	ContentTypeCloudEvent = "application/cloudevents+json"
	ContentTypeProtobuf   = "application/protobuf"

	ServiceSQS        = "sqs.amazonaws.com"
	EventTypeReceived = "aws.sqs.message.received"
	MessageType       = "sqs#message"
)

// EncodeProtobuf encodes s the way DecodeMessage expects a body sent with
// Content-Type application/protobuf.
func EncodeProtobuf(s *structpb.Struct) (string, error) {
	b, err := proto.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodeProtobuf(body string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil, fmt.Errorf("protobuf body is not base64: %w", err)
	}
	var s structpb.Struct
	if err := proto.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("protobuf body: %w", err)
	}
	return protojson.Marshal(&s)
}

func attribute(msg events.SQSMessage, name string) string {
	if a, ok := msg.MessageAttributes[name]; ok && a.StringValue != nil {
		return *a.StringValue
	}
	return ""
}

// DecodeMessage returns the request body and content type a message is
// delivered with. Bodies that already are a background event or a structured
// cloud event pass through. In raw mode the payload is delivered as is;
// otherwise it becomes the data of a background event describing the
// message.
func DecodeMessage(msg events.SQSMessage, raw bool) ([]byte, string, error) {
	payload := []byte(msg.Body)
	ct := attribute(msg, AttrContentType)

	if ct == ContentTypeProtobuf {
		b, err := decodeProtobuf(msg.Body)
		if err != nil {
			return nil, "", err
		}
		payload, ct = b, ContentTypeJSON
	}

	if raw {
		if ct == "" {
			ct = ContentTypeJSON
			if !gjson.ValidBytes(payload) {
				ct = "text/plain; charset=utf-8"
			}
		}
		return payload, ct, nil
	}

	if gjson.ValidBytes(payload) {
		root := gjson.ParseBytes(payload)
		switch {
		case root.IsObject() && root.Get("specversion").Exists():
			return payload, ContentTypeCloudEvent, nil
		case root.IsObject() && root.Get("context").IsObject():
			return payload, ContentTypeJSON, nil
		}
	}

	data := payload
	if !gjson.ValidBytes(payload) {
		data, _ = json.Marshal(msg.Body)
	}

	out := []byte(`{}`)
	var err error
	set := func(path string, v any) {
		if err == nil {
			out, err = sjson.SetBytes(out, path, v)
		}
	}
	if len(data) > 0 {
		out, err = sjson.SetRawBytes(out, "data", data)
	}
	set("context.eventId", msg.MessageId)
	if ts := sentTimestamp(msg); ts != "" {
		set("context.timestamp", ts)
	}
	set("context.eventType", EventTypeReceived)
	set("context.resource", map[string]string{
		"service": ServiceSQS,
		"name":    msg.EventSourceARN,
		"type":    MessageType,
	})
	if err != nil {
		return nil, "", err
	}
	return out, ContentTypeJSON, nil
}

func sentTimestamp(msg events.SQSMessage) string {
	ms, err := strconv.ParseInt(msg.Attributes["SentTimestamp"], 10, 64)
	if err != nil {
		return ""
	}
	return time.UnixMilli(ms).UTC().Format(time.RFC3339Nano)
}

// Reply is the message sent back when reply mode is on.
type Reply struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType,omitempty"`
	Body        string `json:"body,omitempty"`
}

func EncodeReply(r Reply) (string, error) {
	b, err := json.Marshal(r)
	return string(b), err
}

func DecodeReply(s string) (Reply, error) {
	var r Reply
	err := json.Unmarshal([]byte(s), &r)
	return r, err
}
