package sqs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aura-studio/funcframe/event"
	"github.com/aura-studio/funcframe/function"
	funchttp "github.com/aura-studio/funcframe/http"
	events "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"google.golang.org/protobuf/types/known/structpb"
)

type mockSQSClient struct {
	mu       sync.Mutex
	sent     []*awssqs.SendMessageInput
	deleted  []*awssqs.DeleteMessageInput
	messages []types.Message
	cancel   context.CancelFunc
}

func (m *mockSQSClient) SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, params)
	return &awssqs.SendMessageOutput{}, nil
}

// ReceiveMessage hands out the queued messages once, then stops the poller.
func (m *mockSQSClient) ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msgs := m.messages
	m.messages = nil
	if msgs == nil && m.cancel != nil {
		m.cancel()
	}
	return &awssqs.ReceiveMessageOutput{Messages: msgs}, nil
}

func (m *mockSQSClient) DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, params)
	return &awssqs.DeleteMessageOutput{}, nil
}

// recordingHandler answers 500 for bodies containing "fail".
type recordingHandler struct {
	mu     sync.Mutex
	paths  []string
	bodies []string
	types  []string
}

func (h *recordingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, _ := io.ReadAll(r.Body)
	h.mu.Lock()
	h.paths = append(h.paths, r.URL.Path)
	h.bodies = append(h.bodies, string(b))
	h.types = append(h.types, r.Header.Get("Content-Type"))
	h.mu.Unlock()

	if strings.Contains(string(b), "fail") {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("handled " + r.URL.Path))
}

func message(id, body string, attrs map[string]string) events.SQSMessage {
	msg := events.SQSMessage{
		MessageId:         id,
		Body:              body,
		EventSourceARN:    "arn:aws:sqs:us-east-1:123456789012:q",
		Attributes:        map[string]string{"SentTimestamp": "1577836800000"},
		MessageAttributes: map[string]events.SQSMessageAttribute{},
	}
	for k, v := range attrs {
		msg.MessageAttributes[k] = events.SQSMessageAttribute{DataType: "String", StringValue: aws.String(v)}
	}
	return msg
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *recordingHandler) {
	t.Helper()
	h := &recordingHandler{}
	opts = append([]Option{WithHandler(h), WithLogger(zap.NewNop())}, opts...)
	serve := make([]ServeOption, 0, len(opts))
	for _, o := range opts {
		serve = append(serve, SQS(o))
	}
	e, err := NewEngine(serve...)
	require.NoError(t, err)
	return e, h
}

func TestDeliverWrapsBackgroundEvent(t *testing.T) {
	e, h := newTestEngine(t)

	_, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("m-1", `{"order":7}`, nil),
		message("m-2", `plain text`, nil),
	}})
	require.NoError(t, err)
	require.Len(t, h.bodies, 2)

	bg := h.bodies[0]
	assert.Equal(t, int64(7), gjson.Get(bg, "data.order").Int())
	assert.Equal(t, "m-1", gjson.Get(bg, "context.eventId").String())
	assert.Equal(t, "2020-01-01T00:00:00Z", gjson.Get(bg, "context.timestamp").String())
	assert.Equal(t, EventTypeReceived, gjson.Get(bg, "context.eventType").String())
	assert.Equal(t, ServiceSQS, gjson.Get(bg, "context.resource.service").String())
	assert.Equal(t, "plain text", gjson.Get(h.bodies[1], "data").String())
	assert.Equal(t, ContentTypeJSON, h.types[0])
}

func TestDeliverPassesEventsThrough(t *testing.T) {
	e, h := newTestEngine(t)

	ce := `{"specversion":"1.0","id":"1","source":"s","type":"t"}`
	bg := `{"data":1,"context":{"eventId":"9","eventType":"t"}}`
	_, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("m-1", ce, nil),
		message("m-2", bg, nil),
	}})
	require.NoError(t, err)

	assert.Equal(t, ce, h.bodies[0])
	assert.Equal(t, ContentTypeCloudEvent, h.types[0])
	assert.Equal(t, bg, h.bodies[1])
}

func TestDeliverProtobuf(t *testing.T) {
	e, h := newTestEngine(t, WithRawMode(true))

	s, err := structpb.NewStruct(map[string]any{"name": "x", "n": 2.0})
	require.NoError(t, err)
	body, err := EncodeProtobuf(s)
	require.NoError(t, err)

	_, err = e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("m-1", body, map[string]string{AttrContentType: ContentTypeProtobuf}),
	}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"x","n":2}`, h.bodies[0])

	resp, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("m-2", "!!!", map[string]string{AttrContentType: ContentTypeProtobuf}),
	}})
	assert.Error(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}

func TestPartialMode(t *testing.T) {
	e, _ := newTestEngine(t, WithPartialMode(true))

	resp, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("ok-1", `{"a":1}`, nil),
		message("bad-1", `{"a":"fail"}`, nil),
		message("ok-2", `{"a":2}`, nil),
	}})
	require.NoError(t, err)
	require.Len(t, resp.BatchItemFailures, 1)
	assert.Equal(t, "bad-1", resp.BatchItemFailures[0].ItemIdentifier)
}

func TestSuspendMode(t *testing.T) {
	e, h := newTestEngine(t, WithSuspendMode(true))

	_, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("bad-1", `{"a":"fail"}`, nil),
		message("ok-1", `{"a":1}`, nil),
	}})
	var de *DeliveryError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "bad-1", de.MessageID)
	assert.Equal(t, http.StatusInternalServerError, de.Status)
	assert.Len(t, h.bodies, 1)
}

func TestStoppedEngineFailsMessages(t *testing.T) {
	e, h := newTestEngine(t, WithPartialMode(true))
	e.Stop()

	resp, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{message("m-1", `{}`, nil)}})
	require.NoError(t, err)
	assert.Len(t, resp.BatchItemFailures, 1)
	assert.Empty(t, h.bodies)

	e.Start()
	resp, err = e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{message("m-1", `{}`, nil)}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
}

func TestPathRouting(t *testing.T) {
	e, h := newTestEngine(t,
		WithPath("/default"),
		WithStaticLink("/old", "/new"),
		WithPrefixLink("/v1", "/api/v1"),
		WithPrefixLink("/v1/admin", "/admin"),
	)

	_, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("a", `{}`, nil),
		message("b", `{}`, map[string]string{AttrPath: "/old"}),
		message("c", `{}`, map[string]string{AttrPath: "/v1/users"}),
		message("d", `{}`, map[string]string{AttrPath: "/v1/admin/x"}),
		message("e", `{}`, map[string]string{AttrPath: "relative"}),
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"/default", "/new", "/api/v1/users", "/admin/x", "/relative"}, h.paths)
}

func TestReplyMode(t *testing.T) {
	mock := &mockSQSClient{}
	e, _ := newTestEngine(t, WithReplyMode(true), WithSQSClient(mock))

	_, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{
		message("m-1", `{}`, map[string]string{AttrReplyTo: "reply-queue", AttrCorrelationID: "corr-1", AttrPath: "/x"}),
		message("m-2", `{}`, nil),
	}})
	require.NoError(t, err)

	require.Len(t, mock.sent, 1)
	sent := mock.sent[0]
	assert.Equal(t, "reply-queue", *sent.QueueUrl)
	assert.Equal(t, "corr-1", *sent.MessageAttributes[AttrCorrelationID].StringValue)
	assert.Equal(t, "200", *sent.MessageAttributes[AttrStatus].StringValue)

	reply, err := DecodeReply(*sent.MessageBody)
	require.NoError(t, err)
	assert.Equal(t, Reply{Status: 200, ContentType: "text/plain", Body: "handled /x"}, reply)
}

func TestPoll(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mock := &mockSQSClient{cancel: cancel, messages: []types.Message{
		{MessageId: aws.String("ok"), ReceiptHandle: aws.String("h-ok"), Body: aws.String(`{"a":1}`)},
		{MessageId: aws.String("bad"), ReceiptHandle: aws.String("h-bad"), Body: aws.String(`{"a":"fail"}`)},
	}}
	e, h := newTestEngine(t, WithSQSClient(mock), WithQueueURL("https://sqs/q"))

	done := make(chan error, 1)
	go func() { done <- e.Poll(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}

	assert.Len(t, h.bodies, 2)
	require.Len(t, mock.deleted, 1)
	assert.Equal(t, "h-ok", *mock.deleted[0].ReceiptHandle)
	assert.Equal(t, "https://sqs/q", gjson.Get(h.bodies[0], "context.resource.name").String())
}

func TestPollNeedsQueue(t *testing.T) {
	e, _ := newTestEngine(t, WithSQSClient(&mockSQSClient{}))
	var ce *function.ConfigurationError
	assert.ErrorAs(t, e.Poll(context.Background()), &ce)
}

func TestFunctionPipeline(t *testing.T) {
	var got event.Context
	var data map[string]any
	f, err := function.New("sqs-test", function.SignatureEvent, func(ctx context.Context, d map[string]any, ec *event.Context) error {
		data, got = d, *ec
		return nil
	})
	require.NoError(t, err)

	e, err := NewEngine(HTTP(funchttp.WithFunction(f)), SQS(WithLogger(zap.NewNop())), SQS(WithPartialMode(true)))
	require.NoError(t, err)
	assert.False(t, e.RawMode)

	resp, err := e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{message("m-1", `{"x":"y"}`, nil)}})
	require.NoError(t, err)
	assert.Empty(t, resp.BatchItemFailures)
	assert.Equal(t, "m-1", got.EventID)
	assert.Equal(t, map[string]any{"x": "y"}, data)
}

func TestHTTPFunctionUsesRawMode(t *testing.T) {
	var body string
	f, err := function.New("sqs-raw", function.SignatureHTTP, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
	})
	require.NoError(t, err)

	e, err := NewEngine(HTTP(funchttp.WithFunction(f)), SQS(WithLogger(zap.NewNop())))
	require.NoError(t, err)
	assert.True(t, e.RawMode)

	spaced, err := NewEngine(HTTP(funchttp.WithFunction(f)), HTTP(funchttp.WithSignatureType(" HTTP ")), SQS(WithLogger(zap.NewNop())))
	require.NoError(t, err)
	assert.True(t, spaced.RawMode)

	_, err = e.Invoke(context.Background(), events.SQSEvent{Records: []events.SQSMessage{message("m-1", `{"x":"y"}`, nil)}})
	require.NoError(t, err)
	assert.Equal(t, `{"x":"y"}`, body)
}

func TestWithServeConfig(t *testing.T) {
	yaml := []byte(`sqs:
  queueUrl: https://sqs/q
  path: /events
  waitTimeSeconds: 5
  partial: true
  reply: true
  prefixLink:
    - srcPrefix: /a
      dstPrefix: /b
http:
  signatureType: event
  timeout: 2s
`)
	bag := &serveOptionBag{}
	WithServeConfig(yaml).apply(bag)
	require.Len(t, bag.http, 1)

	o := NewOptions(bag.sqs...)
	assert.Equal(t, "https://sqs/q", o.QueueURL)
	assert.Equal(t, "/events", o.Path)
	assert.Equal(t, int32(5), o.WaitTimeSeconds)
	assert.Equal(t, int32(10), o.MaxMessages)
	assert.True(t, o.PartialMode)
	assert.True(t, o.ReplyMode)
	assert.Equal(t, "/b", o.PrefixLinkMap["/a"])

	ho := funchttp.NewOptions(bag.http[0].(funchttp.Option))
	assert.Equal(t, "event", ho.SignatureType)
	assert.Equal(t, 2*time.Second, ho.Timeout)

	assert.Panics(t, func() { WithServeConfig([]byte("sqs: [")).apply(&serveOptionBag{}) })
}

func TestReplyEncoding(t *testing.T) {
	s, err := EncodeReply(Reply{Status: 204})
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	assert.Equal(t, map[string]any{"status": 204.0}, m)
}
