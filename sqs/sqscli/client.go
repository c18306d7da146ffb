// Package sqscli sends events to a queue served by the sqs adapter and, for
// Call, waits for the function's reply on a response queue.
package sqscli

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/aura-studio/funcframe/event"
	"github.com/aura-studio/funcframe/sqs"
	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"
)

var (
	ErrTimeout    = errors.New("request timeout")
	ErrNoResponse = errors.New("sqscli: no response queue configured")
)

type Client struct {
	*Options
	pendingRequests sync.Map // correlation id -> chan sqs.Reply
	cancel          context.CancelFunc
	wg              sync.WaitGroup
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		Options: NewOptions(opts...),
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	if c.ResponseQueueURL != "" {
		c.wg.Add(1)
		go c.listener(ctx)
	}

	return c
}

func (c *Client) Close() {
	c.cancel()
	c.wg.Wait()
}

func (c *Client) listener(ctx context.Context) {
	defer c.wg.Done()
	for ctx.Err() == nil {
		output, err := c.SQSClient.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:              &c.ResponseQueueURL,
			MaxNumberOfMessages:   10,
			WaitTimeSeconds:       20,
			MessageAttributeNames: []string{"All"},
		})
		if err != nil {
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}

		for _, msg := range output.Messages {
			c.handleIncomingMessage(msg)
			c.SQSClient.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
				QueueUrl:      &c.ResponseQueueURL,
				ReceiptHandle: msg.ReceiptHandle,
			})
		}
	}
}

func (c *Client) handleIncomingMessage(msg types.Message) {
	attr, ok := msg.MessageAttributes[sqs.AttrCorrelationID]
	if !ok || attr.StringValue == nil || msg.Body == nil {
		return
	}
	reply, err := sqs.DecodeReply(*msg.Body)
	if err != nil {
		return
	}
	if ch, ok := c.pendingRequests.Load(*attr.StringValue); ok {
		ch.(chan sqs.Reply) <- reply
	}
}

func stringAttr(v string) types.MessageAttributeValue {
	return types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(v)}
}

func (c *Client) send(ctx context.Context, path, body, contentType string, extra map[string]types.MessageAttributeValue) (string, error) {
	attrs := map[string]types.MessageAttributeValue{
		sqs.AttrContentType: stringAttr(contentType),
	}
	if path != "" {
		attrs[sqs.AttrPath] = stringAttr(path)
	}
	for k, v := range extra {
		attrs[k] = v
	}

	out, err := c.SQSClient.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:          &c.RequestQueueURL,
		MessageBody:       aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.MessageId), nil
}

// Send queues a raw JSON payload. The adapter wraps it into a background
// event unless the function is an http function.
func (c *Client) Send(ctx context.Context, path string, payload []byte) (string, error) {
	return c.send(ctx, path, string(payload), sqs.ContentTypeJSON, nil)
}

// SendBackground queues a background event. A missing event id is filled in.
func (c *Client) SendBackground(ctx context.Context, path string, bg *event.Background) (string, error) {
	if bg.Context.EventID == "" {
		bg.Context.EventID = uuid.NewString()
	}
	b, err := json.Marshal(bg)
	if err != nil {
		return "", err
	}
	return c.send(ctx, path, string(b), sqs.ContentTypeJSON, nil)
}

// SendCloudEvent queues ce in structured mode. A missing id is filled in.
func (c *Client) SendCloudEvent(ctx context.Context, path string, ce *event.CloudEvent) (string, error) {
	if ce.ID == "" {
		ce.ID = uuid.NewString()
	}
	if ce.SpecVersion == "" {
		ce.SpecVersion = event.SpecVersion
	}
	b, err := ce.MarshalJSON()
	if err != nil {
		return "", err
	}
	return c.send(ctx, path, string(b), sqs.ContentTypeCloudEvent, nil)
}

// SendProtobuf queues s in its protobuf wire encoding.
func (c *Client) SendProtobuf(ctx context.Context, path string, s *structpb.Struct) (string, error) {
	body, err := sqs.EncodeProtobuf(s)
	if err != nil {
		return "", err
	}
	return c.send(ctx, path, body, sqs.ContentTypeProtobuf, nil)
}

// Call queues payload and waits for the function's reply.
func (c *Client) Call(ctx context.Context, path string, payload []byte) (sqs.Reply, error) {
	if c.ResponseQueueURL == "" {
		return sqs.Reply{}, ErrNoResponse
	}
	correlationID := uuid.NewString()

	respChan := make(chan sqs.Reply, 1)
	c.pendingRequests.Store(correlationID, respChan)
	defer c.pendingRequests.Delete(correlationID)

	_, err := c.send(ctx, path, string(payload), sqs.ContentTypeJSON, map[string]types.MessageAttributeValue{
		sqs.AttrReplyTo:       stringAttr(c.ResponseQueueURL),
		sqs.AttrCorrelationID: stringAttr(correlationID),
	})
	if err != nil {
		return sqs.Reply{}, err
	}

	timeout := c.DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	select {
	case resp := <-respChan:
		return resp, nil
	case <-time.After(timeout):
		return sqs.Reply{}, ErrTimeout
	case <-ctx.Done():
		return sqs.Reply{}, ctx.Err()
	}
}
