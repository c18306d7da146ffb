package sqs

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/aura-studio/funcframe/execution"
	"github.com/aura-studio/funcframe/function"
	funchttp "github.com/aura-studio/funcframe/http"
	"github.com/aura-studio/funcframe/logging"
	"github.com/aura-studio/funcframe/response"
	events "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

type SQSClient interface {
	SendMessage(ctx context.Context, params *awssqs.SendMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *awssqs.ReceiveMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *awssqs.DeleteMessageInput, optFns ...func(*awssqs.Options)) (*awssqs.DeleteMessageOutput, error)
}

// DeliveryError reports a message the function did not accept.
type DeliveryError struct {
	MessageID string
	Status    int
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("sqs: message %s answered %d", e.MessageID, e.Status)
}

func (e *DeliveryError) StatusCode() int { return e.Status }

// Engine delivers SQS messages to a function pipeline, one request per
// message, either from Lambda event batches or by polling a queue.
type Engine struct {
	*Options
	handler   http.Handler
	running   atomic.Int32
	sqsClient SQSClient
	logger    *zap.Logger
}

func NewEngine(opts ...ServeOption) (*Engine, error) {
	bag := &serveOptionBag{}
	for _, opt := range opts {
		if opt != nil {
			opt.apply(bag)
		}
	}

	e := &Engine{
		Options: NewOptions(bag.sqs...),
	}
	e.logger = e.Logger
	if e.logger == nil {
		e.logger = logging.Default()
	}
	e.logger = e.logger.With(zap.String("transport", "sqs"))

	e.handler = e.Handler
	if e.handler == nil {
		fe, err := funchttp.NewEngine(append([]funchttp.ServeOption{funchttp.WithLogger(e.logger)}, bag.http...)...)
		if err != nil {
			return nil, err
		}
		if fe.Signature() == function.SignatureHTTP {
			e.RawMode = true
		}
		e.handler = fe
	}

	if e.SQSClient != nil {
		e.sqsClient = e.SQSClient
	} else if e.ReplyMode || e.QueueURL != "" {
		cfg, err := config.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, &function.ConfigurationError{Field: "sqs client", Err: err}
		}
		e.sqsClient = awssqs.NewFromConfig(cfg)
	}

	e.running.Store(1)
	return e, nil
}

func (e *Engine) Start() {
	e.running.Store(1)
}

// Stop makes the engine fail every further message so it is redelivered
// elsewhere.
func (e *Engine) Stop() {
	e.running.Store(0)
}

// Invoke is the Lambda entry point. In partial mode failed messages are
// reported individually; otherwise any failure fails the whole batch.
func (e *Engine) Invoke(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	resp, err := e.handleMessages(ctx, ev)
	if err != nil || e.PartialMode {
		return resp, err
	}
	if len(resp.BatchItemFailures) > 0 {
		return events.SQSEventResponse{}, fmt.Errorf("batch item failures: %d", len(resp.BatchItemFailures))
	}
	return resp, nil
}

func (e *Engine) handleMessages(ctx context.Context, ev events.SQSEvent) (resp events.SQSEventResponse, err error) {
	fail := func(msg events.SQSMessage) {
		resp.BatchItemFailures = append(resp.BatchItemFailures, events.SQSBatchItemFailure{ItemIdentifier: msg.MessageId})
	}

	for _, msg := range ev.Records {
		if e.running.Load() == 0 {
			e.logger.Debug("engine stopped, failing message", zap.String("message_id", msg.MessageId))
			fail(msg)
			continue
		}

		if err := e.Process(ctx, msg); err != nil {
			if e.SuspendMode {
				return resp, err
			}
			e.logger.Warn("message failed", zap.String("message_id", msg.MessageId), zap.Error(err))
			fail(msg)
		}
	}

	return resp, nil
}

// Process delivers one message and sends the reply when one is requested.
func (e *Engine) Process(ctx context.Context, msg events.SQSMessage) error {
	rec, err := e.deliver(ctx, msg)
	if err != nil {
		return err
	}
	return e.reply(ctx, msg, rec)
}

func (e *Engine) deliver(ctx context.Context, msg events.SQSMessage) (*response.Recorder, error) {
	body, ct, err := DecodeMessage(msg, e.RawMode)
	if err != nil {
		return nil, fmt.Errorf("decode message %s: %w", msg.MessageId, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.pathFor(msg), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", ct)
	req.Header.Set(execution.HeaderExecutionID, msg.MessageId)
	if trace := msg.Attributes["AWSTraceHeader"]; trace != "" {
		req.Header.Set("X-Amzn-Trace-Id", trace)
	}

	if e.DebugMode {
		e.logger.Debug("delivering message", zap.String("message_id", msg.MessageId), zap.String("path", req.URL.Path), zap.ByteString("body", body))
	}

	rec := response.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	if e.DebugMode {
		e.logger.Debug("message delivered", zap.String("message_id", msg.MessageId), zap.Int("status", rec.Code))
	}
	if rec.Code >= http.StatusMultipleChoices {
		return rec, &DeliveryError{MessageID: msg.MessageId, Status: rec.Code}
	}
	return rec, nil
}

func (e *Engine) reply(ctx context.Context, msg events.SQSMessage, rec *response.Recorder) error {
	to := attribute(msg, AttrReplyTo)
	if !e.ReplyMode || to == "" {
		return nil
	}
	if e.sqsClient == nil {
		return fmt.Errorf("sqs: no client to reply to message %s", msg.MessageId)
	}

	body, err := EncodeReply(Reply{
		Status:      rec.Code,
		ContentType: rec.Header().Get("Content-Type"),
		Body:        rec.Body.String(),
	})
	if err != nil {
		return err
	}

	attrs := map[string]types.MessageAttributeValue{
		AttrStatus: {DataType: aws.String("Number"), StringValue: aws.String(strconv.Itoa(rec.Code))},
	}
	if id := attribute(msg, AttrCorrelationID); id != "" {
		attrs[AttrCorrelationID] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String(id)}
	}

	_, err = e.sqsClient.SendMessage(ctx, &awssqs.SendMessageInput{
		QueueUrl:          aws.String(to),
		MessageBody:       aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return fmt.Errorf("reply to message %s: %w", msg.MessageId, err)
	}
	return nil
}
