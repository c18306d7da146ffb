package sqs

import (
	"context"
	"time"

	"github.com/aura-studio/funcframe/function"
	events "github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	awssqs "github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// Poll long-polls QueueURL until ctx is done. Delivered messages are deleted;
// failed ones are left for the queue to redeliver.
func (e *Engine) Poll(ctx context.Context) error {
	if e.QueueURL == "" {
		return &function.ConfigurationError{Field: "queue url", Err: errNoQueue}
	}
	if e.sqsClient == nil {
		return &function.ConfigurationError{Field: "sqs client", Err: errNoClient}
	}

	e.logger.Info("polling queue", zap.String("queue_url", e.QueueURL))
	for {
		if ctx.Err() != nil {
			return nil
		}

		out, err := e.sqsClient.ReceiveMessage(ctx, &awssqs.ReceiveMessageInput{
			QueueUrl:                    aws.String(e.QueueURL),
			MaxNumberOfMessages:         e.MaxMessages,
			WaitTimeSeconds:             e.WaitTimeSeconds,
			MessageAttributeNames:       []string{"All"},
			MessageSystemAttributeNames: []types.MessageSystemAttributeName{types.MessageSystemAttributeName("All")},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			e.logger.Warn("receive failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		for _, m := range out.Messages {
			msg := e.fromQueue(m)
			if e.running.Load() == 0 {
				continue
			}
			if err := e.Process(ctx, msg); err != nil {
				e.logger.Warn("message failed", zap.String("message_id", msg.MessageId), zap.Error(err))
				continue
			}
			_, err := e.sqsClient.DeleteMessage(ctx, &awssqs.DeleteMessageInput{
				QueueUrl:      aws.String(e.QueueURL),
				ReceiptHandle: m.ReceiptHandle,
			})
			if err != nil {
				e.logger.Warn("delete failed", zap.String("message_id", msg.MessageId), zap.Error(err))
			}
		}
	}
}

// fromQueue converts a received message to the shape Lambda delivers.
func (e *Engine) fromQueue(m types.Message) events.SQSMessage {
	msg := events.SQSMessage{
		MessageId:         aws.ToString(m.MessageId),
		ReceiptHandle:     aws.ToString(m.ReceiptHandle),
		Body:              aws.ToString(m.Body),
		Md5OfBody:         aws.ToString(m.MD5OfBody),
		Attributes:        m.Attributes,
		MessageAttributes: make(map[string]events.SQSMessageAttribute, len(m.MessageAttributes)),
		EventSource:       "aws:sqs",
		EventSourceARN:    e.QueueURL,
	}
	for k, v := range m.MessageAttributes {
		msg.MessageAttributes[k] = events.SQSMessageAttribute{
			StringValue: v.StringValue,
			BinaryValue: v.BinaryValue,
			DataType:    aws.ToString(v.DataType),
		}
	}
	return msg
}
