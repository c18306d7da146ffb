package sqs

import (
	"context"
	"errors"

	"github.com/aws/aws-lambda-go/lambda"
)

var (
	errNoQueue  = errors.New("no queue url configured")
	errNoClient = errors.New("no sqs client configured")
)

var engine *Engine

// Serve runs the engine as the handler of Lambda SQS event batches.
func Serve(opts ...ServeOption) error {
	e, err := NewEngine(opts...)
	if err != nil {
		return err
	}
	engine = e
	lambda.Start(e.Invoke)
	return nil
}

// ServePoll polls the configured queue until ctx is done.
func ServePoll(ctx context.Context, opts ...ServeOption) error {
	e, err := NewEngine(opts...)
	if err != nil {
		return err
	}
	engine = e
	return e.Poll(ctx)
}

func Close() {
	if engine != nil {
		engine.Stop()
	}
}
