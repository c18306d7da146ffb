package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/aura-studio/funcframe/dynamic"
	"github.com/aura-studio/funcframe/function"
	funchttp "github.com/aura-studio/funcframe/http"
	"github.com/aura-studio/funcframe/logging"
	"github.com/aura-studio/funcframe/metrics"
	"github.com/aura-studio/funcframe/sqs"
	"github.com/aws/aws-lambda-go/lambda"
	"go.uber.org/zap"
)

var (
	mu         sync.Mutex
	metricsSrv *http.Server
)

// Serve runs the function on the transport selected by Options.Mode until it
// fails, ctx is done (sqs-poll) or Close is called (http).
func Serve(ctx context.Context, opts ...Option) error {
	options := NewOptions(opts...)

	httpOpts := httpServeOptions(options)
	if options.MetricsAddress != "" {
		m := metrics.New()
		httpOpts = append(httpOpts, funchttp.WithMetrics(m))
		serveMetrics(options.MetricsAddress, m)
	}

	switch options.Mode {
	case ModeHTTP, "":
		return funchttp.Serve(httpOpts...)
	case ModeAPIGateway:
		e, err := funchttp.NewEngine(httpOpts...)
		if err != nil {
			return err
		}
		lambda.Start(APIGatewayHandler(e))
		return nil
	case ModeSQS:
		return sqs.Serve(sqsServeOptions(options, httpOpts)...)
	case ModeSQSPoll:
		return sqs.ServePoll(ctx, sqsServeOptions(options, httpOpts)...)
	}
	return &function.ConfigurationError{Field: "mode", Err: fmt.Errorf("unknown mode %q", options.Mode)}
}

func httpServeOptions(o *Options) []funchttp.ServeOption {
	opts := make([]funchttp.ServeOption, 0, len(o.Http)+len(o.Dynamic))
	for _, opt := range o.Http {
		opts = append(opts, opt)
	}
	for _, opt := range o.Dynamic {
		opts = append(opts, opt)
	}
	return opts
}

func sqsServeOptions(o *Options, httpOpts []funchttp.ServeOption) []sqs.ServeOption {
	opts := make([]sqs.ServeOption, 0, len(o.Sqs)+len(httpOpts))
	for _, opt := range o.Sqs {
		opts = append(opts, sqs.SQS(opt))
	}
	for _, opt := range httpOpts {
		switch opt := opt.(type) {
		case funchttp.Option:
			opts = append(opts, sqs.HTTP(opt))
		case dynamic.Option:
			opts = append(opts, sqs.Dyn(opt))
		}
	}
	return opts
}

func serveMetrics(addr string, m *metrics.Metrics) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	mu.Lock()
	metricsSrv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	s := metricsSrv
	mu.Unlock()

	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Default().Error("metrics listener failed", zap.String("address", addr), zap.Error(err))
		}
	}()
}

func Close() error {
	mu.Lock()
	s := metricsSrv
	metricsSrv = nil
	mu.Unlock()

	if s != nil {
		s.Close()
	}
	if err := funchttp.Close(); err != nil {
		return err
	}
	sqs.Close()
	return nil
}
