package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	mu  sync.Mutex
	srv *http.Server
)

// Serve builds the pipeline and listens on Options.Address until Close.
func Serve(opts ...ServeOption) error {
	e, err := NewEngine(opts...)
	if err != nil {
		return err
	}

	mu.Lock()
	srv = &http.Server{
		Addr:              e.Address,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s := srv
	mu.Unlock()

	e.logger.Info("listening", zap.String("address", e.Address))
	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts the listener down, giving in-flight invocations five seconds to
// finish.
func Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	mu.Lock()
	s := srv
	srv = nil
	mu.Unlock()

	if s == nil {
		return nil
	}
	if err := s.Shutdown(ctx); err != nil {
		return err
	}
	return nil
}
