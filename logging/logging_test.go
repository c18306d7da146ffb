package logging

import (
	"context"
	"net/http"
	"testing"

	"github.com/aura-studio/funcframe/execution"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestFromContextAddsExecutionFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	base := zap.New(core)

	h := http.Header{}
	h.Set(execution.HeaderExecutionID, "exec-1")
	h.Set(execution.HeaderCloudTrace, "trace/span;o=1")
	ctx := execution.Bind(context.Background(), execution.NewRecord(h, nil))

	FromContext(ctx, base).Info("hello")
	FromContext(context.Background(), base).Info("bare")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "exec-1", fields["execution_id"])
	assert.Equal(t, "trace", fields["trace_id"])
	assert.Equal(t, "span", fields["span_id"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	SetDefault(zap.New(core))
	defer SetDefault(nil)

	FromContext(context.Background(), nil).Info("via default")
	assert.Equal(t, 1, logs.Len())
}

func TestNew(t *testing.T) {
	l, err := New(false)
	require.NoError(t, err)
	assert.NotNil(t, l)

	l, err = New(true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))
}
