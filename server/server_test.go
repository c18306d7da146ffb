package server

import (
	"context"
	"encoding/base64"
	"io"
	"net/http"
	"testing"

	"github.com/aura-studio/funcframe/execution"
	"github.com/aura-studio/funcframe/function"
	funchttp "github.com/aura-studio/funcframe/http"
	"github.com/aura-studio/funcframe/sqs"
	events "github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func apiEvent(method, path, body string) events.APIGatewayV2HTTPRequest {
	ev := events.APIGatewayV2HTTPRequest{
		RawPath:        path,
		RawQueryString: "q=1",
		Headers:        map[string]string{"content-type": "application/json", "host": "example.com"},
		Cookies:        []string{"a=1", "b=2"},
		Body:           body,
	}
	ev.RequestContext.HTTP.Method = method
	ev.RequestContext.HTTP.SourceIP = "10.0.0.1"
	ev.RequestContext.RequestID = "req-1"
	return ev
}

func TestAPIGatewayRequest(t *testing.T) {
	type seen struct {
		method, path, query, cookie, execID, body string
	}
	got := make(chan seen, 1)
	f, err := function.New("apigw-req", function.SignatureHTTP, func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c, _ := r.Cookie("b")
		var value string
		if c != nil {
			value = c.Value
		}
		got <- seen{r.Method, r.URL.Path, r.URL.Query().Get("q"), value, r.Header.Get(execution.HeaderExecutionID), string(b)}
	})
	require.NoError(t, err)
	e, err := funchttp.NewEngine(funchttp.WithFunction(f), funchttp.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	handler := APIGatewayHandler(e)

	_, err = handler(context.Background(), apiEvent(http.MethodPost, "/users/1", `{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, seen{http.MethodPost, "/users/1", "1", "2", "req-1", `{"a":1}`}, <-got)

	ev := apiEvent(http.MethodPut, "/raw", base64.StdEncoding.EncodeToString([]byte{0, 1, 2}))
	ev.IsBase64Encoded = true
	ev.Headers[execution.HeaderExecutionID] = "caller-id"
	_, err = handler(context.Background(), ev)
	require.NoError(t, err)
	s := <-got
	assert.Equal(t, string([]byte{0, 1, 2}), s.body)
	assert.Equal(t, "caller-id", s.execID)

	ev.Body = "!!!"
	_, err = handler(context.Background(), ev)
	assert.Error(t, err)
}

func TestAPIGatewayHandler(t *testing.T) {
	f, err := function.New("apigw", function.SignatureHTTP, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/binary":
			w.Header().Set("Content-Type", "image/png")
			w.Write([]byte{0x89, 'P', 'N', 'G'})
		default:
			http.SetCookie(w, &http.Cookie{Name: "s", Value: "1"})
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"ok":true}`))
		}
	})
	require.NoError(t, err)
	e, err := funchttp.NewEngine(funchttp.WithFunction(f), funchttp.WithLogger(zap.NewNop()))
	require.NoError(t, err)
	handler := APIGatewayHandler(e)

	rsp, err := handler(context.Background(), apiEvent(http.MethodPost, "/json", `{}`))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rsp.StatusCode)
	assert.Equal(t, `{"ok":true}`, rsp.Body)
	assert.False(t, rsp.IsBase64Encoded)
	assert.Equal(t, []string{"s=1"}, rsp.Cookies)
	assert.Equal(t, "req-1", rsp.Headers[execution.HeaderExecutionID])

	rsp, err = handler(context.Background(), apiEvent(http.MethodGet, "/binary", ""))
	require.NoError(t, err)
	assert.True(t, rsp.IsBase64Encoded)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0x89, 'P', 'N', 'G'}), rsp.Body)

	rsp, err = handler(context.Background(), apiEvent(http.MethodGet, "/favicon.ico", ""))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, rsp.StatusCode)
}

func TestUnknownMode(t *testing.T) {
	err := Serve(context.Background(), WithMode("grpc"))
	var ce *function.ConfigurationError
	assert.ErrorAs(t, err, &ce)
}

func TestWithServeConfig(t *testing.T) {
	yaml := []byte(`mode: sqs-poll
metricsAddress: ":9100"
http:
  target: hello
  signatureType: event
sqs:
  queueUrl: https://sqs/q
dynamic:
  namespace: team
`)
	o := NewOptions(WithServeConfig(yaml))
	assert.Equal(t, ModeSQSPoll, o.Mode)
	assert.Equal(t, ":9100", o.MetricsAddress)
	require.Len(t, o.Http, 1)
	require.Len(t, o.Sqs, 1)
	require.Len(t, o.Dynamic, 1)

	assert.Equal(t, "hello", funchttp.NewOptions(o.Http...).Target)
	assert.Equal(t, "https://sqs/q", sqs.NewOptions(o.Sqs...).QueueURL)

	serve := sqsServeOptions(o, httpServeOptions(o))
	assert.Len(t, serve, 3)

	assert.Equal(t, ModeHTTP, NewOptions().Mode)
	assert.Panics(t, func() { WithServeConfig([]byte("mode: [")) })
}
