package server

import (
	"context"
	"net/http"

	"github.com/aura-studio/funcframe/execution"
	events "github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
)

// APIGatewayHandler adapts h to API Gateway HTTP API (payload 2.0) events.
// Requests without an execution id take the gateway request id.
func APIGatewayHandler(h http.Handler) func(context.Context, events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	return httpadapter.NewV2(gatewayExecutionID(h)).ProxyWithContext
}

func gatewayExecutionID(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(execution.HeaderExecutionID) == "" {
			if rc, ok := core.GetAPIGatewayV2ContextFromContext(r.Context()); ok && rc.RequestID != "" {
				r.Header.Set(execution.HeaderExecutionID, rc.RequestID)
			}
		}
		h.ServeHTTP(w, r)
	})
}
