package dynamic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aura-studio/dynamic"
	"github.com/aura-studio/funcframe/event"
	"github.com/aura-studio/funcframe/execution"
	"github.com/aura-studio/funcframe/function"
	"github.com/aura-studio/funcframe/logging"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"
)

const (
	MetaKey     = "__meta__"
	ErrorPrefix = "error://"
)

const (
	ReqMetaExecutionID    = "execution_id"
	ReqMetaTraceID        = "trace_id"
	ReqMetaMethod         = "method"
	ReqMetaPath           = "path"
	ReqMetaQuery          = "query"
	ReqMetaHost           = "host"
	ReqMetaRemoteAddr     = "remote_addr"
	ReqMetaXForwardedFor  = "x_forwarded_for"
	ReqMetaRuntime        = "runtime"
	RspMetaETag           = "etag"
	RspMetaContentType    = "content_type"
	RspMetaContent        = "content"
	RspMetaStatus         = "status"
	defaultRspContentType = "application/json"
)

// tunnelFunction serves one function target from a tunnel. Requests are
// passed as strings; JSON requests carry request meta under __meta__, and
// JSON responses may carry response meta the same way.
type tunnelFunction struct {
	tunnel dynamic.Tunnel
	route  string
	meta   *MetaGenerator
}

// Function resolves target, "package/version" optionally followed by a
// route, into a function of signature sig. Without a route the request path
// is used.
func (d *Dynamic) Function(target string, sig function.SignatureType) (*function.Function, error) {
	pkg, version, route, err := splitTarget(target)
	if err != nil {
		return nil, &function.ConfigurationError{Field: "target", Err: err}
	}
	tunnel, err := d.GetPackage(pkg, version)
	if err != nil {
		return nil, &function.ConfigurationError{Field: "target", Err: fmt.Errorf("load package %s/%s: %w", pkg, version, err)}
	}

	t := &tunnelFunction{
		tunnel: tunnel,
		route:  route,
		meta:   NewMetaGenerator(target, d.LocalWarehouse, d.RemoteWarehouse),
	}
	switch sig {
	case function.SignatureHTTP:
		return function.New(target, sig, t.ServeHTTP)
	case function.SignatureEvent:
		return function.New(target, sig, t.Event)
	case function.SignatureCloudEvent:
		return function.New(target, sig, t.CloudEvent)
	}
	return nil, &function.ConfigurationError{Field: "signature type", Err: fmt.Errorf("unknown signature type %q", sig)}
}

func splitTarget(target string) (pkg, version, route string, err error) {
	parts := strings.Split(strings.Trim(target, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("dynamic target %q must be package/version[/route]", target)
	}
	if len(parts) > 2 {
		route = "/" + strings.Join(parts[2:], "/")
	}
	return parts[0], parts[1], route, nil
}

func (t *tunnelFunction) invoke(ctx context.Context, route string, req string, reqMeta map[string]any) (string, map[string]any, error) {
	if rec, ok := execution.FromContext(ctx); ok {
		reqMeta[ReqMetaExecutionID] = rec.ExecutionID
		if rec.TraceID != "" {
			reqMeta[ReqMetaTraceID] = rec.TraceID
		}
	}
	reqMeta[ReqMetaRuntime] = t.meta.Generate(t.tunnel.Meta())

	if gjson.Valid(req) && !gjson.Get(req, MetaKey).Exists() {
		req, _ = sjson.Set(req, MetaKey, reqMeta)
	}

	rsp := t.tunnel.Invoke(route, req)
	if strings.HasPrefix(rsp, ErrorPrefix) {
		return "", nil, errors.New(strings.TrimPrefix(rsp, ErrorPrefix))
	}

	var rspMeta map[string]any
	if gjson.Valid(rsp) && gjson.Get(rsp, MetaKey).Exists() {
		rspMeta = make(map[string]any)
		gjson.Get(rsp, MetaKey).ForEach(func(key, value gjson.Result) bool {
			rspMeta[key.String()] = value.Value()
			return true
		})
		rsp, _ = sjson.Delete(rsp, MetaKey)
	}
	return rsp, rspMeta, nil
}

func (t *tunnelFunction) routeFor(path string) string {
	if t.route != "" {
		return t.route
	}
	if path == "" {
		return "/"
	}
	return path
}

// ServeHTTP passes the request body to the tunnel. Response meta may set the
// ETag, Content-Type, status and replace the body.
func (t *tunnelFunction) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body := execution.RawBody(r.Context())
	if body == nil && r.Body != nil {
		body, _ = io.ReadAll(r.Body)
	}

	reqMeta := map[string]any{
		ReqMetaMethod:     r.Method,
		ReqMetaPath:       r.URL.Path,
		ReqMetaQuery:      r.URL.RawQuery,
		ReqMetaHost:       r.Host,
		ReqMetaRemoteAddr: r.RemoteAddr,
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		reqMeta[ReqMetaXForwardedFor] = xff
	}

	rsp, rspMeta, err := t.invoke(r.Context(), t.routeFor(r.URL.Path), string(body), reqMeta)
	if err != nil {
		logging.FromContext(r.Context(), nil).Error("tunnel failed", zap.String("route", t.routeFor(r.URL.Path)), zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	contentType, status := defaultRspContentType, http.StatusOK
	if etag, ok := rspMeta[RspMetaETag]; ok && etag != nil && etag != "" {
		w.Header().Set("ETag", fmt.Sprintf("%v", etag))
	}
	if ct, ok := rspMeta[RspMetaContentType]; ok && ct != nil && ct != "" {
		contentType = fmt.Sprintf("%v", ct)
	}
	if content, ok := rspMeta[RspMetaContent]; ok && content != nil && content != "" {
		rsp = fmt.Sprintf("%v", content)
	}
	if s, ok := rspMeta[RspMetaStatus].(float64); ok && s >= 100 && s < 600 {
		status = int(s)
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(status)
	io.WriteString(w, rsp)
}

// Event passes the background event envelope to the tunnel.
func (t *tunnelFunction) Event(ctx context.Context, data json.RawMessage, ec *event.Context) error {
	req, err := json.Marshal(event.Background{Data: data, Context: *ec})
	if err != nil {
		return err
	}
	path := ""
	if ec.Resource != nil {
		path = "/" + strings.TrimPrefix(ec.Resource.Name, "/")
	}
	_, _, err = t.invoke(ctx, t.routeFor(path), string(req), map[string]any{})
	return err
}

// CloudEvent passes the structured encoding of ce to the tunnel.
func (t *tunnelFunction) CloudEvent(ctx context.Context, ce event.CloudEvent) error {
	req, err := ce.MarshalJSON()
	if err != nil {
		return err
	}
	_, _, err = t.invoke(ctx, t.routeFor("/"+ce.Type), string(req), map[string]any{})
	return err
}
