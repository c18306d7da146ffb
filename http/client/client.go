// Package client invokes a function served by funcframe over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aura-studio/funcframe/event"
	"github.com/aura-studio/funcframe/execution"
	"github.com/aura-studio/funcframe/response"
	"github.com/google/uuid"
)

var ErrTimeout = errors.New("request timeout")

type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// ExecutionID is the id the function ran under.
func (r *Response) ExecutionID() string {
	return r.Headers.Get(execution.HeaderExecutionID)
}

// Failed reports whether the framework answered with an error status.
func (r *Response) Failed() bool {
	return r.Headers.Get(response.HeaderStatus) == "error"
}

type Client struct {
	*Options
}

func NewClient(opts ...Option) *Client {
	return &Client{
		Options: NewOptions(opts...),
	}
}

func (c *Client) Get(ctx context.Context, path string) (*Response, error) {
	return c.Do(ctx, http.MethodGet, path, nil, nil)
}

func (c *Client) Post(ctx context.Context, path string, body []byte) (*Response, error) {
	return c.Do(ctx, http.MethodPost, path, body, http.Header{"Content-Type": {"application/json"}})
}

// SendBackground posts a background event. A missing event id is filled in.
func (c *Client) SendBackground(ctx context.Context, path string, bg *event.Background) (*Response, error) {
	if bg.Context.EventID == "" {
		bg.Context.EventID = uuid.NewString()
	}
	b, err := json.Marshal(bg)
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, path, b, http.Header{"Content-Type": {"application/json"}})
}

// SendCloudEvent posts ce in structured mode, or in binary mode when the
// client was built WithBinaryMode. Missing id and specversion are filled in.
func (c *Client) SendCloudEvent(ctx context.Context, path string, ce *event.CloudEvent) (*Response, error) {
	if ce.ID == "" {
		ce.ID = uuid.NewString()
	}
	if ce.SpecVersion == "" {
		ce.SpecVersion = event.SpecVersion
	}
	if err := ce.Validate(); err != nil {
		return nil, err
	}

	if c.Binary {
		h, body, err := event.ToBinary(ce)
		if err != nil {
			return nil, err
		}
		return c.Do(ctx, http.MethodPost, path, body, h)
	}
	b, err := ce.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return c.Do(ctx, http.MethodPost, path, b, http.Header{"Content-Type": {event.StructuredContentType}})
}

// Do sends one request. header overrides the client's default headers.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok && c.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.DefaultTimeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range c.Headers {
		req.Header.Set(key, value)
	}
	for key, values := range header {
		req.Header.Del(key)
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       respBody,
	}, nil
}
