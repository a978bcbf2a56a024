// Package llm talks to a hosted chat-completion deployment over its
// Azure-style REST API.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	defaultTimeout   = 60 * time.Second
	streamingTimeout = 300 * time.Second
)

// ErrMalformedResponse reports an upstream 2xx response whose body was
// missing required fields.
var ErrMalformedResponse = errors.New("malformed upstream response")

// UpstreamError reports a non-2xx response from the model endpoint. The
// message is safe to surface to callers.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("model call failed (HTTP %d): %s", e.Status, e.Message)
}

// Client calls a hosted chat-completion deployment. It performs no retries;
// failures surface immediately to the caller.
type Client struct {
	endpoint   string
	apiKey     string
	deployment string
	apiVersion string
	httpClient *http.Client
}

// New creates a Client for the given deployment. endpoint is the service
// base URL without a trailing slash.
func New(endpoint, apiKey, deployment, apiVersion string) *Client {
	return &Client{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		deployment: deployment,
		apiVersion: apiVersion,
		httpClient: &http.Client{Timeout: streamingTimeout},
	}
}

// Complete sends a non-streaming chat completion request and decodes the
// typed result. A response without choices yields ErrMalformedResponse.
func (c *Client) Complete(ctx context.Context, req Request) (*Completion, error) {
	req.Stream = false

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var completion Completion
	if err := json.NewDecoder(resp.Body).Decode(&completion); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if len(completion.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}
	return &completion, nil
}

// Stream sends a streaming chat completion request and returns the raw SSE
// body. The caller owns the ReadCloser; closing it releases the request.
func (c *Client) Stream(ctx context.Context, req Request) (io.ReadCloser, error) {
	req.Stream = true

	ctx, cancel := context.WithTimeout(ctx, streamingTimeout)

	resp, err := c.do(ctx, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (c *Client) do(ctx context.Context, req Request) (*http.Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.completionsURL(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &UpstreamError{Status: 0, Message: "model endpoint unreachable"}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, &UpstreamError{
			Status:  resp.StatusCode,
			Message: upstreamMessage(resp.Body, resp.StatusCode),
		}
	}
	return resp, nil
}

func (c *Client) completionsURL() string {
	return fmt.Sprintf("%s/openai/deployments/%s/chat/completions?api-version=%s",
		c.endpoint, url.PathEscape(c.deployment), url.QueryEscape(c.apiVersion))
}

// upstreamMessage extracts the error message from a failed response body,
// falling back to the status text.
func upstreamMessage(body io.Reader, status int) string {
	data, err := io.ReadAll(io.LimitReader(body, 1<<16))
	if err == nil {
		var env errorEnvelope
		if json.Unmarshal(data, &env) == nil && env.Error.Message != "" {
			return env.Error.Message
		}
	}
	return http.StatusText(status)
}

// cancelOnClose wraps a ReadCloser and cancels a context on Close.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
