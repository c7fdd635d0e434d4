// ABOUTME: HTTP client for invoking Langflow-style agent flows
// ABOUTME: Classifies failures into typed agent errors for user-facing rendering

package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/2389/flow-bridge/internal/store"
)

// ErrorKind classifies agent invocation failures
type ErrorKind string

const (
	// KindTimeout means the request exceeded the configured deadline or the
	// caller's context was cancelled mid-flight.
	KindTimeout ErrorKind = "timeout"
	// KindUnreachable means the backend could not be reached at all.
	KindUnreachable ErrorKind = "unreachable"
	// KindBackendRejected means the backend answered with a non-2xx status.
	KindBackendRejected ErrorKind = "backend_rejected"
	// KindUnparsableResponse means the backend answered 2xx but no reply
	// text could be extracted from the body.
	KindUnparsableResponse ErrorKind = "unparsable_response"
)

// AgentError is a typed failure from an agent invocation. Kind drives the
// user-facing message; Status and Body carry diagnostics for logs.
type AgentError struct {
	Kind   ErrorKind
	Status int
	Body   string
	Err    error
}

func (e *AgentError) Error() string {
	switch e.Kind {
	case KindBackendRejected:
		return fmt.Sprintf("agent backend rejected request: status %d", e.Status)
	case KindUnparsableResponse:
		return "agent response had no extractable reply text"
	case KindTimeout:
		return fmt.Sprintf("agent request timed out: %v", e.Err)
	default:
		return fmt.Sprintf("agent backend unreachable: %v", e.Err)
	}
}

func (e *AgentError) Unwrap() error { return e.Err }

// invokeRequest is the wire format agents accept
type invokeRequest struct {
	InputType  string `json:"input_type"`
	OutputType string `json:"output_type"`
	InputValue string `json:"input_value"`
	SessionID  string `json:"session_id"`
}

// Client invokes agent flows over HTTP. A single Client is shared across
// flows; per-flow endpoint and credentials come from the FlowConfig.
type Client struct {
	httpClient *http.Client
	paths      []string
	logger     *slog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithResponsePaths adds extra extraction paths tried before the built-in
// candidates.
func WithResponsePaths(paths []string) Option {
	return func(c *Client) { c.paths = paths }
}

// NewClient creates a Client with the given request timeout. Agent flows
// can legitimately run for minutes, so the timeout is long by default and
// cancellation flows through the caller's context.
func NewClient(timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "flow-client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke sends a message to the flow's run endpoint and returns the
// extracted reply text. Exactly one attempt is made; retries are the
// caller's policy, not the client's. All failures come back as *AgentError.
func (c *Client) Invoke(ctx context.Context, flow *store.FlowConfig, sessionToken, text string) (string, error) {
	body, err := json.Marshal(invokeRequest{
		InputType:  "chat",
		OutputType: "chat",
		InputValue: text,
		SessionID:  sessionToken,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	endpoint := flow.Endpoint()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", flow.APIKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Cancellation is the caller shutting down, not the agent being
		// slow; let it propagate untyped so no apology gets posted
		if errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("agent request cancelled: %w", err)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &AgentError{Kind: KindTimeout, Err: err}
		}
		// http.Client wraps its own deadline in a *url.Error with Timeout set
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return "", &AgentError{Kind: KindTimeout, Err: err}
		}
		return "", &AgentError{Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", &AgentError{Kind: KindUnreachable, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("agent rejected request",
			"flow", flow.Name, "status", resp.StatusCode, "elapsed", time.Since(start))
		return "", &AgentError{Kind: KindBackendRejected, Status: resp.StatusCode, Body: truncate(string(raw), 500)}
	}

	reply, ok := extractReply(raw, c.paths)
	if !ok {
		c.logger.Warn("agent response unparsable", "flow", flow.Name, "bytes", len(raw))
		return "", &AgentError{Kind: KindUnparsableResponse, Status: resp.StatusCode, Body: truncate(string(raw), 500)}
	}

	c.logger.Debug("agent replied",
		"flow", flow.Name, "elapsed", time.Since(start), "reply_len", len(reply))
	return reply, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
