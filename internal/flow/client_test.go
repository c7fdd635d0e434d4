package flow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/flow-bridge/internal/store"
)

func flowFor(server *httptest.Server) *store.FlowConfig {
	return &store.FlowConfig{
		Name:    "alpha",
		BaseURL: server.URL,
		FlowID:  "flow-123",
		APIKey:  "sk-test",
	}
}

func langflowBody(message string) string {
	return fmt.Sprintf(`{"outputs":[{"outputs":[{"results":{"message":{"text":%q}}}]}]}`, message)
}

func TestClient_Invoke_Success(t *testing.T) {
	var gotPath, gotKey string
	var gotBody invokeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, langflowBody("hello from the flow"))
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	reply, err := client.Invoke(context.Background(), flowFor(server), "tok-1", "hi there")
	require.NoError(t, err)

	assert.Equal(t, "hello from the flow", reply)
	assert.Equal(t, "/api/v1/run/flow-123", gotPath)
	assert.Equal(t, "sk-test", gotKey)
	assert.Equal(t, "chat", gotBody.InputType)
	assert.Equal(t, "chat", gotBody.OutputType)
	assert.Equal(t, "hi there", gotBody.InputValue)
	assert.Equal(t, "tok-1", gotBody.SessionID)
}

func TestClient_Invoke_BackendRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer server.Close()

	client := NewClient(5 * time.Second)
	_, err := client.Invoke(context.Background(), flowFor(server), "tok-1", "hi")

	var agentErr *AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, KindBackendRejected, agentErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, agentErr.Status)
}

func TestClient_Invoke_UnparsableResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "<html>oops</html>"},
		{"json without text", `{"status":"ok","count":3}`},
		{"empty text leaves", `{"outputs":[{"outputs":[{"results":{"message":{"text":""}}}]}]}`},
		{"whitespace-only text", `{"outputs":[{"outputs":[{"results":{"message":{"text":" \n\t "}}}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, tt.body)
			}))
			defer server.Close()

			client := NewClient(5 * time.Second)
			_, err := client.Invoke(context.Background(), flowFor(server), "tok-1", "hi")

			var agentErr *AgentError
			require.ErrorAs(t, err, &agentErr)
			assert.Equal(t, KindUnparsableResponse, agentErr.Kind)
		})
	}
}

func TestClient_Invoke_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient(100 * time.Millisecond)
	_, err := client.Invoke(context.Background(), flowFor(server), "tok-1", "hi")

	var agentErr *AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, KindTimeout, agentErr.Kind)
}

func TestClient_Invoke_ContextCancelled(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can detect the
		// client disconnect and cancel r.Context(); otherwise Close deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	client := NewClient(time.Minute)
	_, err := client.Invoke(ctx, flowFor(server), "tok-1", "hi")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	var agentErr *AgentError
	assert.False(t, errors.As(err, &agentErr), "shutdown is not an agent failure")
}

func TestClient_Invoke_Unreachable(t *testing.T) {
	// Closed port; connection refused
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	server.Close()

	client := NewClient(time.Second)
	_, err := client.Invoke(context.Background(), flowFor(server), "tok-1", "hi")

	var agentErr *AgentError
	require.ErrorAs(t, err, &agentErr)
	assert.Equal(t, KindUnreachable, agentErr.Kind)
	assert.False(t, errors.Is(err, context.DeadlineExceeded))
}

func TestClient_Invoke_ConfiguredPathWins(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"custom":{"reply":"from custom path"}}`)
	}))
	defer server.Close()

	client := NewClient(5*time.Second, WithResponsePaths([]string{"custom.reply"}))
	reply, err := client.Invoke(context.Background(), flowFor(server), "tok-1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "from custom path", reply)
}

func TestExtractReply_CandidatePaths(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"artifacts message",
			`{"outputs":[{"outputs":[{"artifacts":{"message":"via artifacts"}}]}]}`,
			"via artifacts",
		},
		{
			"messages list",
			`{"outputs":[{"outputs":[{"messages":[{"message":"via messages"}]}]}]}`,
			"via messages",
		},
		{
			"results message text",
			langflowBody("via results text"),
			"via results text",
		},
		{
			"results message data text",
			`{"outputs":[{"outputs":[{"results":{"message":{"data":{"text":"via data"}}}}]}]}`,
			"via data",
		},
		{
			"results message string",
			`{"outputs":[{"outputs":[{"results":{"message":"plain string"}}]}]}`,
			"plain string",
		},
		{
			"fallback text leaf",
			`{"deeply":{"nested":{"text":"found anyway"}}}`,
			"found anyway",
		},
		{
			"padded text trimmed",
			langflowBody("  padded reply \n"),
			"padded reply",
		},
		{
			"blank leaf skipped for later one",
			`{"outputs":[{"outputs":[{"artifacts":{"message":"   "},"messages":[{"message":"real one"}]}]}]}`,
			"real one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractReply([]byte(tt.body), nil)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractReply_PrefersSpecificPathOverFallback(t *testing.T) {
	body := `{"text":"shallow leaf","outputs":[{"outputs":[{"artifacts":{"message":"specific"}}]}]}`
	got, ok := extractReply([]byte(body), nil)
	require.True(t, ok)
	assert.Equal(t, "specific", got)
}
