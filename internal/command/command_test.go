package command

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/flow-bridge/internal/metrics"
	"github.com/2389/flow-bridge/internal/registry"
	"github.com/2389/flow-bridge/internal/router"
	"github.com/2389/flow-bridge/internal/store"
)

func setupHandler(t *testing.T, adminIDs []string) *Handler {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := registry.New(st, adminIDs)
	return NewHandler(reg, router.New(st, reg), st, metrics.New())
}

func execute(t *testing.T, h *Handler, text string) string {
	t.Helper()
	out, err := h.Execute(context.Background(), "U1", "C1", text)
	require.NoError(t, err)
	return out
}

func TestHandler_IsCommand(t *testing.T) {
	h := setupHandler(t, nil)

	assert.True(t, h.IsCommand("flows list"))
	assert.True(t, h.IsCommand("  HELP  "))
	assert.True(t, h.IsCommand("channel set alpha"))
	assert.False(t, h.IsCommand("what's the weather like"))
	assert.False(t, h.IsCommand(""))
}

func TestHandler_FlowsLifecycle(t *testing.T) {
	h := setupHandler(t, nil)

	out := execute(t, h, "flows list")
	assert.Contains(t, out, "No flows configured")

	out = execute(t, h, "flows add alpha http://langflow.local:7860 flow-1 sk-secret-key")
	assert.Contains(t, out, "alpha")
	assert.Contains(t, out, "default")

	out = execute(t, h, "flows add beta http://langflow.local:7860 flow-2 sk-other")
	assert.NotContains(t, out, "default")

	out = execute(t, h, "flows list")
	assert.Contains(t, out, "* alpha")
	assert.Contains(t, out, "  beta")

	out = execute(t, h, "flows default beta")
	assert.Contains(t, out, "beta")

	out = execute(t, h, "flows remove alpha")
	assert.Contains(t, out, "Removed")

	out = execute(t, h, "flows list")
	assert.NotContains(t, out, "alpha")
}

func TestHandler_FlowsInfo_MasksAPIKey(t *testing.T) {
	h := setupHandler(t, nil)
	execute(t, h, "flows add alpha http://langflow.local:7860 flow-1 sk-secret-key")

	out := execute(t, h, "flows info alpha")
	assert.Contains(t, out, "****-key")
	assert.NotContains(t, out, "sk-secret-key")
}

func TestHandler_FlowsAdd_QuotedDescription(t *testing.T) {
	h := setupHandler(t, nil)

	out := execute(t, h, `flows add alpha http://x flow-1 sk-key "support bot flow"`)
	assert.Contains(t, out, "Added")

	out = execute(t, h, "flows list")
	assert.Contains(t, out, "support bot flow")
}

func TestHandler_FlowsAdd_SlackLinkCleanup(t *testing.T) {
	h := setupHandler(t, nil)

	out := execute(t, h, "flows add alpha <http://langflow.local:7860|langflow.local> flow-1 sk-key")
	assert.Contains(t, out, "Added")

	out = execute(t, h, "flows info alpha")
	assert.Contains(t, out, "http://langflow.local:7860")
	assert.NotContains(t, out, "|")
}

func TestHandler_ChannelLifecycle(t *testing.T) {
	h := setupHandler(t, nil)
	execute(t, h, "flows add alpha http://x flow-1 sk-key")
	execute(t, h, "flows add beta http://x flow-2 sk-key")

	out := execute(t, h, "channel info")
	assert.Contains(t, out, "default flow *alpha*")

	out = execute(t, h, "channel set beta")
	assert.Contains(t, out, "beta")

	out = execute(t, h, "channel info")
	assert.Contains(t, out, "bound to flow *beta*")

	out = execute(t, h, "channel reset")
	assert.Contains(t, out, "default")

	out = execute(t, h, "channel")
	assert.Contains(t, out, "default flow *alpha*")
}

func TestHandler_ChannelList(t *testing.T) {
	h := setupHandler(t, nil)
	execute(t, h, "flows add alpha http://x flow-1 sk-key")

	out := execute(t, h, "channel list")
	assert.Contains(t, out, "No channels have explicit bindings")

	execute(t, h, "channel set alpha")
	out = execute(t, h, "channel list")
	assert.Contains(t, out, "<#C1> -> alpha")
}

func TestHandler_UsageErrors(t *testing.T) {
	h := setupHandler(t, nil)

	tests := []struct {
		text string
		want string
	}{
		{"flows add alpha", "Usage:"},
		{"flows remove", "Usage:"},
		{"flows default", "Usage:"},
		{"flows info", "Usage:"},
		{"channel set", "Usage:"},
		{"flows frobnicate", "Unknown subcommand"},
		{"channel frobnicate", "Unknown subcommand"},
		{"sessions", "Usage:"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Contains(t, execute(t, h, tt.text), tt.want)
		})
	}
}

func TestHandler_PermissionDeniedRendered(t *testing.T) {
	h := setupHandler(t, []string{"U-admin"})

	out, err := h.Execute(context.Background(), "U-nobody", "C1", "flows add alpha http://x f k")
	require.NoError(t, err)
	assert.Contains(t, out, "only admins")
}

func TestHandler_NotFoundRendered(t *testing.T) {
	h := setupHandler(t, nil)

	out := execute(t, h, "flows remove ghost")
	assert.Contains(t, out, "No flow with that name")
}

func TestHandler_UnknownCommand(t *testing.T) {
	h := setupHandler(t, nil)

	_, err := h.Execute(context.Background(), "U1", "C1", "dance")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestHandler_SessionsStats(t *testing.T) {
	h := setupHandler(t, nil)

	out := execute(t, h, "sessions stats")
	assert.Contains(t, out, "0 total")
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"simple", "flows list", []string{"flows", "list"}},
		{"extra whitespace", "  flows   list  ", []string{"flows", "list"}},
		{"double quotes", `add "my flow" x`, []string{"add", "my flow", "x"}},
		{"single quotes", "add 'my flow' x", []string{"add", "my flow", "x"}},
		{"empty quoted", `add "" x`, []string{"add", "", "x"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Tokenize(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTokenize_UnterminatedQuote(t *testing.T) {
	_, err := Tokenize(`add "broken`)
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestCleanSlackText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"<http://x:7860|x>", "http://x:7860"},
		{"<https://example.com>", "https://example.com"},
		{"add <http://a|a> and <http://b>", "add http://a and http://b"},
		{"no links here", "no links here"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CleanSlackText(tt.in))
	}
}
