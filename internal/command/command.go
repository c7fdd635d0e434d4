// ABOUTME: Admin command parsing and dispatch for flow and channel management
// ABOUTME: Tokenizes chat text, routes to handlers, and renders plain-text responses

package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/2389/flow-bridge/internal/metrics"
	"github.com/2389/flow-bridge/internal/registry"
	"github.com/2389/flow-bridge/internal/router"
	"github.com/2389/flow-bridge/internal/store"
)

// ErrUnknownCommand is returned for text that starts like a command but
// matches no handler
var ErrUnknownCommand = errors.New("unknown command")

// Request carries one parsed command invocation
type Request struct {
	CallerID  string
	ChannelID string
	Args      []string
}

type handlerFunc func(ctx context.Context, req Request) (string, error)

// Handler dispatches admin commands against the registry and router
type Handler struct {
	registry *registry.Registry
	router   *router.Router
	store    store.Store
	metrics  *metrics.Metrics
	logger   *slog.Logger
	table    map[string]handlerFunc
}

// NewHandler creates a command Handler.
func NewHandler(reg *registry.Registry, rt *router.Router, st store.Store, m *metrics.Metrics) *Handler {
	h := &Handler{
		registry: reg,
		router:   rt,
		store:    st,
		metrics:  m,
		logger:   slog.Default().With("component", "command"),
	}
	h.table = map[string]handlerFunc{
		"help":     h.help,
		"flows":    h.flows,
		"channel":  h.channel,
		"sessions": h.sessions,
	}
	return h
}

// IsCommand reports whether the text should be dispatched as a command
// rather than forwarded to the agent.
func (h *Handler) IsCommand(text string) bool {
	tokens, err := Tokenize(CleanSlackText(text))
	if err != nil || len(tokens) == 0 {
		return false
	}
	_, ok := h.table[strings.ToLower(tokens[0])]
	return ok
}

// Execute parses and runs a command, returning the text to post back.
// Authorization and argument errors are rendered as user-facing text;
// only store failures come back as errors.
func (h *Handler) Execute(ctx context.Context, callerID, channelID, text string) (string, error) {
	tokens, err := Tokenize(CleanSlackText(text))
	if err != nil {
		return fmt.Sprintf("Couldn't parse that: %v", err), nil
	}
	if len(tokens) == 0 {
		return h.help(ctx, Request{})
	}

	name := strings.ToLower(tokens[0])
	fn, ok := h.table[name]
	if !ok {
		return "", ErrUnknownCommand
	}

	h.metrics.CommandsHandled.WithLabelValues(name).Inc()
	h.logger.Info("handling command", "command", name, "caller", callerID, "channel", channelID)

	out, err := fn(ctx, Request{CallerID: callerID, ChannelID: channelID, Args: tokens[1:]})
	switch {
	case errors.Is(err, registry.ErrPermissionDenied):
		return "Sorry, only admins can do that.", nil
	case errors.Is(err, registry.ErrInvalidArgument):
		return fmt.Sprintf("Invalid arguments: %v", err), nil
	case errors.Is(err, store.ErrNotFound):
		return "No flow with that name exists. Try `flows list`.", nil
	case errors.Is(err, store.ErrDuplicateFlow):
		return "A flow with that name already exists.", nil
	case err != nil:
		return "", err
	}
	return out, nil
}

func (h *Handler) help(ctx context.Context, req Request) (string, error) {
	return strings.TrimSpace(`
Commands:
  help                                        show this help
  flows [list]                                list configured flows
  flows add <name> <url> <flow-id> <api-key> [description]
  flows remove <name>                         delete a flow
  flows default <name>                        set the default flow
  flows info <name>                           show one flow's details
  channel [info]                              show this channel's flow
  channel list                                list all channel bindings
  channel set <name>                          bind this channel to a flow
  channel reset                               remove this channel's binding
  sessions stats                              show session counts
`), nil
}

func (h *Handler) flows(ctx context.Context, req Request) (string, error) {
	sub := "list"
	args := req.Args
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
		args = args[1:]
	}

	switch sub {
	case "list":
		return h.flowsList(ctx)
	case "add":
		return h.flowsAdd(ctx, req.CallerID, args)
	case "remove":
		if len(args) != 1 {
			return "Usage: `flows remove <name>`", nil
		}
		if err := h.registry.RemoveFlow(ctx, req.CallerID, args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("Removed flow *%s*.", args[0]), nil
	case "default":
		if len(args) != 1 {
			return "Usage: `flows default <name>`", nil
		}
		if err := h.registry.SetDefault(ctx, req.CallerID, args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("*%s* is now the default flow.", args[0]), nil
	case "info":
		if len(args) != 1 {
			return "Usage: `flows info <name>`", nil
		}
		return h.flowsInfo(ctx, args[0])
	default:
		return fmt.Sprintf("Unknown subcommand `flows %s`. Try `help`.", sub), nil
	}
}

func (h *Handler) flowsList(ctx context.Context) (string, error) {
	flows, err := h.registry.ListFlows(ctx)
	if err != nil {
		return "", err
	}
	if len(flows) == 0 {
		return "No flows configured. Add one with `flows add`.", nil
	}

	var b strings.Builder
	b.WriteString("Configured flows:\n")
	for _, f := range flows {
		marker := "  "
		if f.IsDefault {
			marker = "* "
		}
		fmt.Fprintf(&b, "%s%s", marker, f.Name)
		if f.Description != "" {
			fmt.Fprintf(&b, " - %s", f.Description)
		}
		b.WriteString("\n")
	}
	b.WriteString("(* = default)")
	return b.String(), nil
}

func (h *Handler) flowsAdd(ctx context.Context, callerID string, args []string) (string, error) {
	if len(args) < 4 {
		return "Usage: `flows add <name> <url> <flow-id> <api-key> [description]`", nil
	}
	description := strings.Join(args[4:], " ")

	flowCfg, err := h.registry.AddFlow(ctx, callerID, args[0], args[1], args[2], args[3], description)
	if err != nil {
		return "", err
	}

	if flowCfg.IsDefault {
		return fmt.Sprintf("Added flow *%s* and made it the default.", flowCfg.Name), nil
	}
	return fmt.Sprintf("Added flow *%s*.", flowCfg.Name), nil
}

func (h *Handler) flowsInfo(ctx context.Context, name string) (string, error) {
	f, err := h.registry.GetFlow(ctx, name)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Flow *%s*\n", f.Name)
	fmt.Fprintf(&b, "  URL:      %s\n", f.BaseURL)
	fmt.Fprintf(&b, "  Flow ID:  %s\n", f.FlowID)
	fmt.Fprintf(&b, "  API key:  %s\n", f.MaskedAPIKey())
	fmt.Fprintf(&b, "  Default:  %t", f.IsDefault)
	if f.Description != "" {
		fmt.Fprintf(&b, "\n  About:    %s", f.Description)
	}
	return b.String(), nil
}

func (h *Handler) channel(ctx context.Context, req Request) (string, error) {
	sub := "info"
	args := req.Args
	if len(args) > 0 {
		sub = strings.ToLower(args[0])
		args = args[1:]
	}

	switch sub {
	case "info":
		return h.channelInfo(ctx, req.ChannelID)
	case "list":
		return h.channelList(ctx)
	case "set":
		if len(args) != 1 {
			return "Usage: `channel set <name>`", nil
		}
		if err := h.router.SetChannelFlow(ctx, req.CallerID, req.ChannelID, args[0]); err != nil {
			return "", err
		}
		return fmt.Sprintf("This channel now uses flow *%s*.", args[0]), nil
	case "reset":
		if err := h.router.ResetChannel(ctx, req.CallerID, req.ChannelID); err != nil {
			return "", err
		}
		return "This channel now uses the default flow.", nil
	default:
		return fmt.Sprintf("Unknown subcommand `channel %s`. Try `help`.", sub), nil
	}
}

func (h *Handler) channelInfo(ctx context.Context, channelID string) (string, error) {
	binding, flowCfg, err := h.router.ChannelInfo(ctx, channelID)
	if err != nil {
		return "", err
	}

	switch {
	case flowCfg == nil:
		return "No flow is configured for this channel and no default exists.", nil
	case binding == nil:
		return fmt.Sprintf("This channel uses the default flow *%s*.", flowCfg.Name), nil
	default:
		return fmt.Sprintf("This channel is bound to flow *%s*.", flowCfg.Name), nil
	}
}

func (h *Handler) channelList(ctx context.Context) (string, error) {
	bindings, err := h.store.ListChannelBindings(ctx)
	if err != nil {
		return "", err
	}
	if len(bindings) == 0 {
		return "No channels have explicit bindings; everything uses the default flow.", nil
	}

	var b strings.Builder
	b.WriteString("Channel bindings:\n")
	for _, binding := range bindings {
		fmt.Fprintf(&b, "  <#%s> -> %s\n", binding.ChannelID, binding.FlowName)
	}
	return strings.TrimRight(b.String(), "\n"), nil
}

func (h *Handler) sessions(ctx context.Context, req Request) (string, error) {
	if len(req.Args) != 1 || strings.ToLower(req.Args[0]) != "stats" {
		return "Usage: `sessions stats`", nil
	}

	stats, err := h.store.SessionStats(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Sessions: %d total, %d active in the last hour.", stats.Total, stats.ActiveLastHour), nil
}

// CommandNames returns the registered top-level command names, sorted.
func (h *Handler) CommandNames() []string {
	names := make([]string, 0, len(h.table))
	for name := range h.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
