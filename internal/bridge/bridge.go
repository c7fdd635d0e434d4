// ABOUTME: Bridge engine orchestrating dedupe, routing, sessions, and agent calls
// ABOUTME: Turns inbound chat messages into outbound replies independent of the frontend

package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/flow-bridge/internal/dedupe"
	"github.com/2389/flow-bridge/internal/flow"
	"github.com/2389/flow-bridge/internal/metrics"
	"github.com/2389/flow-bridge/internal/router"
	"github.com/2389/flow-bridge/internal/session"
	"github.com/2389/flow-bridge/internal/store"
)

// InboundMessage is a frontend-agnostic chat message addressed to the bridge
type InboundMessage struct {
	EventID         string
	ChannelID       string
	ThreadID        string
	SenderID        string
	Text            string
	IsDirectMessage bool
}

// OutboundReply is the text the frontend should post back into the thread
type OutboundReply struct {
	ChannelID string
	ThreadID  string
	Text      string
}

// AgentInvoker invokes a flow and returns the reply text
type AgentInvoker interface {
	Invoke(ctx context.Context, flowCfg *store.FlowConfig, sessionToken, text string) (string, error)
}

// CommandRunner recognizes and executes admin command text
type CommandRunner interface {
	IsCommand(text string) bool
	Execute(ctx context.Context, callerID, channelID, text string) (string, error)
}

// Engine wires the routing, session, and agent layers together. It is
// frontend-agnostic: Slack specifics stay in the slackbridge package.
type Engine struct {
	router   *router.Router
	sessions *session.Service
	agent    AgentInvoker
	commands CommandRunner
	store    store.Store
	tracker  *dedupe.Tracker
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// NewEngine creates a bridge Engine over the given collaborators.
// commands may be nil, in which case all text goes to the agent.
func NewEngine(r *router.Router, sessions *session.Service, agent AgentInvoker, commands CommandRunner, st store.Store, tracker *dedupe.Tracker, m *metrics.Metrics) *Engine {
	return &Engine{
		router:   r,
		sessions: sessions,
		agent:    agent,
		commands: commands,
		store:    st,
		tracker:  tracker,
		metrics:  m,
		logger:   slog.Default().With("component", "bridge"),
	}
}

// HandleMessage processes one inbound message end to end. A nil reply with
// a nil error means the message was deliberately dropped (redelivery).
// User-visible failures come back as reply text; only unexpected internal
// failures surface as errors.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) (*OutboundReply, error) {
	if msg.EventID != "" && e.tracker.Seen(msg.ChannelID+":"+msg.EventID) {
		e.metrics.MessagesDeduped.Inc()
		e.logger.Debug("dropped redelivered message", "channel", msg.ChannelID, "event", msg.EventID)
		return nil, nil
	}
	e.metrics.MessagesReceived.Inc()

	// Commands go through the same dedupe gate: a redelivered mutation must
	// not execute twice
	if e.commands != nil && e.commands.IsCommand(msg.Text) {
		out, err := e.commands.Execute(ctx, msg.SenderID, msg.ChannelID, msg.Text)
		if err != nil {
			return nil, fmt.Errorf("running command: %w", err)
		}
		return e.reply(msg, out), nil
	}

	resolved, err := e.router.ResolveFlow(ctx, msg.ChannelID)
	if errors.Is(err, router.ErrNoFlowConfigured) {
		return e.reply(msg, "No flow is configured yet. An admin can add one with `flows add`."), nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving flow: %w", err)
	}

	res, err := e.sessions.ResolveOrCreate(ctx, msg.ThreadID, resolved)
	if err != nil {
		return nil, fmt.Errorf("resolving session: %w", err)
	}
	if res.Created {
		e.metrics.SessionsCreated.Inc()
	}

	// The session's flow was frozen at creation and may differ from the
	// channel's current resolution
	target := resolved
	if res.FlowName != resolved.Name {
		frozen, err := e.store.GetFlow(ctx, res.FlowName)
		switch {
		case err == nil:
			target = frozen
		case errors.Is(err, store.ErrNotFound):
			e.logger.Warn("session flow was deleted, using channel resolution",
				"thread", msg.ThreadID, "frozen", res.FlowName, "resolved", resolved.Name)
		default:
			return nil, fmt.Errorf("loading session flow: %w", err)
		}
	}

	start := time.Now()
	text, err := e.agent.Invoke(ctx, target, res.Token, msg.Text)
	e.metrics.AgentLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		var agentErr *flow.AgentError
		if errors.As(err, &agentErr) {
			e.metrics.AgentErrors.WithLabelValues(string(agentErr.Kind)).Inc()
			e.logger.Error("agent invocation failed",
				"flow", target.Name, "kind", agentErr.Kind, "status", agentErr.Status, "error", err)
			return e.reply(msg, renderAgentError(agentErr)), nil
		}
		return nil, fmt.Errorf("invoking agent: %w", err)
	}

	e.metrics.RepliesSent.Inc()
	return e.reply(msg, text), nil
}

func (e *Engine) reply(msg InboundMessage, text string) *OutboundReply {
	return &OutboundReply{ChannelID: msg.ChannelID, ThreadID: msg.ThreadID, Text: text}
}

// renderAgentError maps a typed agent failure to the text users see.
// Diagnostics stay in the logs; the channel gets a short plain sentence.
func renderAgentError(err *flow.AgentError) string {
	switch err.Kind {
	case flow.KindTimeout:
		return "The agent took too long to respond. Please try again."
	case flow.KindBackendRejected:
		return fmt.Sprintf("The agent backend rejected the request (status %d).", err.Status)
	case flow.KindUnparsableResponse:
		return "The agent responded, but I couldn't extract a reply from it."
	default:
		return "I couldn't reach the agent backend. Please try again later."
	}
}
