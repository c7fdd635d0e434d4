// ABOUTME: Channel router resolving a channel to its flow configuration
// ABOUTME: Consults channel-specific overrides, falling back to the registry default

package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/flow-bridge/internal/registry"
	"github.com/2389/flow-bridge/internal/store"
)

// ErrNoFlowConfigured means neither a channel binding nor a default flow
// exists. This is terminal for the message; the caller must surface a
// user-visible "not configured" reply, never drop the message silently.
var ErrNoFlowConfigured = errors.New("no flow configured")

// FlowStore is the subset of the persistent store the router needs
type FlowStore interface {
	GetChannelBinding(ctx context.Context, channelID string) (*store.ChannelBinding, error)
	GetFlow(ctx context.Context, name string) (*store.FlowConfig, error)
	GetDefaultFlow(ctx context.Context) (*store.FlowConfig, error)
	SetChannelFlow(ctx context.Context, channelID, flowName string) error
	DeleteChannelBinding(ctx context.Context, channelID string) error
}

// Authorizer gates channel binding mutations
type Authorizer interface {
	IsAdmin(callerID string) bool
}

// Router resolves channels to flow configurations
type Router struct {
	store  FlowStore
	auth   Authorizer
	logger *slog.Logger
}

// New creates a Router over the given store and authorizer.
func New(st FlowStore, auth Authorizer) *Router {
	return &Router{
		store:  st,
		auth:   auth,
		logger: slog.Default().With("component", "router"),
	}
}

// ResolveFlow returns the flow configuration for a channel.
// A channel binding wins if its flow still exists; a binding pointing at a
// deleted flow falls through to the default rather than erroring the caller.
// Returns ErrNoFlowConfigured when no binding applies and no default exists.
func (r *Router) ResolveFlow(ctx context.Context, channelID string) (*store.FlowConfig, error) {
	binding, err := r.store.GetChannelBinding(ctx, channelID)
	switch {
	case err == nil:
		flow, err := r.store.GetFlow(ctx, binding.FlowName)
		if err == nil {
			return flow, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("looking up bound flow: %w", err)
		}
		// Bound flow was deleted; fall through to the default
		r.logger.Warn("channel bound to deleted flow, using default",
			"channel", channelID, "flow", binding.FlowName)
	case errors.Is(err, store.ErrNotFound):
		// No binding; use the default
	default:
		return nil, fmt.Errorf("looking up channel binding: %w", err)
	}

	flow, err := r.store.GetDefaultFlow(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoFlowConfigured
	}
	if err != nil {
		return nil, fmt.Errorf("looking up default flow: %w", err)
	}
	return flow, nil
}

// SetChannelFlow binds a channel to a flow by name, validating the flow
// exists. Returns registry.ErrPermissionDenied for non-admin callers and
// store.ErrNotFound for unknown flows.
func (r *Router) SetChannelFlow(ctx context.Context, callerID, channelID, flowName string) error {
	if !r.auth.IsAdmin(callerID) {
		r.logger.Warn("rejected unauthorized channel bind", "caller", callerID, "channel", channelID)
		return registry.ErrPermissionDenied
	}

	if err := r.store.SetChannelFlow(ctx, channelID, flowName); err != nil {
		return err
	}

	r.logger.Info("bound channel to flow", "channel", channelID, "flow", flowName, "caller", callerID)
	return nil
}

// ResetChannel removes a channel's binding so it resolves to the default
// flow. Idempotent: resetting an unbound channel is not an error.
func (r *Router) ResetChannel(ctx context.Context, callerID, channelID string) error {
	if !r.auth.IsAdmin(callerID) {
		r.logger.Warn("rejected unauthorized channel reset", "caller", callerID, "channel", channelID)
		return registry.ErrPermissionDenied
	}

	if err := r.store.DeleteChannelBinding(ctx, channelID); err != nil {
		return err
	}

	r.logger.Info("reset channel binding", "channel", channelID, "caller", callerID)
	return nil
}

// ChannelInfo describes how a channel currently resolves: its explicit
// binding if any, and the effective flow after fallback. Either value may
// be nil.
func (r *Router) ChannelInfo(ctx context.Context, channelID string) (*store.ChannelBinding, *store.FlowConfig, error) {
	var binding *store.ChannelBinding
	b, err := r.store.GetChannelBinding(ctx, channelID)
	if err == nil {
		binding = b
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fmt.Errorf("looking up channel binding: %w", err)
	}

	flow, err := r.ResolveFlow(ctx, channelID)
	if errors.Is(err, ErrNoFlowConfigured) {
		return binding, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return binding, flow, nil
}
