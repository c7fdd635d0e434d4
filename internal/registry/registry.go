// ABOUTME: Flow registry providing validated CRUD over agent flow configurations
// ABOUTME: Gates every mutation behind the admin allow-list, empty list meaning open

package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/flow-bridge/internal/store"
)

// ErrPermissionDenied is returned when a non-admin caller attempts a mutation
var ErrPermissionDenied = errors.New("permission denied")

// ErrInvalidArgument is returned when a flow field fails validation
var ErrInvalidArgument = errors.New("invalid argument")

// Registry manages flow configurations on top of the persistent store.
// All mutating operations take the caller's identity and check it against
// the admin allow-list before touching the store.
type Registry struct {
	store  store.Store
	admins map[string]struct{}
	logger *slog.Logger
}

// New creates a Registry. adminIDs is the allow-list for mutations; an
// empty list leaves mutations unrestricted.
func New(st store.Store, adminIDs []string) *Registry {
	admins := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		if id != "" {
			admins[id] = struct{}{}
		}
	}
	return &Registry{
		store:  st,
		admins: admins,
		logger: slog.Default().With("component", "registry"),
	}
}

// IsAdmin reports whether the caller may mutate flows and bindings.
func (r *Registry) IsAdmin(callerID string) bool {
	if len(r.admins) == 0 {
		return true
	}
	_, ok := r.admins[callerID]
	return ok
}

// authorize returns ErrPermissionDenied for non-admin callers and logs the
// rejected attempt.
func (r *Registry) authorize(callerID, op string) error {
	if r.IsAdmin(callerID) {
		return nil
	}
	r.logger.Warn("rejected unauthorized mutation", "caller", callerID, "op", op)
	return ErrPermissionDenied
}

// AddFlow validates and creates a new flow configuration. If no default
// flow exists yet, the new flow becomes the default.
// Returns ErrPermissionDenied, ErrInvalidArgument, or store.ErrDuplicateFlow.
func (r *Registry) AddFlow(ctx context.Context, callerID, name, baseURL, flowID, apiKey, description string) (*store.FlowConfig, error) {
	if err := r.authorize(callerID, "add_flow"); err != nil {
		return nil, err
	}

	switch {
	case name == "":
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	case baseURL == "":
		return nil, fmt.Errorf("%w: base URL is required", ErrInvalidArgument)
	case flowID == "":
		return nil, fmt.Errorf("%w: flow ID is required", ErrInvalidArgument)
	case apiKey == "":
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidArgument)
	}

	flow := &store.FlowConfig{
		Name:        name,
		BaseURL:     baseURL,
		FlowID:      flowID,
		APIKey:      apiKey,
		Description: description,
		CreatedAt:   time.Now().UTC(),
	}

	if err := r.store.CreateFlow(ctx, flow); err != nil {
		return nil, err
	}

	r.logger.Info("added flow", "name", name, "default", flow.IsDefault, "caller", callerID)
	return flow, nil
}

// RemoveFlow deletes a flow configuration. Bindings and sessions that
// reference the flow are left dangling; resolution falls back to the
// default. Removing the current default is allowed and may leave the
// system with no default flow.
// Returns ErrPermissionDenied or store.ErrNotFound.
func (r *Registry) RemoveFlow(ctx context.Context, callerID, name string) error {
	if err := r.authorize(callerID, "remove_flow"); err != nil {
		return err
	}

	if err := r.store.DeleteFlow(ctx, name); err != nil {
		return err
	}

	r.logger.Info("removed flow", "name", name, "caller", callerID)
	return nil
}

// SetDefault flags the named flow as the default, atomically clearing the
// previous default.
// Returns ErrPermissionDenied or store.ErrNotFound.
func (r *Registry) SetDefault(ctx context.Context, callerID, name string) error {
	if err := r.authorize(callerID, "set_default"); err != nil {
		return err
	}

	if err := r.store.SetDefaultFlow(ctx, name); err != nil {
		return err
	}

	r.logger.Info("set default flow", "name", name, "caller", callerID)
	return nil
}

// GetFlow retrieves a flow configuration by name.
func (r *Registry) GetFlow(ctx context.Context, name string) (*store.FlowConfig, error) {
	return r.store.GetFlow(ctx, name)
}

// GetDefaultFlow retrieves the current default flow.
func (r *Registry) GetDefaultFlow(ctx context.Context) (*store.FlowConfig, error) {
	return r.store.GetDefaultFlow(ctx)
}

// ListFlows returns all flows in stable name order.
func (r *Registry) ListFlows(ctx context.Context) ([]*store.FlowConfig, error) {
	return r.store.ListFlows(ctx)
}
