// ABOUTME: Store interface and data types for flow-bridge persistence
// ABOUTME: Defines FlowConfig, ChannelBinding, Session structs and the Store interface

package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrDuplicateFlow is returned when trying to create a flow whose name is taken
var ErrDuplicateFlow = errors.New("flow already exists")

// ErrDuplicateSession is returned when a session already exists for the thread.
// Callers should re-read the existing row and use its token.
var ErrDuplicateSession = errors.New("session already exists for thread")

// FlowConfig identifies one external agent backend
type FlowConfig struct {
	Name        string
	BaseURL     string
	FlowID      string
	APIKey      string
	Description string
	IsDefault   bool
	CreatedAt   time.Time
}

// Endpoint returns the full run URL for this flow
func (f *FlowConfig) Endpoint() string {
	return strings.TrimSuffix(f.BaseURL, "/") + "/api/v1/run/" + f.FlowID
}

// MaskedAPIKey returns the API key with all but the last four characters hidden.
// Read paths must never echo the full key.
func (f *FlowConfig) MaskedAPIKey() string {
	if len(f.APIKey) <= 4 {
		return "****"
	}
	return "****" + f.APIKey[len(f.APIKey)-4:]
}

// ChannelBinding maps a channel to a flow by name. Absence of a binding
// means the channel uses the current default flow.
type ChannelBinding struct {
	ChannelID string
	FlowName  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Session maps a conversation thread to an agent-side session token.
// FlowName is frozen at creation and never updated afterwards.
type Session struct {
	ThreadID   string
	Token      string
	FlowName   string
	CreatedAt  time.Time
	LastUsedAt time.Time
}

// SessionStats summarizes stored sessions for the sweep log line
type SessionStats struct {
	Total          int
	ActiveLastHour int
}

// Store defines the interface for flow, binding, and session persistence
type Store interface {
	// Flows
	CreateFlow(ctx context.Context, flow *FlowConfig) error
	GetFlow(ctx context.Context, name string) (*FlowConfig, error)
	GetDefaultFlow(ctx context.Context) (*FlowConfig, error)
	SetDefaultFlow(ctx context.Context, name string) error
	DeleteFlow(ctx context.Context, name string) error
	ListFlows(ctx context.Context) ([]*FlowConfig, error)

	// Channel bindings
	SetChannelFlow(ctx context.Context, channelID, flowName string) error
	GetChannelBinding(ctx context.Context, channelID string) (*ChannelBinding, error)
	DeleteChannelBinding(ctx context.Context, channelID string) error
	ListChannelBindings(ctx context.Context) ([]*ChannelBinding, error)

	// Sessions
	GetSession(ctx context.Context, threadID string) (*Session, error)
	CreateSession(ctx context.Context, session *Session) error
	TouchSession(ctx context.Context, threadID string, usedAt time.Time) error
	DeleteSession(ctx context.Context, threadID string) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
	SessionStats(ctx context.Context) (*SessionStats, error)

	// Close releases any resources held by the store
	Close() error
}
