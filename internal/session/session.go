// ABOUTME: Session service mapping conversation threads to agent session tokens
// ABOUTME: Freezes the flow at creation and expires idle sessions past the TTL

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/2389/flow-bridge/internal/store"
)

// SessionStore is the subset of the persistent store the service needs
type SessionStore interface {
	GetSession(ctx context.Context, threadID string) (*store.Session, error)
	CreateSession(ctx context.Context, session *store.Session) error
	TouchSession(ctx context.Context, threadID string, usedAt time.Time) error
	DeleteSession(ctx context.Context, threadID string) error
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error)
	SessionStats(ctx context.Context) (*store.SessionStats, error)
}

// Resolution is the outcome of resolving a thread to a session
type Resolution struct {
	Token    string
	FlowName string
	Created  bool
}

// Service resolves threads to sessions. A thread keeps the flow it was
// created with for its whole lifetime; only expiry (and the subsequent
// re-create) can rebind it.
type Service struct {
	store  SessionStore
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// New creates a session Service with the given idle TTL.
func New(st SessionStore, ttl time.Duration) *Service {
	return &Service{
		store:  st,
		ttl:    ttl,
		logger: slog.Default().With("component", "session"),
		now:    time.Now,
	}
}

// ResolveOrCreate returns the session for a thread, minting one if none
// exists. An existing live session wins regardless of resolvedFlow: the
// flow frozen at creation preserves conversation continuity even if the
// channel was reconfigured mid-thread. An expired session is replaced
// immediately rather than waiting for the sweep.
func (s *Service) ResolveOrCreate(ctx context.Context, threadID string, resolvedFlow *store.FlowConfig) (*Resolution, error) {
	now := s.now().UTC()

	existing, err := s.store.GetSession(ctx, threadID)
	switch {
	case err == nil:
		if now.Sub(existing.LastUsedAt) <= s.ttl {
			if err := s.store.TouchSession(ctx, threadID, now); err != nil && !errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("touching session: %w", err)
			}
			return &Resolution{Token: existing.Token, FlowName: existing.FlowName}, nil
		}
		// Expired between sweeps; drop it and mint a fresh session below
		if err := s.store.DeleteSession(ctx, threadID); err != nil {
			return nil, fmt.Errorf("deleting expired session: %w", err)
		}
		s.logger.Debug("replaced expired session", "thread", threadID)
	case errors.Is(err, store.ErrNotFound):
		// No session yet
	default:
		return nil, fmt.Errorf("looking up session: %w", err)
	}

	session := &store.Session{
		ThreadID:   threadID,
		Token:      uuid.NewString(),
		FlowName:   resolvedFlow.Name,
		CreatedAt:  now,
		LastUsedAt: now,
	}

	err = s.store.CreateSession(ctx, session)
	if errors.Is(err, store.ErrDuplicateSession) {
		// Lost the create race; adopt the winner's session
		winner, err := s.store.GetSession(ctx, threadID)
		if err != nil {
			return nil, fmt.Errorf("reading racing session: %w", err)
		}
		return &Resolution{Token: winner.Token, FlowName: winner.FlowName}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Info("created session", "thread", threadID, "flow", resolvedFlow.Name)
	return &Resolution{Token: session.Token, FlowName: session.FlowName, Created: true}, nil
}

// ExpireStale removes every session idle longer than the TTL and returns
// the number removed.
func (s *Service) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.ttl)
	return s.store.DeleteSessionsBefore(ctx, cutoff)
}

// RunSweeper expires stale sessions on the given interval until the
// context is cancelled. It runs off the request path so a slow delete
// batch never blocks message handling.
func (s *Service) RunSweeper(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed, err := s.ExpireStale(ctx)
			if err != nil {
				s.logger.Error("session sweep failed", "error", err)
				continue
			}
			if removed > 0 {
				stats, statsErr := s.store.SessionStats(ctx)
				if statsErr != nil {
					s.logger.Info("expired stale sessions", "removed", removed)
					continue
				}
				s.logger.Info("expired stale sessions",
					"removed", removed, "remaining", stats.Total, "active_last_hour", stats.ActiveLastHour)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
