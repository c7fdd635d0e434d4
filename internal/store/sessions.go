// ABOUTME: Session persistence for the SQLite store
// ABOUTME: Maps thread IDs to session tokens with the flow frozen at creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// GetSession retrieves the session for a thread.
// Returns ErrNotFound if the thread has no session.
func (s *SQLiteStore) GetSession(ctx context.Context, threadID string) (*Session, error) {
	var session Session
	var createdAtStr, lastUsedAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT thread_id, session_token, flow_name, created_at, last_used_at
		FROM sessions
		WHERE thread_id = ?
	`, threadID).Scan(&session.ThreadID, &session.Token, &session.FlowName, &createdAtStr, &lastUsedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	session.LastUsedAt, err = time.Parse(time.RFC3339, lastUsedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing last_used_at: %w", err)
	}

	return &session, nil
}

// CreateSession inserts a new session row for a thread.
// Returns ErrDuplicateSession if a row already exists: two first messages
// racing on the same new thread must converge on one token, so the loser
// re-reads the winner's row instead of overwriting it.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (thread_id, session_token, flow_name, created_at, last_used_at)
		VALUES (?, ?, ?, ?, ?)
	`,
		session.ThreadID,
		session.Token,
		session.FlowName,
		session.CreatedAt.UTC().Format(time.RFC3339),
		session.LastUsedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateSession
		}
		return fmt.Errorf("inserting session: %w", err)
	}

	s.logger.Debug("created session", "thread", session.ThreadID, "flow", session.FlowName)
	return nil
}

// TouchSession advances a session's last_used_at timestamp.
// Returns ErrNotFound if the thread has no session.
func (s *SQLiteStore) TouchSession(ctx context.Context, threadID string, usedAt time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET last_used_at = ? WHERE thread_id = ?
	`, usedAt.UTC().Format(time.RFC3339), threadID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteSession removes the session for a thread.
// Deleting a non-existent session is not an error.
func (s *SQLiteStore) DeleteSession(ctx context.Context, threadID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE thread_id = ?`, threadID)
	if err != nil {
		return fmt.Errorf("deleting session: %w", err)
	}
	return nil
}

// DeleteSessionsBefore removes every session whose last_used_at is older than
// the cutoff and returns the number removed. A single statement, so the
// sweep never holds the writer longer than one delete.
func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions WHERE last_used_at < ?
	`, cutoff.UTC().Format(time.RFC3339))
	if err != nil {
		return 0, fmt.Errorf("deleting stale sessions: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	if rowsAffected > 0 {
		s.logger.Debug("deleted stale sessions", "count", rowsAffected)
	}
	return int(rowsAffected), nil
}

// SessionStats returns counts of stored sessions.
func (s *SQLiteStore) SessionStats(ctx context.Context) (*SessionStats, error) {
	var stats SessionStats

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&stats.Total); err != nil {
		return nil, fmt.Errorf("counting sessions: %w", err)
	}

	oneHourAgo := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM sessions WHERE last_used_at > ?
	`, oneHourAgo).Scan(&stats.ActiveLastHour); err != nil {
		return nil, fmt.Errorf("counting active sessions: %w", err)
	}

	return &stats, nil
}
