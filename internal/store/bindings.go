// ABOUTME: Channel binding persistence for the SQLite store
// ABOUTME: Binds a channel to a flow by name, validated against the flows table

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SetChannelFlow creates or overwrites the binding for a channel.
// The flow's existence is verified inside the same transaction as the write,
// so a concurrent flow removal cannot slip a dangling binding in.
// Returns ErrNotFound if the flow doesn't exist.
func (s *SQLiteStore) SetChannelFlow(ctx context.Context, channelID, flowName string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM flows WHERE name = ?`, flowName).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking flow exists: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO channel_bindings (channel_id, flow_name, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET flow_name = excluded.flow_name, updated_at = excluded.updated_at
	`, channelID, flowName, now, now)
	if err != nil {
		return fmt.Errorf("upserting channel binding: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing channel binding: %w", err)
	}

	s.logger.Debug("set channel flow", "channel", channelID, "flow", flowName)
	return nil
}

// GetChannelBinding retrieves the binding for a channel.
// Returns ErrNotFound if the channel has no binding.
func (s *SQLiteStore) GetChannelBinding(ctx context.Context, channelID string) (*ChannelBinding, error) {
	var binding ChannelBinding
	var createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, `
		SELECT channel_id, flow_name, created_at, updated_at
		FROM channel_bindings
		WHERE channel_id = ?
	`, channelID).Scan(&binding.ChannelID, &binding.FlowName, &createdAtStr, &updatedAtStr)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying channel binding: %w", err)
	}

	binding.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	binding.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &binding, nil
}

// DeleteChannelBinding removes the binding for a channel.
// Removing a non-existent binding is not an error.
func (s *SQLiteStore) DeleteChannelBinding(ctx context.Context, channelID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM channel_bindings WHERE channel_id = ?`, channelID)
	if err != nil {
		return fmt.Errorf("deleting channel binding: %w", err)
	}

	s.logger.Debug("deleted channel binding", "channel", channelID)
	return nil
}

// ListChannelBindings returns all channel bindings ordered by channel ID.
func (s *SQLiteStore) ListChannelBindings(ctx context.Context) ([]*ChannelBinding, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT channel_id, flow_name, created_at, updated_at
		FROM channel_bindings
		ORDER BY channel_id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying channel bindings: %w", err)
	}
	defer rows.Close()

	var bindings []*ChannelBinding
	for rows.Next() {
		var b ChannelBinding
		var createdAtStr, updatedAtStr string

		if err := rows.Scan(&b.ChannelID, &b.FlowName, &createdAtStr, &updatedAtStr); err != nil {
			return nil, fmt.Errorf("scanning channel binding: %w", err)
		}

		b.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		b.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		bindings = append(bindings, &b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating binding rows: %w", err)
	}
	return bindings, nil
}
