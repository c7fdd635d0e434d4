// ABOUTME: Flow configuration persistence for the SQLite store
// ABOUTME: Covers CRUD plus the single-default invariant enforced transactionally

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateFlow inserts a new flow configuration.
// If no default flow exists yet, the new flow becomes the default. The check
// and insert happen in one transaction so concurrent first adds cannot both
// claim the default slot.
// Returns ErrDuplicateFlow if the name is already taken.
func (s *SQLiteStore) CreateFlow(ctx context.Context, flow *FlowConfig) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var defaultCount int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM flows WHERE is_default = 1`).Scan(&defaultCount); err != nil {
		return fmt.Errorf("checking for default flow: %w", err)
	}

	isDefault := flow.IsDefault
	if defaultCount == 0 {
		isDefault = true
	} else if isDefault {
		if _, err := tx.ExecContext(ctx, `UPDATE flows SET is_default = 0 WHERE is_default = 1`); err != nil {
			return fmt.Errorf("clearing previous default: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO flows (name, base_url, flow_id, api_key, description, is_default, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		flow.Name,
		flow.BaseURL,
		flow.FlowID,
		flow.APIKey,
		nullString(flow.Description),
		boolToInt(isDefault),
		flow.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return ErrDuplicateFlow
		}
		return fmt.Errorf("inserting flow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing flow insert: %w", err)
	}

	flow.IsDefault = isDefault
	s.logger.Debug("created flow", "name", flow.Name, "default", isDefault)
	return nil
}

// GetFlow retrieves a flow configuration by name.
// Returns ErrNotFound if the flow doesn't exist.
func (s *SQLiteStore) GetFlow(ctx context.Context, name string) (*FlowConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, base_url, flow_id, api_key, description, is_default, created_at
		FROM flows
		WHERE name = ?
	`, name)
	return scanFlow(row)
}

// GetDefaultFlow retrieves the flow currently flagged as default.
// Returns ErrNotFound if no default flow is configured.
func (s *SQLiteStore) GetDefaultFlow(ctx context.Context) (*FlowConfig, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT name, base_url, flow_id, api_key, description, is_default, created_at
		FROM flows
		WHERE is_default = 1
		LIMIT 1
	`)
	return scanFlow(row)
}

// SetDefaultFlow flags the named flow as default, clearing the previous
// default in the same transaction so exactly one flow carries the flag.
// Returns ErrNotFound if the flow doesn't exist.
func (s *SQLiteStore) SetDefaultFlow(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM flows WHERE name = ?`, name).Scan(&exists)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking flow exists: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE flows SET is_default = 0 WHERE is_default = 1`); err != nil {
		return fmt.Errorf("clearing previous default: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE flows SET is_default = 1 WHERE name = ?`, name); err != nil {
		return fmt.Errorf("setting default flow: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing default swap: %w", err)
	}

	s.logger.Debug("set default flow", "name", name)
	return nil
}

// DeleteFlow removes a flow configuration. Channel bindings and sessions
// referencing the flow are left in place; resolution falls back to the
// default flow when it hits the dangling name.
// Returns ErrNotFound if the flow doesn't exist.
func (s *SQLiteStore) DeleteFlow(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM flows WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting flow: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("deleted flow", "name", name)
	return nil
}

// ListFlows returns all flow configurations ordered by name.
func (s *SQLiteStore) ListFlows(ctx context.Context) ([]*FlowConfig, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, base_url, flow_id, api_key, description, is_default, created_at
		FROM flows
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("querying flows: %w", err)
	}
	defer rows.Close()

	var flows []*FlowConfig
	for rows.Next() {
		flow, err := scanFlowRow(rows)
		if err != nil {
			return nil, err
		}
		flows = append(flows, flow)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating flow rows: %w", err)
	}
	return flows, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFlow(row *sql.Row) (*FlowConfig, error) {
	flow, err := scanFlowFrom(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return flow, err
}

func scanFlowRow(rows *sql.Rows) (*FlowConfig, error) {
	return scanFlowFrom(rows)
}

func scanFlowFrom(r rowScanner) (*FlowConfig, error) {
	var flow FlowConfig
	var description sql.NullString
	var isDefault int
	var createdAtStr string

	err := r.Scan(
		&flow.Name,
		&flow.BaseURL,
		&flow.FlowID,
		&flow.APIKey,
		&description,
		&isDefault,
		&createdAtStr,
	)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scanning flow: %w", err)
	}

	flow.Description = description.String
	flow.IsDefault = isDefault != 0
	flow.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &flow, nil
}

// nullString returns nil for empty strings, otherwise the string value
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
