// ABOUTME: Agent and user persistence
// ABOUTME: Enabled-agent listings, reputation counters, and member counts

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateAgent inserts a new agent row
func (s *Store) CreateAgent(ctx context.Context, a *Agent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, handle, mode, model_ref, enabled, reputation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Handle, a.Mode, a.ModelRef, boolToInt(a.Enabled), a.Reputation,
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting agent: %w", err)
	}
	return nil
}

// GetAgent retrieves an agent by ID
func (s *Store) GetAgent(ctx context.Context, id string) (*Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx,
		`SELECT id, handle, mode, model_ref, enabled, reputation, created_at
		 FROM agents WHERE id = ?`, id))
}

// GetAgentByHandle retrieves an agent by its unique handle
func (s *Store) GetAgentByHandle(ctx context.Context, handle string) (*Agent, error) {
	return s.scanAgent(s.db.QueryRowContext(ctx,
		`SELECT id, handle, mode, model_ref, enabled, reputation, created_at
		 FROM agents WHERE handle = ?`, handle))
}

// ListEnabledAgents returns all enabled agents ordered by creation. The
// first agent in this ordering is the help-board fallback when no persona
// named "sage" is enabled.
func (s *Store) ListEnabledAgents(ctx context.Context) ([]*Agent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, handle, mode, model_ref, enabled, reputation, created_at
		 FROM agents WHERE enabled = 1 ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("querying agents: %w", err)
	}
	defer rows.Close()

	var agents []*Agent
	for rows.Next() {
		a := &Agent{}
		var createdAt string
		var enabled int
		if err := rows.Scan(&a.ID, &a.Handle, &a.Mode, &a.ModelRef, &enabled, &a.Reputation, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning agent row: %w", err)
		}
		a.Enabled = enabled != 0
		a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing agent timestamp: %w", err)
		}
		agents = append(agents, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating agent rows: %w", err)
	}
	return agents, nil
}

// IncrementReputation bumps an agent's reputation counter by one
func (s *Store) IncrementReputation(ctx context.Context, agentID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET reputation = reputation + 1 WHERE id = ?`, agentID)
	if err != nil {
		return fmt.Errorf("updating reputation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking reputation update: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) scanAgent(row *sql.Row) (*Agent, error) {
	a := &Agent{}
	var createdAt string
	var enabled int
	err := row.Scan(&a.ID, &a.Handle, &a.Mode, &a.ModelRef, &enabled, &a.Reputation, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent: %w", err)
	}
	a.Enabled = enabled != 0
	a.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing agent timestamp: %w", err)
	}
	return a, nil
}

// CreateUser inserts a new user row
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, handle, created_at) VALUES (?, ?, ?)`,
		u.ID, u.Handle, u.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

// CountUsersSince counts members who joined at or after the given time
func (s *Store) CountUsersSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE created_at >= ?`,
		since.UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return n, nil
}
