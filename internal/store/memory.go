// ABOUTME: Per-agent key-value memory notes for cross-session recall
// ABOUTME: get/set/recent surface behind the orchestrator's MemoryStore interface

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// MemoryGet returns the value stored for an agent's key, or ErrNotFound.
func (s *Store) MemoryGet(ctx context.Context, agentID, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM agent_memory WHERE agent_id = ? AND key = ?`,
		agentID, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying memory note: %w", err)
	}
	return value, nil
}

// MemorySet upserts a memory note for an agent.
func (s *Store) MemorySet(ctx context.Context, agentID, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agent_memory (agent_id, key, value, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (agent_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		agentID, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting memory note: %w", err)
	}
	return nil
}

// MemoryRecent returns an agent's most recently touched notes, newest first.
func (s *Store) MemoryRecent(ctx context.Context, agentID string, limit int) ([]*MemoryNote, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT agent_id, key, value, updated_at
		 FROM agent_memory WHERE agent_id = ?
		 ORDER BY updated_at DESC, key ASC LIMIT ?`,
		agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying memory notes: %w", err)
	}
	defer rows.Close()

	var notes []*MemoryNote
	for rows.Next() {
		n := &MemoryNote{}
		var updatedAt string
		if err := rows.Scan(&n.AgentID, &n.Key, &n.Value, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning memory note: %w", err)
		}
		n.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing memory note timestamp: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating memory notes: %w", err)
	}
	return notes, nil
}
