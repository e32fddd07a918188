// ABOUTME: Board, thread, and post persistence
// ABOUTME: Covers the context-window and scheduled-loop queries the agent core needs

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateBoard inserts a new board
func (s *Store) CreateBoard(ctx context.Context, b *Board) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO boards (id, slug, title, created_at) VALUES (?, ?, ?, ?)`,
		b.ID, b.Slug, b.Title, b.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting board: %w", err)
	}
	return nil
}

// GetBoard retrieves a board by ID
func (s *Store) GetBoard(ctx context.Context, id string) (*Board, error) {
	return s.scanBoard(s.db.QueryRowContext(ctx,
		`SELECT id, slug, title, created_at FROM boards WHERE id = ?`, id))
}

// GetBoardBySlug retrieves a board by slug
func (s *Store) GetBoardBySlug(ctx context.Context, slug string) (*Board, error) {
	return s.scanBoard(s.db.QueryRowContext(ctx,
		`SELECT id, slug, title, created_at FROM boards WHERE slug = ?`, slug))
}

func (s *Store) scanBoard(row *sql.Row) (*Board, error) {
	b := &Board{}
	var createdAt string
	err := row.Scan(&b.ID, &b.Slug, &b.Title, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying board: %w", err)
	}
	b.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing board timestamp: %w", err)
	}
	return b, nil
}

// CreateThread inserts a new thread
func (s *Store) CreateThread(ctx context.Context, t *Thread) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, board_id, title, author_type, author_handle, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.BoardID, t.Title, t.AuthorType, t.AuthorHandle,
		t.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting thread: %w", err)
	}
	return nil
}

// GetThread retrieves a thread by ID
func (s *Store) GetThread(ctx context.Context, id string) (*Thread, error) {
	return s.scanThread(s.db.QueryRowContext(ctx,
		`SELECT id, board_id, title, author_type, author_handle, created_at
		 FROM threads WHERE id = ?`, id))
}

// GetThreadByTitle retrieves a thread by board and exact title. The
// scheduled loops use this to find their deterministic target threads.
func (s *Store) GetThreadByTitle(ctx context.Context, boardID, title string) (*Thread, error) {
	return s.scanThread(s.db.QueryRowContext(ctx,
		`SELECT id, board_id, title, author_type, author_handle, created_at
		 FROM threads WHERE board_id = ? AND title = ?`, boardID, title))
}

func (s *Store) scanThread(row *sql.Row) (*Thread, error) {
	t := &Thread{}
	var createdAt string
	err := row.Scan(&t.ID, &t.BoardID, &t.Title, &t.AuthorType, &t.AuthorHandle, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying thread: %w", err)
	}
	t.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing thread timestamp: %w", err)
	}
	return t, nil
}

// CreatePost inserts a new post
func (s *Store) CreatePost(ctx context.Context, p *Post) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (id, thread_id, author_type, author_id, author_handle, content_md, is_hidden, signature, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ThreadID, p.AuthorType, p.AuthorID, p.AuthorHandle,
		p.ContentMD, boolToInt(p.IsHidden), p.Signature,
		p.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting post: %w", err)
	}

	s.logger.Debug("saved post",
		"post_id", p.ID,
		"thread_id", p.ThreadID,
		"author", p.AuthorHandle,
	)
	return nil
}

// RecentThreadPosts returns the last limit visible posts in a thread,
// oldest first. This is the reply context window.
func (s *Store) RecentThreadPosts(ctx context.Context, threadID string, limit int) ([]*Post, error) {
	if limit <= 0 {
		limit = 15
	}

	// DESC subquery picks the most recent rows, outer ASC restores
	// conversation order
	query := `
		SELECT id, thread_id, author_type, author_id, author_handle, content_md, is_hidden, signature, created_at
		FROM (
			SELECT id, thread_id, author_type, author_id, author_handle, content_md, is_hidden, signature, created_at
			FROM posts
			WHERE thread_id = ? AND is_hidden = 0
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`
	return s.queryPosts(ctx, query, threadID, limit)
}

// PostsSince returns visible posts created at or after the given time,
// oldest first. The daily digest reads its window through this.
func (s *Store) PostsSince(ctx context.Context, since time.Time, limit int) ([]*Post, error) {
	if limit <= 0 {
		limit = 200
	}
	query := `
		SELECT id, thread_id, author_type, author_id, author_handle, content_md, is_hidden, signature, created_at
		FROM posts
		WHERE is_hidden = 0 AND created_at >= ?
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`
	return s.queryPosts(ctx, query, since.UTC().Format(time.RFC3339), limit)
}

// CountPostsSince counts visible posts created at or after the given time
func (s *Store) CountPostsSince(ctx context.Context, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM posts WHERE is_hidden = 0 AND created_at >= ?`,
		since.UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting posts: %w", err)
	}
	return n, nil
}

// TopThreadsSince returns the busiest threads by visible post count in the
// window, most active first.
func (s *Store) TopThreadsSince(ctx context.Context, since time.Time, limit int) ([]*ThreadActivity, error) {
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.title, COUNT(p.id) AS n
		FROM posts p
		JOIN threads t ON t.id = p.thread_id
		WHERE p.is_hidden = 0 AND p.created_at >= ?
		GROUP BY t.id, t.title
		ORDER BY n DESC, t.id ASC
		LIMIT ?
	`, since.UTC().Format(time.RFC3339), limit)
	if err != nil {
		return nil, fmt.Errorf("querying thread activity: %w", err)
	}
	defer rows.Close()

	var out []*ThreadActivity
	for rows.Next() {
		ta := &ThreadActivity{}
		if err := rows.Scan(&ta.ThreadID, &ta.Title, &ta.PostCount); err != nil {
			return nil, fmt.Errorf("scanning thread activity: %w", err)
		}
		out = append(out, ta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating thread activity: %w", err)
	}
	return out, nil
}

func (s *Store) queryPosts(ctx context.Context, query string, args ...any) ([]*Post, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying posts: %w", err)
	}
	defer rows.Close()

	var posts []*Post
	for rows.Next() {
		p := &Post{}
		var createdAt string
		var hidden int
		var sig sql.NullString
		if err := rows.Scan(&p.ID, &p.ThreadID, &p.AuthorType, &p.AuthorID, &p.AuthorHandle,
			&p.ContentMD, &hidden, &sig, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning post row: %w", err)
		}
		p.IsHidden = hidden != 0
		p.Signature = sig.String
		p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing post timestamp: %w", err)
		}
		posts = append(posts, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating post rows: %w", err)
	}
	return posts, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
