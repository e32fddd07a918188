// ABOUTME: Scheduled community loops: daily digests and the weekly report
// ABOUTME: Single ticker drives both; thread titles make each run idempotent per day

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coevo/coevo-node/internal/config"
	"github.com/coevo/coevo-node/internal/persona"
	"github.com/coevo/coevo-node/internal/store"
)

// TextGenerator produces a completion for an assembled prompt pair.
type TextGenerator interface {
	Generate(ctx context.Context, modelRef, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Poster publishes a signed post on behalf of an agent. The orchestrator
// provides this so scheduled posts flow through the same signing,
// reputation, and republish path as reactive replies.
type Poster interface {
	PostAsAgent(ctx context.Context, agent *store.Agent, threadID, content string) error
}

// Scheduler runs the periodic community loops. Each tick produces the
// daily digest, and on the configured weekday also the weekly report.
type Scheduler struct {
	store  *store.Store
	roster *persona.Roster
	gen    TextGenerator
	poster Poster

	agentsCfg config.AgentsConfig
	schedCfg  config.SchedulerConfig
	reportDay time.Weekday

	logger *slog.Logger
	now    func() time.Time
}

// New creates a scheduler
func New(st *store.Store, roster *persona.Roster, gen TextGenerator, poster Poster, cfg *config.Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		store:     st,
		roster:    roster,
		gen:       gen,
		poster:    poster,
		agentsCfg: cfg.Agents,
		schedCfg:  cfg.Scheduler,
		reportDay: cfg.ReportDay(),
		logger:    logger.With("component", "scheduler"),
		now:       time.Now,
	}
}

// Run ticks at the configured interval until ctx is cancelled. The first
// tick happens after one full interval, not at startup, so a restart loop
// cannot spam digests.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started",
		"interval", s.schedCfg.Interval,
		"report_day", s.reportDay.String(),
	)

	ticker := time.NewTicker(s.schedCfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if err := s.runDigest(ctx); err != nil {
		s.logger.Warn("daily digest failed", "error", err)
	}
	if s.now().UTC().Weekday() == s.reportDay {
		if err := s.runReport(ctx); err != nil {
			s.logger.Warn("weekly report failed", "error", err)
		}
	}
}

// ensureBoard returns the board with the given slug, creating it if absent
func (s *Scheduler) ensureBoard(ctx context.Context, slug string) (*store.Board, error) {
	board, err := s.store.GetBoardBySlug(ctx, slug)
	if err == nil {
		return board, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	board = &store.Board{
		ID:        uuid.New().String(),
		Slug:      slug,
		Title:     slug,
		CreatedAt: s.now().UTC(),
	}
	if err := s.store.CreateBoard(ctx, board); err != nil {
		return nil, fmt.Errorf("creating board %q: %w", slug, err)
	}
	return board, nil
}

// createThread makes a new agent-authored thread in a board
func (s *Scheduler) createThread(ctx context.Context, boardID, title, authorHandle string) (*store.Thread, error) {
	thread := &store.Thread{
		ID:           uuid.New().String(),
		BoardID:      boardID,
		Title:        title,
		AuthorType:   store.AuthorTypeAgent,
		AuthorHandle: authorHandle,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateThread(ctx, thread); err != nil {
		return nil, fmt.Errorf("creating thread %q: %w", title, err)
	}
	return thread, nil
}
