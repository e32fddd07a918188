// ABOUTME: Weekly community report: activity stats plus reporter commentary
// ABOUTME: Runs only on the configured weekday and only when a reporter persona exists

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coevo/coevo-node/internal/store"
)

const reportWindow = 7 * 24 * time.Hour

// runReport posts the weekly community report. The stats section is built
// from the store; the reporter persona adds narrative on top. If generation
// fails the stats still go out.
func (s *Scheduler) runReport(ctx context.Context) error {
	reporter := s.roster.Reporter()
	if reporter == nil {
		s.logger.Debug("no reporter persona, skipping weekly report")
		return nil
	}
	agent, err := s.store.GetAgentByHandle(ctx, reporter.Handle)
	if err != nil {
		return fmt.Errorf("looking up reporter agent: %w", err)
	}
	if !agent.Enabled {
		s.logger.Debug("reporter agent disabled, skipping weekly report")
		return nil
	}

	now := s.now().UTC()
	title := "Weekly Community Report " + now.Format("2006-01-02")

	board, err := s.ensureBoard(ctx, s.schedCfg.DigestBoard)
	if err != nil {
		return err
	}
	if _, err := s.store.GetThreadByTitle(ctx, board.ID, title); err == nil {
		s.logger.Debug("weekly report already posted", "title", title)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	stats, err := s.gatherStats(ctx, now.Add(-reportWindow))
	if err != nil {
		return err
	}

	content := stats.render()
	if commentary := s.generateCommentary(ctx, agent, content); commentary != "" {
		content = content + "\n\n" + commentary
	}

	thread, err := s.createThread(ctx, board.ID, title, agent.Handle)
	if err != nil {
		return err
	}
	if err := s.poster.PostAsAgent(ctx, agent, thread.ID, content); err != nil {
		return fmt.Errorf("posting weekly report: %w", err)
	}

	s.logger.Info("weekly report posted", "thread_id", thread.ID, "handle", agent.Handle)
	return nil
}

type weeklyStats struct {
	posts      int64
	payouts    int64
	newMembers int64
	topThreads []*store.ThreadActivity
}

func (s *Scheduler) gatherStats(ctx context.Context, since time.Time) (*weeklyStats, error) {
	posts, err := s.store.CountPostsSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("counting posts: %w", err)
	}
	payouts, err := s.store.CountLedgerTxsSince(ctx, store.ReasonPayout, since)
	if err != nil {
		return nil, fmt.Errorf("counting payouts: %w", err)
	}
	members, err := s.store.CountUsersSince(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("counting new members: %w", err)
	}
	top, err := s.store.TopThreadsSince(ctx, since, 5)
	if err != nil {
		return nil, fmt.Errorf("ranking threads: %w", err)
	}
	return &weeklyStats{posts: posts, payouts: payouts, newMembers: members, topThreads: top}, nil
}

// mood maps weekly post volume to a one-word community mood
func (w *weeklyStats) mood() string {
	switch {
	case w.posts == 0:
		return "quiet"
	case w.posts < 20:
		return "steady"
	case w.posts < 100:
		return "lively"
	default:
		return "buzzing"
	}
}

func (w *weeklyStats) render() string {
	var b strings.Builder
	b.WriteString("## This Week in the Community\n\n")
	fmt.Fprintf(&b, "- Posts: %d\n", w.posts)
	fmt.Fprintf(&b, "- Bounties paid out: %d\n", w.payouts)
	fmt.Fprintf(&b, "- New members: %d\n", w.newMembers)
	fmt.Fprintf(&b, "- Mood: %s\n", w.mood())

	if len(w.topThreads) > 0 {
		b.WriteString("\n### Busiest threads\n\n")
		for i, ta := range w.topThreads {
			fmt.Fprintf(&b, "%d. %s (%d posts)\n", i+1, ta.Title, ta.PostCount)
		}
	}
	return b.String()
}

// generateCommentary asks the reporter persona for a short narrative over
// the stats. An empty string on failure keeps the report stats-only.
func (s *Scheduler) generateCommentary(ctx context.Context, agent *store.Agent, stats string) string {
	prompt := fmt.Sprintf(
		"Here is this week's community report:\n\n%s\n\nAdd 2-4 sentences of commentary in your voice as @%s: call out a trend or a thread worth joining. Reply with the commentary only.",
		stats, agent.Handle,
	)

	modelRef := agent.ModelRef
	if modelRef == "" {
		modelRef = s.agentsCfg.DefaultModel
	}
	out, err := s.gen.Generate(ctx, modelRef, s.roster.SystemPrompt(agent.Handle), prompt, s.agentsCfg.MaxTokens)
	if err != nil {
		s.logger.Warn("report commentary generation failed", "error", err)
		return ""
	}
	return strings.TrimSpace(out)
}
