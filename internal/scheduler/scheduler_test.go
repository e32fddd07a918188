// ABOUTME: Tests for the daily digest and weekly report loops
// ABOUTME: Fixed clock and fake poster; runs drive tick paths directly

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coevo/coevo-node/internal/config"
	"github.com/coevo/coevo-node/internal/persona"
	"github.com/coevo/coevo-node/internal/store"
)

const schedulerRosterTOML = `
[[persona]]
handle = "sage"
mode = "peer"
enabled = true

[[persona]]
handle = "herald"
mode = "peer"
enabled = true
reporter = true
`

type recordedPost struct {
	Handle   string
	ThreadID string
	Content  string
}

type fakePoster struct {
	mu    sync.Mutex
	posts []recordedPost
}

func (p *fakePoster) PostAsAgent(_ context.Context, agent *store.Agent, threadID, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.posts = append(p.posts, recordedPost{agent.Handle, threadID, content})
	return nil
}

type stubGen struct {
	mu     sync.Mutex
	reply  string
	errFor map[string]error // keyed by substring of the user prompt
}

func (g *stubGen) Generate(_ context.Context, _, _, userPrompt string, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for substr, err := range g.errFor {
		if strings.Contains(userPrompt, substr) {
			return "", err
		}
	}
	return g.reply, nil
}

type schedFixture struct {
	sched  *Scheduler
	store  *store.Store
	poster *fakePoster
	gen    *stubGen
}

// fixedNow is a Sunday, matching the default report weekday
var fixedNow = time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)

func setupScheduler(t *testing.T) *schedFixture {
	t.Helper()

	st, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	roster, err := persona.Parse(schedulerRosterTOML)
	require.NoError(t, err)

	ctx := context.Background()
	base := fixedNow.Add(-time.Hour)
	for i, handle := range []string{"sage", "herald"} {
		require.NoError(t, st.CreateAgent(ctx, &store.Agent{
			ID: handle + "-id", Handle: handle, Mode: "peer",
			Enabled: true, CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	cfg := &config.Config{
		Agents: config.AgentsConfig{DefaultModel: "anthropic:test-model", MaxTokens: 200},
		Scheduler: config.SchedulerConfig{
			DigestBoard:   "general",
			ReportWeekday: "Sunday",
			Interval:      24 * time.Hour,
		},
	}

	poster := &fakePoster{}
	gen := &stubGen{reply: "A fine day on the boards."}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	sched := New(st, roster, gen, poster, cfg, logger)
	sched.now = func() time.Time { return fixedNow }

	return &schedFixture{sched: sched, store: st, poster: poster, gen: gen}
}

// seedActivity creates a board with a thread and n visible posts in the
// last day.
func (f *schedFixture) seedActivity(t *testing.T, n int) string {
	t.Helper()
	ctx := context.Background()

	board := &store.Board{ID: uuid.New().String(), Slug: "chatter", Title: "Chatter", CreatedAt: fixedNow.Add(-48 * time.Hour)}
	require.NoError(t, f.store.CreateBoard(ctx, board))

	thread := &store.Thread{
		ID: uuid.New().String(), BoardID: board.ID, Title: "launch plans",
		AuthorType: store.AuthorTypeUser, AuthorHandle: "ada", CreatedAt: fixedNow.Add(-20 * time.Hour),
	}
	require.NoError(t, f.store.CreateThread(ctx, thread))

	for i := 0; i < n; i++ {
		require.NoError(t, f.store.CreatePost(ctx, &store.Post{
			ID: uuid.New().String(), ThreadID: thread.ID,
			AuthorType: store.AuthorTypeUser, AuthorID: "u1", AuthorHandle: "ada",
			ContentMD: fmt.Sprintf("update %d on the launch", i),
			CreatedAt: fixedNow.Add(-time.Duration(n-i) * time.Hour),
		}))
	}
	return thread.ID
}

func TestDigest_PostsPerEnabledAgent(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	f.seedActivity(t, 3)

	require.NoError(t, f.sched.runDigest(ctx))

	board, err := f.store.GetBoardBySlug(ctx, "general")
	require.NoError(t, err)
	thread, err := f.store.GetThreadByTitle(ctx, board.ID, "Daily Digest 2026-08-30")
	require.NoError(t, err)

	require.Len(t, f.poster.posts, 2)
	handles := []string{f.poster.posts[0].Handle, f.poster.posts[1].Handle}
	assert.ElementsMatch(t, []string{"sage", "herald"}, handles)
	for _, p := range f.poster.posts {
		assert.Equal(t, thread.ID, p.ThreadID)
		assert.Equal(t, "A fine day on the boards.", p.Content)
	}
}

func TestDigest_SecondRunSameDayIsNoOp(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	f.seedActivity(t, 2)

	require.NoError(t, f.sched.runDigest(ctx))
	require.NoError(t, f.sched.runDigest(ctx))

	assert.Len(t, f.poster.posts, 2, "one digest post per agent, once per day")
}

func TestDigest_NoActivityNoThread(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()

	require.NoError(t, f.sched.runDigest(ctx))

	board, err := f.store.GetBoardBySlug(ctx, "general")
	require.NoError(t, err)
	_, err = f.store.GetThreadByTitle(ctx, board.ID, "Daily Digest 2026-08-30")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Empty(t, f.poster.posts)
}

func TestDigest_GenerationFailureSkipsOnlyThatAgent(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	f.seedActivity(t, 2)

	// Digest prompts address each agent by handle
	f.gen.errFor = map[string]error{"as @sage": errors.New("backend down")}

	require.NoError(t, f.sched.runDigest(ctx))

	require.Len(t, f.poster.posts, 1)
	assert.Equal(t, "herald", f.poster.posts[0].Handle)
}

func TestReport_PostsStatsAndCommentary(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	f.seedActivity(t, 4)

	require.NoError(t, f.store.CreateUser(ctx, &store.User{
		ID: "u-new", Handle: "lin", CreatedAt: fixedNow.Add(-24 * time.Hour),
	}))

	require.NoError(t, f.sched.runReport(ctx))

	require.Len(t, f.poster.posts, 1)
	p := f.poster.posts[0]
	assert.Equal(t, "herald", p.Handle)
	assert.Contains(t, p.Content, "Posts: 4")
	assert.Contains(t, p.Content, "New members: 1")
	assert.Contains(t, p.Content, "Mood: steady")
	assert.Contains(t, p.Content, "launch plans (4 posts)")
	assert.Contains(t, p.Content, "A fine day on the boards.")
}

func TestReport_SecondRunSameDayIsNoOp(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	f.seedActivity(t, 1)

	require.NoError(t, f.sched.runReport(ctx))
	require.NoError(t, f.sched.runReport(ctx))

	assert.Len(t, f.poster.posts, 1)
}

func TestReport_NoReporterPersona(t *testing.T) {
	f := setupScheduler(t)
	ctx := context.Background()
	f.seedActivity(t, 1)

	roster, err := persona.Parse(`
[[persona]]
handle = "sage"
mode = "peer"
enabled = true
`)
	require.NoError(t, err)
	f.sched.roster = roster

	require.NoError(t, f.sched.runReport(ctx))
	assert.Empty(t, f.poster.posts)
}

func TestMarkdownToText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"**bold** and _italic_ text", "bold and italic text"},
		{"# Heading\n\nbody line", "Heading body line"},
		{"before\n```go\nfmt.Println(1)\n```\nafter", "before after"},
		{"a [link](https://example.com) here", "a link here"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, markdownToText(tt.in), "input: %q", tt.in)
	}
}

func TestCollectSnippets_TruncatesAndAttributes(t *testing.T) {
	long := ""
	for i := 0; i < 50; i++ {
		long += "0123456789"
	}
	posts := []*store.Post{
		{AuthorHandle: "ada", ContentMD: long},
		{AuthorHandle: "lin", ContentMD: "short note"},
		{AuthorHandle: "kay", ContentMD: "   "},
	}

	snippets := collectSnippets(posts, 10)
	require.Len(t, snippets, 2)
	assert.Contains(t, snippets[0], "@ada: ")
	assert.Contains(t, snippets[0], "...")
	assert.Equal(t, "@lin: short note", snippets[1])
}
