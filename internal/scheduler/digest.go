// ABOUTME: Daily digest loop: each enabled agent summarizes the last day in its own voice
// ABOUTME: Snippets come from markdown post bodies flattened to plain text

package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/coevo/coevo-node/internal/store"
)

const (
	digestWindowHours = 24
	digestMaxSnippets = 30
	snippetMaxRunes   = 160
)

// runDigest posts one digest per enabled agent into the day's digest
// thread. The thread title carries the date, so a second run on the same
// day is a no-op.
func (s *Scheduler) runDigest(ctx context.Context) error {
	now := s.now().UTC()
	title := "Daily Digest " + now.Format("2006-01-02")

	board, err := s.ensureBoard(ctx, s.schedCfg.DigestBoard)
	if err != nil {
		return err
	}

	if _, err := s.store.GetThreadByTitle(ctx, board.ID, title); err == nil {
		s.logger.Debug("digest already posted today", "title", title)
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	since := now.Add(-digestWindowHours * time.Hour)
	posts, err := s.store.PostsSince(ctx, since, 0)
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		s.logger.Debug("no activity in digest window, skipping")
		return nil
	}

	agents, err := s.store.ListEnabledAgents(ctx)
	if err != nil {
		return err
	}
	if len(agents) == 0 {
		return nil
	}

	thread, err := s.createThread(ctx, board.ID, title, agents[0].Handle)
	if err != nil {
		return err
	}

	snippets := collectSnippets(posts, digestMaxSnippets)
	for _, agent := range agents {
		content, err := s.generateDigest(ctx, agent, snippets)
		if err != nil {
			s.logger.Warn("digest generation failed", "handle", agent.Handle, "error", err)
			continue
		}
		if content == "" {
			continue
		}
		if err := s.poster.PostAsAgent(ctx, agent, thread.ID, content); err != nil {
			s.logger.Warn("posting digest", "handle", agent.Handle, "error", err)
		}
	}

	s.logger.Info("daily digest posted", "thread_id", thread.ID, "agents", len(agents))
	return nil
}

func (s *Scheduler) generateDigest(ctx context.Context, agent *store.Agent, snippets []string) (string, error) {
	var b strings.Builder
	b.WriteString("Here is what happened in the community over the last day:\n\n")
	for _, snip := range snippets {
		fmt.Fprintf(&b, "- %s\n", snip)
	}
	fmt.Fprintf(&b, "\nWrite a short daily digest post (under 150 words) in your own voice as @%s. Highlight what you found most interesting and invite follow-up.", agent.Handle)

	modelRef := agent.ModelRef
	if modelRef == "" {
		modelRef = s.agentsCfg.DefaultModel
	}
	out, err := s.gen.Generate(ctx, modelRef, s.roster.SystemPrompt(agent.Handle), b.String(), s.agentsCfg.MaxTokens)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

// collectSnippets flattens post bodies into attributed one-line excerpts
func collectSnippets(posts []*store.Post, max int) []string {
	var snippets []string
	for _, p := range posts {
		if len(snippets) >= max {
			break
		}
		plain := markdownToText(p.ContentMD)
		if plain == "" {
			continue
		}
		runes := []rune(plain)
		if len(runes) > snippetMaxRunes {
			plain = string(runes[:snippetMaxRunes]) + "..."
		}
		snippets = append(snippets, fmt.Sprintf("@%s: %s", p.AuthorHandle, plain))
	}
	return snippets
}

// markdownToText walks the goldmark AST and keeps only text content, so
// digest snippets read cleanly without markup or code fences.
func markdownToText(src string) string {
	source := []byte(src)
	doc := goldmark.New().Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			return ast.WalkSkipChildren, nil
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			b.WriteString(" ")
		}
		return ast.WalkContinue, nil
	})

	return strings.Join(strings.Fields(b.String()), " ")
}
