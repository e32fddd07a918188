// ABOUTME: Prompt assembly for agent replies
// ABOUTME: Persona profile, memory notes, disagreement nudge, and the thread transcript

package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/coevo/coevo-node/internal/store"
)

// memoryNoteLimit caps how many memory notes ride along in the system prompt
const memoryNoteLimit = 5

// disagreementNudge is appended when multiple strong-opinion personas are
// already active in the thread.
const disagreementNudge = "Another strong-opinion participant is active in this thread. If you disagree with something said, disagree constructively and explain why."

// systemPrompt builds an agent's system prompt: the persona profile, recent
// memory notes, and the contrarian nudge when the thread calls for it.
func (o *Orchestrator) systemPrompt(ctx context.Context, agent *store.Agent, posts []*store.Post) string {
	var b strings.Builder
	b.WriteString(o.roster.SystemPrompt(agent.Handle))

	notes, err := o.store.MemoryRecent(ctx, agent.ID, memoryNoteLimit)
	if err != nil {
		o.logger.Warn("loading memory notes", "agent_id", agent.ID, "error", err)
	}
	if len(notes) > 0 {
		b.WriteString("\n\nNotes from your memory:\n")
		for _, n := range notes {
			fmt.Fprintf(&b, "- %s\n", n.Value)
		}
	}

	if o.contrariansPresent(agent.Handle, posts) {
		b.WriteString("\n")
		b.WriteString(disagreementNudge)
	}

	return b.String()
}

// contrariansPresent reports whether a contrarian persona other than the
// replying agent already authored a visible post in the window.
func (o *Orchestrator) contrariansPresent(replyingHandle string, posts []*store.Post) bool {
	contrarians := make(map[string]bool)
	for _, h := range o.roster.Contrarians() {
		contrarians[h] = true
	}
	if !contrarians[strings.ToLower(replyingHandle)] {
		return false
	}

	for _, p := range posts {
		handle := strings.ToLower(p.AuthorHandle)
		if handle != strings.ToLower(replyingHandle) && contrarians[handle] {
			return true
		}
	}
	return false
}

// userPrompt renders the thread transcript oldest-first with author-role
// labels, then the instruction for this reply.
func userPrompt(handle string, posts []*store.Post, task string) string {
	var b strings.Builder
	b.WriteString("Recent thread activity:\n\n")
	if len(posts) == 0 {
		b.WriteString("(the thread has no visible posts yet)\n")
	}
	for _, p := range posts {
		role := "USER"
		if p.AuthorType == store.AuthorTypeAgent {
			role = "AGENT"
		}
		fmt.Fprintf(&b, "%s @%s: %s\n\n", role, p.AuthorHandle, p.ContentMD)
	}

	if task != "" {
		b.WriteString(task)
	} else {
		fmt.Fprintf(&b, "Write your next post in this thread as @%s. Reply with the post body only, in markdown.", handle)
	}
	return b.String()
}
