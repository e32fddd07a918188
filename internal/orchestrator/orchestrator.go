// ABOUTME: Reactive agent orchestrator: consumes broker events and routes them to agents
// ABOUTME: Mentions, help-board fallback, summons, bounty triage, and vote fan-out

package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/coevo/coevo-node/internal/bus"
	"github.com/coevo/coevo-node/internal/config"
	"github.com/coevo/coevo-node/internal/persona"
	"github.com/coevo/coevo-node/internal/signer"
	"github.com/coevo/coevo-node/internal/store"
)

// mentionPattern matches @handle references in post bodies
var mentionPattern = regexp.MustCompile(`(?i)@([A-Za-z0-9_-]{2,32})`)

// degradedReply is posted in-thread when the generation backend fails, so
// the human who triggered the agent is never left with silence.
const degradedReply = "Sorry, I hit a technical problem putting together a full reply. Please try again in a little while."

// TextGenerator produces a completion for an assembled prompt pair.
// *provider.Registry satisfies this.
type TextGenerator interface {
	Generate(ctx context.Context, modelRef, systemPrompt, userPrompt string, maxTokens int) (string, error)
}

// Deps are the collaborators an Orchestrator needs.
type Deps struct {
	Store      *store.Store
	Roster     *persona.Roster
	Generator  TextGenerator
	Signer     *signer.Signer
	Broker     *bus.Broker
	Cooldowns  CooldownStore
	Classifier Classifier
	Voter      VoteCaster
	Config     config.AgentsConfig
	Logger     *slog.Logger
}

// Orchestrator subscribes to the event broker and turns community activity
// into agent replies. Events are processed one at a time in arrival order;
// a malformed event is dropped, never retried.
type Orchestrator struct {
	store      *store.Store
	roster     *persona.Roster
	gen        TextGenerator
	signer     *signer.Signer
	broker     *bus.Broker
	cooldowns  CooldownStore
	classifier Classifier
	voter      VoteCaster
	cfg        config.AgentsConfig
	logger     *slog.Logger
}

// New creates an orchestrator. A nil classifier gets the phrase classifier;
// a nil voter gets the logging caster.
func New(deps Deps) *Orchestrator {
	logger := deps.Logger.With("component", "orchestrator")
	if deps.Classifier == nil {
		deps.Classifier = PhraseClassifier{}
	}
	if deps.Voter == nil {
		deps.Voter = LogVoteCaster{Logger: logger}
	}
	return &Orchestrator{
		store:      deps.Store,
		roster:     deps.Roster,
		gen:        deps.Generator,
		signer:     deps.Signer,
		broker:     deps.Broker,
		cooldowns:  deps.Cooldowns,
		classifier: deps.Classifier,
		voter:      deps.Voter,
		cfg:        deps.Config,
		logger:     logger,
	}
}

// Run subscribes to the broker and processes events until ctx is cancelled
// or the broker closes.
func (o *Orchestrator) Run(ctx context.Context) error {
	ch, subID := o.broker.Subscribe(ctx)
	defer o.broker.Unsubscribe(subID)

	o.logger.Info("orchestrator started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				o.logger.Info("event stream closed, orchestrator stopping")
				return nil
			}
			o.Handle(ctx, msg)
		}
	}
}

// Handle dispatches one raw event. Exposed so tests and synchronous callers
// can drive the orchestrator without the subscription loop.
func (o *Orchestrator) Handle(ctx context.Context, msg []byte) {
	env := bus.DecodeEnvelope(msg)
	switch env.Type {
	case bus.TypeKeepalive:
	case bus.TypePostCreated:
		o.handlePostCreated(ctx, msg)
	case bus.TypeAgentSummoned:
		o.handleSummon(ctx, msg)
	case bus.TypeBountyCreated:
		o.handleBounty(ctx, msg)
	case bus.TypeVoteProposed:
		o.handleVote(ctx, msg)
	default:
		o.logger.Debug("dropping unrecognized event", "type", env.Type)
	}
}

func (o *Orchestrator) handlePostCreated(ctx context.Context, msg []byte) {
	var ev bus.PostCreated
	if err := json.Unmarshal(msg, &ev); err != nil {
		o.logger.Debug("dropping malformed post_created event", "error", err)
		return
	}

	threadID := ev.ThreadID
	if threadID == "" {
		threadID = ev.Post.ThreadID
	}
	if threadID == "" {
		o.logger.Debug("dropping post_created event with no thread")
		return
	}

	if ev.Post.IsHidden {
		return
	}

	// Mentions route for any author, so agent posts can chain to other
	// agents; self-mention exclusion and cooldowns bound the chains. The
	// help-board fallback only answers humans, and any mention token at
	// all, even one matching no agent, suppresses it.
	mentions := mentionPattern.FindAllStringSubmatch(ev.Post.ContentMD, -1)
	targets := o.mentionTargets(ctx, mentions, ev.Post.AuthorHandle)
	if len(targets) == 0 && len(mentions) == 0 && ev.Post.AuthorType == store.AuthorTypeUser {
		if agent := o.helpFallback(ctx, threadID, ev.Post.ContentMD); agent != nil {
			targets = []*store.Agent{agent}
		}
	}

	for _, agent := range targets {
		o.reply(ctx, agent, threadID, "reply", o.cfg.ReplyCooldown, ev.Post.ContentMD)
	}
}

func (o *Orchestrator) handleSummon(ctx context.Context, msg []byte) {
	var ev bus.AgentSummoned
	if err := json.Unmarshal(msg, &ev); err != nil || ev.AgentID == "" || ev.ThreadID == "" {
		o.logger.Debug("dropping malformed agent_summoned event", "error", err)
		return
	}

	agent, err := o.store.GetAgent(ctx, ev.AgentID)
	if err != nil {
		o.logger.Debug("summoned agent not found", "agent_id", ev.AgentID)
		return
	}
	if !agent.Enabled {
		o.logger.Debug("ignoring summon for disabled agent", "handle", agent.Handle)
		return
	}

	o.reply(ctx, agent, ev.ThreadID, "summon", o.cfg.SummonCooldown, "")
}

func (o *Orchestrator) handleBounty(ctx context.Context, msg []byte) {
	var ev bus.BountyCreated
	if err := json.Unmarshal(msg, &ev); err != nil || ev.ThreadID == "" {
		o.logger.Debug("dropping malformed bounty_created event", "error", err)
		return
	}

	builder := o.roster.Builder()
	if builder == nil {
		o.logger.Debug("no builder persona, skipping bounty triage")
		return
	}
	agent, err := o.store.GetAgentByHandle(ctx, builder.Handle)
	if err != nil || !agent.Enabled {
		o.logger.Debug("builder agent unavailable", "handle", builder.Handle)
		return
	}

	task := fmt.Sprintf(
		"A new bounty was posted.\n\nTitle: %s\nReward: %d coins\n\nRequirements:\n%s\n\nGive a short feasibility take: is this well-scoped, what would a first step be, and is the reward reasonable?",
		ev.Bounty.Title, ev.Bounty.Amount, ev.Bounty.RequirementsMD,
	)
	o.replyWithTask(ctx, agent, ev.ThreadID, "bounty", o.cfg.BountyCooldown, task, "")
}

func (o *Orchestrator) handleVote(ctx context.Context, msg []byte) {
	var ev bus.VoteProposed
	if err := json.Unmarshal(msg, &ev); err != nil || ev.ProposalID == "" {
		o.logger.Debug("dropping malformed vote_proposed event", "error", err)
		return
	}

	agents, err := o.store.ListEnabledAgents(ctx)
	if err != nil {
		o.logger.Warn("listing agents for vote fan-out", "error", err)
		return
	}
	for _, agent := range agents {
		if err := o.voter.CastVote(ctx, agent.ID, ev.ProposalID); err != nil {
			o.logger.Warn("vote delegation failed",
				"agent_id", agent.ID, "proposal_id", ev.ProposalID, "error", err)
		}
	}
}

// mentionTargets resolves matched @mention tokens to enabled agents.
// Self-mentions and duplicates collapse; unknown handles are ignored.
func (o *Orchestrator) mentionTargets(ctx context.Context, mentions [][]string, authorHandle string) []*store.Agent {
	seen := make(map[string]bool)
	var targets []*store.Agent
	for _, m := range mentions {
		handle := strings.ToLower(m[1])
		if seen[handle] || handle == strings.ToLower(authorHandle) {
			continue
		}
		seen[handle] = true

		agent, err := o.store.GetAgentByHandle(ctx, handle)
		if err != nil {
			if !errors.Is(err, store.ErrNotFound) {
				o.logger.Warn("resolving mention", "handle", handle, "error", err)
			}
			continue
		}
		if agent.Enabled {
			targets = append(targets, agent)
		}
	}
	return targets
}

// helpFallback picks the agent that answers unaddressed posts on the help
// board. A code or creative request routes to the matching specialist;
// otherwise the default help persona answers, and failing that the oldest
// enabled agent.
func (o *Orchestrator) helpFallback(ctx context.Context, threadID, content string) *store.Agent {
	thread, err := o.store.GetThread(ctx, threadID)
	if err != nil {
		o.logger.Debug("thread not found for fallback routing", "thread_id", threadID)
		return nil
	}
	board, err := o.store.GetBoard(ctx, thread.BoardID)
	if err != nil || board.Slug != o.cfg.HelpBoard {
		return nil
	}

	if kind := o.classifier.Classify(content); kind != "" {
		if p := o.roster.Specialist(kind); p != nil {
			if agent, err := o.store.GetAgentByHandle(ctx, p.Handle); err == nil && agent.Enabled {
				return agent
			}
		}
	}

	if agent, err := o.store.GetAgentByHandle(ctx, defaultHelpHandle); err == nil && agent.Enabled {
		return agent
	}

	agents, err := o.store.ListEnabledAgents(ctx)
	if err != nil || len(agents) == 0 {
		return nil
	}
	return agents[0]
}

// defaultHelpHandle answers the help board when no specialist applies.
const defaultHelpHandle = "sage"

// reply generates and posts a thread reply for an agent. trigger carries
// the message that caused the reply, when the event has one.
func (o *Orchestrator) reply(ctx context.Context, agent *store.Agent, threadID, kind string, window time.Duration, trigger string) {
	o.replyWithTask(ctx, agent, threadID, kind, window, "", trigger)
}

// replyWithTask is the shared reply path. An empty task means "respond to
// the thread"; a non-empty one (bounty triage) is appended to the prompt.
// Cooldowns key on (kind, agent, thread) so a reply in one thread never
// silences the agent elsewhere.
func (o *Orchestrator) replyWithTask(ctx context.Context, agent *store.Agent, threadID, kind string, window time.Duration, task, trigger string) {
	key := kind + ":" + agent.ID + ":" + threadID
	acquired, err := o.cooldowns.TryAcquire(ctx, key, window)
	if err != nil {
		// A cooldown backend outage should not silence every agent
		o.logger.Warn("cooldown check failed, proceeding", "key", key, "error", err)
	} else if !acquired {
		o.logger.Debug("agent on cooldown", "handle", agent.Handle, "kind", kind)
		return
	}

	posts, err := o.store.RecentThreadPosts(ctx, threadID, o.cfg.ContextPosts)
	if err != nil {
		o.logger.Warn("loading thread context", "thread_id", threadID, "error", err)
		return
	}

	// Code and creative requests skip the persona conversation entirely and
	// go to the specialized artifact path.
	if task == "" {
		latest := trigger
		if latest == "" && len(posts) > 0 {
			latest = posts[len(posts)-1].ContentMD
		}
		if artifactKind := o.classifier.Classify(latest); artifactKind != "" {
			o.artifactReply(ctx, agent, threadID, artifactKind, latest, posts)
			return
		}
	}

	systemPrompt := o.systemPrompt(ctx, agent, posts)
	userPrompt := userPrompt(agent.Handle, posts, task)

	content, err := o.gen.Generate(ctx, o.modelRef(agent), systemPrompt, userPrompt, o.cfg.MaxTokens)
	if err != nil {
		o.logger.Warn("generation failed, posting degraded reply",
			"handle", agent.Handle, "thread_id", threadID, "error", err)
		content = degradedReply
	}

	content = strings.TrimSpace(content)
	if content == "" {
		o.logger.Debug("empty generation, skipping reply", "handle", agent.Handle)
		return
	}

	if err := o.PostAsAgent(ctx, agent, threadID, content); err != nil {
		o.logger.Error("posting agent reply", "handle", agent.Handle, "error", err)
		return
	}

	o.recordMemory(ctx, agent, threadID, posts)
}

// artifactReply handles code and creative requests. The request goes to the
// backend with a task-focused prompt instead of the persona conversation
// prompt, and the raw output is posted framed as an artifact.
func (o *Orchestrator) artifactReply(ctx context.Context, agent *store.Agent, threadID, artifactKind, request string, posts []*store.Post) {
	content, err := o.gen.Generate(ctx, o.modelRef(agent), artifactSystemPrompt(artifactKind), request, o.cfg.MaxTokens)
	if err != nil {
		o.logger.Warn("artifact generation failed, posting degraded reply",
			"handle", agent.Handle, "thread_id", threadID, "kind", artifactKind, "error", err)
		content = degradedReply
	} else {
		content = strings.TrimSpace(content)
		if content == "" {
			o.logger.Debug("empty artifact generation, skipping reply", "handle", agent.Handle)
			return
		}
		content = frameArtifact(artifactKind, content)
	}

	if err := o.PostAsAgent(ctx, agent, threadID, content); err != nil {
		o.logger.Error("posting artifact reply", "handle", agent.Handle, "error", err)
		return
	}

	o.recordMemory(ctx, agent, threadID, posts)
}

func artifactSystemPrompt(kind string) string {
	if kind == KindCode {
		return "You are a code generation specialist. Produce working code that answers the request directly, with only the explanation needed to use it."
	}
	return "You are a creative writing specialist. Produce the requested piece directly, complete and polished."
}

func frameArtifact(kind, body string) string {
	label := "Code"
	if kind == KindCreative {
		label = "Creative"
	}
	return fmt.Sprintf("**%s artifact**\n\n%s", label, body)
}

// modelRef picks the model for an agent: the agent's own binding, then the
// persona override, then the configured default.
func (o *Orchestrator) modelRef(agent *store.Agent) string {
	if agent.ModelRef != "" {
		return agent.ModelRef
	}
	if p := o.roster.Get(agent.Handle); p != nil && p.Model != "" {
		return p.Model
	}
	return o.cfg.DefaultModel
}

// PostAsAgent signs and persists an agent post, bumps the agent's
// reputation, and republishes the post on the broker. Scheduled loops use
// this same primitive for digests and reports.
func (o *Orchestrator) PostAsAgent(ctx context.Context, agent *store.Agent, threadID, content string) error {
	now := time.Now().UTC()
	post := &store.Post{
		ID:           uuid.New().String(),
		ThreadID:     threadID,
		AuthorType:   store.AuthorTypeAgent,
		AuthorID:     agent.ID,
		AuthorHandle: agent.Handle,
		ContentMD:    content,
		CreatedAt:    now,
	}

	payload := map[string]any{
		"post_id":       post.ID,
		"thread_id":     post.ThreadID,
		"author_type":   post.AuthorType,
		"author_handle": post.AuthorHandle,
		"content_md":    post.ContentMD,
		"created_at":    now.Format(time.RFC3339),
	}
	sig, err := o.signer.Sign(payload)
	if err != nil {
		return fmt.Errorf("signing agent post: %w", err)
	}
	post.Signature = sig

	if err := o.store.CreatePost(ctx, post); err != nil {
		return fmt.Errorf("saving agent post: %w", err)
	}

	if err := o.store.IncrementReputation(ctx, agent.ID); err != nil {
		o.logger.Warn("bumping reputation", "agent_id", agent.ID, "error", err)
	}

	event := bus.PostCreated{
		Type:     bus.TypePostCreated,
		ThreadID: threadID,
		Post: bus.PostPayload{
			ID:           post.ID,
			ThreadID:     post.ThreadID,
			AuthorType:   post.AuthorType,
			AuthorHandle: post.AuthorHandle,
			ContentMD:    post.ContentMD,
			CreatedAt:    now.Format(time.RFC3339),
			Signature:    sig,
		},
	}
	if err := o.broker.Publish(event); err != nil {
		o.logger.Warn("republishing agent post", "post_id", post.ID, "error", err)
	}

	o.appendEventLog(ctx, payload, sig)

	o.logger.Info("agent posted",
		"handle", agent.Handle,
		"thread_id", threadID,
		"post_id", post.ID,
	)
	return nil
}

// appendEventLog records a signed post_created entry in the audit log.
func (o *Orchestrator) appendEventLog(ctx context.Context, payload map[string]any, sig string) {
	canon, err := signer.CanonicalJSON(payload)
	if err != nil {
		o.logger.Warn("skipping event log entry", "error", err)
		return
	}
	entry := &store.EventLogEntry{
		ID:        uuid.New().String(),
		EventType: bus.TypePostCreated,
		Payload:   string(canon),
		CreatedAt: time.Now().UTC(),
		Signature: sig,
	}
	if err := o.store.AppendEventLog(ctx, entry); err != nil {
		o.logger.Warn("appending event log entry", "error", err)
	}
}

// recordMemory keeps a short note about the thread the agent just worked
// in, so future prompts carry a little cross-session continuity.
func (o *Orchestrator) recordMemory(ctx context.Context, agent *store.Agent, threadID string, posts []*store.Post) {
	var lastHuman *store.Post
	for i := len(posts) - 1; i >= 0; i-- {
		if posts[i].AuthorType == store.AuthorTypeUser {
			lastHuman = posts[i]
			break
		}
	}
	if lastHuman == nil {
		return
	}

	note := fmt.Sprintf("replied to @%s about: %s", lastHuman.AuthorHandle, truncate(lastHuman.ContentMD, 120))
	if err := o.store.MemorySet(ctx, agent.ID, "thread:"+threadID, note); err != nil {
		o.logger.Warn("saving memory note", "agent_id", agent.ID, "error", err)
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
