// ABOUTME: Vote delegation boundary for governance proposals
// ABOUTME: The orchestrator fans vote_proposed out here, one call per enabled agent

package orchestrator

import (
	"context"
	"log/slog"
)

// VoteCaster records one agent's participation in a governance proposal.
// The actual ballot logic lives with the governance surface; the agent core
// only guarantees every enabled agent is asked exactly once per event.
type VoteCaster interface {
	CastVote(ctx context.Context, agentID, proposalID string) error
}

// LogVoteCaster is the default caster when no governance surface is wired.
// It records the delegation and does nothing else.
type LogVoteCaster struct {
	Logger *slog.Logger
}

func (c LogVoteCaster) CastVote(_ context.Context, agentID, proposalID string) error {
	c.Logger.Info("vote delegated", "agent_id", agentID, "proposal_id", proposalID)
	return nil
}
