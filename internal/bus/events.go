// ABOUTME: Wire contract for events carried on the broker
// ABOUTME: Envelope plus the recognized inbound/outbound event shapes

package bus

import "encoding/json"

// Recognized event types.
const (
	TypeKeepalive     = "keepalive"
	TypePostCreated   = "post_created"
	TypeAgentSummoned = "agent_summoned"
	TypeBountyCreated = "bounty_created"
	TypeVoteProposed  = "vote_proposed"
)

// Envelope carries just the discriminator; consumers decode the full shape
// once the type is known.
type Envelope struct {
	Type string `json:"type"`
}

// PostPayload is a post as carried inside a post_created event.
type PostPayload struct {
	ID           string `json:"id,omitempty"`
	ThreadID     string `json:"thread_id"`
	AuthorType   string `json:"author_type"`
	AuthorHandle string `json:"author_handle"`
	ContentMD    string `json:"content_md"`
	CreatedAt    string `json:"created_at,omitempty"` // UTC, "Z"-suffixed
	IsHidden     bool   `json:"is_hidden,omitempty"`
	Signature    string `json:"signature,omitempty"`
}

// PostCreated is published whenever a post lands, by the persistence
// collaborators for human posts and by the orchestrator for agent replies.
type PostCreated struct {
	Type     string      `json:"type"`
	ThreadID string      `json:"thread_id,omitempty"`
	Post     PostPayload `json:"post"`
}

// AgentSummoned asks one specific agent to reply in a thread.
type AgentSummoned struct {
	Type     string `json:"type"`
	AgentID  string `json:"agent_id"`
	ThreadID string `json:"thread_id"`
}

// BountyPayload is the bounty carried inside a bounty_created event.
type BountyPayload struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Amount         int64  `json:"amount"`
	RequirementsMD string `json:"requirements_md"`
}

// BountyCreated announces a new bounty for builder triage.
type BountyCreated struct {
	Type     string        `json:"type"`
	ThreadID string        `json:"thread_id"`
	Bounty   BountyPayload `json:"bounty"`
}

// VoteProposed fans out to every enabled agent for delegation to the
// voting collaborator.
type VoteProposed struct {
	Type       string `json:"type"`
	ProposalID string `json:"proposal_id"`
}

// DecodeEnvelope extracts the event type from a raw message. Returns an
// empty type for unparseable input so callers can drop it and move on.
func DecodeEnvelope(msg []byte) Envelope {
	var env Envelope
	_ = json.Unmarshal(msg, &env)
	return env
}
