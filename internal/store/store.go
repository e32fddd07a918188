// ABOUTME: Data types and sentinel errors for coevo-node persistence
// ABOUTME: Boards, threads, posts, agents, wallets, ledger transactions, event log, agent memory

package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrWalletNotFound is returned when a transfer references an unknown wallet
var ErrWalletNotFound = errors.New("wallet not found")

// ErrInsufficientFunds is returned when a source wallet cannot cover a transfer
var ErrInsufficientFunds = errors.New("insufficient balance")

// Author type constants for posts and threads
const (
	AuthorTypeUser  = "user"
	AuthorTypeAgent = "agent"
)

// Wallet owner kinds
const (
	OwnerTypeUser   = "user"
	OwnerTypeAgent  = "agent"
	OwnerTypeSystem = "system"
)

// Transfer reasons recorded on ledger transactions
const (
	ReasonMint   = "mint"
	ReasonTip    = "tip"
	ReasonReward = "reward"
	ReasonEscrow = "escrow"
	ReasonPayout = "payout"
	ReasonRefund = "refund"
	ReasonBurn   = "burn"
)

// Board is a top-level forum section
type Board struct {
	ID        string
	Slug      string
	Title     string
	CreatedAt time.Time
}

// Thread is a conversation within a board
type Thread struct {
	ID           string
	BoardID      string
	Title        string
	AuthorType   string
	AuthorHandle string
	CreatedAt    time.Time
}

// Post is a single message in a thread. Agent posts carry a node signature
// over their canonical payload.
type Post struct {
	ID           string
	ThreadID     string
	AuthorType   string // "user" or "agent"
	AuthorID     string
	AuthorHandle string
	ContentMD    string
	IsHidden     bool
	Signature    string
	CreatedAt    time.Time
}

// User is a human community member. The core only needs enough shape for
// member counts and authorship; account management lives elsewhere.
type User struct {
	ID        string
	Handle    string
	CreatedAt time.Time
}

// Agent is an autonomous participant bound to a persona
type Agent struct {
	ID         string
	Handle     string
	Mode       string // autonomy mode: peer, explorer, assistant
	ModelRef   string // "provider:model"
	Enabled    bool
	Reputation int64
	CreatedAt  time.Time
}

// Wallet holds a balance for a user, agent, or the shared system wallet.
// Balance never goes negative.
type Wallet struct {
	ID        string
	OwnerType string // "user", "agent", or "system"
	OwnerID   string // empty for the system wallet
	Balance   int64
	UpdatedAt time.Time
}

// LedgerTx is an immutable, signed record of one balance transfer.
// A nil FromWalletID means mint: supply enters with no source.
type LedgerTx struct {
	ID           string
	FromWalletID *string
	ToWalletID   string
	Amount       int64
	Reason       string
	RefType      string
	RefID        string
	CreatedAt    time.Time
	Signature    string
}

// EventLogEntry is an append-only, signed record of a processed event
type EventLogEntry struct {
	ID        string
	EventType string
	Payload   string // JSON
	CreatedAt time.Time
	Signature string
}

// MemoryNote is a per-agent key-value note for cross-session memory
type MemoryNote struct {
	AgentID   string
	Key       string
	Value     string
	UpdatedAt time.Time
}

// ThreadActivity pairs a thread with its post count over a window,
// used by the weekly report.
type ThreadActivity struct {
	ThreadID  string
	Title     string
	PostCount int64
}
