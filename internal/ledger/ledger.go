// ABOUTME: Currency ledger service: signed, atomic wallet transfers
// ABOUTME: Wraps store.ApplyTransfer with validation, node signatures, and the audit log

package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/coevo/coevo-node/internal/signer"
	"github.com/coevo/coevo-node/internal/store"
)

// ErrInvalidAmount is returned when a transfer amount is zero or negative
var ErrInvalidAmount = errors.New("transfer amount must be positive")

// Service executes double-entry transfers between wallets. Every transfer
// is signed by the node before it is written; a nil source wallet mints
// new currency into circulation.
type Service struct {
	store  *store.Store
	signer *signer.Signer
	logger *slog.Logger
}

// New creates a ledger service
func New(st *store.Store, sg *signer.Signer, logger *slog.Logger) *Service {
	return &Service{
		store:  st,
		signer: sg,
		logger: logger.With("component", "ledger"),
	}
}

// Transfer moves amount from one wallet to another and records a signed
// transaction. Validation happens before any state is touched; the balance
// mutation and the transaction row commit together or not at all.
func (s *Service) Transfer(ctx context.Context, fromWalletID *string, toWalletID string, amount int64, reason, refType, refID string) (*store.LedgerTx, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidAmount, amount)
	}

	tx := &store.LedgerTx{
		ID:           uuid.New().String(),
		FromWalletID: fromWalletID,
		ToWalletID:   toWalletID,
		Amount:       amount,
		Reason:       reason,
		RefType:      refType,
		RefID:        refID,
		CreatedAt:    time.Now().UTC(),
	}

	sig, err := s.signer.Sign(txPayload(tx))
	if err != nil {
		return nil, fmt.Errorf("signing ledger transaction: %w", err)
	}
	tx.Signature = sig

	if err := s.store.ApplyTransfer(ctx, tx); err != nil {
		return nil, err
	}

	s.auditTransfer(ctx, tx)

	s.logger.Info("transfer applied",
		"tx_id", tx.ID,
		"to", tx.ToWalletID,
		"amount", tx.Amount,
		"reason", tx.Reason,
	)
	return tx, nil
}

// Mint creates new currency in the destination wallet with no source
func (s *Service) Mint(ctx context.Context, toWalletID string, amount int64, refType, refID string) (*store.LedgerTx, error) {
	return s.Transfer(ctx, nil, toWalletID, amount, store.ReasonMint, refType, refID)
}

// Escrow parks bounty funds in the system wallet until the bounty settles
func (s *Service) Escrow(ctx context.Context, fromWalletID string, amount int64, bountyID string) (*store.LedgerTx, error) {
	system, err := s.GetOrCreateSystemWallet(ctx)
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, &fromWalletID, system.ID, amount, store.ReasonEscrow, "bounty", bountyID)
}

// Payout releases escrowed bounty funds to the winner's wallet
func (s *Service) Payout(ctx context.Context, toWalletID string, amount int64, bountyID string) (*store.LedgerTx, error) {
	system, err := s.GetOrCreateSystemWallet(ctx)
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, &system.ID, toWalletID, amount, store.ReasonPayout, "bounty", bountyID)
}

// Refund returns escrowed bounty funds to the original poster
func (s *Service) Refund(ctx context.Context, toWalletID string, amount int64, bountyID string) (*store.LedgerTx, error) {
	system, err := s.GetOrCreateSystemWallet(ctx)
	if err != nil {
		return nil, err
	}
	return s.Transfer(ctx, &system.ID, toWalletID, amount, store.ReasonRefund, "bounty", bountyID)
}

// VerifyTx reports whether a transaction's signature matches its payload
// under the node's public key.
func (s *Service) VerifyTx(tx *store.LedgerTx) bool {
	return s.signer.Verify(txPayload(tx), tx.Signature)
}

// GetOrCreateSystemWallet returns the shared system wallet, creating it on
// first use. Bounty escrow parks funds here between posting and payout.
func (s *Service) GetOrCreateSystemWallet(ctx context.Context) (*store.Wallet, error) {
	w, err := s.store.GetSystemWallet(ctx)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	w = &store.Wallet{
		ID:        uuid.New().String(),
		OwnerType: store.OwnerTypeSystem,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("creating system wallet: %w", err)
	}
	s.logger.Info("created system wallet", "wallet_id", w.ID)
	return w, nil
}

// EnsureWallet returns the wallet owned by the given user or agent,
// creating an empty one if the owner has none yet.
func (s *Service) EnsureWallet(ctx context.Context, ownerType, ownerID string) (*store.Wallet, error) {
	w, err := s.store.GetWalletByOwner(ctx, ownerType, ownerID)
	if err == nil {
		return w, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	w = &store.Wallet{
		ID:        uuid.New().String(),
		OwnerType: ownerType,
		OwnerID:   ownerID,
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateWallet(ctx, w); err != nil {
		return nil, fmt.Errorf("creating wallet: %w", err)
	}
	return w, nil
}

// auditTransfer appends the signed transaction to the event log. The log
// is advisory; a failed append never unwinds a committed transfer.
func (s *Service) auditTransfer(ctx context.Context, tx *store.LedgerTx) {
	payload, err := signer.CanonicalJSON(txPayload(tx))
	if err != nil {
		s.logger.Warn("skipping transfer audit entry", "error", err)
		return
	}
	entry := &store.EventLogEntry{
		ID:        uuid.New().String(),
		EventType: "ledger_tx",
		Payload:   string(payload),
		CreatedAt: tx.CreatedAt,
		Signature: tx.Signature,
	}
	if err := s.store.AppendEventLog(ctx, entry); err != nil {
		s.logger.Warn("failed to append transfer audit entry", "tx_id", tx.ID, "error", err)
	}
}

// txPayload is the canonical signing payload for a ledger transaction.
// Field set and names are fixed; changing them breaks verification of
// historical rows.
func txPayload(tx *store.LedgerTx) map[string]any {
	var from any
	if tx.FromWalletID != nil {
		from = *tx.FromWalletID
	}
	return map[string]any{
		"tx_id":          tx.ID,
		"from_wallet_id": from,
		"to_wallet_id":   tx.ToWalletID,
		"amount":         tx.Amount,
		"reason":         tx.Reason,
		"ref_type":       tx.RefType,
		"ref_id":         tx.RefID,
		"created_at":     tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}
