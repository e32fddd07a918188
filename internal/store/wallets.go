// ABOUTME: Wallet, ledger transaction, and event log persistence
// ABOUTME: ApplyTransfer runs the balance mutation and tx insert in one database transaction

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// CreateWallet inserts a new wallet
func (s *Store) CreateWallet(ctx context.Context, w *Wallet) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO wallets (id, owner_type, owner_id, balance, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		w.ID, w.OwnerType, w.OwnerID, w.Balance,
		w.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting wallet: %w", err)
	}
	return nil
}

// GetWallet retrieves a wallet by ID
func (s *Store) GetWallet(ctx context.Context, id string) (*Wallet, error) {
	return scanWallet(s.db.QueryRowContext(ctx,
		`SELECT id, owner_type, owner_id, balance, updated_at FROM wallets WHERE id = ?`, id))
}

// GetWalletByOwner retrieves a wallet by its owner
func (s *Store) GetWalletByOwner(ctx context.Context, ownerType, ownerID string) (*Wallet, error) {
	return scanWallet(s.db.QueryRowContext(ctx,
		`SELECT id, owner_type, owner_id, balance, updated_at
		 FROM wallets WHERE owner_type = ? AND owner_id = ?`, ownerType, ownerID))
}

// GetSystemWallet returns the shared system wallet if one exists
func (s *Store) GetSystemWallet(ctx context.Context) (*Wallet, error) {
	return scanWallet(s.db.QueryRowContext(ctx,
		`SELECT id, owner_type, owner_id, balance, updated_at
		 FROM wallets WHERE owner_type = 'system' ORDER BY updated_at ASC LIMIT 1`))
}

func scanWallet(row *sql.Row) (*Wallet, error) {
	w := &Wallet{}
	var updatedAt string
	err := row.Scan(&w.ID, &w.OwnerType, &w.OwnerID, &w.Balance, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying wallet: %w", err)
	}
	w.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing wallet timestamp: %w", err)
	}
	return w, nil
}

// ApplyTransfer atomically moves tx.Amount from the source wallet (if any)
// to the destination wallet and records the signed transaction row. Either
// every mutation lands or none does; no partial state is observable.
//
// Balance and existence checks run inside the transaction so they are
// authoritative under concurrency. A nil FromWalletID mints: no source
// check, supply increases.
func (s *Store) ApplyTransfer(ctx context.Context, tx *LedgerTx) error {
	dbTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transfer: %w", err)
	}
	defer dbTx.Rollback()

	now := tx.CreatedAt.UTC().Format(time.RFC3339)

	if tx.FromWalletID != nil {
		var balance int64
		err := dbTx.QueryRowContext(ctx,
			`SELECT balance FROM wallets WHERE id = ?`, *tx.FromWalletID,
		).Scan(&balance)
		if err == sql.ErrNoRows {
			return ErrWalletNotFound
		}
		if err != nil {
			return fmt.Errorf("reading source balance: %w", err)
		}
		if balance < tx.Amount {
			return ErrInsufficientFunds
		}

		if _, err := dbTx.ExecContext(ctx,
			`UPDATE wallets SET balance = balance - ?, updated_at = ? WHERE id = ?`,
			tx.Amount, now, *tx.FromWalletID,
		); err != nil {
			return fmt.Errorf("debiting source wallet: %w", err)
		}
	}

	res, err := dbTx.ExecContext(ctx,
		`UPDATE wallets SET balance = balance + ?, updated_at = ? WHERE id = ?`,
		tx.Amount, now, tx.ToWalletID,
	)
	if err != nil {
		return fmt.Errorf("crediting destination wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking destination update: %w", err)
	}
	if n == 0 {
		return ErrWalletNotFound
	}

	if _, err := dbTx.ExecContext(ctx,
		`INSERT INTO ledger_txs (id, from_wallet_id, to_wallet_id, amount, reason, ref_type, ref_id, created_at, signature)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.ID, tx.FromWalletID, tx.ToWalletID, tx.Amount, tx.Reason, tx.RefType, tx.RefID,
		now, tx.Signature,
	); err != nil {
		return fmt.Errorf("inserting ledger transaction: %w", err)
	}

	if err := dbTx.Commit(); err != nil {
		return fmt.Errorf("committing transfer: %w", err)
	}

	s.logger.Debug("applied transfer",
		"tx_id", tx.ID,
		"to", tx.ToWalletID,
		"amount", tx.Amount,
		"reason", tx.Reason,
	)
	return nil
}

// GetLedgerTx retrieves a ledger transaction by ID
func (s *Store) GetLedgerTx(ctx context.Context, id string) (*LedgerTx, error) {
	tx := &LedgerTx{}
	var createdAt string
	var from, refID, sig sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, from_wallet_id, to_wallet_id, amount, reason, ref_type, ref_id, created_at, signature
		 FROM ledger_txs WHERE id = ?`, id,
	).Scan(&tx.ID, &from, &tx.ToWalletID, &tx.Amount, &tx.Reason, &tx.RefType, &refID, &createdAt, &sig)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying ledger transaction: %w", err)
	}
	if from.Valid {
		tx.FromWalletID = &from.String
	}
	tx.RefID = refID.String
	tx.Signature = sig.String
	tx.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing transaction timestamp: %w", err)
	}
	return tx, nil
}

// CountLedgerTxsSince counts transactions with the given reason created at
// or after the given time. The weekly report uses this for payouts.
func (s *Store) CountLedgerTxsSince(ctx context.Context, reason string, since time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM ledger_txs WHERE reason = ? AND created_at >= ?`,
		reason, since.UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting ledger transactions: %w", err)
	}
	return n, nil
}

// AppendEventLog inserts a signed event log entry. The log is append-only;
// there is no update or delete path.
func (s *Store) AppendEventLog(ctx context.Context, e *EventLogEntry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO event_log (id, event_type, payload, created_at, signature)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.EventType, e.Payload, e.CreatedAt.UTC().Format(time.RFC3339), e.Signature,
	)
	if err != nil {
		return fmt.Errorf("inserting event log entry: %w", err)
	}
	return nil
}

// RecentEventLog returns the newest limit entries, newest first
func (s *Store) RecentEventLog(ctx context.Context, limit int) ([]*EventLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, event_type, payload, created_at, signature
		 FROM event_log ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying event log: %w", err)
	}
	defer rows.Close()

	var entries []*EventLogEntry
	for rows.Next() {
		e := &EventLogEntry{}
		var createdAt string
		var sig sql.NullString
		if err := rows.Scan(&e.ID, &e.EventType, &e.Payload, &createdAt, &sig); err != nil {
			return nil, fmt.Errorf("scanning event log row: %w", err)
		}
		e.Signature = sig.String
		e.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing event log timestamp: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating event log rows: %w", err)
	}
	return entries, nil
}
