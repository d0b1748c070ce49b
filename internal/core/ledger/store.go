// Package ledger defines the durable, versioned record store the engines
// run against. Correctness under concurrent handlers relies entirely on the
// store's optimistic-concurrency writes: every mutation carries the version
// the caller read, and a stale write fails with domain.ErrConflict.
package ledger

import (
	"context"

	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
)

// Store persists transactions, card submissions, withdrawals and settlement
// batches. Implementations: the pgx-backed repositories in adapter/storage
// and the in-memory store used by tests and dev mode.
type Store interface {
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	// UpdateTransaction writes tx if the stored version equals
	// expectedVersion, bumping the version by one. domain.ErrConflict
	// otherwise.
	UpdateTransaction(ctx context.Context, tx *domain.Transaction, expectedVersion uint64) error
	ListTransactions(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) ([]*domain.Transaction, error)
	ListTransactionsInStatus(ctx context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error)

	CreateSubmission(ctx context.Context, sub *domain.CardSubmission) error
	GetSubmission(ctx context.Context, id uuid.UUID) (*domain.CardSubmission, error)
	GetSubmissionByTransaction(ctx context.Context, transactionID uuid.UUID) (*domain.CardSubmission, error)
	UpdateSubmission(ctx context.Context, sub *domain.CardSubmission, expectedVersion uint64) error

	GetWithdrawal(ctx context.Context, id uuid.UUID) (*domain.Withdrawal, error)
	UpdateWithdrawal(ctx context.Context, wd *domain.Withdrawal, expectedVersion uint64) error
	ListWithdrawals(ctx context.Context, merchantID uuid.UUID, currency domain.Currency) ([]*domain.Withdrawal, error)

	// ReserveWithdrawal is the single atomic check-and-reserve: it
	// recomputes the merchant's available balance and inserts the
	// withdrawal under one lock (or database transaction), failing with
	// domain.ErrInsufficientBalance when the gross amount does not fit.
	// Never implemented as check-then-insert across two calls.
	ReserveWithdrawal(ctx context.Context, wd *domain.Withdrawal) error

	CreateSettlement(ctx context.Context, s *domain.Settlement) error
	ListSettlements(ctx context.Context, merchantID uuid.UUID) ([]*domain.Settlement, error)
}
