package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
)

// Memory is the in-process ledger store. It backs the engine tests and dev
// mode, and mirrors the semantics of the Postgres repositories: versioned
// compare-and-swap writes and an atomic withdrawal reservation.
type Memory struct {
	mu sync.Mutex

	transactions map[uuid.UUID]*domain.Transaction
	submissions  map[uuid.UUID]*domain.CardSubmission
	withdrawals  map[uuid.UUID]*domain.Withdrawal
	settlements  map[uuid.UUID]*domain.Settlement
}

func NewMemory() *Memory {
	return &Memory{
		transactions: make(map[uuid.UUID]*domain.Transaction),
		submissions:  make(map[uuid.UUID]*domain.CardSubmission),
		withdrawals:  make(map[uuid.UUID]*domain.Withdrawal),
		settlements:  make(map[uuid.UUID]*domain.Settlement),
	}
}

func cloneTransaction(t *domain.Transaction) *domain.Transaction {
	cp := *t
	cp.RiskFlags = append([]string(nil), t.RiskFlags...)
	cp.Timeline = append([]domain.TimelineEntry(nil), t.Timeline...)
	return &cp
}

func cloneSubmission(s *domain.CardSubmission) *domain.CardSubmission {
	cp := *s
	cp.SealedCard = append([]byte(nil), s.SealedCard...)
	if s.VerificationApproved != nil {
		v := *s.VerificationApproved
		cp.VerificationApproved = &v
	}
	return &cp
}

func cloneWithdrawal(w *domain.Withdrawal) *domain.Withdrawal {
	cp := *w
	return &cp
}

func (m *Memory) CreateTransaction(_ context.Context, tx *domain.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx.Version = 1
	m.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (m *Memory) GetTransaction(_ context.Context, id uuid.UUID) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.transactions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneTransaction(t), nil
}

func (m *Memory) UpdateTransaction(_ context.Context, tx *domain.Transaction, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.transactions[tx.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrConflict
	}
	tx.Version = expectedVersion + 1
	tx.UpdatedAt = time.Now().UTC()
	m.transactions[tx.ID] = cloneTransaction(tx)
	return nil
}

func (m *Memory) ListTransactions(_ context.Context, merchantID uuid.UUID, currency domain.Currency) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listTransactionsLocked(merchantID, currency), nil
}

func (m *Memory) listTransactionsLocked(merchantID uuid.UUID, currency domain.Currency) []*domain.Transaction {
	var out []*domain.Transaction
	for _, t := range m.transactions {
		if t.MerchantID == merchantID && t.Amount.Currency == currency {
			out = append(out, cloneTransaction(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (m *Memory) ListTransactionsInStatus(_ context.Context, statuses ...domain.TransactionStatus) ([]*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Transaction
	for _, t := range m.transactions {
		for _, s := range statuses {
			if t.Status == s {
				out = append(out, cloneTransaction(t))
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateSubmission(_ context.Context, sub *domain.CardSubmission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub.Version = 1
	m.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

func (m *Memory) GetSubmission(_ context.Context, id uuid.UUID) (*domain.CardSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.submissions[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSubmission(s), nil
}

func (m *Memory) GetSubmissionByTransaction(_ context.Context, transactionID uuid.UUID) (*domain.CardSubmission, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.submissions {
		if s.TransactionID == transactionID {
			return cloneSubmission(s), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *Memory) UpdateSubmission(_ context.Context, sub *domain.CardSubmission, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.submissions[sub.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrConflict
	}
	sub.Version = expectedVersion + 1
	sub.UpdatedAt = time.Now().UTC()
	m.submissions[sub.ID] = cloneSubmission(sub)
	return nil
}

func (m *Memory) GetWithdrawal(_ context.Context, id uuid.UUID) (*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.withdrawals[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneWithdrawal(w), nil
}

func (m *Memory) UpdateWithdrawal(_ context.Context, wd *domain.Withdrawal, expectedVersion uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.withdrawals[wd.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Version != expectedVersion {
		return domain.ErrConflict
	}
	wd.Version = expectedVersion + 1
	m.withdrawals[wd.ID] = cloneWithdrawal(wd)
	return nil
}

func (m *Memory) ListWithdrawals(_ context.Context, merchantID uuid.UUID, currency domain.Currency) ([]*domain.Withdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listWithdrawalsLocked(merchantID, currency), nil
}

func (m *Memory) listWithdrawalsLocked(merchantID uuid.UUID, currency domain.Currency) []*domain.Withdrawal {
	var out []*domain.Withdrawal
	for _, w := range m.withdrawals {
		if w.MerchantID == merchantID && w.Amount.Currency == currency {
			out = append(out, cloneWithdrawal(w))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ReserveWithdrawal recomputes available balance and inserts the withdrawal
// under the same lock, so two concurrent reservations can never both pass
// the check against stale balance.
func (m *Memory) ReserveWithdrawal(_ context.Context, wd *domain.Withdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	currency := wd.Amount.Currency
	bal := domain.ComputeBalance(wd.MerchantID, currency,
		m.listTransactionsLocked(wd.MerchantID, currency),
		m.listWithdrawalsLocked(wd.MerchantID, currency))

	if wd.Amount.Amount > bal.Available.Amount {
		return domain.ErrInsufficientBalance
	}

	wd.Version = 1
	m.withdrawals[wd.ID] = cloneWithdrawal(wd)
	return nil
}

func (m *Memory) CreateSettlement(_ context.Context, s *domain.Settlement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	cp.TransactionIDs = append([]uuid.UUID(nil), s.TransactionIDs...)
	m.settlements[s.ID] = &cp
	return nil
}

func (m *Memory) ListSettlements(_ context.Context, merchantID uuid.UUID) ([]*domain.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Settlement
	for _, s := range m.settlements {
		if s.MerchantID == merchantID {
			cp := *s
			cp.TransactionIDs = append([]uuid.UUID(nil), s.TransactionIDs...)
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
