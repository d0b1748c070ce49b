package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
)

func newTransaction(merchantID uuid.UUID, amount int64, status domain.TransactionStatus) *domain.Transaction {
	now := time.Now().UTC()
	return &domain.Transaction{
		ID:         uuid.New(),
		MerchantID: merchantID,
		Amount:     domain.NewMoney(amount, domain.USD),
		Method:     domain.MethodCard,
		Status:     status,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

func TestTransactionVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	tx := newTransaction(uuid.New(), 100_00, domain.TxPendingSubmission)

	require.NoError(t, store.CreateTransaction(ctx, tx))
	assert.Equal(t, uint64(1), tx.Version)

	tx.Status = domain.TxSubmitted
	require.NoError(t, store.UpdateTransaction(ctx, tx, 1))
	assert.Equal(t, uint64(2), tx.Version)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, got.Status)
	assert.Equal(t, uint64(2), got.Version)
}

func TestUpdateTransactionStaleVersionConflicts(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	tx := newTransaction(uuid.New(), 100_00, domain.TxPendingSubmission)
	require.NoError(t, store.CreateTransaction(ctx, tx))

	// Two readers load version 1.
	a, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	b, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)

	a.Status = domain.TxSubmitted
	require.NoError(t, store.UpdateTransaction(ctx, a, a.Version))

	b.Status = domain.TxFailed
	err = store.UpdateTransaction(ctx, b, b.Version)
	assert.ErrorIs(t, err, domain.ErrConflict)

	// The first writer's state survived.
	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, got.Status)
}

func TestGetTransactionNotFound(t *testing.T) {
	store := NewMemory()
	_, err := store.GetTransaction(context.Background(), uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetReturnsClone(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	tx := newTransaction(uuid.New(), 100_00, domain.TxPendingSubmission)
	tx.AppendTimeline("transaction.created", "customer", "")
	require.NoError(t, store.CreateTransaction(ctx, tx))

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	got.Status = domain.TxFailed
	got.Timeline[0].Event = "mutated"

	fresh, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxPendingSubmission, fresh.Status)
	assert.Equal(t, "transaction.created", fresh.Timeline[0].Event)
}

func TestSubmissionVersioning(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	sub := &domain.CardSubmission{
		ID:            uuid.New(),
		TransactionID: uuid.New(),
		Status:        domain.SubSubmitted,
		SealedCard:    []byte("ciphertext"),
	}
	require.NoError(t, store.CreateSubmission(ctx, sub))

	got, err := store.GetSubmissionByTransaction(ctx, sub.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, sub.ID, got.ID)

	got.Status = domain.SubAwaitingSMS
	require.NoError(t, store.UpdateSubmission(ctx, got, 1))

	stale := &domain.CardSubmission{ID: sub.ID, Status: domain.SubRejected}
	assert.ErrorIs(t, store.UpdateSubmission(ctx, stale, 1), domain.ErrConflict)
}

func TestReserveWithdrawalChecksAvailable(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	merchant := uuid.New()

	settled := newTransaction(merchant, 100_00, domain.TxProcessed)
	require.NoError(t, store.CreateTransaction(ctx, settled))

	wd := &domain.Withdrawal{
		ID:         uuid.New(),
		MerchantID: merchant,
		Amount:     domain.NewMoney(60_00, domain.USD),
		Status:     domain.WdInitiated,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, store.ReserveWithdrawal(ctx, wd))

	// 40 remains; another 60 must bounce.
	second := &domain.Withdrawal{
		ID:         uuid.New(),
		MerchantID: merchant,
		Amount:     domain.NewMoney(60_00, domain.USD),
		Status:     domain.WdInitiated,
		CreatedAt:  time.Now().UTC(),
	}
	assert.ErrorIs(t, store.ReserveWithdrawal(ctx, second), domain.ErrInsufficientBalance)
}

func TestReserveWithdrawalIgnoresPendingFunds(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	merchant := uuid.New()

	pending := newTransaction(merchant, 500_00, domain.TxAwaitingExchange)
	require.NoError(t, store.CreateTransaction(ctx, pending))

	wd := &domain.Withdrawal{
		ID:         uuid.New(),
		MerchantID: merchant,
		Amount:     domain.NewMoney(1_00, domain.USD),
		Status:     domain.WdInitiated,
	}
	assert.ErrorIs(t, store.ReserveWithdrawal(ctx, wd), domain.ErrInsufficientBalance)
}

func TestConcurrentReservationsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	merchant := uuid.New()

	settled := newTransaction(merchant, 50_00, domain.TxProcessed)
	require.NoError(t, store.CreateTransaction(ctx, settled))

	const attempts = 10
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.ReserveWithdrawal(ctx, &domain.Withdrawal{
				ID:         uuid.New(),
				MerchantID: merchant,
				Amount:     domain.NewMoney(40_00, domain.USD),
				Status:     domain.WdInitiated,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one of the concurrent 40.00 reservations may win")
}

func TestListTransactionsFiltersAndSorts(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	merchant := uuid.New()

	older := newTransaction(merchant, 1_00, domain.TxProcessed)
	older.CreatedAt = time.Now().UTC().Add(-time.Hour)
	newer := newTransaction(merchant, 2_00, domain.TxProcessed)
	other := newTransaction(uuid.New(), 3_00, domain.TxProcessed)

	require.NoError(t, store.CreateTransaction(ctx, newer))
	require.NoError(t, store.CreateTransaction(ctx, older))
	require.NoError(t, store.CreateTransaction(ctx, other))

	got, err := store.ListTransactions(ctx, merchant, domain.USD)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, older.ID, got[0].ID)
	assert.Equal(t, newer.ID, got[1].ID)
}

func TestListTransactionsInStatus(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	merchant := uuid.New()

	a := newTransaction(merchant, 1_00, domain.TxAwaitingExchange)
	b := newTransaction(merchant, 2_00, domain.TxSubmitted)
	c := newTransaction(merchant, 3_00, domain.TxProcessed)
	for _, tx := range []*domain.Transaction{a, b, c} {
		require.NoError(t, store.CreateTransaction(ctx, tx))
	}

	got, err := store.ListTransactionsInStatus(ctx, domain.TxAwaitingExchange, domain.TxSubmitted)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSettlements(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	merchant := uuid.New()

	s := &domain.Settlement{
		ID:             uuid.New(),
		MerchantID:     merchant,
		Amount:         domain.NewMoney(90_00, domain.USD),
		TransactionIDs: []uuid.UUID{uuid.New()},
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.CreateSettlement(ctx, s))

	got, err := store.ListSettlements(ctx, merchant)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(90_00), got[0].Amount.Amount)
}
