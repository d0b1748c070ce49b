package worker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/storage"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/lifecycle"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/risk"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/verification"
)

type noopQueue struct{}

func (noopQueue) Enqueue(context.Context, *domain.Transaction, string) error { return nil }

func seedTransaction(t *testing.T, store *storage.Memory, method domain.PaymentMethod, status domain.TransactionStatus, age time.Duration) *domain.Transaction {
	t.Helper()
	tx := &domain.Transaction{
		ID:           uuid.New(),
		MerchantID:   uuid.New(),
		Amount:       domain.NewMoney(100_00, domain.USD),
		Method:       method,
		Status:       status,
		Confirmation: domain.ConfirmationPending,
		CreatedAt:    time.Now().Add(-age),
		UpdatedAt:    time.Now().Add(-age),
	}
	require.NoError(t, store.CreateTransaction(context.Background(), tx))
	return tx
}

func TestSweepStale(t *testing.T) {
	store := storage.NewMemory()
	verifier := verification.NewEngine(store, nil, nil, verification.Config{SMSResendCap: 3, CodeMismatchCap: 3})
	machine := lifecycle.NewMachine(store, risk.Heuristic{}, verifier, noopQueue{}, nil, lifecycle.Config{HighRiskThreshold: 70})
	ctx := context.Background()

	abandoned := seedTransaction(t, store, domain.MethodCard, domain.TxPendingSubmission, time.Hour)
	staleWire := seedTransaction(t, store, domain.MethodBankWire, domain.TxSubmitted, time.Hour)
	staleCard := seedTransaction(t, store, domain.MethodCard, domain.TxSubmitted, time.Hour)
	fresh := seedTransaction(t, store, domain.MethodCard, domain.TxAwaiting3DSMS, time.Minute)

	heldWire := &domain.Transaction{
		ID:           uuid.New(),
		MerchantID:   uuid.New(),
		Amount:       domain.NewMoney(100_00, domain.USD),
		Method:       domain.MethodBankWire,
		Status:       domain.TxSubmitted,
		Review:       domain.ReviewPending,
		Confirmation: domain.ConfirmationPending,
		CreatedAt:    time.Now().Add(-time.Hour),
		UpdatedAt:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.CreateTransaction(ctx, heldWire))

	sweepStale(ctx, store, machine, 30*time.Minute)

	got, err := store.GetTransaction(ctx, abandoned.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, got.Status)

	got, err = store.GetTransaction(ctx, staleWire.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, got.Status)
	assert.Equal(t, domain.ConfirmationNotReceived, got.Confirmation)

	// Cards sitting in SUBMITTED belong to the operator pipeline.
	got, err = store.GetTransaction(ctx, staleCard.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, got.Status)

	got, err = store.GetTransaction(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxAwaiting3DSMS, got.Status)

	// Wires held for manual review wait for the reviewer, however old.
	got, err = store.GetTransaction(ctx, heldWire.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, got.Status)
}
