package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teamkurence-png/psp-platform-sub000/internal/adapter/storage"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/risk"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/verification"
)

type stubScorer struct {
	score int
	flags []string
	err   error
}

func (s stubScorer) Score(context.Context, *domain.Transaction, risk.Signals) (int, []string, error) {
	return s.score, s.flags, s.err
}

type recordingQueue struct {
	enqueued []uuid.UUID
	reasons  []string
}

func (q *recordingQueue) Enqueue(_ context.Context, tx *domain.Transaction, reason string) error {
	q.enqueued = append(q.enqueued, tx.ID)
	q.reasons = append(q.reasons, reason)
	return nil
}

func newMachine(t *testing.T, scorer risk.Scorer) (*Machine, *storage.Memory, *recordingQueue) {
	t.Helper()
	store := storage.NewMemory()
	verifier := verification.NewEngine(store, nil, nil, verification.Config{SMSResendCap: 3, CodeMismatchCap: 3})
	reviews := &recordingQueue{}
	machine := NewMachine(store, scorer, verifier, reviews, nil, Config{HighRiskThreshold: 70})
	return machine, store, reviews
}

func cardParams(amount int64) SubmitParams {
	return SubmitParams{
		MerchantID:     uuid.New(),
		Amount:         domain.NewMoney(amount, domain.USD),
		Method:         domain.MethodCard,
		CardholderName: "Jane Doe",
		CardBrand:      domain.Visa,
		SealedCard:     []byte("ciphertext"),
		IPAddress:      "203.0.113.7",
		UserAgent:      "test-agent",
	}
}

func TestSubmitTransactionLowRisk(t *testing.T) {
	machine, _, reviews := newMachine(t, stubScorer{score: 10})

	tx, sub, err := machine.SubmitTransaction(context.Background(), cardParams(100_00))
	require.NoError(t, err)

	assert.Equal(t, domain.TxSubmitted, tx.Status)
	assert.Equal(t, 10, tx.RiskScore)
	assert.Equal(t, domain.ReviewNone, tx.Review)
	assert.Empty(t, reviews.enqueued)

	require.NotNil(t, sub)
	assert.Equal(t, domain.SubSubmitted, sub.Status)
	assert.Equal(t, tx.ID, sub.TransactionID)
}

func TestSubmitTransactionHighRiskHeldForReview(t *testing.T) {
	machine, _, reviews := newMachine(t, stubScorer{score: 85})

	tx, _, err := machine.SubmitTransaction(context.Background(), cardParams(100_00))
	require.NoError(t, err)

	assert.Equal(t, domain.TxSubmitted, tx.Status)
	assert.Equal(t, domain.ReviewPending, tx.Review)
	require.Len(t, reviews.enqueued, 1)
	assert.Equal(t, tx.ID, reviews.enqueued[0])
}

func TestSubmitTransactionFlagsForceReview(t *testing.T) {
	machine, _, reviews := newMachine(t, stubScorer{score: 5, flags: []string{"velocity"}})

	tx, _, err := machine.SubmitTransaction(context.Background(), cardParams(100_00))
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewPending, tx.Review)
	assert.Len(t, reviews.enqueued, 1)
}

func TestSubmitTransactionScorerFailureFailsClosed(t *testing.T) {
	machine, _, reviews := newMachine(t, stubScorer{err: errors.New("scoring service down")})

	tx, _, err := machine.SubmitTransaction(context.Background(), cardParams(100_00))
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewPending, tx.Review, "an unscorable transaction must never be auto-approved")
	assert.Len(t, reviews.enqueued, 1)
}

func TestSubmitTransactionRejectsNonPositiveAmount(t *testing.T) {
	machine, _, _ := newMachine(t, stubScorer{})
	_, _, err := machine.SubmitTransaction(context.Background(), cardParams(0))
	assert.Error(t, err)
}

func TestCardHappyPathToProcessedPending(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	tx, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	_, err = machine.IssueVerificationChallenge(ctx, sub.ID, domain.VerificationSMS, "operator")
	require.NoError(t, err)
	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxAwaiting3DSMS, got.Status)

	_, err = machine.OperatorVerificationDecision(ctx, sub.ID, nil, "123456", "operator")
	require.NoError(t, err)

	subAfter, err := machine.SubmitVerificationCode(ctx, sub.ID, "123456")
	require.NoError(t, err)
	assert.Equal(t, domain.SubVerificationDone, subAfter.Status)

	got, err = store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxAwaitingExchange, got.Status)
}

func TestMismatchCapRejectsTransaction(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	tx, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)
	_, err = machine.IssueVerificationChallenge(ctx, sub.ID, domain.VerificationSMS, "operator")
	require.NoError(t, err)
	_, err = machine.OperatorVerificationDecision(ctx, sub.ID, nil, "123456", "operator")
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = machine.SubmitVerificationCode(ctx, sub.ID, "wrong")
		assert.ErrorIs(t, err, domain.ErrVerificationMismatch)
	}

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxRejected, got.Status)
}

func TestHeldTransactionCannotProgress(t *testing.T) {
	machine, _, _ := newMachine(t, stubScorer{score: 95})
	ctx := context.Background()

	_, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	_, err = machine.IssueVerificationChallenge(ctx, sub.ID, domain.VerificationSMS, "operator")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestReviewApprovalReleasesTransaction(t *testing.T) {
	machine, _, _ := newMachine(t, stubScorer{score: 95})
	ctx := context.Background()

	tx, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	reviewed, err := machine.OperatorReviewDecision(ctx, tx.ID, true, "looks fine", "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.ReviewApproved, reviewed.Review)
	assert.Equal(t, domain.TxSubmitted, reviewed.Status)

	_, err = machine.IssueVerificationChallenge(ctx, sub.ID, domain.VerificationSMS, "operator")
	assert.NoError(t, err)
}

func TestReviewRejectionTerminates(t *testing.T) {
	machine, _, _ := newMachine(t, stubScorer{score: 95})
	ctx := context.Background()

	tx, _, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	reviewed, err := machine.OperatorReviewDecision(ctx, tx.ID, false, "stolen card pattern", "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.TxRejected, reviewed.Status)

	// A decision on a transaction not under review is invalid.
	_, err = machine.OperatorReviewDecision(ctx, tx.ID, true, "", "operator")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestOperatorPushRejectionTerminatesTransaction(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	tx, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)
	_, err = machine.IssueVerificationChallenge(ctx, sub.ID, domain.VerificationPush, "operator")
	require.NoError(t, err)

	approved := false
	_, err = machine.OperatorVerificationDecision(ctx, sub.ID, &approved, "", "operator")
	require.NoError(t, err)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxRejected, got.Status)
}

func TestFailClosesOpenSubmission(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	tx, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	failed, err := machine.Fail(ctx, tx.ID, "inactivity timeout", "system")
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, failed.Status)

	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubFailed, gotSub.Status)

	// Terminal states are permanent.
	_, err = machine.Fail(ctx, tx.ID, "again", "system")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestOperatorApprovalRequiresChallenge(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	tx, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	// Approving before any challenge was issued must be refused and must
	// leave both records where they were.
	approved := true
	_, err = machine.OperatorVerificationDecision(ctx, sub.ID, &approved, "", "operator")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	gotTx, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxSubmitted, gotTx.Status)
	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubSubmitted, gotSub.Status)

	// The normal flow still works afterwards.
	_, err = machine.IssueVerificationChallenge(ctx, sub.ID, domain.VerificationPush, "operator")
	require.NoError(t, err)
	_, err = machine.OperatorVerificationDecision(ctx, sub.ID, &approved, "", "operator")
	require.NoError(t, err)

	gotTx, err = store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TxAwaitingExchange, gotTx.Status)
}

func TestTerminateInsufficientFunds(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	tx, sub, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	// Only failure terminals are accepted.
	_, err = machine.Terminate(ctx, tx.ID, domain.TxRejected, "nope", "operator")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	failed, err := machine.Terminate(ctx, tx.ID, domain.TxInsufficientFunds, "acquirer declined: insufficient funds", "operator")
	require.NoError(t, err)
	assert.Equal(t, domain.TxInsufficientFunds, failed.Status)
	assert.Equal(t, domain.ConfirmationFailed, failed.Confirmation)

	gotSub, err := store.GetSubmission(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.SubInsufficientFunds, gotSub.Status)
}

func TestExpireUnconfirmedBankWire(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	wire, _, err := machine.SubmitTransaction(ctx, SubmitParams{
		MerchantID: uuid.New(),
		Amount:     domain.NewMoney(5_000_00, domain.USD),
		Method:     domain.MethodBankWire,
	})
	require.NoError(t, err)

	expired, err := machine.ExpireUnconfirmed(ctx, wire.ID, "system")
	require.NoError(t, err)
	assert.Equal(t, domain.TxFailed, expired.Status)
	assert.Equal(t, domain.ConfirmationNotReceived, expired.Confirmation)

	got, err := store.GetTransaction(ctx, wire.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ConfirmationNotReceived, got.Confirmation)

	// Terminal now; a second expiry is refused.
	_, err = machine.ExpireUnconfirmed(ctx, wire.ID, "system")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	// Cards never take this path.
	card, _, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)
	_, err = machine.ExpireUnconfirmed(ctx, card.ID, "system")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestExpireUnconfirmedLeavesHeldWires(t *testing.T) {
	machine, _, _ := newMachine(t, stubScorer{score: 95})
	ctx := context.Background()

	wire, _, err := machine.SubmitTransaction(ctx, SubmitParams{
		MerchantID: uuid.New(),
		Amount:     domain.NewMoney(5_000_00, domain.USD),
		Method:     domain.MethodBankWire,
	})
	require.NoError(t, err)
	require.Equal(t, domain.ReviewPending, wire.Review)

	_, err = machine.ExpireUnconfirmed(ctx, wire.ID, "system")
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestRefund(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	tx, _, err := machine.SubmitTransaction(ctx, cardParams(100_00))
	require.NoError(t, err)

	// Refunds only apply to settled transactions.
	_, err = machine.Refund(ctx, tx.ID, domain.NewMoney(10_00, domain.USD), "operator")
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	got, err := store.GetTransaction(ctx, tx.ID)
	require.NoError(t, err)
	got.Status = domain.TxProcessed
	require.NoError(t, store.UpdateTransaction(ctx, got, got.Version))

	refunded, err := machine.Refund(ctx, tx.ID, domain.NewMoney(30_00, domain.USD), "operator")
	require.NoError(t, err)
	assert.Equal(t, int64(30_00), refunded.RefundedAmount)
	assert.Equal(t, domain.TxProcessed, refunded.Status)
	assert.Equal(t, int64(70_00), refunded.NetAmount())

	// Cumulative refunds cannot exceed the charge.
	_, err = machine.Refund(ctx, tx.ID, domain.NewMoney(80_00, domain.USD), "operator")
	assert.Error(t, err)

	_, err = machine.Refund(ctx, tx.ID, domain.NewMoney(10_00, domain.EUR), "operator")
	assert.Error(t, err)
}

func TestBankWireHasNoSubmission(t *testing.T) {
	machine, store, _ := newMachine(t, stubScorer{score: 10})
	ctx := context.Background()

	params := SubmitParams{
		MerchantID: uuid.New(),
		Amount:     domain.NewMoney(5_000_00, domain.USD),
		Method:     domain.MethodBankWire,
	}
	tx, sub, err := machine.SubmitTransaction(ctx, params)
	require.NoError(t, err)
	assert.Nil(t, sub)
	assert.Equal(t, domain.TxSubmitted, tx.Status)

	_, err = store.GetSubmissionByTransaction(ctx, tx.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
