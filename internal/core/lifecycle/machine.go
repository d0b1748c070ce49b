// Package lifecycle owns the payment status graph from submission through
// step-up verification to the settled/failed terminals. It orchestrates the
// risk scorer and the verification engine; balance effects live in the
// balance package.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/ledger"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/notifications"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/risk"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/verification"
)

type Config struct {
	// HighRiskThreshold routes transactions scoring above it (or carrying
	// any flag) to manual review.
	HighRiskThreshold int
}

// ReviewQueue is the manual-review collaborator. Enqueued transactions wait
// for an operator decision; the queue itself is external to the core.
type ReviewQueue interface {
	Enqueue(ctx context.Context, tx *domain.Transaction, reason string) error
}

type Machine struct {
	store    ledger.Store
	scorer   risk.Scorer
	verifier *verification.Engine
	reviews  ReviewQueue
	events   notifications.Queue
	cfg      Config
}

func NewMachine(store ledger.Store, scorer risk.Scorer, verifier *verification.Engine, reviews ReviewQueue, events notifications.Queue, cfg Config) *Machine {
	if events == nil {
		events = notifications.Discard{}
	}
	return &Machine{store: store, scorer: scorer, verifier: verifier, reviews: reviews, events: events, cfg: cfg}
}

// SubmitParams is one inbound payment submission.
type SubmitParams struct {
	MerchantID       uuid.UUID
	PaymentRequestID *uuid.UUID
	Amount           domain.Money
	Method           domain.PaymentMethod

	// Card fields, only for MethodCard. SealedCard crossed the
	// encryption boundary before reaching the machine.
	CardholderName string
	CardBrand      domain.CardType
	SealedCard     []byte

	IPAddress string
	UserAgent string
}

// SubmitTransaction creates the transaction, scores it exactly once, and
// for card payments opens the 1:1 step-up submission. The risk score is
// attached immutably; it is never recomputed later.
func (m *Machine) SubmitTransaction(ctx context.Context, p SubmitParams) (*domain.Transaction, *domain.CardSubmission, error) {
	if p.Amount.Amount <= 0 {
		return nil, nil, fmt.Errorf("amount must be positive, got %d", p.Amount.Amount)
	}

	now := time.Now().UTC()
	tx := &domain.Transaction{
		ID:               uuid.New(),
		PaymentRequestID: p.PaymentRequestID,
		MerchantID:       p.MerchantID,
		Amount:           p.Amount,
		Method:           p.Method,
		Status:           domain.TxPendingSubmission,
		Confirmation:     domain.ConfirmationPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	tx.AppendTimeline("transaction.created", "customer", "")
	if err := m.store.CreateTransaction(ctx, tx); err != nil {
		return nil, nil, err
	}

	// Score on entry to SUBMITTED. Scorer failure is fail-closed: the
	// transaction is held for manual review, never auto-approved.
	score, flags, err := m.scorer.Score(ctx, tx, risk.Signals{IPAddress: p.IPAddress, UserAgent: p.UserAgent})
	reviewReason := ""
	if err != nil {
		score, flags = 0, nil
		reviewReason = "risk scoring unavailable"
		slog.Error("Risk scoring unavailable, holding for review", "transaction_id", tx.ID, "error", err)
	} else if score > m.cfg.HighRiskThreshold {
		reviewReason = fmt.Sprintf("risk score %d above threshold", score)
	} else if len(flags) > 0 {
		reviewReason = fmt.Sprintf("risk flags: %v", flags)
	}

	tx.RiskScore = score
	tx.RiskFlags = flags
	tx.Status = domain.TxSubmitted
	tx.AppendTimeline("transaction.submitted", "system", fmt.Sprintf("risk score %d", score))
	if reviewReason != "" {
		tx.Review = domain.ReviewPending
		tx.AppendTimeline("review.queued", "system", reviewReason)
	}
	if err := m.store.UpdateTransaction(ctx, tx, tx.Version); err != nil {
		return nil, nil, err
	}

	if tx.Review == domain.ReviewPending && m.reviews != nil {
		if err := m.reviews.Enqueue(ctx, tx, reviewReason); err != nil {
			slog.Error("Failed to enqueue manual review", "transaction_id", tx.ID, "error", err)
		}
	}

	var sub *domain.CardSubmission
	if p.Method == domain.MethodCard {
		sub = &domain.CardSubmission{
			ID:             uuid.New(),
			TransactionID:  tx.ID,
			CardholderName: p.CardholderName,
			CardBrand:      p.CardBrand,
			SealedCard:     p.SealedCard,
			Status:         domain.SubSubmitted,
			IPAddress:      p.IPAddress,
			UserAgent:      p.UserAgent,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := m.store.CreateSubmission(ctx, sub); err != nil {
			return nil, nil, err
		}
	}

	slog.Info("Transaction submitted", "transaction_id", tx.ID, "merchant_id", tx.MerchantID,
		"method", tx.Method, "risk_score", score, "held_for_review", tx.Review == domain.ReviewPending)
	return tx, sub, nil
}

// transition validates the move on the status graph, appends the timeline
// entry and writes under the version the caller read. Transitions from the
// wrong source state are rejected, never silently ignored.
func (m *Machine) transition(ctx context.Context, tx *domain.Transaction, to domain.TransactionStatus, event, actor, notes string) error {
	if !domain.CanTransition(tx.Status, to) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidState, tx.Status, to)
	}
	tx.Status = to
	tx.AppendTimeline(event, actor, notes)
	return m.store.UpdateTransaction(ctx, tx, tx.Version)
}

// IssueVerificationChallenge starts the step-up for a card transaction and
// mirrors the awaiting state onto the transaction. Replays are no-ops.
func (m *Machine) IssueVerificationChallenge(ctx context.Context, submissionID uuid.UUID, typ domain.VerificationType, actor string) (*domain.CardSubmission, error) {
	sub, err := m.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	tx, err := m.store.GetTransaction(ctx, sub.TransactionID)
	if err != nil {
		return nil, err
	}
	if tx.Review == domain.ReviewPending {
		// Held transactions do not progress; the operator decision is
		// the only way out.
		return nil, domain.ErrInvalidState
	}

	sub, err = m.verifier.IssueChallenge(ctx, submissionID, typ)
	if err != nil {
		return nil, err
	}

	target := domain.TxAwaiting3DSMS
	if typ == domain.VerificationPush {
		target = domain.TxAwaiting3DPush
	}
	if tx.Status != target {
		if err := m.transition(ctx, tx, target, "verification.challenge", actor, string(typ)); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// RequestResend forwards to the verification engine; the transaction state
// does not change on resend.
func (m *Machine) RequestResend(ctx context.Context, submissionID uuid.UUID) (*domain.CardSubmission, error) {
	return m.verifier.RequestResend(ctx, submissionID)
}

// SubmitVerificationCode applies a customer code entry and finalizes the
// transaction when the verification completes. Mismatches are recorded on
// the transaction timeline for audit.
func (m *Machine) SubmitVerificationCode(ctx context.Context, submissionID uuid.UUID, code string) (*domain.CardSubmission, error) {
	sub, err := m.verifier.SubmitCode(ctx, submissionID, code)
	if errors.Is(err, domain.ErrVerificationMismatch) {
		m.recordMismatch(ctx, sub)
		if sub.Status == domain.SubRejected {
			if ferr := m.finalizeVerification(ctx, sub, false, "customer"); ferr != nil {
				return sub, ferr
			}
		}
		return sub, err
	}
	if err != nil {
		return nil, err
	}
	if sub.Status == domain.SubVerificationDone && sub.VerificationApproved != nil {
		if err := m.finalizeVerification(ctx, sub, *sub.VerificationApproved, "customer"); err != nil {
			return sub, err
		}
	}
	return sub, nil
}

// OperatorVerificationDecision applies the operator path: issuing the
// active code, or deciding the verification outright.
func (m *Machine) OperatorVerificationDecision(ctx context.Context, submissionID uuid.UUID, approved *bool, code, actor string) (*domain.CardSubmission, error) {
	sub, err := m.verifier.OperatorDecision(ctx, submissionID, approved, code)
	if err != nil {
		return nil, err
	}
	if approved != nil && sub.Status == domain.SubVerificationDone {
		if err := m.finalizeVerification(ctx, sub, *approved, actor); err != nil {
			return sub, err
		}
	}
	return sub, nil
}

// finalizeVerification advances the transaction once the verification engine
// reports a result: approved moves VERIFICATION_COMPLETED then onward to
// PROCESSED_AWAITING_EXCHANGE automatically; rejected terminates.
func (m *Machine) finalizeVerification(ctx context.Context, sub *domain.CardSubmission, approved bool, actor string) error {
	tx, err := m.store.GetTransaction(ctx, sub.TransactionID)
	if err != nil {
		return err
	}
	if tx.Status.IsTerminal() || tx.Status == domain.TxAwaitingExchange {
		return nil // already finalized; replay is a no-op
	}

	if !approved {
		return m.transition(ctx, tx, domain.TxRejected, "verification.rejected", actor, "")
	}
	if tx.Status.Awaiting3D() {
		if err := m.transition(ctx, tx, domain.TxVerificationDone, "verification.completed", actor, ""); err != nil {
			return err
		}
	}
	if tx.Status == domain.TxVerificationDone {
		if err := m.transition(ctx, tx, domain.TxAwaitingExchange, "transaction.pending_settlement", "system", ""); err != nil {
			return err
		}
		m.emit(ctx, "transaction.pending_settlement", tx)
	}
	return nil
}

// recordMismatch appends the failed attempt to the transaction timeline.
// Audit only; best-effort under concurrent writers.
func (m *Machine) recordMismatch(ctx context.Context, sub *domain.CardSubmission) {
	if sub == nil {
		return
	}
	tx, err := m.store.GetTransaction(ctx, sub.TransactionID)
	if err != nil {
		return
	}
	tx.AppendTimeline("verification.mismatch", "customer", fmt.Sprintf("attempt %d", sub.MismatchCount))
	if err := m.store.UpdateTransaction(ctx, tx, tx.Version); err != nil {
		slog.Warn("Could not record mismatch on timeline", "transaction_id", tx.ID, "error", err)
	}
}

// OperatorReviewDecision resolves a transaction held in the manual-review
// branch. Approval releases it to continue; rejection terminates it. Always
// recorded with actor and notes.
func (m *Machine) OperatorReviewDecision(ctx context.Context, transactionID uuid.UUID, approve bool, notes, actor string) (*domain.Transaction, error) {
	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Review != domain.ReviewPending {
		return nil, domain.ErrInvalidState
	}

	if !approve {
		tx.Review = domain.ReviewNone
		if err := m.transition(ctx, tx, domain.TxRejected, "review.rejected", actor, notes); err != nil {
			return nil, err
		}
		m.emit(ctx, "transaction.rejected", tx)
		return tx, nil
	}

	tx.Review = domain.ReviewApproved
	tx.AppendTimeline("review.approved", actor, notes)
	if err := m.store.UpdateTransaction(ctx, tx, tx.Version); err != nil {
		return nil, err
	}
	return tx, nil
}

// Fail moves any non-terminal transaction to FAILED. Used by operators and
// by the expiry sweeper for abandoned submissions.
func (m *Machine) Fail(ctx context.Context, transactionID uuid.UUID, reason, actor string) (*domain.Transaction, error) {
	return m.Terminate(ctx, transactionID, domain.TxFailed, reason, actor)
}

// Terminate applies an operator-chosen failure terminal: FAILED or
// INSUFFICIENT_FUNDS. Any other target is rejected. A merchant confirmation
// still pending at that point is recorded as failed.
func (m *Machine) Terminate(ctx context.Context, transactionID uuid.UUID, status domain.TransactionStatus, reason, actor string) (*domain.Transaction, error) {
	var event string
	var subStatus domain.SubmissionStatus
	switch status {
	case domain.TxFailed:
		event = "transaction.failed"
		subStatus = domain.SubFailed
	case domain.TxInsufficientFunds:
		event = "transaction.insufficient_funds"
		subStatus = domain.SubInsufficientFunds
	default:
		return nil, fmt.Errorf("%w: %s is not a failure terminal", domain.ErrInvalidState, status)
	}

	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Confirmation == domain.ConfirmationPending {
		tx.Confirmation = domain.ConfirmationFailed
	}
	if err := m.transition(ctx, tx, status, event, actor, reason); err != nil {
		return nil, err
	}

	// Close the open step-up submission alongside, if any.
	if tx.Method == domain.MethodCard {
		if sub, err := m.store.GetSubmissionByTransaction(ctx, tx.ID); err == nil && !sub.Status.IsTerminal() {
			sub.Status = subStatus
			if err := m.store.UpdateSubmission(ctx, sub, sub.Version); err != nil {
				slog.Warn("Could not fail open submission", "submission_id", sub.ID, "error", err)
			}
		}
	}

	m.emit(ctx, event, tx)
	return tx, nil
}

// ExpireUnconfirmed fails a bank wire whose announced funds never arrived
// inside the inactivity window, recording the merchant confirmation as
// NOT_RECEIVED. Wires held for manual review are left to the reviewer.
func (m *Machine) ExpireUnconfirmed(ctx context.Context, transactionID uuid.UUID, actor string) (*domain.Transaction, error) {
	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Method != domain.MethodBankWire || tx.Status != domain.TxSubmitted || tx.Review == domain.ReviewPending {
		return nil, domain.ErrInvalidState
	}

	tx.Confirmation = domain.ConfirmationNotReceived
	if err := m.transition(ctx, tx, domain.TxFailed, "transaction.not_received", actor, "funds never received"); err != nil {
		return nil, err
	}
	m.emit(ctx, "transaction.not_received", tx)
	return tx, nil
}

// Refund records a full or partial refund against a settled transaction.
// The refunded amount reduces the merchant's settled fold; the status stays
// PROCESSED (terminal states are permanent).
func (m *Machine) Refund(ctx context.Context, transactionID uuid.UUID, amount domain.Money, actor string) (*domain.Transaction, error) {
	tx, err := m.store.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if tx.Status != domain.TxProcessed {
		return nil, domain.ErrInvalidState
	}
	if amount.Currency != tx.Amount.Currency {
		return nil, fmt.Errorf("currency mismatch: refund %s against %s transaction", amount.Currency, tx.Amount.Currency)
	}
	if amount.Amount <= 0 || tx.RefundedAmount+amount.Amount > tx.Amount.Amount {
		return nil, fmt.Errorf("refund of %s exceeds refundable amount", amount)
	}

	now := time.Now().UTC()
	tx.RefundedAmount += amount.Amount
	tx.RefundedAt = &now
	tx.AppendTimeline("transaction.refunded", actor, amount.String())
	if err := m.store.UpdateTransaction(ctx, tx, tx.Version); err != nil {
		return nil, err
	}
	m.emit(ctx, "transaction.refunded", tx)
	return tx, nil
}

func (m *Machine) emit(ctx context.Context, event string, tx *domain.Transaction) {
	payload := map[string]interface{}{
		"transaction_id": tx.ID.String(),
		"merchant_id":    tx.MerchantID.String(),
		"status":         string(tx.Status),
		"amount":         tx.Amount.Amount,
		"currency":       string(tx.Amount.Currency),
		"timestamp":      time.Now().UTC(),
	}
	if err := m.events.Enqueue(ctx, event, payload); err != nil {
		slog.Error("Failed to enqueue transaction event", "event", event, "error", err)
	}
}
