// Package verification drives the step-up authentication state machine for
// card submissions: challenge issuance, customer code entry, operator
// decisions and the SMS resend sub-loop.
//
// Every operation is idempotent keyed on (submission, target status):
// replaying a completed transition returns the current state instead of
// erroring, because the customer and operator UIs retry network calls.
package verification

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/ledger"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/notifications"
)

type Config struct {
	// SMSResendCap bounds the resend sub-loop; the cap exists to bound
	// operator cost and abuse, and is configuration, not state-machine
	// logic.
	SMSResendCap int
	// CodeMismatchCap is how many consecutive wrong codes reject the
	// submission.
	CodeMismatchCap int
}

// Cooldown throttles resend requests between the capped attempts. Optional;
// production wires the redis limiter.
type Cooldown interface {
	Allow(ctx context.Context, submissionID uuid.UUID) error
}

type Engine struct {
	store    ledger.Store
	events   notifications.Queue
	cooldown Cooldown
	cfg      Config
}

func NewEngine(store ledger.Store, events notifications.Queue, cooldown Cooldown, cfg Config) *Engine {
	if events == nil {
		events = notifications.Discard{}
	}
	if cfg.SMSResendCap <= 0 {
		cfg.SMSResendCap = 3
	}
	if cfg.CodeMismatchCap <= 0 {
		cfg.CodeMismatchCap = 3
	}
	return &Engine{store: store, events: events, cooldown: cooldown, cfg: cfg}
}

// IssueChallenge moves SUBMITTED -> AWAITING_3D_SMS/AWAITING_3D_PUSH and
// emits a challenge event for the notification collaborator.
func (e *Engine) IssueChallenge(ctx context.Context, submissionID uuid.UUID, typ domain.VerificationType) (*domain.CardSubmission, error) {
	sub, err := e.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	target := typ.ChallengeStatus()
	if sub.Status == target && sub.VerificationType == typ {
		return sub, nil // replayed transition, no-op
	}
	if sub.Status != domain.SubSubmitted {
		return nil, domain.ErrInvalidState
	}

	sub.Status = target
	sub.VerificationType = typ
	if err := e.store.UpdateSubmission(ctx, sub, sub.Version); err != nil {
		return nil, err
	}

	e.emit(ctx, "verification.challenge", sub, map[string]interface{}{
		"verification_type": string(typ),
	})
	slog.Info("Step-up challenge issued", "submission_id", sub.ID, "type", typ)
	return sub, nil
}

// RequestResend re-sends the active SMS challenge. Allowed only while
// awaiting SMS; the resend count is monotonic and capped.
func (e *Engine) RequestResend(ctx context.Context, submissionID uuid.UUID) (*domain.CardSubmission, error) {
	sub, err := e.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	if sub.Status != domain.SubAwaitingSMS {
		return nil, domain.ErrInvalidState
	}
	if sub.SMSResendCount >= e.cfg.SMSResendCap {
		return nil, domain.ErrResendLimitExceeded
	}
	if e.cooldown != nil {
		if err := e.cooldown.Allow(ctx, sub.ID); err != nil {
			return nil, err
		}
	}

	now := time.Now().UTC()
	sub.SMSResendCount++
	sub.SMSResendRequestedAt = &now
	if err := e.store.UpdateSubmission(ctx, sub, sub.Version); err != nil {
		return nil, err
	}

	e.emit(ctx, "verification.resend", sub, map[string]interface{}{
		"resend_count": sub.SMSResendCount,
	})
	return sub, nil
}

// SubmitCode compares the customer-supplied code against the single active
// code set by an operator. Match completes the verification approved;
// mismatch keeps the awaiting state and counts towards the mismatch cap,
// past which the submission is rejected. Both mismatch outcomes return
// domain.ErrVerificationMismatch; callers read the final state from the
// returned submission.
func (e *Engine) SubmitCode(ctx context.Context, submissionID uuid.UUID, code string) (*domain.CardSubmission, error) {
	sub, err := e.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	if !sub.Status.Awaiting() {
		if sub.CodeConsumed {
			return sub, nil // already decided; replay is a no-op
		}
		return nil, domain.ErrInvalidState
	}
	if sub.VerificationCode == "" {
		// No active code yet; the operator has not issued one.
		return nil, domain.ErrInvalidState
	}

	// Constant-time, case-sensitive compare; the code value must not leak
	// through timing.
	if subtle.ConstantTimeCompare([]byte(sub.VerificationCode), []byte(code)) == 1 {
		approved := true
		sub.Status = domain.SubVerificationDone
		sub.VerificationApproved = &approved
		sub.CodeConsumed = true
		if err := e.store.UpdateSubmission(ctx, sub, sub.Version); err != nil {
			return nil, err
		}
		e.emit(ctx, "verification.completed", sub, map[string]interface{}{"approved": true})
		return sub, nil
	}

	sub.MismatchCount++
	if sub.MismatchCount >= e.cfg.CodeMismatchCap {
		approved := false
		sub.Status = domain.SubRejected
		sub.VerificationApproved = &approved
		sub.CodeConsumed = true
	}
	if err := e.store.UpdateSubmission(ctx, sub, sub.Version); err != nil {
		return nil, err
	}
	if sub.Status == domain.SubRejected {
		e.emit(ctx, "verification.rejected", sub, map[string]interface{}{
			"mismatches": sub.MismatchCount,
		})
	}
	return sub, domain.ErrVerificationMismatch
}

// OperatorDecision is the human-in-the-loop path. With only a code it sets
// the single active verification code for the customer to match (SMS); with
// approved set it completes an open challenge outright. A decision before
// any challenge was issued is rejected.
func (e *Engine) OperatorDecision(ctx context.Context, submissionID uuid.UUID, approved *bool, code string) (*domain.CardSubmission, error) {
	sub, err := e.store.GetSubmission(ctx, submissionID)
	if err != nil {
		return nil, err
	}

	if approved == nil {
		if code == "" {
			return nil, fmt.Errorf("operator decision carries neither approval nor code")
		}
		// Code issuance only. Valid while the customer can still enter
		// it.
		if sub.Status != domain.SubSubmitted && !sub.Status.Awaiting() {
			return nil, domain.ErrInvalidState
		}
		if sub.CodeConsumed {
			return nil, domain.ErrInvalidState
		}
		sub.VerificationCode = code
		if err := e.store.UpdateSubmission(ctx, sub, sub.Version); err != nil {
			return nil, err
		}
		return sub, nil
	}

	if sub.Status == domain.SubVerificationDone {
		return sub, nil // replayed transition, no-op
	}
	// Deciding outright requires an open challenge; the submission mirrors
	// the transaction graph, which has no SUBMITTED -> completed edge.
	if !sub.Status.Awaiting() {
		return nil, domain.ErrInvalidState
	}

	if code != "" {
		sub.VerificationCode = code
	}
	sub.Status = domain.SubVerificationDone
	sub.VerificationApproved = approved
	sub.CodeConsumed = true
	if err := e.store.UpdateSubmission(ctx, sub, sub.Version); err != nil {
		return nil, err
	}

	e.emit(ctx, "verification.completed", sub, map[string]interface{}{"approved": *approved, "operator": true})
	return sub, nil
}

func (e *Engine) emit(ctx context.Context, event string, sub *domain.CardSubmission, extra map[string]interface{}) {
	payload := map[string]interface{}{
		"submission_id":  sub.ID.String(),
		"transaction_id": sub.TransactionID.String(),
		"status":         string(sub.Status),
		"timestamp":      time.Now().UTC(),
	}
	for k, v := range extra {
		payload[k] = v
	}
	if err := e.events.Enqueue(ctx, event, payload); err != nil {
		// Notification delivery is best-effort; the state change already
		// committed.
		slog.Error("Failed to enqueue verification event", "event", event, "error", err)
	}
}
