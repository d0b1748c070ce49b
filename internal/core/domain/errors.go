package domain

import "errors"

// The error taxonomy shared by every engine. Handlers translate these to
// generic customer-facing messages; operators see them as-is.
var (
	// ErrInvalidState means a transition was attempted from the wrong
	// source state. The caller should re-read and show current state.
	ErrInvalidState = errors.New("invalid state for requested transition")

	// ErrConflict means the stored version advanced under us. The caller
	// must re-read before deciding whether to retry. Monetary operations
	// are never retried automatically.
	ErrConflict = errors.New("version conflict: record changed, re-read and retry")

	ErrInsufficientBalance = errors.New("insufficient balance")

	ErrResendLimitExceeded = errors.New("resend limit exceeded")

	// ErrVerificationMismatch is non-fatal; it increments the failure
	// counter on the submission.
	ErrVerificationMismatch = errors.New("verification code mismatch")

	// ErrScoringUnavailable routes the transaction to manual review
	// (fail-closed), it never auto-approves.
	ErrScoringUnavailable = errors.New("risk scoring unavailable")

	ErrNotFound = errors.New("record not found")
)
