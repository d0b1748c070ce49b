package domain

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionStatus is the step-up verification state for a card payment.
type SubmissionStatus string

const (
	SubSubmitted          SubmissionStatus = "SUBMITTED"
	SubAwaitingSMS        SubmissionStatus = "AWAITING_3D_SMS"
	SubAwaitingPush       SubmissionStatus = "AWAITING_3D_PUSH"
	SubVerificationDone   SubmissionStatus = "VERIFICATION_COMPLETED"
	SubProcessed          SubmissionStatus = "PROCESSED"
	SubRejected           SubmissionStatus = "REJECTED"
	SubFailed             SubmissionStatus = "FAILED"
	SubInsufficientFunds  SubmissionStatus = "INSUFFICIENT_FUNDS"
)

func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case SubProcessed, SubRejected, SubFailed, SubInsufficientFunds:
		return true
	}
	return false
}

// Awaiting reports whether the submission sits in a step-up challenge state.
func (s SubmissionStatus) Awaiting() bool {
	return s == SubAwaitingSMS || s == SubAwaitingPush
}

type VerificationType string

const (
	VerificationNone VerificationType = ""
	VerificationSMS  VerificationType = "SMS"
	VerificationPush VerificationType = "PUSH"
)

// CardSubmission is one step-up verification attempt, tied 1:1 to a card
// transaction. Card data lives only inside SealedCard, encrypted before the
// record ever reaches the store; the core never branches on plaintext card
// data and never logs it.
type CardSubmission struct {
	ID             uuid.UUID        `json:"id"`
	TransactionID  uuid.UUID        `json:"transaction_id"`
	CardholderName string           `json:"cardholder_name"`
	CardBrand      CardType         `json:"card_brand"`
	SealedCard     []byte           `json:"-"`
	Status         SubmissionStatus `json:"status"`

	VerificationType     VerificationType `json:"verification_type,omitempty"`
	VerificationCode     string           `json:"-"`
	CodeConsumed         bool             `json:"-"`
	VerificationApproved *bool            `json:"verification_approved,omitempty"`
	MismatchCount        int              `json:"-"`

	SMSResendCount       int        `json:"sms_resend_count"`
	SMSResendRequestedAt *time.Time `json:"sms_resend_requested_at,omitempty"`

	IPAddress string `json:"ip_address,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Version uint64 `json:"version"`
}

// ChallengeStatus maps a verification type to the awaiting state it drives.
func (v VerificationType) ChallengeStatus() SubmissionStatus {
	if v == VerificationPush {
		return SubAwaitingPush
	}
	return SubAwaitingSMS
}
