// Package risk scores inbound transactions. The score and flags attach to
// the transaction exactly once, at submission; they are never recomputed so
// the audit trail stays stable.
package risk

import (
	"context"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
)

// Signals carries the request-level inputs the scorer sees alongside the
// transaction itself.
type Signals struct {
	IPAddress string
	UserAgent string
	// PriorAttempts is how many transactions this merchant saw from the
	// same IP in the recent window.
	PriorAttempts int
}

// Scorer turns a transaction plus signals into a 0-100 score and a set of
// flags. It is a pure function of its inputs; unavailability must surface
// as domain.ErrScoringUnavailable so the caller can fail closed.
type Scorer interface {
	Score(ctx context.Context, tx *domain.Transaction, sig Signals) (int, []string, error)
}

// Heuristic is the default scorer: fixed amount bands plus simple velocity
// and hygiene flags. Deterministic so the same submission always scores the
// same.
type Heuristic struct{}

func (Heuristic) Score(_ context.Context, tx *domain.Transaction, sig Signals) (int, []string, error) {
	score := 0
	var flags []string

	switch amt := tx.Amount.Amount; {
	case amt >= 5_000_00:
		score += 45
	case amt >= 1_000_00:
		score += 25
	case amt >= 250_00:
		score += 10
	}

	if sig.PriorAttempts >= 5 {
		score += 30
		flags = append(flags, "velocity")
	} else if sig.PriorAttempts >= 3 {
		score += 15
	}

	if tx.Method == domain.MethodCard && sig.UserAgent == "" {
		score += 10
		flags = append(flags, "missing_user_agent")
	}
	if sig.IPAddress == "" {
		flags = append(flags, "missing_ip")
	}

	if score > 100 {
		score = 100
	}
	return score, flags, nil
}
