package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/balance"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/domain"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/ledger"
	"github.com/teamkurence-png/psp-platform-sub000/internal/core/lifecycle"
)

// StartExpirySweeper fails transactions that sat in a pre-verification
// status longer than the inactivity window. Runs until ctx is cancelled.
func StartExpirySweeper(ctx context.Context, store ledger.Store, machine *lifecycle.Machine, window, interval time.Duration) {
	go func() {
		slog.Info("👷 Expiry sweeper started", "window", window)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Expiry sweeper stopped")
				return
			case <-ticker.C:
				sweepStale(ctx, store, machine, window)
			}
		}
	}()
}

func sweepStale(ctx context.Context, store ledger.Store, machine *lifecycle.Machine, window time.Duration) {
	txs, err := store.ListTransactionsInStatus(ctx,
		domain.TxPendingSubmission, domain.TxSubmitted, domain.TxAwaiting3DSMS, domain.TxAwaiting3DPush)
	if err != nil {
		slog.Error("Sweeper: listing stale transactions failed", "error", err)
		return
	}

	cutoff := time.Now().Add(-window)
	for _, tx := range txs {
		if tx.UpdatedAt.After(cutoff) {
			continue
		}
		var expireErr error
		switch {
		case tx.Review == domain.ReviewPending:
			continue
		case tx.Status == domain.TxSubmitted && tx.Method == domain.MethodBankWire:
			// An announced wire whose funds never showed up.
			_, expireErr = machine.ExpireUnconfirmed(ctx, tx.ID, "system")
		case tx.Status == domain.TxSubmitted:
			// Card transactions in SUBMITTED sit with an operator or in
			// review; not the sweeper's call.
			continue
		default:
			_, expireErr = machine.Fail(ctx, tx.ID, "inactivity timeout", "system")
		}
		if expireErr != nil {
			// another instance may have advanced it in the meantime
			slog.Warn("Sweeper: could not expire transaction", "transaction_id", tx.ID, "error", expireErr)
			continue
		}
		slog.Info("Sweeper: expired transaction", "transaction_id", tx.ID, "status", tx.Status)
	}
}

// StartSettlementWorker periodically settles transactions that have been
// awaiting exchange longer than the configured delay.
func StartSettlementWorker(ctx context.Context, engine *balance.Engine, interval time.Duration) {
	go func() {
		slog.Info("👷 Settlement worker started")
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Settlement worker stopped")
				return
			case <-ticker.C:
				n, err := engine.RunSettlement(ctx)
				if err != nil {
					slog.Error("Settlement run failed", "error", err)
					continue
				}
				if n > 0 {
					slog.Info("✅ Settlement run complete", "settled", n)
				}
			}
		}
	}()
}
