package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teamkurence-png/psp-platform-sub000/internal/core/notifications"
)

// StartWebhookWorker drains the webhook_jobs table and delivers events to
// merchant endpoints with bounded retries. FOR UPDATE SKIP LOCKED lets
// several instances share the queue safely.
func StartWebhookWorker(ctx context.Context, db *pgxpool.Pool, secret string) {
	go func() {
		slog.Info("👷 Webhook worker started")
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("Webhook worker stopped")
				return
			case <-ticker.C:
				processJobs(ctx, db, secret)
			}
		}
	}()
}

func processJobs(ctx context.Context, db *pgxpool.Pool, secret string) {
	// The claim and the status write share one transaction so the row lock
	// from SKIP LOCKED spans the delivery; a second instance cannot pick up
	// the same job in between.
	tx, err := db.Begin(ctx)
	if err != nil {
		slog.Error("Worker: could not open transaction", "error", err)
		return
	}
	defer tx.Rollback(ctx)

	query := `
		SELECT id, url, payload, attempts
		FROM webhook_jobs
		WHERE status = 'PENDING' AND next_run_at <= NOW()
		ORDER BY created_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED
	`

	var id string
	var url string
	var payloadBytes []byte
	var attempts int

	if err := tx.QueryRow(ctx, query).Scan(&id, &url, &payloadBytes, &attempts); err != nil {
		return
	}

	var payload interface{}
	if err := json.Unmarshal(payloadBytes, &payload); err != nil {
		slog.Error("Worker: failed to parse payload", "error", err, "job_id", id)
		tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'FAILED' WHERE id = $1", id)
		tx.Commit(ctx)
		return
	}

	slog.Info("Worker: processing job", "url", url, "job_id", id)

	sendErr := notifications.SendWebhook(url, payload, secret)

	if sendErr != nil {
		slog.Error("Worker: webhook failed", "error", sendErr, "attempts", attempts)
		nextRun := time.Now().Add(time.Duration(attempts*10+10) * time.Second)

		if attempts >= 5 {
			tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'FAILED' WHERE id = $1", id)
			slog.Error("Worker: job marked as FAILED (max attempts reached)", "job_id", id)
		} else {
			tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'PENDING', attempts = attempts + 1, next_run_at = $2 WHERE id = $1", id, nextRun)
			slog.Info("Worker: scheduled retry", "next_run", nextRun)
		}
	} else {
		slog.Info("✅ Worker: webhook sent", "job_id", id)
		tx.Exec(ctx, "UPDATE webhook_jobs SET status = 'COMPLETED' WHERE id = $1", id)
	}

	if err := tx.Commit(ctx); err != nil {
		slog.Error("Worker: could not commit job update", "error", err, "job_id", id)
	}
}
