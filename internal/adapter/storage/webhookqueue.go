package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WebhookQueue implements notifications.Queue on the webhook_jobs table.
// The background worker drains the table and delivers to the merchant URL;
// enqueueing here keeps engine operations non-blocking.
type WebhookQueue struct {
	db  *pgxpool.Pool
	url string
}

// NewWebhookQueue enqueues every event towards url. A real deployment would
// look the URL up per merchant; that lookup lives with the merchant CRUD,
// outside the core.
func NewWebhookQueue(db *pgxpool.Pool, url string) *WebhookQueue {
	return &WebhookQueue{db: db, url: url}
}

func (q *WebhookQueue) Enqueue(ctx context.Context, event string, payload map[string]interface{}) error {
	if q.url == "" {
		return nil
	}

	body, err := json.Marshal(map[string]interface{}{
		"event": event,
		"data":  payload,
	})
	if err != nil {
		return err
	}

	_, err = q.db.Exec(ctx,
		`INSERT INTO webhook_jobs (url, payload) VALUES ($1, $2)`,
		q.url, body)
	if err != nil {
		return fmt.Errorf("failed to queue webhook job: %w", err)
	}
	return nil
}
