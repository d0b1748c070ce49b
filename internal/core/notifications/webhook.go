package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Queue is how the engines hand events to the notification collaborator
// (SMS/push and merchant webhooks). Delivery transport is out of scope for
// the core; production enqueues to the webhook_jobs table and the worker
// drains it.
type Queue interface {
	Enqueue(ctx context.Context, event string, payload map[string]interface{}) error
}

// Discard drops every event. Used when no collaborator is wired.
type Discard struct{}

func (Discard) Enqueue(context.Context, string, map[string]interface{}) error { return nil }

// SendWebhook sends the JSON payload to the merchant's URL, signing the body
// with the shared secret so the merchant can verify origin.
func SendWebhook(url string, payload interface{}, secret string) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(jsonData)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "PSP-Webhook/1.0")
	req.Header.Set("X-Webhook-Signature", hex.EncodeToString(mac.Sum(nil)))

	// Send with timeout (don't let slow merchants block us!)
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	return fmt.Errorf("merchant server returned error: %d", resp.StatusCode)
}
