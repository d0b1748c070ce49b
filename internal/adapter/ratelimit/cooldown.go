// Package ratelimit throttles SMS resend requests between the persisted,
// capped attempts tracked on the submission itself.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Cooldown enforces a minimum wait between resend requests for the same
// submission. State lives in redis so every API instance sees the same
// clock.
type Cooldown struct {
	rdb    *redis.Client
	window time.Duration
}

func NewCooldown(rdb *redis.Client, window time.Duration) *Cooldown {
	return &Cooldown{rdb: rdb, window: window}
}

// Allow returns an error while a previous resend is still cooling down.
// The first caller inside a window wins the SetNX and starts the clock.
func (c *Cooldown) Allow(ctx context.Context, submissionID uuid.UUID) error {
	key := fmt.Sprintf("resend:cooldown:%s", submissionID)

	ok, err := c.rdb.SetNX(ctx, key, "1", c.window).Result()
	if err != nil {
		// Redis being down must not block verification; the persisted
		// resend cap still bounds abuse.
		return nil
	}
	if !ok {
		ttl, _ := c.rdb.TTL(ctx, key).Result()
		return fmt.Errorf("please wait %d seconds before requesting another code", int(ttl.Seconds()))
	}
	return nil
}
