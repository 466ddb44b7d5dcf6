package redisx

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Dedup tracks processed event ids per consumer service. Handlers check
// Seen before doing work and Mark only after the effect is durably
// recorded, so a crash mid-handler still leads to redelivery.
type Dedup struct {
	R       *redis.Client
	Service string
}

func (d Dedup) key(eventID string) string {
	return fmt.Sprintf(KeyDedup, d.Service, eventID)
}

func (d Dedup) Seen(ctx context.Context, eventID string) (bool, error) {
	return Exists(ctx, d.R, d.key(eventID))
}

func (d Dedup) Mark(ctx context.Context, eventID string) error {
	_, err := MarkOnce(ctx, d.R, d.key(eventID), TTLDedup)
	return err
}
