package courierwebhook

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/packfinderz-fulfillment/pkg/enums"
	"github.com/angelmondragon/packfinderz-fulfillment/pkg/redis"
)

const dedupScope = "courier-webhook"

// DedupGuard drops byte-identical redeliveries of a courier payload.
type DedupGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewDedupGuard(store redis.IdempotencyStore, ttl time.Duration) (*DedupGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be positive")
	}
	return &DedupGuard{store: store, ttl: ttl}, nil
}

// CheckAndMark claims the payload hash for provider. It reports true when the
// payload was already claimed.
func (g *DedupGuard) CheckAndMark(ctx context.Context, provider enums.LogisticsProvider, payloadHash string) (bool, error) {
	if payloadHash == "" {
		return false, errors.New("payload hash is required")
	}
	set, err := g.store.SetNX(ctx, g.key(provider, payloadHash), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set dedup key: %w", err)
	}
	return !set, nil
}

// Release frees the claim so a redelivery or replay is processed again.
func (g *DedupGuard) Release(ctx context.Context, provider enums.LogisticsProvider, payloadHash string) error {
	if payloadHash == "" {
		return errors.New("payload hash is required")
	}
	return g.store.Del(ctx, g.key(provider, payloadHash))
}

func (g *DedupGuard) key(provider enums.LogisticsProvider, payloadHash string) string {
	return g.store.IdempotencyKey(dedupScope, string(provider)+":"+payloadHash)
}
