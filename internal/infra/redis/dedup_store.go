// File: internal/infra/redis/dedup_store.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"membership-billing/internal/domain/ports/repository"
)

var _ repository.EventDedupStore = (*DedupStore)(nil)

const (
	dedupKeyPrefix = "billing:event:"

	statusPending   = "pending"
	statusProcessed = "processed"
)

// DedupStore implements the claim/confirm/release protocol on Redis keys.
// One key per event id; the value distinguishes an in-flight claim from a
// confirmed one so a crashed handler's claim expires on its own.
type DedupStore struct {
	cli *redis.Client
}

func NewDedupStore(c *Client) *DedupStore {
	return &DedupStore{cli: c.cli}
}

func (s *DedupStore) Claim(ctx context.Context, eventID string, pending time.Duration) (bool, error) {
	ok, err := s.cli.SetNX(ctx, dedupKey(eventID), statusPending, pending).Result()
	if err != nil {
		return false, fmt.Errorf("dedup setnx: %w", err)
	}
	return ok, nil
}

func (s *DedupStore) Confirm(ctx context.Context, eventID string, window time.Duration) error {
	return s.cli.Set(ctx, dedupKey(eventID), statusProcessed, window).Err()
}

var luaReleasePending = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end`)

// Release drops a pending claim. Guarded so it never removes a key another
// handler has already confirmed.
func (s *DedupStore) Release(ctx context.Context, eventID string) error {
	_, err := luaReleasePending.Run(ctx, s.cli, []string{dedupKey(eventID)}, statusPending).Result()
	return err
}

func dedupKey(eventID string) string { return dedupKeyPrefix + eventID }
