package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"labourpanel/internal/domain/labour"
)

const snapshotKeyPrefix = "labourpanel:snapshot:"

type Options struct {
	Addr     string
	Password string
	DB       int
}

// Connect returns a pinged redis client.
func Connect(ctx context.Context, opts Options) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// SnapshotCache stores labour snapshots in redis so a new tab or a
// restarted panel can paint before the backend answers.
type SnapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSnapshotCache(client *redis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

// ScopeKey hashes a credential-derived scope so tokens never appear in
// redis keys.
func ScopeKey(scope string) string {
	sum := sha256.Sum256([]byte(scope))
	return hex.EncodeToString(sum[:])[:32]
}

func (c *SnapshotCache) Put(ctx context.Context, key string, snap labour.Snapshot) error {
	snap.Loading = false
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, snapshotKeyPrefix+key, data, c.ttl).Err()
}

func (c *SnapshotCache) Get(ctx context.Context, key string) (labour.Snapshot, bool, error) {
	data, err := c.client.Get(ctx, snapshotKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return labour.Snapshot{}, false, nil
	}
	if err != nil {
		return labour.Snapshot{}, false, err
	}
	var snap labour.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return labour.Snapshot{}, false, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return snap, true, nil
}

func (c *SnapshotCache) Delete(ctx context.Context, key string) error {
	return c.client.Del(ctx, snapshotKeyPrefix+key).Err()
}

func (c *SnapshotCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
