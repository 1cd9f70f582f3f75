package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MuseFM/core/player"

	"github.com/go-redis/redis/v8"
)

// PlayerStateKey builds the Redis key for a client's playback snapshot.
func PlayerStateKey(clientID string) string {
	return fmt.Sprintf("player:state:%s", clientID)
}

// PlayerStateCache persists playback snapshots in Redis. Implements
// player.SnapshotStore.
type PlayerStateCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPlayerStateCache creates a snapshot store with the given key TTL.
func NewPlayerStateCache(client *redis.Client, ttl time.Duration) *PlayerStateCache {
	return &PlayerStateCache{client: client, ttl: ttl}
}

// Save writes the snapshot, refreshing the TTL.
func (c *PlayerStateCache) Save(ctx context.Context, clientID string, snap player.PlaybackSnapshot) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal playback snapshot: %w", err)
	}

	if err := c.client.Set(ctx, PlayerStateKey(clientID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save playback snapshot: %w", err)
	}
	return nil
}

// Load returns the stored snapshot, or nil, nil when the key is absent or
// holds bytes that no longer parse.
func (c *PlayerStateCache) Load(ctx context.Context, clientID string) (*player.PlaybackSnapshot, error) {
	if c.client == nil {
		return nil, fmt.Errorf("Redis client not initialized")
	}

	data, err := c.client.Get(ctx, PlayerStateKey(clientID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load playback snapshot: %w", err)
	}

	var snap player.PlaybackSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// Corrupt state is as good as no state.
		return nil, nil
	}
	return &snap, nil
}

// Delete removes the snapshot. Deleting a missing key is not an error.
func (c *PlayerStateCache) Delete(ctx context.Context, clientID string) error {
	if c.client == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := c.client.Del(ctx, PlayerStateKey(clientID)).Err(); err != nil {
		return fmt.Errorf("failed to delete playback snapshot: %w", err)
	}
	return nil
}
