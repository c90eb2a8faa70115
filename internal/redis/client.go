package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mossy-p/signal-relay/config"
	"github.com/redis/go-redis/v9"
)

const peersTTL = 24 * time.Hour

// Presence mirrors room membership into Redis sets so other instances and
// operators can see who is connected where.
type Presence struct {
	client *redis.Client
}

// Connect initializes the Redis client and verifies connectivity
func Connect(ctx context.Context, cfg config.RedisConfig, logger *slog.Logger) (*Presence, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("redis.connected", "addr", client.Options().Addr, "db", cfg.DB)
	return NewPresence(client), nil
}

// NewPresence wraps an existing client
func NewPresence(client *redis.Client) *Presence {
	return &Presence{client: client}
}

// Join records peerID as a member of roomID
func (p *Presence) Join(ctx context.Context, roomID, peerID string) error {
	key := peersKey(roomID)
	pipe := p.client.TxPipeline()
	pipe.SAdd(ctx, key, peerID)
	pipe.Expire(ctx, key, peersTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("presence join %s: %w", roomID, err)
	}
	return nil
}

// Leave forgets peerID in roomID
func (p *Presence) Leave(ctx context.Context, roomID, peerID string) error {
	if err := p.client.SRem(ctx, peersKey(roomID), peerID).Err(); err != nil {
		return fmt.Errorf("presence leave %s: %w", roomID, err)
	}
	return nil
}

// Count returns the number of peers in roomID across all instances
func (p *Presence) Count(ctx context.Context, roomID string) (int64, error) {
	n, err := p.client.SCard(ctx, peersKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("presence count %s: %w", roomID, err)
	}
	return n, nil
}

// Close closes the Redis connection
func (p *Presence) Close() error {
	return p.client.Close()
}

func peersKey(roomID string) string {
	return "room:" + roomID + ":peers"
}
