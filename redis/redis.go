// Package redis persists read markers in Redis, one hash per user
// keyed by conversation id.
package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis implements engine.MarkerStore on a Redis server.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings it to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &Redis{
		cli: cli,
	}, nil
}

const markerPrefix = "readmarkers"

func key(userID string) string {
	return fmt.Sprintf("%s:%s", markerPrefix, userID)
}

// Load returns every read marker stored for the user. Marker values
// are unix nanoseconds.
func (r *Redis) Load(ctx context.Context, userID string) (map[string]time.Time, error) {
	vals, err := r.cli.HGetAll(ctx, key(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall: %w", err)
	}
	out := make(map[string]time.Time, len(vals))
	for conversationID, v := range vals {
		ns, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse marker for %s: %w", conversationID, err)
		}
		out[conversationID] = time.Unix(0, ns).UTC()
	}
	return out, nil
}

// Save stores one conversation's read marker.
func (r *Redis) Save(ctx context.Context, userID, conversationID string, readAt time.Time) error {
	if err := r.cli.HSet(ctx, key(userID), conversationID, readAt.UnixNano()).Err(); err != nil {
		return fmt.Errorf("hset: %w", err)
	}
	return nil
}

// Delete drops one conversation's read marker.
func (r *Redis) Delete(ctx context.Context, userID, conversationID string) error {
	if err := r.cli.HDel(ctx, key(userID), conversationID).Err(); err != nil {
		return fmt.Errorf("hdel: %w", err)
	}
	return nil
}
