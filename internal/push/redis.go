package push

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultOfflineCap = 10000

func OfflineKey(userID string) string { return "matchchat:offline:" + userID }

// RedisNotifier keeps a rolling per-user list of missed messages that a
// delivery worker drains. The newest entry sits at the head.
type RedisNotifier struct {
	rdb redis.Cmdable
	cap int64
}

func NewRedisNotifier(rdb redis.Cmdable, capacity int64) *RedisNotifier {
	if capacity <= 0 {
		capacity = defaultOfflineCap
	}
	return &RedisNotifier{rdb: rdb, cap: capacity}
}

func (n *RedisNotifier) PushOffline(ctx context.Context, userID string, p Payload) error {
	b, err := encode(userID, p)
	if err != nil {
		return err
	}
	pipe := n.rdb.TxPipeline()
	pipe.LPush(ctx, OfflineKey(userID), b)
	pipe.LTrim(ctx, OfflineKey(userID), 0, n.cap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis offline push: %w", err)
	}
	return nil
}
