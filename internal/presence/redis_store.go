package presence

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineUsersKey = "chat:online_users"

// RedisStore keeps present users in a hash: field = username, value = unix millis of registration.
type RedisStore struct {
	rdb *redis.Client
	now func() time.Time
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, now: time.Now}
}

func (s *RedisStore) Register(ctx context.Context, username string) error {
	since := strconv.FormatInt(s.now().UnixMilli(), 10)
	if err := s.rdb.HSetNX(ctx, onlineUsersKey, username, since).Err(); err != nil {
		return fmt.Errorf("register %q: %w", username, err)
	}
	return nil
}

func (s *RedisStore) Deregister(ctx context.Context, username string) error {
	if err := s.rdb.HDel(ctx, onlineUsersKey, username).Err(); err != nil {
		return fmt.Errorf("deregister %q: %w", username, err)
	}
	return nil
}

func (s *RedisStore) List(ctx context.Context) ([]Entry, error) {
	result, err := s.rdb.HGetAll(ctx, onlineUsersKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch online users for key %s: %w", onlineUsersKey, err)
	}

	entries := make([]Entry, 0, len(result))
	for username, raw := range result {
		millis, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad presence value for %q: %w", username, err)
		}
		entries = append(entries, Entry{Username: username, Since: time.UnixMilli(millis).UTC()})
	}
	slices.SortFunc(entries, func(a, b Entry) int { return cmp.Compare(a.Username, b.Username) })
	return entries, nil
}
