package wincache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// putScript stores the value only if nobody invalidated since the generation was read
var putScript = redis.NewScript(`
	local cur = redis.call('GET', KEYS[2])
	if not cur then
		cur = '0'
	end
	if cur ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
	return 1
`)

// invalidateScript bumps the generation and drops the value atomically
var invalidateScript = redis.NewScript(`
	redis.call('INCR', KEYS[2])
	redis.call('DEL', KEYS[1])
	return 1
`)

// decoded is the last value read from redis with its exception patterns compiled
type decoded struct {
	raw   string
	entry *Entry
}

// RedisBackend shares the cached window across every process pointing at the same redis.
// The last decoded value is kept in process, so a hit only decodes and compiles
// patterns when the stored value changes.
type RedisBackend struct {
	rdb    *redis.Client
	key    string
	genKey string
	last   atomic.Pointer[decoded]
}

// NewRedisBackend creates a redis-backed cache backend
func NewRedisBackend(rdb *redis.Client, key string) *RedisBackend {
	if key == "" {
		key = DefaultKey
	}
	return &RedisBackend{rdb: rdb, key: key, genKey: key + ":gen"}
}

// Get implements Backend
func (b *RedisBackend) Get(ctx context.Context) (*Entry, uint64, error) {
	vals, err := b.rdb.MGet(ctx, b.key, b.genKey).Result()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}

	var gen uint64
	if s, ok := vals[1].(string); ok {
		gen, err = strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: bad generation %q", ErrBackendUnavailable, s)
		}
	}

	raw, ok := vals[0].(string)
	if !ok {
		return nil, gen, nil
	}

	if d := b.last.Load(); d != nil && d.raw == raw {
		return d.entry, gen, nil
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		// unreadable value: behave as a miss so the next load overwrites it
		return nil, gen, nil
	}
	if entry.Window != nil {
		Prepare(entry.Window)
	}
	b.last.Store(&decoded{raw: raw, entry: &entry})
	return &entry, gen, nil
}

// Put implements Backend
func (b *RedisBackend) Put(ctx context.Context, entry *Entry, gen uint64, ttl time.Duration) (bool, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return false, fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	res, err := putScript.Run(ctx, b.rdb, []string{b.key, b.genKey},
		strconv.FormatUint(gen, 10), string(raw), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return res == 1, nil
}

// Invalidate implements Backend
func (b *RedisBackend) Invalidate(ctx context.Context) error {
	if err := invalidateScript.Run(ctx, b.rdb, []string{b.key, b.genKey}).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrBackendUnavailable, err)
	}
	return nil
}
