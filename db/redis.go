package db

import (
	"context"

	"github.com/redis/go-redis/v9"
)

// NewRedis opens a client for the counter backend.
func NewRedis(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// RedisSequencePrefix namespaces the counters the server and kmtadmin share.
const RedisSequencePrefix = "kmt:seq:"

// RedisSequencer keeps sequence counters in Redis. SETNX seeds a new key with
// its base and INCR bumps it, both inside one MULTI block.
type RedisSequencer struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisSequencer stores counters under prefix+key.
func NewRedisSequencer(rdb *redis.Client, prefix string) *RedisSequencer {
	return &RedisSequencer{rdb: rdb, prefix: prefix}
}

func (r *RedisSequencer) Next(ctx context.Context, key string, base int64) (int64, error) {
	k := r.prefix + key
	var incr *redis.IntCmd
	_, err := r.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.SetNX(ctx, k, base, 0)
		incr = p.Incr(ctx, k)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

var advanceScript = redis.NewScript(`
local cur = tonumber(redis.call("GET", KEYS[1]) or "0")
if cur < tonumber(ARGV[1]) then
	redis.call("SET", KEYS[1], ARGV[1])
end
return 0
`)

// AdvanceCounter raises a counter to at least v. It never lowers it.
func (r *RedisSequencer) AdvanceCounter(ctx context.Context, key string, v int64) error {
	return advanceScript.Run(ctx, r.rdb, []string{r.prefix + key}, v).Err()
}
