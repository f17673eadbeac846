package usage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/billingkit/pkg/plan"
)

const defaultRedisPrefix = "billingkit:usage"

// applyScript performs rollover and the counter operation in one server-side step.
// Returns {ok, value, previous, window_start, window_end, version}.
var applyScript = redis.NewScript(`
local kind = ARGV[1]
local delta = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local enforce = ARGV[4] == '1'
local ws = tonumber(ARGV[5])
local we = tonumber(ARGV[6])

local cur = redis.call('HMGET', KEYS[1], 'v', 'ws', 'we', 'ver')
local value = tonumber(cur[1]) or 0
local curWs = tonumber(cur[2])
local ver = tonumber(cur[4]) or 0

if curWs ~= nil and curWs >= ws then
  ws = curWs
  we = tonumber(cur[3]) or 0
else
  value = 0
end

local prev = value
if kind == 'increment' then
  if enforce and limit >= 0 and delta > limit - prev then
    return {0, prev, prev, ws, we, ver}
  end
  value = math.min(prev + delta, tonumber(ARGV[11]))
elseif kind == 'decrement' then
  value = math.max(prev - delta, 0)
else
  value = 0
end

ver = ver + 1
redis.call('HSET', KEYS[1], 'v', string.format('%.0f', value), 'l', limit, 'ws', ws, 'we', we, 'ver', ver,
  'ua', ARGV[7], 't', ARGV[8], 'f', ARGV[9], 'm', ARGV[10])
redis.call('SADD', KEYS[2], KEYS[1])
return {1, value, prev, ws, we, ver}
`)

// rolloverScript returns {rolled, found, version}.
var rolloverScript = redis.NewScript(`
local cur = redis.call('HMGET', KEYS[1], 'ws', 'ver')
if not cur[2] then
  return {0, 0, 0}
end
local ws = tonumber(ARGV[1])
if (tonumber(cur[1]) or 0) >= ws then
  return {0, 1, tonumber(cur[2])}
end
local ver = tonumber(cur[2]) + 1
redis.call('HSET', KEYS[1], 'v', 0, 'l', ARGV[3], 'ws', ws, 'we', ARGV[2], 'ver', ver, 'ua', ARGV[4])
return {1, 1, ver}
`)

// RedisStore implements Store on Redis. Each counter is a hash; every
// mutation runs as a single Lua script so it is atomic on the server.
type RedisStore struct {
	client redis.Cmdable
	prefix string
}

// RedisStoreOption configures a RedisStore.
type RedisStoreOption func(*RedisStore)

// WithKeyPrefix sets the namespace for all keys written by the store.
func WithKeyPrefix(prefix string) RedisStoreOption {
	return func(rs *RedisStore) {
		rs.prefix = prefix
	}
}

func NewRedisStore(client redis.Cmdable, opts ...RedisStoreOption) *RedisStore {
	if client == nil {
		panic("usage: redis client cannot be nil")
	}
	rs := &RedisStore{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		opt(rs)
	}
	return rs
}

func (rs *RedisStore) counterKey(k Key) string {
	return fmt.Sprintf("%s:c:%s:%s:%s", rs.prefix, k.TenantID, k.Feature, k.Metric)
}

func (rs *RedisStore) tenantKey(tenantID uuid.UUID) string {
	return fmt.Sprintf("%s:t:%s", rs.prefix, tenantID)
}

func (rs *RedisStore) Get(ctx context.Context, key Key) (Counter, bool, error) {
	fields, err := rs.client.HGetAll(ctx, rs.counterKey(key)).Result()
	if err != nil {
		return Counter{}, false, errors.Join(ErrStoreFailure, err)
	}
	if len(fields) == 0 {
		return Counter{}, false, nil
	}
	c, err := decodeCounter(fields)
	if err != nil {
		return Counter{}, false, err
	}
	c.Key = key
	return c, true, nil
}

func (rs *RedisStore) Apply(ctx context.Context, key Key, op Op) (ApplyResult, error) {
	if op.Delta < 0 {
		return ApplyResult{}, ErrInvalidAmount
	}
	switch op.Kind {
	case OpIncrement, OpDecrement, OpReset:
	default:
		return ApplyResult{}, fmt.Errorf("%w: %q", ErrInvalidOperation, op.Kind)
	}

	enforce := "0"
	if op.Enforce {
		enforce = "1"
	}

	res, err := applyScript.Run(ctx, rs.client,
		[]string{rs.counterKey(key), rs.tenantKey(key.TenantID)},
		string(op.Kind), op.Delta, int64(op.Limit), enforce,
		encodeTime(op.Window.Start), encodeTime(op.Window.End),
		op.Now.UnixMilli(), key.TenantID.String(), string(key.Feature), key.Metric, MaxValue,
	).Int64Slice()
	if err != nil {
		return ApplyResult{}, errors.Join(ErrStoreFailure, err)
	}
	if len(res) != 6 {
		return ApplyResult{}, fmt.Errorf("%w: unexpected script reply %v", ErrStoreFailure, res)
	}

	counter := Counter{
		Key:       key,
		Window:    Window{Start: decodeTime(res[3]), End: decodeTime(res[4])},
		Value:     res[1],
		Limit:     op.Limit,
		Version:   res[5],
		UpdatedAt: op.Now,
	}
	result := ApplyResult{Counter: counter, Previous: res[2]}

	if res[0] == 0 {
		return result, fmt.Errorf("%w: %s at %d of %s, requested %d",
			ErrQuotaExceeded, key, res[2], op.Limit, op.Delta)
	}
	return result, nil
}

func (rs *RedisStore) Rollover(ctx context.Context, key Key, window Window, limit plan.Limit, now time.Time) (Counter, bool, error) {
	res, err := rolloverScript.Run(ctx, rs.client,
		[]string{rs.counterKey(key)},
		encodeTime(window.Start), encodeTime(window.End), int64(limit), now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return Counter{}, false, errors.Join(ErrStoreFailure, err)
	}
	if len(res) != 3 {
		return Counter{}, false, fmt.Errorf("%w: unexpected script reply %v", ErrStoreFailure, res)
	}

	if res[0] == 1 {
		return Counter{
			Key:       key,
			Window:    window,
			Limit:     limit,
			Version:   res[2],
			UpdatedAt: now,
		}, true, nil
	}
	if res[1] == 0 {
		return Counter{}, false, nil
	}

	current, _, err := rs.Get(ctx, key)
	return current, false, err
}

func (rs *RedisStore) List(ctx context.Context, tenantID uuid.UUID) ([]Counter, error) {
	keys, err := rs.client.SMembers(ctx, rs.tenantKey(tenantID)).Result()
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.MapStringStringCmd, len(keys))
	_, err = rs.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		for i, k := range keys {
			cmds[i] = p.HGetAll(ctx, k)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Join(ErrStoreFailure, err)
	}

	out := make([]Counter, 0, len(keys))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		c, err := decodeCounter(fields)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	SortCounters(out)
	return out, nil
}

func decodeCounter(fields map[string]string) (Counter, error) {
	var c Counter
	ints := make(map[string]int64, 6)
	for _, name := range []string{"v", "l", "ws", "we", "ver", "ua"} {
		raw, ok := fields[name]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Counter{}, fmt.Errorf("%w: field %s: %w", ErrStoreFailure, name, err)
		}
		ints[name] = n
	}

	if raw := fields["t"]; raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			return Counter{}, fmt.Errorf("%w: tenant id: %w", ErrStoreFailure, err)
		}
		c.Key.TenantID = id
	}
	c.Key.Feature = plan.FeatureID(fields["f"])
	c.Key.Metric = fields["m"]
	c.Value = ints["v"]
	c.Limit = plan.Limit(ints["l"])
	c.Window = Window{Start: decodeTime(ints["ws"]), End: decodeTime(ints["we"])}
	c.Version = ints["ver"]
	if ms, ok := ints["ua"]; ok {
		c.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return c, nil
}

// Window bounds are stored as unix seconds; zero encodes the lifetime window.
func encodeTime(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func decodeTime(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(n, 0).UTC()
}
