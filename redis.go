package hashcache

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	goredis "github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/hashcache/internal/util"
	"github.com/unkn0wn-root/hashcache/record"
)

// redisEngine maps typed objects onto Redis hashes (one field per record
// field) and exposes the hash and set commands one-to-one. Every call is a
// single round trip except a TTL insert, which is two.
type redisEngine struct {
	rdb         goredis.UniversalClient
	closeClient bool

	log   Logger
	hooks Hooks
}

func newRedisEngine(ctx context.Context, cfg RedisConfig, opts Options) (*redisEngine, error) {
	e := &redisEngine{
		rdb:         cfg.Client,
		closeClient: cfg.CloseClient,
		log:         coalesce[Logger](opts.Logger, NopLogger{}),
		hooks:       coalesce[Hooks](opts.Hooks, NopHooks{}),
	}
	addr := "external client"
	if e.rdb == nil {
		o, err := cfg.options()
		if err != nil {
			return nil, newError(KindConnection, "connect", cfg.Addr, err)
		}
		e.rdb = goredis.NewClient(o)
		e.closeClient = true
		addr = o.Addr
	}

	if err := e.rdb.Ping(ctx).Err(); err != nil {
		if e.closeClient {
			_ = e.rdb.Close()
		}
		e.hooks.ConnectionError("connect", err)
		return nil, newError(KindConnection, "connect", addr, err)
	}
	e.log.Info("redis engine ready", Fields{"addr": addr, "owns_client": e.closeClient})
	return e, nil
}

func (r *redisEngine) backend() Backend { return BackendRedis }

// close releases the client only when the engine owns it. Repeated calls are
// no-ops.
func (r *redisEngine) close(context.Context) error {
	if !r.closeClient {
		return nil
	}
	if err := r.rdb.Close(); err != nil && !errors.Is(err, goredis.ErrClosed) {
		return newError(KindConnection, "close", "", err)
	}
	r.log.Info("redis engine closed", nil)
	return nil
}

// fold turns a go-redis failure into an *Error. A server reply keeps the
// operation's kind; anything else (pool, network, closed client, deadline)
// is a connection failure.
func (r *redisEngine) fold(kind Kind, op, key string, err error) error {
	var reply goredis.Error
	if errors.As(err, &reply) {
		return newError(kind, op, key, err)
	}
	r.hooks.ConnectionError(op, err)
	return newError(KindConnection, op, key, err)
}

// expireSeconds rounds ttl up to whole seconds; EXPIRE has no finer unit.
func expireSeconds(ttl time.Duration) time.Duration {
	return (ttl + time.Second - 1) / time.Second * time.Second
}

// ==============================
// Typed objects
// ==============================

// insert is HSET followed by EXPIRE. The pair is not atomic: when EXPIRE
// fails the hash stays without TTL and the error is returned, nothing is
// rolled back.
func (r *redisEngine) insert(ctx context.Context, obj object) error {
	k := util.EntryKey(obj.model, obj.key)
	rec := obj.record()
	if len(rec) == 0 {
		return newError(KindInsertion, "insert", k, errEmptyRecord)
	}
	if err := r.rdb.HSet(ctx, k, rec.Args()...).Err(); err != nil {
		return r.fold(KindInsertion, "insert", k, err)
	}
	if obj.ttl <= 0 {
		return nil
	}
	if err := r.rdb.Expire(ctx, k, expireSeconds(obj.ttl)).Err(); err != nil {
		r.hooks.ExpireFailed(k, err)
		f := keyFields(k, err)
		f["ttl"] = obj.ttl.String()
		r.log.Warn("record stored without ttl", f)
		return newError(KindInsertion, "expire", k, err)
	}
	return nil
}

// get treats a record that does not decode as a miss.
func (r *redisEngine) get(ctx context.Context, model, key string, decode decodeFunc) (any, bool, error) {
	k := util.EntryKey(model, key)
	m, err := r.rdb.HGetAll(ctx, k).Result()
	if err != nil {
		return nil, false, r.fold(KindAccess, "get", k, err)
	}
	if len(m) == 0 {
		return nil, false, nil
	}
	v, err := decode(record.FromMap(m))
	if err != nil {
		r.hooks.ForgivingRead(k, err)
		r.log.Debug("undecodable record treated as miss", keyFields(k, err))
		return nil, false, nil
	}
	return v, true, nil
}

func (r *redisEngine) contains(ctx context.Context, model, key string) (bool, error) {
	k := util.EntryKey(model, key)
	n, err := r.rdb.Exists(ctx, k).Result()
	if err != nil {
		return false, r.fold(KindAccess, "contains_key", k, err)
	}
	return n > 0, nil
}

func (r *redisEngine) remove(ctx context.Context, model, key string) error {
	k := util.EntryKey(model, key)
	if err := r.rdb.Del(ctx, k).Err(); err != nil {
		return r.fold(KindDeletion, "remove", k, err)
	}
	return nil
}

// ==============================
// Hashes
// ==============================

func (r *redisEngine) hashGet(ctx context.Context, key, field string) (string, bool, error) {
	v, err := r.rdb.HGet(ctx, key, field).Result()
	if err == goredis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, r.fold(KindAccess, "hash_get", key, err)
	}
	return v, true, nil
}

func (r *redisEngine) hashSet(ctx context.Context, key, field, value string) (bool, error) {
	n, err := r.rdb.HSet(ctx, key, field, value).Result()
	if err != nil {
		return false, r.fold(KindInsertion, "hash_set", key, err)
	}
	return n == 1, nil
}

func (r *redisEngine) hashMultipleGet(ctx context.Context, key string, fields []string) ([]*string, error) {
	vals, err := r.rdb.HMGet(ctx, key, fields...).Result()
	if err != nil {
		return nil, r.fold(KindAccess, "hash_multiple_get", key, err)
	}
	out := make([]*string, len(vals))
	for i, v := range vals {
		if s, ok := v.(string); ok {
			out[i] = &s
		}
	}
	return out, nil
}

func (r *redisEngine) hashMultipleSet(ctx context.Context, key string, rec record.Record) error {
	if len(rec) == 0 {
		return newError(KindInsertion, "hash_multiple_set", key, errEmptyRecord)
	}
	if err := r.rdb.HSet(ctx, key, rec.Args()...).Err(); err != nil {
		return r.fold(KindInsertion, "hash_multiple_set", key, err)
	}
	return nil
}

func (r *redisEngine) hashGetAll(ctx context.Context, key string) (record.Record, error) {
	m, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, r.fold(KindAccess, "hash_get_all", key, err)
	}
	return record.FromMap(m), nil
}

func (r *redisEngine) hashDelete(ctx context.Context, key string, fields []string) (int64, error) {
	n, err := r.rdb.HDel(ctx, key, fields...).Result()
	if err != nil {
		return 0, r.fold(KindDeletion, "hash_delete", key, err)
	}
	return n, nil
}

func (r *redisEngine) hashExists(ctx context.Context, key, field string) (bool, error) {
	ok, err := r.rdb.HExists(ctx, key, field).Result()
	if err != nil {
		return false, r.fold(KindAccess, "hash_exists", key, err)
	}
	return ok, nil
}

func (r *redisEngine) hashLen(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.HLen(ctx, key).Result()
	if err != nil {
		return 0, r.fold(KindAccess, "hash_len", key, err)
	}
	return n, nil
}

func (r *redisEngine) hashKeys(ctx context.Context, key string) ([]string, error) {
	ks, err := r.rdb.HKeys(ctx, key).Result()
	if err != nil {
		return nil, r.fold(KindAccess, "hash_keys", key, err)
	}
	sort.Strings(ks)
	return ks, nil
}

func (r *redisEngine) hashValues(ctx context.Context, key string) ([]string, error) {
	vs, err := r.rdb.HVals(ctx, key).Result()
	if err != nil {
		return nil, r.fold(KindAccess, "hash_values", key, err)
	}
	return vs, nil
}

func (r *redisEngine) hashSetIfNotExists(ctx context.Context, key, field, value string) (bool, error) {
	ok, err := r.rdb.HSetNX(ctx, key, field, value).Result()
	if err != nil {
		return false, r.fold(KindInsertion, "hash_set_if_not_exists", key, err)
	}
	return ok, nil
}

// ==============================
// Sets
// ==============================

func (r *redisEngine) setAdd(ctx context.Context, key string, members []string) (int64, error) {
	n, err := r.rdb.SAdd(ctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, r.fold(KindInsertion, "set_add", key, err)
	}
	return n, nil
}

func (r *redisEngine) setRem(ctx context.Context, key string, members []string) (int64, error) {
	n, err := r.rdb.SRem(ctx, key, toArgs(members)...).Result()
	if err != nil {
		return 0, r.fold(KindDeletion, "set_rem", key, err)
	}
	return n, nil
}

func (r *redisEngine) setCard(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.SCard(ctx, key).Result()
	if err != nil {
		return 0, r.fold(KindAccess, "set_card", key, err)
	}
	return n, nil
}

func (r *redisEngine) setMembers(ctx context.Context, key string) ([]string, error) {
	ms, err := r.rdb.SMembers(ctx, key).Result()
	if err != nil {
		return nil, r.fold(KindAccess, "set_members", key, err)
	}
	return util.SortedUnique(ms), nil
}

func (r *redisEngine) setIsMember(ctx context.Context, key, member string) (bool, error) {
	ok, err := r.rdb.SIsMember(ctx, key, member).Result()
	if err != nil {
		return false, r.fold(KindAccess, "set_ismember", key, err)
	}
	return ok, nil
}

func (r *redisEngine) setMove(ctx context.Context, src, dst, member string) (bool, error) {
	ok, err := r.rdb.SMove(ctx, src, dst, member).Result()
	if err != nil {
		return false, r.fold(KindInsertion, "set_move", src, err)
	}
	return ok, nil
}

func (r *redisEngine) setCombine(ctx context.Context, op setOp, keys []string) ([]string, error) {
	var cmd *goredis.StringSliceCmd
	switch op {
	case opDiff:
		cmd = r.rdb.SDiff(ctx, keys...)
	case opInter:
		cmd = r.rdb.SInter(ctx, keys...)
	default:
		cmd = r.rdb.SUnion(ctx, keys...)
	}
	ms, err := cmd.Result()
	if err != nil {
		return nil, r.fold(KindAccess, op.String(), keys[0], err)
	}
	return util.SortedUnique(ms), nil
}

func (r *redisEngine) setCombineStore(ctx context.Context, op setOp, dst string, keys []string) (int64, error) {
	var cmd *goredis.IntCmd
	switch op {
	case opDiff:
		cmd = r.rdb.SDiffStore(ctx, dst, keys...)
	case opInter:
		cmd = r.rdb.SInterStore(ctx, dst, keys...)
	default:
		cmd = r.rdb.SUnionStore(ctx, dst, keys...)
	}
	n, err := cmd.Result()
	if err != nil {
		return 0, r.fold(KindInsertion, op.String()+"store", dst, err)
	}
	return n, nil
}

func toArgs(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
