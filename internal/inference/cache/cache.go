// Package cache memoises prediction responses. Inference is deterministic,
// so a response is fully determined by the request and the loaded models.
package cache

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"

	"github.com/yungbote/neurobridge-kt/internal/inference/config"
	"github.com/yungbote/neurobridge-kt/internal/kt/model"
	"github.com/yungbote/neurobridge-kt/internal/platform/logger"
	"github.com/yungbote/neurobridge-kt/internal/platform/metrics"
)

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte)
}

// Key hashes the model fingerprints and every request field.
func Key(fingerprints []string, in model.Input) string {
	h, _ := blake2b.New256(nil)
	var buf [8]byte
	writeInt := func(v int) {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(v)))
		h.Write(buf[:])
	}
	writeFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		h.Write(buf[:])
	}
	for _, fp := range fingerprints {
		writeInt(len(fp))
		h.Write([]byte(fp))
	}
	writeInt(in.Len())
	for _, q := range in.Questions {
		writeInt(q)
	}
	writeInt(len(in.Correct))
	for _, r := range in.Correct {
		writeInt(r)
	}
	writeInt(len(in.Confidence))
	for _, c := range in.Confidence {
		writeFloat(c)
	}
	writeInt(len(in.Difficulty))
	for _, d := range in.Difficulty {
		writeFloat(d)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Local is an in-process cache holding at most maxItems entries.
type Local struct {
	c        *gocache.Cache
	maxItems int
}

func NewLocal(ttl time.Duration, maxItems int) *Local {
	return &Local{c: gocache.New(ttl, 2*ttl), maxItems: maxItems}
}

func (l *Local) Get(_ context.Context, key string) ([]byte, bool) {
	v, ok := l.c.Get(key)
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("local", "miss").Inc()
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("local", "hit").Inc()
	return v.([]byte), true
}

func (l *Local) Set(_ context.Context, key string, val []byte) {
	if l.maxItems > 0 && l.c.ItemCount() >= l.maxItems {
		l.c.DeleteExpired()
		if l.c.ItemCount() >= l.maxItems {
			return
		}
	}
	l.c.SetDefault(key, val)
}

// Redis shares cached responses across replicas. Redis errors are logged
// and treated as misses.
type Redis struct {
	log    *logger.Logger
	rdb    goredis.UniversalClient
	ttl    time.Duration
	prefix string
}

func NewRedis(log *logger.Logger, rdb goredis.UniversalClient, ttl time.Duration) *Redis {
	if log == nil {
		log = logger.Nop()
	}
	return &Redis{log: log.With("service", "PredictionCache"), rdb: rdb, ttl: ttl, prefix: "kt:pred:"}
}

// DialRedis connects and pings addr.
func DialRedis(ctx context.Context, addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

func (r *Redis) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	switch {
	case err == goredis.Nil:
		metrics.CacheLookupsTotal.WithLabelValues("redis", "miss").Inc()
		return nil, false
	case err != nil:
		metrics.CacheLookupsTotal.WithLabelValues("redis", "error").Inc()
		r.log.Warn("redis get failed", "error", err)
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("redis", "hit").Inc()
	return b, true
}

func (r *Redis) Set(ctx context.Context, key string, val []byte) {
	if err := r.rdb.Set(ctx, r.prefix+key, val, r.ttl).Err(); err != nil {
		r.log.Warn("redis set failed", "error", err)
	}
}

// Nop never hits.
type Nop struct{}

func (Nop) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (Nop) Set(context.Context, string, []byte)        {}

// New picks Redis when an address is configured, the in-process cache when
// LocalSize is positive, and Nop otherwise. The returned close func
// releases the Redis connection.
func New(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) (Cache, func() error, error) {
	ttl := cfg.TTL.Duration
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if addr := strings.TrimSpace(cfg.RedisAddr); addr != "" {
		rdb, err := DialRedis(ctx, addr)
		if err != nil {
			return nil, nil, fmt.Errorf("connect redis %s: %w", addr, err)
		}
		return NewRedis(log, rdb, ttl), rdb.Close, nil
	}
	noop := func() error { return nil }
	if cfg.LocalSize > 0 {
		return NewLocal(ttl, cfg.LocalSize), noop, nil
	}
	return Nop{}, noop, nil
}
