package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Avatar2001/retail-analytics-copilot/internal/metrics"
	"github.com/Avatar2001/retail-analytics-copilot/internal/workflow"
)

// Config holds result cache settings. An empty Addr disables the cache.
type Config struct {
	Addr string        `mapstructure:"addr"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// ResultCache stores completed workflow results in Redis keyed on the
// question and format hint. A nil *ResultCache is valid and always misses, so
// callers need no enabled checks. Cache faults never fail a run; they are
// logged and treated as misses.
type ResultCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// New creates a result cache, or nil when no address is configured.
func New(cfg Config, logger *zap.Logger) *ResultCache {
	if cfg.Addr == "" {
		return nil
	}
	if cfg.TTL == 0 {
		cfg.TTL = time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultCache{
		rdb:    redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		ttl:    cfg.TTL,
		logger: logger,
	}
}

func key(question, formatHint string) string {
	h := sha256.Sum256([]byte(question + "\x00" + formatHint))
	return "copilot:result:" + hex.EncodeToString(h[:])
}

// Get returns a previously cached result for the question, if any.
func (c *ResultCache) Get(ctx context.Context, question, formatHint string) (workflow.Result, bool) {
	if c == nil {
		return workflow.Result{}, false
	}

	raw, err := c.rdb.Get(ctx, key(question, formatHint)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("Result cache read failed", zap.Error(err))
		}
		metrics.CacheMisses.Inc()
		return workflow.Result{}, false
	}

	var res workflow.Result
	if err := json.Unmarshal(raw, &res); err != nil {
		c.logger.Warn("Result cache entry corrupt", zap.Error(err))
		metrics.CacheMisses.Inc()
		return workflow.Result{}, false
	}

	metrics.CacheHits.Inc()
	return res, true
}

// Put stores a completed result.
func (c *ResultCache) Put(ctx context.Context, question, formatHint string, res workflow.Result) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(res)
	if err != nil {
		c.logger.Warn("Result cache marshal failed", zap.Error(err))
		return
	}
	if err := c.rdb.Set(ctx, key(question, formatHint), raw, c.ttl).Err(); err != nil {
		c.logger.Warn("Result cache write failed", zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *ResultCache) Close() error {
	if c == nil {
		return nil
	}
	return c.rdb.Close()
}
