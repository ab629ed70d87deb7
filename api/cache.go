/*
cache.go - Optional Redis prepayment-quote cache

PURPOSE:
  Prepayment quotes are the one read-heavy, expensive endpoint: each quote
  regenerates the schedule tail. Quotes for a (loan, date) pair are stable
  until a new transaction lands, so they cache well. The cache is optional
  and nil-safe: without a configured Redis address every method degrades
  to a miss/no-op and the handler computes fresh.

INVALIDATION:
  Any write against a loan (transaction, reschedule) drops all of that
  loan's quotes. Keys carry the loan id so invalidation is a prefix scan.
*/
package api

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const quoteTTL = 15 * time.Minute

// QuoteCache caches prepayment quotes in Redis. The zero value and the nil
// pointer are both valid, disabled caches.
type QuoteCache struct {
	client *redis.Client
	log    *zap.Logger
}

// NewQuoteCache connects to Redis at addr. An empty addr returns a disabled
// cache rather than an error: caching is an optimization, not a dependency.
func NewQuoteCache(addr string, log *zap.Logger) *QuoteCache {
	if addr == "" {
		return nil
	}
	return &QuoteCache{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		log:    log,
	}
}

func quoteKey(loanID, date string) string {
	return "prepayment:" + loanID + ":" + date
}

// Get returns a cached quote, or ok=false on miss, disabled cache, or any
// Redis failure. Failures never surface to the caller.
func (c *QuoteCache) Get(ctx context.Context, loanID, date string) (PrepaymentResponse, bool) {
	if c == nil {
		return PrepaymentResponse{}, false
	}
	raw, err := c.client.Get(ctx, quoteKey(loanID, date)).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.log.Warn("quote cache read failed", zap.Error(err))
		}
		return PrepaymentResponse{}, false
	}
	var resp PrepaymentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return PrepaymentResponse{}, false
	}
	resp.Cached = true
	return resp, true
}

// Set stores a quote with the cache TTL. Best effort.
func (c *QuoteCache) Set(ctx context.Context, loanID, date string, resp PrepaymentResponse) {
	if c == nil {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, quoteKey(loanID, date), raw, quoteTTL).Err(); err != nil {
		c.log.Warn("quote cache write failed", zap.Error(err))
	}
}

// Invalidate drops every cached quote for the loan. Called on any write
// that can change the payoff amount.
func (c *QuoteCache) Invalidate(ctx context.Context, loanID string) {
	if c == nil {
		return
	}
	keys, err := c.client.Keys(ctx, quoteKey(loanID, "*")).Result()
	if err != nil {
		c.log.Warn("quote cache scan failed", zap.Error(err))
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("quote cache invalidation failed", zap.Error(err))
	}
}

// Close releases the Redis connection.
func (c *QuoteCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
