package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/library-lending-api/internal/models"
	appErrors "github.com/noah-isme/library-lending-api/pkg/errors"
)

// PolicyCacheStore persists encoded policies by key.
type PolicyCacheStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// PolicyCache memoises effective policies per (book, student) pair. Cache failures never fail a
// lookup; they are logged and counted as misses. Entries are dropped when the book's lending
// rights change; category and student edits show up once the ttl runs out. Lending operations
// resolve policies inside their transaction and never read this cache.
type PolicyCache struct {
	store   PolicyCacheStore
	metrics *MetricsService
	ttl     time.Duration
	logger  *zap.Logger
}

// NewPolicyCache returns a cache backed by store. A nil store disables caching.
func NewPolicyCache(store PolicyCacheStore, metrics *MetricsService, ttl time.Duration, logger *zap.Logger) *PolicyCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyCache{store: store, metrics: metrics, ttl: ttl, logger: logger}
}

// Enabled reports whether lookups reach a store.
func (c *PolicyCache) Enabled() bool {
	return c != nil && c.store != nil
}

// Lookup returns the cached policy for the pair.
func (c *PolicyCache) Lookup(ctx context.Context, bookID, studentID string) (models.LendingPolicy, bool) {
	var policy models.LendingPolicy
	if !c.Enabled() {
		return policy, false
	}
	start := time.Now()
	raw, err := c.store.Get(ctx, policyKey(bookID, studentID))
	if err == nil {
		err = json.Unmarshal(raw, &policy)
	}
	hit := err == nil
	c.metrics.RecordCacheOperation(hit, time.Since(start))
	if err != nil && !errors.Is(err, appErrors.ErrCacheMiss) {
		c.logger.Warn("policy cache lookup failed", zap.String("book_id", bookID), zap.String("student_id", studentID), zap.Error(err))
	}
	return policy, hit
}

// Store caches policy for the pair.
func (c *PolicyCache) Store(ctx context.Context, bookID, studentID string, policy models.LendingPolicy) {
	if !c.Enabled() {
		return
	}
	payload, err := json.Marshal(policy)
	if err != nil {
		c.logger.Warn("policy cache encode failed", zap.Error(err))
		return
	}
	if err := c.store.Set(ctx, policyKey(bookID, studentID), payload, c.ttl); err != nil {
		c.logger.Warn("policy cache store failed", zap.String("book_id", bookID), zap.Error(err))
	}
}

// ForgetBook drops every cached policy of a book.
func (c *PolicyCache) ForgetBook(ctx context.Context, bookID string) error {
	if !c.Enabled() {
		return nil
	}
	removed, err := c.store.DeletePrefix(ctx, "policy:"+bookID+":")
	if err != nil {
		return err
	}
	c.logger.Debug("policy cache entries dropped", zap.String("book_id", bookID), zap.Int("removed", removed))
	return nil
}

func policyKey(bookID, studentID string) string {
	return "policy:" + bookID + ":" + studentID
}
