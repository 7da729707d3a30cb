// Package weights computes TF-IDF weights for tags over a time window.
package weights

import (
	"context"
	"fmt"
	"maps"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rcliao/branch-memory/internal/logging"
)

// Defaults.
const (
	DefaultTTL        = 5 * time.Minute
	DefaultWindowDays = 90
	// UnknownWeight is reported for tags without a computed weight.
	UnknownWeight = 1.0
)

// Weights maps tag IDs to weights.
type Weights map[int64]float64

// Store is the read/write surface the Calculator needs.
type Store interface {
	TagDocCounts(ctx context.Context, chatID int64, since time.Time) (map[int64]int, error)
	TaggedDocCount(ctx context.Context, chatID int64, since time.Time) (int, error)
	MessageCount(ctx context.Context, since time.Time) (int, error)
	UpdateTagWeights(ctx context.Context, weights map[int64]float64, at time.Time) error
}

// Options configures a Calculator. Zero values select the defaults.
type Options struct {
	TTL        time.Duration
	WindowDays int
	Now        func() time.Time
}

// Calculator computes and caches tag weights. Safe for concurrent use;
// concurrent cold recomputes of the same key share one computation.
type Calculator struct {
	store      Store
	logger     *zap.Logger
	now        func() time.Time
	windowDays int
	cache      *ttlCache
	group      singleflight.Group
}

// NewCalculator returns a Calculator.
func NewCalculator(store Store, logger *zap.Logger, opts Options) *Calculator {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Calculator{
		store:      store,
		logger:     logging.OrNop(logger),
		now:        opts.Now,
		windowDays: opts.WindowDays,
		cache:      newTTLCache(opts.TTL),
	}
}

// Recompute returns the weights of every tag used in the last windowDays,
// scoped to chatID when it is non-zero. Fresh cached results are returned
// as is; otherwise weights are computed, persisted and cached.
//
// TF is the share of the window's tagged messages that carry the tag. IDF is
// ln(messages / (tagged + 1)) + 1 over all chats in the window.
func (c *Calculator) Recompute(ctx context.Context, chatID int64, windowDays int) (Weights, error) {
	if windowDays <= 0 {
		windowDays = c.windowDays
	}
	key := cacheKey{chatID: chatID, windowDays: windowDays}
	if w, ok := c.cache.get(key, c.now()); ok {
		return w, nil
	}

	v, err, _ := c.group.Do(fmt.Sprintf("%d/%d", chatID, windowDays), func() (interface{}, error) {
		w, err := c.compute(ctx, chatID, windowDays)
		if err != nil {
			return nil, err
		}
		c.cache.put(key, w, c.now())
		return w, nil
	})
	if err != nil {
		return nil, err
	}
	return maps.Clone(v.(Weights)), nil
}

func (c *Calculator) compute(ctx context.Context, chatID int64, windowDays int) (Weights, error) {
	now := c.now()
	since := now.AddDate(0, 0, -windowDays)

	tagged, err := c.store.TaggedDocCount(ctx, chatID, since)
	if err != nil {
		return nil, fmt.Errorf("count tagged messages: %w", err)
	}
	if tagged == 0 {
		return Weights{}, nil
	}

	scoped, err := c.store.TagDocCounts(ctx, chatID, since)
	if err != nil {
		return nil, fmt.Errorf("count tag documents: %w", err)
	}
	corpus := scoped
	if chatID != 0 {
		if corpus, err = c.store.TagDocCounts(ctx, 0, since); err != nil {
			return nil, fmt.Errorf("count corpus tag documents: %w", err)
		}
	}
	total, err := c.store.MessageCount(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("count messages: %w", err)
	}

	w := make(Weights, len(scoped))
	for id, docs := range scoped {
		tf := float64(docs) / float64(tagged)
		w[id] = tf * IDF(total, corpus[id])
	}

	if err := c.store.UpdateTagWeights(ctx, w, now); err != nil {
		c.logger.Warn("persist tag weights", zap.Int64("chat_id", chatID), zap.Error(err))
	}
	c.logger.Debug("recomputed tag weights",
		zap.Int64("chat_id", chatID), zap.Int("window_days", windowDays), zap.Int("tags", len(w)))
	return w, nil
}

// IDF returns ln(total / (docs + 1)) + 1. It is positive whenever docs <= total.
func IDF(total, docs int) float64 {
	return math.Log(float64(total)/float64(docs+1)) + 1
}

// Get returns the weight of each tag in the default window, recomputing when
// the cache is cold. Unknown tags, and all tags when the recompute fails,
// get UnknownWeight.
func (c *Calculator) Get(ctx context.Context, tagIDs []int64, chatID int64) Weights {
	w, err := c.Recompute(ctx, chatID, c.windowDays)
	if err != nil {
		c.logger.Warn("recompute tag weights", zap.Int64("chat_id", chatID), zap.Error(err))
	}

	out := make(Weights, len(tagIDs))
	for _, id := range tagIDs {
		if v, ok := w[id]; ok {
			out[id] = v
		} else {
			out[id] = UnknownWeight
		}
	}
	return out
}

// Invalidate drops every cached result.
func (c *Calculator) Invalidate() {
	c.cache.clear()
}
