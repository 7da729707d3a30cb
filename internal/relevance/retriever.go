// Package relevance finds prior branch messages related to a set of tags,
// directly and through one hop of the related-tag graph.
package relevance

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/branch-memory/internal/logging"
	"github.com/rcliao/branch-memory/internal/store"
)

// Defaults.
const (
	DefaultDirectLimit      = 10
	DefaultRelatedLimit     = 5
	DefaultRelatedThreshold = 0.3
)

// Store is the query surface the Retriever needs.
type Store interface {
	DirectMatches(ctx context.Context, p store.MatchParams) ([]store.Match, error)
	RelatedMatches(ctx context.Context, p store.MatchParams) ([]store.Match, error)
}

// Options configures a Retriever. Zero values select the defaults.
type Options struct {
	DirectLimit      int
	RelatedLimit     int
	RelatedThreshold float64
}

// Result holds both relevance lists, each ranked best first.
type Result struct {
	Direct  []store.Match `json:"direct" yaml:"direct"`
	Related []store.Match `json:"related" yaml:"related"`
}

// Empty reports whether neither list has entries.
func (r Result) Empty() bool {
	return len(r.Direct) == 0 && len(r.Related) == 0
}

// Retriever runs the direct and related lookups.
type Retriever struct {
	store  Store
	logger *zap.Logger
	opts   Options
}

// NewRetriever returns a Retriever.
func NewRetriever(store Store, logger *zap.Logger, opts Options) *Retriever {
	if opts.DirectLimit <= 0 {
		opts.DirectLimit = DefaultDirectLimit
	}
	if opts.RelatedLimit <= 0 {
		opts.RelatedLimit = DefaultRelatedLimit
	}
	if opts.RelatedThreshold <= 0 {
		opts.RelatedThreshold = DefaultRelatedThreshold
	}
	return &Retriever{store: store, logger: logging.OrNop(logger), opts: opts}
}

// FindRelevant returns messages of (chatID, branchID) sharing tags with the
// query, and messages carrying a strong neighbour of a queried tag. No query
// runs for an empty tag list. A failed lookup yields an empty list; an error
// is returned only when both lookups failed.
func (r *Retriever) FindRelevant(ctx context.Context, tags []string, branchID string, chatID int64) (Result, error) {
	var res Result
	if len(tags) == 0 {
		return res, nil
	}
	log := r.logger.With(zap.Int64("chat_id", chatID), zap.String("branch_id", branchID))

	var directErr, relatedErr error
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		res.Direct, directErr = r.store.DirectMatches(gctx, store.MatchParams{
			ChatID: chatID, BranchID: branchID, Tags: tags, Limit: r.opts.DirectLimit,
		})
		if directErr != nil {
			log.Warn("direct relevance lookup", zap.Error(directErr))
			res.Direct = nil
		}
		return nil
	})
	g.Go(func() error {
		res.Related, relatedErr = r.store.RelatedMatches(gctx, store.MatchParams{
			ChatID: chatID, BranchID: branchID, Tags: tags,
			Threshold: r.opts.RelatedThreshold, Limit: r.opts.RelatedLimit,
		})
		if relatedErr != nil {
			log.Warn("related relevance lookup", zap.Error(relatedErr))
			res.Related = nil
		}
		return nil
	})
	_ = g.Wait()

	if directErr != nil && relatedErr != nil {
		return Result{}, errors.Join(directErr, relatedErr)
	}
	return res, nil
}
