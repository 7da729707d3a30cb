package tagging

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/rcliao/branch-memory/internal/logging"
)

// DefaultRelatedStep is the strength added to an edge per co-occurrence. A new
// edge starts at one step, so with the default related threshold of 0.3 a pair
// must co-occur about three times before one tag surfaces the other.
const DefaultRelatedStep = 0.1

// Store is the write surface the Persister needs.
type Store interface {
	EnsureTag(ctx context.Context, name string) (int64, error)
	LinkMessageTag(ctx context.Context, messageID string, tagID int64) error
	BumpRelated(ctx context.Context, tagID, relatedID int64, step float64) error
}

// Persister records a message's tags and their co-occurrence edges.
type Persister struct {
	store  Store
	logger *zap.Logger
	step   float64
}

// NewPersister returns a Persister. step <= 0 selects DefaultRelatedStep.
func NewPersister(store Store, logger *zap.Logger, step float64) *Persister {
	if step <= 0 {
		step = DefaultRelatedStep
	}
	return &Persister{store: store, logger: logging.OrNop(logger), step: step}
}

// Persist links each tag to the message, creating tag rows as needed, then
// adds one step to the edge of every ordered pair of distinct linked tags.
// Failures are logged and skipped; the joined error is returned for the
// caller to report. Calling Persist twice links once but bumps edges twice.
func (p *Persister) Persist(ctx context.Context, messageID string, tags []string) error {
	log := p.logger.With(zap.String("message_id", messageID))

	var errs []error
	seen := make(map[string]bool)
	var ids []int64

	for _, name := range tags {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		id, err := p.store.EnsureTag(ctx, name)
		if err != nil {
			log.Warn("ensure tag", zap.String("tag", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		if err := p.store.LinkMessageTag(ctx, messageID, id); err != nil {
			log.Warn("link tag", zap.String("tag", name), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		ids = append(ids, id)
	}

	for _, a := range ids {
		for _, b := range ids {
			if a == b {
				continue
			}
			if err := p.store.BumpRelated(ctx, a, b, p.step); err != nil {
				log.Warn("bump related tag", zap.Int64("tag_id", a), zap.Int64("related_id", b), zap.Error(err))
				errs = append(errs, err)
			}
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("persist tags of %s: %w", messageID, err)
	}
	return nil
}
