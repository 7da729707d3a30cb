// Package access resolves effective branch permissions through the branch
// tree and its inheritance policies.
package access

import (
	"context"

	"go.uber.org/zap"

	"github.com/rcliao/branch-memory/internal/logging"
	"github.com/rcliao/branch-memory/internal/model"
)

// DefaultMaxDepth bounds the ancestor walk when no limit is configured.
const DefaultMaxDepth = 32

// Store is the read surface the resolver needs.
type Store interface {
	DirectGrant(ctx context.Context, userID int64, branchID string) (model.Level, bool, error)
	BranchInheritance(ctx context.Context, branchID string) (model.Inheritance, bool, error)
	BranchParent(ctx context.Context, branchID string) (string, bool, error)
}

// Resolver answers permission questions. It fails closed: storage errors,
// cycles, exhausted depth and cancellation all deny access.
type Resolver struct {
	store    Store
	logger   *zap.Logger
	maxDepth int
}

// NewResolver returns a Resolver. maxDepth <= 0 selects DefaultMaxDepth.
func NewResolver(store Store, logger *zap.Logger, maxDepth int) *Resolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Resolver{store: store, logger: logging.OrNop(logger), maxDepth: maxDepth}
}

// Resolve reports whether userID holds at least required on branchID.
func (r *Resolver) Resolve(ctx context.Context, userID int64, branchID string, required model.Level) bool {
	if required < model.LevelReader {
		required = model.LevelReader
	}
	level, ok := r.walk(ctx, userID, branchID, required)
	return ok && level >= required
}

// Effective returns the level userID effectively holds on branchID: the
// nearest grant on the branch or its inheriting ancestors, capped at reader
// once a non-FULL policy was crossed. ok is false when nothing applies.
func (r *Resolver) Effective(ctx context.Context, userID int64, branchID string) (model.Level, bool) {
	return r.walk(ctx, userID, branchID, model.LevelReader)
}

// walk climbs from branchID towards the root until it finds a direct grant.
// It stops early once a cap makes required unreachable.
func (r *Resolver) walk(ctx context.Context, userID int64, branchID string, required model.Level) (model.Level, bool) {
	log := r.logger.With(zap.Int64("user_id", userID), zap.String("branch_id", branchID))

	visited := make(map[string]bool)
	capped := false
	cur := branchID

	for depth := 0; ; depth++ {
		if err := ctx.Err(); err != nil {
			log.Debug("permission walk cancelled", zap.Error(err))
			return model.LevelNone, false
		}
		if depth > r.maxDepth {
			log.Warn("permission walk exceeded max depth", zap.Int("max_depth", r.maxDepth))
			return model.LevelNone, false
		}
		if visited[cur] {
			log.Warn("branch parent cycle", zap.String("at", cur))
			return model.LevelNone, false
		}
		visited[cur] = true

		level, ok, err := r.store.DirectGrant(ctx, userID, cur)
		if err != nil {
			log.Warn("lookup grant", zap.String("at", cur), zap.Error(err))
			return model.LevelNone, false
		}
		if ok {
			if capped && level > model.LevelReader {
				level = model.LevelReader
			}
			return level, true
		}

		policy, ok, err := r.store.BranchInheritance(ctx, cur)
		if err != nil {
			log.Warn("lookup inheritance", zap.String("at", cur), zap.Error(err))
			return model.LevelNone, false
		}
		if !ok || policy == model.InheritNone {
			return model.LevelNone, false
		}

		parent, ok, err := r.store.BranchParent(ctx, cur)
		if err != nil {
			log.Warn("lookup parent", zap.String("at", cur), zap.Error(err))
			return model.LevelNone, false
		}
		if !ok {
			return model.LevelNone, false
		}

		if policy != model.InheritFull {
			if required > model.LevelReader {
				return model.LevelNone, false
			}
			capped = true
		}
		cur = parent
	}
}
