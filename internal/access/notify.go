package access

import (
	"context"
	"fmt"

	"github.com/rcliao/branch-memory/internal/model"
)

// SubscriberLister lists the users subscribed to a branch.
type SubscriberLister interface {
	Subscribers(ctx context.Context, branchID string) ([]int64, error)
}

// NotifyTargets returns the subscribers of branchID, other than authorID,
// that can still read the branch.
func (r *Resolver) NotifyTargets(ctx context.Context, subs SubscriberLister, branchID string, authorID int64) ([]int64, error) {
	users, err := subs.Subscribers(ctx, branchID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	var targets []int64
	for _, u := range users {
		if u == authorID {
			continue
		}
		if r.Resolve(ctx, u, branchID, model.LevelReader) {
			targets = append(targets, u)
		}
	}
	return targets, nil
}
