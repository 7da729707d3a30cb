package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rcliao/branch-memory/internal/model"
)

// Grant creates, replaces or removes a direct permission of a user on a branch.
func (s *SQLiteStore) Grant(ctx context.Context, p GrantParams) (*model.Grant, error) {
	if _, err := s.GetBranch(ctx, p.BranchID); err != nil {
		return nil, err
	}

	if p.Remove {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM branch_permissions WHERE branch_id = ? AND user_id = ?`, p.BranchID, p.UserID)
		if err != nil {
			return nil, err
		}
		return &model.Grant{BranchID: p.BranchID, UserID: p.UserID, Level: model.LevelNone}, nil
	}

	if p.Level < model.LevelReader || p.Level > model.LevelOwner {
		return nil, fmt.Errorf("invalid permission level %s", p.Level)
	}

	now := s.now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO branch_permissions (branch_id, user_id, level, granted_by, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (branch_id, user_id) DO UPDATE SET level = excluded.level, granted_by = excluded.granted_by`,
		p.BranchID, p.UserID, int(p.Level), p.GrantedBy, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("grant: %w", err)
	}

	return &model.Grant{
		BranchID:  p.BranchID,
		UserID:    p.UserID,
		Level:     p.Level,
		GrantedBy: p.GrantedBy,
		CreatedAt: now,
	}, nil
}

// DirectGrant returns the level directly granted to a user on a branch. ok is false when there is none.
func (s *SQLiteStore) DirectGrant(ctx context.Context, userID int64, branchID string) (model.Level, bool, error) {
	var level int
	err := s.db.QueryRowContext(ctx,
		`SELECT level FROM branch_permissions WHERE branch_id = ? AND user_id = ?`,
		branchID, userID).Scan(&level)
	if errors.Is(err, sql.ErrNoRows) {
		return model.LevelNone, false, nil
	}
	if err != nil {
		return model.LevelNone, false, err
	}
	return model.Level(level), true, nil
}

// ListGrants returns all direct grants of a branch, highest level first.
func (s *SQLiteStore) ListGrants(ctx context.Context, branchID string) ([]model.Grant, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT branch_id, user_id, level, granted_by, created_at FROM branch_permissions
		 WHERE branch_id = ? ORDER BY level DESC, user_id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grants []model.Grant
	for rows.Next() {
		var g model.Grant
		var level int
		var createdAt string
		if err := rows.Scan(&g.BranchID, &g.UserID, &level, &g.GrantedBy, &createdAt); err != nil {
			return nil, err
		}
		g.Level = model.Level(level)
		g.CreatedAt = parseTime(createdAt)
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// Subscribe adds or removes a branch subscription.
func (s *SQLiteStore) Subscribe(ctx context.Context, branchID string, userID int64, remove bool) error {
	if remove {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM branch_subscriptions WHERE branch_id = ? AND user_id = ?`, branchID, userID)
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO branch_subscriptions (branch_id, user_id, created_at) VALUES (?, ?, ?)`,
		branchID, userID, formatTime(s.now()))
	return err
}

// Subscribers returns the users subscribed to a branch.
func (s *SQLiteStore) Subscribers(ctx context.Context, branchID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM branch_subscriptions WHERE branch_id = ? ORDER BY user_id`, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}
