package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rcliao/branch-memory/internal/model"
)

var branchKeyRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// NormalizeBranchKey validates a branch key and returns its stored upper-case form.
func NormalizeBranchKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("branch key is required")
	}
	if !branchKeyRegex.MatchString(key) {
		return "", fmt.Errorf("branch key %q must contain only letters, numbers, underscores and hyphens", key)
	}
	return strings.ToUpper(key), nil
}

const branchColumns = `id, chat_id, key, name, description, parent_id, sort_order,
	access_type, inheritance, status, created_by, created_at`

func scanBranch(row scanner) (model.Branch, error) {
	var b model.Branch
	var parentID, inheritance sql.NullString
	var access, status, createdAt string

	err := row.Scan(&b.ID, &b.ChatID, &b.Key, &b.Name, &b.Description, &parentID, &b.SortOrder,
		&access, &inheritance, &status, &b.CreatedBy, &createdAt)
	if err != nil {
		return b, err
	}
	b.ParentID = parentID.String
	b.Access = model.Access(access)
	b.Inheritance = model.Inheritance(inheritance.String)
	b.Status = model.Status(status)
	b.CreatedAt = parseTime(createdAt)
	return b, nil
}

// CreateBranch creates a branch and grants its creator owner access.
func (s *SQLiteStore) CreateBranch(ctx context.Context, p CreateBranchParams) (*model.Branch, error) {
	key, err := NormalizeBranchKey(p.Key)
	if err != nil {
		return nil, err
	}
	access := p.Access
	if access == "" {
		access = model.AccessPublic
	}
	if !model.ValidAccess[access] {
		return nil, fmt.Errorf("invalid access type %q (valid: public, protected, private)", access)
	}
	if p.Inheritance != "" && !model.ValidInheritance[p.Inheritance] {
		return nil, fmt.Errorf("invalid inheritance %q (valid: NONE, READ, FULL)", p.Inheritance)
	}
	name := p.Name
	if name == "" {
		name = "Branch " + key
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var exists int
	tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM branches WHERE chat_id = ? AND key = ?`, p.ChatID, key).Scan(&exists)
	if exists > 0 {
		return nil, fmt.Errorf("branch %s: %w", key, ErrExists)
	}

	var parent interface{}
	var sortOrder int
	if p.ParentID != "" {
		var parentChat int64
		err := tx.QueryRowContext(ctx, `SELECT chat_id FROM branches WHERE id = ?`, p.ParentID).Scan(&parentChat)
		if err != nil {
			return nil, fmt.Errorf("parent branch %s: %w", p.ParentID, ErrNotFound)
		}
		if parentChat != p.ChatID {
			return nil, fmt.Errorf("parent branch %s belongs to another chat", p.ParentID)
		}
		parent = p.ParentID
		tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM branches WHERE parent_id = ?`, p.ParentID).Scan(&sortOrder)
	} else {
		tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(sort_order), 0) + 1 FROM branches WHERE chat_id = ? AND parent_id IS NULL`,
			p.ChatID).Scan(&sortOrder)
	}

	var inheritance interface{}
	if p.Inheritance != "" {
		inheritance = string(p.Inheritance)
	}

	now := s.now().UTC()
	id := s.newID()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO branches (id, chat_id, key, name, description, parent_id, sort_order,
		                       access_type, inheritance, status, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 'open', ?, ?)`,
		id, p.ChatID, key, name, p.Description, parent, sortOrder,
		string(access), inheritance, p.CreatedBy, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("insert branch: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO branch_permissions (branch_id, user_id, level, granted_by, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		id, p.CreatedBy, int(model.LevelOwner), p.CreatedBy, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("grant owner: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return &model.Branch{
		ID:          id,
		ChatID:      p.ChatID,
		Key:         key,
		Name:        name,
		Description: p.Description,
		ParentID:    p.ParentID,
		SortOrder:   sortOrder,
		Access:      access,
		Inheritance: p.Inheritance,
		Status:      model.StatusOpen,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   parseTime(formatTime(now)),
	}, nil
}

// GetBranch returns a branch by ID.
func (s *SQLiteStore) GetBranch(ctx context.Context, id string) (*model.Branch, error) {
	return getBranch(ctx, s.db, id)
}

func getBranch(ctx context.Context, q querier, id string) (*model.Branch, error) {
	row := q.QueryRowContext(ctx, `SELECT `+branchColumns+` FROM branches WHERE id = ?`, id)
	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("branch %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetBranchByKey returns a branch by its chat-scoped key.
func (s *SQLiteStore) GetBranchByKey(ctx context.Context, chatID int64, key string) (*model.Branch, error) {
	norm, err := NormalizeBranchKey(key)
	if err != nil {
		return nil, err
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE chat_id = ? AND key = ?`, chatID, norm)
	b, err := scanBranch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("branch %s: %w", norm, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// ListBranches returns all branches of a chat ordered for tree rendering.
func (s *SQLiteStore) ListBranches(ctx context.Context, chatID int64) ([]model.Branch, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+branchColumns+` FROM branches WHERE chat_id = ?
		 ORDER BY COALESCE(parent_id, ''), sort_order, key`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var branches []model.Branch
	for rows.Next() {
		b, err := scanBranch(rows)
		if err != nil {
			return nil, err
		}
		branches = append(branches, b)
	}
	return branches, rows.Err()
}

// BranchParent returns the parent ID of a branch. ok is false for roots and unknown branches.
func (s *SQLiteStore) BranchParent(ctx context.Context, branchID string) (string, bool, error) {
	return branchParent(ctx, s.db, branchID)
}

func branchParent(ctx context.Context, q querier, branchID string) (string, bool, error) {
	var parent sql.NullString
	err := q.QueryRowContext(ctx, `SELECT parent_id FROM branches WHERE id = ?`, branchID).Scan(&parent)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return parent.String, parent.Valid && parent.String != "", nil
}

// BranchInheritance returns the inheritance policy attached to a branch. ok is false when none is set.
func (s *SQLiteStore) BranchInheritance(ctx context.Context, branchID string) (model.Inheritance, bool, error) {
	var policy sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT inheritance FROM branches WHERE id = ?`, branchID).Scan(&policy)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !policy.Valid || policy.String == "" {
		return "", false, nil
	}
	return model.Inheritance(policy.String), true, nil
}

// UpdateBranch applies a partial update. Parent changes are rejected when they
// would create a cycle; the check and the write share one transaction.
func (s *SQLiteStore) UpdateBranch(ctx context.Context, id string, p UpdateBranchParams) (*model.Branch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Take the write lock before reading the ancestor chain so concurrent
	// parent edits are serialized.
	if _, err := tx.ExecContext(ctx, `UPDATE branches SET sort_order = sort_order WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("lock branch: %w", err)
	}

	current, err := getBranch(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	var sets []string
	var args []interface{}

	if p.Key != nil {
		key, err := NormalizeBranchKey(*p.Key)
		if err != nil {
			return nil, err
		}
		if key != current.Key {
			var taken int
			err := tx.QueryRowContext(ctx,
				`SELECT COUNT(*) FROM branches WHERE chat_id = ? AND key = ?`, current.ChatID, key).Scan(&taken)
			if err != nil {
				return nil, fmt.Errorf("check branch key %s: %w", key, err)
			}
			if taken > 0 {
				return nil, fmt.Errorf("branch %s: %w", key, ErrExists)
			}
			sets = append(sets, "key = ?")
			args = append(args, key)
		}
	}
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *p.Name)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Access != nil {
		if !model.ValidAccess[*p.Access] {
			return nil, fmt.Errorf("invalid access type %q (valid: public, protected, private)", *p.Access)
		}
		sets = append(sets, "access_type = ?")
		args = append(args, string(*p.Access))
	}
	if p.Inheritance != nil {
		if *p.Inheritance == "" {
			sets = append(sets, "inheritance = NULL")
		} else {
			if !model.ValidInheritance[*p.Inheritance] {
				return nil, fmt.Errorf("invalid inheritance %q (valid: NONE, READ, FULL)", *p.Inheritance)
			}
			sets = append(sets, "inheritance = ?")
			args = append(args, string(*p.Inheritance))
		}
	}
	if p.ParentID != nil && *p.ParentID != current.ParentID {
		if *p.ParentID == "" {
			sets = append(sets, "parent_id = NULL")
		} else {
			if err := checkParent(ctx, tx, current, *p.ParentID); err != nil {
				return nil, err
			}
			sets = append(sets, "parent_id = ?")
			args = append(args, *p.ParentID)
		}
	}

	if len(sets) == 0 {
		return nil, fmt.Errorf("no fields to update")
	}

	args = append(args, id)
	_, err = tx.ExecContext(ctx,
		`UPDATE branches SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("update branch: %w", err)
	}

	updated, err := getBranch(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit branch update: %w", err)
	}
	return updated, nil
}

// checkParent rejects a new parent that is the branch itself, one of its
// descendants, or a branch of another chat.
func checkParent(ctx context.Context, q querier, branch *model.Branch, parentID string) error {
	parent, err := getBranch(ctx, q, parentID)
	if err != nil {
		return fmt.Errorf("parent: %w", err)
	}
	if parent.ChatID != branch.ChatID {
		return fmt.Errorf("parent branch %s belongs to another chat", parentID)
	}

	visited := map[string]bool{}
	cur := parentID
	for cur != "" {
		if cur == branch.ID {
			return fmt.Errorf("set parent of %s to %s: %w", branch.Key, parent.Key, ErrCycle)
		}
		if visited[cur] {
			// Existing data already contains a loop; refuse to extend it.
			return fmt.Errorf("set parent of %s to %s: %w", branch.Key, parent.Key, ErrCycle)
		}
		visited[cur] = true

		next, ok, err := branchParent(ctx, q, cur)
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		cur = next
	}
	return nil
}

// SetStatus moves a branch to a soft lifecycle state. Branches are never hard-deleted.
func (s *SQLiteStore) SetStatus(ctx context.Context, id string, status model.Status) error {
	if !model.ValidStatuses[status] {
		return fmt.Errorf("invalid status %q (valid: open, closed, archived, deleted)", status)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE branches SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("branch %s: %w", id, ErrNotFound)
	}
	return nil
}
