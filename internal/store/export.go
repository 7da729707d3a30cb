package store

import (
	"context"
	"fmt"

	"github.com/rcliao/branch-memory/internal/model"
)

// ChatExport is a portable snapshot of one chat.
type ChatExport struct {
	ChatID   int64           `json:"chat_id" yaml:"chat_id"`
	Branches []model.Branch  `json:"branches" yaml:"branches"`
	Grants   []model.Grant   `json:"grants" yaml:"grants"`
	Messages []model.Message `json:"messages" yaml:"messages"`
}

// ExportChat returns all branches, grants and messages (with tags) of a chat.
func (s *SQLiteStore) ExportChat(ctx context.Context, chatID int64) (*ChatExport, error) {
	branches, err := s.ListBranches(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	exp := &ChatExport{ChatID: chatID, Branches: branches}

	for _, b := range branches {
		grants, err := s.ListGrants(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("list grants of %s: %w", b.Key, err)
		}
		exp.Grants = append(exp.Grants, grants...)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages m WHERE m.chat_id = ? ORDER BY m.created_at, m.id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		exp.Messages = append(exp.Messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	rows.Close()

	for i := range exp.Messages {
		exp.Messages[i].Tags, err = s.MessageTags(ctx, exp.Messages[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return exp, nil
}

// ImportChat restores an export. Rows whose IDs already exist are skipped, so
// importing the same export twice is a no-op. Returns the number of messages inserted.
func (s *SQLiteStore) ImportChat(ctx context.Context, exp *ChatExport) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	for _, b := range parentsFirst(exp.Branches) {
		var parent, inheritance interface{}
		if b.ParentID != "" {
			parent = b.ParentID
		}
		if b.Inheritance != "" {
			inheritance = string(b.Inheritance)
		}
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO branches (id, chat_id, key, name, description, parent_id, sort_order,
			                                 access_type, inheritance, status, created_by, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			b.ID, exp.ChatID, b.Key, b.Name, b.Description, parent, b.SortOrder,
			string(b.Access), inheritance, string(b.Status), b.CreatedBy, formatTime(b.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("import branch %s: %w", b.Key, err)
		}
	}

	for _, g := range exp.Grants {
		_, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO branch_permissions (branch_id, user_id, level, granted_by, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			g.BranchID, g.UserID, int(g.Level), g.GrantedBy, formatTime(g.CreatedAt))
		if err != nil {
			return 0, fmt.Errorf("import grant: %w", err)
		}
	}

	imported := 0
	for _, m := range exp.Messages {
		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO messages (id, chat_id, branch_id, user_id, content, language, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ID, exp.ChatID, m.BranchID, m.UserID, m.Content, m.Language, formatTime(m.CreatedAt))
		if err != nil {
			return imported, fmt.Errorf("import message %s: %w", m.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		imported++

		for _, name := range m.Tags {
			if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
				return imported, err
			}
			_, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO message_tags (message_id, tag_id)
				 SELECT ?, id FROM tags WHERE name = ?`, m.ID, name)
			if err != nil {
				return imported, err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return imported, nil
}

// parentsFirst orders branches so every parent precedes its children.
func parentsFirst(branches []model.Branch) []model.Branch {
	byID := make(map[string]model.Branch, len(branches))
	for _, b := range branches {
		byID[b.ID] = b
	}
	placed := map[string]bool{}
	out := make([]model.Branch, 0, len(branches))

	var place func(b model.Branch, depth int)
	place = func(b model.Branch, depth int) {
		if placed[b.ID] || depth > len(branches) {
			return
		}
		if p, ok := byID[b.ParentID]; ok {
			place(p, depth+1)
		}
		placed[b.ID] = true
		out = append(out, b)
	}
	for _, b := range branches {
		place(b, 0)
	}
	return out
}
