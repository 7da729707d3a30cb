package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// EnsureTag returns the ID of the named tag, creating the row if needed.
func (s *SQLiteStore) EnsureTag(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("tag name is required")
	}
	if _, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
		return 0, fmt.Errorf("insert tag %q: %w", name, err)
	}
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("lookup tag %q: %w", name, err)
	}
	return id, nil
}

// LinkMessageTag attaches a tag to a message. Duplicate links are no-ops.
func (s *SQLiteStore) LinkMessageTag(ctx context.Context, messageID string, tagID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO message_tags (message_id, tag_id) VALUES (?, ?)`, messageID, tagID)
	if err != nil {
		return fmt.Errorf("link tag %d: %w", tagID, err)
	}
	return nil
}

// BumpRelated adds step to the directional edge strength from tagID to relatedID.
// A new edge starts at step.
func (s *SQLiteStore) BumpRelated(ctx context.Context, tagID, relatedID int64, step float64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO related_tags (tag_id, related_tag_id, strength) VALUES (?, ?, ?)
		 ON CONFLICT (tag_id, related_tag_id) DO UPDATE SET strength = strength + excluded.strength`,
		tagID, relatedID, step)
	if err != nil {
		return fmt.Errorf("bump related %d->%d: %w", tagID, relatedID, err)
	}
	return nil
}

// RelatedStrength returns the directional edge strength between two named tags (0 if absent).
func (s *SQLiteStore) RelatedStrength(ctx context.Context, tag, related string) (float64, error) {
	var strength float64
	err := s.db.QueryRowContext(ctx,
		`SELECT rt.strength FROM related_tags rt
		 JOIN tags a ON a.id = rt.tag_id
		 JOIN tags b ON b.id = rt.related_tag_id
		 WHERE a.name = ? AND b.name = ?`, tag, related).Scan(&strength)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return strength, err
}

// MessageTags returns the tag names attached to a message.
func (s *SQLiteStore) MessageTags(ctx context.Context, messageID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT t.name FROM message_tags mt JOIN tags t ON t.id = mt.tag_id
		 WHERE mt.message_id = ? ORDER BY t.name`, messageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// TagIDs resolves tag names to IDs. Unknown names are omitted.
func (s *SQLiteStore) TagIDs(ctx context.Context, names []string) (map[string]int64, error) {
	ids := map[string]int64{}
	if len(names) == 0 {
		return ids, nil
	}
	args := make([]interface{}, len(names))
	for i, n := range names {
		args[i] = n
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, id FROM tags WHERE name IN (`+placeholders(len(names))+`)`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var id int64
		if err := rows.Scan(&name, &id); err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, rows.Err()
}

// TagCount is a tag with its usage count in a chat.
type TagCount struct {
	ID     int64   `json:"id" yaml:"id"`
	Name   string  `json:"name" yaml:"name"`
	Count  int     `json:"count" yaml:"count"`
	Weight float64 `json:"weight" yaml:"weight"`
}

// TopTags returns the most used tags of a chat (all chats when chatID is 0).
func (s *SQLiteStore) TopTags(ctx context.Context, chatID int64, limit int) ([]TagCount, error) {
	if limit <= 0 {
		limit = 10
	}
	where := "1 = 1"
	args := []interface{}{}
	if chatID != 0 {
		where = "m.chat_id = ?"
		args = append(args, chatID)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, COUNT(mt.message_id) AS cnt, t.weight
		 FROM tags t
		 JOIN message_tags mt ON t.id = mt.tag_id
		 JOIN messages m ON mt.message_id = m.id
		 WHERE `+where+`
		 GROUP BY t.id
		 ORDER BY cnt DESC, t.name
		 LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tags []TagCount
	for rows.Next() {
		var tc TagCount
		if err := rows.Scan(&tc.ID, &tc.Name, &tc.Count, &tc.Weight); err != nil {
			return nil, err
		}
		tags = append(tags, tc)
	}
	return tags, rows.Err()
}

// windowFilter builds the shared created_at / chat predicate over messages aliased m.
func windowFilter(chatID int64, since time.Time) (string, []interface{}) {
	where := "m.created_at >= ?"
	args := []interface{}{formatTime(since)}
	if chatID != 0 {
		where += " AND m.chat_id = ?"
		args = append(args, chatID)
	}
	return where, args
}

// TagDocCounts returns, per tag ID, the number of distinct messages since the
// given time that carry the tag. chatID 0 means all chats.
func (s *SQLiteStore) TagDocCounts(ctx context.Context, chatID int64, since time.Time) (map[int64]int, error) {
	where, args := windowFilter(chatID, since)
	rows, err := s.db.QueryContext(ctx,
		`SELECT mt.tag_id, COUNT(DISTINCT mt.message_id)
		 FROM message_tags mt
		 JOIN messages m ON mt.message_id = m.id
		 WHERE `+where+`
		 GROUP BY mt.tag_id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := map[int64]int{}
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// TaggedDocCount returns the number of distinct tagged messages since the given time.
func (s *SQLiteStore) TaggedDocCount(ctx context.Context, chatID int64, since time.Time) (int, error) {
	where, args := windowFilter(chatID, since)
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT mt.message_id)
		 FROM message_tags mt
		 JOIN messages m ON mt.message_id = m.id
		 WHERE `+where, args...).Scan(&n)
	return n, err
}

// MessageCount returns the number of messages (all chats) created since the given time.
func (s *SQLiteStore) MessageCount(ctx context.Context, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE created_at >= ?`, formatTime(since)).Scan(&n)
	return n, err
}

// UpdateTagWeights persists computed weights and their calculation time.
func (s *SQLiteStore) UpdateTagWeights(ctx context.Context, weights map[int64]float64, at time.Time) error {
	if len(weights) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE tags SET weight = ?, last_calculated = ? WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	ts := formatTime(at)
	for id, w := range weights {
		if _, err := stmt.ExecContext(ctx, w, ts, id); err != nil {
			return fmt.Errorf("update weight of tag %d: %w", id, err)
		}
	}
	return tx.Commit()
}
