package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/rcliao/branch-memory/internal/model"
)

// PutMessage stores a message in a branch.
func (s *SQLiteStore) PutMessage(ctx context.Context, p PutMessageParams) (*model.Message, error) {
	if strings.TrimSpace(p.Content) == "" {
		return nil, fmt.Errorf("content is required")
	}

	branch, err := s.GetBranch(ctx, p.BranchID)
	if err != nil {
		return nil, err
	}
	if branch.ChatID != p.ChatID {
		return nil, fmt.Errorf("branch %s belongs to another chat", branch.Key)
	}

	created := p.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	created = parseTime(formatTime(created))

	id := s.newID()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, branch_id, user_id, content, language, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, p.ChatID, p.BranchID, p.UserID, p.Content, p.Language, formatTime(created))
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}

	return &model.Message{
		ID:        id,
		ChatID:    p.ChatID,
		BranchID:  p.BranchID,
		UserID:    p.UserID,
		Content:   p.Content,
		Language:  p.Language,
		CreatedAt: created,
	}, nil
}

// GetMessage returns a message with its tags.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*model.Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages m WHERE m.id = ?`, id)
	m, err := scanMessage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("message %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}

	m.Tags, err = s.MessageTags(ctx, id)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// History returns the latest messages of a branch in chronological order.
func (s *SQLiteStore) History(ctx context.Context, p HistoryParams) ([]model.Message, error) {
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages m
		 WHERE m.chat_id = ? AND m.branch_id = ?
		 ORDER BY m.created_at DESC, m.id DESC
		 LIMIT ?`, p.ChatID, p.BranchID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// AddReaction records an emoji reaction of a user to a message.
func (s *SQLiteStore) AddReaction(ctx context.Context, r model.Reaction) error {
	if r.Emoji == "" {
		return fmt.Errorf("emoji is required")
	}
	created := r.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO message_reactions (message_id, user_id, emoji, created_at) VALUES (?, ?, ?, ?)`,
		r.MessageID, r.UserID, r.Emoji, formatTime(created))
	if err != nil {
		return fmt.Errorf("insert reaction: %w", err)
	}
	return nil
}

// AddRating records a user's rating (0..1) of a message. The ratings table is
// optional and created on first use.
func (s *SQLiteStore) AddRating(ctx context.Context, messageID string, userID int64, score float64) error {
	if score < 0 || score > 1 {
		return fmt.Errorf("rating %v out of range [0, 1]", score)
	}
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS message_valuations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL REFERENCES messages(id),
			user_id    INTEGER NOT NULL,
			score      REAL NOT NULL,
			created_at TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_valuations_message ON message_valuations(message_id);`)
	if err != nil {
		return fmt.Errorf("create ratings table: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO message_valuations (message_id, user_id, score, created_at) VALUES (?, ?, ?, ?)`,
		messageID, userID, score, formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("insert rating: %w", err)
	}
	return nil
}

// AddTokenUsage adds tokens to a user's usage for a day (YYYY-MM-DD).
func (s *SQLiteStore) AddTokenUsage(ctx context.Context, chatID, userID int64, day string, tokens int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_token_usage (chat_id, user_id, day, tokens_used) VALUES (?, ?, ?, ?)
		 ON CONFLICT (chat_id, user_id, day) DO UPDATE SET tokens_used = tokens_used + excluded.tokens_used`,
		chatID, userID, day, tokens)
	return err
}

// TokenUsage returns the tokens a user consumed on a day.
func (s *SQLiteStore) TokenUsage(ctx context.Context, chatID, userID int64, day string) (int, error) {
	var used int
	err := s.db.QueryRowContext(ctx,
		`SELECT tokens_used FROM daily_token_usage WHERE chat_id = ? AND user_id = ? AND day = ?`,
		chatID, userID, day).Scan(&used)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return used, err
}
