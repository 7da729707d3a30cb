package store

import (
	"context"
	"os"
)

// Stats holds database statistics.
type Stats struct {
	DBPath        string      `json:"db_path" yaml:"db_path"`
	DBSizeBytes   int64       `json:"db_size_bytes" yaml:"db_size_bytes"`
	Branches      int         `json:"branches" yaml:"branches"`
	Messages      int         `json:"messages" yaml:"messages"`
	Tags          int         `json:"tags" yaml:"tags"`
	RelatedEdges  int         `json:"related_edges" yaml:"related_edges"`
	Reactions     int         `json:"reactions" yaml:"reactions"`
	Ratings       int         `json:"ratings" yaml:"ratings"`
	Subscriptions int         `json:"subscriptions" yaml:"subscriptions"`
	Chats         []ChatStats `json:"chats" yaml:"chats"`
}

// ChatStats holds per-chat counts.
type ChatStats struct {
	ChatID   int64 `json:"chat_id" yaml:"chat_id"`
	Branches int   `json:"branches" yaml:"branches"`
	Messages int   `json:"messages" yaml:"messages"`
}

// Stats returns database statistics.
func (s *SQLiteStore) Stats(ctx context.Context, dbPath string) (*Stats, error) {
	st := &Stats{DBPath: dbPath}

	if info, err := os.Stat(dbPath); err == nil {
		st.DBSizeBytes = info.Size()
	}

	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM branches WHERE status != 'deleted'`).Scan(&st.Branches)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&st.Messages)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM tags`).Scan(&st.Tags)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM related_tags`).Scan(&st.RelatedEdges)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_reactions`).Scan(&st.Reactions)
	s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM branch_subscriptions`).Scan(&st.Subscriptions)
	if ok, _ := s.HasRatings(ctx); ok {
		s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM message_valuations`).Scan(&st.Ratings)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT b.chat_id, COUNT(DISTINCT b.id), COUNT(m.id)
		FROM branches b
		LEFT JOIN messages m ON m.branch_id = b.id
		WHERE b.status != 'deleted'
		GROUP BY b.chat_id ORDER BY b.chat_id`)
	if err != nil {
		return st, err
	}
	defer rows.Close()

	for rows.Next() {
		var cs ChatStats
		rows.Scan(&cs.ChatID, &cs.Branches, &cs.Messages)
		st.Chats = append(st.Chats, cs)
	}

	return st, rows.Err()
}
