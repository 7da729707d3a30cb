package store

import (
	"context"
	"time"

	"github.com/rcliao/branch-memory/internal/model"
)

// SignalParams scopes a notable-content signal query.
type SignalParams struct {
	ChatID int64 // 0 means all chats
	Since  time.Time
	Limit  int
}

// NoveltyRow is a message with its tag breadth counts.
type NoveltyRow struct {
	model.Message
	DistinctTags int
	TotalTags    int
}

// EngagementRow is a message with its reaction counts.
type EngagementRow struct {
	model.Message
	Reactors  int
	Reactions int
}

// RatingRow is a message with its rating aggregate.
type RatingRow struct {
	model.Message
	AvgRating   float64
	RatingCount int
}

// NovelMessages returns messages with at least two distinct tags and two tag
// attachments, ordered by distinct/total ratio, then recency.
func (s *SQLiteStore) NovelMessages(ctx context.Context, p SignalParams) ([]NoveltyRow, error) {
	where, args := windowFilter(p.ChatID, p.Since)
	args = append(args, limitOr(p.Limit, 20))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`,
		       COUNT(DISTINCT mt.tag_id) AS distinct_tags,
		       COUNT(mt.tag_id) AS total_tags
		FROM messages m
		JOIN message_tags mt ON m.id = mt.message_id
		WHERE `+where+`
		GROUP BY m.id
		HAVING COUNT(DISTINCT mt.tag_id) >= 2 AND COUNT(mt.tag_id) >= 2
		ORDER BY CAST(COUNT(DISTINCT mt.tag_id) AS REAL) / COUNT(mt.tag_id) DESC,
		         m.created_at DESC, m.id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NoveltyRow
	for rows.Next() {
		var r NoveltyRow
		m, err := scanMessage(rows, &r.DistinctTags, &r.TotalTags)
		if err != nil {
			return nil, err
		}
		r.Message = m
		out = append(out, r)
	}
	return out, rows.Err()
}

// EngagingMessages returns messages with reactions from at least two distinct
// users, ordered by total reactions, then distinct reactors.
func (s *SQLiteStore) EngagingMessages(ctx context.Context, p SignalParams) ([]EngagementRow, error) {
	where, args := windowFilter(p.ChatID, p.Since)
	args = append(args, limitOr(p.Limit, 20))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`,
		       COUNT(DISTINCT r.user_id) AS reactors,
		       COUNT(r.id) AS reactions
		FROM messages m
		JOIN message_reactions r ON m.id = r.message_id
		WHERE `+where+`
		GROUP BY m.id
		HAVING COUNT(DISTINCT r.user_id) >= 2
		ORDER BY reactions DESC, reactors DESC, m.created_at DESC, m.id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []EngagementRow
	for rows.Next() {
		var r EngagementRow
		m, err := scanMessage(rows, &r.Reactors, &r.Reactions)
		if err != nil {
			return nil, err
		}
		r.Message = m
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasRatings reports whether the optional ratings table exists.
func (s *SQLiteStore) HasRatings(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'message_valuations'`).Scan(&n)
	return n > 0, err
}

// RatedMessages returns messages with an average rating of at least 0.5,
// ordered by average, then rating count. Callers must probe HasRatings first.
func (s *SQLiteStore) RatedMessages(ctx context.Context, p SignalParams) ([]RatingRow, error) {
	where, args := windowFilter(p.ChatID, p.Since)
	args = append(args, limitOr(p.Limit, 20))

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`,
		       AVG(v.score) AS avg_rating,
		       COUNT(v.id) AS rating_count
		FROM messages m
		JOIN message_valuations v ON m.id = v.message_id
		WHERE `+where+`
		GROUP BY m.id
		HAVING AVG(v.score) >= 0.5 AND COUNT(v.id) >= 1
		ORDER BY avg_rating DESC, rating_count DESC, m.created_at DESC, m.id DESC
		LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RatingRow
	for rows.Next() {
		var r RatingRow
		m, err := scanMessage(rows, &r.AvgRating, &r.RatingCount)
		if err != nil {
			return nil, err
		}
		r.Message = m
		out = append(out, r)
	}
	return out, rows.Err()
}

// RaiseScores lifts a message's novelty and potential scores to at least the
// given floors. Scores never decrease.
func (s *SQLiteStore) RaiseScores(ctx context.Context, messageID string, novelty, potential float64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages
		 SET novelty_score = MAX(COALESCE(novelty_score, 0), ?),
		     potential_score = MAX(COALESCE(potential_score, 0), ?)
		 WHERE id = ?`, novelty, potential, messageID)
	return err
}
