package store

import (
	"context"
	"database/sql"

	"github.com/rcliao/branch-memory/internal/model"
)

// MatchParams scopes a tag-based message lookup to one branch of a chat.
type MatchParams struct {
	ChatID    int64
	BranchID  string
	Tags      []string
	Threshold float64 // minimum exclusive edge strength, related lookups only
	Limit     int
}

// Match is a message found through tags, with the tags that connected it and
// the count used to rank it.
type Match struct {
	model.Message
	Matched []string `json:"matched_tags" yaml:"matched_tags"`
	Score   int      `json:"score" yaml:"score"`
}

// DirectMatches returns messages carrying at least one of the tags, ranked by
// the number of distinct matching tags, then recency.
func (s *SQLiteStore) DirectMatches(ctx context.Context, p MatchParams) ([]Match, error) {
	if len(p.Tags) == 0 {
		return nil, nil
	}
	args := []interface{}{p.ChatID, p.BranchID}
	for _, t := range p.Tags {
		args = append(args, t)
	}
	args = append(args, limitOr(p.Limit, 10))

	return s.queryMatches(ctx, `
		SELECT `+messageColumns+`,
		       GROUP_CONCAT(DISTINCT t.name) AS matched,
		       COUNT(DISTINCT mt.tag_id) AS score
		FROM messages m
		JOIN message_tags mt ON m.id = mt.message_id
		JOIN tags t ON mt.tag_id = t.id
		WHERE m.chat_id = ? AND m.branch_id = ?
		  AND t.name IN (`+placeholders(len(p.Tags))+`)
		GROUP BY m.id
		ORDER BY score DESC, m.created_at DESC, m.id DESC
		LIMIT ?`, args...)
}

// RelatedMatches returns messages carrying a tag that is a one-hop neighbour
// (edge strength above the threshold) of one of the tags, ranked by the number
// of distinct connecting edges, then recency.
func (s *SQLiteStore) RelatedMatches(ctx context.Context, p MatchParams) ([]Match, error) {
	if len(p.Tags) == 0 {
		return nil, nil
	}
	args := []interface{}{p.ChatID, p.BranchID}
	for _, t := range p.Tags {
		args = append(args, t)
	}
	args = append(args, p.Threshold, limitOr(p.Limit, 5))

	return s.queryMatches(ctx, `
		SELECT `+messageColumns+`,
		       GROUP_CONCAT(DISTINCT n.name) AS matched,
		       COUNT(DISTINCT rt.tag_id || ':' || rt.related_tag_id) AS score
		FROM messages m
		JOIN message_tags mt ON m.id = mt.message_id
		JOIN tags n ON n.id = mt.tag_id
		JOIN related_tags rt ON rt.related_tag_id = mt.tag_id
		JOIN tags q ON q.id = rt.tag_id
		WHERE m.chat_id = ? AND m.branch_id = ?
		  AND q.name IN (`+placeholders(len(p.Tags))+`)
		  AND rt.strength > ?
		GROUP BY m.id
		ORDER BY score DESC, m.created_at DESC, m.id DESC
		LIMIT ?`, args...)
}

func (s *SQLiteStore) queryMatches(ctx context.Context, query string, args ...interface{}) ([]Match, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var matched sql.NullString
		var score int
		m, err := scanMessage(rows, &matched, &score)
		if err != nil {
			return nil, err
		}
		matches = append(matches, Match{Message: m, Matched: splitTags(matched), Score: score})
	}
	return matches, rows.Err()
}

func limitOr(limit, def int) int {
	if limit <= 0 {
		return def
	}
	return limit
}
