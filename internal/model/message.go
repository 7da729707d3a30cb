package model

import "time"

// Message is a stored chat message. Content never changes after insert;
// the two scores only ever increase.
type Message struct {
	ID             string    `json:"id" yaml:"id"`
	ChatID         int64     `json:"chat_id" yaml:"chat_id"`
	BranchID       string    `json:"branch_id" yaml:"branch_id"`
	UserID         int64     `json:"user_id" yaml:"user_id"`
	Content        string    `json:"content" yaml:"content"`
	Language       string    `json:"language,omitempty" yaml:"language,omitempty"`
	CreatedAt      time.Time `json:"created_at" yaml:"created_at"`
	NoveltyScore   float64   `json:"novelty_score" yaml:"novelty_score"`
	PotentialScore float64   `json:"potential_score" yaml:"potential_score"`
	Tags           []string  `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Tag is a normalized topical label.
type Tag struct {
	ID             int64      `json:"id" yaml:"id"`
	Name           string     `json:"name" yaml:"name"`
	Weight         float64    `json:"weight" yaml:"weight"`
	LastCalculated *time.Time `json:"last_calculated,omitempty" yaml:"last_calculated,omitempty"`
}

// RelatedTag is a directional co-occurrence edge between two tags.
type RelatedTag struct {
	TagID        int64   `json:"tag_id" yaml:"tag_id"`
	RelatedTagID int64   `json:"related_tag_id" yaml:"related_tag_id"`
	Strength     float64 `json:"strength" yaml:"strength"`
}

// Reaction is an emoji reaction of a user to a message.
type Reaction struct {
	MessageID string    `json:"message_id" yaml:"message_id"`
	UserID    int64     `json:"user_id" yaml:"user_id"`
	Emoji     string    `json:"emoji" yaml:"emoji"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Turn roles.
const (
	RoleSystem = "system"
	RoleUser   = "user"
)

// Turn is one prompt message sent to a completion backend.
type Turn struct {
	Role    string `json:"role" yaml:"role"`
	Content string `json:"content" yaml:"content"`
}
