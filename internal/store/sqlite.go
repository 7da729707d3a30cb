package store

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/rcliao/branch-memory/internal/model"
)

// timeLayout is fixed-width so stored timestamps compare lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	mu      sync.Mutex
	entropy *rand.Rand
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=foreign_keys(on)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		now:     time.Now,
		entropy: rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// SetClock replaces the store clock. Used by tests to place messages in time.
func (s *SQLiteStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *SQLiteStore) newID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy).String()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS branches (
		id          TEXT PRIMARY KEY,
		chat_id     INTEGER NOT NULL,
		key         TEXT NOT NULL,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		parent_id   TEXT REFERENCES branches(id),
		sort_order  INTEGER NOT NULL DEFAULT 0,
		access_type TEXT NOT NULL DEFAULT 'public',
		inheritance TEXT,
		status      TEXT NOT NULL DEFAULT 'open',
		created_by  INTEGER NOT NULL,
		created_at  TEXT NOT NULL,
		UNIQUE (chat_id, key)
	);
	CREATE INDEX IF NOT EXISTS idx_branches_parent ON branches(parent_id);

	CREATE TABLE IF NOT EXISTS branch_permissions (
		branch_id  TEXT NOT NULL REFERENCES branches(id),
		user_id    INTEGER NOT NULL,
		level      INTEGER NOT NULL,
		granted_by INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (branch_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		chat_id         INTEGER NOT NULL,
		branch_id       TEXT NOT NULL REFERENCES branches(id),
		user_id         INTEGER NOT NULL,
		content         TEXT NOT NULL,
		language        TEXT NOT NULL DEFAULT '',
		created_at      TEXT NOT NULL,
		novelty_score   REAL,
		potential_score REAL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_scope ON messages(chat_id, branch_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at DESC);

	CREATE TABLE IF NOT EXISTS tags (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		name            TEXT NOT NULL UNIQUE,
		weight          REAL NOT NULL DEFAULT 1.0,
		last_calculated TEXT
	);

	CREATE TABLE IF NOT EXISTS message_tags (
		message_id TEXT NOT NULL REFERENCES messages(id),
		tag_id     INTEGER NOT NULL REFERENCES tags(id),
		PRIMARY KEY (message_id, tag_id)
	);
	CREATE INDEX IF NOT EXISTS idx_message_tags_tag ON message_tags(tag_id);

	CREATE TABLE IF NOT EXISTS related_tags (
		tag_id         INTEGER NOT NULL REFERENCES tags(id),
		related_tag_id INTEGER NOT NULL REFERENCES tags(id),
		strength       REAL NOT NULL,
		PRIMARY KEY (tag_id, related_tag_id)
	);
	CREATE INDEX IF NOT EXISTS idx_related_tags_related ON related_tags(related_tag_id);

	CREATE TABLE IF NOT EXISTS message_reactions (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		message_id TEXT NOT NULL REFERENCES messages(id),
		user_id    INTEGER NOT NULL,
		emoji      TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reactions_message ON message_reactions(message_id);

	CREATE TABLE IF NOT EXISTS branch_subscriptions (
		branch_id  TEXT NOT NULL REFERENCES branches(id),
		user_id    INTEGER NOT NULL,
		created_at TEXT NOT NULL,
		PRIMARY KEY (branch_id, user_id)
	);

	CREATE TABLE IF NOT EXISTS daily_token_usage (
		chat_id     INTEGER NOT NULL,
		user_id     INTEGER NOT NULL,
		day         TEXT NOT NULL,
		tokens_used INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (chat_id, user_id, day)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(v string) time.Time {
	t, err := time.Parse(timeLayout, v)
	if err != nil {
		t, _ = time.Parse(time.RFC3339, v)
	}
	return t
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const messageColumns = `m.id, m.chat_id, m.branch_id, m.user_id, m.content, m.language,
	m.created_at, m.novelty_score, m.potential_score`

// scanMessage scans messageColumns followed by any extra destinations.
func scanMessage(row scanner, extra ...interface{}) (model.Message, error) {
	var m model.Message
	var createdAt string
	var novelty, potential sql.NullFloat64

	dest := []interface{}{
		&m.ID, &m.ChatID, &m.BranchID, &m.UserID, &m.Content, &m.Language,
		&createdAt, &novelty, &potential,
	}
	dest = append(dest, extra...)
	if err := row.Scan(dest...); err != nil {
		return m, err
	}

	m.CreatedAt = parseTime(createdAt)
	m.NoveltyScore = novelty.Float64
	m.PotentialScore = potential.Float64
	return m, nil
}

func splitTags(v sql.NullString) []string {
	if !v.Valid || v.String == "" {
		return nil
	}
	return strings.Split(v.String, ",")
}
