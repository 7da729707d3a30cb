package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rcliao/branch-memory/internal/model"
)

var testBase = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewSQLiteStore(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.SetClock(func() time.Time { return testBase })
	t.Cleanup(func() { s.Close() })
	return s
}

func mustBranch(t *testing.T, s *SQLiteStore, chatID int64, key, parentID string) *model.Branch {
	t.Helper()
	b, err := s.CreateBranch(context.Background(), CreateBranchParams{
		ChatID: chatID, Key: key, ParentID: parentID, CreatedBy: 1,
	})
	if err != nil {
		t.Fatalf("create branch %s: %v", key, err)
	}
	return b
}

// mustMessage stores a message offset minutes after testBase and attaches tags.
func mustMessage(t *testing.T, s *SQLiteStore, b *model.Branch, offset int, content string, tags ...string) *model.Message {
	t.Helper()
	ctx := context.Background()
	m, err := s.PutMessage(ctx, PutMessageParams{
		ChatID: b.ChatID, BranchID: b.ID, UserID: 7, Content: content,
		CreatedAt: testBase.Add(time.Duration(offset) * time.Minute),
	})
	if err != nil {
		t.Fatalf("put message: %v", err)
	}
	for _, name := range tags {
		id, err := s.EnsureTag(ctx, name)
		if err != nil {
			t.Fatalf("ensure tag: %v", err)
		}
		if err := s.LinkMessageTag(ctx, m.ID, id); err != nil {
			t.Fatalf("link tag: %v", err)
		}
	}
	return m
}

func TestPutMessageAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")

	m := mustMessage(t, s, b, 0, "hello world", "greeting")
	if m.ID == "" {
		t.Error("expected non-empty ID")
	}

	got, err := s.GetMessage(ctx, m.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Content != "hello world" {
		t.Errorf("expected 'hello world', got %q", got.Content)
	}
	if len(got.Tags) != 1 || got.Tags[0] != "greeting" {
		t.Errorf("expected tags [greeting], got %v", got.Tags)
	}
	if !got.CreatedAt.Equal(testBase) {
		t.Errorf("expected created_at %v, got %v", testBase, got.CreatedAt)
	}
}

func TestPutMessageValidation(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")

	if _, err := s.PutMessage(ctx, PutMessageParams{ChatID: 100, BranchID: b.ID, Content: "  "}); err == nil {
		t.Error("expected error for empty content")
	}
	if _, err := s.PutMessage(ctx, PutMessageParams{ChatID: 200, BranchID: b.ID, Content: "x"}); err == nil {
		t.Error("expected error for branch of another chat")
	}
	if _, err := s.PutMessage(ctx, PutMessageParams{ChatID: 100, BranchID: "missing", Content: "x"}); err == nil {
		t.Error("expected error for unknown branch")
	}
}

func TestGetMessageNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetMessage(context.Background(), "nope")
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestHistoryChronological(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")
	other := mustBranch(t, s, 100, "side", "")

	mustMessage(t, s, b, 1, "first")
	mustMessage(t, s, b, 2, "second")
	mustMessage(t, s, b, 3, "third")
	mustMessage(t, s, other, 4, "elsewhere")

	hist, err := s.History(ctx, HistoryParams{ChatID: 100, BranchID: b.ID, Limit: 2})
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(hist))
	}
	if hist[0].Content != "second" || hist[1].Content != "third" {
		t.Errorf("expected [second third], got [%s %s]", hist[0].Content, hist[1].Content)
	}
}

func TestReactionsAndRatings(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")
	m := mustMessage(t, s, b, 0, "idea")

	if err := s.AddReaction(ctx, model.Reaction{MessageID: m.ID, UserID: 2, Emoji: "👍"}); err != nil {
		t.Fatalf("react: %v", err)
	}
	if err := s.AddReaction(ctx, model.Reaction{MessageID: m.ID, UserID: 2}); err == nil {
		t.Error("expected error for empty emoji")
	}

	ok, err := s.HasRatings(ctx)
	if err != nil {
		t.Fatalf("has ratings: %v", err)
	}
	if ok {
		t.Error("ratings table should not exist before the first rating")
	}
	if err := s.AddRating(ctx, m.ID, 2, 1.5); err == nil {
		t.Error("expected error for out of range rating")
	}
	if err := s.AddRating(ctx, m.ID, 2, 0.9); err != nil {
		t.Fatalf("rate: %v", err)
	}
	if ok, _ := s.HasRatings(ctx); !ok {
		t.Error("ratings table should exist after the first rating")
	}
}

func TestTokenUsage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	used, err := s.TokenUsage(ctx, 100, 7, "2026-03-01")
	if err != nil || used != 0 {
		t.Fatalf("expected 0 usage, got %d (%v)", used, err)
	}
	s.AddTokenUsage(ctx, 100, 7, "2026-03-01", 120)
	s.AddTokenUsage(ctx, 100, 7, "2026-03-01", 30)
	s.AddTokenUsage(ctx, 100, 7, "2026-03-02", 5)

	used, _ = s.TokenUsage(ctx, 100, 7, "2026-03-01")
	if used != 150 {
		t.Errorf("expected 150, got %d", used)
	}
}

func TestStats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")
	mustBranch(t, s, 200, "main", "")
	mustMessage(t, s, b, 0, "one", "alpha", "beta")
	mustMessage(t, s, b, 1, "two", "alpha")

	st, err := s.Stats(ctx, "unused.db")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.Branches != 2 || st.Messages != 2 || st.Tags != 2 {
		t.Errorf("unexpected totals: %+v", st)
	}
	if len(st.Chats) != 2 || st.Chats[0].ChatID != 100 || st.Chats[0].Messages != 2 {
		t.Errorf("unexpected chat stats: %+v", st.Chats)
	}
}

func TestDBPathCreation(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sub", "dir", "test.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("create store: %v", err)
	}
	s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("expected db file to be created")
	}
}
