package store

import (
	"context"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDirectMatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")
	side := mustBranch(t, s, 100, "side", "")

	both := mustMessage(t, s, b, 0, "go and sql", "go", "sql")
	goOnly := mustMessage(t, s, b, 1, "just go", "go")
	mustMessage(t, s, b, 2, "rust", "rust")
	mustMessage(t, s, side, 3, "go elsewhere", "go")

	matches, err := s.DirectMatches(ctx, MatchParams{ChatID: 100, BranchID: b.ID, Tags: []string{"go", "sql"}})
	if err != nil {
		t.Fatalf("direct: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].ID != both.ID || matches[0].Score != 2 {
		t.Errorf("expected two-tag message first, got %s score %d", matches[0].Content, matches[0].Score)
	}
	if matches[1].ID != goOnly.ID {
		t.Errorf("expected go-only message second, got %s", matches[1].Content)
	}
	got := append([]string(nil), matches[0].Matched...)
	sort.Strings(got)
	if diff := cmp.Diff([]string{"go", "sql"}, got); diff != "" {
		t.Errorf("matched tags (-want +got):\n%s", diff)
	}
}

func TestDirectMatchesRecencyTieBreak(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")

	mustMessage(t, s, b, 0, "older", "go")
	newer := mustMessage(t, s, b, 5, "newer", "go")

	matches, _ := s.DirectMatches(ctx, MatchParams{ChatID: 100, BranchID: b.ID, Tags: []string{"go"}, Limit: 1})
	if len(matches) != 1 || matches[0].ID != newer.ID {
		t.Errorf("expected newest message on tie, got %+v", matches)
	}
}

func TestDirectMatchesEmptyTags(t *testing.T) {
	s := newTestStore(t)
	matches, err := s.DirectMatches(context.Background(), MatchParams{ChatID: 100, BranchID: "x"})
	if err != nil || matches != nil {
		t.Errorf("expected nil result, got %v (%v)", matches, err)
	}
}

func TestRelatedMatches(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	b := mustBranch(t, s, 100, "main", "")

	strong := mustMessage(t, s, b, 0, "database talk", "db")
	mustMessage(t, s, b, 1, "cache talk", "cache")

	goID, _ := s.EnsureTag(ctx, "go")
	dbID, _ := s.EnsureTag(ctx, "db")
	cacheID, _ := s.EnsureTag(ctx, "cache")
	s.BumpRelated(ctx, goID, dbID, 0.4)
	s.BumpRelated(ctx, goID, cacheID, 0.2)

	matches, err := s.RelatedMatches(ctx, MatchParams{
		ChatID: 100, BranchID: b.ID, Tags: []string{"go"}, Threshold: 0.3,
	})
	if err != nil {
		t.Fatalf("related: %v", err)
	}
	if len(matches) != 1 || matches[0].ID != strong.ID {
		t.Fatalf("expected only the strongly related message, got %+v", matches)
	}
	if diff := cmp.Diff([]string{"db"}, matches[0].Matched); diff != "" {
		t.Errorf("matched tags (-want +got):\n%s", diff)
	}
}
