package assembler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcliao/branch-memory/internal/gems"
	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/relevance"
	"github.com/rcliao/branch-memory/internal/store"
	"github.com/rcliao/branch-memory/internal/tagging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fixedTags []string

func (f fixedTags) Extract(string) []string { return f }

type fakeFinder struct {
	res   relevance.Result
	err   error
	panic bool
}

func (f *fakeFinder) FindRelevant(context.Context, []string, string, int64) (relevance.Result, error) {
	if f.panic {
		panic("finder exploded")
	}
	return f.res, f.err
}

type fakeScanner struct {
	gems []gems.Gem
	err  error
}

func (f *fakeScanner) Scan(context.Context, int64, int, int) ([]gems.Gem, error) {
	return f.gems, f.err
}

func matches(prefix string, n int) []store.Match {
	out := make([]store.Match, n)
	for i := range out {
		id := fmt.Sprintf("%s%d", prefix, i)
		out[i] = store.Match{Message: model.Message{ID: id, Content: "content " + id}, Score: 1}
	}
	return out
}

func gemList(n int) []gems.Gem {
	out := make([]gems.Gem, n)
	for i := range out {
		id := fmt.Sprintf("g%d", i)
		out[i] = gems.Gem{Message: model.Message{ID: id, Content: "gem " + id}, Signal: gems.SignalNovelty, Weighted: 3}
	}
	return out
}

func requireFallback(t *testing.T, turns []model.Turn, message string) {
	t.Helper()
	require.Equal(t, Fallback(message), turns)
	require.Len(t, turns, 2)
	require.Equal(t, FallbackInstruction, turns[0].Content)
}

func TestNotableBudget(t *testing.T) {
	b := NewBuilder(fixedTags(nil), &fakeFinder{}, &fakeScanner{}, nil, Options{})
	tests := []struct {
		direct, want int
	}{
		{0, 2},
		{3, 2},
		{7, 2},
		{10, 3},
		{20, 6},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, b.NotableBudget(tt.direct), "direct=%d", tt.direct)
	}
}

func TestAssembleCapsSections(t *testing.T) {
	finder := &fakeFinder{res: relevance.Result{Direct: matches("d", 20), Related: matches("r", 10)}}
	scanner := &fakeScanner{gems: gemList(10)}
	b := NewBuilder(fixedTags{"go"}, finder, scanner, nil, Options{})

	bundle, err := b.Assemble(context.Background(), "hi", "b", 1)
	require.NoError(t, err)
	require.Equal(t, []string{"go"}, bundle.Tags)
	require.Len(t, bundle.Main, 8)
	// The budget counts every direct match, not only the capped ones.
	require.Len(t, bundle.Notable, 6)
	require.Len(t, bundle.Related, 3)

	require.Equal(t, "d0", bundle.Main[0].MessageID)
	require.Equal(t, SourceDirect, bundle.Main[0].Source)
	require.Equal(t, SourceNotable, bundle.Notable[0].Source)
	require.Equal(t, "novelty", bundle.Notable[0].Signal)
	require.Equal(t, SourceRelated, bundle.Related[0].Source)
}

func TestAssembleFewDirectKeepsMinimumNotable(t *testing.T) {
	finder := &fakeFinder{res: relevance.Result{Direct: matches("d", 1)}}
	b := NewBuilder(fixedTags{"go"}, finder, &fakeScanner{gems: gemList(5)}, nil, Options{})

	bundle, err := b.Assemble(context.Background(), "hi", "b", 1)
	require.NoError(t, err)
	require.Len(t, bundle.Main, 1)
	require.Len(t, bundle.Notable, 2)
	require.Empty(t, bundle.Related)
}

func TestBuildFallsBackOnUnitError(t *testing.T) {
	tests := []struct {
		name    string
		finder  *fakeFinder
		scanner *fakeScanner
	}{
		{"finder", &fakeFinder{err: errors.New("db gone")}, &fakeScanner{}},
		{"scanner", &fakeFinder{}, &fakeScanner{err: errors.New("db gone")}},
		{"finder panic", &fakeFinder{panic: true}, &fakeScanner{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder(fixedTags{"go"}, tt.finder, tt.scanner, nil, Options{})
			turns := b.Build(context.Background(), "what is new?", "b", 1, 7)
			requireFallback(t, turns, "what is new?")
		})
	}
}

type panickingExtractor struct{}

func (panickingExtractor) Extract(string) []string { panic("extractor exploded") }

func TestBuildFallsBackOnPanic(t *testing.T) {
	b := NewBuilder(panickingExtractor{}, &fakeFinder{}, &fakeScanner{}, nil, Options{})
	turns := b.Build(context.Background(), "hello", "b", 1, 7)
	requireFallback(t, turns, "hello")
}

func TestBuildFallsBackOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := NewBuilder(fixedTags{"go"}, &fakeFinder{}, &fakeScanner{}, nil, Options{})
	requireFallback(t, b.Build(ctx, "hello", "b", 1, 7), "hello")
}

func TestBuildEmptyContext(t *testing.T) {
	b := NewBuilder(fixedTags(nil), &fakeFinder{}, &fakeScanner{}, nil, Options{})
	turns := b.Build(context.Background(), "hello", "b", 1, 7)

	require.Len(t, turns, 2)
	require.Equal(t, model.RoleSystem, turns[0].Role)
	require.Contains(t, turns[0].Content, "Discussion context:\nNo context available.\n")
	require.Equal(t, model.Turn{Role: model.RoleUser, Content: "hello"}, turns[1])
}

func TestRenderSections(t *testing.T) {
	b := NewBuilder(fixedTags(nil), &fakeFinder{}, &fakeScanner{}, nil, Options{PreviewLength: 5})
	turns := b.Render("q", Bundle{
		Main:    []Item{{Content: "abcdefgh"}, {Content: "xyz"}},
		Related: []Item{{Content: "related"}},
	})

	sys := turns[0].Content
	require.Contains(t, sys, "Main discussions:\n1. abcde...\n2. xyz\n\n")
	require.Contains(t, sys, "Related concepts:\n1. relat...\n\n")
	require.NotContains(t, sys, "Valuable ideas")
	require.Less(t, strings.Index(sys, "Main discussions"), strings.Index(sys, "Related concepts"))
	require.Contains(t, sys, "Instructions:\n1. ")
}

func TestPreview(t *testing.T) {
	require.Equal(t, "short", Preview("short", 10))
	require.Equal(t, "exact", Preview("exact", 5))
	require.Equal(t, "при...", Preview("привет", 3))
}

func TestBuildWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b, err := s.CreateBranch(ctx, store.CreateBranchParams{ChatID: 1, Key: "main", CreatedBy: 1})
	require.NoError(t, err)

	extractor := tagging.NewExtractor(0, 0)
	persister := tagging.NewPersister(s, nil, 0)
	for _, text := range []string{"Kubernetes rollout notes", "Thoughts on Kubernetes and #observability"} {
		m, err := s.PutMessage(ctx, store.PutMessageParams{ChatID: 1, BranchID: b.ID, UserID: 1, Content: text})
		require.NoError(t, err)
		require.NoError(t, persister.Persist(ctx, m.ID, extractor.Extract(text)))
	}

	builder := NewBuilder(extractor,
		relevance.NewRetriever(s, nil, relevance.Options{}),
		gems.NewDetector(s, nil, nil),
		nil, Options{})

	bundle, err := builder.Assemble(ctx, "How is Kubernetes going?", b.ID, 1)
	require.NoError(t, err)
	require.Contains(t, bundle.Tags, "kubernetes")
	require.Len(t, bundle.Main, 2)

	turns := builder.Build(ctx, "How is Kubernetes going?", b.ID, 1, 1)
	require.Contains(t, turns[0].Content, "Main discussions:")
	require.Contains(t, turns[0].Content, "Kubernetes rollout notes")
}
