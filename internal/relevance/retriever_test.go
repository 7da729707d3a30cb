package relevance

import (
	"context"
	"errors"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/store"
	"github.com/rcliao/branch-memory/internal/tagging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeStore struct {
	calls      atomic.Int32
	direct     []store.Match
	related    []store.Match
	directErr  error
	relatedErr error
}

func (f *fakeStore) DirectMatches(_ context.Context, p store.MatchParams) ([]store.Match, error) {
	f.calls.Add(1)
	return f.direct, f.directErr
}

func (f *fakeStore) RelatedMatches(_ context.Context, p store.MatchParams) ([]store.Match, error) {
	f.calls.Add(1)
	return f.related, f.relatedErr
}

func match(id string) store.Match {
	return store.Match{Message: model.Message{ID: id}}
}

func TestEmptyTagsIssuesNoQueries(t *testing.T) {
	f := &fakeStore{}
	r := NewRetriever(f, nil, Options{})

	res, err := r.FindRelevant(context.Background(), nil, "b", 1)
	require.NoError(t, err)
	require.True(t, res.Empty())
	require.Zero(t, f.calls.Load())
}

func TestOneFailedLookupDegrades(t *testing.T) {
	f := &fakeStore{direct: []store.Match{match("m1")}, relatedErr: errors.New("boom")}
	r := NewRetriever(f, nil, Options{})

	res, err := r.FindRelevant(context.Background(), []string{"go"}, "b", 1)
	require.NoError(t, err)
	require.Len(t, res.Direct, 1)
	require.Empty(t, res.Related)
}

func TestBothLookupsFailed(t *testing.T) {
	f := &fakeStore{directErr: errors.New("a"), relatedErr: errors.New("b")}
	r := NewRetriever(f, nil, Options{})

	res, err := r.FindRelevant(context.Background(), []string{"go"}, "b", 1)
	require.Error(t, err)
	require.True(t, res.Empty())
}

func TestFindRelevantWithSQLiteStore(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b, err := s.CreateBranch(ctx, store.CreateBranchParams{ChatID: 1, Key: "main", CreatedBy: 1})
	require.NoError(t, err)
	put := func(content string, tags ...string) string {
		m, err := s.PutMessage(ctx, store.PutMessageParams{ChatID: 1, BranchID: b.ID, UserID: 1, Content: content})
		require.NoError(t, err)
		for _, n := range tags {
			id, _ := s.EnsureTag(ctx, n)
			require.NoError(t, s.LinkMessageTag(ctx, m.ID, id))
		}
		return m.ID
	}

	direct := put("about alpha", "alpha")
	put("about gamma", "gamma")

	alpha, _ := s.EnsureTag(ctx, "alpha")
	beta, _ := s.EnsureTag(ctx, "beta")
	require.NoError(t, s.BumpRelated(ctx, alpha, beta, 0.5))

	r := NewRetriever(s, nil, Options{})

	// The only edge points at beta, which no message carries.
	res, err := r.FindRelevant(ctx, []string{"alpha", "beta"}, b.ID, 1)
	require.NoError(t, err)
	require.Len(t, res.Direct, 1)
	require.Equal(t, direct, res.Direct[0].ID)
	require.Empty(t, res.Related)

	withBeta := put("about beta", "beta")
	res, err = r.FindRelevant(ctx, []string{"alpha"}, b.ID, 1)
	require.NoError(t, err)
	require.Len(t, res.Related, 1)
	require.Equal(t, withBeta, res.Related[0].ID)
	require.Equal(t, 1, res.Related[0].Score)
}

func TestRelatedNeedsRepeatedCooccurrence(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b, err := s.CreateBranch(ctx, store.CreateBranchParams{ChatID: 1, Key: "main", CreatedBy: 1})
	require.NoError(t, err)
	persister := tagging.NewPersister(s, nil, 0)
	post := func(tags ...string) string {
		m, err := s.PutMessage(ctx, store.PutMessageParams{ChatID: 1, BranchID: b.ID, UserID: 1, Content: "x"})
		require.NoError(t, err)
		require.NoError(t, persister.Persist(ctx, m.ID, tags))
		return m.ID
	}

	post("alpha", "beta")
	betaOnly := post("beta")
	r := NewRetriever(s, nil, Options{RelatedLimit: 10})

	// One co-occurrence is a single step, below the threshold.
	strength, err := s.RelatedStrength(ctx, "alpha", "beta")
	require.NoError(t, err)
	require.InDelta(t, tagging.DefaultRelatedStep, strength, 1e-9)
	res, err := r.FindRelevant(ctx, []string{"alpha"}, b.ID, 1)
	require.NoError(t, err)
	require.Empty(t, res.Related)

	for i := 0; i < 3; i++ {
		post("alpha", "beta")
	}
	res, err = r.FindRelevant(ctx, []string{"alpha"}, b.ID, 1)
	require.NoError(t, err)
	var related []string
	for _, m := range res.Related {
		related = append(related, m.ID)
	}
	require.Contains(t, related, betaOnly)
}
