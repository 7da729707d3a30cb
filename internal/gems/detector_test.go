package gems

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(id string, minutes int) model.Message {
	return model.Message{ID: id, CreatedAt: base.Add(time.Duration(minutes) * time.Minute)}
}

type fakeStore struct {
	mu sync.Mutex

	novel    []store.NoveltyRow
	engaging []store.EngagementRow
	rated    []store.RatingRow
	ratings  bool

	novelErr, engagingErr, ratedErr, probeErr error

	raised map[string][2]float64
}

func (f *fakeStore) NovelMessages(context.Context, store.SignalParams) ([]store.NoveltyRow, error) {
	return f.novel, f.novelErr
}

func (f *fakeStore) EngagingMessages(context.Context, store.SignalParams) ([]store.EngagementRow, error) {
	return f.engaging, f.engagingErr
}

func (f *fakeStore) HasRatings(context.Context) (bool, error) { return f.ratings, f.probeErr }

func (f *fakeStore) RatedMessages(context.Context, store.SignalParams) ([]store.RatingRow, error) {
	return f.rated, f.ratedErr
}

func (f *fakeStore) RaiseScores(_ context.Context, id string, novelty, potential float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.raised == nil {
		f.raised = map[string][2]float64{}
	}
	f.raised[id] = [2]float64{novelty, potential}
	return nil
}

func ids(gems []Gem) []string {
	var out []string
	for _, g := range gems {
		out = append(out, g.ID)
	}
	return out
}

func TestScores(t *testing.T) {
	require.InDelta(t, 0.5, NoveltyScore(2, 4), 1e-9)
	require.Zero(t, NoveltyScore(0, 0))
	require.InDelta(t, 0.7*5+0.3*2, EngagementScore(5, 2), 1e-9)
	require.InDelta(t, 0.6*0.8+0.4*0.3, RatingScore(0.8, 3), 1e-9)
	require.InDelta(t, 0.6*1+0.4, RatingScore(1, 25), 1e-9)
}

func TestScanDedupesAndRanks(t *testing.T) {
	f := &fakeStore{
		novel: []store.NoveltyRow{
			{Message: msg("a", 1), DistinctTags: 2, TotalTags: 2}, // 1.0 x3 = 3
			{Message: msg("b", 2), DistinctTags: 2, TotalTags: 4}, // 0.5 x3 = 1.5
		},
		engaging: []store.EngagementRow{
			{Message: msg("a", 1), Reactions: 10, Reactors: 5}, // duplicate, dropped
			{Message: msg("c", 3), Reactions: 2, Reactors: 2},  // 2.0 x2 = 4
		},
		ratings: true,
		rated: []store.RatingRow{
			{Message: msg("d", 4), AvgRating: 1, RatingCount: 10}, // 1.0 x1 = 1
		},
	}
	d := NewDetector(f, nil, func() time.Time { return base })

	gems, err := d.Scan(context.Background(), 1, 30, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a", "b", "d"}, ids(gems))
	require.Equal(t, SignalNovelty, gems[1].Signal)

	for i := 1; i < len(gems); i++ {
		require.Greater(t, gems[i-1].Weighted, gems[i].Weighted)
	}

	require.Equal(t, [2]float64{0.3, 0.5}, f.raised["c"])
	require.Equal(t, [2]float64{0.7, 0.5}, f.raised["a"])
	require.Equal(t, [2]float64{0.3, 0.8}, f.raised["d"])
	require.Equal(t, 0.8, gems[3].PotentialScore)
}

func TestScanRaisesFloorsBeforeTruncating(t *testing.T) {
	f := &fakeStore{
		novel: []store.NoveltyRow{
			{Message: msg("n1", 1), DistinctTags: 2, TotalTags: 2}, // 1.0 x3 = 3
		},
		engaging: []store.EngagementRow{
			{Message: msg("e1", 2), Reactions: 2, Reactors: 2}, // 2.0 x2 = 4
		},
	}
	d := NewDetector(f, nil, nil)

	gems, err := d.Scan(context.Background(), 0, 0, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"e1"}, ids(gems))
	require.Equal(t, [2]float64{0.3, 0.5}, f.raised["e1"])
	require.Equal(t, [2]float64{0.7, 0.5}, f.raised["n1"])
}

func TestScanTieBreaksByRecency(t *testing.T) {
	f := &fakeStore{
		novel: []store.NoveltyRow{
			{Message: msg("old", 1), DistinctTags: 2, TotalTags: 2},
			{Message: msg("new", 5), DistinctTags: 3, TotalTags: 3},
		},
	}
	gems, err := NewDetector(f, nil, nil).Scan(context.Background(), 0, 30, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"new", "old"}, ids(gems))
}

func TestScanPartialFailure(t *testing.T) {
	f := &fakeStore{
		novelErr: errors.New("novelty down"),
		engaging: []store.EngagementRow{{Message: msg("c", 3), Reactions: 2, Reactors: 2}},
	}
	gems, err := NewDetector(f, nil, nil).Scan(context.Background(), 0, 30, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"c"}, ids(gems))
}

func TestScanMissingRatingsIsNotAFailure(t *testing.T) {
	f := &fakeStore{
		novelErr:    errors.New("novelty down"),
		engagingErr: errors.New("engagement down"),
		ratings:     false,
	}
	_, err := NewDetector(f, nil, nil).Scan(context.Background(), 0, 30, 5)
	require.Error(t, err)

	f.ratings = true
	f.rated = []store.RatingRow{{Message: msg("d", 1), AvgRating: 0.9, RatingCount: 1}}
	gems, err := NewDetector(f, nil, nil).Scan(context.Background(), 0, 30, 5)
	require.NoError(t, err)
	require.Equal(t, []string{"d"}, ids(gems))
}

func TestScanAllFailed(t *testing.T) {
	f := &fakeStore{
		novelErr:    errors.New("a"),
		engagingErr: errors.New("b"),
		probeErr:    errors.New("c"),
	}
	gems, err := NewDetector(f, nil, nil).Scan(context.Background(), 0, 30, 5)
	require.Error(t, err)
	require.Nil(t, gems)
}

func TestScanWithSQLiteStoreNeverLowersScores(t *testing.T) {
	ctx := context.Background()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	b, err := s.CreateBranch(ctx, store.CreateBranchParams{ChatID: 1, Key: "main", CreatedBy: 1})
	require.NoError(t, err)
	m, err := s.PutMessage(ctx, store.PutMessageParams{ChatID: 1, BranchID: b.ID, UserID: 1, Content: "idea"})
	require.NoError(t, err)
	for _, n := range []string{"x", "y"} {
		id, _ := s.EnsureTag(ctx, n)
		require.NoError(t, s.LinkMessageTag(ctx, m.ID, id))
	}
	require.NoError(t, s.AddRating(ctx, m.ID, 2, 0.9))

	d := NewDetector(s, nil, nil)
	gems, err := d.Scan(ctx, 1, 30, 5)
	require.NoError(t, err)
	require.Len(t, gems, 1)
	require.Equal(t, SignalNovelty, gems[0].Signal)

	got, _ := s.GetMessage(ctx, m.ID)
	require.Equal(t, 0.7, got.NoveltyScore)
	require.Equal(t, 0.5, got.PotentialScore)

	// A later scan that surfaces the message only by rating raises potential
	// but keeps novelty.
	s2 := &ratingOnly{SQLiteStore: s}
	_, err = NewDetector(s2, nil, nil).Scan(ctx, 1, 30, 5)
	require.NoError(t, err)

	got, _ = s.GetMessage(ctx, m.ID)
	require.Equal(t, 0.7, got.NoveltyScore)
	require.Equal(t, 0.8, got.PotentialScore)
}

// ratingOnly hides the novelty and engagement signals of a real store.
type ratingOnly struct {
	*store.SQLiteStore
}

func (r *ratingOnly) NovelMessages(context.Context, store.SignalParams) ([]store.NoveltyRow, error) {
	return nil, nil
}

func (r *ratingOnly) EngagingMessages(context.Context, store.SignalParams) ([]store.EngagementRow, error) {
	return nil, nil
}
