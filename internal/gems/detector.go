// Package gems surfaces notable messages: broadly tagged, widely reacted to,
// or highly rated, independent of keyword overlap with a query.
package gems

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/branch-memory/internal/logging"
	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/store"
)

// Defaults.
const (
	DefaultLookbackDays = 30
	DefaultLimit        = 20
)

// Signal names the reason a message was surfaced.
type Signal string

const (
	SignalNovelty    Signal = "novelty"
	SignalEngagement Signal = "engagement"
	SignalRating     Signal = "rating"
)

// typeWeight multiplies a gem's own score for final ranking.
var typeWeight = map[Signal]float64{
	SignalNovelty:    3,
	SignalEngagement: 2,
	SignalRating:     1,
}

// floors are the minimum novelty and potential scores given to a message
// surfaced by each signal.
var floors = map[Signal][2]float64{
	SignalNovelty:    {0.7, 0.5},
	SignalEngagement: {0.3, 0.5},
	SignalRating:     {0.3, 0.8},
}

// Gem is a surfaced message with its signal and scores.
type Gem struct {
	model.Message `yaml:",inline"`
	Signal        Signal  `json:"signal" yaml:"signal"`
	Score         float64 `json:"score" yaml:"score"`
	Weighted      float64 `json:"weighted_score" yaml:"weighted_score"`
}

// Store is the query surface the Detector needs.
type Store interface {
	NovelMessages(ctx context.Context, p store.SignalParams) ([]store.NoveltyRow, error)
	EngagingMessages(ctx context.Context, p store.SignalParams) ([]store.EngagementRow, error)
	HasRatings(ctx context.Context) (bool, error)
	RatedMessages(ctx context.Context, p store.SignalParams) ([]store.RatingRow, error)
	RaiseScores(ctx context.Context, messageID string, novelty, potential float64) error
}

// Detector scans recent history for gems.
type Detector struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewDetector returns a Detector. A nil now selects time.Now.
func NewDetector(store Store, logger *zap.Logger, now func() time.Time) *Detector {
	if now == nil {
		now = time.Now
	}
	return &Detector{store: store, logger: logging.OrNop(logger), now: now}
}

// Scan evaluates the three signals concurrently over the last lookbackDays,
// scoped to chatID when it is non-zero, and returns up to limit gems ranked
// by weighted score. A message found by several signals is kept once, under
// the first signal in novelty, engagement, rating order. Every surfaced
// message, returned or not, has its scores raised to the signal's floor.
//
// A failing signal is logged and contributes nothing. Scan returns an error
// only when every evaluated signal failed.
func (d *Detector) Scan(ctx context.Context, chatID int64, lookbackDays, limit int) ([]Gem, error) {
	if lookbackDays <= 0 {
		lookbackDays = DefaultLookbackDays
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	log := d.logger.With(zap.Int64("chat_id", chatID))
	p := store.SignalParams{ChatID: chatID, Since: d.now().AddDate(0, 0, -lookbackDays), Limit: limit}

	var novel, engaging, rated []Gem
	var novelErr, engagingErr, ratedErr error
	ratingsEvaluated := false

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		novel, novelErr = d.novelty(gctx, p)
		if novelErr != nil {
			log.Warn("novelty signal", zap.Error(novelErr))
		}
		return nil
	})
	g.Go(func() error {
		engaging, engagingErr = d.engagement(gctx, p)
		if engagingErr != nil {
			log.Warn("engagement signal", zap.Error(engagingErr))
		}
		return nil
	})
	g.Go(func() error {
		ok, err := d.store.HasRatings(gctx)
		if err != nil {
			ratingsEvaluated, ratedErr = true, err
			log.Warn("probe ratings table", zap.Error(err))
			return nil
		}
		if !ok {
			return nil
		}
		ratingsEvaluated = true
		rated, ratedErr = d.rating(gctx, p)
		if ratedErr != nil {
			log.Warn("rating signal", zap.Error(ratedErr))
		}
		return nil
	})
	_ = g.Wait()

	evaluated, failed := 2, 0
	if ratingsEvaluated {
		evaluated++
	}
	var errs []error
	for _, err := range []error{novelErr, engagingErr, ratedErr} {
		if err != nil {
			failed++
			errs = append(errs, err)
		}
	}
	if failed == evaluated {
		return nil, errors.Join(errs...)
	}

	// Every surfaced candidate is floored, including those cut by limit.
	gems := rank(dedupe(novel, engaging, rated))
	for i := range gems {
		gem := &gems[i]
		floor := floors[gem.Signal]
		if err := d.store.RaiseScores(ctx, gem.ID, floor[0], floor[1]); err != nil {
			log.Warn("raise gem scores", zap.String("message_id", gem.ID), zap.Error(err))
			continue
		}
		gem.NoveltyScore = math.Max(gem.NoveltyScore, floor[0])
		gem.PotentialScore = math.Max(gem.PotentialScore, floor[1])
	}
	if len(gems) > limit {
		gems = gems[:limit]
	}

	log.Debug("gem scan", zap.Int("found", len(gems)), zap.Int("failed_signals", failed))
	return gems, nil
}

func (d *Detector) novelty(ctx context.Context, p store.SignalParams) ([]Gem, error) {
	rows, err := d.store.NovelMessages(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]Gem, 0, len(rows))
	for _, r := range rows {
		out = append(out, newGem(r.Message, SignalNovelty, NoveltyScore(r.DistinctTags, r.TotalTags)))
	}
	return out, nil
}

func (d *Detector) engagement(ctx context.Context, p store.SignalParams) ([]Gem, error) {
	rows, err := d.store.EngagingMessages(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]Gem, 0, len(rows))
	for _, r := range rows {
		out = append(out, newGem(r.Message, SignalEngagement, EngagementScore(r.Reactions, r.Reactors)))
	}
	return out, nil
}

func (d *Detector) rating(ctx context.Context, p store.SignalParams) ([]Gem, error) {
	rows, err := d.store.RatedMessages(ctx, p)
	if err != nil {
		return nil, err
	}
	out := make([]Gem, 0, len(rows))
	for _, r := range rows {
		out = append(out, newGem(r.Message, SignalRating, RatingScore(r.AvgRating, r.RatingCount)))
	}
	return out, nil
}

func newGem(m model.Message, s Signal, score float64) Gem {
	return Gem{Message: m, Signal: s, Score: score, Weighted: score * typeWeight[s]}
}

// NoveltyScore is distinct tags over total tag attachments.
func NoveltyScore(distinct, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(distinct) / float64(total)
}

// EngagementScore is 0.7 x reactions + 0.3 x distinct reactors.
func EngagementScore(reactions, reactors int) float64 {
	return 0.7*float64(reactions) + 0.3*float64(reactors)
}

// RatingScore is 0.6 x average + 0.4 x min(count/10, 1).
func RatingScore(avg float64, count int) float64 {
	return 0.6*avg + 0.4*math.Min(float64(count)/10, 1)
}

// dedupe concatenates the lists, keeping the first occurrence of each message.
func dedupe(lists ...[]Gem) []Gem {
	seen := make(map[string]bool)
	var out []Gem
	for _, list := range lists {
		for _, g := range list {
			if seen[g.ID] {
				continue
			}
			seen[g.ID] = true
			out = append(out, g)
		}
	}
	return out
}

// rank sorts by weighted score, newest first on ties, then by ID.
func rank(gems []Gem) []Gem {
	sort.SliceStable(gems, func(i, j int) bool {
		a, b := gems[i], gems[j]
		if a.Weighted != b.Weighted {
			return a.Weighted > b.Weighted
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return gems
}
