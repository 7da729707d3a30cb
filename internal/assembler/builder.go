// Package assembler merges relevance and notable-content signals into a
// bounded context bundle and renders it as prompt turns.
package assembler

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rcliao/branch-memory/internal/gems"
	"github.com/rcliao/branch-memory/internal/logging"
	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/relevance"
)

// Extractor derives tags from text.
type Extractor interface {
	Extract(text string) []string
}

// Finder looks up relevant branch messages for a set of tags.
type Finder interface {
	FindRelevant(ctx context.Context, tags []string, branchID string, chatID int64) (relevance.Result, error)
}

// Scanner surfaces notable messages.
type Scanner interface {
	Scan(ctx context.Context, chatID int64, lookbackDays, limit int) ([]gems.Gem, error)
}

// Options configures a Builder. Zero values select the defaults.
type Options struct {
	LookbackDays  int
	GemLimit      int
	PreviewLength int
	DirectCap     int
	RelatedCap    int
	NotableShare  float64
	MinNotable    int
}

func (o *Options) setDefaults() {
	if o.LookbackDays <= 0 {
		o.LookbackDays = 30
	}
	if o.GemLimit <= 0 {
		o.GemLimit = 5
	}
	if o.PreviewLength <= 0 {
		o.PreviewLength = 100
	}
	if o.DirectCap <= 0 {
		o.DirectCap = 8
	}
	if o.RelatedCap <= 0 {
		o.RelatedCap = 3
	}
	if o.NotableShare <= 0 {
		o.NotableShare = 0.3
	}
	if o.MinNotable <= 0 {
		o.MinNotable = 2
	}
}

// Source is the signal an item came from.
type Source string

const (
	SourceDirect  Source = "direct"
	SourceNotable Source = "notable"
	SourceRelated Source = "related"
)

// Item is one message selected into a bundle, with its provenance and the
// strength of the signal that selected it.
type Item struct {
	MessageID string   `json:"message_id" yaml:"message_id"`
	Content   string   `json:"content" yaml:"content"`
	Source    Source   `json:"source" yaml:"source"`
	Signal    string   `json:"signal,omitempty" yaml:"signal,omitempty"`
	Strength  float64  `json:"strength" yaml:"strength"`
	Tags      []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Bundle is the context selected for one message. It is never persisted.
type Bundle struct {
	Tags    []string `json:"tags" yaml:"tags"`
	Main    []Item   `json:"main" yaml:"main"`
	Notable []Item   `json:"notable" yaml:"notable"`
	Related []Item   `json:"related" yaml:"related"`
}

// Builder assembles prompts.
type Builder struct {
	extractor Extractor
	finder    Finder
	scanner   Scanner
	logger    *zap.Logger
	opts      Options
}

// NewBuilder returns a Builder.
func NewBuilder(extractor Extractor, finder Finder, scanner Scanner, logger *zap.Logger, opts Options) *Builder {
	opts.setDefaults()
	return &Builder{
		extractor: extractor,
		finder:    finder,
		scanner:   scanner,
		logger:    logging.OrNop(logger),
		opts:      opts,
	}
}

// Build returns the prompt turns for message: one system turn carrying the
// selected context followed by the message itself. Any failure, including a
// panic, yields Fallback(message). Build never fails.
func (b *Builder) Build(ctx context.Context, message, branchID string, chatID, userID int64) (turns []model.Turn) {
	log := b.logger.With(
		zap.String("request_id", uuid.NewString()),
		zap.Int64("chat_id", chatID),
		zap.String("branch_id", branchID),
		zap.Int64("user_id", userID),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("context build panicked", zap.Any("panic", r))
			turns = Fallback(message)
		}
	}()

	bundle, err := b.Assemble(ctx, message, branchID, chatID)
	if err != nil {
		log.Warn("context build failed, using fallback prompt", zap.Error(err))
		return Fallback(message)
	}

	log.Debug("context built",
		zap.Strings("tags", bundle.Tags),
		zap.Int("main", len(bundle.Main)),
		zap.Int("notable", len(bundle.Notable)),
		zap.Int("related", len(bundle.Related)),
	)
	return b.Render(message, bundle)
}

// Assemble extracts tags, runs the retriever and the gem scan concurrently
// and balances their output. It fails when either unit reports an error.
func (b *Builder) Assemble(ctx context.Context, message, branchID string, chatID int64) (Bundle, error) {
	bundle := Bundle{Tags: b.extractor.Extract(message)}

	var found relevance.Result
	var notable []gems.Gem
	var findErr, scanErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		findErr = safely(func() (err error) {
			found, err = b.finder.FindRelevant(gctx, bundle.Tags, branchID, chatID)
			return err
		})
		return nil
	})
	g.Go(func() error {
		scanErr = safely(func() (err error) {
			notable, err = b.scanner.Scan(gctx, chatID, b.opts.LookbackDays, b.opts.GemLimit)
			return err
		})
		return nil
	})
	_ = g.Wait()

	if findErr != nil || scanErr != nil {
		return bundle, errors.Join(wrap("find relevant", findErr), wrap("scan gems", scanErr))
	}
	if err := ctx.Err(); err != nil {
		return bundle, err
	}

	budget := b.NotableBudget(len(found.Direct))
	for i, m := range found.Direct {
		if i == b.opts.DirectCap {
			break
		}
		bundle.Main = append(bundle.Main, Item{
			MessageID: m.ID, Content: m.Content, Source: SourceDirect,
			Strength: float64(m.Score), Tags: m.Matched,
		})
	}
	for i, gem := range notable {
		if i == budget {
			break
		}
		bundle.Notable = append(bundle.Notable, Item{
			MessageID: gem.ID, Content: gem.Content, Source: SourceNotable,
			Signal: string(gem.Signal), Strength: gem.Weighted,
		})
	}
	for i, m := range found.Related {
		if i == b.opts.RelatedCap {
			break
		}
		bundle.Related = append(bundle.Related, Item{
			MessageID: m.ID, Content: m.Content, Source: SourceRelated,
			Strength: float64(m.Score), Tags: m.Matched,
		})
	}
	return bundle, nil
}

// NotableBudget is max(MinNotable, floor(NotableShare x direct)).
func (b *Builder) NotableBudget(direct int) int {
	n := int(math.Floor(b.opts.NotableShare * float64(direct)))
	if n < b.opts.MinNotable {
		return b.opts.MinNotable
	}
	return n
}

// safely runs fn, converting a panic into an error.
func safely(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
