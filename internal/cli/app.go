package cli

import (
	"context"
	"fmt"

	"github.com/rcliao/branch-memory/internal/access"
	"github.com/rcliao/branch-memory/internal/assembler"
	"github.com/rcliao/branch-memory/internal/gems"
	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/relevance"
	"github.com/rcliao/branch-memory/internal/store"
	"github.com/rcliao/branch-memory/internal/tagging"
	"github.com/rcliao/branch-memory/internal/weights"
)

// app wires the store and services for one command invocation.
type app struct {
	store     *store.SQLiteStore
	resolver  *access.Resolver
	extractor *tagging.Extractor
	persister *tagging.Persister
	weights   *weights.Calculator
	retriever *relevance.Retriever
	detector  *gems.Detector
	builder   *assembler.Builder
}

func openApp() *app {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}

	a := &app{
		store:     s,
		resolver:  access.NewResolver(s, logger, cfg.Access.MaxDepth),
		extractor: tagging.NewExtractor(cfg.Tags.MinLength, cfg.Tags.MaxTags),
		persister: tagging.NewPersister(s, logger, cfg.Tags.RelatedStep),
		weights: weights.NewCalculator(s, logger, weights.Options{
			TTL:        cfg.Weights.CacheTTL,
			WindowDays: cfg.Weights.WindowDays,
		}),
		retriever: relevance.NewRetriever(s, logger, relevance.Options{
			DirectLimit:      cfg.Relevance.DirectLimit,
			RelatedLimit:     cfg.Relevance.RelatedLimit,
			RelatedThreshold: cfg.Relevance.RelatedThreshold,
		}),
		detector: gems.NewDetector(s, logger, nil),
	}
	a.builder = assembler.NewBuilder(a.extractor, a.retriever, a.detector, logger, assembler.Options{
		LookbackDays:  cfg.Gems.LookbackDays,
		GemLimit:      cfg.Gems.Limit,
		PreviewLength: cfg.Assembler.PreviewLength,
		DirectCap:     cfg.Assembler.DirectCap,
		RelatedCap:    cfg.Assembler.RelatedCap,
		NotableShare:  cfg.Assembler.NotableShare,
		MinNotable:    cfg.Assembler.MinNotable,
	})
	return a
}

func (a *app) Close() {
	a.store.Close()
}

// branch looks up a branch of the current chat by key.
func (a *app) branch(ctx context.Context, key string) *model.Branch {
	b, err := a.store.GetBranchByKey(ctx, chatID, key)
	if err != nil {
		exitErr("branch", err)
	}
	return b
}

// authorize exits unless the acting user holds at least level on b.
func (a *app) authorize(ctx context.Context, b *model.Branch, level model.Level) {
	if !a.resolver.Resolve(ctx, userID, b.ID, level) {
		exitErr("permission denied", fmt.Errorf("user %d needs %s on branch %s", userID, level, b.Key))
	}
}
