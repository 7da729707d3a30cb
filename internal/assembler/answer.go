package assembler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rcliao/branch-memory/internal/logging"
	"github.com/rcliao/branch-memory/internal/model"
)

// ErrBudgetExceeded is returned when a user has spent their daily token budget.
var ErrBudgetExceeded = errors.New("daily token budget exceeded")

// DefaultDailyLimit is the per-user, per-chat daily token budget.
const DefaultDailyLimit = 100000

const dayLayout = "2006-01-02"

// Completion is a backend reply.
type Completion struct {
	Text       string `json:"text" yaml:"text"`
	TokensUsed int    `json:"tokens_used" yaml:"tokens_used"`
}

// Completer sends prompt turns to a language model.
type Completer interface {
	Complete(ctx context.Context, turns []model.Turn) (Completion, error)
}

// UsageStore records token spend per chat, user and UTC day.
type UsageStore interface {
	TokenUsage(ctx context.Context, chatID, userID int64, day string) (int, error)
	AddTokenUsage(ctx context.Context, chatID, userID int64, day string, tokens int) error
}

// Answerer builds a prompt for a message, sends it to a Completer and
// accounts the tokens spent against the user's daily budget.
type Answerer struct {
	builder    *Builder
	completer  Completer
	usage      UsageStore
	logger     *zap.Logger
	dailyLimit int
	now        func() time.Time
}

// NewAnswerer returns an Answerer. A non-positive dailyLimit selects
// DefaultDailyLimit; a nil now selects time.Now.
func NewAnswerer(builder *Builder, completer Completer, usage UsageStore, logger *zap.Logger, dailyLimit int, now func() time.Time) *Answerer {
	if dailyLimit <= 0 {
		dailyLimit = DefaultDailyLimit
	}
	if now == nil {
		now = time.Now
	}
	return &Answerer{
		builder:    builder,
		completer:  completer,
		usage:      usage,
		logger:     logging.OrNop(logger),
		dailyLimit: dailyLimit,
		now:        now,
	}
}

// Answer replies to message. The budget check happens before the backend is
// called; spend is recorded after a successful completion.
func (a *Answerer) Answer(ctx context.Context, message, branchID string, chatID, userID int64) (Completion, error) {
	day := a.now().UTC().Format(dayLayout)

	used, err := a.usage.TokenUsage(ctx, chatID, userID, day)
	if err != nil {
		return Completion{}, fmt.Errorf("read token usage: %w", err)
	}
	if used >= a.dailyLimit {
		return Completion{}, fmt.Errorf("%w: %d of %d used", ErrBudgetExceeded, used, a.dailyLimit)
	}

	turns := a.builder.Build(ctx, message, branchID, chatID, userID)
	out, err := a.completer.Complete(ctx, turns)
	if err != nil {
		return Completion{}, fmt.Errorf("complete: %w", err)
	}

	if out.TokensUsed > 0 {
		if err := a.usage.AddTokenUsage(ctx, chatID, userID, day, out.TokensUsed); err != nil {
			a.logger.Warn("record token usage",
				zap.Int64("chat_id", chatID),
				zap.Int64("user_id", userID),
				zap.Error(err),
			)
		}
	}
	return out, nil
}

// Remaining returns how many tokens userID may still spend today.
func (a *Answerer) Remaining(ctx context.Context, chatID, userID int64) (int, error) {
	used, err := a.usage.TokenUsage(ctx, chatID, userID, a.now().UTC().Format(dayLayout))
	if err != nil {
		return 0, err
	}
	if used >= a.dailyLimit {
		return 0, nil
	}
	return a.dailyLimit - used, nil
}
