package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/assembler"
	"github.com/rcliao/branch-memory/internal/completion"
	"github.com/rcliao/branch-memory/internal/model"
)

func init() {
	askCmd := &cobra.Command{
		Use:   "ask [message]",
		Short: "Answer a message with branch context",
		Long: "Assemble context for the message and send it to Gemini (completion.api_key, completion.model). " +
			"Tokens are charged against the user's daily budget.",
		Args: cobra.MinimumNArgs(1),
		Run:  runAsk,
	}
	askCmd.Flags().StringP("branch", "b", "", "Branch key (required)")
	askCmd.MarkFlagRequired("branch")

	usageCmd := &cobra.Command{
		Use:   "usage",
		Short: "Show today's remaining token budget",
		Run:   runUsage,
	}

	RootCmd.AddCommand(askCmd, usageCmd)
}

func newAnswerer(a *app, completer assembler.Completer) *assembler.Answerer {
	return assembler.NewAnswerer(a.builder, completer, a.store, logger, cfg.Usage.DailyLimit, nil)
}

func runAsk(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("branch")
	message := strings.Join(args, " ")

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, key)
	a.authorize(ctx, b, model.LevelReader)

	gemini, err := completion.NewGemini(ctx, cfg.Completion.APIKey, cfg.Completion.Model)
	if err != nil {
		exitErr("completion backend", err)
	}

	out, err := newAnswerer(a, gemini).Answer(ctx, message, b.ID, chatID, userID)
	if errors.Is(err, assembler.ErrBudgetExceeded) {
		exitErr("daily budget", err)
	}
	if err != nil {
		exitErr("ask", err)
	}

	output(out, func(w io.Writer) { fmt.Fprintln(w, out.Text) })
}

type usageResult struct {
	ChatID    int64 `json:"chat_id" yaml:"chat_id"`
	UserID    int64 `json:"user_id" yaml:"user_id"`
	Limit     int   `json:"daily_limit" yaml:"daily_limit"`
	Remaining int   `json:"remaining" yaml:"remaining"`
}

func runUsage(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.Close()

	left, err := newAnswerer(a, nil).Remaining(cmd.Context(), chatID, userID)
	if err != nil {
		exitErr("usage", err)
	}

	limit := cfg.Usage.DailyLimit
	if limit <= 0 {
		limit = assembler.DefaultDailyLimit
	}
	res := usageResult{ChatID: chatID, UserID: userID, Limit: limit, Remaining: left}
	output(res, func(w io.Writer) { fmt.Fprintf(w, "%d of %d tokens left today\n", left, res.Limit) })
}
