package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "history [branch]",
		Short: "Show the latest messages of a branch",
		Args:  cobra.ExactArgs(1),
		Run:   runHistory,
	}

	cmd.Flags().IntP("limit", "l", 20, "Max messages")

	RootCmd.AddCommand(cmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, args[0])
	a.authorize(ctx, b, model.LevelReader)

	messages, err := a.store.History(ctx, store.HistoryParams{ChatID: chatID, BranchID: b.ID, Limit: limit})
	if err != nil {
		exitErr("history", err)
	}

	output(messages, func(w io.Writer) {
		for _, m := range messages {
			fmt.Fprintf(w, "%s  user %d  %s\n", m.CreatedAt.Format("2006-01-02 15:04"), m.UserID, m.Content)
		}
	})
}
