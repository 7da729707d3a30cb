package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/model"
)

func init() {
	reactCmd := &cobra.Command{
		Use:   "react [message-id] [emoji]",
		Short: "React to a message",
		Args:  cobra.ExactArgs(2),
		Run:   runReact,
	}

	rateCmd := &cobra.Command{
		Use:   "rate [message-id] [score]",
		Short: "Rate a message from 0 to 1",
		Args:  cobra.ExactArgs(2),
		Run:   runRate,
	}

	RootCmd.AddCommand(reactCmd, rateCmd)
}

// readableMessage loads a message and checks the acting user can read its branch.
func (a *app) readableMessage(cmd *cobra.Command, id string) *model.Message {
	ctx := cmd.Context()
	m, err := a.store.GetMessage(ctx, id)
	if err != nil {
		exitErr("message", err)
	}
	b, err := a.store.GetBranch(ctx, m.BranchID)
	if err != nil {
		exitErr("branch", err)
	}
	a.authorize(ctx, b, model.LevelReader)
	return m
}

func runReact(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.Close()

	m := a.readableMessage(cmd, args[0])
	err := a.store.AddReaction(cmd.Context(), model.Reaction{MessageID: m.ID, UserID: userID, Emoji: args[1]})
	if err != nil {
		exitErr("react", err)
	}
	fmt.Printf(`{"ok":true,"message_id":%q,"emoji":%q}`+"\n", m.ID, args[1])
}

func runRate(cmd *cobra.Command, args []string) {
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		exitErr("rate", fmt.Errorf("invalid score %q", args[1]))
	}

	a := openApp()
	defer a.Close()

	m := a.readableMessage(cmd, args[0])
	if err := a.store.AddRating(cmd.Context(), m.ID, userID, score); err != nil {
		exitErr("rate", err)
	}
	fmt.Printf(`{"ok":true,"message_id":%q,"score":%g}`+"\n", m.ID, score)
}
