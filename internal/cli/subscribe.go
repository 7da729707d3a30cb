package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "subscribe [branch]",
		Short: "Subscribe to new messages of a branch",
		Args:  cobra.ExactArgs(1),
		Run:   runSubscribe,
	}
	cmd.Flags().Bool("remove", false, "Unsubscribe")

	RootCmd.AddCommand(cmd)
}

func runSubscribe(cmd *cobra.Command, args []string) {
	remove, _ := cmd.Flags().GetBool("remove")

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, args[0])
	if !remove {
		a.authorize(ctx, b, model.LevelReader)
	}
	if err := a.store.Subscribe(ctx, b.ID, userID, remove); err != nil {
		exitErr("subscribe", err)
	}
	fmt.Printf(`{"ok":true,"branch":%q,"subscribed":%t}`+"\n", b.Key, !remove)
}
