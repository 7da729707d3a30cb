package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/assembler"
	"github.com/rcliao/branch-memory/internal/model"
)

func init() {
	cmd := &cobra.Command{
		Use:   "context [message]",
		Short: "Assemble the prompt context for a message",
		Long: "Extract tags, gather relevant and notable messages, and print the prompt turns " +
			"that would be sent to the completion backend. Use --bundle to print the selected items instead.",
		Args: cobra.MinimumNArgs(1),
		Run:  runContext,
	}

	cmd.Flags().StringP("branch", "b", "", "Branch key (required)")
	cmd.Flags().Bool("bundle", false, "Print the context bundle instead of the prompt turns")
	cmd.MarkFlagRequired("branch")

	RootCmd.AddCommand(cmd)
}

func runContext(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("branch")
	bundleOnly, _ := cmd.Flags().GetBool("bundle")
	message := strings.Join(args, " ")

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, key)
	a.authorize(ctx, b, model.LevelReader)

	if bundleOnly {
		bundle, err := a.builder.Assemble(ctx, message, b.ID, chatID)
		if err != nil {
			exitErr("assemble context", err)
		}
		output(bundle, func(w io.Writer) { writeBundle(w, bundle) })
		return
	}

	turns := a.builder.Build(ctx, message, b.ID, chatID, userID)
	output(turns, func(w io.Writer) {
		for _, t := range turns {
			fmt.Fprintf(w, "[%s]\n%s\n\n", t.Role, t.Content)
		}
	})
}

func writeBundle(w io.Writer, bundle assembler.Bundle) {
	fmt.Fprintf(w, "tags: %s\n", strings.Join(bundle.Tags, ", "))
	for _, items := range [][]assembler.Item{bundle.Main, bundle.Notable, bundle.Related} {
		for _, it := range items {
			fmt.Fprintf(w, "%-8s %.2f  %s  %s\n", it.Source, it.Strength, it.MessageID, assembler.Preview(it.Content, 60))
		}
	}
}
