package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/relevance"
)

func init() {
	cmd := &cobra.Command{
		Use:   "relevant [text]",
		Short: "Find branch messages related to some text",
		Long:  "Extract tags from the text and list branch messages sharing them, directly or through related tags.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runRelevant,
	}

	cmd.Flags().StringP("branch", "b", "", "Branch key (required)")
	cmd.MarkFlagRequired("branch")

	RootCmd.AddCommand(cmd)
}

type relevantResult struct {
	Tags             []string `json:"tags" yaml:"tags"`
	relevance.Result `yaml:",inline"`
}

func runRelevant(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("branch")
	text := strings.Join(args, " ")

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, key)
	a.authorize(ctx, b, model.LevelReader)

	tags := a.extractor.Extract(text)
	res, err := a.retriever.FindRelevant(ctx, tags, b.ID, chatID)
	if err != nil {
		exitErr("find relevant", err)
	}

	output(relevantResult{Tags: tags, Result: res}, func(w io.Writer) {
		fmt.Fprintf(w, "tags: %s\n", strings.Join(tags, ", "))
		for _, m := range res.Direct {
			fmt.Fprintf(w, "direct  %d  %s  %s\n", m.Score, m.ID, m.Content)
		}
		for _, m := range res.Related {
			fmt.Fprintf(w, "related %d  %s  %s\n", m.Score, m.ID, m.Content)
		}
	})
}
