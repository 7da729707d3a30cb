package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/store"
	"github.com/rcliao/branch-memory/internal/weights"
)

func init() {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List the most used tags of the chat",
		Long: "List the most used tags with their counts and current TF-IDF weights. " +
			"Weights are computed over weights.window_days, or --days when set, and stored.",
		Run: runTags,
	}

	cmd.Flags().IntP("limit", "l", 10, "Max tags")
	cmd.Flags().Int("days", 0, "Weight window in days (default: weights.window_days)")

	RootCmd.AddCommand(cmd)
}

func runTags(cmd *cobra.Command, args []string) {
	limit, _ := cmd.Flags().GetInt("limit")
	days, _ := cmd.Flags().GetInt("days")

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	tags, err := a.store.TopTags(ctx, chatID, limit)
	if err != nil {
		exitErr("top tags", err)
	}

	var w weights.Weights
	if days > 0 {
		w, err = a.weights.Recompute(ctx, chatID, days)
		if err != nil {
			exitErr("recompute weights", err)
		}
	} else {
		ids := make([]int64, len(tags))
		for i, t := range tags {
			ids[i] = t.ID
		}
		w = a.weights.Get(ctx, ids, chatID)
	}
	applyWeights(tags, w)

	output(tags, func(w io.Writer) { writeTags(w, tags) })
}

// applyWeights replaces stored weights with current ones where w has them.
func applyWeights(tags []store.TagCount, w weights.Weights) {
	for i := range tags {
		if v, ok := w[tags[i].ID]; ok {
			tags[i].Weight = v
		}
	}
}

func writeTags(w io.Writer, tags []store.TagCount) {
	for _, t := range tags {
		fmt.Fprintf(w, "%-24s %5d  %.4f\n", t.Name, t.Count, t.Weight)
	}
}
