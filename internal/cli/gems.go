package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/assembler"
)

func init() {
	cmd := &cobra.Command{
		Use:   "gems",
		Short: "List notable messages of the chat",
		Long: "Surface recent messages that are broadly tagged, widely reacted to, or highly rated. " +
			"Each listed message has its novelty and potential scores raised.",
		Run: runGems,
	}

	cmd.Flags().Int("days", 30, "Lookback window in days")
	cmd.Flags().IntP("limit", "l", 20, "Max results")

	RootCmd.AddCommand(cmd)
}

func runGems(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	limit, _ := cmd.Flags().GetInt("limit")

	a := openApp()
	defer a.Close()

	found, err := a.detector.Scan(cmd.Context(), chatID, days, limit)
	if err != nil {
		exitErr("scan gems", err)
	}

	output(found, func(w io.Writer) {
		for _, g := range found {
			fmt.Fprintf(w, "%-10s %.2f  %s  %s\n", g.Signal, g.Weighted, g.ID, assembler.Preview(g.Content, 60))
		}
	})
}
