package cli

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show database statistics",
		Run:   runStats,
	}

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	stats, err := s.Stats(cmd.Context(), cfg.DB)
	if err != nil {
		exitErr("stats", err)
	}

	output(stats, func(w io.Writer) {
		fmt.Fprintf(w, "database      %s (%s)\n", stats.DBPath, humanize.Bytes(uint64(stats.DBSizeBytes)))
		fmt.Fprintf(w, "branches      %d\n", stats.Branches)
		fmt.Fprintf(w, "messages      %d\n", stats.Messages)
		fmt.Fprintf(w, "tags          %d (%d related edges)\n", stats.Tags, stats.RelatedEdges)
		fmt.Fprintf(w, "reactions     %d\n", stats.Reactions)
		fmt.Fprintf(w, "ratings       %d\n", stats.Ratings)
		fmt.Fprintf(w, "subscriptions %d\n", stats.Subscriptions)
		for _, c := range stats.Chats {
			fmt.Fprintf(w, "chat %d: %d branches, %d messages\n", c.ChatID, c.Branches, c.Messages)
		}
	})
}
