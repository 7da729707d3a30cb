package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export a chat as JSON or YAML",
		Long:  "Export the branches, grants and messages (with tags) of the chat selected by --chat. Use -f yaml for YAML.",
		Run:   runExport,
	}

	RootCmd.AddCommand(cmd)
}

func runExport(cmd *cobra.Command, args []string) {
	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	exp, err := s.ExportChat(cmd.Context(), chatID)
	if err != nil {
		exitErr("export", err)
	}

	output(exp, nil)
}
