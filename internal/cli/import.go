package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/branch-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "import [file]",
		Short: "Import a chat export",
		Long:  "Import a chat from JSON or YAML (file or stdin). Expects the format produced by export. Existing rows are kept.",
		Args:  cobra.MaximumNArgs(1),
		Run:   runImport,
	}

	RootCmd.AddCommand(cmd)
}

func runImport(cmd *cobra.Command, args []string) {
	var data []byte
	var err error
	if len(args) == 1 {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		exitErr("read input", err)
	}

	exp, err := decodeExport(data)
	if err != nil {
		exitErr("parse export", err)
	}

	s, err := openStore()
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	imported, err := s.ImportChat(cmd.Context(), exp)
	if err != nil {
		exitErr("import", err)
	}

	fmt.Printf(`{"ok":true,"chat_id":%d,"imported":%d}`+"\n", exp.ChatID, imported)
}

// decodeExport accepts the JSON or YAML form of an export.
func decodeExport(data []byte) (*store.ChatExport, error) {
	var exp store.ChatExport
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &exp); err != nil {
			return nil, err
		}
		return &exp, nil
	}
	if err := yaml.Unmarshal(trimmed, &exp); err != nil {
		return nil, err
	}
	return &exp, nil
}
