// Package cli implements the branch-memory CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rcliao/branch-memory/internal/config"
	"github.com/rcliao/branch-memory/internal/logging"
	"github.com/rcliao/branch-memory/internal/store"
)

var (
	dbPath     string
	formatFlag string
	configPath string
	logLevel   string
	chatID     int64
	userID     int64

	cfg    *config.Config
	logger = zap.NewNop()
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "branch-memory",
	Short: "Branch-scoped conversation memory",
	Long: "Stores chat messages under a tree of named branches with inheritable access control, " +
		"and assembles relevance-ranked context for each new message. SQLite-backed, single binary.",
	PersistentPreRunE: setup,
	PersistentPostRun: func(*cobra.Command, []string) { _ = logger.Sync() },
}

func init() {
	pf := RootCmd.PersistentFlags()
	pf.StringVarP(&dbPath, "db", "d", "", "Database path (default: $BRANCH_MEMORY_DB or ~/.branch-memory/memory.db)")
	pf.StringVarP(&formatFlag, "format", "f", "json", "Output format: json, yaml or text")
	pf.StringVar(&configPath, "config", "", "Config file (default: ~/.branch-memory/config.yaml)")
	pf.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	pf.Int64VarP(&chatID, "chat", "c", 0, "Chat ID")
	pf.Int64VarP(&userID, "user", "u", 0, "Acting user ID")
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if dbPath != "" {
		c.DB = dbPath
	}
	if logLevel != "" {
		c.Log.Level = logLevel
	}
	switch formatFlag {
	case "json", "yaml", "text":
	default:
		return fmt.Errorf("invalid format %q (valid: json, yaml, text)", formatFlag)
	}

	l, err := logging.New(c.Log.Level, c.Log.Development)
	if err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(cfg.DB)
}

// output writes v in the selected format. text renders the text format;
// when it is nil, text falls back to JSON.
func output(v any, text func(w io.Writer)) {
	switch {
	case formatFlag == "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			exitErr("encode yaml", err)
		}
		enc.Close()
	case formatFlag == "text" && text != nil:
		text(os.Stdout)
	default:
		b, _ := json.MarshalIndent(v, "", "  ")
		fmt.Println(string(b))
	}
}

func exitErr(msg string, err error) {
	logger.Debug(msg, zap.Error(err))
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
