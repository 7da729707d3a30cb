package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "post [content]",
		Short: "Post a message to a branch",
		Long: "Post a message to a branch (writer). Tags are extracted from the content and linked; " +
			"subscribers who can still read the branch are reported for notification. " +
			"Content can be a positional arg or piped via stdin.",
		Run: runPost,
	}

	cmd.Flags().StringP("branch", "b", "", "Branch key (required)")
	cmd.Flags().StringP("lang", "l", "", "Language code of the message")
	cmd.MarkFlagRequired("branch")

	RootCmd.AddCommand(cmd)
}

type postResult struct {
	Message *model.Message `json:"message" yaml:"message"`
	Notify  []int64        `json:"notify" yaml:"notify"`
}

func runPost(cmd *cobra.Command, args []string) {
	key, _ := cmd.Flags().GetString("branch")
	lang, _ := cmd.Flags().GetString("lang")

	content := readContent(args)
	if content == "" {
		exitErr("post", fmt.Errorf("content is required (positional arg or stdin)"))
	}

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, key)
	if b.Status != model.StatusOpen {
		exitErr("post", fmt.Errorf("branch %s is %s", b.Key, b.Status))
	}
	a.authorize(ctx, b, model.LevelWriter)

	msg, err := a.store.PutMessage(ctx, store.PutMessageParams{
		ChatID:   chatID,
		BranchID: b.ID,
		UserID:   userID,
		Content:  content,
		Language: lang,
	})
	if err != nil {
		exitErr("post", err)
	}

	msg.Tags = a.extractor.Extract(content)
	if err := a.persister.Persist(ctx, msg.ID, msg.Tags); err != nil {
		logger.Warn("persist tags", zap.String("message_id", msg.ID), zap.Error(err))
	}

	notify, err := a.resolver.NotifyTargets(ctx, a.store, b.ID, userID)
	if err != nil {
		logger.Warn("list subscribers", zap.String("branch_id", b.ID), zap.Error(err))
	}

	res := postResult{Message: msg, Notify: notify}
	output(res, func(w io.Writer) {
		fmt.Fprintf(w, "%s [%s]\n", msg.ID, strings.Join(msg.Tags, ", "))
	})
}

// readContent returns the joined positional args, or stdin when it is piped.
func readContent(args []string) string {
	if len(args) > 0 {
		return strings.TrimSpace(strings.Join(args, " "))
	}
	stat, _ := os.Stdin.Stat()
	if (stat.Mode() & os.ModeCharDevice) == 0 {
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			exitErr("read stdin", err)
		}
		return strings.TrimSpace(string(b))
	}
	return ""
}
