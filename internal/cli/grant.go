package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/store"
)

func init() {
	grantCmd := &cobra.Command{
		Use:   "grant [branch] [user] [level]",
		Short: "Grant or revoke a branch permission (admin)",
		Long:  "Grant reader, writer, admin or owner to a user. Granting owner requires owner. Use --remove to revoke.",
		Args:  cobra.RangeArgs(2, 3),
		Run:   runGrant,
	}
	grantCmd.Flags().Bool("remove", false, "Revoke the user's grant")

	policyCmd := &cobra.Command{
		Use:   "policy [branch] [NONE|READ|FULL]",
		Short: "Set a branch inheritance policy (admin)",
		Args:  cobra.ExactArgs(2),
		Run:   runPolicy,
	}

	statusCmd := &cobra.Command{
		Use:   "status [branch] [open|closed|archived|deleted]",
		Short: "Change a branch status",
		Long:  "Open, close or archive a branch (admin), or soft-delete it (owner).",
		Args:  cobra.ExactArgs(2),
		Run:   runStatus,
	}

	RootCmd.AddCommand(grantCmd, policyCmd, statusCmd)
}

func runGrant(cmd *cobra.Command, args []string) {
	remove, _ := cmd.Flags().GetBool("remove")

	target, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		exitErr("grant", fmt.Errorf("invalid user id %q", args[1]))
	}
	level := model.LevelNone
	if !remove {
		if len(args) < 3 {
			exitErr("grant", fmt.Errorf("level is required unless --remove is set"))
		}
		l, err := model.ParseLevel(args[2])
		if err != nil {
			exitErr("grant", err)
		}
		level = l
	}

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, args[0])
	// Owners are only made or unmade by owners.
	required := model.LevelAdmin
	if current, ok, _ := a.store.DirectGrant(ctx, target, b.ID); level == model.LevelOwner || (ok && current == model.LevelOwner) {
		required = model.LevelOwner
	}
	a.authorize(ctx, b, required)

	g, err := a.store.Grant(ctx, store.GrantParams{
		BranchID:  b.ID,
		UserID:    target,
		Level:     level,
		GrantedBy: userID,
		Remove:    remove,
	})
	if err != nil {
		exitErr("grant", err)
	}
	output(g, func(w io.Writer) { fmt.Fprintf(w, "user %d is %s on %s\n", g.UserID, g.Level, b.Key) })
}

func runPolicy(cmd *cobra.Command, args []string) {
	policy := model.Inheritance(strings.ToUpper(args[1]))
	if !model.ValidInheritance[policy] {
		exitErr("policy", fmt.Errorf("invalid inheritance %q (valid: NONE, READ, FULL)", args[1]))
	}

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, args[0])
	a.authorize(ctx, b, model.LevelAdmin)

	updated, err := a.store.UpdateBranch(ctx, b.ID, store.UpdateBranchParams{Inheritance: &policy})
	if err != nil {
		exitErr("policy", err)
	}
	output(updated, func(w io.Writer) { fmt.Fprintf(w, "%s inherits %s\n", updated.Key, updated.Inheritance) })
}

func runStatus(cmd *cobra.Command, args []string) {
	status := model.Status(strings.ToLower(args[1]))
	if !model.ValidStatuses[status] {
		exitErr("status", fmt.Errorf("invalid status %q (valid: open, closed, archived, deleted)", args[1]))
	}

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, args[0])
	required := model.LevelAdmin
	if status == model.StatusDeleted {
		required = model.LevelOwner
	}
	a.authorize(ctx, b, required)

	if err := a.store.SetStatus(ctx, b.ID, status); err != nil {
		exitErr("status", err)
	}
	fmt.Printf(`{"ok":true,"branch":%q,"status":%q}`+"\n", b.Key, status)
}
