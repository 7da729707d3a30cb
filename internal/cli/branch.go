package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rcliao/branch-memory/internal/model"
	"github.com/rcliao/branch-memory/internal/store"
)

func init() {
	branchCmd := &cobra.Command{
		Use:   "branch",
		Short: "Branch management",
	}

	createCmd := &cobra.Command{
		Use:   "create [key]",
		Short: "Create a branch",
		Long:  "Create a branch in the chat. The creator becomes its owner. A child branch needs writer access on the parent.",
		Args:  cobra.ExactArgs(1),
		Run:   runBranchCreate,
	}
	createCmd.Flags().String("name", "", "Display name (default: key)")
	createCmd.Flags().String("desc", "", "Description")
	createCmd.Flags().StringP("parent", "p", "", "Parent branch key")
	createCmd.Flags().String("access", "public", "Access: public, protected, private")
	createCmd.Flags().String("inherit", "", "Inheritance policy: NONE, READ, FULL")

	editCmd := &cobra.Command{
		Use:   "edit [key]",
		Short: "Edit a branch (admin)",
		Args:  cobra.ExactArgs(1),
		Run:   runBranchEdit,
	}
	editCmd.Flags().String("key", "", "New key")
	editCmd.Flags().String("name", "", "New display name")
	editCmd.Flags().String("desc", "", "New description")
	editCmd.Flags().String("access", "", "New access: public, protected, private")
	editCmd.Flags().StringP("parent", "p", "", "New parent branch key")
	editCmd.Flags().Bool("root", false, "Detach from the parent")

	infoCmd := &cobra.Command{
		Use:   "info [key]",
		Short: "Show a branch with its grants",
		Args:  cobra.ExactArgs(1),
		Run:   runBranchInfo,
	}

	treeCmd := &cobra.Command{
		Use:   "tree",
		Short: "Show the branch tree of the chat",
		Run:   runBranchTree,
	}
	treeCmd.Flags().Bool("all", false, "Include deleted branches")

	branchCmd.AddCommand(createCmd, editCmd, infoCmd, treeCmd)
	RootCmd.AddCommand(branchCmd)
}

func runBranchCreate(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")
	desc, _ := cmd.Flags().GetString("desc")
	parentKey, _ := cmd.Flags().GetString("parent")
	accessStr, _ := cmd.Flags().GetString("access")
	inherit, _ := cmd.Flags().GetString("inherit")

	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	var parentID string
	if parentKey != "" {
		parent := a.branch(ctx, parentKey)
		a.authorize(ctx, parent, model.LevelWriter)
		parentID = parent.ID
	}

	b, err := a.store.CreateBranch(ctx, store.CreateBranchParams{
		ChatID:      chatID,
		Key:         args[0],
		Name:        name,
		Description: desc,
		ParentID:    parentID,
		Access:      model.Access(accessStr),
		Inheritance: model.Inheritance(strings.ToUpper(inherit)),
		CreatedBy:   userID,
	})
	if err != nil {
		exitErr("create branch", err)
	}
	output(b, func(w io.Writer) { fmt.Fprintf(w, "created %s (%s)\n", b.Key, b.ID) })
}

func runBranchEdit(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, args[0])
	a.authorize(ctx, b, model.LevelAdmin)

	var p store.UpdateBranchParams
	flags := cmd.Flags()
	if flags.Changed("key") {
		v, _ := flags.GetString("key")
		p.Key = &v
	}
	if flags.Changed("name") {
		v, _ := flags.GetString("name")
		p.Name = &v
	}
	if flags.Changed("desc") {
		v, _ := flags.GetString("desc")
		p.Description = &v
	}
	if flags.Changed("access") {
		v, _ := flags.GetString("access")
		acc := model.Access(v)
		p.Access = &acc
	}
	if root, _ := flags.GetBool("root"); root {
		empty := ""
		p.ParentID = &empty
	} else if flags.Changed("parent") {
		key, _ := flags.GetString("parent")
		parent := a.branch(ctx, key)
		a.authorize(ctx, parent, model.LevelWriter)
		p.ParentID = &parent.ID
	}

	updated, err := a.store.UpdateBranch(ctx, b.ID, p)
	if err != nil {
		exitErr("edit branch", err)
	}
	output(updated, func(w io.Writer) { fmt.Fprintf(w, "updated %s\n", updated.Key) })
}

type branchInfo struct {
	Branch    *model.Branch `json:"branch" yaml:"branch"`
	Effective model.Level   `json:"effective_level" yaml:"effective_level"`
	Grants    []model.Grant `json:"grants" yaml:"grants"`
}

func runBranchInfo(cmd *cobra.Command, args []string) {
	a := openApp()
	defer a.Close()
	ctx := cmd.Context()

	b := a.branch(ctx, args[0])
	a.authorize(ctx, b, model.LevelReader)
	level, _ := a.resolver.Effective(ctx, userID, b.ID)

	grants, err := a.store.ListGrants(ctx, b.ID)
	if err != nil {
		exitErr("list grants", err)
	}

	info := branchInfo{Branch: b, Effective: level, Grants: grants}
	output(info, func(w io.Writer) {
		fmt.Fprintf(w, "%s  %s\n", b.Key, b.Name)
		if b.Description != "" {
			fmt.Fprintf(w, "  %s\n", b.Description)
		}
		fmt.Fprintf(w, "  access=%s inheritance=%s status=%s you=%s\n", b.Access, b.Inheritance, b.Status, level)
		for _, g := range grants {
			fmt.Fprintf(w, "  user %d: %s\n", g.UserID, g.Level)
		}
	})
}

func runBranchTree(cmd *cobra.Command, args []string) {
	all, _ := cmd.Flags().GetBool("all")

	a := openApp()
	defer a.Close()

	branches, err := a.store.ListBranches(cmd.Context(), chatID)
	if err != nil {
		exitErr("list branches", err)
	}
	if !all {
		kept := branches[:0]
		for _, b := range branches {
			if b.Status != model.StatusDeleted {
				kept = append(kept, b)
			}
		}
		branches = kept
	}

	output(branches, func(w io.Writer) { writeTree(w, branches) })
}

// writeTree prints branches indented under their parents. Branches whose
// parent is not in the list are printed as roots.
func writeTree(w io.Writer, branches []model.Branch) {
	present := make(map[string]bool, len(branches))
	for _, b := range branches {
		present[b.ID] = true
	}
	children := make(map[string][]model.Branch)
	for _, b := range branches {
		parent := b.ParentID
		if !present[parent] {
			parent = ""
		}
		children[parent] = append(children[parent], b)
	}

	visited := make(map[string]bool)
	var walk func(parent string, depth int)
	walk = func(parent string, depth int) {
		for _, b := range children[parent] {
			if visited[b.ID] {
				continue
			}
			visited[b.ID] = true
			status := ""
			if b.Status != model.StatusOpen {
				status = " [" + string(b.Status) + "]"
			}
			fmt.Fprintf(w, "%s%s  %s%s\n", strings.Repeat("  ", depth), b.Key, b.Name, status)
			walk(b.ID, depth+1)
		}
	}
	walk("", 0)
}
