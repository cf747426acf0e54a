package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kodblock/internal/client"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/ui"
)

var draftCmd = &cobra.Command{
	Use:     "draft",
	Short:   "Create and edit saved drafts",
	GroupID: "drafts",
}

var draftCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		from, _ := cmd.Flags().GetString("from")

		req := &client.CreateDraftRequest{
			Name:      args[0],
			Mode:      model.Mode(mode),
			CreatedBy: actor,
		}
		if from != "" {
			data, err := readInput(cmd.InOrStdin(), from)
			if err != nil {
				return err
			}
			blocks, fileMode, err := decodeCollection(data)
			if err != nil {
				return err
			}
			req.Blocks = blocks
			if req.Mode == "" {
				req.Mode = fileMode
			}
		}
		d, err := builderClient.CreateDraft(context.Background(), req)
		if err != nil {
			return fmt.Errorf("creating draft: %w", err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

var draftListCmd = &cobra.Command{
	Use:   "list",
	Short: "List drafts",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.ListDraftsRequest{}
		req.Search, _ = cmd.Flags().GetString("search")
		req.CreatedBy, _ = cmd.Flags().GetString("created-by")
		req.Sort, _ = cmd.Flags().GetString("sort")
		req.Limit, _ = cmd.Flags().GetInt("limit")
		req.Offset, _ = cmd.Flags().GetInt("offset")

		resp, err := builderClient.ListDrafts(context.Background(), req)
		if err != nil {
			return fmt.Errorf("listing drafts: %w", err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printDraftList(cmd.OutOrStdout(), resp.Drafts, resp.Total)
		return nil
	},
}

var draftShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a draft with its blocks and expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := builderClient.GetDraft(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("getting draft %s: %w", args[0], err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

var draftUpdateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Rename a draft or change its mode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := &client.UpdateDraftRequest{Actor: actor}
		if cmd.Flags().Changed("name") {
			name, _ := cmd.Flags().GetString("name")
			req.Name = &name
		}
		if cmd.Flags().Changed("mode") {
			mode, _ := cmd.Flags().GetString("mode")
			m := model.Mode(mode)
			req.Mode = &m
		}
		d, err := builderClient.UpdateDraft(context.Background(), args[0], req)
		if err != nil {
			return fmt.Errorf("updating draft %s: %w", args[0], err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

var draftDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a draft",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := builderClient.DeleteDraft(context.Background(), args[0], actor); err != nil {
			return fmt.Errorf("deleting draft %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"deleted": args[0]})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", ui.RenderSuccess("deleted"), args[0])
		return nil
	},
}

var draftExprCmd = &cobra.Command{
	Use:   "expr <id>",
	Short: "Print a draft's expression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mode, _ := cmd.Flags().GetString("mode")
		expr, err := builderClient.GetExpression(context.Background(), args[0], model.Mode(mode))
		if err != nil {
			return fmt.Errorf("getting expression for %s: %w", args[0], err)
		}
		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), map[string]string{"expression": expr})
		}
		fmt.Fprintln(cmd.OutOrStdout(), expr)
		return nil
	},
}

var draftAddCmd = &cobra.Command{
	Use:   "add <id> <type>",
	Short: "Append a block of the given type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := builderClient.AddBlock(context.Background(), args[0], args[1], actor)
		if err != nil {
			return fmt.Errorf("adding block: %w", err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

var draftSetCmd = &cobra.Command{
	Use:   "set <id> <index>",
	Short: "Set a block's value, operator or negation",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		req := &client.UpdateBlockRequest{Actor: actor}
		if cmd.Flags().Changed("value") {
			v, _ := cmd.Flags().GetString("value")
			req.Value = &v
		}
		if cmd.Flags().Changed("op") {
			v, _ := cmd.Flags().GetString("op")
			op := model.Operator(v)
			req.Operator = &op
		}
		if cmd.Flags().Changed("negate") {
			v, _ := cmd.Flags().GetBool("negate")
			req.Negate = &v
		}
		d, err := builderClient.UpdateBlock(context.Background(), args[0], index, req)
		if err != nil {
			return fmt.Errorf("updating block %d: %w", index, err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

var draftToggleCmd = &cobra.Command{
	Use:   "toggle <id> <index> <option>",
	Short: "Toggle an option in a multi-select block",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		d, err := builderClient.ToggleValue(context.Background(), args[0], index, args[2], actor)
		if err != nil {
			return fmt.Errorf("toggling %s: %w", args[2], err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

var draftPlatesCmd = &cobra.Command{
	Use:   "plates <id> <index> <text...>",
	Short: "Add registration plates to a plate block",
	Args:  cobra.MinimumNArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		resp, err := builderClient.AddPlates(context.Background(), args[0], index, strings.Join(args[2:], " "), actor)
		if err != nil {
			return fmt.Errorf("adding plates: %w", err)
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, resp)
		}
		if resp.Message != "" {
			fmt.Fprintln(out, ui.RenderError(resp.Message))
		}
		printDraft(out, resp.Draft)
		return nil
	},
}

var draftRmCmd = &cobra.Command{
	Use:   "rm <id> <index>",
	Short: "Remove a block",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		d, err := builderClient.RemoveBlock(context.Background(), args[0], index, actor)
		if err != nil {
			return fmt.Errorf("removing block %d: %w", index, err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

var draftMvCmd = &cobra.Command{
	Use:   "mv <id> <from> <to>",
	Short: "Move a block to a new position",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		from, err := parseIndex(args[1])
		if err != nil {
			return err
		}
		to, err := parseIndex(args[2])
		if err != nil {
			return err
		}
		d, err := builderClient.MoveBlock(context.Background(), args[0], from, to, actor)
		if err != nil {
			return fmt.Errorf("moving block: %w", err)
		}
		return showDraft(cmd.OutOrStdout(), d)
	},
}

func showDraft(w io.Writer, d *model.Draft) error {
	if jsonOutput {
		return printJSON(w, d)
	}
	printDraft(w, d)
	return nil
}

func parseIndex(s string) (int, error) {
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid block index %q", s)
	}
	return i, nil
}

func init() {
	draftCreateCmd.Flags().String("mode", "", "serialization mode (joined or literal)")
	draftCreateCmd.Flags().String("from", "", "read initial blocks from a JSON file (- for stdin)")

	draftListCmd.Flags().String("search", "", "filter by name")
	draftListCmd.Flags().String("created-by", "", "filter by creator")
	draftListCmd.Flags().String("sort", "-updated_at", "sort field (name, created_at, updated_at; - prefix for descending)")
	draftListCmd.Flags().Int("limit", 50, "maximum number of drafts")
	draftListCmd.Flags().Int("offset", 0, "number of drafts to skip")

	draftUpdateCmd.Flags().String("name", "", "new name")
	draftUpdateCmd.Flags().String("mode", "", "new mode (joined or literal)")

	draftExprCmd.Flags().String("mode", "", "render in this mode instead of the draft's")

	draftSetCmd.Flags().String("value", "", "new value")
	draftSetCmd.Flags().String("op", "", "comparison operator (=, !=, <, >, <=, >=)")
	draftSetCmd.Flags().Bool("negate", false, "negate the clause")

	draftCmd.AddCommand(
		draftCreateCmd,
		draftListCmd,
		draftShowCmd,
		draftUpdateCmd,
		draftDeleteCmd,
		draftExprCmd,
		draftAddCmd,
		draftSetCmd,
		draftToggleCmd,
		draftPlatesCmd,
		draftRmCmd,
		draftMvCmd,
	)
}
