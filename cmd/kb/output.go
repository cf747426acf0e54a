package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/kodblock/internal/client"
	"github.com/alfredjeanlab/kodblock/internal/codegen"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printError(err error) {
	fmt.Fprintln(os.Stderr, ui.RenderError("Error: "+err.Error()))
	for _, f := range fieldErrors(err) {
		fmt.Fprintf(os.Stderr, "  %s: %s\n", f.Field, f.Message)
	}
}

// fieldErrors extracts per-field detail from an HTTP validation response.
func fieldErrors(err error) []model.FieldError {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}

func printExpression(w io.Writer, expr string) {
	if expr == "" {
		fmt.Fprintln(w, ui.RenderMuted("(empty expression)"))
		return
	}
	fmt.Fprintln(w, ui.RenderExpression(expr))
}

func printDraft(w io.Writer, d *model.Draft) {
	fmt.Fprintf(w, "ID:          %s\n", d.ID)
	fmt.Fprintf(w, "Name:        %s\n", d.Name)
	fmt.Fprintf(w, "Mode:        %s\n", d.Mode)
	if d.CreatedBy != "" {
		fmt.Fprintf(w, "Created By:  %s\n", d.CreatedBy)
	}
	if !d.CreatedAt.IsZero() {
		fmt.Fprintf(w, "Created At:  %s\n", d.CreatedAt.Format("2006-01-02 15:04:05"))
	}
	if !d.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "Updated At:  %s\n", d.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintln(w)
	printBlocks(w, d.Blocks)
	fmt.Fprintln(w)
	printExpression(w, codegen.Serialize(d.Blocks, d.Mode))
}

func printBlocks(w io.Writer, c model.Collection) {
	if c.Len() == 0 {
		fmt.Fprintln(w, ui.RenderMuted("no blocks"))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tTYPE\tKIND\tCLAUSE")
	for i, b := range c.Blocks() {
		clause, ok := codegen.Clause(b)
		if !ok {
			clause = "(empty)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i, b.Type, b.Kind, clause)
	}
	tw.Flush()
}

func printDraftList(w io.Writer, drafts []*model.Draft, total int) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMODE\tBLOCKS\tUPDATED")
	for _, d := range drafts {
		name := d.Name
		if len([]rune(name)) > 40 {
			name = string([]rune(name)[:37]) + "..."
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n",
			d.ID, name, d.Mode, d.Blocks.Len(), d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d drafts (%d total)\n", len(drafts), total)
}

func printBlockTypes(w io.Writer, types []model.BlockType) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tKIND\tFIELD\tOPTIONS")
	for _, t := range types {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.Kind, t.Field, strings.Join(t.Options, ", "))
	}
	tw.Flush()
}

func printPlates(w io.Writer, valid, invalid []string) {
	for _, p := range valid {
		fmt.Fprintln(w, ui.RenderSuccess("✓ ")+p)
	}
	for _, p := range invalid {
		fmt.Fprintln(w, ui.RenderError("✗ ")+p)
	}
	if msg := model.InvalidPlatesMessage(invalid); msg != "" {
		fmt.Fprintln(w, ui.RenderMuted(msg))
	}
}
