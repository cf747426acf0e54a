package main

import (
	"bytes"
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kodblock/internal/ui"
)

// helpRule styles one capture group of a pattern in cobra's help text.
type helpRule struct {
	re     *regexp.Regexp
	render func(string) string
}

// Section headers ("Drafts:", "Flags:"), command names in listings, flag
// type annotations and "(default ...)" suffixes.
var helpRules = []helpRule{
	{regexp.MustCompile(`(?m)^([A-Z][^\n]*:)[ \t]*$`), ui.RenderAccent},
	{regexp.MustCompile(`(?m)^  ([a-z][\w-]*)  `), ui.RenderCommand},
	{regexp.MustCompile(`--?\S+\s+(string|int|duration|stringToString|stringArray)\b`), ui.RenderMuted},
	{regexp.MustCompile(`(\(default [^)]*\))`), ui.RenderMuted},
}

// colorizedHelpFunc returns a cobra help function that colors the default
// usage text when stdout supports it.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() {
			_ = cmd.Usage()
			return
		}
		orig := cmd.OutOrStdout()
		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(orig)
		fmt.Fprint(orig, colorizeHelp(buf.String()))
	}
}

func colorizeHelp(s string) string {
	for _, r := range helpRules {
		s = applyRule(r, s)
	}
	return s
}

// applyRule replaces the first capture group of every match with its
// rendered form, leaving the rest of the match intact.
func applyRule(r helpRule, s string) string {
	var out bytes.Buffer
	last := 0
	for _, m := range r.re.FindAllStringSubmatchIndex(s, -1) {
		start, end := m[2], m[3]
		out.WriteString(s[last:start])
		out.WriteString(r.render(s[start:end]))
		last = end
	}
	out.WriteString(s[last:])
	return out.String()
}
