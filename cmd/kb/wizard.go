package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/kodblock/internal/client"
	"github.com/alfredjeanlab/kodblock/internal/model"
	"github.com/alfredjeanlab/kodblock/internal/ui"
	"github.com/alfredjeanlab/kodblock/internal/wizard"
)

var errWizardAborted = errors.New("wizard aborted")

var wizardCmd = &cobra.Command{
	Use:   "wizard",
	Short: "Build an expression step by step",
	Long: `Wizard asks for vehicle type, traffic status, fuel or body, usage and plate,
then prints the resulting expression.

With --answers the questions are answered non-interactively, for example:

  kb wizard --answers vehicle=Personbil,in_traffic=JA,fuel=EL

With --save the result is stored as a new draft on the server.`,
	GroupID: "builder",
	Args:    cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if name, _ := cmd.Flags().GetString("save"); name == "" {
			return nil
		}
		return rootCmd.PersistentPreRunE(cmd, args)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		pairs, _ := cmd.Flags().GetStringSlice("answers")
		save, _ := cmd.Flags().GetString("save")
		answers, err := parseAnswers(pairs)
		if err != nil {
			return err
		}

		var w wizard.Wizard
		if len(answers) > 0 {
			w, err = wizard.Replay(answers)
		} else {
			w, err = runWizardTUI()
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if save != "" {
			d, err := builderClient.CreateDraft(context.Background(), &client.CreateDraftRequest{
				Name:      save,
				Mode:      model.ModeJoined,
				Blocks:    w.Collection(),
				CreatedBy: actor,
			})
			if err != nil {
				return fmt.Errorf("saving draft: %w", err)
			}
			if jsonOutput {
				return printJSON(out, d)
			}
			fmt.Fprintf(out, "%s %s\n", ui.RenderSuccess("saved draft"), d.ID)
			printExpression(out, w.Expression())
			return nil
		}

		if jsonOutput {
			return printJSON(out, client.WizardResult{Blocks: w.Collection(), Expression: w.Expression()})
		}
		printExpression(out, w.Expression())
		return nil
	},
}

func runWizardTUI() (wizard.Wizard, error) {
	final, err := tea.NewProgram(ui.NewWizardModel()).Run()
	if err != nil {
		return wizard.Wizard{}, fmt.Errorf("running wizard: %w", err)
	}
	m := final.(ui.WizardModel)
	if m.Aborted() || !m.Wizard().Done() {
		return wizard.Wizard{}, errWizardAborted
	}
	return m.Wizard(), nil
}

// parseAnswers turns step=value pairs into a Replay answer map.
func parseAnswers(pairs []string) (map[string]string, error) {
	answers := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid answer %q (want step=value)", p)
		}
		answers[k] = v
	}
	return answers, nil
}

func init() {
	wizardCmd.Flags().StringSlice("answers", nil, "answers keyed by step (vehicle, in_traffic, fuel, body, usage, plate)")
	wizardCmd.Flags().String("save", "", "save the result as a draft with this name")
}
