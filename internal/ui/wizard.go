package ui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/alfredjeanlab/kodblock/internal/wizard"
)

// WizardModel drives a wizard.Wizard from the terminal. Option steps are
// picked with the arrow keys; the plate step takes free text.
//
// Keys: up/down (k/j) move, enter answers, tab skips an optional step,
// esc goes back, ctrl+c quits.
type WizardModel struct {
	w       wizard.Wizard
	cursor  int
	input   textinput.Model
	err     string
	aborted bool
}

// NewWizardModel starts a fresh wizard.
func NewWizardModel() WizardModel {
	ti := textinput.New()
	ti.Placeholder = "ABC123 DEF45G"
	ti.CharLimit = 256
	m := WizardModel{w: wizard.New(), input: ti}
	return m.syncInput()
}

// Wizard returns the underlying wizard state.
func (m WizardModel) Wizard() wizard.Wizard { return m.w }

// Aborted reports whether the user quit before finishing.
func (m WizardModel) Aborted() bool { return m.aborted }

// Init implements tea.Model.
func (m WizardModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m WizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		if m.textStep() {
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			return m, cmd
		}
		return m, nil
	}

	switch key.Type {
	case tea.KeyCtrlC:
		m.aborted = true
		return m, tea.Quit
	case tea.KeyEsc:
		return m.apply(m.w.Back())
	case tea.KeyTab:
		return m.apply(m.w.Skip())
	case tea.KeyEnter:
		if m.textStep() {
			return m.apply(m.w.Respond(m.input.Value()))
		}
		opts := m.w.Current().Options()
		if len(opts) == 0 {
			return m, nil
		}
		return m.apply(m.w.Respond(opts[m.cursor]))
	}

	if m.textStep() {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}

	n := len(m.w.Current().Options())
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < n-1 {
			m.cursor++
		}
	case "q":
		m.aborted = true
		return m, tea.Quit
	}
	return m, nil
}

// apply installs the result of a wizard transition, keeping the old state
// and showing the error when it failed.
func (m WizardModel) apply(next wizard.Wizard, err error) (tea.Model, tea.Cmd) {
	if err != nil {
		if errors.Is(err, wizard.ErrAtStart) {
			return m, nil
		}
		m.err = err.Error()
		return m, nil
	}
	m.w = next
	m.err = ""
	m.cursor = 0
	m = m.syncInput()
	if m.w.Done() {
		return m, tea.Quit
	}
	return m, nil
}

func (m WizardModel) textStep() bool {
	return m.w.Current() == wizard.StepPlate
}

func (m WizardModel) syncInput() WizardModel {
	if m.textStep() {
		m.input.Reset()
		m.input.Focus()
	} else {
		m.input.Blur()
	}
	return m
}

// View implements tea.Model.
func (m WizardModel) View() string {
	var b strings.Builder
	if m.w.Done() {
		b.WriteString(RenderTitle("Kodblock") + "\n")
		b.WriteString(RenderExpression(m.w.Expression()) + "\n")
		return b.String()
	}

	step := m.w.Current()
	b.WriteString(RenderTitle(step.Prompt()) + "\n\n")

	if m.textStep() {
		b.WriteString(m.input.View() + "\n")
	} else {
		for i, opt := range step.Options() {
			if i == m.cursor {
				b.WriteString(RenderAccent("> "+opt) + "\n")
			} else {
				fmt.Fprintf(&b, "  %s\n", opt)
			}
		}
	}

	if m.err != "" {
		b.WriteString("\n" + RenderError(m.err) + "\n")
	}

	if expr := m.w.Expression(); expr != "" {
		b.WriteString("\n" + RenderMuted(expr) + "\n")
	}

	help := "enter: välj  esc: tillbaka  ctrl+c: avbryt"
	if step.Optional() {
		help = "enter: välj  tab: hoppa över  esc: tillbaka  ctrl+c: avbryt"
	}
	b.WriteString("\n" + RenderMuted(help) + "\n")
	return b.String()
}
