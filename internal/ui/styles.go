package ui

import "github.com/charmbracelet/lipgloss"

// ANSI256 color codes matching the Ayu palette.
const (
	colorAccent  = lipgloss.Color("74")  // blue
	colorCmd     = lipgloss.Color("250") // light gray
	colorMuted   = lipgloss.Color("245") // medium gray
	colorError   = lipgloss.Color("203") // red
	colorSuccess = lipgloss.Color("114") // green
)

var (
	noColor bool

	accentStyle     = lipgloss.NewStyle().Foreground(colorAccent)
	mutedStyle      = lipgloss.NewStyle().Foreground(colorMuted)
	commandStyle    = lipgloss.NewStyle().Foreground(colorCmd)
	errorStyle      = lipgloss.NewStyle().Foreground(colorError)
	successStyle    = lipgloss.NewStyle().Foreground(colorSuccess)
	titleStyle      = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	expressionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorMuted).
			Padding(0, 1)
)

func render(st lipgloss.Style, s string) string {
	if noColor {
		return s
	}
	return st.Render(s)
}

// RenderAccent returns s in the accent (blue) color.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderMuted returns s in the muted (gray) color.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderCommand returns s styled as a command name (light gray).
func RenderCommand(s string) string { return render(commandStyle, s) }

// RenderError returns s in the error (red) color.
func RenderError(s string) string { return render(errorStyle, s) }

// RenderSuccess returns s in the success (green) color.
func RenderSuccess(s string) string { return render(successStyle, s) }

// RenderTitle returns s as a bold accent heading.
func RenderTitle(s string) string { return render(titleStyle, s) }

// RenderExpression frames a generated expression.
func RenderExpression(s string) string {
	if noColor {
		return s
	}
	return expressionStyle.Render(s)
}

// ForceNoColor disables color output globally.
func ForceNoColor() {
	noColor = true
}
