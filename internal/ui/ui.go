// Package ui provides terminal rendering helpers shared by the rmd
// commands. Styling degrades to plain text when stdout is not a
// terminal or the profile reports no color support.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))

	priorityStyles = map[string]lipgloss.Style{
		"urgent":    lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		"important": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"chill":     lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"someday":   lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
		"waiting":   lipgloss.NewStyle().Foreground(lipgloss.Color("13")),
	}
)

// Plain reports whether styling should be suppressed.
func Plain() bool {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return true
	}
	return termenv.ColorProfile() == termenv.Ascii
}

func render(style lipgloss.Style, s string) string {
	if Plain() {
		return s
	}
	return style.Render(s)
}

// RenderAccent highlights informational markers.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderPass highlights success markers.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn highlights warnings.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail highlights errors.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderDim de-emphasizes secondary text.
func RenderDim(s string) string { return render(dimStyle, s) }

// RenderPriority colors a priority label by urgency.
func RenderPriority(priority string) string {
	style, ok := priorityStyles[priority]
	if !ok {
		return priority
	}
	return render(style, priority)
}

// Width returns the terminal width, or 80 when unavailable.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}
