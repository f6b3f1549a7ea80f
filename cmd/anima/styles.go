package main

import (
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// styles are the CLI's text styles. They are all plain when the output is
// not a terminal, so piped output carries no escape codes.
type styles struct {
	Title     lipgloss.Style
	Assistant lipgloss.Style
	Prompt    lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Error     lipgloss.Style
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func newStyles(w io.Writer) styles {
	if !isTerminal(w) || os.Getenv("NO_COLOR") != "" {
		plain := lipgloss.NewStyle()
		return styles{plain, plain, plain, plain, plain, plain}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		Title:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		Assistant: r.NewStyle().Foreground(lipgloss.Color("14")),
		Prompt:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("10")),
		Muted:     r.NewStyle().Foreground(lipgloss.Color("240")),
		Success:   r.NewStyle().Foreground(lipgloss.Color("10")),
		Error:     r.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	}
}
