package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/alexisbeaulieu97/dft/internal/engine"
	"github.com/alexisbeaulieu97/dft/internal/state"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	headerStyle  = lipgloss.NewStyle().Bold(true)
)

// renderSummary formats the per-pipeline outcomes. Styling is dropped when
// stdout is not a terminal so the output stays grep-able in CI.
func renderSummary(summary *engine.Summary) string {
	styled := term.IsTerminal(int(os.Stdout.Fd()))

	var b strings.Builder
	b.WriteString(style(headerStyle, "Run summary", styled))
	b.WriteString("\n")

	for _, result := range summary.Results {
		line := fmt.Sprintf("  %-30s %s", result.Name, styledStatus(result.Status, styled))
		if result.Windows > 0 {
			line += fmt.Sprintf("  (%d window(s))", result.Windows)
		}
		if result.Err != nil {
			line += "  " + result.Err.Error()
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	success, failure, skipped := summary.Counts()
	b.WriteString(fmt.Sprintf("%d succeeded, %d failed, %d skipped\n", success, failure, skipped))
	return b.String()
}

func styledStatus(status string, styled bool) string {
	switch status {
	case state.StatusSuccess:
		return style(successStyle, status, styled)
	case state.StatusFailure:
		return style(failureStyle, status, styled)
	case state.StatusSkipped:
		return style(skippedStyle, status, styled)
	default:
		return status
	}
}

func style(s lipgloss.Style, text string, styled bool) string {
	if !styled {
		return text
	}
	return s.Render(text)
}
