package cli

import (
	"encoding/json"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	styleOK   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleWarn = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleErr  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	styleDim  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// IsJSONOutput reports whether machine-readable output was requested.
func IsJSONOutput() bool {
	return outputJSON
}

// WriteOutput encodes value as indented JSON to out.
func WriteOutput(out io.Writer, value any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// IsNonInteractive reports whether prompts should be skipped and defaults
// used.
func IsNonInteractive() bool {
	if nonInteractive {
		return true
	}
	if _, ok := os.LookupEnv("AUTOPILOT_NON_INTERACTIVE"); ok {
		return true
	}
	return !hasTTY()
}

func hasTTY() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// badge renders a colored status label, plain when output is not a TTY.
func badge(label string, style lipgloss.Style) string {
	if !hasTTY() {
		return label
	}
	return style.Render(label)
}

// usageBadge classifies a utilization percentage against a threshold.
func usageBadge(percent, threshold float64) string {
	switch {
	case percent >= threshold:
		return badge("CRIT", styleErr)
	case percent >= threshold*0.75:
		return badge("WARN", styleWarn)
	default:
		return badge("OK", styleOK)
	}
}
