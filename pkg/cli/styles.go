// Package cli provides terminal output helpers for the parlo CLI.
package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Theme defines the color scheme for terminal output.
type Theme struct {
	Primary lipgloss.Color // assistant accents
	Accent  lipgloss.Color // tool activity
	Dim     lipgloss.Color // secondary text
	Error   lipgloss.Color
}

// DefaultTheme is the default green-on-dark theme.
var DefaultTheme = Theme{
	Primary: lipgloss.Color("#00ff9f"),
	Accent:  lipgloss.Color("#7aa2f7"),
	Dim:     lipgloss.Color("#6e7681"),
	Error:   lipgloss.Color("#f7768e"),
}

// Styles holds the styles derived from a theme.
type Styles struct {
	Assistant lipgloss.Style
	User      lipgloss.Style
	Tool      lipgloss.Style
	Dim       lipgloss.Style
	Error     lipgloss.Style
}

// NewStyles creates styles from a theme.
func NewStyles(t Theme) Styles {
	return Styles{
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(t.Primary),
		User:      lipgloss.NewStyle().Bold(true),
		Tool:      lipgloss.NewStyle().Foreground(t.Accent),
		Dim:       lipgloss.NewStyle().Foreground(t.Dim),
		Error:     lipgloss.NewStyle().Foreground(t.Error),
	}
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

// PrintInfo prints an info message.
func PrintInfo(format string, args ...any) {
	fmt.Printf("ℹ "+format+"\n", args...)
}
