// Package ui holds terminal styling shared by the CLI commands.
package ui

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("76")).Bold(true)
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	folderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	idStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
)

func init() {
	// Honor NO_COLOR and plain pipes.
	if os.Getenv("NO_COLOR") != "" {
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}
	lipgloss.SetColorProfile(termenv.NewOutput(os.Stdout).EnvColorProfile())
}

// RenderAccent renders informational markers.
func RenderAccent(s string) string { return accentStyle.Render(s) }

// RenderPass renders success markers.
func RenderPass(s string) string { return passStyle.Render(s) }

// RenderWarn renders warnings.
func RenderWarn(s string) string { return warnStyle.Render(s) }

// RenderFail renders failures.
func RenderFail(s string) string { return failStyle.Render(s) }

// RenderMuted renders secondary details.
func RenderMuted(s string) string { return mutedStyle.Render(s) }
