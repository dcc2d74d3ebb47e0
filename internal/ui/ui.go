// Package ui provides terminal rendering helpers for command output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var colorEnabled = termenv.EnvColorProfile() != termenv.Ascii

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	boldStyle   = lipgloss.NewStyle().Bold(true)
)

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

// RenderPass renders success markers (green).
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn renders warning markers (yellow).
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail renders failure markers (red).
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent renders informational markers (blue).
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderDim renders secondary text.
func RenderDim(s string) string { return render(dimStyle, s) }

// RenderBold renders emphasized text.
func RenderBold(s string) string { return render(boldStyle, s) }
