package ui

import (
	"github.com/charmbracelet/lipgloss"
)

// Theme carries the renderer and adaptive colors shared by every view.
type Theme struct {
	Renderer *lipgloss.Renderer

	Primary   lipgloss.AdaptiveColor
	Secondary lipgloss.AdaptiveColor
	Subtext   lipgloss.AdaptiveColor
	Border    lipgloss.AdaptiveColor
	Highlight lipgloss.AdaptiveColor

	Open    lipgloss.AdaptiveColor // success
	Blocked lipgloss.AdaptiveColor // errors

	Base lipgloss.Style
}

// DefaultTheme builds the Dracula-derived palette for r. A nil renderer uses
// lipgloss.DefaultRenderer().
func DefaultTheme(r *lipgloss.Renderer) Theme {
	if r == nil {
		r = lipgloss.DefaultRenderer()
	}
	return Theme{
		Renderer:  r,
		Primary:   lipgloss.AdaptiveColor{Light: "#7D56F4", Dark: "#BD93F9"},
		Secondary: lipgloss.AdaptiveColor{Light: "#555555", Dark: "#6272A4"},
		Subtext:   lipgloss.AdaptiveColor{Light: "#666666", Dark: "#BFBFBF"},
		Border:    lipgloss.AdaptiveColor{Light: "#DDDDDD", Dark: "#44475A"},
		Highlight: lipgloss.AdaptiveColor{Light: "#EEEEEE", Dark: "#44475A"},
		Open:      lipgloss.AdaptiveColor{Light: "#15803D", Dark: "#50FA7B"},
		Blocked:   lipgloss.AdaptiveColor{Light: "#B91C1C", Dark: "#FF5555"},
		Base:      r.NewStyle(),
	}
}
