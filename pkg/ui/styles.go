package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/kraitsura/flowtree/pkg/diagram"
	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
)

// ══════════════════════════════════════════════════════════════════════════════
// PANEL STYLES - For split view layouts
// ══════════════════════════════════════════════════════════════════════════════

func (t Theme) panel(focused bool) lipgloss.Style {
	border := t.Border
	if focused {
		border = t.Primary
	}
	return t.Renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(border)
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE RENDERING
// ══════════════════════════════════════════════════════════════════════════════

// RenderTypeBadge returns a styled type badge, or "" for untyped nodes. The
// colors follow the diagram node styles so both panes agree.
func RenderTypeBadge(t Theme, typ model.NodeType) string {
	if typ == model.TypeNone {
		return ""
	}
	style := diagram.StyleFor(typ)
	return t.Renderer.NewStyle().
		Foreground(lipgloss.Color(style.Color)).
		Background(lipgloss.Color(style.Fill)).
		Padding(0, 1).
		Render(badgeLabel(typ))
}

func badgeLabel(typ model.NodeType) string {
	switch typ {
	case model.TypeInput:
		return "IN"
	case model.TypeProcess:
		return "PROC"
	case model.TypeOutput:
		return "OUT"
	}
	return "?"
}

// RenderSidePill returns the L/R marker for slot rows and "" otherwise.
func RenderSidePill(t Theme, side forest.Side) string {
	if side == forest.SideExtra {
		return ""
	}
	return t.Renderer.NewStyle().
		Foreground(t.Secondary).
		Bold(true).
		Render(string(side))
}

// RenderDivider renders a horizontal divider line
func RenderDivider(t Theme, width int) string {
	if width <= 0 {
		return ""
	}
	return t.Renderer.NewStyle().
		Foreground(t.Border).
		Render(strings.Repeat("─", width))
}
