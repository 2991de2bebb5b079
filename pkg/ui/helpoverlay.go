package ui

import (
	"strings"

	"github.com/charmbracelet/glamour"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const helpMarkdown = `# Flow Tree Explorer

## Navigation

| Key | Action |
|-----|--------|
| j / ↓ | Move down |
| k / ↑ | Move up |
| g / G | Top / bottom |
| enter / space | Expand or collapse |
| / | Jump to a node |
| tab | Focus the diagram pane |

## Editing

| Key | Action |
|-----|--------|
| a | Add a node (fills an empty slot when one is selected) |
| e | Edit the selected node |
| d | Delete the selected node |

## View

| Key | Action |
|-----|--------|
| y | Copy the diagram text |
| r | Reload from the store |
| R | Reset expansion to the default |
| ? | Toggle this help |
| q | Quit |
`

// HelpOverlayModel shows keyboard shortcuts help
type HelpOverlayModel struct {
	visible bool
	width   int
	height  int
	theme   Theme
	style   string // glamour standard style

	rendered      string
	renderedWidth int
}

// NewHelpOverlayModel creates a new help overlay. style names a glamour
// standard style ("dark", "light", "notty"); empty selects "dark".
func NewHelpOverlayModel(theme Theme, style string) HelpOverlayModel {
	if style == "" {
		style = "dark"
	}
	return HelpOverlayModel{theme: theme, style: style}
}

// Toggle toggles visibility
func (m *HelpOverlayModel) Toggle() {
	m.visible = !m.visible
}

// IsVisible returns true if overlay is showing
func (m HelpOverlayModel) IsVisible() bool {
	return m.visible
}

// SetSize sets dimensions
func (m *HelpOverlayModel) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// Update handles input
func (m HelpOverlayModel) Update(msg tea.Msg) (HelpOverlayModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}
	if _, ok := msg.(tea.KeyMsg); ok {
		// Any key closes help
		m.visible = false
	}
	return m, nil
}

func (m *HelpOverlayModel) body(width int) string {
	if m.rendered != "" && m.renderedWidth == width {
		return m.rendered
	}
	out := helpMarkdown
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(width),
	)
	if err == nil {
		if s, err := r.Render(helpMarkdown); err == nil {
			out = strings.TrimSpace(s)
		}
	}
	m.rendered, m.renderedWidth = out, width
	return out
}

// View renders the help overlay
func (m *HelpOverlayModel) View() string {
	if !m.visible {
		return ""
	}
	width := m.width - 8
	if width > 72 {
		width = 72
	}
	if width < 30 {
		width = 30
	}

	var b strings.Builder
	b.WriteString(m.body(width))
	b.WriteString("\n\n")
	hintStyle := m.theme.Renderer.NewStyle().Faint(true).Italic(true)
	b.WriteString(hintStyle.Render("[Press any key to close]"))

	// Wrap in box
	boxStyle := m.theme.Renderer.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.theme.Border).
		Padding(1, 2)

	return boxStyle.Render(b.String())
}
