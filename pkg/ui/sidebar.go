package ui

import (
	"fmt"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/kraitsura/flowtree/pkg/explorer"
	"github.com/kraitsura/flowtree/pkg/forest"
)

// EmptyMessage is shown in place of rows when the snapshot has no records.
const EmptyMessage = "No nodes yet. Press a to add one."

// renderLine draws one sidebar row within width cells.
func renderLine(t Theme, l explorer.Line, c explorer.Connectors, width int, selected bool) string {
	r := l.Row
	prefix := l.Prefix(c)
	used := runewidth.StringWidth(prefix)

	var parts []string
	if pill := RenderSidePill(t, r.Side); pill != "" {
		parts = append(parts, pill)
		used += runewidth.StringWidth(string(r.Side)) + 1
	}

	if r.Kind == explorer.RowEmptySlot {
		parts = append(parts, t.Renderer.NewStyle().Faint(true).Italic(true).Render("empty"))
		return prefix + strings.Join(parts, " ")
	}

	glyphStyle := t.Renderer.NewStyle().Foreground(t.Secondary)
	if r.HasChildren {
		glyphStyle = glyphStyle.Foreground(t.Primary)
	}
	parts = append(parts, glyphStyle.Render(r.Glyph()))

	id := fmt.Sprintf("#%d", r.Node.ID)
	value := fmt.Sprintf("%d", r.Node.Value)
	parts = append(parts,
		t.Renderer.NewStyle().Foreground(t.Subtext).Render(id),
		t.Renderer.NewStyle().Bold(true).Render(value),
	)
	used += runewidth.StringWidth(r.Glyph()) + len(id) + len(value) + 3

	badge := RenderTypeBadge(t, r.Node.Type)
	badgeWidth := 0
	if badge != "" {
		badgeWidth = len(badgeLabel(r.Node.Type)) + 3 // padding + gap
	}

	if r.Node.Name != "" {
		room := width - used - badgeWidth
		if room > 1 {
			name := runewidth.Truncate(r.Node.Name, room, "…")
			nameStyle := t.Renderer.NewStyle()
			if selected {
				nameStyle = nameStyle.Foreground(t.Primary).Bold(true)
			}
			parts = append(parts, nameStyle.Render(name))
		}
	}
	if badge != "" {
		parts = append(parts, badge)
	}

	return prefix + strings.Join(parts, " ")
}

// visibleWindow returns the [start, end) range of lines to draw so the cursor
// stays on screen.
func visibleWindow(total, cursor, offset, height int) (int, int) {
	if height <= 0 || total == 0 {
		return 0, 0
	}
	if cursor < offset {
		offset = cursor
	}
	if cursor >= offset+height {
		offset = cursor - height + 1
	}
	if offset < 0 {
		offset = 0
	}
	end := offset + height
	if end > total {
		end = total
	}
	return offset, end
}

// lineIndex finds the first line showing node id, or -1.
func lineIndex(lines []explorer.Line, id int64) int {
	for i, l := range lines {
		if l.Row.Kind == explorer.RowNode && l.Row.ID() == id {
			return i
		}
	}
	return -1
}

// slotOwner returns the owner and side of an empty-slot line.
func slotOwner(l explorer.Line) (int64, forest.Side, bool) {
	if l.Row.Kind != explorer.RowEmptySlot {
		return 0, "", false
	}
	return l.Row.OwnerID, l.Row.Side, true
}
