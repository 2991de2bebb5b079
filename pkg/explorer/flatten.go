package explorer

import (
	"fmt"
	"strings"

	"github.com/kraitsura/flowtree/pkg/forest"
)

// Line is a row positioned for display, with the connector path needed to
// draw tree guides.
type Line struct {
	Row *Row
	// IsLast reports whether the row is the last among its siblings.
	IsLast bool
	// ParentPath holds IsLast for each ancestor below the root level.
	ParentPath []bool
}

// Connectors are the glyphs used to draw tree guides.
type Connectors struct {
	Branch string // "├─"
	Last   string // "└─"
	Pipe   string // "│ "
	Blank  string // "  "
}

var (
	// UnicodeConnectors uses refined minimal box-drawing glyphs.
	UnicodeConnectors = Connectors{Branch: "├─", Last: "└─", Pipe: "│ ", Blank: "  "}
	// ASCIIConnectors are safe for fonts without box-drawing characters.
	ASCIIConnectors = Connectors{Branch: "|-", Last: "`-", Pipe: "| ", Blank: "  "}
)

// Flatten converts nested rows into display order.
func Flatten(rows []*Row) []Line {
	var lines []Line
	for i, r := range rows {
		lines = flattenRow(lines, r, i == len(rows)-1, nil)
	}
	return lines
}

func flattenRow(lines []Line, r *Row, isLast bool, parentPath []bool) []Line {
	lines = append(lines, Line{
		Row:        r,
		IsLast:     isLast,
		ParentPath: append([]bool{}, parentPath...),
	})
	if len(r.Children) == 0 {
		return lines
	}

	// Roots have no guide column of their own
	childPath := parentPath
	if r.Depth > 0 {
		childPath = append(append([]bool{}, parentPath...), isLast)
	}
	for i, c := range r.Children {
		lines = flattenRow(lines, c, i == len(r.Children)-1, childPath)
	}
	return lines
}

// Prefix builds the guide string drawn before the row.
func (l Line) Prefix(c Connectors) string {
	if l.Row.Depth == 0 {
		return ""
	}
	var b strings.Builder
	for _, last := range l.ParentPath {
		if last {
			b.WriteString(c.Blank)
		} else {
			b.WriteString(c.Pipe)
		}
	}
	if l.IsLast {
		b.WriteString(c.Last)
	} else {
		b.WriteString(c.Branch)
	}
	return b.String()
}

// Toggle glyphs shown before each node.
const (
	GlyphExpanded  = "▾"
	GlyphCollapsed = "▸"
	GlyphLeaf      = "·"
)

// Glyph returns the toggle affordance for the row.
func (r *Row) Glyph() string {
	switch {
	case r.Kind == RowEmptySlot:
		return " "
	case !r.HasChildren:
		return GlyphLeaf
	case r.Expanded:
		return GlyphExpanded
	default:
		return GlyphCollapsed
	}
}

// PlainText renders the row without styling, e.g. "[L] ▾ #3 42 alpha (input)".
func (r *Row) PlainText() string {
	var b strings.Builder
	if r.Side != forest.SideExtra {
		fmt.Fprintf(&b, "[%s] ", r.Side)
	}
	if r.Kind == RowEmptySlot {
		b.WriteString("empty")
		return b.String()
	}
	b.WriteString(r.Glyph())
	fmt.Fprintf(&b, " #%d %d", r.Node.ID, r.Node.Value)
	if r.Node.Name != "" {
		b.WriteString(" " + r.Node.Name)
	}
	if r.Node.Type != "" {
		fmt.Fprintf(&b, " (%s)", r.Node.Type)
	}
	return b.String()
}

// Text renders rows as an indented plain-text tree.
func Text(rows []*Row, c Connectors) string {
	var b strings.Builder
	for _, l := range Flatten(rows) {
		b.WriteString(l.Prefix(c))
		b.WriteString(l.Row.PlainText())
		b.WriteByte('\n')
	}
	return b.String()
}
