// Package diagram projects a node snapshot into mermaid flowchart text and
// schedules rendering of that text by an external renderer.
package diagram

import (
	"fmt"
	"strings"

	"github.com/kraitsura/flowtree/pkg/model"
)

// Direction is the mermaid flowchart orientation.
type Direction string

const (
	TopDown   Direction = "TD"
	LeftRight Direction = "LR"
	BottomUp  Direction = "BT"
	RightLeft Direction = "RL"
)

// IsValid returns true if the direction is a known mermaid orientation
func (d Direction) IsValid() bool {
	switch d {
	case TopDown, LeftRight, BottomUp, RightLeft:
		return true
	}
	return false
}

// EmptyDiagram is produced for a snapshot with no records.
const EmptyDiagram = "graph TD\n  empty[\"No nodes yet\"]"

// Options tweaks the generated text.
type Options struct {
	Direction Direction
}

// Generate renders snapshot with default options.
func Generate(snapshot []model.Node) string {
	return GenerateWith(snapshot, Options{})
}

type edge struct {
	from, to int64
}

// GenerateWith renders the flat snapshot, not a reconstructed forest, so every
// relationship is drawn. Output order is fixed: node lines, L edges, R edges,
// parent_id edges, then one style line per record. A parent_id edge is
// skipped only when the same (parent, child) pair was already drawn as a slot
// edge. Edges to ids missing from the snapshot are still emitted.
func GenerateWith(snapshot []model.Node, opts Options) string {
	dir := opts.Direction
	if !dir.IsValid() {
		dir = TopDown
	}
	if len(snapshot) == 0 {
		return fmt.Sprintf("graph %s\n  empty[\"No nodes yet\"]", dir)
	}

	lines := make([]string, 0, 1+len(snapshot)*3)
	lines = append(lines, "graph "+string(dir))

	for _, n := range snapshot {
		lines = append(lines, fmt.Sprintf("  %s[\"%s\"]", nodeID(n.ID), nodeLabel(n)))
	}

	covered := make(map[edge]bool)
	for _, n := range snapshot {
		if n.LeftChildID != nil {
			lines = append(lines, fmt.Sprintf("  %s -->|L| %s", nodeID(n.ID), nodeID(*n.LeftChildID)))
			covered[edge{n.ID, *n.LeftChildID}] = true
		}
	}
	for _, n := range snapshot {
		if n.RightChildID != nil {
			lines = append(lines, fmt.Sprintf("  %s -->|R| %s", nodeID(n.ID), nodeID(*n.RightChildID)))
			covered[edge{n.ID, *n.RightChildID}] = true
		}
	}
	for _, n := range snapshot {
		if n.ParentID == nil || covered[edge{*n.ParentID, n.ID}] {
			continue
		}
		lines = append(lines, fmt.Sprintf("  %s --> %s", nodeID(*n.ParentID), nodeID(n.ID)))
	}

	for _, n := range snapshot {
		lines = append(lines, fmt.Sprintf("  style %s %s", nodeID(n.ID), StyleFor(n.Type)))
	}

	return strings.Join(lines, "\n")
}

// nodeID returns the mermaid identifier for a record id.
func nodeID(id int64) string {
	if id < 0 {
		return fmt.Sprintf("nm%d", -id)
	}
	return fmt.Sprintf("n%d", id)
}

// nodeLabel is "#35;<id>: <name>\n(<value>)", or just the value when unnamed.
// #35; is mermaid's entity for '#'.
func nodeLabel(n model.Node) string {
	label := fmt.Sprintf("%d", n.Value)
	if n.Name != "" {
		label = fmt.Sprintf("%s\\n(%d)", escapeLabel(n.Name), n.Value)
	}
	return fmt.Sprintf("#35;%d: %s", n.ID, label)
}

func escapeLabel(s string) string {
	replacer := strings.NewReplacer(
		"\"", "#quot;",
		"<", "&lt;",
		">", "&gt;",
		"\n", " ",
	)
	return replacer.Replace(s)
}
