// Package explorer turns a forest and an expansion set into the nested rows
// shown by the tree sidebar.
package explorer

import (
	"github.com/kraitsura/flowtree/pkg/expansion"
	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
)

// RowKind distinguishes node rows from empty-slot placeholders.
type RowKind int

const (
	RowNode RowKind = iota
	RowEmptySlot
)

// Row is one rendered line of the sidebar with its visible children.
type Row struct {
	Kind RowKind
	// Node is nil for empty-slot rows.
	Node *model.Node
	// Side is the slot the row was reached through. Roots and parent-only
	// children carry SideExtra.
	Side  forest.Side
	Depth int
	// Expanded is true when the node is in the expansion set and has at least
	// one non-empty child descriptor.
	Expanded bool
	// HasChildren is false for leaves, whose toggle is disabled.
	HasChildren bool
	// OwnerID is the node holding the slot, for empty-slot rows.
	OwnerID  int64
	Children []*Row
}

// ID returns the node id, or 0 for placeholders.
func (r *Row) ID() int64 {
	if r.Node == nil {
		return 0
	}
	return r.Node.ID
}

// Render walks f from its display roots. Each recursive path carries its own
// visited set, so an id already on the current path (a cycle) or missing from
// the lookup renders nothing, while siblings may still show the same node.
func Render(f *forest.Forest, expanded expansion.Set) []*Row {
	if f == nil {
		return nil
	}
	var rows []*Row
	for _, root := range f.DisplayRoots() {
		if row := renderNode(f, root.ID, forest.SideExtra, 0, expanded, nil); row != nil {
			rows = append(rows, row)
		}
	}
	return rows
}

func renderNode(f *forest.Forest, id int64, side forest.Side, depth int, expanded expansion.Set, visited map[int64]bool) *Row {
	node, ok := f.Node(id)
	if !ok || visited[id] {
		return nil
	}

	hasChildren := f.HasChildren(node)
	row := &Row{
		Kind:        RowNode,
		Node:        node,
		Side:        side,
		Depth:       depth,
		HasChildren: hasChildren,
		Expanded:    hasChildren && expanded.Has(id),
	}
	if !row.Expanded {
		return row
	}

	// Copy visited for this subtree only
	childVisited := make(map[int64]bool, len(visited)+1)
	for k := range visited {
		childVisited[k] = true
	}
	childVisited[id] = true

	for _, item := range f.ChildItems(node) {
		if item.IsEmpty() {
			row.Children = append(row.Children, &Row{
				Kind:    RowEmptySlot,
				Side:    item.Side,
				Depth:   depth + 1,
				OwnerID: id,
			})
			continue
		}
		if child := renderNode(f, *item.NodeID, item.Side, depth+1, expanded, childVisited); child != nil {
			row.Children = append(row.Children, child)
		}
	}
	return row
}

// Walk visits every row depth-first in display order.
func Walk(rows []*Row, fn func(*Row)) {
	for _, r := range rows {
		fn(r)
		Walk(r.Children, fn)
	}
}

// Count returns the number of rows, placeholders included.
func Count(rows []*Row) int {
	n := 0
	Walk(rows, func(*Row) { n++ })
	return n
}
