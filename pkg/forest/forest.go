// Package forest reconstructs a displayable hierarchy from a flat node
// snapshot whose relationship pointers may dangle, disagree, or loop.
package forest

import (
	"slices"

	"github.com/kraitsura/flowtree/pkg/model"
)

// Side tags a child descriptor with the slot it came from.
type Side string

const (
	SideLeft  Side = "L"
	SideRight Side = "R"
	SideExtra Side = "" // parent_id-only child
)

// ChildItem is one ordered child descriptor. NodeID is nil only for an empty
// L or R slot, which is still displayed.
type ChildItem struct {
	Side   Side
	NodeID *int64
}

// IsSlot reports whether the item came from the L/R scheme.
func (c ChildItem) IsSlot() bool { return c.Side != SideExtra }

// IsEmpty reports whether the item is an unassigned slot.
func (c ChildItem) IsEmpty() bool { return c.NodeID == nil }

// Forest is derived from a single snapshot and never mutated afterwards.
type Forest struct {
	snapshot []model.Node

	// Lookup maps id to record. Last write wins on duplicate ids.
	Lookup map[int64]*model.Node
	// ExplicitChildren holds every id named as someone's left or right child.
	ExplicitChildren map[int64]bool
	// ParentOnly maps a parent id to the ids that declare it via parent_id
	// without being an explicit slot child, in snapshot order.
	ParentOnly map[int64][]int64
	// Roots are records that are not slot children and have no live parent.
	Roots []*model.Node
}

// Build reconstructs a forest from snapshot. It is pure and total.
func Build(snapshot []model.Node) *Forest {
	nodes := make([]model.Node, len(snapshot))
	for i := range snapshot {
		nodes[i] = snapshot[i].Clone()
	}

	f := &Forest{
		snapshot:         nodes,
		Lookup:           make(map[int64]*model.Node, len(nodes)),
		ExplicitChildren: make(map[int64]bool),
		ParentOnly:       make(map[int64][]int64),
	}

	for i := range nodes {
		f.Lookup[nodes[i].ID] = &nodes[i]
	}

	for _, n := range nodes {
		if n.LeftChildID != nil {
			f.ExplicitChildren[*n.LeftChildID] = true
		}
		if n.RightChildID != nil {
			f.ExplicitChildren[*n.RightChildID] = true
		}
	}

	for _, n := range nodes {
		if n.ParentID == nil || f.ExplicitChildren[n.ID] {
			continue
		}
		if _, ok := f.Lookup[*n.ParentID]; !ok {
			continue
		}
		f.ParentOnly[*n.ParentID] = append(f.ParentOnly[*n.ParentID], n.ID)
	}

	for i := range nodes {
		n := &nodes[i]
		if f.ExplicitChildren[n.ID] {
			continue
		}
		if n.ParentID != nil {
			if _, ok := f.Lookup[*n.ParentID]; ok {
				continue
			}
		}
		f.Roots = append(f.Roots, n)
	}

	return f
}

// Snapshot returns the records the forest was built from, in original order.
func (f *Forest) Snapshot() []model.Node {
	return f.snapshot
}

// Len returns the number of records in the snapshot.
func (f *Forest) Len() int {
	return len(f.snapshot)
}

// Node looks up a live record by id.
func (f *Forest) Node(id int64) (*model.Node, bool) {
	n, ok := f.Lookup[id]
	return n, ok
}

// ChildItems returns the ordered child descriptors of n: the L and R slots
// (both, when either is assigned), then parent-only extras.
func (f *Forest) ChildItems(n *model.Node) []ChildItem {
	if n == nil {
		return nil
	}
	extras := f.ParentOnly[n.ID]
	items := make([]ChildItem, 0, 2+len(extras))
	if n.HasSlots() {
		items = append(items,
			ChildItem{Side: SideLeft, NodeID: n.LeftChildID},
			ChildItem{Side: SideRight, NodeID: n.RightChildID},
		)
	}
	for _, id := range extras {
		items = append(items, ChildItem{Side: SideExtra, NodeID: model.Ref(id)})
	}
	return items
}

// HasChildren reports whether n has at least one non-empty child descriptor.
func (f *Forest) HasChildren(n *model.Node) bool {
	return slices.ContainsFunc(f.ChildItems(n), func(c ChildItem) bool { return !c.IsEmpty() })
}

// DisplayRoots returns Roots, or every record in snapshot order when no root
// exists (for example when all nodes reference each other).
func (f *Forest) DisplayRoots() []*model.Node {
	if len(f.Roots) > 0 {
		return f.Roots
	}
	roots := make([]*model.Node, len(f.snapshot))
	for i := range f.snapshot {
		roots[i] = &f.snapshot[i]
	}
	return roots
}
