package expansion

import "github.com/kraitsura/flowtree/pkg/forest"

// VisibleDepth is the number of levels shown on first load: depths 0 and 1
// are expanded so that depth 2 becomes visible.
const VisibleDepth = 2

// bfsItem is an entry in the breadth-first walk with depth tracking.
type bfsItem struct {
	ID    int64
	Depth int
}

// DefaultExpanded walks the forest breadth-first from its roots and expands
// every node at depth <= visibleDepth-1. Empty slots and ids missing from the
// lookup are not enqueued. A node reached again on a later path is not
// re-expanded, which also bounds the walk on cyclic data.
func DefaultExpanded(f *forest.Forest, visibleDepth int) Set {
	expanded := make(Set)
	if f == nil || visibleDepth <= 0 {
		return expanded
	}
	expandUpTo := visibleDepth - 1

	queue := make([]bfsItem, 0, len(f.Roots))
	for _, r := range f.Roots {
		queue = append(queue, bfsItem{ID: r.ID, Depth: 0})
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur.Depth > expandUpTo || expanded.Has(cur.ID) {
			continue
		}
		node, ok := f.Node(cur.ID)
		if !ok {
			continue
		}
		expanded[cur.ID] = struct{}{}

		for _, item := range f.ChildItems(node) {
			if item.IsEmpty() {
				continue
			}
			if _, ok := f.Node(*item.NodeID); ok {
				queue = append(queue, bfsItem{ID: *item.NodeID, Depth: cur.Depth + 1})
			}
		}
	}
	return expanded
}
