package loader

import (
	"fmt"
	"slices"

	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
)

// Subtree contains a node and everything reachable beneath it
type Subtree struct {
	Root        *model.Node           // The root node
	Descendants []*model.Node         // Reachable through L/R slots or parent_id, BFS order
	External    []int64               // Ids outside the subtree that members point at
	NodeMap     map[int64]*model.Node // All snapshot nodes by id
}

// LoadSubtree collects the subtree under rootID. Both addressing schemes are
// followed, and each node is visited once even when the data loops.
func LoadSubtree(rootID int64, nodes []model.Node) (*Subtree, error) {
	f := forest.Build(nodes)
	root, ok := f.Node(rootID)
	if !ok {
		return nil, fmt.Errorf("node not found: %d", rootID)
	}

	members := map[int64]bool{rootID: true}
	var descendants []*model.Node
	queue := []*model.Node{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, item := range f.ChildItems(current) {
			if item.IsEmpty() || members[*item.NodeID] {
				continue
			}
			child, ok := f.Node(*item.NodeID)
			if !ok {
				continue
			}
			members[child.ID] = true
			descendants = append(descendants, child)
			queue = append(queue, child)
		}
	}

	var external []int64
	for id := range members {
		n := f.Lookup[id]
		for _, ref := range []*int64{n.ParentID, n.LeftChildID, n.RightChildID} {
			if ref == nil || members[*ref] || slices.Contains(external, *ref) {
				continue
			}
			if id == rootID && ref == n.ParentID {
				continue
			}
			external = append(external, *ref)
		}
	}
	slices.Sort(external)

	return &Subtree{Root: root, Descendants: descendants, External: external, NodeMap: f.Lookup}, nil
}

// Nodes returns root + all descendants as a flat slice of copies. References
// to nodes outside the subtree are cleared so the result stands alone.
func (t *Subtree) Nodes() []model.Node {
	all := append([]*model.Node{t.Root}, t.Descendants...)
	inside := make(map[int64]bool, len(all))
	for _, n := range all {
		inside[n.ID] = true
	}
	keep := func(ref *int64) *int64 {
		if ref == nil || !inside[*ref] {
			return nil
		}
		return model.Ref(*ref)
	}
	out := make([]model.Node, 0, len(all))
	for _, n := range all {
		c := n.Clone()
		c.ParentID = keep(n.ParentID)
		c.LeftChildID = keep(n.LeftChildID)
		c.RightChildID = keep(n.RightChildID)
		out = append(out, c)
	}
	return out
}

// TotalCount returns the number of nodes in the subtree (root + descendants)
func (t *Subtree) TotalCount() int {
	return 1 + len(t.Descendants)
}
