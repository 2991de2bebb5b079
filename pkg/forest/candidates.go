package forest

import "github.com/kraitsura/flowtree/pkg/model"

// AvailableAsChild returns the nodes that may be offered as a slot child of
// current: everything except current itself, the node held in the other slot
// (exclude), and nodes already claimed as a slot child by some other node.
func AvailableAsChild(nodes []model.Node, current int64, exclude *int64) []model.Node {
	claimed := make(map[int64]bool)
	for _, n := range nodes {
		if n.ID == current {
			continue
		}
		if n.LeftChildID != nil {
			claimed[*n.LeftChildID] = true
		}
		if n.RightChildID != nil {
			claimed[*n.RightChildID] = true
		}
	}

	var out []model.Node
	for _, n := range nodes {
		if n.ID == current || claimed[n.ID] {
			continue
		}
		if exclude != nil && n.ID == *exclude {
			continue
		}
		out = append(out, n)
	}
	return out
}
