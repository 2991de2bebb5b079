// Package analysis reports structural anomalies in a node snapshot. The
// explorer tolerates all of them; the report only explains what is drawn.
package analysis

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"

	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
)

// FindingKind classifies an anomaly.
type FindingKind string

const (
	KindDuplicateID      FindingKind = "duplicate_id"
	KindDanglingParent   FindingKind = "dangling_parent"
	KindDanglingSlot     FindingKind = "dangling_slot"
	KindSelfReference    FindingKind = "self_reference"
	KindSameSlotChild    FindingKind = "same_slot_child"
	KindDuplicateClaim   FindingKind = "duplicate_claim"
	KindAddressConflict  FindingKind = "address_conflict"
	KindCycle            FindingKind = "cycle"
	KindRootlessFallback FindingKind = "rootless_fallback"
)

// Severity levels, worst last.
const (
	LevelHealthy  = "healthy"
	LevelWarning  = "warning"
	LevelCritical = "critical"
)

// Finding is one anomaly.
type Finding struct {
	Kind    FindingKind `json:"kind"`
	NodeID  int64       `json:"node_id"`           // Node the finding is reported on
	Related []int64     `json:"related,omitempty"` // Other ids involved
	Message string      `json:"message"`
}

// Report summarizes a snapshot.
type Report struct {
	Nodes       int       `json:"nodes"`        // Records in the snapshot
	Roots       int       `json:"roots"`        // Roots found by reconstruction
	SlotEdges   int       `json:"slot_edges"`   // Non-null left/right references
	ParentEdges int       `json:"parent_edges"` // Non-null parent references
	Cycles      [][]int64 `json:"cycles"`       // Strongly connected groups over both schemes
	Findings    []Finding `json:"findings"`
	HealthLevel string    `json:"health_level"` // "healthy", "warning", "critical"
}

// Count returns the number of findings of kind.
func (r Report) Count(kind FindingKind) int {
	n := 0
	for _, f := range r.Findings {
		if f.Kind == kind {
			n++
		}
	}
	return n
}

// Healthy reports whether no findings were made.
func (r Report) Healthy() bool { return len(r.Findings) == 0 }

// Inspect examines snapshot. It never fails.
func Inspect(snapshot []model.Node) Report {
	f := forest.Build(snapshot)
	r := Report{Nodes: len(snapshot), Roots: len(f.Roots), Cycles: [][]int64{}, Findings: []Finding{}}

	seen := make(map[int64]bool, len(snapshot))
	for _, n := range snapshot {
		if seen[n.ID] {
			r.add(KindDuplicateID, n.ID, nil, "id %d appears more than once; the last record wins", n.ID)
		}
		seen[n.ID] = true
	}

	// owner of each slot child, in snapshot order
	owners := make(map[int64][]int64)
	for _, n := range snapshot {
		if n.ParentID != nil {
			r.ParentEdges++
			switch {
			case *n.ParentID == n.ID:
				r.add(KindSelfReference, n.ID, nil, "node %d is its own parent", n.ID)
			case !seen[*n.ParentID]:
				r.add(KindDanglingParent, n.ID, []int64{*n.ParentID}, "parent %d of node %d does not exist; shown as a root", *n.ParentID, n.ID)
			}
		}
		for _, slot := range []struct {
			name string
			id   *int64
		}{{"left", n.LeftChildID}, {"right", n.RightChildID}} {
			if slot.id == nil {
				continue
			}
			r.SlotEdges++
			child := *slot.id
			switch {
			case child == n.ID:
				r.add(KindSelfReference, n.ID, nil, "node %d is its own %s child", n.ID, slot.name)
			case !seen[child]:
				r.add(KindDanglingSlot, n.ID, []int64{child}, "%s child %d of node %d does not exist", slot.name, child, n.ID)
			}
			if !slices.Contains(owners[child], n.ID) {
				owners[child] = append(owners[child], n.ID)
			}
		}
		if n.LeftChildID != nil && model.RefEqual(n.LeftChildID, n.RightChildID) {
			r.add(KindSameSlotChild, n.ID, []int64{*n.LeftChildID}, "node %d holds %d in both slots", n.ID, *n.LeftChildID)
		}
	}

	children := make([]int64, 0, len(owners))
	for id := range owners {
		children = append(children, id)
	}
	slices.Sort(children)
	for _, child := range children {
		ids := owners[child]
		if len(ids) > 1 {
			r.add(KindDuplicateClaim, child, ids, "node %d is a slot child of %d nodes", child, len(ids))
		}
		node, ok := f.Node(child)
		if !ok || node.ParentID == nil {
			continue
		}
		if !slices.Contains(ids, *node.ParentID) {
			r.add(KindAddressConflict, child, append([]int64{*node.ParentID}, ids...),
				"node %d has parent_id %d but is a slot child of %v", child, *node.ParentID, ids)
		}
	}

	if len(snapshot) > 0 && len(f.Roots) == 0 {
		r.add(KindRootlessFallback, 0, nil, "no root found; every node is listed at the top level")
	}

	r.Cycles = findCycles(f)
	for _, c := range r.Cycles {
		r.add(KindCycle, c[0], c, "cycle through %d nodes", len(c))
	}

	r.HealthLevel = healthLevel(r)
	return r
}

func (r *Report) add(kind FindingKind, id int64, related []int64, format string, args ...any) {
	r.Findings = append(r.Findings, Finding{
		Kind:    kind,
		NodeID:  id,
		Related: related,
		Message: fmt.Sprintf(format, args...),
	})
}

// findCycles returns strongly connected components of size > 1 over the
// union of slot and parent edges between live nodes. Self references are
// reported separately since simple graphs reject self loops.
func findCycles(f *forest.Forest) [][]int64 {
	g := simple.NewDirectedGraph()
	for id := range f.Lookup {
		g.AddNode(simple.Node(id))
	}
	link := func(from, to int64) {
		if from == to {
			return
		}
		if _, ok := f.Lookup[to]; !ok {
			return
		}
		if _, ok := f.Lookup[from]; !ok {
			return
		}
		g.SetEdge(g.NewEdge(simple.Node(from), simple.Node(to)))
	}
	for _, n := range f.Lookup {
		if n.LeftChildID != nil {
			link(n.ID, *n.LeftChildID)
		}
		if n.RightChildID != nil {
			link(n.ID, *n.RightChildID)
		}
		if n.ParentID != nil {
			link(*n.ParentID, n.ID)
		}
	}

	var cycles [][]int64
	for _, scc := range topo.TarjanSCC(g) {
		if len(scc) < 2 {
			continue
		}
		cycles = append(cycles, nodeIDs(scc))
	}
	sort.Slice(cycles, func(i, j int) bool { return cycles[i][0] < cycles[j][0] })
	return cycles
}

func nodeIDs(nodes []graph.Node) []int64 {
	ids := make([]int64, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID()
	}
	slices.Sort(ids)
	return ids
}

func healthLevel(r Report) string {
	level := LevelHealthy
	for _, f := range r.Findings {
		switch f.Kind {
		case KindCycle, KindRootlessFallback, KindDuplicateID:
			return LevelCritical
		default:
			level = LevelWarning
		}
	}
	return level
}
