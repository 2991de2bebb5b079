package analysis

import (
	"reflect"
	"testing"

	"github.com/kraitsura/flowtree/pkg/model"
)

func node(id int64, parent, left, right *int64) model.Node {
	return model.Node{ID: id, Value: id * 10, ParentID: parent, LeftChildID: left, RightChildID: right}
}

var ref = model.Ref

func TestInspectHealthyTree(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, nil, ref(2), ref(3)),
		node(2, ref(1), nil, nil),
		node(3, ref(1), nil, nil),
	})

	if !r.Healthy() {
		t.Fatalf("expected no findings, got %+v", r.Findings)
	}
	if r.HealthLevel != LevelHealthy {
		t.Errorf("HealthLevel = %s, want %s", r.HealthLevel, LevelHealthy)
	}
	if r.Nodes != 3 || r.Roots != 1 {
		t.Errorf("Nodes=%d Roots=%d, want 3 and 1", r.Nodes, r.Roots)
	}
	if r.SlotEdges != 2 || r.ParentEdges != 2 {
		t.Errorf("SlotEdges=%d ParentEdges=%d, want 2 and 2", r.SlotEdges, r.ParentEdges)
	}
}

func TestInspectEmpty(t *testing.T) {
	r := Inspect(nil)
	if !r.Healthy() || r.Nodes != 0 {
		t.Errorf("empty snapshot should be healthy, got %+v", r)
	}
	if r.Cycles == nil || r.Findings == nil {
		t.Error("slices should be non-nil for JSON output")
	}
}

func TestInspectCycle(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, nil, nil, ref(2)),
		node(2, nil, ref(1), nil),
	})

	if want := [][]int64{{1, 2}}; !reflect.DeepEqual(r.Cycles, want) {
		t.Errorf("Cycles = %v, want %v", r.Cycles, want)
	}
	if r.Count(KindCycle) != 1 {
		t.Errorf("expected one cycle finding, got %d", r.Count(KindCycle))
	}
	if r.Count(KindRootlessFallback) != 1 {
		t.Errorf("expected rootless fallback finding, got %d", r.Count(KindRootlessFallback))
	}
	if r.HealthLevel != LevelCritical {
		t.Errorf("HealthLevel = %s, want %s", r.HealthLevel, LevelCritical)
	}
}

func TestInspectCycleThroughParentEdges(t *testing.T) {
	// 1 -> 2 via slot, 2 -> 3 via parent_id, 3 -> 1 via slot
	r := Inspect([]model.Node{
		node(1, nil, ref(2), nil),
		node(2, nil, nil, nil),
		node(3, ref(2), ref(1), nil),
		node(4, nil, nil, nil),
	})

	if want := [][]int64{{1, 2, 3}}; !reflect.DeepEqual(r.Cycles, want) {
		t.Errorf("Cycles = %v, want %v", r.Cycles, want)
	}
}

func TestInspectDangling(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, ref(99), ref(50), nil),
	})

	if r.Count(KindDanglingParent) != 1 {
		t.Errorf("dangling parent findings = %d, want 1", r.Count(KindDanglingParent))
	}
	if r.Count(KindDanglingSlot) != 1 {
		t.Errorf("dangling slot findings = %d, want 1", r.Count(KindDanglingSlot))
	}
	if r.Roots != 1 {
		t.Errorf("node with dangling parent should be a root, Roots=%d", r.Roots)
	}
	if len(r.Cycles) != 0 {
		t.Errorf("dangling edges must not form cycles: %v", r.Cycles)
	}
	if r.HealthLevel != LevelWarning {
		t.Errorf("HealthLevel = %s, want %s", r.HealthLevel, LevelWarning)
	}
}

func TestInspectSelfReference(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, ref(1), ref(1), nil),
	})

	if r.Count(KindSelfReference) != 2 {
		t.Errorf("self reference findings = %d, want 2", r.Count(KindSelfReference))
	}
	if len(r.Cycles) != 0 {
		t.Errorf("self loops are not reported as cycles: %v", r.Cycles)
	}
}

func TestInspectConflicts(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, nil, ref(3), nil),
		node(2, nil, nil, ref(3)),
		node(3, ref(4), nil, nil),
		node(4, nil, nil, nil),
	})

	var claim, conflict *Finding
	for i := range r.Findings {
		switch r.Findings[i].Kind {
		case KindDuplicateClaim:
			claim = &r.Findings[i]
		case KindAddressConflict:
			conflict = &r.Findings[i]
		}
	}
	if claim == nil || claim.NodeID != 3 || !reflect.DeepEqual(claim.Related, []int64{1, 2}) {
		t.Errorf("duplicate claim = %+v", claim)
	}
	if conflict == nil || conflict.NodeID != 3 || !reflect.DeepEqual(conflict.Related, []int64{4, 1, 2}) {
		t.Errorf("address conflict = %+v", conflict)
	}
}

func TestInspectAgreeingParentIsNotConflict(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, nil, ref(2), nil),
		node(2, ref(1), nil, nil),
	})
	if r.Count(KindAddressConflict) != 0 {
		t.Errorf("unexpected conflict: %+v", r.Findings)
	}
}

func TestInspectSameSlotChild(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, nil, ref(2), ref(2)),
		node(2, nil, nil, nil),
	})
	if r.Count(KindSameSlotChild) != 1 {
		t.Errorf("same slot findings = %d, want 1", r.Count(KindSameSlotChild))
	}
	if r.Count(KindDuplicateClaim) != 0 {
		t.Error("one owner using both slots is not a duplicate claim")
	}
}

func TestInspectDuplicateID(t *testing.T) {
	r := Inspect([]model.Node{
		node(1, nil, nil, nil),
		node(1, nil, nil, nil),
	})
	if r.Count(KindDuplicateID) != 1 {
		t.Errorf("duplicate id findings = %d, want 1", r.Count(KindDuplicateID))
	}
	if r.HealthLevel != LevelCritical {
		t.Errorf("HealthLevel = %s, want %s", r.HealthLevel, LevelCritical)
	}
}
