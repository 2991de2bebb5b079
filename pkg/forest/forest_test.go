package forest

import (
	"reflect"
	"testing"

	"github.com/kraitsura/flowtree/pkg/model"
)

var ref = model.Ref

func rootIDs(roots []*model.Node) []int64 {
	ids := make([]int64, 0, len(roots))
	for _, r := range roots {
		ids = append(ids, r.ID)
	}
	return ids
}

func TestBuild_Empty(t *testing.T) {
	f := Build(nil)
	if len(f.Roots) != 0 || len(f.DisplayRoots()) != 0 {
		t.Fatalf("expected no roots for empty snapshot")
	}
}

func TestBuild_RootsAndParentOnly(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, LeftChildID: ref(2)},
		{ID: 2, ParentID: ref(1)},
		{ID: 3, ParentID: ref(1)},
		{ID: 4, ParentID: ref(99)}, // dangling parent becomes a root
		{ID: 5, ParentID: ref(3)},
	}
	f := Build(nodes)

	if got := rootIDs(f.Roots); !reflect.DeepEqual(got, []int64{1, 4}) {
		t.Errorf("roots = %v, want [1 4]", got)
	}
	if !f.ExplicitChildren[2] || f.ExplicitChildren[3] {
		t.Errorf("explicit children = %v", f.ExplicitChildren)
	}
	if got := f.ParentOnly[1]; !reflect.DeepEqual(got, []int64{3}) {
		t.Errorf("parent-only[1] = %v, want [3]", got)
	}
	if got := f.ParentOnly[3]; !reflect.DeepEqual(got, []int64{5}) {
		t.Errorf("parent-only[3] = %v, want [5]", got)
	}
	if _, ok := f.ParentOnly[99]; ok {
		t.Errorf("dangling parent must not get a bucket")
	}
}

func TestBuild_ExplicitChildNeverRoot(t *testing.T) {
	// 2 is claimed as a slot child but its parent_id dangles.
	nodes := []model.Node{
		{ID: 1, RightChildID: ref(2)},
		{ID: 2, ParentID: ref(42)},
		{ID: 3, LeftChildID: ref(4)},
		{ID: 4},
	}
	f := Build(nodes)
	for _, r := range f.Roots {
		if f.ExplicitChildren[r.ID] {
			t.Errorf("explicit child %d returned as root", r.ID)
		}
	}
	if got := rootIDs(f.Roots); !reflect.DeepEqual(got, []int64{1, 3}) {
		t.Errorf("roots = %v, want [1 3]", got)
	}
}

func TestBuild_DanglingSlotStillClaims(t *testing.T) {
	f := Build([]model.Node{{ID: 1, LeftChildID: ref(77)}})
	if !f.ExplicitChildren[77] {
		t.Errorf("dangling slot id should still be recorded as explicit")
	}
	items := f.ChildItems(f.Lookup[1])
	if len(items) != 2 || *items[0].NodeID != 77 || !items[1].IsEmpty() {
		t.Errorf("unexpected items %+v", items)
	}
}

func TestBuild_LastWriteWins(t *testing.T) {
	f := Build([]model.Node{{ID: 1, Value: 1}, {ID: 1, Value: 2}})
	if f.Lookup[1].Value != 2 {
		t.Errorf("lookup should keep the last record, got value %d", f.Lookup[1].Value)
	}
}

func TestBuild_DoesNotAliasInput(t *testing.T) {
	nodes := []model.Node{{ID: 1, ParentID: ref(2)}, {ID: 2}}
	f := Build(nodes)
	*nodes[0].ParentID = 5
	nodes[1].Value = 9
	if *f.Lookup[1].ParentID != 2 || f.Lookup[2].Value != 0 {
		t.Errorf("forest must not share storage with the snapshot")
	}
}

func TestChildItems_Ordering(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, RightChildID: ref(3)},
		{ID: 3},
		{ID: 4, ParentID: ref(1)},
		{ID: 2, ParentID: ref(1)},
	}
	f := Build(nodes)
	want := []ChildItem{
		{Side: SideLeft, NodeID: nil},
		{Side: SideRight, NodeID: ref(3)},
		{Side: SideExtra, NodeID: ref(4)},
		{Side: SideExtra, NodeID: ref(2)},
	}
	for i := 0; i < 3; i++ {
		got := f.ChildItems(f.Lookup[1])
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("run %d: items = %+v, want %+v", i, got, want)
		}
	}
	if !f.HasChildren(f.Lookup[1]) {
		t.Errorf("node 1 has children")
	}
	if f.HasChildren(f.Lookup[3]) {
		t.Errorf("node 3 is a leaf")
	}
}

func TestChildItems_NoSlotsNoPlaceholders(t *testing.T) {
	f := Build([]model.Node{{ID: 1}, {ID: 2, ParentID: ref(1)}})
	items := f.ChildItems(f.Lookup[1])
	if len(items) != 1 || items[0].IsSlot() {
		t.Errorf("expected a single extra, got %+v", items)
	}
}

func TestChildItems_SlotChildAlsoParentOnlyElsewhere(t *testing.T) {
	// 2 is the right child of 1 but declares parent 3: the slot wins and 3
	// gets no extra for it.
	f := Build([]model.Node{
		{ID: 1, RightChildID: ref(2)},
		{ID: 2, ParentID: ref(3)},
		{ID: 3},
	})
	if len(f.ChildItems(f.Lookup[3])) != 0 {
		t.Errorf("node 3 should have no children, got %+v", f.ChildItems(f.Lookup[3]))
	}
}

func TestDisplayRoots_FallbackOnFullCycle(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, LeftChildID: ref(2)},
		{ID: 2, LeftChildID: ref(1)},
		{ID: 3, ParentID: ref(3)},
	}
	f := Build(nodes)
	if len(f.Roots) != 0 {
		t.Fatalf("expected no natural roots, got %v", rootIDs(f.Roots))
	}
	if got := rootIDs(f.DisplayRoots()); !reflect.DeepEqual(got, []int64{1, 2, 3}) {
		t.Errorf("display roots = %v, want snapshot order", got)
	}
}

func TestDisplayRoots_NonEmptyForNonEmptySnapshot(t *testing.T) {
	snapshots := [][]model.Node{
		{{ID: 1}},
		{{ID: 1, ParentID: ref(1)}},
		{{ID: 1, LeftChildID: ref(1)}},
		{{ID: 1, ParentID: ref(2)}, {ID: 2, ParentID: ref(1)}},
		{{ID: 1, LeftChildID: ref(2), RightChildID: ref(2)}, {ID: 2, LeftChildID: ref(1)}},
	}
	for i, s := range snapshots {
		if len(Build(s).DisplayRoots()) == 0 {
			t.Errorf("snapshot %d: display roots empty", i)
		}
	}
}

func TestAvailableAsChild(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, LeftChildID: ref(2)},
		{ID: 2},
		{ID: 3, RightChildID: ref(4)},
		{ID: 4},
		{ID: 5},
	}
	var ids []int64
	for _, n := range AvailableAsChild(nodes, 1, ref(5)) {
		ids = append(ids, n.ID)
	}
	// 1 is self, 4 is claimed by 3, 5 is in the other slot. 2 is claimed by
	// 1 itself and stays available.
	if !reflect.DeepEqual(ids, []int64{2, 3}) {
		t.Errorf("available = %v, want [2 3]", ids)
	}
}
