package expansion

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kraitsura/flowtree/pkg/forest"
	"github.com/kraitsura/flowtree/pkg/model"
)

var ref = model.Ref

// chain builds root(1) -> 2 -> 3 ... -> n through left slots.
func chain(n int64) []model.Node {
	nodes := make([]model.Node, 0, n)
	for id := int64(1); id <= n; id++ {
		node := model.Node{ID: id, Value: id * 10}
		if id < n {
			node.LeftChildID = ref(id + 1)
		}
		nodes = append(nodes, node)
	}
	return nodes
}

func TestDefaultExpanded_FiveLevelChain(t *testing.T) {
	got := DefaultExpanded(forest.Build(chain(5)), VisibleDepth)
	if want := []int64{1, 2}; !reflect.DeepEqual(got.IDs(), want) {
		t.Errorf("expanded = %v, want %v", got.IDs(), want)
	}
}

func TestDefaultExpanded_Depths(t *testing.T) {
	tests := []struct {
		depth int
		want  []int64
	}{
		{0, []int64{}},
		{1, []int64{1}},
		{3, []int64{1, 2, 3}},
		{10, []int64{1, 2, 3, 4, 5}},
	}
	f := forest.Build(chain(5))
	for _, tt := range tests {
		got := DefaultExpanded(f, tt.depth).IDs()
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("depth %d: expanded = %v, want %v", tt.depth, got, tt.want)
		}
	}
}

func TestDefaultExpanded_MixedChildren(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, LeftChildID: ref(2), RightChildID: ref(404)},
		{ID: 2, LeftChildID: ref(5)},
		{ID: 3, ParentID: ref(1)}, // parent-only extra at depth 1
		{ID: 4, ParentID: ref(3)},
		{ID: 5},
		{ID: 6}, // second root
	}
	got := DefaultExpanded(forest.Build(nodes), VisibleDepth).IDs()
	if want := []int64{1, 2, 3, 6}; !reflect.DeepEqual(got, want) {
		t.Errorf("expanded = %v, want %v", got, want)
	}
}

func TestDefaultExpanded_CycleTerminates(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, RightChildID: ref(2)},
		{ID: 2, LeftChildID: ref(3)},
		{ID: 3, ParentID: ref(2), LeftChildID: ref(2)},
		{ID: 9, LeftChildID: ref(1)}, // only 9 is a root
	}
	got := DefaultExpanded(forest.Build(nodes), 50).IDs()
	if want := []int64{1, 2, 3, 9}; !reflect.DeepEqual(got, want) {
		t.Errorf("expanded = %v, want %v", got, want)
	}
}

func TestDefaultExpanded_NoRoots(t *testing.T) {
	nodes := []model.Node{
		{ID: 1, LeftChildID: ref(2)},
		{ID: 2, LeftChildID: ref(1)},
	}
	if got := DefaultExpanded(forest.Build(nodes), VisibleDepth); len(got) != 0 {
		t.Errorf("expected nothing expanded without roots, got %v", got.IDs())
	}
}

func TestTracker_DefaultsAppliedOnceAndPersisted(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 0, nil)

	if tr.Ready() {
		t.Fatal("tracker should not be ready before Init")
	}
	tr.Init(forest.Build(nil))
	if tr.Ready() || len(store.Saves()) != 0 {
		t.Fatal("empty snapshot must not trigger defaults")
	}

	got := tr.Init(forest.Build(chain(5)))
	if !got.Equal(NewSet(1, 2)) {
		t.Fatalf("Init = %v, want [1 2]", got.IDs())
	}
	saves := store.Saves()
	if len(saves) != 1 || !saves[0].Equal(NewSet(1, 2)) {
		t.Fatalf("saves = %v, want one save of [1 2]", saves)
	}

	// A later snapshot does not recompute.
	tr.Init(forest.Build(chain(2)))
	if len(store.Saves()) != 1 || !tr.Expanded().Equal(NewSet(1, 2)) {
		t.Error("defaults must run at most once per session")
	}
}

func TestTracker_PersistedUsedVerbatim(t *testing.T) {
	store := NewMemoryStore(NewSet(3, 777))
	tr := NewTracker(store, 0, nil)

	got := tr.Init(forest.Build(chain(5)))
	if !got.Equal(NewSet(3, 777)) {
		t.Errorf("Init = %v, want persisted [3 777]", got.IDs())
	}
	if len(store.Saves()) != 0 {
		t.Error("persisted state must not be rewritten by Init")
	}
}

func TestTracker_PersistedEmptySetIsPresent(t *testing.T) {
	tr := NewTracker(NewMemoryStore(NewSet()), 0, nil)
	if got := tr.Init(forest.Build(chain(3))); len(got) != 0 {
		t.Errorf("an empty persisted set should be kept, got %v", got.IDs())
	}
}

func TestTracker_DoubleToggle(t *testing.T) {
	store := NewMemoryStore(NewSet(1, 2))
	tr := NewTracker(store, 0, nil)
	before := tr.Init(forest.Build(chain(5)))

	if !tr.Toggle(4) {
		t.Fatal("first toggle should expand 4")
	}
	if tr.Toggle(4) {
		t.Fatal("second toggle should collapse 4")
	}

	saves := store.Saves()
	if len(saves) != 2 {
		t.Fatalf("saves = %d, want 2", len(saves))
	}
	if !saves[0].Equal(NewSet(1, 2, 4)) {
		t.Errorf("first save = %v", saves[0].IDs())
	}
	if !saves[1].Equal(before) {
		t.Errorf("second save = %v, want %v", saves[1].IDs(), before.IDs())
	}
}

func TestTracker_ToggleBeforeInitSuppressesDefaults(t *testing.T) {
	store := NewMemoryStore()
	tr := NewTracker(store, 0, nil)
	tr.Toggle(3)
	if got := tr.Init(forest.Build(chain(5))); !got.Equal(NewSet(3)) {
		t.Errorf("Init = %v, want [3]", got.IDs())
	}
}

func TestTracker_StorageFailuresSwallowed(t *testing.T) {
	store := NewMemoryStore()
	store.LoadErr = errors.New("disk on fire")
	store.SaveErr = errors.New("still on fire")

	tr := NewTracker(store, 0, nil)
	got := tr.Init(forest.Build(chain(5)))
	if !got.Equal(NewSet(1, 2)) {
		t.Errorf("Init = %v, want defaults after load failure", got.IDs())
	}
	if !tr.Toggle(3) || !tr.IsExpanded(3) {
		t.Error("toggle must take effect even when saving fails")
	}
}

func TestTracker_NilStore(t *testing.T) {
	tr := NewTracker(nil, 1, nil)
	if got := tr.Init(forest.Build(chain(3))); !got.Equal(NewSet(1)) {
		t.Errorf("Init = %v, want [1]", got.IDs())
	}
}

func TestTracker_Reset(t *testing.T) {
	store := NewMemoryStore(NewSet(5))
	tr := NewTracker(store, 0, nil)
	f := forest.Build(chain(5))
	tr.Init(f)
	if got := tr.Reset(f); !got.Equal(NewSet(1, 2)) {
		t.Errorf("Reset = %v, want [1 2]", got.IDs())
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "state.json")
	fs := NewFileStore(path)

	if _, ok, err := fs.Load(); ok || err != nil {
		t.Fatalf("Load on missing file = ok %v err %v", ok, err)
	}
	if err := fs.Save(NewSet(9, 1, 4)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "[1,4,9]" {
		t.Errorf("file = %s, want [1,4,9]", data)
	}
	s, ok, err := fs.Load()
	if err != nil || !ok || !s.Equal(NewSet(1, 4, 9)) {
		t.Errorf("Load = %v %v %v", s.IDs(), ok, err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file should not remain")
	}
}

func TestFileStore_CorruptIsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := NewFileStore(path).Load(); err == nil {
		t.Fatal("expected parse error")
	}

	// The tracker treats it as absent.
	tr := NewTracker(NewFileStore(path), 0, nil)
	if tr.Ready() {
		t.Error("corrupt state should be treated as absent")
	}
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	bs, err := OpenBadger(BadgerConfig{InMemory: true, Workspace: "ws-a"})
	if err != nil {
		t.Fatalf("OpenBadger: %v", err)
	}
	defer bs.Close()

	if _, ok, err := bs.Load(); ok || err != nil {
		t.Fatalf("Load before save = ok %v err %v", ok, err)
	}
	if err := bs.Save(NewSet(2, 3)); err != nil {
		t.Fatalf("Save: %v", err)
	}
	s, ok, err := bs.Load()
	if err != nil || !ok || !s.Equal(NewSet(2, 3)) {
		t.Errorf("Load = %v %v %v", s.IDs(), ok, err)
	}
}

func TestBadgerStore_RequiresPath(t *testing.T) {
	if _, err := OpenBadger(BadgerConfig{}); err == nil {
		t.Fatal("expected error without path")
	}
}

func TestSetJSON(t *testing.T) {
	var s Set
	if err := s.UnmarshalJSON([]byte("[3,1,3]")); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s.IDs(), []int64{1, 3}) {
		t.Errorf("IDs = %v", s.IDs())
	}
	var nilSet Set
	if nilSet.Has(1) || len(nilSet.Clone()) != 0 {
		t.Error("nil set should behave as empty")
	}
}
