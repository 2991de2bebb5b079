package expansion

import (
	"log/slog"
	"sync"

	"github.com/kraitsura/flowtree/pkg/forest"
)

// Tracker owns the expansion set for one explorer session.
//
// The set starts from persisted state when any exists. Otherwise it stays
// unset until Init sees a non-empty forest, at which point the default policy
// runs once and its result is saved. Toggle flips one id and saves
// immediately. Storage errors are logged and otherwise ignored.
type Tracker struct {
	mu           sync.Mutex
	store        StateStore
	logger       *slog.Logger
	visibleDepth int

	expanded Set // nil until persisted state or defaults are applied
}

// NewTracker loads persisted state from store. store may be nil, in which case
// nothing is persisted. visibleDepth <= 0 selects VisibleDepth.
func NewTracker(store StateStore, visibleDepth int, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if visibleDepth <= 0 {
		visibleDepth = VisibleDepth
	}
	t := &Tracker{
		store:        store,
		logger:       logger,
		visibleDepth: visibleDepth,
	}
	if s, ok := t.load(); ok {
		t.expanded = s
	}
	return t
}

// load collapses read failures to "absent".
func (t *Tracker) load() (Set, bool) {
	if t.store == nil {
		return nil, false
	}
	s, ok, err := t.store.Load()
	if err != nil {
		t.logger.Warn("expansion state unreadable, using defaults", "error", err)
		return nil, false
	}
	if !ok {
		return nil, false
	}
	if s == nil {
		s = make(Set)
	}
	return s, true
}

func (t *Tracker) save(s Set) {
	if t.store == nil {
		return
	}
	if err := t.store.Save(s); err != nil {
		t.logger.Warn("failed to persist expansion state", "error", err, "count", len(s))
	}
}

// Init applies the default expansion for f if no set exists yet and f holds
// at least one node. It is a no-op once a set exists. It returns the current
// set.
func (t *Tracker) Init(f *forest.Forest) Set {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.expanded == nil && f != nil && f.Len() > 0 {
		t.expanded = DefaultExpanded(f, t.visibleDepth)
		t.logger.Debug("applied default expansion", "expanded", len(t.expanded), "depth", t.visibleDepth)
		t.save(t.expanded)
	}
	return t.expanded.Clone()
}

// Ready reports whether an expansion set has been established.
func (t *Tracker) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded != nil
}

// Expanded returns a copy of the current set. It is empty before Init.
func (t *Tracker) Expanded() Set {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded.Clone()
}

// IsExpanded reports whether id is expanded.
func (t *Tracker) IsExpanded(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expanded.Has(id)
}

// Toggle flips id and persists the new set. It returns whether id is now
// expanded. Toggling before Init starts from an empty set, which also
// suppresses the default policy for the rest of the session.
func (t *Tracker) Toggle(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	next := t.expanded.Clone()
	_, was := next[id]
	if was {
		delete(next, id)
	} else {
		next[id] = struct{}{}
	}
	t.expanded = next
	t.save(next)
	return !was
}

// Reset forgets the current set and re-runs the default policy for f.
func (t *Tracker) Reset(f *forest.Forest) Set {
	t.mu.Lock()
	t.expanded = nil
	t.mu.Unlock()
	return t.Init(f)
}
