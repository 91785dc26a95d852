package activex

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/podhmo/go-activex/oleaut"
)

// ClassFactory creates a new instance of a class.
type ClassFactory func() (oleaut.Dispatch, error)

// Registry maps class identifiers to factories and keeps the table of running
// instances. Class identifiers are case-insensitive.
type Registry struct {
	mu      sync.RWMutex
	classes map[string]entry
	running map[string]oleaut.Dispatch
}

type entry struct {
	classID string
	factory ClassFactory
}

// DefaultRegistry is the process-wide registry used when no other is configured.
var DefaultRegistry = NewRegistry()

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes: make(map[string]entry),
		running: make(map[string]oleaut.Dispatch),
	}
}

func key(classID string) string { return strings.ToLower(classID) }

// Register adds or replaces a class.
func (r *Registry) Register(classID string, factory ClassFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.classes[key(classID)] = entry{classID: classID, factory: factory}
}

// Unregister removes a class and revokes its running instance.
func (r *Registry) Unregister(classID string) {
	r.Revoke(classID)
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.classes, key(classID))
}

// Classes returns the registered class identifiers, sorted.
func (r *Registry) Classes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.classes))
	for e := range maps.Values(r.classes) {
		ids = append(ids, e.classID)
	}
	slices.Sort(ids)
	return ids
}

// RegisterActive publishes d as the running instance of a registered class.
// The registry holds a reference on d until Revoke.
func (r *Registry) RegisterActive(classID string, d oleaut.Dispatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(classID)
	if _, ok := r.classes[k]; !ok {
		return fmt.Errorf("register active %q: %w", classID, oleaut.REGDB_E_CLASSNOTREG)
	}
	d.AddRef()
	if old, ok := r.running[k]; ok {
		old.Release()
	}
	r.running[k] = d
	return nil
}

// Revoke removes the running instance of a class, reporting whether there was one.
func (r *Registry) Revoke(classID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := key(classID)
	d, ok := r.running[k]
	if !ok {
		return false
	}
	delete(r.running, k)
	d.Release()
	return true
}

// GetActiveObject returns the running instance of a class.
func (r *Registry) GetActiveObject(classID string) (oleaut.Dispatch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.running[key(classID)]; ok {
		return d, nil
	}
	return nil, oleaut.MK_E_UNAVAILABLE
}

// CreateInstance returns an instance of a class. With activate, a running
// instance is preferred; a new one is created when there is none.
func (r *Registry) CreateInstance(classID string, activate bool) (oleaut.Dispatch, error) {
	r.mu.RLock()
	e, ok := r.classes[key(classID)]
	r.mu.RUnlock()
	if !ok {
		return nil, oleaut.CO_E_CLASSSTRING
	}
	if activate {
		if d, err := r.GetActiveObject(classID); err == nil {
			return d, nil
		}
	}
	d, err := e.factory()
	if err != nil {
		return nil, err
	}
	if d == nil {
		return nil, oleaut.E_POINTER
	}
	return d, nil
}
