package cache

import (
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/podhmo/go-activex/oleaut"
)

// Func is the cached classification of one member id.
type Func struct {
	DispID oleaut.DispID     `json:"dispid"`
	Kind   oleaut.InvokeKind `json:"invkind"`
}

// MemberCache holds the two lookup tables of a resolver: name to member id, and
// member id to invocation kind. Names are kept as given; the object decides
// whether lookups are case-sensitive, so "Count" and "count" are cached apart.
type MemberCache struct {
	mu    sync.RWMutex
	names map[string]oleaut.DispID
	funcs map[oleaut.DispID]*Func
}

// NewMemberCache creates an empty MemberCache.
func NewMemberCache() *MemberCache {
	return &MemberCache{
		names: make(map[string]oleaut.DispID),
		funcs: make(map[oleaut.DispID]*Func),
	}
}

// LookupName returns the cached id for name.
func (c *MemberCache) LookupName(name string) (oleaut.DispID, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.names[name]
	return id, ok
}

// StoreName records a successful resolution.
func (c *MemberCache) StoreName(name string, id oleaut.DispID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names[name] = id
}

// Merge records that id is exposed with kind. An id seen more than once has
// its kinds or-ed together, so a get and a put description of one property
// end up as a single get|put entry.
func (c *MemberCache) Merge(id oleaut.DispID, kind oleaut.InvokeKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if f, ok := c.funcs[id]; ok {
		f.Kind |= kind
		return
	}
	c.funcs[id] = &Func{DispID: id, Kind: kind}
}

// Func returns the classification of id.
func (c *MemberCache) Func(id oleaut.DispID) (Func, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.funcs[id]
	if !ok {
		return Func{}, false
	}
	return *f, true
}

// Len returns the number of classified member ids.
func (c *MemberCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.funcs)
}

// Snapshot is a point-in-time copy of a MemberCache.
type Snapshot struct {
	Names map[string]oleaut.DispID `json:"names"`
	Funcs []Func                   `json:"funcs"`
}

// Snapshot copies the current tables, with Funcs sorted by id.
func (c *MemberCache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Names: make(map[string]oleaut.DispID, len(c.names)),
		Funcs: make([]Func, 0, len(c.funcs)),
	}
	for k, v := range c.names {
		s.Names[k] = v
	}
	for _, f := range c.funcs {
		s.Funcs = append(s.Funcs, *f)
	}
	sort.Slice(s.Funcs, func(i, j int) bool { return s.Funcs[i].DispID < s.Funcs[j].DispID })
	return s
}

// MarshalJSON encodes a snapshot of the cache.
func (c *MemberCache) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Snapshot())
}

// String lists the cached names, for diagnostics.
func (s Snapshot) String() string {
	names := make([]string, 0, len(s.Names))
	for k := range s.Names {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
