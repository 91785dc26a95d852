package cache

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/podhmo/go-activex/oleaut"
)

func TestMemberCache_Names(t *testing.T) {
	c := NewMemberCache()
	if _, ok := c.LookupName("Count"); ok {
		t.Fatalf("expected empty cache")
	}
	c.StoreName("Count", 3)
	id, ok := c.LookupName("Count")
	if !ok || id != 3 {
		t.Errorf("LookupName(Count) = %d, %v; want 3, true", id, ok)
	}
	if _, ok := c.LookupName("count"); ok {
		t.Errorf("names must be cached as given")
	}
}

func TestMemberCache_MergeKinds(t *testing.T) {
	c := NewMemberCache()
	c.Merge(1, oleaut.INVOKE_PROPERTYGET)
	c.Merge(1, oleaut.INVOKE_PROPERTYPUT)
	c.Merge(2, oleaut.INVOKE_FUNC)

	if c.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", c.Len())
	}
	f, ok := c.Func(1)
	if !ok {
		t.Fatalf("Func(1) missing")
	}
	want := Func{DispID: 1, Kind: oleaut.INVOKE_PROPERTYGET | oleaut.INVOKE_PROPERTYPUT}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("Func(1) mismatch (-want +got):\n%s", diff)
	}
	if _, ok := c.Func(99); ok {
		t.Errorf("Func(99) should be missing")
	}
}

func TestMemberCache_SnapshotJSON(t *testing.T) {
	c := NewMemberCache()
	c.StoreName("Add", 2)
	c.StoreName("Count", 1)
	c.Merge(2, oleaut.INVOKE_FUNC)
	c.Merge(1, oleaut.INVOKE_PROPERTYGET)

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got Snapshot
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	want := Snapshot{
		Names: map[string]oleaut.DispID{"Add": 2, "Count": 1},
		Funcs: []Func{{DispID: 1, Kind: oleaut.INVOKE_PROPERTYGET}, {DispID: 2, Kind: oleaut.INVOKE_FUNC}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
	if got.String() != "Add,Count" {
		t.Errorf("String() = %q", got.String())
	}
}

func TestMemberCache_Concurrent(t *testing.T) {
	c := NewMemberCache()
	var wg sync.WaitGroup
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Merge(oleaut.DispID(i%4), oleaut.INVOKE_PROPERTYGET)
			c.StoreName("m", oleaut.DispID(i%4))
			c.LookupName("m")
		}()
	}
	wg.Wait()
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
}
