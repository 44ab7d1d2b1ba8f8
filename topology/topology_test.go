package topology

import (
	"testing"
)

func TestNewValidatesReferences(t *testing.T) {
	cases := []struct {
		name string
		l    Loader
	}{
		{
			name: "connection to unknown section",
			l: Loader{
				Sections:   []Section{{ID: 0}},
				Connections: []Connection{{From: 0, To: 1, Active: true}},
			},
		},
		{
			name: "block with no sections",
			l: Loader{
				Sections: []Section{{ID: 0}},
				Blocks:   []BlockMembership{{Block: "B0"}},
			},
		},
		{
			name: "spawn section not declared",
			l: Loader{
				Sections: []Section{{ID: 0}},
				Spawn:    []SectionID{9},
			},
		},
		{
			name: "despawn section not declared",
			l: Loader{
				Sections: []Section{{ID: 0}},
				Despawn:  []SectionID{9},
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if _, err := New(c.l); err == nil {
				t.Fatalf("New(%s): expected error, got nil", c.name)
			}
		})
	}
}

func TestNeighborsFiltersInactiveAndExcluded(t *testing.T) {
	l := Loader{
		Sections: []Section{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}},
		Connections: []Connection{
			{From: 0, To: 1, Active: true},
			{From: 0, To: 2, Active: false},
			{From: 1, To: 3, Active: true, ExcludePreviousBlock: "B0"},
		},
		Blocks: []BlockMembership{
			{Block: "B0", Sections: []SectionID{0, 1}},
			{Block: "B1", Sections: []SectionID{2, 3}},
		},
	}
	topo, err := New(l)
	if err != nil {
		t.Fatalf("New: %s", err)
	}

	ns := topo.Neighbors(0, "")
	if len(ns) != 1 || ns[0].Section != 1 {
		t.Fatalf("Neighbors(0, \"\") = %#v, want only section 1 (inactive 0->2 excluded)", ns)
	}

	ns = topo.Neighbors(1, "B0")
	if len(ns) != 0 {
		t.Fatalf("Neighbors(1, \"B0\") = %#v, want none (excluded by previous block)", ns)
	}

	ns = topo.Neighbors(1, "other")
	if len(ns) != 1 || ns[0].Section != 3 {
		t.Fatalf("Neighbors(1, \"other\") = %#v, want only section 3", ns)
	}
}

func TestSetConnectionActiveTakesEffectImmediately(t *testing.T) {
	topo, err := Reference()
	if err != nil {
		t.Fatalf("Reference: %s", err)
	}
	active, exists := topo.ConnectionActive(2, 1000)
	if !exists {
		t.Fatalf("connection 2->1000 should exist")
	}
	if active {
		t.Fatalf("connection 2->1000 should start inactive")
	}
	if !topo.SetConnectionActive(2, 1000, true) {
		t.Fatalf("SetConnectionActive(2, 1000, true) failed")
	}
	active, _ = topo.ConnectionActive(2, 1000)
	if !active {
		t.Fatalf("connection 2->1000 should now be active")
	}
}

func TestReferenceTopologyInvariants(t *testing.T) {
	topo, err := Reference()
	if err != nil {
		t.Fatalf("Reference: %s", err)
	}
	for _, sid := range []SectionID{0, 141} {
		if !topo.IsSpawn(sid) {
			t.Errorf("section %d should be a spawn section", sid)
		}
	}
	for _, sid := range []SectionID{41, 100} {
		if !topo.IsDespawn(sid) {
			t.Errorf("section %d should be a despawn section", sid)
		}
	}
	stop, ok := topo.StopAt(31)
	if !ok || stop.Side != ApproachLeft {
		t.Errorf("section 31 should be a left-approach stop, got %#v, %v", stop, ok)
	}
	stop, ok = topo.StopAt(70)
	if !ok || stop.Side != ApproachRight {
		t.Errorf("section 70 should be a right-approach stop, got %#v, %v", stop, ok)
	}
}
