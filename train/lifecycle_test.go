package train

import (
	"testing"

	"github.com/kadzu/railsim/kinematics"
	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/topology"
)

func smallTopo(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.New(topology.Loader{
		Sections: []topology.Section{{ID: 0}, {ID: 1}, {ID: 2}, {ID: 3}},
		Connections: []topology.Connection{
			{From: 0, To: 1, Active: true},
			{From: 1, To: 2, Active: true},
			{From: 2, To: 3, Active: true},
		},
		Blocks: []topology.BlockMembership{
			{Block: "B0", Sections: []topology.SectionID{0, 1}},
			{Block: "B1", Sections: []topology.SectionID{2, 3}},
		},
		Stops: []topology.Stop{
			{ID: "Track 1", Section: 2, Side: topology.ApproachLeft},
		},
		Spawn:   []topology.SectionID{0},
		Despawn: []topology.SectionID{3},
	})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	return topo
}

func TestSpawnRejectsTooManyWagons(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	_, err := Spawn(SpawnRequest{ID: 1, NumWagons: 16, EntrySection: 0}, topo, table, nil)
	if err == nil {
		t.Fatalf("expected rejection for 16 wagons")
	}
	if e, ok := err.(*SpawnRejected); !ok || e.Reason != InvalidWagonCount {
		t.Errorf("err = %#v, want InvalidWagonCount", err)
	}
}

func TestSpawnRejectsDuplicateID(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	_, err := Spawn(SpawnRequest{ID: 1, NumWagons: 1, EntrySection: 0}, topo, table, map[reserve.TrainID]bool{1: true})
	if e, ok := err.(*SpawnRejected); !ok || e.Reason != DuplicateTrainID {
		t.Errorf("err = %#v, want DuplicateTrainId", err)
	}
}

func TestSpawnRejectsNonSpawnSection(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	_, err := Spawn(SpawnRequest{ID: 1, NumWagons: 1, EntrySection: 1}, topo, table, nil)
	if e, ok := err.(*SpawnRejected); !ok || e.Reason != NotASpawnSection {
		t.Errorf("err = %#v, want NotASpawnSection", err)
	}
}

func TestSpawnRejectsOccupiedEntry(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	table.TryReserve(99, 0)
	_, err := Spawn(SpawnRequest{ID: 1, NumWagons: 1, EntrySection: 0}, topo, table, nil)
	if e, ok := err.(*SpawnRejected); !ok || e.Reason != EntryOccupied {
		t.Errorf("err = %#v, want EntryOccupied", err)
	}
}

func TestSpawnRejectsUnknownStop(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	_, err := Spawn(SpawnRequest{ID: 1, NumWagons: 1, EntrySection: 0, DesiredStopID: "nope"}, topo, table, nil)
	if e, ok := err.(*SpawnRejected); !ok || e.Reason != UnknownStop {
		t.Errorf("err = %#v, want UnknownStop", err)
	}
}

func TestSpawnSucceedsWithSingleHeadWagonAndPendingRemainder(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	tr, err := Spawn(SpawnRequest{ID: 1, NumWagons: 3, EntrySection: 0}, topo, table, nil)
	if err != nil {
		t.Fatalf("Spawn: %s", err)
	}
	if len(tr.Occupant.Wagons) != 1 {
		t.Fatalf("Wagons = %v, want exactly the head wagon placed at spawn", tr.Occupant.Wagons)
	}
	if tr.PendingWagons() != 2 {
		t.Errorf("PendingWagons = %d, want 2", tr.PendingWagons())
	}
	if tr.Status != Scheduled {
		t.Errorf("Status = %v, want Scheduled", tr.Status)
	}
}

func TestAdmitPendingWagonOnlyWhenEntryFree(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	tr, err := Spawn(SpawnRequest{ID: 1, NumWagons: 2, EntrySection: 0}, topo, table, nil)
	if err != nil {
		t.Fatalf("Spawn: %s", err)
	}
	table.TryReserve(tr.ID, 0) // head occupies entry section

	if tr.AdmitPendingWagon(0, table) {
		t.Fatalf("should not admit: entry section still held by this train's own head")
	}
	table.Release(tr.ID, 0)
	if !tr.AdmitPendingWagon(0, table) {
		t.Fatalf("should admit once entry section is free")
	}
	if tr.PendingWagons() != 0 {
		t.Errorf("PendingWagons = %d, want 0", tr.PendingWagons())
	}
}

func TestApproachMatches(t *testing.T) {
	if !ApproachMatches(topology.ApproachLeft, 1, 2) {
		t.Errorf("left approach from lower neighbor should match")
	}
	if ApproachMatches(topology.ApproachLeft, 3, 2) {
		t.Errorf("left approach from higher neighbor should not match")
	}
	if !ApproachMatches(topology.ApproachRight, 3, 2) {
		t.Errorf("right approach from higher neighbor should match")
	}
}

func TestTryBeginDwellRequiresCorrectApproach(t *testing.T) {
	topo := smallTopo(t)
	tr := &Train{
		Status:      Moving,
		DesiredStop: "Track 1",
		Occupant:    kinematics.Occupant{Wagons: []kinematics.WagonPosition{{Section: 2}}},
	}
	if TryBeginDwell(tr, topo, 3, DefaultDwellSeconds) {
		t.Fatalf("wrong-side approach (from higher neighbor 3) should not trigger dwell at a left-approach stop")
	}
	if tr.Status != Moving {
		t.Errorf("Status = %v, want unchanged Moving", tr.Status)
	}

	if !TryBeginDwell(tr, topo, 1, DefaultDwellSeconds) {
		t.Fatalf("correct-side approach (from lower neighbor 1) should trigger dwell")
	}
	if tr.Status != Dwelling {
		t.Errorf("Status = %v, want Dwelling", tr.Status)
	}
}

func TestTickDwellExpiresAndClearsDesiredStop(t *testing.T) {
	tr := &Train{Status: Dwelling, DesiredStop: "Track 1", DwellRemaining: 1.0}
	if TickDwell(tr, 0.5) {
		t.Fatalf("should not expire yet")
	}
	if !TickDwell(tr, 0.6) {
		t.Fatalf("should expire after remaining time elapses")
	}
	if tr.DesiredStop != "" {
		t.Errorf("DesiredStop = %q, want cleared on expiry", tr.DesiredStop)
	}
}

func TestReleaseExitedWagonsPopsHeadAtDespawnSection(t *testing.T) {
	topo := smallTopo(t)
	table := reserve.New(topo)
	tr := &Train{ID: 1, Status: Moving, Occupant: kinematics.Occupant{
		Wagons: []kinematics.WagonPosition{{Section: 3}, {Section: 2}},
	}}
	table.TryReserve(1, 3)
	table.TryReserve(1, 2)

	if ReleaseExitedWagons(tr, topo, table) {
		t.Fatalf("should not be fully despawned yet: one wagon remains")
	}
	if len(tr.Occupant.Wagons) != 1 || tr.Occupant.Wagons[0].Section != 2 {
		t.Fatalf("Wagons = %v, want head wagon at despawn section popped", tr.Occupant.Wagons)
	}
	if _, held := table.Peek(3); held {
		t.Errorf("section 3 should have been released")
	}

	tr.Occupant.Wagons[0].Section = 3 // last wagon reaches the despawn section
	if !ReleaseExitedWagons(tr, topo, table) {
		t.Fatalf("should report fully despawned once the last wagon is popped")
	}
	if tr.Status != Despawned {
		t.Errorf("Status = %v, want Despawned", tr.Status)
	}
}
