package reserve

import (
	"testing"

	"github.com/kadzu/railsim/topology"
)

func fourSectionTwoBlocks(t *testing.T) *topology.Topology {
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
	})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	return topo
}

func TestTryReserveRejectsOccupiedSection(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	if !tbl.TryReserve(1, 0) {
		t.Fatalf("train 1 should be able to reserve free section 0")
	}
	if tbl.TryReserve(2, 0) {
		t.Fatalf("train 2 should not be able to reserve section 0 held by train 1")
	}
	if !tbl.TryReserve(1, 0) {
		t.Fatalf("train 1 re-reserving its own section should succeed")
	}
}

func TestTryReserveRejectsOtherTrainInSameBlock(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	if !tbl.TryReserve(1, 0) {
		t.Fatalf("train 1 should reserve section 0")
	}
	if tbl.TryReserve(2, 1) {
		t.Fatalf("train 2 should not be able to reserve section 1: block B0 held by train 1")
	}
	if !tbl.TryReserve(1, 1) {
		t.Fatalf("train 1 should be able to reserve section 1 within its own block")
	}
}

func TestReleaseFreesBlockOnlyWhenLastSectionReleased(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	tbl.TryReserve(1, 0)
	tbl.TryReserve(1, 1)

	tbl.Release(1, 0)
	if _, held := tbl.PeekBlock("B0"); !held {
		t.Fatalf("B0 should still be held: train 1 still occupies section 1")
	}
	if tbl.TryReserve(2, 0) != true {
		t.Fatalf("train 2 should be able to take freed section 0")
	}

	tbl.Release(1, 1)
	if _, held := tbl.PeekBlock("B0"); held {
		t.Fatalf("B0 should be free: train 1 no longer occupies any of its sections")
	}
}

func TestReleaseIgnoresWrongHolder(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	tbl.TryReserve(1, 0)
	tbl.Release(2, 0) // train 2 never held section 0
	if _, held := tbl.Peek(0); !held {
		t.Fatalf("section 0 should still be held by train 1")
	}
}

func TestPeekAndFreeSection(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	if !tbl.FreeSection(0) {
		t.Fatalf("section 0 should start free")
	}
	tbl.TryReserve(1, 0)
	if tbl.FreeSection(0) {
		t.Fatalf("section 0 should no longer be free")
	}
	holder, ok := tbl.Peek(0)
	if !ok || holder != 1 {
		t.Fatalf("Peek(0) = %v, %v, want 1, true", holder, ok)
	}
}

func TestCanExitAllowsFreeNeighborBlock(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	// Entering B0 (sections 0,1): exiting edge 1->2 leads to B1, which is free.
	if !tbl.CanExit(1, "B0", "", nil, 0) {
		t.Fatalf("should be able to exit B0 into free B1")
	}
}

// TestTryReservePanicsOnCrossTrainBlockCorruption exercises spec §7's
// InvariantViolation: the by-section map is the authoritative source of
// truth, so if it is ever found to hold two different trains' sections
// within the same block — a state TryReserve's own admission check is
// supposed to make unreachable — the table must halt loudly rather than
// let the corruption propagate silently into signaling.
func TestTryReservePanicsOnCrossTrainBlockCorruption(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	// Simulate bookkeeping drift that should never happen through the
	// table's own API: train 1 already owns section 0 of B0 behind
	// TryReserve's back.
	tbl.bySection[0] = 1

	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected a panic carrying *InvariantViolation")
		}
		iv, ok := r.(*InvariantViolation)
		if !ok {
			t.Fatalf("panic value = %#v (%T), want *InvariantViolation", r, r)
		}
		if iv.Where != "TryReserve" {
			t.Errorf("Where = %q, want %q", iv.Where, "TryReserve")
		}
	}()
	tbl.TryReserve(2, 1) // train 2 reserving section 1 of the same block B0
}

func TestCanExitDeniesWhenAllNeighborBlocksHeldAndNotPlanned(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	tbl.TryReserve(2, 2)
	tbl.TryReserve(2, 3) // B1 fully held by train 2

	if tbl.CanExit(1, "B0", "", nil, 0) {
		t.Fatalf("should not be able to enter B0: only exit (B1) is held by another train")
	}
}

func TestCanExitAllowsWhenExitingIntoSameHeldBlock(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	tbl.TryReserve(2, 2)
	tbl.TryReserve(2, 3)

	// Train 1 is itself the train currently exiting through B1 (e.g. releasing
	// it this tick), so admitting it into B0 is safe.
	if !tbl.CanExit(1, "B0", "B1", nil, 0) {
		t.Fatalf("should be able to exit B0 when exitingInto matches the held neighbor block")
	}
}

func TestCanExitAllowsWhenNeighborBlockIsWithinLookahead(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)

	tbl.TryReserve(2, 2)
	tbl.TryReserve(2, 3)

	planned := []topology.SectionID{2, 3}
	if !tbl.CanExit(1, "B0", "", planned, 2) {
		t.Fatalf("should be able to enter B0: B1 is within the train's own planned lookahead")
	}
}

func TestCanExitTrivialForEmptyBlock(t *testing.T) {
	topo := fourSectionTwoBlocks(t)
	tbl := New(topo)
	if !tbl.CanExit(1, "", "", nil, 0) {
		t.Fatalf("empty block id should always be exitable")
	}
}

func TestCanExitAlwaysAllowsTerminalDespawnBlock(t *testing.T) {
	topo, err := topology.New(topology.Loader{
		Sections: []topology.Section{{ID: 0}, {ID: 1}},
		Connections: []topology.Connection{
			{From: 0, To: 1, Active: true},
		},
		Blocks: []topology.BlockMembership{
			{Block: "B0", Sections: []topology.SectionID{0}},
			{Block: "B1", Sections: []topology.SectionID{1}},
		},
		Despawn: []topology.SectionID{1},
	})
	if err != nil {
		t.Fatalf("New: %s", err)
	}
	tbl := New(topo)

	// B1 (the despawn block) has no outgoing edges at all, so the
	// ordinary "some neighbor block is free" rule would always deny
	// entry. Despawn sections are an explicit exception: leaving the
	// track is itself the exit.
	if !tbl.CanExit(1, "B1", "", nil, 0) {
		t.Fatalf("a despawn block must always be exitable, even with no outgoing edges")
	}
}
