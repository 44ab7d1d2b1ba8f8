// Package reserve implements the authoritative occupancy index over
// sections and the blocks above them (spec §4.2).
//
// A Table maps section ids (and block ids) to train ids, in the arena-plus-index
// style the rest of this repository follows for cyclic cross-references
// (spec §9): callers hold train ids, never pointers into train state.
package reserve

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/kadzu/railsim/topology"
)

// TrainID identifies a train for reservation purposes.
type TrainID int

// InvariantViolation is a fatal internal contradiction the table detected
// in its own bookkeeping (spec §7) — e.g. two different trains' wagons
// found holding sections of the same block at once, something TryReserve
// is supposed to make impossible. It is not a rejected request; callers
// are not expected to recover from it. spec §7 calls for logging at Error
// before the engine halts, so Where/Detail are both logged (via zap.S(),
// the package-wide convention this repository follows) immediately before
// the panic that carries this value.
type InvariantViolation struct {
	Where  string
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("reserve: invariant violated in %s: %s", e.Where, e.Detail)
}

// Table is the reservation table: section → train, with a derived
// block → train view rebuilt from section occupancy on every Release to
// avoid drift (spec §4.2).
type Table struct {
	topo *topology.Topology

	bySection map[topology.SectionID]TrainID
	byBlock   map[topology.BlockID]TrainID
}

// New builds an empty reservation table over topo.
func New(topo *topology.Topology) *Table {
	return &Table{
		topo:      topo,
		bySection: make(map[topology.SectionID]TrainID),
		byBlock:   make(map[topology.BlockID]TrainID),
	}
}

// TryReserve succeeds only if section is free AND the block containing it
// is free or already held by the same train (spec §4.2).
func (t *Table) TryReserve(train TrainID, section topology.SectionID) bool {
	if holder, occupied := t.bySection[section]; occupied && holder != train {
		return false
	}
	block := t.topo.BlockOf(section)
	if block != "" {
		if holder, held := t.byBlock[block]; held && holder != train {
			return false
		}
	}
	t.bySection[section] = train
	if block != "" {
		t.byBlock[block] = train
		t.assertBlockHasOneHolder(block)
	}
	return true
}

// assertBlockHasOneHolder panics with an InvariantViolation if block now
// holds sections reserved to two different trains at once — the exact
// contradiction TryReserve's own admission check above is meant to
// prevent. It exists as a belt-and-suspenders self-check (spec §7's
// canonical example: "two wagons found in one section after a
// transition"), not a recovery path.
func (t *Table) assertBlockHasOneHolder(block topology.BlockID) {
	var holder TrainID
	seen := false
	for _, sid := range t.topo.SectionsOf(block) {
		occupant, ok := t.bySection[sid]
		if !ok {
			continue
		}
		if !seen {
			holder = occupant
			seen = true
			continue
		}
		if occupant != holder {
			detail := fmt.Sprintf("block %s held by both train %d and train %d", block, holder, occupant)
			zap.S().Errorw("reserve: invariant violated", "where", "TryReserve", "detail", detail)
			panic(&InvariantViolation{Where: "TryReserve", Detail: detail})
		}
	}
}

// Release releases section. If it was the train's last presence in its
// block, the block is released too. The block-presence counters are
// rebuilt from the remaining per-section entries, per spec §4.2, so they
// never drift from the authoritative section map.
func (t *Table) Release(train TrainID, section topology.SectionID) {
	if holder, ok := t.bySection[section]; !ok || holder != train {
		return
	}
	delete(t.bySection, section)
	block := t.topo.BlockOf(section)
	if block == "" {
		return
	}
	t.rebuildBlock(block)
}

// rebuildBlock recomputes byBlock[block] from the section entries still
// held in that block. An empty block has no entry.
func (t *Table) rebuildBlock(block topology.BlockID) {
	for _, sid := range t.topo.SectionsOf(block) {
		if holder, ok := t.bySection[sid]; ok {
			t.byBlock[block] = holder
			return
		}
	}
	delete(t.byBlock, block)
}

// Peek returns the train occupying section, if any.
func (t *Table) Peek(section topology.SectionID) (TrainID, bool) {
	tr, ok := t.bySection[section]
	return tr, ok
}

// PeekBlock returns the train occupying block, if any.
func (t *Table) PeekBlock(block topology.BlockID) (TrainID, bool) {
	tr, ok := t.byBlock[block]
	return tr, ok
}

// FreeSection reports whether section holds no train.
func (t *Table) FreeSection(section topology.SectionID) bool {
	_, occupied := t.bySection[section]
	return !occupied
}

// FreeOrOwnBlock reports whether block is unheld or held by train.
func (t *Table) FreeOrOwnBlock(train TrainID, block topology.BlockID) bool {
	if block == "" {
		return true
	}
	holder, held := t.byBlock[block]
	return !held || holder == train
}

// CanExit implements the "contract on entry" from spec §4.2: a train may
// enter a block only if it can also leave it. It reports whether at least
// one outgoing edge from block, under the current active-connection
// configuration, leads to a section whose block is either free, the same
// block the train is currently exiting into (exitingInto), or appears
// within the first lookahead steps of plannedNext (the train's own route
// plan beyond s_next). This prevents admitting a train into a dead-end
// pocket it could never leave (deadlock avoidance, spec §8 scenario 6).
func (t *Table) CanExit(train TrainID, block topology.BlockID, exitingInto topology.BlockID, plannedNext []topology.SectionID, lookahead int) bool {
	if block == "" {
		return true
	}
	for _, sid := range t.topo.SectionsOf(block) {
		if t.topo.IsDespawn(sid) {
			// A despawn section has nowhere to go by design: leaving the
			// modeled track is itself the exit, so it can never be a
			// deadlocked pocket.
			return true
		}
	}
	if lookahead > len(plannedNext) {
		lookahead = len(plannedNext)
	}
	planned := make(map[topology.BlockID]bool, lookahead)
	for _, sid := range plannedNext[:lookahead] {
		planned[t.topo.BlockOf(sid)] = true
	}
	for _, sid := range t.topo.SectionsOf(block) {
		for _, nb := range t.topo.Neighbors(sid, block) {
			nbBlock := t.topo.BlockOf(nb.Section)
			if nbBlock == block {
				continue
			}
			if t.FreeOrOwnBlock(train, nbBlock) {
				return true
			}
			if nbBlock == exitingInto {
				return true
			}
			if planned[nbBlock] {
				return true
			}
		}
	}
	return false
}

// String renders the current occupancy for debugging.
func (t *Table) String() string {
	return fmt.Sprintf("reserve.Table{sections=%d, blocks=%d}", len(t.bySection), len(t.byBlock))
}
