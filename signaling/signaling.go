// Package signaling arbitrates which trains may advance into new sections
// on a given tick.
//
// Admission follows the two-pass shape the teacher's engine uses for its
// own tick step (a braking-distance safety pass followed by a motion
// pass): here the first pass orders every train's request by priority, and
// the second grants each request against the reservation table in that
// order, so a lower-priority train's rejected request never corrupts a
// higher-priority train's reservation (spec §4.5).
package signaling

import (
	"sort"

	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/topology"
)

// BlockGraceLookahead bounds how many planned sections ahead CanExit may
// consult when deciding whether a block, once entered, can still be left
// (spec §4.2, §4.5). A small bound keeps admission checks O(1) regardless
// of how long a train's remaining route is.
const BlockGraceLookahead = 3

// Request is one train's proposed entry into new sections this tick, in
// travel order (spec §4.5). PlannedNext are the sections the route plan
// calls for beyond Sections, used for the block exit-contract lookahead.
type Request struct {
	Train       reserve.TrainID
	Priority    int
	Sections    []topology.SectionID
	PlannedNext []topology.SectionID
}

// Grant is the admission outcome for one Request: the leading subsequence
// of Sections the train is cleared to actually occupy this tick. A train
// whose first requested section is denied gets an empty Grant and must
// hold at its current position.
type Grant struct {
	Train    reserve.TrainID
	Admitted []topology.SectionID
}

// Resolve admits as much of each request as the reservation table and
// block exit-contract allow, breaking simultaneous conflicts by priority:
// higher Priority wins, ties broken by the lower Train id (spec §4.5).
//
// Requests are granted in priority order so that an earlier, higher
// priority winner's reservation is already visible in table when a later
// request for the same section or block is evaluated — no second pass or
// rollback is needed.
func Resolve(table *reserve.Table, topo *topology.Topology, requests []Request) []Grant {
	ordered := append([]Request(nil), requests...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority > ordered[j].Priority
		}
		return ordered[i].Train < ordered[j].Train
	})

	grants := make([]Grant, 0, len(ordered))
	for _, req := range ordered {
		grants = append(grants, admitOne(table, topo, req))
	}
	return grants
}

func admitOne(table *reserve.Table, topo *topology.Topology, req Request) Grant {
	grant := Grant{Train: req.Train}
	var currentBlock topology.BlockID

	for i, sec := range req.Sections {
		block := topo.BlockOf(sec)

		if block != "" && block != currentBlock {
			remaining := req.PlannedNext
			if i+1 <= len(req.Sections) {
				remaining = append(append([]topology.SectionID(nil), req.Sections[i+1:]...), req.PlannedNext...)
			}
			if !table.CanExit(req.Train, block, currentBlock, remaining, BlockGraceLookahead) {
				break
			}
		}

		if !table.TryReserve(req.Train, sec) {
			break
		}
		grant.Admitted = append(grant.Admitted, sec)
		currentBlock = block
	}
	return grant
}
