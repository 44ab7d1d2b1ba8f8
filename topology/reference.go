package topology

import "fmt"

// Reference builds the small station topology used by this repository's
// tests and demo commands. It is grounded on the fictitious layout in the
// Python prototype this spec was distilled from (original_source/backend/app
// /main.py and simulation.py): a single bidirectional corridor numbered 0
// through 141, with spawn points at the two far ends (0, 141) and despawn
// points a short way in from each end (41, 100), plus a one-section siding
// (section 1000) between sections 2 and 3, reachable only when a connection
// into it is switched active.
//
// The original's STOP_CONSTRAINTS named four stops at sections 31, 129
// (approach from the lower-indexed neighbor) and 213, 301 (approach from the
// higher-indexed neighbor) on what appears to be a second, never-fully
// specified line. Since topology is an external input per spec §1, this
// reference keeps the corridor self-contained and places the two
// right-approach stops at sections 70 and 90 instead of inventing a second
// disconnected line — see DESIGN.md.
func Reference() (*Topology, error) {
	const (
		corridorMax  = 141
		blockSize    = 4
		sidingBranch = 2
		sidingID     = SectionID(1000)
	)

	l := Loader{}
	for i := 0; i <= corridorMax; i++ {
		l.Sections = append(l.Sections, Section{ID: SectionID(i), Geometry: Horizontal})
	}
	l.Sections = append(l.Sections, Section{ID: sidingID, Geometry: Diagonal})

	for i := 0; i < corridorMax; i++ {
		from, to := SectionID(i), SectionID(i+1)
		l.Connections = append(l.Connections,
			Connection{From: from, To: to, Active: true},
			Connection{From: to, To: from, Active: true},
		)
	}
	// Siding: a switch off section 2, inactive by default (spec §6
	// SetConnectionActive scenario exercises flipping this on).
	l.Connections = append(l.Connections,
		Connection{From: sidingBranch, To: sidingID, Active: false},
		Connection{From: sidingID, To: sidingBranch, Active: false},
		Connection{From: sidingID, To: sidingBranch + 1, Active: true},
		Connection{From: sidingBranch + 1, To: sidingID, Active: false},
	)

	for blockStart := 0; blockStart <= corridorMax; blockStart += blockSize {
		blockEnd := blockStart + blockSize - 1
		if blockEnd > corridorMax {
			blockEnd = corridorMax
		}
		var sections []SectionID
		for s := blockStart; s <= blockEnd; s++ {
			sections = append(sections, SectionID(s))
		}
		l.Blocks = append(l.Blocks, BlockMembership{
			Block:    BlockID(fmt.Sprintf("B%d", blockStart/blockSize)),
			Sections: sections,
		})
	}
	l.Blocks = append(l.Blocks, BlockMembership{Block: "BSW", Sections: []SectionID{sidingID}})

	l.Stops = []Stop{
		{ID: "Track 1", Section: 31, Side: ApproachLeft},
		{ID: "Track 2", Section: 129, Side: ApproachLeft},
		{ID: "Track 3", Section: 70, Side: ApproachRight},
		{ID: "Track 4", Section: 90, Side: ApproachRight},
	}

	l.Spawn = []SectionID{0, 141}
	l.Despawn = []SectionID{41, 100}

	return New(l)
}
