package engine

import (
	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

// Snapshot is the outbound per-tick state record (spec §6).
type Snapshot struct {
	TickIndex      uint64
	SimTimeSeconds float64

	Trains      []TrainSnapshot
	Wagons      []WagonSnapshot
	Connections []ConnectionSnapshot
}

// TrainSnapshot is one train's externally observable state.
type TrainSnapshot struct {
	ID          reserve.TrainID
	Code        string
	Status      train.Status
	HeadSection topology.SectionID
	Direction   train.Direction
	DesiredStop topology.StopID
}

// WagonSnapshot is one wagon's externally observable state.
type WagonSnapshot struct {
	TrainID        reserve.TrainID
	WagonIndex     int
	Section        topology.SectionID
	PositionOffset float64
}

// ConnectionSnapshot reports a connection's active flag, for diagnostics.
type ConnectionSnapshot struct {
	From, To topology.SectionID
	Active   bool
}

// buildSnapshot renders the scheduler's current state into a Snapshot.
func buildSnapshot(tickIndex uint64, simTime float64, topo *topology.Topology, trains []*train.Train) Snapshot {
	snap := Snapshot{TickIndex: tickIndex, SimTimeSeconds: simTime}

	for _, t := range trains {
		snap.Trains = append(snap.Trains, TrainSnapshot{
			ID:          t.ID,
			Code:        t.Code,
			Status:      t.Status,
			HeadSection: t.HeadSection(),
			Direction:   t.Direction,
			DesiredStop: t.DesiredStop,
		})
		for i, w := range t.Occupant.Wagons {
			snap.Wagons = append(snap.Wagons, WagonSnapshot{
				TrainID:        t.ID,
				WagonIndex:     i,
				Section:        w.Section,
				PositionOffset: w.PositionOffset,
			})
		}
	}

	for _, c := range topo.Connections() {
		snap.Connections = append(snap.Connections, ConnectionSnapshot{From: c.From, To: c.To, Active: c.Active})
	}

	return snap
}
