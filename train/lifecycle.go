package train

import (
	"fmt"

	"github.com/kadzu/railsim/kinematics"
	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/router"
	"github.com/kadzu/railsim/topology"
)

// RejectReason names why a Spawn request could not be admitted (spec §7
// SpawnRejected).
type RejectReason string

const (
	EntryOccupied     RejectReason = "EntryOccupied"
	EntryBlockHeld    RejectReason = "EntryBlockHeld"
	DuplicateTrainID  RejectReason = "DuplicateTrainId"
	InvalidWagonCount RejectReason = "InvalidWagonCount"
	UnknownStop       RejectReason = "UnknownStop"
	NotASpawnSection  RejectReason = "NotASpawnSection"
)

// SpawnRejected reports a denied Spawn request (spec §7). It is an
// expected outcome, not a fault — callers branch on Reason, they don't log
// it as an error.
type SpawnRejected struct {
	Reason RejectReason
}

func (e *SpawnRejected) Error() string {
	return fmt.Sprintf("train: spawn rejected: %s", e.Reason)
}

// SpawnRequest is the inbound Spawn command payload (spec §6).
type SpawnRequest struct {
	ID            reserve.TrainID
	Code          string
	Type          Type
	EntrySection  topology.SectionID
	NumWagons     int
	DesiredStopID topology.StopID // empty means transit only
}

// Spawn validates request against topo and table and, if admitted, returns
// a new Train in the Scheduled state with its head wagon placed on the
// entry section. Trailing wagons beyond the first enter the track one at a
// time as the head clears room ahead of them (see AdmitPendingWagon) —
// spawn sections have no track behind them to immediately hold a whole
// multi-wagon formation, so the train unspools onto the line as it departs.
func Spawn(request SpawnRequest, topo *topology.Topology, table *reserve.Table, existingIDs map[reserve.TrainID]bool) (*Train, error) {
	if request.NumWagons < 1 || request.NumWagons > MaxWagons {
		return nil, &SpawnRejected{Reason: InvalidWagonCount}
	}
	if existingIDs[request.ID] {
		return nil, &SpawnRejected{Reason: DuplicateTrainID}
	}
	if !topo.IsSpawn(request.EntrySection) {
		return nil, &SpawnRejected{Reason: NotASpawnSection}
	}
	if request.DesiredStopID != "" {
		if _, ok := topo.StopByID(request.DesiredStopID); !ok {
			return nil, &SpawnRejected{Reason: UnknownStop}
		}
	}
	if !table.FreeSection(request.EntrySection) {
		return nil, &SpawnRejected{Reason: EntryOccupied}
	}
	block := topo.BlockOf(request.EntrySection)
	if !table.FreeOrOwnBlock(request.ID, block) {
		return nil, &SpawnRejected{Reason: EntryBlockHeld}
	}

	t := &Train{
		ID:        request.ID,
		Code:      request.Code,
		Type:      request.Type,
		Status:    Scheduled,
		Direction: Forward,
		Occupant: kinematics.Occupant{
			Wagons: []kinematics.WagonPosition{{Section: request.EntrySection, PositionOffset: 0}},
		},
		DesiredStop: request.DesiredStopID,
	}
	t.pendingWagons = request.NumWagons - 1
	return t, nil
}

// Activate sets t Moving once a route to goal has been computed. It returns
// the router's *NoRouteFound if no path exists, leaving t's Status and plan
// unchanged; the scheduler then marks the train Stuck.
// reversePenalty is forwarded to router.Plan verbatim (spec §9: no
// module-level mutable state — the caller, not the router package, owns
// this value).
func Activate(t *Train, topo *topology.Topology, goal topology.SectionID, reversePenalty int) error {
	plan, err := router.Plan(topo, t.HeadSection(), t.LastKnownPrevBlock, goal, reversePenalty)
	if err != nil {
		return err
	}
	t.Plan = plan
	t.PlanCursor = 0
	t.Status = Moving
	return nil
}

// AdmitPendingWagon attaches one more wagon to the tail of t's formation
// once the entry section it was staged behind is free again, decrementing
// the count of wagons still waiting to join the track.
func (t *Train) AdmitPendingWagon(entrySection topology.SectionID, table *reserve.Table) bool {
	if t.pendingWagons <= 0 {
		return false
	}
	if !table.FreeSection(entrySection) {
		return false
	}
	t.Occupant.Wagons = append(t.Occupant.Wagons, kinematics.WagonPosition{Section: entrySection, PositionOffset: 0})
	t.pendingWagons--
	return true
}

// PendingWagons reports how many wagons have not yet joined the track.
func (t *Train) PendingWagons() int { return t.pendingWagons }

// ApproachMatches reports whether travelling from `from` into a stop's
// section `to` satisfies the stop's mandated approach side (spec §3, §4.5,
// §4.6): left-approach stops must be entered from the lower-indexed
// neighbor, right-approach stops from the higher-indexed neighbor.
func ApproachMatches(side topology.ApproachSide, from, to topology.SectionID) bool {
	switch side {
	case topology.ApproachLeft:
		return from < to
	case topology.ApproachRight:
		return from > to
	default:
		return false
	}
}

// TryBeginDwell transitions a Moving train to Dwelling if its head has just
// reached its desired stop from the mandated approach side (spec §4.6). A
// wrong-side arrival does NOT trigger dwell; the train stays Moving with
// DesiredStop still set, and the scheduler then sends it on to the nearest
// despawn section without re-approaching (Open Question 2 — see DESIGN.md).
func TryBeginDwell(t *Train, topo *topology.Topology, cameFrom topology.SectionID, dwellSeconds float64) bool {
	if t.Status != Moving || t.DesiredStop == "" {
		return false
	}
	stop, ok := topo.StopAt(t.HeadSection())
	if !ok || stop.ID != t.DesiredStop {
		return false
	}
	if !ApproachMatches(stop.Side, cameFrom, t.HeadSection()) {
		return false
	}
	t.Status = Dwelling
	t.DwellRemaining = dwellSeconds
	return true
}

// TickDwell counts down a Dwelling train's timer by dt simulated seconds.
// On expiry it clears DesiredStop and reports true; the caller is then
// responsible for choosing a despawn goal and calling Activate to resume
// Moving (spec §4.6).
func TickDwell(t *Train, dt float64) bool {
	if t.Status != Dwelling {
		return false
	}
	t.DwellRemaining -= dt
	if t.DwellRemaining <= 0 {
		t.DesiredStop = ""
		return true
	}
	return false
}

// ReleaseExitedWagons treats a despawn section as a sink: a designated
// despawn section is where wagons leave the modeled track entirely (spec
// §3 Despawn, §4.6), so whichever wagon currently leads the formation
// exits immediately once it reaches one, and what was the next wagon
// becomes the new head. Called once per tick, this removes at most one
// wagon per tick — "exit one by one as they cross the boundary" — with
// the remaining wagons continuing to advance normally until each in turn
// reaches the despawn section. It reports whether the train is now fully
// despawned.
func ReleaseExitedWagons(t *Train, topo *topology.Topology, table *reserve.Table) bool {
	if len(t.Occupant.Wagons) > 0 && topo.IsDespawn(t.Occupant.Wagons[0].Section) {
		table.Release(t.ID, t.Occupant.Wagons[0].Section)
		t.Occupant.Wagons = t.Occupant.Wagons[1:]
	}
	if len(t.Occupant.Wagons) == 0 {
		t.Status = Despawned
		return true
	}
	return false
}
