// Package train models a single train's identity, formation, and
// lifecycle state machine (spec §3 Train/Wagon, §4.6).
package train

import (
	"github.com/kadzu/railsim/kinematics"
	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/router"
	"github.com/kadzu/railsim/topology"
)

// Status is the train's lifecycle state (spec §4.5 state machine). It is a
// tagged enum, not a class hierarchy, per the arena-plus-index convention
// this repository follows throughout.
type Status int

const (
	Scheduled Status = iota
	Moving
	Dwelling
	Stuck
	Despawned
)

func (s Status) String() string {
	switch s {
	case Scheduled:
		return "Scheduled"
	case Moving:
		return "Moving"
	case Dwelling:
		return "Dwelling"
	case Stuck:
		return "Stuck"
	case Despawned:
		return "Despawned"
	default:
		return "Unknown"
	}
}

// TypeID names a configured train type (speed, priority, max wagons).
type TypeID string

// Type holds the attributes shared by every train of a given TypeID.
type Type struct {
	ID            TypeID
	PriorityIndex int
	CruisingSpeed float64 // distance units per simulated second
	MaxWagons     int
}

// Direction is the train's current travel sign along the edges it occupies.
type Direction int

const (
	Forward Direction = 1
	Reverse Direction = -1
)

// Flipped returns the opposite travel direction, for the scheduler to
// apply when a route reversal (spec §4.6) re-indexes a train's formation.
func (d Direction) Flipped() Direction {
	if d == Forward {
		return Reverse
	}
	return Forward
}

// MaxWagons is the hard formation-size ceiling from spec §4.6.
const MaxWagons = 15

// DefaultDwellSeconds is the default stop duration (spec §3 Lifecycle).
const DefaultDwellSeconds = 5.0

// DefaultBlockGraceTicks is the number of consecutive denied ticks after
// which a blocked train triggers a replan (spec §4.3, §4.5).
const DefaultBlockGraceTicks = 20

// Train is one train's full runtime state.
type Train struct {
	ID        reserve.TrainID
	Code      string
	Type      Type
	Status    Status
	Occupant  kinematics.Occupant
	Direction Direction

	DesiredStop topology.StopID    // empty means transit only
	Goal        topology.SectionID // current route target: a stop's section or a despawn section

	Plan       router.RoutePlan
	PlanCursor int

	DwellRemaining     float64
	BlockedTicks       int
	LastKnownPrevBlock topology.BlockID

	// pendingWagons counts wagons not yet admitted onto the track after
	// spawn (see Spawn, AdmitPendingWagon in lifecycle.go).
	pendingWagons int
}

// HeadSection returns the section the lead wagon currently occupies.
func (t *Train) HeadSection() topology.SectionID {
	return t.Occupant.HeadSection()
}

// NextPlannedSection returns the section immediately after the head in the
// cached route plan, and whether one exists (the plan is not exhausted).
func (t *Train) NextPlannedSection() (topology.SectionID, bool) {
	next := t.PlanCursor + 1
	if next >= len(t.Plan.Steps) {
		return 0, false
	}
	return t.Plan.Steps[next].Section, true
}

// PlannedBlocksAhead returns up to limit section ids beyond the current
// plan cursor, for the Reservation Table's bounded block exit-contract
// lookahead (spec §4.2).
func (t *Train) PlannedBlocksAhead(limit int) []topology.SectionID {
	start := t.PlanCursor + 1
	end := start + limit
	if end > len(t.Plan.Steps) {
		end = len(t.Plan.Steps)
	}
	if start >= end {
		return nil
	}
	out := make([]topology.SectionID, 0, end-start)
	for _, step := range t.Plan.Steps[start:end] {
		out = append(out, step.Section)
	}
	return out
}

// RegisterDenied increments the consecutive-denial counter used to trigger
// a replan after BlockGrace ticks (spec §4.3, §4.5). It is reset by
// RegisterAdmitted.
func (t *Train) RegisterDenied() {
	t.BlockedTicks++
}

// RegisterAdmitted resets the consecutive-denial counter: the train moved
// this tick.
func (t *Train) RegisterAdmitted() {
	t.BlockedTicks = 0
}

// NeedsReplan reports whether the train has been denied admission for
// longer than graceTicks and should have its route plan recomputed.
func (t *Train) NeedsReplan(graceTicks int) bool {
	return t.BlockedTicks > graceTicks
}
