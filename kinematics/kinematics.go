// Package kinematics advances a train's wagons by a fixed speed each tick.
//
// One wagon occupies exactly one section at a time; position_offset is a
// continuous [0, 1) hint of the wagon's progress across that section, not
// a sub-section physical length (an explicitly resolved ambiguity — see
// DESIGN.md). Speed is piecewise constant: a train moves at its train
// type's configured speed or it is stopped, with no acceleration ramp
// (explicit Non-goal). This is deliberately simpler than the
// acceleration/braking MotionModel interface in cxd309-tms-engine's
// kinematics package, which exists to serve a continuous-physics model
// this one declines to be. Reverse, separately, re-indexes a formation
// in place when the route's direction flips.
package kinematics

import "github.com/kadzu/railsim/topology"

// WagonPosition is one wagon's location within its train, index 0 = head.
type WagonPosition struct {
	Section        topology.SectionID
	PositionOffset float64 // [0, 1)
}

// Occupant is a train's full head-first wagon formation.
type Occupant struct {
	Wagons []WagonPosition // index 0 = head/locomotive, last = tail
}

// HeadSection returns the section the lead wagon currently occupies.
func (o Occupant) HeadSection() topology.SectionID {
	return o.Wagons[0].Section
}

// TailSection returns the section the last wagon currently occupies.
func (o Occupant) TailSection() topology.SectionID {
	return o.Wagons[len(o.Wagons)-1].Section
}

// SectionLengthFunc supplies a section's length in the same distance units
// speed is expressed in — an external input (spec §1 scopes the
// topology's physical geometry out of this engine), so Advance takes it as
// a dependency instead of assuming a fixed value.
type SectionLengthFunc func(topology.SectionID) float64

// Result reports the section-membership side effects of one Advance call,
// for the caller to apply to the Reservation Table.
type Result struct {
	Occupant Occupant

	// HeadEntered is the section the head wagon transitioned into this
	// tick, or false if the head stayed within its current section.
	HeadEntered   topology.SectionID
	HeadTransited bool

	// TailReleased is the section the former tail wagon vacated entirely
	// this tick (no wagon of the train occupies it any longer), or false
	// if no wagon transitioned out of it.
	TailReleased  topology.SectionID
	TailTransited bool
}

// Advance moves every wagon of occ forward by speed*dt, tail first (spec
// §4.4): position_offset for each wagon advances independently, and any
// wagon whose offset reaches or exceeds 1.0 transitions into the section
// the wagon ahead of it occupied at the START of this tick — or, for the
// head wagon, into headNext, which the caller (signaling) must already
// have cleared for admission before calling Advance.
//
// Advance assumes speed*dt/section_length <= 1 for every occupied section:
// a wagon crosses at most one section boundary per tick, matching the
// scheduler's tick-boundary admission contract (spec §4.5, §4.7).
func Advance(occ Occupant, headNext topology.SectionID, speed, dt float64, sectionLen SectionLengthFunc) Result {
	n := len(occ.Wagons)
	prevSections := make([]topology.SectionID, n)
	for i, w := range occ.Wagons {
		prevSections[i] = w.Section
	}

	newWagons := make([]WagonPosition, n)
	copy(newWagons, occ.Wagons)

	var res Result
	for i := n - 1; i >= 0; i-- {
		w := newWagons[i]
		w.PositionOffset += speed * dt / sectionLen(w.Section)
		if w.PositionOffset >= 1.0 {
			w.PositionOffset -= 1.0
			if i == 0 {
				w.Section = headNext
				res.HeadEntered = headNext
				res.HeadTransited = true
			} else {
				w.Section = prevSections[i-1]
			}
			if i == n-1 {
				res.TailReleased = prevSections[n-1]
				res.TailTransited = true
			}
		}
		newWagons[i] = w
	}

	res.Occupant = Occupant{Wagons: newWagons}
	return res
}

// Reverse re-indexes a train's wagon formation so that what was the tail
// becomes the new head (spec §4.6, §3): a reversal does not move any
// wagon, it only flips which end of the consist is leading. It succeeds
// only when every wagon sits exactly at a section boundary
// (PositionOffset == 0, spec §4.6's reversal precondition) and reports
// false, leaving occ unchanged, otherwise — the caller (the scheduler,
// seeing a plan step flagged router.Step.Reverse) must wait for that
// alignment before it may apply the reversal and proceed onto the
// reverse-oriented next section.
func Reverse(occ Occupant) (Occupant, bool) {
	for _, w := range occ.Wagons {
		if w.PositionOffset != 0 {
			return occ, false
		}
	}
	n := len(occ.Wagons)
	flipped := make([]WagonPosition, n)
	for i, w := range occ.Wagons {
		flipped[n-1-i] = w
	}
	return Occupant{Wagons: flipped}, true
}
