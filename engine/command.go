package engine

import (
	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

// Command is the inbound control interface (spec §6): a tagged union of
// the operations external callers may enqueue. Mirrors the teacher's
// Event interface in tal/sim.go — a small marker method plus one concrete
// struct per tag, matched with a type switch at the consuming end,
// instead of an inheritance hierarchy (spec §9).
type Command interface {
	isCommand()
}

// Spawn requests a new train enter the simulation.
type Spawn struct {
	ID            reserve.TrainID
	Code          string
	TypeID        train.TypeID
	EntrySection  topology.SectionID
	NumWagons     int
	DesiredStopID topology.StopID
	Reply         chan Outcome
}

// SetConnectionActive toggles a connection's active flag, taking effect at
// the next tick boundary.
type SetConnectionActive struct {
	From, To topology.SectionID
	Active   bool
	Reply    chan Outcome
}

// ClearAll removes every train from the simulation.
type ClearAll struct {
	Reply chan Outcome
}

// PauseSimulation suspends tick steps 2-7; step 1 still drains commands.
type PauseSimulation struct{}

// ResumeSimulation resumes a paused scheduler.
type ResumeSimulation struct{}

// Shutdown asks the scheduler to complete the current tick, emit a final
// snapshot, and stop.
type Shutdown struct{}

func (Spawn) isCommand()               {}
func (SetConnectionActive) isCommand() {}
func (ClearAll) isCommand()            {}
func (PauseSimulation) isCommand()     {}
func (ResumeSimulation) isCommand()    {}
func (Shutdown) isCommand()            {}

// Outcome is the per-command result the scheduler reports back over a
// command's optional Reply channel (spec §6: "the engine returns outcome
// tags per command"). Commands with no Reply channel are fire-and-forget.
type Outcome struct {
	OK     bool
	Reason string // populated when OK is false
}

// Ok is the canonical successful Outcome.
var Ok = Outcome{OK: true}

// Rejected builds a failure Outcome from any error with a Reason string
// (spec §7: SpawnRejected, SwitchRejected, NoRouteFound all stringify via
// Error()).
func Rejected(err error) Outcome {
	return Outcome{OK: false, Reason: err.Error()}
}

// reply sends an Outcome on cmd's reply channel if it has one, never
// blocking the scheduler on a reply nobody is waiting for.
func reply(ch chan Outcome, o Outcome) {
	if ch == nil {
		return
	}
	select {
	case ch <- o:
	default:
	}
}
