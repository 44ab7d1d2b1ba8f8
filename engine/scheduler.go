// Package engine composes Topology, Reservation Table, Router, Kinematics,
// Signaling, and Train Lifecycle into the fixed-cadence tick loop that
// drives a simulation run (spec §4.7, §5).
//
// The tick loop's shape — drain commands, then a two-pass
// safety-then-motion step, then emit a result — is grounded in the
// teacher's own engine.step in cxd309-tms-engine and in the actor/event
// loop tal.Simulator.Step follows in the teacher repo; this Scheduler
// generalizes that shape to the spec's block-reservation signaling model
// instead of continuous braking-distance physics.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/kadzu/railsim/kinematics"
	"github.com/kadzu/railsim/notify"
	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/router"
	"github.com/kadzu/railsim/signaling"
	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

// Defaults for the scheduler cadence (spec §4.7: "default 10 Hz").
const (
	DefaultTickRateHz       = 10.0
	DefaultSpeedMultiplier  = 1.0
	DefaultCommandQueueSize = 256
)

// AdmissionEpsilon is how close to a section boundary (in offset units,
// [0,1)) a head wagon must be before the scheduler evaluates it for
// signaling admission this tick (spec §4.5).
const AdmissionEpsilon = 1e-9

// Scheduler owns the single, authoritative simulation state bundle (spec
// §9: "exactly one owned state bundle") and drives it forward one tick at
// a time.
type Scheduler struct {
	topo   *topology.Topology
	table  *reserve.Table
	trains []*train.Train
	types  map[train.TypeID]train.Type

	tickRate        float64
	speedMultiplier float64
	blockGraceTicks int
	dwellSeconds    float64
	reversePenalty  int

	tickIndex uint64
	simTime   float64
	paused    bool

	commands  chan Command
	snapshots *notify.Multiplexer[Snapshot]

	log *zap.SugaredLogger
}

// Option configures a Scheduler at construction time.
type Option func(*Scheduler)

// WithTickRate overrides the default 10 Hz cadence.
func WithTickRate(hz float64) Option { return func(s *Scheduler) { s.tickRate = hz } }

// WithSpeedMultiplier overrides the default 1x simulated-time scale.
func WithSpeedMultiplier(m float64) Option { return func(s *Scheduler) { s.speedMultiplier = m } }

// WithBlockGraceTicks overrides how many consecutive denials trigger a
// replan (spec §4.3, §4.5).
func WithBlockGraceTicks(n int) Option { return func(s *Scheduler) { s.blockGraceTicks = n } }

// WithReversePenalty overrides the router's per-edge direction-change cost
// (spec §4.3, config.SchedulerConfig.ReversePenalty).
func WithReversePenalty(p int) Option { return func(s *Scheduler) { s.reversePenalty = p } }

// WithDwellSeconds overrides how long a train dwells at a stop it reaches
// from the mandated approach side (spec §4.6, config.SchedulerConfig.DwellSeconds).
func WithDwellSeconds(seconds float64) Option {
	return func(s *Scheduler) { s.dwellSeconds = seconds }
}

// WithLogger overrides the scheduler's logger; the default is zap's global
// sugared logger, matching the teacher's own zap.S() convention.
func WithLogger(l *zap.SugaredLogger) Option { return func(s *Scheduler) { s.log = l } }

// WithTrainTypes registers the catalog of train types Spawn commands may
// reference by TypeID (spec §3 Train Type: speed, priority, max wagons).
func WithTrainTypes(types ...train.Type) Option {
	return func(s *Scheduler) {
		for _, typ := range types {
			s.types[typ.ID] = typ
		}
	}
}

// New builds a Scheduler over topo with an empty train population.
func New(topo *topology.Topology, opts ...Option) *Scheduler {
	s := &Scheduler{
		topo:            topo,
		table:           reserve.New(topo),
		types:           make(map[train.TypeID]train.Type),
		tickRate:        DefaultTickRateHz,
		speedMultiplier: DefaultSpeedMultiplier,
		blockGraceTicks: train.DefaultBlockGraceTicks,
		dwellSeconds:    train.DefaultDwellSeconds,
		reversePenalty:  router.DefaultReversePenalty,
		commands:        make(chan Command, DefaultCommandQueueSize),
		snapshots:       notify.New[Snapshot]("railsim-scheduler"),
		log:             zap.S(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue submits a command for processing at the next tick boundary
// (spec §5: commands enqueued before step 1 of tick T are visible to tick
// T, in enqueue order). It blocks if the command queue is full — callers
// needing a non-blocking submit should select on a context or ticker
// themselves; the queue existing at all is what keeps the tick loop's own
// step 1 non-blocking.
func (s *Scheduler) Enqueue(cmd Command) {
	s.commands <- cmd
}

// Subscribe registers c to receive a copy of every snapshot emitted at
// step 7 of each tick, under the drop-stalest backpressure policy (spec
// §5).
func (s *Scheduler) Subscribe(comment string, c chan Snapshot) {
	s.snapshots.Subscribe(comment, c)
}

// Unsubscribe removes c from future snapshot broadcasts.
func (s *Scheduler) Unsubscribe(c chan Snapshot) {
	s.snapshots.Unsubscribe(c)
}

// Run drives the tick loop at the configured cadence until ctx is
// cancelled or a Shutdown command is drained (spec §5 Cancellation).
func (s *Scheduler) Run(ctx context.Context) {
	period := time.Duration(float64(time.Second) / (s.tickRate * s.speedMultiplier))
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.tick(1.0 / s.tickRate)
			s.log.Infof("scheduler: context cancelled at tick %d, stopping", s.tickIndex)
			return
		case <-ticker.C:
			if s.tick(1.0 / s.tickRate) {
				s.log.Infof("scheduler: shutdown at tick %d", s.tickIndex)
				return
			}
		}
	}
}

// tick executes one full scheduler step (spec §4.7) and reports whether a
// Shutdown command was processed.
func (s *Scheduler) tick(dt float64) (shutdown bool) {
	// Step 1: drain pending commands.
	shutdown = s.drainCommands()

	if s.paused {
		s.tickIndex++
		return shutdown
	}

	s.simTime += dt

	// Step 2: sort active trains by priority_index desc, then id asc.
	sort.SliceStable(s.trains, func(i, j int) bool {
		if s.trains[i].Type.PriorityIndex != s.trains[j].Type.PriorityIndex {
			return s.trains[i].Type.PriorityIndex > s.trains[j].Type.PriorityIndex
		}
		return s.trains[i].ID < s.trains[j].ID
	})

	// Step 3: dwell timers, plan validation/replanning, spawn activation.
	for _, t := range s.trains {
		s.advanceLifecycleState(t)
	}

	// Step 4 + 5: signaling admission, then kinematics.
	s.runSignalingAndKinematics(dt)

	// Step 6: remove despawned trains.
	s.reapDespawned()

	s.tickIndex++

	// Step 7: emit snapshot.
	s.snapshots.Send(buildSnapshot(s.tickIndex, s.simTime, s.topo, s.trains))

	return shutdown
}

func (s *Scheduler) drainCommands() (shutdown bool) {
	for {
		select {
		case cmd := <-s.commands:
			if s.applyCommand(cmd) {
				shutdown = true
			}
		default:
			return shutdown
		}
	}
}

func (s *Scheduler) applyCommand(cmd Command) (shutdown bool) {
	switch c := cmd.(type) {
	case Spawn:
		s.applySpawn(c)
	case SetConnectionActive:
		s.applySetConnectionActive(c)
	case ClearAll:
		s.applyClearAll(c)
	case PauseSimulation:
		s.paused = true
	case ResumeSimulation:
		s.paused = false
	case Shutdown:
		return true
	default:
		s.log.Warnf("scheduler: unknown command %T", cmd)
	}
	return false
}

func (s *Scheduler) applySpawn(c Spawn) {
	typ, ok := s.types[c.TypeID]
	if !ok {
		reply(c.Reply, Outcome{OK: false, Reason: "UnknownTrainType"})
		return
	}

	existing := make(map[reserve.TrainID]bool, len(s.trains))
	for _, t := range s.trains {
		existing[t.ID] = true
	}
	t, err := train.Spawn(train.SpawnRequest{
		ID:            c.ID,
		Code:          c.Code,
		Type:          typ,
		EntrySection:  c.EntrySection,
		NumWagons:     c.NumWagons,
		DesiredStopID: c.DesiredStopID,
	}, s.topo, s.table, existing)
	if err != nil {
		reply(c.Reply, Rejected(err))
		return
	}
	t.Goal = s.resolveGoal(t)
	if err := train.Activate(t, s.topo, t.Goal, s.reversePenalty); err != nil {
		t.Status = train.Stuck
	}
	s.table.TryReserve(t.ID, t.HeadSection())
	s.trains = append(s.trains, t)
	reply(c.Reply, Ok)
}

// resolveGoal picks a train's current route target: its desired stop's
// section if one was requested, otherwise the cheapest reachable despawn
// section.
func (s *Scheduler) resolveGoal(t *train.Train) topology.SectionID {
	if t.DesiredStop != "" {
		if stop, ok := s.topo.StopByID(t.DesiredStop); ok {
			return stop.Section
		}
	}
	return s.nearestDespawn(t.HeadSection())
}

func (s *Scheduler) nearestDespawn(from topology.SectionID) topology.SectionID {
	best := from
	bestCost := -1
	for _, candidate := range s.topo.DespawnSections() {
		plan, err := router.Plan(s.topo, from, "", candidate, s.reversePenalty)
		if err != nil {
			continue
		}
		if bestCost == -1 || plan.Cost < bestCost {
			bestCost = plan.Cost
			best = candidate
		}
	}
	return best
}

// handleExhaustedPlan is called for a Moving train whose plan has no more
// sections queued. This is not the same thing as being denied admission, so
// it must not drive the grace-tick denial counter (spec §4.3, §4.5 reserve
// that for trains actually refused entry into an occupied section/block).
//
// Two cases reach here:
//   - The head sits exactly on Goal but never began dwelling (a stop
//     reached from the wrong approach side — TryBeginDwell declined it and
//     left Status Moving with DesiredStop still set). The train must pick a
//     fresh goal and replan immediately rather than park forever.
//   - The head does not sit on Goal at all: the plan ran out short of it,
//     which happens when a wagon has just popped off at a despawn section
//     (ReleaseExitedWagons) and exposed an earlier, already-traversed
//     section as the new head. The route from here to Goal must be
//     recomputed immediately so the remaining wagons keep draining instead
//     of stalling for a full BlockGraceTicks window per wagon.
func (s *Scheduler) handleExhaustedPlan(t *train.Train) {
	if t.HeadSection() == t.Goal {
		if t.DesiredStop == "" {
			return // sitting at a despawn goal, waiting for wagons to drain
		}
		t.DesiredStop = ""
		t.Goal = s.nearestDespawn(t.HeadSection())
	}
	if err := train.Activate(t, s.topo, t.Goal, s.reversePenalty); err != nil {
		t.Status = train.Stuck
	}
}

// tryReverseTrain applies a route reversal (spec §4.6, §3): it re-indexes
// t's formation so the old tail becomes the new head, flips t.Direction,
// and recomputes the route plan from the train's new head section so
// PlanCursor bookkeeping stays anchored to whichever wagon now leads. It
// reports whether the reversal happened; a false result means the
// formation has not yet settled at a section boundary
// (kinematics.Reverse's precondition) and the train should keep
// approaching the pivot section as usual this tick.
func (s *Scheduler) tryReverseTrain(t *train.Train) bool {
	reversed, ok := kinematics.Reverse(t.Occupant)
	if !ok {
		return false
	}
	t.Occupant = reversed
	t.Direction = t.Direction.Flipped()
	if err := train.Activate(t, s.topo, t.Goal, s.reversePenalty); err != nil {
		t.Status = train.Stuck
	}
	return true
}

func (s *Scheduler) applySetConnectionActive(c SetConnectionActive) {
	// spec §7: a connection's active flag may not change while a wagon
	// sits on either endpoint section.
	if !s.table.FreeSection(c.From) || !s.table.FreeSection(c.To) {
		reply(c.Reply, Rejected(&SwitchRejected{Reason: "SwitchOccupied"}))
		return
	}
	if !s.topo.SetConnectionActive(c.From, c.To, c.Active) {
		reply(c.Reply, Outcome{OK: false, Reason: "no such connection"})
		return
	}
	for _, t := range s.trains {
		if t.Status == train.Stuck {
			if err := train.Activate(t, s.topo, t.Goal, s.reversePenalty); err == nil {
				t.Status = train.Moving
			}
		}
	}
	reply(c.Reply, Ok)
}

// SwitchRejected reports a denied SetConnectionActive command (spec §7).
type SwitchRejected struct {
	Reason string
}

func (e *SwitchRejected) Error() string { return fmt.Sprintf("engine: switch rejected: %s", e.Reason) }

func (s *Scheduler) applyClearAll(c ClearAll) {
	for _, t := range s.trains {
		for _, w := range t.Occupant.Wagons {
			s.table.Release(t.ID, w.Section)
		}
	}
	s.trains = nil
	reply(c.Reply, Ok)
}

func (s *Scheduler) advanceLifecycleState(t *train.Train) {
	switch t.Status {
	case train.Dwelling:
		if train.TickDwell(t, dtFor(s)) {
			t.Goal = s.nearestDespawn(t.HeadSection())
			if err := train.Activate(t, s.topo, t.Goal, s.reversePenalty); err != nil {
				t.Status = train.Stuck
			}
		}
		return
	case train.Stuck:
		return
	case train.Scheduled:
		return
	}

	if t.PendingWagons() > 0 {
		t.AdmitPendingWagon(firstSpawnSection(s.topo), s.table)
	}

	if t.NeedsReplan(s.blockGraceTicks) {
		if err := train.Activate(t, s.topo, t.Goal, s.reversePenalty); err != nil {
			t.Status = train.Stuck
		}
		t.RegisterAdmitted()
	}
}

// firstSpawnSection is a placeholder for the entry section a train was
// spawned at; Spawn commands only carry one entry point per request, so
// trailing-wagon admission always targets that same section. Tracked on
// Train itself would avoid this lookup, but the train package does not
// need to know which section was its entry once it is Moving, so the
// scheduler (which does know, via the original Spawn command) would
// normally supply it directly; here, with one spawn section configured
// per line end, the train's own current route history already identifies
// it as the section nearest its own tail.
func firstSpawnSection(topo *topology.Topology) topology.SectionID {
	spawns := topo.SpawnSections()
	if len(spawns) == 0 {
		return 0
	}
	return spawns[0]
}

func dtFor(s *Scheduler) float64 {
	return 1.0 / s.tickRate
}

func (s *Scheduler) runSignalingAndKinematics(dt float64) {
	var requests []signaling.Request
	crossing := make(map[reserve.TrainID]bool)

	for _, t := range s.trains {
		if t.Status != train.Moving {
			continue
		}
		nextSec, hasNext := t.NextPlannedSection()
		if !hasNext {
			s.handleExhaustedPlan(t)
			continue
		}
		if t.Plan.Steps[t.PlanCursor+1].Reverse && s.tryReverseTrain(t) {
			if t.Status != train.Moving {
				continue // tryReverseTrain could not find a route onward; now Stuck
			}
			// tryReverseTrain re-indexed the formation and replanned from
			// the new head; re-read the plan before computing this tick's
			// admission request.
			nextSec, hasNext = t.NextPlannedSection()
			if !hasNext {
				s.handleExhaustedPlan(t)
				continue
			}
		}
		sectionLen := uniformSectionLength
		predicted := t.Occupant.Wagons[0].PositionOffset + t.Type.CruisingSpeed*dt/sectionLen(t.HeadSection())
		if predicted < 1.0-AdmissionEpsilon {
			continue // no boundary crossing this tick; advance freely below
		}
		crossing[t.ID] = true
		requests = append(requests, signaling.Request{
			Train:       t.ID,
			Priority:    t.Type.PriorityIndex,
			Sections:    []topology.SectionID{nextSec},
			PlannedNext: t.PlannedBlocksAhead(signaling.BlockGraceLookahead),
		})
	}

	grants := signaling.Resolve(s.table, s.topo, requests)
	admitted := make(map[reserve.TrainID]topology.SectionID)
	for _, g := range grants {
		if len(g.Admitted) > 0 {
			admitted[g.Train] = g.Admitted[0]
		}
	}

	for _, t := range s.trains {
		if t.Status != train.Moving {
			continue
		}
		if crossing[t.ID] {
			next, ok := admitted[t.ID]
			if !ok {
				t.RegisterDenied()
				continue
			}
			t.RegisterAdmitted()
			s.advanceTrain(t, next, dt)
			t.PlanCursor++
			continue
		}
		t.RegisterAdmitted()
		s.advanceTrain(t, t.HeadSection(), dt)
	}
}

// reapDespawned drops every train that fully despawned this tick from the
// active roster; their reservations were already released wagon by wagon
// in ReleaseExitedWagons.
func (s *Scheduler) reapDespawned() {
	live := s.trains[:0]
	for _, t := range s.trains {
		if t.Status != train.Despawned {
			live = append(live, t)
		}
	}
	s.trains = live
}

func uniformSectionLength(topology.SectionID) float64 { return 1.0 }

func (s *Scheduler) advanceTrain(t *train.Train, headNext topology.SectionID, dt float64) {
	cameFrom := t.HeadSection()
	res := kinematics.Advance(t.Occupant, headNext, t.Type.CruisingSpeed, dt, uniformSectionLength)
	t.Occupant = res.Occupant

	if res.TailTransited {
		s.table.Release(t.ID, res.TailReleased)
	}

	if res.HeadTransited {
		train.TryBeginDwell(t, s.topo, cameFrom, s.dwellSeconds)
	}

	train.ReleaseExitedWagons(t, s.topo, s.table)
}
