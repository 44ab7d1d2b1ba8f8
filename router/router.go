// Package router computes train routes through a topology.Topology.
//
// The search runs over composite nodes of (section, previous block) rather
// than bare sections (spec §4.3): this makes ExcludePreviousBlock a first
// class graph constraint the search respects automatically, instead of a
// filter applied after the fact to a path that may have already committed
// to an illegal turn. The search itself is textbook Dijkstra with a
// container/heap priority queue — this repository's own topology toggles
// connections live under scheduler control, so the teacher's routing
// packages (which operate over a fixed wire-format layout) and the
// Floyd-Warshall all-pairs precomputation seen elsewhere in the pack don't
// fit: recomputing all-pairs distances on every SetConnectionActive command
// would be wasted work when only a handful of trains replan per tick.
package router

import (
	"container/heap"
	"fmt"

	"github.com/kadzu/railsim/topology"
)

// DefaultReversePenalty is the additional per-edge cost charged when an
// edge runs against the direction of the edge before it (see reverses;
// spec §4.3), absent an
// override from config.SchedulerConfig.ReversePenalty. Plan takes the
// penalty as a parameter rather than reading package state (spec §9: "no
// module-level mutable state") so concurrent callers configured with
// different penalties never interfere with one another.
const DefaultReversePenalty = 50

// Step is one edge of a computed route.
type Step struct {
	Section topology.SectionID
	Block   topology.BlockID

	// Reverse reports whether arriving at Section required the train to
	// reverse its direction of travel relative to the edge before it (spec
	// §4.3, §4.6). Steps[0] is never Reverse: a reversal is a property of
	// an edge, and the first step has no preceding edge in this plan.
	Reverse bool
}

// RoutePlan is a computed path from a train's current section to its goal.
type RoutePlan struct {
	Steps []Step // Steps[0] is the current section; the goal is Steps[len-1]
	Cost  int
}

// NoRouteFound is returned by Plan when the goal is unreachable under the
// topology's current active-connection configuration. It is a normal,
// expected outcome (spec §4.3) — not an engine fault — so callers should
// branch on it, not log it as an error.
type NoRouteFound struct {
	From topology.SectionID
	To   topology.SectionID
}

func (e *NoRouteFound) Error() string {
	return fmt.Sprintf("router: no route from section %d to section %d", e.From, e.To)
}

type node struct {
	section topology.SectionID
	prevBlk topology.BlockID
}

// Plan finds the minimum-cost route from (from, arriving with previousBlock
// already behind it) to goal. previousBlock may be empty for a freshly
// spawned train with no block history; when it is set, the connection from
// a section of previousBlock into from counts as the edge that precedes
// the route's first edge.
//
// Edge cost is 1 per section traversed, plus reversePenalty whenever the
// edge's implied direction reverses relative to the edge that preceded it
// (spec §4.3) — callers typically pass DefaultReversePenalty or a
// config.SchedulerConfig.ReversePenalty override. Equal-cost alternatives
// are not ranked by section geometry (see prefersHorizontal).
func Plan(topo *topology.Topology, from topology.SectionID, previousBlock topology.BlockID, goal topology.SectionID, reversePenalty int) (RoutePlan, error) {
	start := node{section: from, prevBlk: previousBlock}

	dist := map[node]int{start: 0}
	prev := map[node]node{}
	prevSection := map[node]topology.SectionID{} // section the edge into this node came from
	reversal := map[node]bool{}                  // whether the edge into this node reversed travel direction
	visited := map[node]bool{}

	if previousBlock != "" {
		for _, sid := range topo.SectionsOf(previousBlock) {
			if _, exists := topo.ConnectionActive(sid, from); exists {
				prevSection[start] = sid
				break
			}
		}
	}

	pq := &priorityQueue{{n: start, priority: 0}}
	heap.Init(pq)

	var goalNode node
	found := false

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.n] {
			continue
		}
		visited[cur.n] = true

		if cur.n.section == goal {
			goalNode = cur.n
			found = true
			break
		}

		fromSection, hasFromSection := prevSection[cur.n]

		for _, nb := range topo.Neighbors(cur.n.section, cur.n.prevBlk) {
			nextBlock := topo.BlockOf(cur.n.section)
			nn := node{section: nb.Section, prevBlk: nextBlock}
			if visited[nn] {
				continue
			}

			cost := 1
			isReversal := hasFromSection && reverses(fromSection, cur.n.section, nb.Section)
			if isReversal {
				cost += reversePenalty
			}

			nd := dist[cur.n] + cost
			if existing, ok := dist[nn]; !ok || nd < existing || (nd == existing && prefersHorizontal(topo, cur.n.section, nb.Section)) {
				dist[nn] = nd
				prev[nn] = cur.n
				prevSection[nn] = cur.n.section
				reversal[nn] = isReversal
				heap.Push(pq, pqItem{n: nn, priority: nd})
			}
		}
	}

	if !found {
		return RoutePlan{}, &NoRouteFound{From: from, To: goal}
	}

	var steps []Step
	for n := goalNode; ; {
		steps = append([]Step{{Section: n.section, Block: n.prevBlk, Reverse: reversal[n]}}, steps...)
		p, ok := prev[n]
		if !ok {
			break
		}
		n = p
	}
	return RoutePlan{Steps: steps, Cost: dist[goalNode]}, nil
}

// reverses reports whether travelling a->b->c implies a direction reversal,
// approximated here as the section index decreasing then increasing (or
// vice versa) across the two hops — the same left/right corridor convention
// topology.ApproachSide uses.
func reverses(a, b, c topology.SectionID) bool {
	first := b - a
	second := c - b
	if first == 0 || second == 0 {
		return false
	}
	return (first > 0) != (second > 0)
}

// prefersHorizontal reports whether section to is horizontal. Plan uses it
// when a second, equal-cost edge reaches an already-discovered node: the
// later edge replaces the recorded predecessor if that node's section is
// horizontal. Both edges end at the same section, so this does not choose
// between a horizontal and a diagonal alternative; among equal-cost routes
// through different sections, the search keeps whichever it settles first.
func prefersHorizontal(topo *topology.Topology, from, to topology.SectionID) bool {
	s, ok := topo.Section(to)
	if !ok {
		return false
	}
	return s.Geometry == topology.Horizontal
}

type pqItem struct {
	n        node
	priority int
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].priority < pq[j].priority }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}
