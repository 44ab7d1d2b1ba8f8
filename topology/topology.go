// Package topology holds the immutable directed graph a station simulation
// runs on: sections, directed connections (with turn exclusions), the
// block groupings above sections, and the stop placements.
//
// A Topology is built once at load time with New and is safe to read
// concurrently from any number of goroutines. The only mutable piece is a
// connection's Active flag, which the scheduler toggles under exclusive
// access at a tick boundary (spec §4.1, §5).
package topology

import "fmt"

// SectionID identifies a single atomic track unit.
type SectionID int

// BlockID identifies a named reservation unit above sections.
type BlockID string

// StopID identifies a named dwell location.
type StopID string

// Geometry classifies a section's shape. The router consults it only in its
// equal-cost predecessor rule (router.prefersHorizontal); it does not rank
// horizontal against diagonal alternatives.
type Geometry int

const (
	Horizontal Geometry = iota
	Diagonal
)

// Section is the atomic occupancy unit of the network.
type Section struct {
	ID       SectionID
	Geometry Geometry
}

// Connection is a directed edge between two sections.
//
// ExcludePreviousBlock, when non-empty, forbids traversing this edge when the
// train's immediately previous block equals the named block — this encodes
// V-shaped turn restrictions where two edges meeting at a shared section
// would imply a physically impossible reversal.
type Connection struct {
	From                 SectionID
	To                   SectionID
	Active               bool
	ExcludePreviousBlock BlockID // empty means no exclusion
}

// HasExclusion reports whether this connection carries a turn exclusion.
func (c Connection) HasExclusion() bool {
	return c.ExcludePreviousBlock != ""
}

// ApproachSide is the mandatory direction from which a stop must be entered.
type ApproachSide int

const (
	ApproachLeft  ApproachSide = iota // from the lower-indexed neighbor
	ApproachRight                     // from the higher-indexed neighbor
)

// Stop is a named dwell location bound to a section.
type Stop struct {
	ID      StopID
	Section SectionID
	Side    ApproachSide
}

// Topology is the immutable (modulo Connection.Active) network graph.
type Topology struct {
	sections map[SectionID]Section
	conns    []Connection
	// out indexes conns by From section, preserving declaration order so
	// Neighbors returns a deterministic ordered set.
	out map[SectionID][]int

	blockOf    map[SectionID]BlockID
	sectionsOf map[BlockID][]SectionID

	stopAt map[SectionID]Stop
	stopByID map[StopID]Stop

	spawn   map[SectionID]bool
	despawn map[SectionID]bool
}

// BlockMembership associates a block with its member sections.
type BlockMembership struct {
	Block    BlockID
	Sections []SectionID
}

// Loader is the declarative description accepted by New. It mirrors the
// wire-format input described in spec §6: a flat list of sections,
// directed connections, block memberships, stop placements and the
// designated spawn/despawn sections.
type Loader struct {
	Sections    []Section
	Connections []Connection
	Blocks      []BlockMembership
	Stops       []Stop
	Spawn       []SectionID
	Despawn     []SectionID
}

// New validates and builds a Topology from a Loader description.
//
// Validation performed (spec §6): every referenced section exists, every
// connection's two endpoints exist, every block has at least one section,
// every spawn and despawn is a real section.
func New(l Loader) (*Topology, error) {
	t := &Topology{
		sections:   make(map[SectionID]Section, len(l.Sections)),
		out:        make(map[SectionID][]int),
		blockOf:    make(map[SectionID]BlockID),
		sectionsOf: make(map[BlockID][]SectionID),
		stopAt:     make(map[SectionID]Stop),
		stopByID:   make(map[StopID]Stop),
		spawn:      make(map[SectionID]bool),
		despawn:    make(map[SectionID]bool),
	}

	for _, s := range l.Sections {
		if _, exists := t.sections[s.ID]; exists {
			return nil, fmt.Errorf("topology: duplicate section %d", s.ID)
		}
		t.sections[s.ID] = s
	}

	for i, c := range l.Connections {
		if _, ok := t.sections[c.From]; !ok {
			return nil, fmt.Errorf("topology: connection %d: from-section %d does not exist", i, c.From)
		}
		if _, ok := t.sections[c.To]; !ok {
			return nil, fmt.Errorf("topology: connection %d: to-section %d does not exist", i, c.To)
		}
		t.conns = append(t.conns, c)
		t.out[c.From] = append(t.out[c.From], len(t.conns)-1)
	}

	for _, b := range l.Blocks {
		if len(b.Sections) == 0 {
			return nil, fmt.Errorf("topology: block %q has no sections", b.Block)
		}
		for _, sid := range b.Sections {
			if _, ok := t.sections[sid]; !ok {
				return nil, fmt.Errorf("topology: block %q: section %d does not exist", b.Block, sid)
			}
			if existing, ok := t.blockOf[sid]; ok && existing != b.Block {
				return nil, fmt.Errorf("topology: section %d claimed by both block %q and %q", sid, existing, b.Block)
			}
			t.blockOf[sid] = b.Block
		}
		t.sectionsOf[b.Block] = append([]SectionID(nil), b.Sections...)
	}

	for _, s := range l.Stops {
		if _, ok := t.sections[s.Section]; !ok {
			return nil, fmt.Errorf("topology: stop %q: section %d does not exist", s.ID, s.Section)
		}
		t.stopAt[s.Section] = s
		t.stopByID[s.ID] = s
	}

	for _, sid := range l.Spawn {
		if _, ok := t.sections[sid]; !ok {
			return nil, fmt.Errorf("topology: spawn section %d does not exist", sid)
		}
		t.spawn[sid] = true
	}
	for _, sid := range l.Despawn {
		if _, ok := t.sections[sid]; !ok {
			return nil, fmt.Errorf("topology: despawn section %d does not exist", sid)
		}
		t.despawn[sid] = true
	}

	return t, nil
}

// Neighbor is one admissible outgoing edge from Neighbors.
type Neighbor struct {
	Section SectionID
	Conn    Connection
}

// Neighbors returns the ordered set of sections reachable directly from
// section, filtered by Active=true and by ExcludePreviousBlock != previousBlock
// (spec §4.1). previousBlock may be empty if the train has no prior block
// (e.g. it just spawned).
func (t *Topology) Neighbors(section SectionID, previousBlock BlockID) []Neighbor {
	idxs := t.out[section]
	out := make([]Neighbor, 0, len(idxs))
	for _, i := range idxs {
		c := t.conns[i]
		if !c.Active {
			continue
		}
		if c.HasExclusion() && c.ExcludePreviousBlock == previousBlock {
			continue
		}
		out = append(out, Neighbor{Section: c.To, Conn: c})
	}
	return out
}

// SetConnectionActive toggles a connection's Active flag. Per spec §4.1 and
// §5, callers must only invoke this at a tick boundary under exclusive
// scheduler access; Topology itself does not synchronize this.
func (t *Topology) SetConnectionActive(from, to SectionID, active bool) bool {
	for i := range t.conns {
		if t.conns[i].From == from && t.conns[i].To == to {
			t.conns[i].Active = active
			return true
		}
	}
	return false
}

// ConnectionActive reports the current Active flag for (from, to), and
// whether such a connection exists at all.
func (t *Topology) ConnectionActive(from, to SectionID) (active, exists bool) {
	for _, c := range t.conns {
		if c.From == from && c.To == to {
			return c.Active, true
		}
	}
	return false, false
}

// Connections returns every declared connection, for diagnostics (spec §6
// outbound interface: "for each connection: active flag").
func (t *Topology) Connections() []Connection {
	return append([]Connection(nil), t.conns...)
}

// Section looks up a section by id.
func (t *Topology) Section(id SectionID) (Section, bool) {
	s, ok := t.sections[id]
	return s, ok
}

// BlockOf returns the block containing section, or "" if the section
// belongs to no block.
func (t *Topology) BlockOf(section SectionID) BlockID {
	return t.blockOf[section]
}

// SectionsOf returns the sections belonging to block, in declaration order.
func (t *Topology) SectionsOf(block BlockID) []SectionID {
	return t.sectionsOf[block]
}

// StopAt returns the stop bound to section, if any.
func (t *Topology) StopAt(section SectionID) (Stop, bool) {
	s, ok := t.stopAt[section]
	return s, ok
}

// StopByID looks up a stop by its declared id.
func (t *Topology) StopByID(id StopID) (Stop, bool) {
	s, ok := t.stopByID[id]
	return s, ok
}

// IsSpawn reports whether section is a designated entry point.
func (t *Topology) IsSpawn(section SectionID) bool {
	return t.spawn[section]
}

// IsDespawn reports whether section is a designated exit point.
func (t *Topology) IsDespawn(section SectionID) bool {
	return t.despawn[section]
}

// SpawnSections returns every designated entry section.
func (t *Topology) SpawnSections() []SectionID {
	out := make([]SectionID, 0, len(t.spawn))
	for sid := range t.spawn {
		out = append(out, sid)
	}
	return out
}

// DespawnSections returns every designated exit section.
func (t *Topology) DespawnSections() []SectionID {
	out := make([]SectionID, 0, len(t.despawn))
	for sid := range t.despawn {
		out = append(out, sid)
	}
	return out
}
