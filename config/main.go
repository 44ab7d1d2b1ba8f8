// Package config holds the declarative, JSON-shaped description of a
// simulation run: the topology loader input, the train type catalog, and
// the scheduler's tunable parameters (spec §6 Topology loader, §10).
//
// This mirrors the teacher's own config.Config: a flat JSON-tagged struct
// assembling the pieces other packages need to construct their runtime
// state, rather than each package parsing its own slice of a config file.
package config

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

// Config is the full declarative input for one simulation run.
type Config struct {
	Revision uuid.UUID `json:"revision"`

	Topology  TopologyConfig  `json:"topology"`
	Trains    []TrainType     `json:"train_types"`
	Scheduler SchedulerConfig `json:"scheduler"`
}

// TopologyConfig is the JSON-shaped topology loader input (spec §6
// Topology loader).
type TopologyConfig struct {
	Sections    []Section    `json:"sections"`
	Connections []Connection `json:"connections"`
	Blocks      []Block      `json:"blocks"`
	Stops       []Stop       `json:"stops"`
	Spawn       []int        `json:"spawn"`
	Despawn     []int        `json:"despawn"`
}

// Section is one topology section entry.
type Section struct {
	ID       int    `json:"id"`
	Geometry string `json:"geometry"` // "horizontal" | "diagonal"
}

// Connection is one directed topology edge.
type Connection struct {
	From                 int    `json:"from"`
	To                   int    `json:"to"`
	Active               bool   `json:"active"`
	ExcludePreviousBlock string `json:"exclude_previous_block,omitempty"`
}

// Block is one block-to-sections membership entry.
type Block struct {
	Block    string `json:"block"`
	Sections []int  `json:"sections"`
}

// Stop is one stop placement entry.
type Stop struct {
	ID      string `json:"id"`
	Section int    `json:"section"`
	Side    string `json:"side"` // "left" | "right"
}

// TrainType is one entry of the train type catalog (spec §3 Train Type,
// SPEC_FULL §12 supplements priority_index/cruising_speed).
//
// CruisingSpeedPerMinute follows the original prototype's units
// (sections per simulated minute); the engine's train.Type wants sections
// per simulated second, so ToTrainType divides by 60 (SPEC_FULL §12).
type TrainType struct {
	ID                     string  `json:"id"`
	PriorityIndex          int     `json:"priority_index"`
	CruisingSpeedPerMinute float64 `json:"cruising_speed_per_minute"`
	MaxWagons              int     `json:"max_wagons"`
}

// ToTrainType converts the JSON-shaped entry into the engine's runtime type.
func (tt TrainType) ToTrainType() train.Type {
	maxWagons := tt.MaxWagons
	if maxWagons <= 0 || maxWagons > train.MaxWagons {
		maxWagons = train.MaxWagons
	}
	return train.Type{
		ID:            train.TypeID(tt.ID),
		PriorityIndex: tt.PriorityIndex,
		CruisingSpeed: tt.CruisingSpeedPerMinute / 60.0,
		MaxWagons:     maxWagons,
	}
}

// SchedulerConfig holds the tick loop's tunable parameters (spec §4.7,
// §10). Zero values mean "use the package default".
type SchedulerConfig struct {
	TickRateHz      float64 `json:"tick_rate_hz"`
	SpeedMultiplier float64 `json:"speed_multiplier"`
	ReversePenalty  int     `json:"reverse_penalty"`
	BlockGraceTicks int     `json:"block_grace_ticks"`
	DwellSeconds    float64 `json:"dwell_seconds"`
}

// Parse decodes a Config from JSON bytes.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}
	return c, nil
}

// ToLoader converts the JSON-shaped topology section into topology.Loader.
func (tc TopologyConfig) ToLoader() (topology.Loader, error) {
	l := topology.Loader{}

	for _, s := range tc.Sections {
		geom := topology.Horizontal
		switch s.Geometry {
		case "", "horizontal":
			geom = topology.Horizontal
		case "diagonal":
			geom = topology.Diagonal
		default:
			return topology.Loader{}, fmt.Errorf("config: section %d: unknown geometry %q", s.ID, s.Geometry)
		}
		l.Sections = append(l.Sections, topology.Section{ID: topology.SectionID(s.ID), Geometry: geom})
	}

	for _, c := range tc.Connections {
		l.Connections = append(l.Connections, topology.Connection{
			From:                 topology.SectionID(c.From),
			To:                   topology.SectionID(c.To),
			Active:               c.Active,
			ExcludePreviousBlock: topology.BlockID(c.ExcludePreviousBlock),
		})
	}

	for _, b := range tc.Blocks {
		sections := make([]topology.SectionID, len(b.Sections))
		for i, sid := range b.Sections {
			sections[i] = topology.SectionID(sid)
		}
		l.Blocks = append(l.Blocks, topology.BlockMembership{Block: topology.BlockID(b.Block), Sections: sections})
	}

	for _, s := range tc.Stops {
		side := topology.ApproachLeft
		switch s.Side {
		case "", "left":
			side = topology.ApproachLeft
		case "right":
			side = topology.ApproachRight
		default:
			return topology.Loader{}, fmt.Errorf("config: stop %q: unknown side %q", s.ID, s.Side)
		}
		l.Stops = append(l.Stops, topology.Stop{ID: topology.StopID(s.ID), Section: topology.SectionID(s.Section), Side: side})
	}

	for _, sid := range tc.Spawn {
		l.Spawn = append(l.Spawn, topology.SectionID(sid))
	}
	for _, sid := range tc.Despawn {
		l.Despawn = append(l.Despawn, topology.SectionID(sid))
	}

	return l, nil
}
