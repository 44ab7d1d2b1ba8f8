// Package ingest parses the bulk spawn batch formats described in spec §6
// — CSV rows — into engine.Spawn commands, one of the engine's two
// external boundaries (transport and wire formats are explicitly out of
// the core per spec §1).
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/kadzu/railsim/engine"
	"github.com/kadzu/railsim/reserve"
	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

// trainBatchHeader is the fixed column order spec §6 specifies for CSV
// train-batch ingestion.
var trainBatchHeader = []string{
	"train_id", "train_code", "train_type_id", "current_section_id", "num_wagons", "desired_stop_id",
}

// ParseTrainBatch reads a CSV train-batch (header required, matching
// trainBatchHeader) and returns one Spawn command per row, in file order.
// desired_stop_id may be empty, meaning transit only.
func ParseTrainBatch(r io.Reader) ([]engine.Spawn, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(trainBatchHeader)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("ingest: read header: %w", err)
	}
	if !headerMatches(header) {
		return nil, fmt.Errorf("ingest: unexpected header %v, want %v", header, trainBatchHeader)
	}

	var out []engine.Spawn
	for row := 1; ; row++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: %w", row, err)
		}
		spawn, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("ingest: row %d: %w", row, err)
		}
		out = append(out, spawn)
	}
	return out, nil
}

func headerMatches(got []string) bool {
	if len(got) != len(trainBatchHeader) {
		return false
	}
	for i, h := range trainBatchHeader {
		if got[i] != h {
			return false
		}
	}
	return true
}

func parseRow(rec []string) (engine.Spawn, error) {
	trainID, err := strconv.Atoi(rec[0])
	if err != nil {
		return engine.Spawn{}, fmt.Errorf("train_id: %w", err)
	}
	sectionID, err := strconv.Atoi(rec[3])
	if err != nil {
		return engine.Spawn{}, fmt.Errorf("current_section_id: %w", err)
	}
	numWagons, err := strconv.Atoi(rec[4])
	if err != nil {
		return engine.Spawn{}, fmt.Errorf("num_wagons: %w", err)
	}

	return engine.Spawn{
		ID:            reserve.TrainID(trainID),
		Code:          rec[1],
		TypeID:        train.TypeID(rec[2]),
		EntrySection:  topology.SectionID(sectionID),
		NumWagons:     numWagons,
		DesiredStopID: topology.StopID(rec[5]),
	}, nil
}
