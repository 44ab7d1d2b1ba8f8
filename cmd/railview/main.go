// Command railview is a terminal dashboard rendering a running
// Scheduler's live Snapshot stream as a table of trains (id, code, status,
// head section, desired stop) for interactive debugging; block occupancy
// is not shown. It follows the way the teacher's ui/tal packages
// render live actor state with termui widgets. This is a development
// aid, not part of the core engine (spec §1).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"
	"go.uber.org/zap"

	"github.com/kadzu/railsim/config"
	"github.com/kadzu/railsim/engine"
	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

func main() {
	configPath := flag.String("config", "config.json", "path to a railsim config.json")
	flag.Parse()

	dev, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	zap.ReplaceGlobals(dev)

	data, err := os.ReadFile(*configPath)
	if err != nil {
		zap.S().Fatalf("read config: %s", err)
	}
	runConfig, err := config.Parse(data)
	if err != nil {
		zap.S().Fatalf("parse config: %s", err)
	}
	loader, err := runConfig.Topology.ToLoader()
	if err != nil {
		zap.S().Fatalf("build topology loader: %s", err)
	}
	topo, err := topology.New(loader)
	if err != nil {
		zap.S().Fatalf("build topology: %s", err)
	}

	types := make([]train.Type, 0, len(runConfig.Trains))
	for _, tt := range runConfig.Trains {
		types = append(types, tt.ToTrainType())
	}
	s := engine.New(topo, engine.WithTrainTypes(types...))

	if err := termui.Init(); err != nil {
		zap.S().Fatalf("termui init: %s", err)
	}
	defer termui.Close()

	trainTable := widgets.NewTable()
	trainTable.Title = "Trains"
	trainTable.SetRect(0, 0, 80, 20)
	trainTable.Rows = [][]string{{"id", "code", "status", "head", "stop"}}
	termui.Render(trainTable)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go s.Run(ctx)

	snapshots := make(chan engine.Snapshot, 1)
	s.Subscribe("railview", snapshots)
	defer s.Unsubscribe(snapshots)

	uiEvents := termui.PollEvents()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-uiEvents:
			if e.ID == "<C-c>" || e.ID == "q" {
				return
			}
		case snap := <-snapshots:
			render(trainTable, snap)
		}
	}
}

func render(table *widgets.Table, snap engine.Snapshot) {
	sorted := append([]engine.TrainSnapshot(nil), snap.Trains...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	rows := [][]string{{"id", "code", "status", "head", "stop"}}
	for _, tr := range sorted {
		rows = append(rows, []string{
			fmt.Sprint(tr.ID),
			tr.Code,
			tr.Status.String(),
			fmt.Sprint(tr.HeadSection),
			string(tr.DesiredStop),
		})
	}
	table.Rows = rows
	table.Title = fmt.Sprintf("Trains — tick %d — %s", snap.TickIndex, strings.TrimSpace(fmt.Sprintf("%.1fs", snap.SimTimeSeconds)))
	termui.Render(table)
}
