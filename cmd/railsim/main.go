// Command railsim runs a headless simulation from a JSON topology/train
// config and an optional CSV train batch, logging snapshots to stderr
// until interrupted.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kadzu/railsim/config"
	"github.com/kadzu/railsim/engine"
	"github.com/kadzu/railsim/ingest"
	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

// trainTypeOption builds an engine.Option registering every train type
// named in cfg's catalog.
func trainTypeOption(cfg config.Config) engine.Option {
	types := make([]train.Type, 0, len(cfg.Trains))
	for _, tt := range cfg.Trains {
		types = append(types, tt.ToTrainType())
	}
	return engine.WithTrainTypes(types...)
}

// schedulerOptions translates cfg.Scheduler's JSON-shaped tunables into
// engine.Options, leaving package defaults in place for any field left at
// its zero value (spec §10).
func schedulerOptions(cfg config.Config) []engine.Option {
	var opts []engine.Option
	if cfg.Scheduler.TickRateHz > 0 {
		opts = append(opts, engine.WithTickRate(cfg.Scheduler.TickRateHz))
	}
	if cfg.Scheduler.SpeedMultiplier > 0 {
		opts = append(opts, engine.WithSpeedMultiplier(cfg.Scheduler.SpeedMultiplier))
	}
	if cfg.Scheduler.BlockGraceTicks > 0 {
		opts = append(opts, engine.WithBlockGraceTicks(cfg.Scheduler.BlockGraceTicks))
	}
	if cfg.Scheduler.ReversePenalty > 0 {
		opts = append(opts, engine.WithReversePenalty(cfg.Scheduler.ReversePenalty))
	}
	if cfg.Scheduler.DwellSeconds > 0 {
		opts = append(opts, engine.WithDwellSeconds(cfg.Scheduler.DwellSeconds))
	}
	return opts
}

func main() {
	defer zap.S().Sync()
	level := zap.LevelFlag("log-level", zap.InfoLevel, "set log level")
	configPath := flag.String("config", "config.json", "path to a railsim config.json")
	batchPath := flag.String("batch", "", "optional CSV train-batch file to spawn at startup")
	flag.Parse()

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(*level)
	dev, err := cfg.Build()
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

	opts := append([]engine.Option{engine.WithLogger(zap.S())}, schedulerOptions(runConfig)...)
	opts = append(opts, trainTypeOption(runConfig))
	s := engine.New(topo, opts...)

	if *batchPath != "" {
		f, err := os.Open(*batchPath)
		if err != nil {
			zap.S().Fatalf("open batch file: %s", err)
		}
		spawns, err := ingest.ParseTrainBatch(f)
		f.Close()
		if err != nil {
			zap.S().Fatalf("parse batch: %s", err)
		}
		for _, spawn := range spawns {
			s.Enqueue(spawn)
		}
	}

	snapshots := make(chan engine.Snapshot, 1)
	s.Subscribe("railsim-cli", snapshots)
	go func() {
		for snap := range snapshots {
			zap.S().Infow("tick", "tick_index", snap.TickIndex, "sim_time", snap.SimTimeSeconds, "trains", len(snap.Trains))
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	s.Run(ctx)
}
