// Command snapshotd streams a running Scheduler's per-tick Snapshot over
// Server-Sent Events, the reference transport for the engine's outbound
// boundary (spec §1 treats wire transport as an external collaborator).
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/r3labs/sse/v2"
	"go.uber.org/zap"

	"github.com/kadzu/railsim/config"
	"github.com/kadzu/railsim/engine"
	"github.com/kadzu/railsim/topology"
	"github.com/kadzu/railsim/train"
)

func main() {
	defer zap.S().Sync()
	configPath := flag.String("config", "config.json", "path to a railsim config.json")
	addr := flag.String("addr", ":8080", "address to serve SSE on")
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
	s := engine.New(topo, engine.WithLogger(zap.S()), engine.WithTrainTypes(types...))

	server := sse.New()
	server.CreateStream("snapshot")

	go forward(s, server)

	http.Handle("/snapshot", server)
	zap.S().Infof("snapshotd: listening on %s", *addr)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	go s.Run(ctx)

	httpServer := &http.Server{Addr: *addr}
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zap.S().Fatalf("serve: %s", err)
	}
}

// forward relays every Snapshot the Scheduler emits onto the "snapshot"
// SSE stream, mirroring the teacher's kujo.Server.forward, which does the
// same for tal.GuideSnapshot.
func forward(s *engine.Scheduler, server *sse.Server) {
	ch := make(chan engine.Snapshot, 1)
	s.Subscribe("snapshotd", ch)
	defer s.Unsubscribe(ch)
	for snap := range ch {
		data, err := json.Marshal(snap)
		if err != nil {
			zap.S().Errorw("snapshotd: marshal snapshot", "error", err)
			continue
		}
		server.TryPublish("snapshot", &sse.Event{Data: data})
	}
}
