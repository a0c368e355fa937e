package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/meshworks/radio-orchestrator/core"
	"github.com/meshworks/radio-orchestrator/geo"
	"github.com/meshworks/radio-orchestrator/internal/bus"
	"github.com/meshworks/radio-orchestrator/internal/config"
	"github.com/meshworks/radio-orchestrator/internal/daemon"
	"github.com/meshworks/radio-orchestrator/internal/logging"
	"github.com/meshworks/radio-orchestrator/internal/nsdev"
	"github.com/meshworks/radio-orchestrator/internal/observability"
	"github.com/meshworks/radio-orchestrator/orchestrator"
	"github.com/meshworks/radio-orchestrator/rfmodel"
)

func main() {
	scenarioPath := flag.String("scenario", "configs/scenario.yaml", "Path to the YAML scenario description")
	runBase := flag.String("run-dir", "/tmp/radio-orchestrator", "Base directory for per-run artifacts")
	metricsAddr := flag.String("metrics-addr", ":9090", "HTTP address for Prometheus /metrics")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	collector, err := observability.NewCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.String("error", err.Error()))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(*metricsAddr, collector, log)

	traceShutdown, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.String("error", err.Error()))
		os.Exit(1)
	}

	sc, err := LoadScenario(*scenarioPath)
	if err != nil {
		log.Error(ctx, "failed to load scenario", logging.String("error", err.Error()))
		os.Exit(1)
	}

	runDir := filepath.Join(*runBase, uuid.NewString())
	local, servers := sc.ServerRefs()

	controlBus := bus.NewMemoryBus()
	devices := nsdev.NewManager(log)
	runner := daemon.NewExecRunner(runDir, log)

	mgr := orchestrator.New(orchestrator.Config{
		RunDir:        runDir,
		LogLevel:      sc.LogLevel,
		Realtime:      sc.Realtime,
		EventMonitor:  sc.EventMonitor,
		EventGenerate: sc.EventGen,
		LocalServer:   local,
		Servers:       servers,
		Master:        sc.Master,
	}, orchestrator.Deps{
		ControlBus: controlBus,
		Devices:    devices,
		Runner:     runner,
		Transform:  transformFromScenario(sc),
		Metrics:    collector,
		Log:        log,
	})
	controlBus.Register(local.Name, mgr.HandleMessage)

	if err := applyScenario(ctx, mgr, sc); err != nil {
		log.Error(ctx, "failed to apply scenario", logging.String("error", err.Error()))
		os.Exit(1)
	}

	status, err := mgr.Startup(ctx)
	if err != nil {
		log.Error(ctx, "startup failed", logging.String("error", err.Error()))
		mgr.Shutdown(ctx)
		os.Exit(1)
	}
	switch status {
	case orchestrator.NotNeeded:
		log.Info(ctx, "no radio nodes in scenario, nothing to run")
		os.Exit(0)
	case orchestrator.NotReady:
		log.Error(ctx, "startup not ready; check control device and id allocation")
		os.Exit(1)
	}
	if err := mgr.PostStartup(ctx); err != nil {
		log.Error(ctx, "post-startup failed", logging.String("error", err.Error()))
	}

	log.Info(ctx, "emulation run active",
		logging.String("run_dir", runDir), logging.String("server", local.Name))

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down")
	mgr.Shutdown(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	observability.ShutdownWithTimeout(shutdownCtx, traceShutdown, log)
}

// applyScenario pushes option overrides into the configuration store and
// registers every node with its interfaces.
func applyScenario(ctx context.Context, mgr *orchestrator.Manager, sc *Scenario) error {
	if len(sc.Options) > 0 {
		mgr.Store().Set(config.GlobalOwner, rfmodel.GlobalName, sc.Options)
	}

	hosts := make(map[int]*core.HostNode)
	for _, n := range sc.Nodes {
		node, err := mgr.AddNode(ctx, n.ID, n.Name, n.Model)
		if err != nil {
			return err
		}
		if len(n.Config) > 0 {
			mgr.Store().Set(n.ID, node.Model.Name(), n.Config)
		}
		for _, ie := range n.Interfaces {
			host, ok := hosts[ie.HostID]
			if !ok {
				host = &core.HostNode{ID: ie.HostID, Name: ie.HostName, NSPath: ie.NSPath}
				hosts[ie.HostID] = host
			}
			node.AttachInterface(&core.NetworkInterface{
				Name:      ie.Name,
				Index:     ie.Index,
				Node:      host,
				Transport: sc.transportKind(ie.Transport),
			})
		}
	}
	return nil
}

func transformFromScenario(sc *Scenario) geo.Transform {
	ref := sc.Reference
	if sc.Transform == "ecef" {
		t := geo.NewECEF(time.Now().UTC())
		if ref.Scale > 0 {
			t.Scale = ref.Scale
		}
		return t
	}
	t := geo.NewPlanar(ref.Lat, ref.Lon, ref.Alt)
	if ref.Scale > 0 {
		t.Scale = ref.Scale
	}
	return t
}

func serveMetrics(addr string, collector *observability.Collector, log logging.Logger) *http.Server {
	if collector == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.String("error", err.Error()))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
