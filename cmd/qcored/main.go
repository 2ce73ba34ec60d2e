// Command qcored is the task-pipeline daemon: it wires the Registry,
// Compiler Adapter, Driver Multiplexer, Task Runtime, Task Server and,
// when configured, the Calibration DAG Scheduler, then serves the
// Task Server's RPC surface (spec.md §6) until asked to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/qlab-core/qcore"
	"github.com/qlab-core/qcore/internal/calib"
	"github.com/qlab-core/qcore/internal/config"
	"github.com/qlab-core/qcore/internal/logging"
	"github.com/qlab-core/qcore/internal/rpc"
)

func main() {
	var (
		configName = flag.String("config", "qcored", "config file name (without extension)")
		configDir  = flag.String("config-dir", ".", "directory to search for the config file")
		verbose    = flag.Bool("v", false, "verbose logging")
	)
	flag.Parse()

	cfg, err := config.Load(*configName, *configDir)
	if err != nil {
		logging.Default().Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logConfig := logging.DefaultConfig()
	logConfig.Level = parseLevel(cfg.LogLevel)
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	// No real instrument is configured in this build; a single
	// "loopback" alias backed by the built-in mock driver/compiler lets
	// the daemon start and accept tasks, mirroring the teacher's
	// cmd/ublk-mem default to backend.NewMemory() when no real device
	// is given.
	mockDriver := qcore.NewMockDriver([]int{0, 1}, nil)
	compiler := &qcore.MockCompiler{}

	core, err := qcore.New(compiler, []qcore.DriverAlias{
		{Alias: cfg.DefaultBackend, Driver: mockDriver},
	}, calibOptionsFromConfig(cfg), qcore.Options{Logger: logger})
	if err != nil {
		logger.Error("failed to wire core", "error", err)
		os.Exit(1)
	}
	defer core.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	core.StartCalibration(ctx)

	httpSrv := rpc.Server(cfg.ListenAddr, core.Server())
	logger.Info("qcored starting", "listen_addr", cfg.ListenAddr, "default_backend", cfg.DefaultBackend)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- rpc.Serve(ctx, httpSrv, 5*time.Second)
	}()

	stackDumpCh := make(chan os.Signal, 1)
	signal.Notify(stackDumpCh, syscall.SIGUSR1)
	go func() {
		for range stackDumpCh {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			fmt.Fprintf(os.Stderr, "=== GOROUTINE STACK DUMP ===\n%s\n", buf[:n])
			pprof.Lookup("goroutine").WriteTo(os.Stderr, 2)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("received shutdown signal")
		cancel()
		if err := <-serveErr; err != nil {
			logger.Error("error during shutdown", "error", err)
		}
	case err := <-serveErr:
		if err != nil {
			logger.Error("rpc server exited", "error", err)
			os.Exit(1)
		}
	}
}

func calibOptionsFromConfig(cfg *config.Config) *qcore.CalibOptions {
	if cfg.CheckMethod == "" || len(cfg.Groups) == 0 {
		return nil
	}
	graph := calib.NewGraph()
	for _, edge := range cfg.CalibEdges {
		graph.AddEdge(edge[0], edge[1])
	}
	return &qcore.CalibOptions{
		Graph:       graph,
		Executor:    noopExecutor{},
		Groups:      cfg.Groups,
		GroupOrder:  cfg.GroupOrder,
		CheckMethod: cfg.CheckMethod,
		CheckPeriod: cfg.CheckPeriod,
	}
}

// noopExecutor is the calibration scheduler's default Executor until a
// real calibration-routine collaborator is configured: every target
// reports OK, so the Checker/Calibrator loops run without ever driving
// real hardware.
type noopExecutor struct{}

func (noopExecutor) Execute(method string, targets []string) (map[string]float64, map[string]string) {
	fitted := make(map[string]float64, len(targets))
	status := make(map[string]string, len(targets))
	for _, t := range targets {
		fitted[t] = 0
		status[t] = "OK"
	}
	return fitted, status
}

func parseLevel(level string) logging.LogLevel {
	switch level {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
