package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"syscall"
	"time"

	"github.com/pthm-cable/transitflow/config"
	"github.com/pthm-cable/transitflow/sim"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Path to config.yaml (empty = use defaults)")
	logStats := flag.Bool("log-stats", false, "Output stats via slog")
	outputDir := flag.String("output-dir", "", "Output directory for CSV logs and config snapshot")
	snapshotDir := flag.String("snapshot-dir", "", "Directory for snapshot files (empty = <output-dir>/snapshots)")
	snapshotEvery := flag.Int("snapshot-every", 0, "Save a field snapshot every N frames (0 = never)")
	trackPath := flag.String("track", "", "Replay emitters from a track CSV (empty = config, then live wander)")
	recordTrack := flag.String("record-track", "", "Write emitter state at every source refresh to this CSV")
	restorePath := flag.String("restore", "", "Start from a snapshot file")
	seed := flag.Int64("seed", 0, "Emitter seed (0 = config)")
	maxFrames := flag.Int64("max-frames", 0, "Stop after N frames (0 = unlimited)")
	cpuProfile := flag.String("cpuprofile", "", "Write a CPU profile to this path")

	flag.Parse()

	// Set up slog (JSON to stdout for structured logging)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg := config.Cfg()

	if *cpuProfile != "" {
		stop, err := startCPUProfile(*cpuProfile)
		if err != nil {
			slog.Error("failed to start cpu profile", "error", err)
			os.Exit(1)
		}
		defer stop()
	}

	s, err := sim.New(cfg, sim.Options{
		Seed:          *seed,
		LogStats:      *logStats,
		OutputDir:     *outputDir,
		SnapshotDir:   *snapshotDir,
		SnapshotEvery: *snapshotEvery,
		TrackPath:     *trackPath,
		RecordTrack:   *recordTrack,
		RestorePath:   *restorePath,
	})
	if err != nil {
		slog.Error("failed to start simulation", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := s.Unload(); err != nil {
			slog.Error("failed to close outputs", "error", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	slog.Info("starting simulation",
		"m", cfg.Grid.M,
		"n", cfg.Grid.N,
		"seed", s.Seed(),
		"emitters", s.Emitters().Len(),
		"boundary", cfg.Solver.Boundary,
		"dissipation_mode", cfg.Solver.DissipationMode,
		"max_frames", *maxFrames,
	)

	start := time.Now()
	err = s.Run(ctx, *maxFrames)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("simulation failed", "error", err)
	}

	elapsed := time.Since(start)
	slog.Info("simulation finished",
		"frames", s.Frame(),
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// startCPUProfile begins writing a CPU profile to path. The returned stop
// function is safe to call more than once.
func startCPUProfile(path string) (func(), error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		f.Close()
		return nil, err
	}
	var once sync.Once
	stop := func() {
		once.Do(func() {
			pprof.StopCPUProfile()
			_ = f.Close()
		})
	}
	return stop, nil
}
