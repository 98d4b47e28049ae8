// Package sim runs one fluid simulation frame by frame: emitters feed the
// engine, the engine steps, telemetry samples the result.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gonum.org/v1/gonum/blas/blas32"

	"github.com/pthm-cable/transitflow/config"
	"github.com/pthm-cable/transitflow/emitters"
	"github.com/pthm-cable/transitflow/engine"
	"github.com/pthm-cable/transitflow/telemetry"
)

// Options configures a run beyond the loaded config.
type Options struct {
	Seed          int64  // Overrides emitters.seed when non-zero
	LogStats      bool   // Log stats and perf windows via slog
	OutputDir     string // CSV logs and config copy (empty = disabled)
	SnapshotDir   string // Snapshot directory (empty = <output-dir>/snapshots)
	SnapshotEvery int    // Frames between snapshots (0 = disabled)
	TrackPath     string // Replay this track instead of live wander
	RecordTrack   string // Write live emitter state at every refresh
	RestorePath   string // Start from this snapshot
}

// Sim holds the complete state of one run.
type Sim struct {
	cfg *config.Config

	engine   *engine.Engine
	emitters *emitters.World
	replay   *emitters.Replay
	keyframe int

	// Source arrays, rebuilt every refresh interval and injected every frame
	densitySrc  []float32
	velocitySrc []float32
	active      int
	sourceMass  float64
	sourcesLive bool

	collector *telemetry.Collector
	perf      *telemetry.PerfCollector
	output    *telemetry.OutputManager

	trackFile   *os.File
	trackHeader bool

	frame         int64
	seed          int64
	logStats      bool
	snapshotDir   string
	snapshotEvery int

	statsCallback func(telemetry.WindowStats)
}

// New builds a run from a validated config.
func New(cfg *config.Config, opts Options) (*Sim, error) {
	seed := cfg.Emitters.Seed
	if opts.Seed != 0 {
		seed = opts.Seed
	}

	m, n := cfg.Grid.M, cfg.Grid.N
	e := engine.New(m, n, cfg.EngineParams())

	s := &Sim{
		cfg:    cfg,
		engine: e,
		emitters: emitters.NewWorld(m, n, emitters.Params{
			Count:        cfg.Emitters.Count,
			Seed:         seed,
			Density:      float32(cfg.Emitters.Density),
			VelocityGain: float32(cfg.Emitters.VelocityGain),
			Speed:        float32(cfg.Emitters.Speed),
			NoiseScale:   float32(cfg.Emitters.NoiseScale),
		}),
		densitySrc:    make([]float32, e.Cells()),
		velocitySrc:   make([]float32, 2*e.Cells()),
		collector:     telemetry.NewCollector(cfg.Telemetry.StatsWindow, float32(cfg.Solver.DT)),
		perf:          telemetry.NewPerfCollector(cfg.Telemetry.PerfWindow),
		seed:          seed,
		logStats:      opts.LogStats,
		snapshotDir:   opts.SnapshotDir,
		snapshotEvery: opts.SnapshotEvery,
	}
	e.SetPhaseTimer(s.perf)

	if err := s.setup(opts); err != nil {
		s.Unload()
		return nil, err
	}
	return s, nil
}

func (s *Sim) setup(opts Options) error {
	trackPath := opts.TrackPath
	if trackPath == "" {
		trackPath = s.cfg.Emitters.TrackFile
	}
	if trackPath != "" {
		replay, err := emitters.LoadTrack(trackPath)
		if err != nil {
			return err
		}
		s.replay = replay
	} else {
		s.emitters.SpawnRandom(s.cfg.Emitters.Count)
	}

	output, err := telemetry.NewOutputManager(opts.OutputDir)
	if err != nil {
		return err
	}
	s.output = output
	if err := s.output.WriteConfig(s.cfg); err != nil {
		return fmt.Errorf("writing config copy: %w", err)
	}
	if s.snapshotDir == "" {
		s.snapshotDir = s.output.SnapshotDir()
	}

	if opts.RecordTrack != "" {
		f, err := os.Create(opts.RecordTrack)
		if err != nil {
			return fmt.Errorf("creating track file: %w", err)
		}
		s.trackFile = f
	}

	if opts.RestorePath != "" {
		snap, err := telemetry.LoadSnapshot(opts.RestorePath)
		if err != nil {
			return err
		}
		if err := snap.Restore(s.engine); err != nil {
			return fmt.Errorf("restoring %s: %w", opts.RestorePath, err)
		}
		s.frame = snap.Frame
		// Resume replay at the keyframe that was live at the restored frame.
		s.keyframe = int(snap.Frame / int64(s.cfg.Emitters.RefreshInterval))
		slog.Info("snapshot restored", "path", opts.RestorePath, "frame", snap.Frame, "keyframe", s.keyframe)
	}
	return nil
}

// SetStatsCallback installs fn to receive every flushed stats window.
func (s *Sim) SetStatsCallback(fn func(telemetry.WindowStats)) {
	s.statsCallback = fn
}

// Engine returns the engine driven by this run.
func (s *Sim) Engine() *engine.Engine { return s.engine }

// Emitters returns the emitter world.
func (s *Sim) Emitters() *emitters.World { return s.emitters }

// Frame returns the number of completed frames.
func (s *Sim) Frame() int64 { return s.frame }

// Seed returns the effective emitter seed.
func (s *Sim) Seed() int64 { return s.seed }

// Step advances one frame: source refresh, injection, velocity step,
// density step, telemetry.
func (s *Sim) Step() {
	s.perf.RecordFrame()
	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseEmitters)
	if s.replay == nil {
		s.emitters.Wander(s.frame)
	}
	if !s.sourcesLive || s.frame%int64(s.cfg.Emitters.RefreshInterval) == 0 {
		s.refreshSources()
		s.sourcesLive = true
	}

	s.engine.InjectVelocity(s.velocitySrc)
	s.engine.InjectDensity(s.densitySrc)
	s.engine.StepVelocity()
	s.engine.StepDensity()

	s.perf.StartPhase(telemetry.PhaseTelemetry)
	s.collector.RecordInjection(s.sourceMass, s.active)
	s.frame++
	s.flushTelemetry()
	if s.snapshotEvery > 0 && s.frame%int64(s.snapshotEvery) == 0 {
		s.saveSnapshot()
	}

	s.perf.EndTick()
}

// refreshSources rebuilds the source arrays from the current emitter state.
func (s *Sim) refreshSources() {
	if s.replay != nil {
		s.replay.Apply(s.emitters, s.keyframe)
		s.keyframe++
	}

	s.active = s.emitters.Rasterize(s.densitySrc, s.velocitySrc)

	// Density sources are non-negative, so Asum is their total.
	p := s.engine.Params()
	raw := blas32.Asum(blas32.Vector{N: len(s.densitySrc), Inc: 1, Data: s.densitySrc})
	s.sourceMass = float64(raw) * float64(p.DT) * float64(p.SourceScale)

	if s.trackFile != nil {
		if err := emitters.WriteTrack(s.trackFile, s.emitters.Observe(s.frame), !s.trackHeader); err != nil {
			slog.Error("failed to record track", "error", err)
		}
		s.trackHeader = true
	}
}

// Run steps until maxFrames frames have completed (0 = unlimited) or ctx is
// cancelled. Cancellation is checked between frames only.
func (s *Sim) Run(ctx context.Context, maxFrames int64) error {
	for {
		select {
		case <-ctx.Done():
			slog.Info("run interrupted", "frame", s.frame)
			return ctx.Err()
		default:
		}

		s.Step()

		if maxFrames > 0 && s.frame >= maxFrames {
			slog.Info("max frames reached", "frame", s.frame)
			return nil
		}
	}
}

// Unload releases the worker pool and closes output files.
func (s *Sim) Unload() error {
	s.engine.Close()

	var firstErr error
	if err := s.output.Close(); err != nil {
		firstErr = err
	}
	if s.trackFile != nil {
		if err := s.trackFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.trackFile = nil
	}
	s.output = nil
	return firstErr
}
