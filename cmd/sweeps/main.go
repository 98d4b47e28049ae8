// Package main measures the accuracy and cost of the fixed Jacobi sweep
// counts. Each sweep count runs its own engine on the same emitter scene.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/guptarohit/asciigraph"
	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/transitflow/config"
	"github.com/pthm-cable/transitflow/emitters"
	"github.com/pthm-cable/transitflow/engine"
)

// Sweep kinds.
const (
	KindPressure  = "pressure"
	KindViscosity = "viscosity"
	KindDiffusion = "diffusion"
)

// Result is one row of the sweep table.
type Result struct {
	Kind         string  `csv:"kind"`
	Sweeps       int     `csv:"sweeps"`
	Frames       int     `csv:"frames"`
	DivergenceL2 float64 `csv:"divergence_l2"`
	VelocityL2   float64 `csv:"velocity_l2"`
	DensityMass  float64 `csv:"density_mass"`
	StepUS       int64   `csv:"step_us"` // Mean wall time per frame
}

// parseSweeps parses a comma-separated list of positive sweep counts.
func parseSweeps(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("parsing sweep count %q: %w", part, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("sweep count must be positive, got %d", v)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no sweep counts given")
	}
	return out, nil
}

// applySweeps sets the sweep count selected by kind.
func applySweeps(p *engine.Params, kind string, sweeps int) error {
	switch kind {
	case KindPressure:
		p.PressureSweeps = sweeps
	case KindViscosity:
		p.ViscositySweeps = sweeps
	case KindDiffusion:
		p.DiffusionSweeps = sweeps
	default:
		return fmt.Errorf("unknown sweep kind %q", kind)
	}
	return nil
}

// runOne drives one engine through frames frames of the emitter scene.
func runOne(ctx context.Context, cfg *config.Config, kind string, sweeps, frames int) (Result, error) {
	p := cfg.EngineParams()
	p.Workers = 1
	if err := applySweeps(&p, kind, sweeps); err != nil {
		return Result{}, err
	}

	m, n := cfg.Grid.M, cfg.Grid.N
	e := engine.New(m, n, p)
	defer e.Close()

	world := emitters.NewWorld(m, n, emitters.Params{
		Count:        cfg.Emitters.Count,
		Seed:         cfg.Emitters.Seed,
		Density:      float32(cfg.Emitters.Density),
		VelocityGain: float32(cfg.Emitters.VelocityGain),
		Speed:        float32(cfg.Emitters.Speed),
		NoiseScale:   float32(cfg.Emitters.NoiseScale),
	})
	world.SpawnRandom(cfg.Emitters.Count)

	den := make([]float32, e.Cells())
	vel := make([]float32, 2*e.Cells())

	var elapsed time.Duration
	for f := 0; f < frames; f++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		world.Wander(int64(f))
		if f%cfg.Emitters.RefreshInterval == 0 {
			world.Rasterize(den, vel)
		}

		start := time.Now()
		e.InjectVelocity(vel)
		e.InjectDensity(den)
		e.StepVelocity()
		e.StepDensity()
		elapsed += time.Since(start)
	}

	var stepUS int64
	if frames > 0 {
		stepUS = (elapsed / time.Duration(frames)).Microseconds()
	}
	return Result{
		Kind:         kind,
		Sweeps:       sweeps,
		Frames:       frames,
		DivergenceL2: e.DivergenceNorm(),
		VelocityL2:   e.Velocity().VectorNorm2(),
		DensityMass:  e.Density().Sum(0),
		StepUS:       stepUS,
	}, nil
}

// runAll evaluates every sweep count with at most parallel engines at once.
// Results keep the order of counts.
func runAll(ctx context.Context, cfg *config.Config, kind string, counts []int, frames, parallel int) ([]Result, error) {
	results := make([]Result, len(counts))

	g, ctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for i, sweeps := range counts {
		g.Go(func() error {
			r, err := runOne(ctx, cfg, kind, sweeps, frames)
			if err != nil {
				return fmt.Errorf("%s sweeps=%d: %w", kind, sweeps, err)
			}
			results[i] = r
			slog.Debug("sweep done", "kind", kind, "sweeps", sweeps, "divergence_l2", r.DivergenceL2)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func writeResults(out io.Writer, results []Result) error {
	return gocsv.Marshal(results, out)
}

// plotDivergence charts residual divergence against the run index, one point
// per sweep count in the order given.
func plotDivergence(results []Result) string {
	series := make([]float64, len(results))
	labels := make([]string, len(results))
	for i, r := range results {
		series[i] = r.DivergenceL2
		labels[i] = strconv.Itoa(r.Sweeps)
	}
	caption := fmt.Sprintf("%s divergence L2 at sweeps %s", results[0].Kind, strings.Join(labels, ","))
	return asciigraph.Plot(series, asciigraph.Height(10), asciigraph.Caption(caption))
}

func main() {
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	kind := flag.String("kind", KindPressure, "Which sweep count to vary: pressure, viscosity or diffusion")
	sweepList := flag.String("sweeps", "5,10,20,40,80,160", "Comma-separated sweep counts")
	frames := flag.Int("frames", 200, "Frames per run")
	parallel := flag.Int("parallel", 0, "Maximum concurrent runs (0 = unlimited)")
	outPath := flag.String("output", "", "CSV output path (empty = stdout)")
	plot := flag.Bool("plot", false, "Print a divergence chart to stderr")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))
	slog.SetDefault(logger)

	if err := config.Init(*configPath); err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	counts, err := parseSweeps(*sweepList)
	if err != nil {
		slog.Error("invalid -sweeps", "error", err)
		os.Exit(1)
	}

	start := time.Now()
	results, err := runAll(context.Background(), config.Cfg(), *kind, counts, *frames, *parallel)
	if err != nil {
		slog.Error("sweep run failed", "error", err)
		os.Exit(1)
	}
	slog.Info("sweeps complete", "runs", len(results), "elapsed_ms", time.Since(start).Milliseconds())
	if *plot {
		fmt.Fprintln(os.Stderr, plotDivergence(results))
	}

	var out io.Writer = os.Stdout
	if *outPath != "" {
		f, err := os.Create(*outPath)
		if err != nil {
			slog.Error("failed to create output", "error", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}
	if err := writeResults(out, results); err != nil {
		slog.Error("failed to write results", "error", err)
		os.Exit(1)
	}
}
