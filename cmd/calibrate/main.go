// Package main fits the density dissipation factor so that a single puff
// keeps a target fraction of its mass after a fixed number of frames.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gonum.org/v1/gonum/optimize"

	"github.com/pthm-cable/transitflow/config"
)

// formatDuration formats a duration as HH:MM:SS or MM:SS for shorter durations.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}

// evalRecord is one row of calibrate_log.csv.
type evalRecord struct {
	Eval        int     `csv:"eval"`
	Fitness     float64 `csv:"fitness"`
	Ratio       float64 `csv:"ratio"`
	Dissipation float64 `csv:"dissipation"`
}

// calibration is the outcome of one calibration run.
type calibration struct {
	Best        []float64 // Raw, clamped parameter values
	BestFitness float64
	BestRatio   float64
	Evals       int
}

// calibrate minimizes the evaluator with Nelder-Mead over normalized
// parameters, logging every evaluation to logOut when non-nil.
func calibrate(params *ParamVector, evaluator *FitnessEvaluator, maxEvals int, logOut io.Writer) (*calibration, error) {
	res := &calibration{BestFitness: math.Inf(1)}
	headerWritten := false

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			raw := params.Clamp(params.Denormalize(x))
			fitness := evaluator.Evaluate(raw)
			ratio := evaluator.LastRatio()
			res.Evals++

			if fitness < res.BestFitness {
				res.BestFitness = fitness
				res.BestRatio = ratio
				res.Best = raw
			}

			if logOut != nil {
				rec := []evalRecord{{Eval: res.Evals, Fitness: fitness, Ratio: ratio, Dissipation: raw[0]}}
				var err error
				if headerWritten {
					err = gocsv.MarshalWithoutHeaders(rec, logOut)
				} else {
					err = gocsv.Marshal(rec, logOut)
					headerWritten = true
				}
				if err != nil {
					log.Printf("failed to log evaluation: %v", err)
				}
			}
			return fitness
		},
	}

	settings := &optimize.Settings{
		FuncEvaluations: maxEvals,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Iterations: 20,
		},
	}

	initX := params.Normalize(params.DefaultVector())
	_, err := optimize.Minimize(problem, initX, settings, &optimize.NelderMead{})
	if res.Best == nil {
		return nil, fmt.Errorf("no evaluations completed: %w", err)
	}
	// Hitting the evaluation budget still leaves a usable best point.
	return res, err
}

func main() {
	// CLI flags
	configPath := flag.String("config", "", "Base config YAML file (empty = use defaults)")
	frames := flag.Int("frames", 100, "Frames between injection and measurement")
	target := flag.Float64("target", 0.01, "Target surviving mass fraction after -frames")
	puffs := flag.Int("puffs", 3, "Number of puff positions per evaluation")
	maxEvals := flag.Int("max-evals", 100, "Maximum number of evaluations")
	outputDir := flag.String("output", "", "Output directory for results")
	flag.Parse()

	if *outputDir == "" {
		log.Fatal("--output is required")
	}
	if *target <= 0 || *target > 1 {
		log.Fatalf("--target must be in (0,1], got %v", *target)
	}

	if err := os.MkdirAll(*outputDir, 0755); err != nil {
		log.Fatalf("failed to create output directory: %v", err)
	}

	if err := config.Init(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	baseCfg := config.Cfg()

	params := NewParamVector(baseCfg)

	seeds := make([]int64, *puffs)
	for i := range seeds {
		seeds[i] = int64(i*1000 + 42)
	}
	evaluator := NewFitnessEvaluator(params, *frames, *target, seeds, baseCfg)

	logPath := filepath.Join(*outputDir, "calibrate_log.csv")
	logFile, err := os.Create(logPath)
	if err != nil {
		log.Fatalf("failed to create log file: %v", err)
	}
	defer logFile.Close()

	fmt.Printf("Calibrating %s over %d frames toward %.4f on a %dx%d grid (mode %s, boundary %s)\n",
		params.Specs[0].Name, *frames, *target, baseCfg.Grid.M, baseCfg.Grid.N,
		baseCfg.Solver.DissipationMode, baseCfg.Solver.Boundary)

	startTime := time.Now()
	res, err := calibrate(params, evaluator, *maxEvals, logFile)
	if err != nil && res == nil {
		log.Fatalf("calibration failed: %v", err)
	}
	if err != nil {
		log.Printf("calibration ended: %v", err)
	}

	fmt.Printf("\nCalibration complete after %d evaluations in %s\n", res.Evals, formatDuration(time.Since(startTime)))
	fmt.Printf("Best fitness: %.3g (surviving fraction %.5f)\n", res.BestFitness, res.BestRatio)
	for i, spec := range params.Specs {
		fmt.Printf("  %s: %.6f\n", spec.Path, res.Best[i])
	}

	bestCfg, _ := config.Load(*configPath)
	params.ApplyToConfig(bestCfg, res.Best)

	configOutPath := filepath.Join(*outputDir, "best_config.yaml")
	if err := bestCfg.WriteYAML(configOutPath); err != nil {
		log.Printf("failed to write best config: %v", err)
	} else {
		fmt.Printf("\nBest config saved to: %s\n", configOutPath)
	}
}
