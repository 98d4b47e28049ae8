package main

import (
	"math"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/floats"

	"github.com/pthm-cable/transitflow/config"
	"github.com/pthm-cable/transitflow/engine"
)

// puffMass is the density injected by a calibration puff.
const puffMass = 100

// FitnessEvaluator runs single-puff decay experiments and scores how far the
// surviving mass fraction is from the target.
type FitnessEvaluator struct {
	params     *ParamVector
	frames     int
	target     float64
	seeds      []int64
	baseConfig *config.Config

	mu        sync.Mutex
	lastRatio float64 // mean surviving fraction from the most recent Evaluate call
}

// NewFitnessEvaluator creates a new evaluator. Each seed places one puff.
func NewFitnessEvaluator(params *ParamVector, frames int, target float64, seeds []int64, baseCfg *config.Config) *FitnessEvaluator {
	return &FitnessEvaluator{
		params:     params,
		frames:     frames,
		target:     target,
		seeds:      seeds,
		baseConfig: baseCfg,
	}
}

// LastRatio returns the surviving mass fraction from the most recent evaluation.
func (fe *FitnessEvaluator) LastRatio() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastRatio
}

// Evaluate computes fitness for raw parameter values (lower = better):
// the squared error between the mean surviving mass fraction and the target.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.copyConfig()
	fe.params.ApplyToConfig(cfg, x)
	p := cfg.EngineParams()

	// Run all puffs in parallel
	ratios := make([]float64, len(fe.seeds))
	var wg sync.WaitGroup
	for i, seed := range fe.seeds {
		wg.Add(1)
		go func(idx int, s int64) {
			defer wg.Done()
			ratios[idx] = fe.runPuff(cfg.Grid.M, cfg.Grid.N, p, s)
		}(i, seed)
	}
	wg.Wait()

	mean := floats.Sum(ratios) / float64(len(ratios))

	fe.mu.Lock()
	fe.lastRatio = mean
	fe.mu.Unlock()

	d := mean - fe.target
	return d * d
}

// runPuff injects one puff at a seeded interior cell, steps the engine with
// no velocity source and returns the surviving fraction of the injected mass.
func (fe *FitnessEvaluator) runPuff(m, n int, p engine.Params, seed int64) float64 {
	// Puffs run concurrently; keep each engine single-threaded.
	p.Workers = 1
	e := engine.New(m, n, p)
	defer e.Close()

	rng := rand.New(rand.NewSource(seed))
	i := 1 + rng.Intn(m)
	j := 1 + rng.Intn(n)

	src := make([]float32, e.Cells())
	src[i+(m+2)*j] = puffMass
	e.InjectDensity(src)
	injected := e.Density().Sum(0)
	if injected == 0 {
		return 0
	}

	for f := 0; f < fe.frames; f++ {
		e.StepVelocity()
		e.StepDensity()
	}

	r := e.Density().Sum(0) / injected
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// copyConfig returns a shallow copy of the base config.
func (fe *FitnessEvaluator) copyConfig() *config.Config {
	cfg := *fe.baseConfig
	return &cfg
}
