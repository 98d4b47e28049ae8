package telemetry

import (
	"math"

	"github.com/pthm-cable/transitflow/field"
)

// FieldSource is the read side of a simulation engine.
type FieldSource interface {
	Density() field.View
	Velocity() field.View
	DivergenceNorm() float64
}

// Collector accumulates source activity within frame windows and produces
// WindowStats from the field state at the end of each window.
type Collector struct {
	windowFrames int64
	dt           float32

	// Current window tracking
	windowStartFrame int64

	injectedDensity float64
	injectedTotal   float64
	activeEmitters  int

	scratch []float64
}

// NewCollector creates a new stats collector.
// windowFrames: frames per window
// dt: simulation time per frame
func NewCollector(windowFrames int, dt float32) *Collector {
	if windowFrames < 1 {
		windowFrames = 1
	}
	return &Collector{
		windowFrames: int64(windowFrames),
		dt:           dt,
	}
}

// RecordInjection records one frame's density source. mass is the sum of the
// source array as injected, after dt and source scaling.
func (c *Collector) RecordInjection(mass float64, emitters int) {
	c.injectedDensity += mass
	c.injectedTotal += mass
	c.activeEmitters = emitters
}

// ShouldFlush returns true if enough frames have passed to flush the window.
func (c *Collector) ShouldFlush(frame int64) bool {
	return frame-c.windowStartFrame >= c.windowFrames
}

// Flush produces a WindowStats from src and resets counters for the next window.
func (c *Collector) Flush(frame int64, src FieldSource) WindowStats {
	den := src.Density()
	vel := src.Velocity()

	c.scratch = den.Interior(c.scratch[:0], 0)
	mean, std, p50, p90, coverage := ComputeDensityStats(c.scratch)

	velMax := math.Max(float64(vel.MaxAbs(0)), float64(vel.MaxAbs(1)))

	stats := WindowStats{
		WindowStartFrame: c.windowStartFrame,
		WindowEndFrame:   frame,
		SimTime:          float64(frame) * float64(c.dt),

		ActiveEmitters:  c.activeEmitters,
		InjectedDensity: c.injectedDensity,
		InjectedTotal:   c.injectedTotal,

		DensityMass: den.Sum(0),
		DensityMax:  float64(den.MaxAbs(0)),
		DensityMean: mean,
		DensityStd:  std,
		DensityP50:  p50,
		DensityP90:  p90,
		Coverage:    coverage,

		VelocityL2:   vel.VectorNorm2(),
		VelocityMax:  velMax,
		DivergenceL2: src.DivergenceNorm(),
	}

	// Reset for next window
	c.windowStartFrame = frame
	c.injectedDensity = 0

	return stats
}

// WindowFrames returns the number of frames per window.
func (c *Collector) WindowFrames() int64 {
	return c.windowFrames
}
