package telemetry

import (
	"log/slog"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// WindowStats holds aggregated field statistics for a window of frames.
type WindowStats struct {
	WindowStartFrame int64   `csv:"-"`
	WindowEndFrame   int64   `csv:"window_end"`
	SimTime          float64 `csv:"sim_time"`

	// Sources during window
	ActiveEmitters  int     `csv:"emitters"`
	InjectedDensity float64 `csv:"injected_density"` // Mass injected during the window
	InjectedTotal   float64 `csv:"injected_total"`   // Cumulative injected mass

	// Density at window end (interior cells)
	DensityMass float64 `csv:"density_mass"`
	DensityMax  float64 `csv:"density_max"`
	DensityMean float64 `csv:"density_mean"`
	DensityStd  float64 `csv:"density_std"`
	DensityP50  float64 `csv:"density_p50"`
	DensityP90  float64 `csv:"density_p90"`
	Coverage    float64 `csv:"coverage"` // Fraction of cells above the coverage threshold

	// Velocity at window end
	VelocityL2   float64 `csv:"velocity_l2"`
	VelocityMax  float64 `csv:"velocity_max"`
	DivergenceL2 float64 `csv:"divergence_l2"`
}

// CoverageThreshold is the density above which a cell counts as covered.
const CoverageThreshold = 1e-3

// Percentile calculates the p-th percentile of a sorted slice.
// p should be in [0, 1]. Returns 0 if slice is empty.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[n-1]
	}

	// Linear interpolation
	idx := p * float64(n-1)
	lo := int(idx)
	hi := lo + 1
	if hi >= n {
		return sorted[n-1]
	}

	frac := idx - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}

// ComputeDensityStats calculates mean, population std, median, p90 and the
// covered fraction of cell values. values is sorted in place.
func ComputeDensityStats(values []float64) (mean, std, p50, p90, coverage float64) {
	n := len(values)
	if n == 0 {
		return 0, 0, 0, 0, 0
	}

	mean, std = stat.PopMeanStdDev(values, nil)

	sort.Float64s(values)
	p50 = Percentile(values, 0.50)
	p90 = Percentile(values, 0.90)

	// First index above the threshold; everything after it is covered too.
	k := sort.SearchFloat64s(values, CoverageThreshold)
	for k < n && values[k] <= CoverageThreshold {
		k++
	}
	coverage = float64(n-k) / float64(n)

	return mean, std, p50, p90, coverage
}

// LogValue implements slog.LogValuer for structured logging.
func (s WindowStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("window_start", s.WindowStartFrame),
		slog.Int64("window_end", s.WindowEndFrame),
		slog.Float64("sim_time", s.SimTime),
		slog.Int("emitters", s.ActiveEmitters),
		slog.Float64("injected_density", s.InjectedDensity),
		slog.Float64("injected_total", s.InjectedTotal),
		slog.Float64("density_mass", s.DensityMass),
		slog.Float64("density_max", s.DensityMax),
		slog.Float64("density_mean", s.DensityMean),
		slog.Float64("density_std", s.DensityStd),
		slog.Float64("density_p50", s.DensityP50),
		slog.Float64("density_p90", s.DensityP90),
		slog.Float64("coverage", s.Coverage),
		slog.Float64("velocity_l2", s.VelocityL2),
		slog.Float64("velocity_max", s.VelocityMax),
		slog.Float64("divergence_l2", s.DivergenceL2),
	)
}

// LogStats logs the window stats using slog.
func (s WindowStats) LogStats() {
	slog.Info("stats",
		"window_end", s.WindowEndFrame,
		"sim_time", s.SimTime,
		"emitters", s.ActiveEmitters,
		"injected_density", s.InjectedDensity,
		"density_mass", s.DensityMass,
		"density_max", s.DensityMax,
		"density_mean", s.DensityMean,
		"density_std", s.DensityStd,
		"coverage", s.Coverage,
		"velocity_l2", s.VelocityL2,
		"velocity_max", s.VelocityMax,
		"divergence_l2", s.DivergenceL2,
	)
}
