package main

import (
	"github.com/pthm-cable/transitflow/config"
)

// ParamSpec is one calibrated config value and its search interval.
type ParamSpec struct {
	Name    string
	Path    string // Dotted config key, for output
	Min     float64
	Max     float64
	Default float64

	apply func(cfg *config.Config, v float64)
}

func (s ParamSpec) clamp(v float64) float64 {
	return min(max(v, s.Min), s.Max)
}

// unit maps v onto [0,1] over the search interval.
func (s ParamSpec) unit(v float64) float64 {
	return (v - s.Min) / (s.Max - s.Min)
}

func (s ParamSpec) fromUnit(u float64) float64 {
	return s.Min + u*(s.Max-s.Min)
}

// ParamVector is the ordered set of calibrated values. The optimizer works on
// unit-scaled coordinates so every dimension has the same step size.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector returns the calibration parameters seeded from cfg. Only the
// dissipation factor changes how much density survives, so it is the single
// free dimension.
func NewParamVector(cfg *config.Config) *ParamVector {
	return &ParamVector{Specs: []ParamSpec{{
		Name:    "dissipation",
		Path:    "solver.dissipation",
		Min:     0.5,
		Max:     1.0,
		Default: cfg.Solver.Dissipation,
		apply:   func(cfg *config.Config, v float64) { cfg.Solver.Dissipation = v },
	}}}
}

// DefaultVector returns the starting point in raw units.
func (pv *ParamVector) DefaultVector() []float64 {
	return pv.each(nil, func(s ParamSpec, _ float64) float64 { return s.Default })
}

// Normalize maps raw values to unit coordinates.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	return pv.each(raw, ParamSpec.unit)
}

// Denormalize maps unit coordinates back to raw values.
func (pv *ParamVector) Denormalize(u []float64) []float64 {
	return pv.each(u, ParamSpec.fromUnit)
}

// Clamp limits raw values to their search intervals.
func (pv *ParamVector) Clamp(raw []float64) []float64 {
	return pv.each(raw, ParamSpec.clamp)
}

// ApplyToConfig writes clamped raw values into cfg, in Specs order.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, raw []float64) {
	for i, v := range pv.Clamp(raw) {
		pv.Specs[i].apply(cfg, v)
	}
}

func (pv *ParamVector) each(in []float64, fn func(ParamSpec, float64) float64) []float64 {
	out := make([]float64, len(pv.Specs))
	for i, s := range pv.Specs {
		var v float64
		if in != nil {
			v = in[i]
		}
		out[i] = fn(s, v)
	}
	return out
}
