package engine

import (
	"fmt"

	"github.com/pthm-cable/transitflow/solver"
)

// DissipationMode selects how density fades over time.
type DissipationMode uint8

const (
	// DissipationDecay multiplies density by the dissipation factor once per
	// density step, after diffusion.
	DissipationDecay DissipationMode = iota
	// DissipationFolded folds the factor into the diffusion coefficients:
	// a = dt*dissipation*diffusivity*M*N, c = 1 + 4a/dissipation.
	DissipationFolded
)

// ParseDissipationMode maps a config string to a DissipationMode.
func ParseDissipationMode(s string) (DissipationMode, error) {
	switch s {
	case "", "decay":
		return DissipationDecay, nil
	case "folded":
		return DissipationFolded, nil
	}
	return DissipationDecay, fmt.Errorf("unknown dissipation mode %q", s)
}

func (d DissipationMode) String() string {
	switch d {
	case DissipationDecay:
		return "decay"
	case DissipationFolded:
		return "folded"
	}
	return fmt.Sprintf("DissipationMode(%d)", d)
}

// Params holds the per-run simulation parameters. The engine trusts them:
// callers validate before construction (see config.Validate).
type Params struct {
	DT          float32
	Diffusivity float32
	Viscosity   float32
	Dissipation float32
	// SourceScale multiplies injected sources on top of DT.
	SourceScale     float32
	DissipationMode DissipationMode

	// Fixed Jacobi sweep counts. More sweeps cost linearly more time and
	// move the result closer to the exact implicit solve.
	DiffusionSweeps int
	ViscositySweeps int
	PressureSweeps  int

	Boundary solver.BoundaryMode

	// Workers for data-parallel passes (<= 0 uses GOMAXPROCS, 1 is sequential).
	Workers int
}

// DefaultParams returns the stock transit-view parameters.
func DefaultParams() Params {
	return Params{
		DT:              1,
		Diffusivity:     1e-7,
		Viscosity:       4e-4,
		Dissipation:     0.9,
		SourceScale:     1,
		DissipationMode: DissipationDecay,
		DiffusionSweeps: 20,
		ViscositySweeps: 20,
		PressureSweeps:  40,
		Boundary:        solver.BoundaryOpen,
		Workers:         0,
	}
}

// diffusionCoefficients returns the Jacobi (a, c) pair for density.
func (p Params) diffusionCoefficients(m, n int) (a, c float32) {
	mn := float32(m) * float32(n)
	if p.DissipationMode == DissipationFolded {
		a = p.DT * p.Dissipation * p.Diffusivity * mn
		return a, 1 + 4*a/p.Dissipation
	}
	a = p.DT * p.Diffusivity * mn
	return a, 1 + 4*a
}

// viscosityCoefficients returns the Jacobi (a, c) pair for velocity.
func (p Params) viscosityCoefficients(m, n int) (a, c float32) {
	a = p.DT * p.Viscosity * float32(m) * float32(n)
	return a, 1 + 4*a
}
