// Package engine sequences the solver stages for one simulation instance and
// owns every buffer they read and write.
package engine

import (
	"fmt"
	"log/slog"

	"github.com/pthm-cable/transitflow/field"
	"github.com/pthm-cable/transitflow/solver"
)

// Phase names reported to a PhaseTimer.
const (
	PhaseInject  = "inject"
	PhaseAdvect  = "advect"
	PhaseDiffuse = "diffuse"
	PhaseProject = "project"
	PhaseDecay   = "decay"
)

// PhaseTimer receives a call at the start of each solver stage.
type PhaseTimer interface {
	StartPhase(phase string)
}

// bufferSet is the storage for one physical quantity: two ping-pong slots, a
// rotation index naming the authoritative slot, and the frozen pre-diffusion
// state used as the Jacobi right-hand side.
type bufferSet struct {
	slots   [2]*field.Field
	initial *field.Field
	out     int
}

func newBufferSet(m, n, arity int) *bufferSet {
	return &bufferSet{
		slots:   [2]*field.Field{field.New(m, n, arity), field.New(m, n, arity)},
		initial: field.New(m, n, arity),
	}
}

func (b *bufferSet) Out() *field.Field  { return b.slots[b.out] }
func (b *bufferSet) Next() *field.Field { return b.slots[1-b.out] }
func (b *bufferSet) Flip()              { b.out = 1 - b.out }

func (b *bufferSet) reset() {
	b.slots[0].Zero()
	b.slots[1].Zero()
	b.initial.Zero()
	b.out = 0
}

// inject writes out + scale*src into the next slot and makes it authoritative.
func (b *bufferSet) inject(src []float32, scale float32) {
	next := b.Next()
	next.CopyFrom(b.Out())
	next.AddScaled(scale, src)
	b.Flip()
}

// Engine owns the density and velocity buffers of a fixed M x N grid and
// exposes the per-frame step API. Steps are synchronous: each public method
// runs to completion before returning. Engine is not safe for concurrent use.
type Engine struct {
	m, n   int
	params Params

	density   *bufferSet
	velocity  *bufferSet
	projector *solver.Projector
	diag      *field.Field

	pool  *solver.Pool
	timer PhaseTimer

	velocitySteps int64
	densitySteps  int64
}

// New allocates all buffers for an m x n grid. Buffers are zero-filled and
// never resized.
func New(m, n int, p Params) *Engine {
	if m <= 0 || n <= 0 {
		panic(fmt.Sprintf("engine: invalid grid %dx%d", m, n))
	}

	e := &Engine{
		m:         m,
		n:         n,
		params:    p,
		density:   newBufferSet(m, n, 1),
		velocity:  newBufferSet(m, n, 2),
		projector: solver.NewProjector(m, n, p.PressureSweeps, p.Boundary),
		diag:      field.New(m, n, 1),
		pool:      solver.NewPool(p.Workers),
	}

	slog.Debug("engine allocated",
		"m", m,
		"n", n,
		"workers", e.pool.Workers(),
		"boundary", p.Boundary.String(),
		"dissipation_mode", p.DissipationMode.String(),
	)

	return e
}

// Close stops the worker pool.
func (e *Engine) Close() {
	e.pool.Close()
}

// SetPhaseTimer installs a timer notified at every stage boundary (nil disables).
func (e *Engine) SetPhaseTimer(t PhaseTimer) {
	e.timer = t
}

// Dims returns the interior grid dimensions.
func (e *Engine) Dims() (m, n int) { return e.m, e.n }

// Params returns the active parameters.
func (e *Engine) Params() Params { return e.params }

// SetParams replaces the parameters between frames. The grid size is fixed.
// A changed worker count replaces the pool.
func (e *Engine) SetParams(p Params) {
	if p.Workers != e.params.Workers {
		e.pool.Close()
		e.pool = solver.NewPool(p.Workers)
		slog.Debug("engine pool resized", "workers", e.pool.Workers())
	}
	e.params = p
	e.projector.Sweeps = p.PressureSweeps
	e.projector.Boundary = p.Boundary
}

// Cells returns the buffer length of a scalar field, (M+2)(N+2).
func (e *Engine) Cells() int { return (e.m + 2) * (e.n + 2) }

func (e *Engine) phase(name string) {
	if e.timer != nil {
		e.timer.StartPhase(name)
	}
}

func (e *Engine) sourceScale() float32 {
	return e.params.DT * e.params.SourceScale
}

// InjectDensity adds src, scaled by dt and the source scale, to the current
// density. src has length (M+2)(N+2), indexed i + (M+2)*j.
func (e *Engine) InjectDensity(src []float32) {
	if len(src) != e.Cells() {
		panic(fmt.Sprintf("engine: density source length %d, want %d", len(src), e.Cells()))
	}
	e.phase(PhaseInject)
	e.density.inject(src, e.sourceScale())
}

// InjectVelocity adds src, scaled by dt and the source scale, to the current
// velocity. src is interleaved (u,v) with length 2(M+2)(N+2).
func (e *Engine) InjectVelocity(src []float32) {
	if len(src) != 2*e.Cells() {
		panic(fmt.Sprintf("engine: velocity source length %d, want %d", len(src), 2*e.Cells()))
	}
	e.phase(PhaseInject)
	e.velocity.inject(src, e.sourceScale())
}

// StepVelocity self-advects the velocity, applies viscous diffusion and
// projects the result to be approximately divergence-free.
func (e *Engine) StepVelocity() {
	p := e.params
	v := e.velocity

	e.phase(PhaseAdvect)
	solver.Advect(e.pool, v.Next(), v.Out(), v.Out(), p.DT, p.Boundary)
	v.Flip()

	e.phase(PhaseDiffuse)
	a, c := p.viscosityCoefficients(e.m, e.n)
	v.initial.CopyFrom(v.Out())
	solver.Relax(e.pool, v, v.initial, a, c, p.ViscositySweeps, p.Boundary)

	// Projection must see the otherwise final velocity of this step.
	e.phase(PhaseProject)
	e.projector.Project(e.pool, v.Next(), v.Out())
	v.Flip()

	e.velocitySteps++
}

// StepDensity advects density along the current velocity, diffuses it and
// applies dissipation.
func (e *Engine) StepDensity() {
	p := e.params
	d := e.density

	e.phase(PhaseAdvect)
	solver.Advect(e.pool, d.Next(), d.Out(), e.velocity.Out(), p.DT, p.Boundary)
	d.Flip()

	e.phase(PhaseDiffuse)
	a, c := p.diffusionCoefficients(e.m, e.n)
	d.initial.CopyFrom(d.Out())
	solver.Relax(e.pool, d, d.initial, a, c, p.DiffusionSweeps, p.Boundary)

	if p.DissipationMode == DissipationDecay && p.Dissipation != 1 {
		e.phase(PhaseDecay)
		d.Out().Scale(p.Dissipation)
	}

	e.densitySteps++
}

// Density returns a read-only view of the authoritative density buffer.
// It is valid until the next injection, step or reset.
func (e *Engine) Density() field.View { return field.NewView(e.density.Out()) }

// Velocity returns a read-only view of the authoritative velocity buffer.
func (e *Engine) Velocity() field.View { return field.NewView(e.velocity.Out()) }

// DivergenceNorm returns the L2 norm of the scaled divergence of the current
// velocity. It uses its own scratch and does not disturb step state.
func (e *Engine) DivergenceNorm() float64 {
	solver.Divergence(nil, e.diag, e.velocity.Out(), e.params.Boundary)
	return e.diag.Norm2(0)
}

// Steps returns the number of completed velocity and density steps.
func (e *Engine) Steps() (velocity, density int64) {
	return e.velocitySteps, e.densitySteps
}

// Reset zeroes every buffer and rotation index.
func (e *Engine) Reset() {
	e.density.reset()
	e.velocity.reset()
	e.projector.Reset()
	e.diag.Zero()
	e.velocitySteps = 0
	e.densitySteps = 0
}

// LoadState overwrites the authoritative density and velocity buffers, for
// restoring snapshots. Lengths must match the grid.
func (e *Engine) LoadState(density, velocity []float32) {
	e.density.Out().Load(density)
	e.velocity.Out().Load(velocity)
}
