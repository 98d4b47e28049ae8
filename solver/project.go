package solver

import (
	"math"

	"github.com/pthm-cable/transitflow/field"
)

// Divergence writes the scaled negative divergence of vel into div:
//
//	div(i,j) = -0.5 * (u(i+1,j)-u(i-1,j) + v(i,j+1)-v(i,j-1)) / sqrt(M*N)
//
// The sqrt(M*N) normalization keeps magnitudes comparable across resolutions.
func Divergence(p *Pool, div, vel *field.Field, bnd BoundaryMode) {
	mustScalar("divergence", div)
	mustVector("divergence", vel)
	mustGrid("divergence", div, vel)

	m, n := vel.M, vel.N
	stride := vel.Stride()
	u := vel.Data()
	out := div.Data()
	scale := float32(-0.5 / math.Sqrt(float64(m)*float64(n)))

	p.Rows(1, n, func(j0, j1 int) {
		for j := j0; j < j1; j++ {
			for i := 1; i <= m; i++ {
				c := i + stride*j
				du := u[2*(c+1)] - u[2*(c-1)]
				dv := u[2*(c+stride)+1] - u[2*(c-stride)+1]
				out[c] = scale * (du + dv)
			}
		}
	})

	SetBoundary(div, bnd)
}

// SubtractGradient writes vel minus the scaled pressure gradient into dst:
//
//	u -= 0.5*M*(p(i+1,j)-p(i-1,j))
//	v -= 0.5*N*(p(i,j+1)-p(i,j-1))
func SubtractGradient(p *Pool, dst, vel, pressure *field.Field, bnd BoundaryMode) {
	mustMatch("gradient", dst, vel)
	mustVector("gradient", vel)
	mustScalar("gradient", pressure)
	mustGrid("gradient", vel, pressure)
	mustNotAlias("gradient", dst, vel)

	m, n := vel.M, vel.N
	stride := vel.Stride()
	u := vel.Data()
	pr := pressure.Data()
	out := dst.Data()
	hx := 0.5 * float32(m)
	hy := 0.5 * float32(n)

	p.Rows(1, n, func(j0, j1 int) {
		for j := j0; j < j1; j++ {
			for i := 1; i <= m; i++ {
				c := i + stride*j
				out[2*c] = u[2*c] - hx*(pr[c+1]-pr[c-1])
				out[2*c+1] = u[2*c+1] - hy*(pr[c+stride]-pr[c-stride])
			}
		}
	})

	SetBoundary(dst, bnd)
}

// Projector holds the scratch buffers of the pressure projection.
type Projector struct {
	Div      *field.Field
	Pressure *Pair
	Sweeps   int
	Boundary BoundaryMode
}

// NewProjector allocates divergence and pressure scratch for an m x n grid.
func NewProjector(m, n, sweeps int, bnd BoundaryMode) *Projector {
	return &Projector{
		Div:      field.New(m, n, 1),
		Pressure: NewPair(m, n, 1),
		Sweeps:   sweeps,
		Boundary: bnd,
	}
}

// Project makes vel approximately divergence-free and writes the result to
// dst. Phases run in strict order: divergence, pressure solve from zero with
// a=1 c=4, gradient subtraction.
func (pj *Projector) Project(p *Pool, dst, vel *field.Field) {
	Divergence(p, pj.Div, vel, pj.Boundary)

	pj.Pressure.Reset()
	Relax(p, pj.Pressure, pj.Div, 1, 4, pj.Sweeps, pj.Boundary)

	SubtractGradient(p, dst, vel, pj.Pressure.Out(), pj.Boundary)
}

// Reset clears the scratch buffers.
func (pj *Projector) Reset() {
	pj.Div.Zero()
	pj.Pressure.Reset()
}
