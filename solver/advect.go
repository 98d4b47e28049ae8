// Package solver implements the stencil passes of a stable-fluids solver:
// semi-Lagrangian advection, Jacobi relaxation and pressure projection.
// Every pass reads only its inputs and writes only its destination, so the
// rows of a pass can run in parallel between barriers.
package solver

import (
	"math"

	"github.com/pthm-cable/transitflow/field"
)

var nan = float32(math.NaN())

// Advect writes into dst the backward-traced sample of src along vel.
//
// For each interior cell the departure point is
// (i - dt*M*u(i,j), j - dt*N*v(i,j)), clamped to [0.5, M+0.5] x [0.5, N+0.5]
// so particles leaving the domain are pinned to the ring. src is sampled
// bilinearly there. A NaN departure point writes NaN to every component of
// the cell. All components of src are transported. src and vel may be
// the same field (self-advection); dst must be distinct from both.
func Advect(p *Pool, dst, src, vel *field.Field, dt float32, bnd BoundaryMode) {
	mustMatch("advect", dst, src)
	mustVector("advect", vel)
	mustGrid("advect", src, vel)
	mustNotAlias("advect", dst, src)
	mustNotAlias("advect", dst, vel)

	m, n := src.M, src.N
	k := src.Arity()
	stride := src.Stride()
	s := src.Data()
	u := vel.Data()
	out := dst.Data()

	dtM := dt * float32(m)
	dtN := dt * float32(n)
	maxX := float32(m) + 0.5
	maxY := float32(n) + 0.5

	p.Rows(1, n, func(j0, j1 int) {
		for j := j0; j < j1; j++ {
			for i := 1; i <= m; i++ {
				vi := 2 * (i + stride*j)
				x := float32(i) - dtM*u[vi]
				y := float32(j) - dtN*u[vi+1]
				o := k * (i + stride*j)
				if x != x || y != y {
					// NaN has no cell to sample; contaminate instead of indexing.
					for c := 0; c < k; c++ {
						out[o+c] = nan
					}
					continue
				}
				x = clamp(x, 0.5, maxX)
				y = clamp(y, 0.5, maxY)

				// x, y >= 0.5, so truncation is floor.
				i0 := int(x)
				j0 := int(y)
				s0 := 1 - (x - float32(i0))
				t0 := 1 - (y - float32(j0))
				s1 := 1 - s0
				t1 := 1 - t0

				a := k * (i0 + stride*j0)
				b := a + k
				cc := a + k*stride
				dd := cc + k
				for c := 0; c < k; c++ {
					out[o+c] = t0*(s0*s[a+c]+s1*s[b+c]) + t1*(s0*s[cc+c]+s1*s[dd+c])
				}
			}
		}
	})

	SetBoundary(dst, bnd)
}

func clamp(x, lo, hi float32) float32 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
