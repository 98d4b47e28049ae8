package solver

import (
	"github.com/pthm-cable/transitflow/field"
)

// Buffers is a ping-pong pair. Out is the authoritative slot, Next is the
// slot the following pass writes, and Flip swaps the two roles.
type Buffers interface {
	Out() *field.Field
	Next() *field.Field
	Flip()
}

// JacobiSweep performs one Jacobi iteration of
//
//	(1+4a) w(i,j) - a * sum(4-neighbors of w) = w0(i,j)
//
// reading the previous iterate from src and writing the new one to dst:
//
//	dst(i,j) = (w0(i,j) + a*(src(i+1,j)+src(i-1,j)+src(i,j+1)+src(i,j-1))) / c
//
// dst must not alias src or w0. All components are updated.
func JacobiSweep(p *Pool, dst, src, w0 *field.Field, a, c float32, bnd BoundaryMode) {
	mustMatch("jacobi", dst, src)
	mustMatch("jacobi", dst, w0)
	mustNotAlias("jacobi", dst, src)
	mustNotAlias("jacobi", dst, w0)

	m, n := src.M, src.N
	k := src.Arity()
	stride := src.Stride()
	rowStep := k * stride
	w := src.Data()
	b := w0.Data()
	out := dst.Data()
	invC := 1 / c

	p.Rows(1, n, func(j0, j1 int) {
		for j := j0; j < j1; j++ {
			base := k * (1 + stride*j)
			for i := 0; i < m*k; i++ {
				o := base + i
				nb := w[o+k] + w[o-k] + w[o+rowStep] + w[o-rowStep]
				out[o] = (b[o] + a*nb) * invC
			}
		}
	})

	SetBoundary(dst, bnd)
}

// Relax runs a fixed number of Jacobi sweeps against the frozen right-hand
// side w0, using buf.Out() as the initial guess. Each sweep writes buf.Next()
// and flips, so after Relax returns buf.Out() holds the final iterate.
//
// There is no convergence test: cost per frame is bounded by sweeps, and
// accuracy degrades gracefully as sweeps decreases.
func Relax(p *Pool, buf Buffers, w0 *field.Field, a, c float32, sweeps int, bnd BoundaryMode) {
	for k := 0; k < sweeps; k++ {
		JacobiSweep(p, buf.Next(), buf.Out(), w0, a, c, bnd)
		buf.Flip()
	}
}

// Pair is a minimal Buffers implementation over two fields.
type Pair struct {
	Slots [2]*field.Field
	Idx   int
}

// NewPair allocates two zeroed fields of the given shape.
func NewPair(m, n, arity int) *Pair {
	return &Pair{Slots: [2]*field.Field{field.New(m, n, arity), field.New(m, n, arity)}}
}

// Out returns the authoritative slot.
func (p *Pair) Out() *field.Field { return p.Slots[p.Idx] }

// Next returns the write slot.
func (p *Pair) Next() *field.Field { return p.Slots[1-p.Idx] }

// Flip swaps the slots.
func (p *Pair) Flip() { p.Idx = 1 - p.Idx }

// Reset zeroes both slots and the rotation index.
func (p *Pair) Reset() {
	p.Slots[0].Zero()
	p.Slots[1].Zero()
	p.Idx = 0
}
