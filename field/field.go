// Package field provides the bordered 2D sample grids the solver operates on.
package field

import (
	"fmt"

	"gonum.org/v1/gonum/blas/blas32"
)

// Field is an (M+2)x(N+2) grid of scalar or 2-vector samples.
// The outer ring of cells (i=0, i=M+1, j=0, j=N+1) is the boundary ring.
// Samples are stored row-major, x fastest, components interleaved.
type Field struct {
	M, N  int
	arity int
	data  []float32
}

// New allocates a zero-filled field with m x n interior cells.
// arity must be 1 (scalar) or 2 (vector).
func New(m, n, arity int) *Field {
	if m <= 0 || n <= 0 {
		panic(fmt.Sprintf("field: invalid dimensions %dx%d", m, n))
	}
	if arity != 1 && arity != 2 {
		panic(fmt.Sprintf("field: unsupported arity %d", arity))
	}
	return &Field{
		M:     m,
		N:     n,
		arity: arity,
		data:  make([]float32, (m+2)*(n+2)*arity),
	}
}

// Arity returns the number of components per cell.
func (f *Field) Arity() int { return f.arity }

// Stride returns the row length in cells (M+2).
func (f *Field) Stride() int { return f.M + 2 }

// Len returns the length of the backing buffer.
func (f *Field) Len() int { return len(f.data) }

// Data returns the backing buffer. Stencil passes index it directly.
func (f *Field) Data() []float32 { return f.data }

// Index returns the buffer offset of component 0 at (i,j).
func (f *Field) Index(i, j int) int {
	if i < 0 || i > f.M+1 || j < 0 || j > f.N+1 {
		panic(fmt.Sprintf("field: index (%d,%d) out of range [0,%d]x[0,%d]", i, j, f.M+1, f.N+1))
	}
	return f.arity * (i + (f.M+2)*j)
}

// At returns component c at (i,j).
func (f *Field) At(i, j, c int) float32 {
	return f.data[f.Index(i, j)+f.component(c)]
}

// Set writes component c at (i,j).
func (f *Field) Set(i, j, c int, v float32) {
	f.data[f.Index(i, j)+f.component(c)] = v
}

// Add accumulates v into component c at (i,j).
func (f *Field) Add(i, j, c int, v float32) {
	f.data[f.Index(i, j)+f.component(c)] += v
}

func (f *Field) component(c int) int {
	if c < 0 || c >= f.arity {
		panic(fmt.Sprintf("field: component %d out of range for arity %d", c, f.arity))
	}
	return c
}

// Fill sets every sample, ring included, to v.
func (f *Field) Fill(v float32) {
	for i := range f.data {
		f.data[i] = v
	}
}

// Zero clears the field.
func (f *Field) Zero() {
	clear(f.data)
}

// Load overwrites the field from a dense buffer of identical layout.
func (f *Field) Load(src []float32) {
	if len(src) != len(f.data) {
		panic(fmt.Sprintf("field: load length %d, want %d", len(src), len(f.data)))
	}
	copy(f.data, src)
}

// CopyFrom overwrites f with the contents of src. Shapes must match.
func (f *Field) CopyFrom(src *Field) {
	f.mustMatch(src)
	blas32.Copy(src.vector(), f.vector())
}

// AddScaled performs f += alpha*src over the whole buffer.
func (f *Field) AddScaled(alpha float32, src []float32) {
	if len(src) != len(f.data) {
		panic(fmt.Sprintf("field: source length %d, want %d", len(src), len(f.data)))
	}
	blas32.Axpy(alpha, blas32.Vector{N: len(src), Inc: 1, Data: src}, f.vector())
}

// Scale multiplies every sample by alpha.
func (f *Field) Scale(alpha float32) {
	blas32.Scal(alpha, f.vector())
}

// SameShape reports whether g has the same dimensions and arity as f.
func (f *Field) SameShape(g *Field) bool {
	return f.M == g.M && f.N == g.N && f.arity == g.arity
}

func (f *Field) mustMatch(g *Field) {
	if !f.SameShape(g) {
		panic(fmt.Sprintf("field: shape mismatch %dx%dx%d vs %dx%dx%d",
			f.M, f.N, f.arity, g.M, g.N, g.arity))
	}
}

func (f *Field) vector() blas32.Vector {
	return blas32.Vector{N: len(f.data), Inc: 1, Data: f.data}
}
