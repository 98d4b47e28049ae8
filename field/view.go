package field

import "fmt"

// View is a read-only handle on a field owned by someone else.
// The contents are only stable until the owner's next mutation.
type View struct {
	f *Field
}

// NewView wraps f.
func NewView(f *Field) View { return View{f: f} }

// Dims returns the interior dimensions.
func (v View) Dims() (m, n int) { return v.f.M, v.f.N }

// Arity returns the number of components per cell.
func (v View) Arity() int { return v.f.arity }

// Len returns the length of the underlying buffer.
func (v View) Len() int { return len(v.f.data) }

// At returns component c at (i,j).
func (v View) At(i, j, c int) float32 { return v.f.At(i, j, c) }

// Sum returns the interior sum of component c.
func (v View) Sum(c int) float64 { return v.f.Sum(c) }

// Norm2 returns the interior L2 norm of component c.
func (v View) Norm2(c int) float64 { return v.f.Norm2(c) }

// MaxAbs returns the largest interior magnitude of component c.
func (v View) MaxAbs(c int) float32 { return v.f.MaxAbs(c) }

// VectorNorm2 returns the interior L2 norm over all components.
func (v View) VectorNorm2() float64 { return v.f.VectorNorm2() }

// Interior appends component c of every interior cell to dst as float64.
func (v View) Interior(dst []float64, c int) []float64 { return v.f.Interior(dst, c) }

// CopyTo copies the full buffer, ring included, into dst.
func (v View) CopyTo(dst []float32) {
	if len(dst) != len(v.f.data) {
		panic(fmt.Sprintf("field: copy length %d, want %d", len(dst), len(v.f.data)))
	}
	copy(dst, v.f.data)
}

// Raw exposes the underlying buffer for zero-copy consumers such as texture
// uploads. Callers must not write to it.
func (v View) Raw() []float32 { return v.f.data }
