package field

import (
	"math"

	"gonum.org/v1/gonum/blas/blas32"
)

// interiorRow returns a strided vector over component c of row j's interior cells.
func (f *Field) interiorRow(j, c int) blas32.Vector {
	start := f.Index(1, j) + f.component(c)
	return blas32.Vector{
		N:    f.M,
		Inc:  f.arity,
		Data: f.data[start : start+(f.M-1)*f.arity+1],
	}
}

// Sum returns the sum of component c over interior cells.
func (f *Field) Sum(c int) float64 {
	var total float64
	for j := 1; j <= f.N; j++ {
		row := f.interiorRow(j, c)
		for k := 0; k < row.N; k++ {
			total += float64(row.Data[k*row.Inc])
		}
	}
	return total
}

// Norm2 returns the L2 norm of component c over interior cells.
func (f *Field) Norm2(c int) float64 {
	var sq float64
	for j := 1; j <= f.N; j++ {
		n := float64(blas32.Nrm2(f.interiorRow(j, c)))
		sq += n * n
	}
	return math.Sqrt(sq)
}

// VectorNorm2 returns the L2 norm over all components of interior cells.
func (f *Field) VectorNorm2() float64 {
	var sq float64
	for c := 0; c < f.arity; c++ {
		n := f.Norm2(c)
		sq += n * n
	}
	return math.Sqrt(sq)
}

// MaxAbs returns the largest absolute value of component c over interior cells.
func (f *Field) MaxAbs(c int) float32 {
	var best float32
	for j := 1; j <= f.N; j++ {
		row := f.interiorRow(j, c)
		k := blas32.Iamax(row)
		if k < 0 {
			continue
		}
		v := row.Data[k*row.Inc]
		if v < 0 {
			v = -v
		}
		if v > best {
			best = v
		}
	}
	return best
}

// Interior appends component c of every interior cell to dst in row-major order.
func (f *Field) Interior(dst []float64, c int) []float64 {
	for j := 1; j <= f.N; j++ {
		row := f.interiorRow(j, c)
		for k := 0; k < row.N; k++ {
			dst = append(dst, float64(row.Data[k*row.Inc]))
		}
	}
	return dst
}
