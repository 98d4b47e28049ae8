package solver

import (
	"fmt"

	"github.com/pthm-cable/transitflow/field"
)

// BoundaryMode selects how the one-cell ring around the interior is filled
// after each pass.
type BoundaryMode uint8

const (
	// BoundaryOpen copies the adjacent interior cell into the ring
	// (zero normal gradient). Diffusion conserves interior mass exactly.
	BoundaryOpen BoundaryMode = iota
	// BoundaryWall reflects: scalars copy, the wall-normal velocity
	// component is negated.
	BoundaryWall
	// BoundaryZero holds the ring at zero.
	BoundaryZero
)

// ParseBoundaryMode maps a config string to a BoundaryMode.
func ParseBoundaryMode(s string) (BoundaryMode, error) {
	switch s {
	case "", "open":
		return BoundaryOpen, nil
	case "wall":
		return BoundaryWall, nil
	case "zero":
		return BoundaryZero, nil
	}
	return BoundaryOpen, fmt.Errorf("unknown boundary mode %q", s)
}

func (b BoundaryMode) String() string {
	switch b {
	case BoundaryOpen:
		return "open"
	case BoundaryWall:
		return "wall"
	case BoundaryZero:
		return "zero"
	}
	return fmt.Sprintf("BoundaryMode(%d)", b)
}

// SetBoundary fills the ring of f according to mode. For vector fields in
// BoundaryWall mode, component 0 is negated on the left/right ring and
// component 1 on the top/bottom ring. Corners average their two ring
// neighbors.
func SetBoundary(f *field.Field, mode BoundaryMode) {
	m, n := f.M, f.N
	d := f.Data()
	k := f.Arity()
	stride := f.Stride()
	idx := func(i, j int) int { return k * (i + stride*j) }

	if mode == BoundaryZero {
		for c := 0; c < k; c++ {
			for i := 0; i <= m+1; i++ {
				d[idx(i, 0)+c] = 0
				d[idx(i, n+1)+c] = 0
			}
			for j := 1; j <= n; j++ {
				d[idx(0, j)+c] = 0
				d[idx(m+1, j)+c] = 0
			}
		}
		return
	}

	for c := 0; c < k; c++ {
		// Sign flips only for the wall-normal component of a vector field.
		sx, sy := float32(1), float32(1)
		if mode == BoundaryWall && k == 2 {
			if c == 0 {
				sx = -1
			} else {
				sy = -1
			}
		}

		for j := 1; j <= n; j++ {
			d[idx(0, j)+c] = sx * d[idx(1, j)+c]
			d[idx(m+1, j)+c] = sx * d[idx(m, j)+c]
		}
		for i := 1; i <= m; i++ {
			d[idx(i, 0)+c] = sy * d[idx(i, 1)+c]
			d[idx(i, n+1)+c] = sy * d[idx(i, n)+c]
		}

		d[idx(0, 0)+c] = 0.5 * (d[idx(1, 0)+c] + d[idx(0, 1)+c])
		d[idx(0, n+1)+c] = 0.5 * (d[idx(1, n+1)+c] + d[idx(0, n)+c])
		d[idx(m+1, 0)+c] = 0.5 * (d[idx(m, 0)+c] + d[idx(m+1, 1)+c])
		d[idx(m+1, n+1)+c] = 0.5 * (d[idx(m, n+1)+c] + d[idx(m+1, n)+c])
	}
}
