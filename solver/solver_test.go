package solver

import (
	"math"
	"sync/atomic"
	"testing"

	"github.com/pthm-cable/transitflow/field"
)

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

func TestAdvectZeroVelocityIsIdentity(t *testing.T) {
	src := field.New(6, 5, 1)
	vel := field.New(6, 5, 2)
	dst := field.New(6, 5, 1)
	for j := 1; j <= 5; j++ {
		for i := 1; i <= 6; i++ {
			src.Set(i, j, 0, float32(i*10+j))
		}
	}

	Advect(nil, dst, src, vel, 1, BoundaryZero)

	for j := 1; j <= 5; j++ {
		for i := 1; i <= 6; i++ {
			if dst.At(i, j, 0) != src.At(i, j, 0) {
				t.Fatalf("cell (%d,%d): expected %f, got %f", i, j, src.At(i, j, 0), dst.At(i, j, 0))
			}
		}
	}
}

func TestAdvectClampsDeparturePoint(t *testing.T) {
	// M=N=4, dt=1. A velocity of u=1 at (2,2) gives x = 2 - 4 = -2, which is
	// pinned to 0.5: halfway between the ring cell (0,2) and (1,2).
	src := field.New(4, 4, 1)
	vel := field.New(4, 4, 2)
	dst := field.New(4, 4, 1)

	src.Set(0, 2, 0, 2) // ring
	src.Set(1, 2, 0, 8)
	src.Set(2, 2, 0, 50)
	src.Set(3, 1, 0, 7)
	src.Set(3, 4, 0, 4)
	src.Set(3, 5, 0, 10) // ring
	vel.Set(2, 2, 0, 1)

	// v=-2 at (3,1) gives y = 1 + 8 = 9, pinned to 4.5.
	vel.Set(3, 1, 1, -2)

	Advect(nil, dst, src, vel, 1, BoundaryZero)

	if got := dst.At(2, 2, 0); got != 5 {
		t.Errorf("expected clamped sample 0.5*2 + 0.5*8 = 5 at (2,2), got %f", got)
	}
	if got := dst.At(3, 1, 0); got != 7 {
		t.Errorf("expected clamped sample 0.5*4 + 0.5*10 = 7 at (3,1), got %f", got)
	}
	if got := dst.At(1, 2, 0); got != 8 {
		t.Errorf("expected untouched cell (1,2) to keep 8, got %f", got)
	}
}

func TestAdvectNaNDepartureContaminatesCell(t *testing.T) {
	src := field.New(4, 4, 1)
	vel := field.New(4, 4, 2)
	dst := field.New(4, 4, 1)

	src.Fill(3)
	src.Set(0, 3, 0, 2) // ring
	src.Set(1, 3, 0, 6)
	vel.Set(2, 2, 1, float32(math.NaN()))
	// An infinite departure point is still pinned by the clamp.
	vel.Set(3, 3, 0, float32(math.Inf(1)))

	Advect(nil, dst, src, vel, 1, BoundaryZero)

	if got := dst.At(2, 2, 0); !math.IsNaN(float64(got)) {
		t.Errorf("expected NaN at (2,2), got %f", got)
	}
	if got := dst.At(3, 3, 0); got != 4 {
		t.Errorf("expected pinned sample 0.5*2 + 0.5*6 = 4 at (3,3), got %f", got)
	}
	if got := dst.At(2, 1, 0); got != 3 {
		t.Errorf("expected (2,1) to keep 3, got %f", got)
	}
}

func TestAdvectBackwardTraceSign(t *testing.T) {
	// u*dt*M = 1 cell: dst(i,j) = src(i-1,j), so content moves toward +x.
	const m = 10
	src := field.New(m, m, 1)
	vel := field.New(m, m, 2)
	dst := field.New(m, m, 1)
	src.Set(4, 5, 0, 1)
	for j := 0; j <= m+1; j++ {
		for i := 0; i <= m+1; i++ {
			vel.Set(i, j, 0, 1.0/m)
		}
	}

	Advect(nil, dst, src, vel, 1, BoundaryOpen)

	if got := dst.At(5, 5, 0); !near(float64(got), 1, 1e-5) {
		t.Errorf("expected spike at (5,5), got %f", got)
	}
	if got := dst.At(4, 5, 0); !near(float64(got), 0, 1e-5) {
		t.Errorf("expected (4,5) emptied, got %f", got)
	}
}

func TestAdvectVectorTransportsBothComponents(t *testing.T) {
	vel := field.New(8, 8, 2)
	dst := field.New(8, 8, 2)
	for j := 0; j <= 9; j++ {
		for i := 0; i <= 9; i++ {
			vel.Set(i, j, 0, 0.125) // one cell per step
			vel.Set(i, j, 1, 0)
		}
	}
	vel.Set(3, 3, 1, 0.5)

	Advect(nil, dst, vel, vel, 1, BoundaryOpen)

	if got := dst.At(4, 3, 1); !near(float64(got), 0.5, 1e-6) {
		t.Errorf("expected v=0.5 carried to (4,3), got %f", got)
	}
	if got := dst.At(4, 3, 0); !near(float64(got), 0.125, 1e-6) {
		t.Errorf("expected u preserved at (4,3), got %f", got)
	}
}

func TestAdvectRejectsAliasing(t *testing.T) {
	vel := field.New(4, 4, 2)
	defer func() {
		if recover() == nil {
			t.Error("expected panic when dst aliases src")
		}
	}()
	Advect(nil, vel, vel, vel, 1, BoundaryOpen)
}

func TestJacobiZeroCoefficientIsIdentity(t *testing.T) {
	w0 := field.New(5, 5, 2)
	buf := NewPair(5, 5, 2)
	for j := 1; j <= 5; j++ {
		for i := 1; i <= 5; i++ {
			w0.Set(i, j, 0, float32(i-j))
			w0.Set(i, j, 1, float32(i*j))
		}
	}
	buf.Out().Fill(42)

	Relax(nil, buf, w0, 0, 1, 7, BoundaryOpen)

	for j := 1; j <= 5; j++ {
		for i := 1; i <= 5; i++ {
			for c := 0; c < 2; c++ {
				if buf.Out().At(i, j, c) != w0.At(i, j, c) {
					t.Fatalf("(%d,%d,%d): expected %f, got %f", i, j, c, w0.At(i, j, c), buf.Out().At(i, j, c))
				}
			}
		}
	}
}

func TestRelaxFlipsOncePerSweep(t *testing.T) {
	buf := NewPair(3, 3, 1)
	w0 := field.New(3, 3, 1)

	Relax(nil, buf, w0, 1, 5, 3, BoundaryOpen)
	if buf.Idx != 1 {
		t.Errorf("expected odd sweep count to leave index 1, got %d", buf.Idx)
	}
	Relax(nil, buf, w0, 1, 5, 4, BoundaryOpen)
	if buf.Idx != 1 {
		t.Errorf("expected even sweep count to keep index 1, got %d", buf.Idx)
	}
}

func TestRelaxConservesMassWithOpenBoundary(t *testing.T) {
	const m = 10
	w0 := field.New(m, m, 1)
	w0.Set(5, 5, 0, 100)
	buf := NewPair(m, m, 1)
	buf.Out().CopyFrom(w0)

	// a = dt * diffusivity * M * N = 1 * 0.01 * 100
	a := float32(1)
	Relax(nil, buf, w0, a, 1+4*a, 20, BoundaryOpen)

	out := buf.Out()
	if got := out.Sum(0); !near(got, 100, 1e-3) {
		t.Errorf("expected mass 100, got %f", got)
	}
	if out.At(5, 5, 0) >= 100 {
		t.Errorf("expected center to decrease, got %f", out.At(5, 5, 0))
	}
	for _, nb := range [][2]int{{4, 5}, {6, 5}, {5, 4}, {5, 6}} {
		if out.At(nb[0], nb[1], 0) <= 0 {
			t.Errorf("expected positive neighbor at %v, got %f", nb, out.At(nb[0], nb[1], 0))
		}
	}
}

func TestSetBoundaryModes(t *testing.T) {
	f := field.New(3, 3, 2)
	for j := 1; j <= 3; j++ {
		for i := 1; i <= 3; i++ {
			f.Set(i, j, 0, 1)
			f.Set(i, j, 1, 2)
		}
	}

	SetBoundary(f, BoundaryWall)
	if f.At(0, 2, 0) != -1 || f.At(0, 2, 1) != 2 {
		t.Errorf("left wall: expected (-1,2), got (%f,%f)", f.At(0, 2, 0), f.At(0, 2, 1))
	}
	if f.At(2, 4, 0) != 1 || f.At(2, 4, 1) != -2 {
		t.Errorf("top wall: expected (1,-2), got (%f,%f)", f.At(2, 4, 0), f.At(2, 4, 1))
	}

	SetBoundary(f, BoundaryOpen)
	if f.At(4, 1, 0) != 1 || f.At(1, 0, 1) != 2 {
		t.Error("open: expected ring to copy interior")
	}
	if f.At(0, 0, 0) != 1 {
		t.Errorf("open: expected corner average 1, got %f", f.At(0, 0, 0))
	}

	SetBoundary(f, BoundaryZero)
	for _, c := range [][2]int{{0, 0}, {0, 2}, {4, 4}, {2, 0}} {
		if f.At(c[0], c[1], 0) != 0 || f.At(c[0], c[1], 1) != 0 {
			t.Errorf("zero: expected ring cell %v cleared", c)
		}
	}
	if f.At(2, 2, 0) != 1 {
		t.Error("zero: interior must be untouched")
	}
}

func TestParseBoundaryMode(t *testing.T) {
	for _, s := range []string{"open", "wall", "zero"} {
		mode, err := ParseBoundaryMode(s)
		if err != nil {
			t.Fatalf("parse %q: %v", s, err)
		}
		if mode.String() != s {
			t.Errorf("expected round trip %q, got %q", s, mode.String())
		}
	}
	if _, err := ParseBoundaryMode("periodic"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestProjectionReducesDivergence(t *testing.T) {
	const m = 16
	vel := field.New(m, m, 2)
	vel.Set(8, 8, 0, 1)
	vel.Set(5, 11, 1, -0.5)

	pj := NewProjector(m, m, 20, BoundaryOpen)
	before := field.New(m, m, 1)
	Divergence(nil, before, vel, BoundaryOpen)

	dst := field.New(m, m, 2)
	pj.Project(nil, dst, vel)

	after := field.New(m, m, 1)
	Divergence(nil, after, dst, BoundaryOpen)

	b, a := before.Norm2(0), after.Norm2(0)
	if b == 0 {
		t.Fatal("test field has no divergence")
	}
	if a >= b {
		t.Errorf("expected divergence L2 to drop, before=%g after=%g", b, a)
	}
}

func TestProjectionOfZeroFieldStaysZero(t *testing.T) {
	vel := field.New(6, 6, 2)
	dst := field.New(6, 6, 2)
	pj := NewProjector(6, 6, 10, BoundaryWall)
	pj.Project(nil, dst, vel)

	for i, v := range dst.Data() {
		if v != 0 {
			t.Fatalf("expected zero at %d, got %f", i, v)
		}
	}
}

func TestPoolCoversEveryRowOnce(t *testing.T) {
	p := NewPool(4)
	defer p.Close()

	var hits [101]int32
	p.Rows(1, 100, func(start, end int) {
		for j := start; j < end; j++ {
			atomic.AddInt32(&hits[j], 1)
		}
	})

	for j := 1; j <= 100; j++ {
		if hits[j] != 1 {
			t.Errorf("row %d visited %d times", j, hits[j])
		}
	}
	if hits[0] != 0 {
		t.Error("row 0 must not be visited")
	}
}

func TestParallelPassesMatchInline(t *testing.T) {
	const m, n = 48, 64
	vel := field.New(m, n, 2)
	den := field.New(m, n, 1)
	for j := 1; j <= n; j++ {
		for i := 1; i <= m; i++ {
			vel.Set(i, j, 0, float32(math.Sin(float64(i)*0.3))*0.02)
			vel.Set(i, j, 1, float32(math.Cos(float64(j)*0.2))*0.02)
			den.Set(i, j, 0, float32((i*7+j*3)%11))
		}
	}

	run := func(p *Pool) (*field.Field, *field.Field) {
		d := field.New(m, n, 1)
		Advect(p, d, den, vel, 0.5, BoundaryOpen)
		buf := NewPair(m, n, 1)
		buf.Out().CopyFrom(d)
		Relax(p, buf, d, 0.3, 2.2, 5, BoundaryOpen)

		v := field.New(m, n, 2)
		NewProjector(m, n, 8, BoundaryWall).Project(p, v, vel)
		return buf.Out(), v
	}

	pool := NewPool(4)
	defer pool.Close()

	d1, v1 := run(nil)
	d2, v2 := run(pool)
	for i := range d1.Data() {
		if d1.Data()[i] != d2.Data()[i] {
			t.Fatalf("density mismatch at %d: %f vs %f", i, d1.Data()[i], d2.Data()[i])
		}
	}
	for i := range v1.Data() {
		if v1.Data()[i] != v2.Data()[i] {
			t.Fatalf("velocity mismatch at %d: %f vs %f", i, v1.Data()[i], v2.Data()[i])
		}
	}
}
