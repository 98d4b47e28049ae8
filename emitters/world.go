// Package emitters holds the point sources that drive the fluid. Each emitter
// is an ECS entity standing for one vehicle; once per refresh the set is
// rasterized into the density and velocity source arrays the engine injects.
package emitters

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/mlange-42/ark/ecs"
	"github.com/ojrac/opensimplex-go"

	"github.com/pthm-cable/transitflow/components"
)

// Params configures emitter spawning and live motion.
type Params struct {
	Count        int
	Seed         int64
	Density      float32 // Density source per emitter
	VelocityGain float32
	Speed        float32 // Cells per frame
	NoiseScale   float32 // Spatial frequency of the heading noise
}

// World owns the emitter entities for one M x N grid.
type World struct {
	m, n   int
	params Params

	world  *ecs.World
	mapper *ecs.Map4[
		components.Position,
		components.Heading,
		components.Emission,
		components.Track,
	]
	filter *ecs.Filter4[
		components.Position,
		components.Heading,
		components.Emission,
		components.Track,
	]

	byTrack map[int]ecs.Entity
	nextID  int

	rng   *rand.Rand
	noise opensimplex.Noise
}

// NewWorld creates an empty emitter world for an m x n interior grid.
func NewWorld(m, n int, p Params) *World {
	if m <= 0 || n <= 0 {
		panic(fmt.Sprintf("emitters: invalid grid %dx%d", m, n))
	}
	world := ecs.NewWorld()
	return &World{
		m:      m,
		n:      n,
		params: p,
		world:  world,
		mapper: ecs.NewMap4[
			components.Position,
			components.Heading,
			components.Emission,
			components.Track,
		](world),
		filter: ecs.NewFilter4[
			components.Position,
			components.Heading,
			components.Emission,
			components.Track,
		](world),
		byTrack: make(map[int]ecs.Entity),
		rng:     rand.New(rand.NewSource(p.Seed)),
		noise:   opensimplex.New(p.Seed),
	}
}

// Len returns the number of live emitters.
func (w *World) Len() int { return len(w.byTrack) }

// Dims returns the interior grid size.
func (w *World) Dims() (m, n int) { return w.m, w.n }

// Spawn creates an emitter for track id at (x, y) with heading (vx, vy).
// An existing emitter with the same id is updated instead.
func (w *World) Spawn(id int, x, y, vx, vy float32) ecs.Entity {
	if e, ok := w.byTrack[id]; ok {
		pos, head, _, _ := w.mapper.Get(e)
		*pos = components.Position{X: x, Y: y}
		*head = components.Heading{VX: vx, VY: vy}
		return e
	}

	pos := components.Position{X: x, Y: y}
	head := components.Heading{VX: vx, VY: vy}
	emit := components.Emission{Density: w.params.Density, Gain: w.params.VelocityGain}
	track := components.Track{ID: id}

	e := w.mapper.NewEntity(&pos, &head, &emit, &track)
	w.byTrack[id] = e
	if id >= w.nextID {
		w.nextID = id + 1
	}
	return e
}

// SpawnRandom adds count emitters at uniformly random interior positions
// with random headings at the configured speed.
func (w *World) SpawnRandom(count int) {
	for i := 0; i < count; i++ {
		x := 1 + w.rng.Float32()*float32(w.m)
		y := 1 + w.rng.Float32()*float32(w.n)
		theta := w.rng.Float64() * 2 * math.Pi
		vx := w.params.Speed * float32(math.Cos(theta))
		vy := w.params.Speed * float32(math.Sin(theta))
		w.Spawn(w.nextID, x, y, vx, vy)
	}
	slog.Debug("emitters spawned", "count", count, "total", w.Len())
}

// Remove deletes the emitter for track id. Returns false if none exists.
func (w *World) Remove(id int) bool {
	e, ok := w.byTrack[id]
	if !ok {
		return false
	}
	w.mapper.Remove(e)
	delete(w.byTrack, id)
	return true
}

// Retain removes every emitter whose track id is not in keep.
func (w *World) Retain(keep map[int]struct{}) int {
	// First pass: collect (must complete before modifying)
	var toRemove []int
	query := w.filter.Query()
	for query.Next() {
		_, _, _, track := query.Get()
		if _, ok := keep[track.ID]; !ok {
			toRemove = append(toRemove, track.ID)
		}
	}

	for _, id := range toRemove {
		w.Remove(id)
	}
	return len(toRemove)
}

// Position returns the position of track id.
func (w *World) Position(id int) (x, y float32, ok bool) {
	e, ok := w.byTrack[id]
	if !ok {
		return 0, 0, false
	}
	pos, _, _, _ := w.mapper.Get(e)
	return pos.X, pos.Y, true
}

// cell maps a frame coordinate to a cell index clamped to [0, limit+1].
func cell(x float32, limit int) int {
	i := int(math.Floor(float64(x)))
	if i < 0 {
		return 0
	}
	if i > limit+1 {
		return limit + 1
	}
	return i
}

// Rasterize clears density and velocity and writes every emitter into the
// cell under it. Emitters sharing a cell overwrite each other in query order.
// Velocity sources are in domain units per unit time: a heading of one cell
// per frame along x becomes 1/M. Returns the number of emitters written.
func (w *World) Rasterize(density, velocity []float32) int {
	cells := (w.m + 2) * (w.n + 2)
	if len(density) != cells || len(velocity) != 2*cells {
		panic(fmt.Sprintf("emitters: source lengths %d/%d, want %d/%d",
			len(density), len(velocity), cells, 2*cells))
	}
	clear(density)
	clear(velocity)

	invM := 1 / float32(w.m)
	invN := 1 / float32(w.n)

	written := 0
	query := w.filter.Query()
	for query.Next() {
		pos, head, emit, _ := query.Get()
		i := cell(pos.X, w.m)
		j := cell(pos.Y, w.n)
		idx := i + (w.m+2)*j

		density[idx] = emit.Density
		velocity[2*idx] = head.VX * invM * emit.Gain
		velocity[2*idx+1] = head.VY * invN * emit.Gain
		written++
	}
	return written
}

// Wander advances every emitter one frame along a noise-perturbed heading.
// Emitters reflect off the interior edge and never leave it.
func (w *World) Wander(frame int64) {
	lo := float32(1)
	hiX := float32(w.m+1) - 1e-3
	hiY := float32(w.n+1) - 1e-3
	scale := float64(w.params.NoiseScale)
	speed := w.params.Speed

	query := w.filter.Query()
	for query.Next() {
		pos, head, _, track := query.Get()

		// Turn by up to an eighth of a turn per frame. The noise field drifts
		// with time.
		turn := w.noise.Eval2(float64(pos.X)*scale+float64(track.ID), float64(pos.Y)*scale+float64(frame)*scale)
		theta := math.Atan2(float64(head.VY), float64(head.VX)) + turn*math.Pi/4
		head.VX = speed * float32(math.Cos(theta))
		head.VY = speed * float32(math.Sin(theta))

		pos.X, head.VX = reflect(pos.X+head.VX, head.VX, lo, hiX)
		pos.Y, head.VY = reflect(pos.Y+head.VY, head.VY, lo, hiY)
	}
}

// reflect folds x back into [lo, hi] and flips v when it crossed an edge.
func reflect(x, v, lo, hi float32) (float32, float32) {
	if x < lo {
		x = lo + (lo - x)
		v = -v
	} else if x > hi {
		x = hi - (x - hi)
		v = -v
	}
	// Steps longer than the domain still land inside.
	if x < lo {
		x = lo
	} else if x > hi {
		x = hi
	}
	return x, v
}
