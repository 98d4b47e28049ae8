// Package components defines ECS components for source emitters.
package components

// Position is an emitter's location in frame coordinates. The cell under an
// emitter is (floor(X), floor(Y)); interior cells span [1, M+1) x [1, N+1).
type Position struct {
	X, Y float32
}

// Heading is an emitter's velocity in cells per frame.
type Heading struct {
	VX, VY float32
}

// Emission describes what an emitter writes into the source arrays.
type Emission struct {
	Density float32 // Density source at the emitter cell
	Gain    float32 // Velocity source = heading in domain units * Gain
}

// Track identifies the vehicle an emitter stands for. IDs are stable across
// replay keyframes.
type Track struct {
	ID int
}
