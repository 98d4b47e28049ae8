package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pthm-cable/transitflow/engine"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot holds the complete field state of one engine for replay.
// Buffers include the boundary ring and use the engine's i + (M+2)*j layout.
type Snapshot struct {
	Version int   `json:"version"`
	Seed    int64 `json:"seed"`

	M int `json:"m"`
	N int `json:"n"`

	Frame int64 `json:"frame"`

	Density  []float32 `json:"density"`
	Velocity []float32 `json:"velocity"` // Interleaved (u, v)
}

// Capture copies the authoritative buffers of e into a new snapshot.
func Capture(e *engine.Engine, frame, seed int64) *Snapshot {
	m, n := e.Dims()
	s := &Snapshot{
		Version:  SnapshotVersion,
		Seed:     seed,
		M:        m,
		N:        n,
		Frame:    frame,
		Density:  make([]float32, e.Cells()),
		Velocity: make([]float32, 2*e.Cells()),
	}
	e.Density().CopyTo(s.Density)
	e.Velocity().CopyTo(s.Velocity)
	return s
}

// Validate checks the snapshot against its own header.
func (s *Snapshot) Validate() error {
	if s.Version != SnapshotVersion {
		return fmt.Errorf("unsupported snapshot version %d", s.Version)
	}
	if s.M <= 0 || s.N <= 0 {
		return fmt.Errorf("invalid snapshot grid %dx%d", s.M, s.N)
	}
	cells := (s.M + 2) * (s.N + 2)
	if len(s.Density) != cells {
		return fmt.Errorf("density length %d, want %d", len(s.Density), cells)
	}
	if len(s.Velocity) != 2*cells {
		return fmt.Errorf("velocity length %d, want %d", len(s.Velocity), 2*cells)
	}
	return nil
}

// Restore loads the snapshot into e. The engine grid must match.
func (s *Snapshot) Restore(e *engine.Engine) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if m, n := e.Dims(); m != s.M || n != s.N {
		return fmt.Errorf("snapshot grid %dx%d does not match engine %dx%d", s.M, s.N, m, n)
	}
	e.LoadState(s.Density, s.Velocity)
	return nil
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d.json", snapshot.Frame)
	path := filepath.Join(dir, name)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk and validates it.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if err := snapshot.Validate(); err != nil {
		return nil, fmt.Errorf("invalid snapshot %s: %w", path, err)
	}

	return &snapshot, nil
}
