package telemetry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pthm-cable/transitflow/engine"
)

func newTestEngine(m, n int) *engine.Engine {
	p := engine.DefaultParams()
	p.Workers = 1
	return engine.New(m, n, p)
}

func TestSnapshotSaveLoad(t *testing.T) {
	tmpDir := t.TempDir()

	e := newTestEngine(5, 4)
	defer e.Close()

	den := make([]float32, e.Cells())
	vel := make([]float32, 2*e.Cells())
	den[2+7*2] = 42
	vel[2*(3+7*1)] = 0.25
	vel[2*(3+7*1)+1] = -0.5
	e.InjectDensity(den)
	e.InjectVelocity(vel)

	snapshot := Capture(e, 1000, 42)

	path, err := SaveSnapshot(snapshot, tmpDir)
	if err != nil {
		t.Fatalf("SaveSnapshot failed: %v", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("Snapshot file not created at %s", path)
	}
	if expected := filepath.Join(tmpDir, "snapshot_1000.json"); path != expected {
		t.Errorf("Path mismatch: got %s, want %s", path, expected)
	}

	loaded, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot failed: %v", err)
	}

	if loaded.Version != SnapshotVersion {
		t.Errorf("Version mismatch: got %d, want %d", loaded.Version, SnapshotVersion)
	}
	if loaded.Seed != 42 || loaded.Frame != 1000 {
		t.Errorf("header mismatch: seed %d frame %d", loaded.Seed, loaded.Frame)
	}
	if loaded.M != 5 || loaded.N != 4 {
		t.Errorf("grid mismatch: got %dx%d", loaded.M, loaded.N)
	}
	for i := range snapshot.Density {
		if loaded.Density[i] != snapshot.Density[i] {
			t.Fatalf("density mismatch at %d: got %f, want %f", i, loaded.Density[i], snapshot.Density[i])
		}
	}
	for i := range snapshot.Velocity {
		if loaded.Velocity[i] != snapshot.Velocity[i] {
			t.Fatalf("velocity mismatch at %d: got %f, want %f", i, loaded.Velocity[i], snapshot.Velocity[i])
		}
	}
}

func TestSnapshotRestore(t *testing.T) {
	src := newTestEngine(4, 4)
	defer src.Close()

	den := make([]float32, src.Cells())
	den[1+6*3] = 7
	src.InjectDensity(den)
	snapshot := Capture(src, 3, 0)

	dst := newTestEngine(4, 4)
	defer dst.Close()
	if err := snapshot.Restore(dst); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got := dst.Density().At(1, 3, 0); got != 7 {
		t.Errorf("expected restored density 7, got %f", got)
	}

	other := newTestEngine(6, 4)
	defer other.Close()
	if err := snapshot.Restore(other); err == nil {
		t.Error("expected grid mismatch error")
	}
}

func TestLoadSnapshotRejectsBadLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	body := `{"version":1,"m":2,"n":2,"frame":0,"density":[1,2,3],"velocity":[]}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadSnapshot(path); err == nil {
		t.Error("expected error for truncated density")
	}
}

func TestLoadSnapshotRejectsVersion(t *testing.T) {
	s := &Snapshot{Version: SnapshotVersion + 1, M: 1, N: 1, Density: make([]float32, 9), Velocity: make([]float32, 18)}
	if err := s.Validate(); err == nil {
		t.Error("expected version error")
	}
}
