package telemetry

import (
	"testing"
	"time"

	"github.com/pthm-cable/transitflow/engine"
)

func TestPerfCollector_BasicTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	// Simulate a few frames
	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase(engine.PhaseAdvect)
		time.Sleep(100 * time.Microsecond)
		pc.StartPhase(engine.PhaseProject)
		time.Sleep(200 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	// Verify we got timing data
	if stats.AvgTickDuration <= 0 {
		t.Error("expected positive average tick duration")
	}

	// Verify phases are tracked
	if len(stats.PhaseAvg) == 0 {
		t.Error("expected phase averages to be populated")
	}

	if _, ok := stats.PhaseAvg[engine.PhaseAdvect]; !ok {
		t.Error("expected advect phase to be tracked")
	}

	if _, ok := stats.PhaseAvg[engine.PhaseProject]; !ok {
		t.Error("expected project phase to be tracked")
	}
}

func TestPerfCollector_RingDropsOldFrames(t *testing.T) {
	pc := NewPerfCollector(3)

	// Two slow frames, then enough fast ones to push them out of the ring.
	for i := 0; i < 2; i++ {
		pc.StartTick()
		pc.StartPhase(engine.PhaseAdvect)
		time.Sleep(5 * time.Millisecond)
		pc.EndTick()
	}
	for i := 0; i < 3; i++ {
		pc.StartTick()
		pc.StartPhase(engine.PhaseAdvect)
		pc.EndTick()
	}

	stats := pc.Stats()
	if stats.MaxTickDuration >= 5*time.Millisecond {
		t.Errorf("expected slow frames to leave the window, max tick %v", stats.MaxTickDuration)
	}
	if stats.TicksPerSecond <= 0 {
		t.Error("expected positive ticks per second")
	}
}

func TestPerfCollector_PhasePercentages(t *testing.T) {
	pc := NewPerfCollector(10)

	// Simulate with uneven phase durations
	for i := 0; i < 5; i++ {
		pc.StartTick()
		pc.StartPhase("fast")
		time.Sleep(10 * time.Microsecond)
		pc.StartPhase("slow")
		time.Sleep(100 * time.Microsecond)
		pc.EndTick()
	}

	stats := pc.Stats()

	fastPct := stats.PhasePct["fast"]
	slowPct := stats.PhasePct["slow"]

	// Slow phase should take more % than fast
	if slowPct <= fastPct {
		t.Errorf("expected slow phase (%v%%) > fast phase (%v%%)", slowPct, fastPct)
	}
}

func TestPerfCollector_EmptyStats(t *testing.T) {
	pc := NewPerfCollector(10)

	stats := pc.Stats()

	// Empty collector should return zero values without panicking
	if stats.AvgTickDuration != 0 {
		t.Error("expected zero avg tick duration for empty collector")
	}

	if stats.PhaseAvg == nil {
		t.Error("expected non-nil PhaseAvg map")
	}

	if stats.PhasePct == nil {
		t.Error("expected non-nil PhasePct map")
	}
}

func TestPerfCollector_FrameTiming(t *testing.T) {
	pc := NewPerfCollector(10)

	// First call establishes baseline
	pc.RecordFrame()
	time.Sleep(16 * time.Millisecond)
	// Second call measures duration
	pc.RecordFrame()

	stats := pc.Stats()

	if stats.FrameDuration < 15*time.Millisecond {
		t.Errorf("expected frame duration >= 15ms, got %v", stats.FrameDuration)
	}

	if stats.FPS <= 0 {
		t.Error("expected positive FPS")
	}

	// With 16ms frames, expect ~60 FPS (allow range 40-80)
	if stats.FPS < 40 || stats.FPS > 80 {
		t.Errorf("expected FPS between 40-80 with 16ms frame time, got %v", stats.FPS)
	}
}

func TestPerfCollector_RepeatedPhasesAccumulate(t *testing.T) {
	pc := NewPerfCollector(4)

	pc.StartTick()
	pc.StartPhase(engine.PhaseAdvect)
	time.Sleep(200 * time.Microsecond)
	pc.StartPhase(engine.PhaseDiffuse)
	pc.StartPhase(engine.PhaseAdvect)
	time.Sleep(200 * time.Microsecond)
	pc.EndTick()

	stats := pc.Stats()
	if stats.PhaseAvg[engine.PhaseAdvect] < 400*time.Microsecond {
		t.Errorf("expected advect time from both entries, got %v", stats.PhaseAvg[engine.PhaseAdvect])
	}
}

func TestPerfCollector_DrivenByEngine(t *testing.T) {
	p := engine.DefaultParams()
	p.Workers = 1
	e := engine.New(8, 8, p)
	defer e.Close()

	pc := NewPerfCollector(4)
	e.SetPhaseTimer(pc)

	pc.StartTick()
	e.InjectDensity(make([]float32, e.Cells()))
	e.StepVelocity()
	e.StepDensity()
	pc.EndTick()

	stats := pc.Stats()
	for _, phase := range []string{engine.PhaseInject, engine.PhaseAdvect, engine.PhaseDiffuse, engine.PhaseProject, engine.PhaseDecay} {
		if _, ok := stats.PhaseAvg[phase]; !ok {
			t.Errorf("expected phase %s to be recorded", phase)
		}
	}

	row := stats.ToCSV(1)
	if row.WindowEnd != 1 {
		t.Errorf("expected window end 1, got %d", row.WindowEnd)
	}
	if row.AdvectPct != stats.PhasePct[engine.PhaseAdvect] {
		t.Errorf("expected advect pct %v, got %v", stats.PhasePct[engine.PhaseAdvect], row.AdvectPct)
	}
}
