package telemetry

import (
	"log/slog"
	"time"

	"github.com/pthm-cable/transitflow/engine"
)

// Phases timed outside the engine. The solver stages use the engine.Phase* names.
const (
	PhaseEmitters  = "emitters"
	PhaseTelemetry = "telemetry"
)

// framePhases is the reporting order of every phase in a frame.
var framePhases = []string{
	PhaseEmitters,
	engine.PhaseInject,
	engine.PhaseAdvect,
	engine.PhaseDiffuse,
	engine.PhaseProject,
	engine.PhaseDecay,
	PhaseTelemetry,
}

// perfSample is one frame: total tick time and time per phase slot.
type perfSample struct {
	tick    time.Duration
	phases  []time.Duration
	entered []bool
}

// PerfCollector times frames and their phases over a ring of the last
// windowSize frames. Phase slots are fixed at first use, so steady-state
// frames do not allocate.
type PerfCollector struct {
	names []string
	slot  map[string]int

	ring   []perfSample
	next   int
	filled int

	cur        []time.Duration
	entered    []bool
	tickStart  time.Time
	phaseStart time.Time
	active     int // slot of the running phase, -1 if none

	lastFrame     time.Time
	frameInterval time.Duration
}

var _ engine.PhaseTimer = (*PerfCollector)(nil)

// NewPerfCollector creates a collector averaging over windowSize frames
// (60 if windowSize < 1).
func NewPerfCollector(windowSize int) *PerfCollector {
	if windowSize < 1 {
		windowSize = 60
	}
	p := &PerfCollector{
		slot:   make(map[string]int, len(framePhases)),
		ring:   make([]perfSample, windowSize),
		active: -1,
	}
	for _, name := range framePhases {
		p.slotOf(name)
	}
	return p
}

func (p *PerfCollector) slotOf(phase string) int {
	if s, ok := p.slot[phase]; ok {
		return s
	}
	s := len(p.names)
	p.slot[phase] = s
	p.names = append(p.names, phase)
	p.cur = append(p.cur, 0)
	p.entered = append(p.entered, false)
	return s
}

// closePhase charges the time since the last phase switch to the running phase.
func (p *PerfCollector) closePhase(now time.Time) {
	if p.active >= 0 {
		p.cur[p.active] += now.Sub(p.phaseStart)
	}
}

// StartTick begins timing a new frame.
func (p *PerfCollector) StartTick() {
	clear(p.cur)
	clear(p.entered)
	p.tickStart = time.Now()
	p.active = -1
}

// StartPhase ends the running phase and starts timing phase.
// A phase entered several times in one frame accumulates.
func (p *PerfCollector) StartPhase(phase string) {
	now := time.Now()
	p.closePhase(now)
	p.active = p.slotOf(phase)
	p.entered[p.active] = true
	p.phaseStart = now
}

// EndTick closes the frame and stores it in the ring.
func (p *PerfCollector) EndTick() {
	now := time.Now()
	p.closePhase(now)
	p.active = -1

	s := &p.ring[p.next]
	s.tick = now.Sub(p.tickStart)
	s.phases = append(s.phases[:0], p.cur...)
	s.entered = append(s.entered[:0], p.entered...)

	p.next = (p.next + 1) % len(p.ring)
	if p.filled < len(p.ring) {
		p.filled++
	}
}

// RecordFrame records the wall-clock interval since the previous call.
func (p *PerfCollector) RecordFrame() {
	now := time.Now()
	if !p.lastFrame.IsZero() {
		p.frameInterval = now.Sub(p.lastFrame)
	}
	p.lastFrame = now
}

// PerfStats is the aggregate of one perf window.
type PerfStats struct {
	AvgTickDuration time.Duration
	MinTickDuration time.Duration
	MaxTickDuration time.Duration

	PhaseAvg map[string]time.Duration // Mean time per frame
	PhasePct map[string]float64       // Share of the mean tick, in percent

	TicksPerSecond float64

	// Wall-clock interval between frames, including work outside the tick
	FrameDuration time.Duration
	FPS           float64
}

// Stats aggregates the frames currently in the window.
func (p *PerfCollector) Stats() PerfStats {
	out := PerfStats{
		PhaseAvg:      make(map[string]time.Duration),
		PhasePct:      make(map[string]float64),
		FrameDuration: p.frameInterval,
	}
	if p.frameInterval > 0 {
		out.FPS = float64(time.Second) / float64(p.frameInterval)
	}
	if p.filled == 0 {
		return out
	}

	var total time.Duration
	sums := make([]time.Duration, len(p.names))
	seen := make([]bool, len(p.names))
	for i, s := range p.ring[:p.filled] {
		total += s.tick
		if i == 0 || s.tick < out.MinTickDuration {
			out.MinTickDuration = s.tick
		}
		out.MaxTickDuration = max(out.MaxTickDuration, s.tick)
		for k, d := range s.phases {
			sums[k] += d
			seen[k] = seen[k] || s.entered[k]
		}
	}

	n := time.Duration(p.filled)
	out.AvgTickDuration = total / n
	if out.AvgTickDuration > 0 {
		out.TicksPerSecond = float64(time.Second) / float64(out.AvgTickDuration)
	}
	for k, name := range p.names {
		if !seen[k] {
			continue
		}
		avg := sums[k] / n
		out.PhaseAvg[name] = avg
		if out.AvgTickDuration > 0 {
			out.PhasePct[name] = float64(avg) / float64(out.AvgTickDuration) * 100
		}
	}
	return out
}

// LogStats logs the window at Info, phases in frame order.
func (s PerfStats) LogStats() {
	attrs := []any{
		"avg_tick_us", s.AvgTickDuration.Microseconds(),
		"min_tick_us", s.MinTickDuration.Microseconds(),
		"max_tick_us", s.MaxTickDuration.Microseconds(),
		"ticks_per_sec", int(s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, "fps", int(s.FPS))
	}
	for _, phase := range framePhases {
		if pct := s.PhasePct[phase]; pct > 0.1 {
			attrs = append(attrs, phase+"_pct", float64(int(pct*10))/10)
		}
	}
	slog.Info("perf", attrs...)
}

// LogValue implements slog.LogValuer.
func (s PerfStats) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Int64("avg_tick_us", s.AvgTickDuration.Microseconds()),
		slog.Int64("min_tick_us", s.MinTickDuration.Microseconds()),
		slog.Int64("max_tick_us", s.MaxTickDuration.Microseconds()),
		slog.Float64("ticks_per_sec", s.TicksPerSecond),
	}
	if s.FPS > 0 {
		attrs = append(attrs, slog.Float64("fps", s.FPS))
	}
	for _, phase := range framePhases {
		if pct, ok := s.PhasePct[phase]; ok {
			attrs = append(attrs, slog.Float64(phase+"_pct", pct))
		}
	}
	return slog.GroupValue(attrs...)
}

// PerfStatsCSV is one row of perf.csv.
type PerfStatsCSV struct {
	WindowEnd    int64   `csv:"window_end"`
	AvgTickUS    int64   `csv:"avg_tick_us"`
	MinTickUS    int64   `csv:"min_tick_us"`
	MaxTickUS    int64   `csv:"max_tick_us"`
	TicksPerSec  float64 `csv:"ticks_per_sec"`
	FPS          float64 `csv:"fps"`
	EmittersPct  float64 `csv:"emitters_pct"`
	InjectPct    float64 `csv:"inject_pct"`
	AdvectPct    float64 `csv:"advect_pct"`
	DiffusePct   float64 `csv:"diffuse_pct"`
	ProjectPct   float64 `csv:"project_pct"`
	DecayPct     float64 `csv:"decay_pct"`
	TelemetryPct float64 `csv:"telemetry_pct"`
}

// ToCSV flattens the window ending at frame windowEnd.
func (s PerfStats) ToCSV(windowEnd int64) PerfStatsCSV {
	pct := s.PhasePct
	return PerfStatsCSV{
		WindowEnd:    windowEnd,
		AvgTickUS:    s.AvgTickDuration.Microseconds(),
		MinTickUS:    s.MinTickDuration.Microseconds(),
		MaxTickUS:    s.MaxTickDuration.Microseconds(),
		TicksPerSec:  s.TicksPerSecond,
		FPS:          s.FPS,
		EmittersPct:  pct[PhaseEmitters],
		InjectPct:    pct[engine.PhaseInject],
		AdvectPct:    pct[engine.PhaseAdvect],
		DiffusePct:   pct[engine.PhaseDiffuse],
		ProjectPct:   pct[engine.PhaseProject],
		DecayPct:     pct[engine.PhaseDecay],
		TelemetryPct: pct[PhaseTelemetry],
	}
}
