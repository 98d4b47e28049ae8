package sim

import (
	"log/slog"

	"github.com/pthm-cable/transitflow/telemetry"
)

// flushTelemetry checks if the stats window should be flushed and writes it.
func (s *Sim) flushTelemetry() {
	if !s.collector.ShouldFlush(s.frame) {
		return
	}

	stats := s.collector.Flush(s.frame, s.engine)
	perfStats := s.perf.Stats()

	if s.statsCallback != nil {
		s.statsCallback(stats)
	}

	if s.logStats {
		stats.LogStats()
		perfStats.LogStats()
	}

	if s.output != nil {
		if err := s.output.WriteTelemetry(stats); err != nil {
			slog.Error("failed to write telemetry", "error", err)
		}
		if err := s.output.WritePerf(perfStats, stats.WindowEndFrame); err != nil {
			slog.Error("failed to write perf", "error", err)
		}
	}
}

// saveSnapshot captures the engine state and saves it to disk.
func (s *Sim) saveSnapshot() {
	if s.snapshotDir == "" {
		return
	}

	snapshot := telemetry.Capture(s.engine, s.frame, s.seed)
	path, err := telemetry.SaveSnapshot(snapshot, s.snapshotDir)
	if err != nil {
		slog.Error("failed to save snapshot", "error", err)
		return
	}

	slog.Info("snapshot saved", "path", path, "frame", s.frame)
}
