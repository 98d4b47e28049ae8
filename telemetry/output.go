package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/pthm-cable/transitflow/config"
)

// Output file names inside the run directory.
const (
	TelemetryFile = "telemetry.csv"
	PerfFile      = "perf.csv"
	ConfigFile    = "config.yaml"
	snapshotsDir  = "snapshots"
)

// csvLog is an append-only CSV file whose header is written with the first row.
type csvLog struct {
	name   string
	file   *os.File
	header bool
}

func createLog(dir, name string) (*csvLog, error) {
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", name, err)
	}
	return &csvLog{name: name, file: f}, nil
}

// append writes rows, which must be a slice of csv-tagged structs.
func (l *csvLog) append(rows any) error {
	var err error
	if l.header {
		err = gocsv.MarshalWithoutHeaders(rows, l.file)
	} else {
		err = gocsv.Marshal(rows, l.file)
		l.header = true
	}
	if err != nil {
		return fmt.Errorf("writing %s: %w", l.name, err)
	}
	return nil
}

func (l *csvLog) close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

// OutputManager owns the CSV logs of one run directory.
// A nil *OutputManager is valid and discards everything.
type OutputManager struct {
	dir       string
	telemetry *csvLog
	perf      *csvLog
}

// NewOutputManager creates dir and opens the CSV logs in it.
// Returns nil if dir is empty (output disabled).
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	var err error
	if om.telemetry, err = createLog(dir, TelemetryFile); err != nil {
		return nil, err
	}
	if om.perf, err = createLog(dir, PerfFile); err != nil {
		om.telemetry.close()
		return nil, err
	}
	return om, nil
}

// WriteConfig saves the run configuration next to the logs.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, ConfigFile))
}

// WriteTelemetry appends one field statistics window.
func (om *OutputManager) WriteTelemetry(stats WindowStats) error {
	if om == nil {
		return nil
	}
	return om.telemetry.append([]WindowStats{stats})
}

// WritePerf appends one perf window ending at frame windowEnd.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int64) error {
	if om == nil {
		return nil
	}
	return om.perf.append([]PerfStatsCSV{stats.ToCSV(windowEnd)})
}

// SnapshotDir returns the default snapshot directory inside the output directory.
func (om *OutputManager) SnapshotDir() string {
	if om == nil {
		return ""
	}
	return filepath.Join(om.dir, snapshotsDir)
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close closes every log and reports all close failures.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}
	return errors.Join(om.telemetry.close(), om.perf.close())
}
