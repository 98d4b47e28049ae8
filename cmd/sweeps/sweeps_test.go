package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pthm-cable/transitflow/config"
	"github.com/pthm-cable/transitflow/engine"
)

func smallConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	cfg.Grid.M = 16
	cfg.Grid.N = 16
	cfg.Emitters.Count = 4
	cfg.Solver.Workers = 1
	return cfg
}

func TestParseSweeps(t *testing.T) {
	got, err := parseSweeps(" 5, 10,,40 ")
	if err != nil {
		t.Fatalf("parseSweeps: %v", err)
	}
	want := []int{5, 10, 40}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], got[i])
		}
	}

	for _, bad := range []string{"", "x", "0", "3,-1"} {
		if _, err := parseSweeps(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestApplySweepsUnknownKind(t *testing.T) {
	p := engine.DefaultParams()
	if err := applySweeps(&p, "bogus", 3); err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if err := applySweeps(&p, KindViscosity, 7); err != nil || p.ViscositySweeps != 7 {
		t.Errorf("expected viscosity sweeps 7, got %d (err %v)", p.ViscositySweeps, err)
	}
}

func TestRunAllKeepsOrderAndImproves(t *testing.T) {
	cfg := smallConfig(t)
	counts := []int{2, 80}

	results, err := runAll(context.Background(), cfg, KindPressure, counts, 20, 2)
	if err != nil {
		t.Fatalf("runAll: %v", err)
	}
	if len(results) != len(counts) {
		t.Fatalf("expected %d results, got %d", len(counts), len(results))
	}
	for i, r := range results {
		if r.Sweeps != counts[i] {
			t.Errorf("result %d: expected sweeps %d, got %d", i, counts[i], r.Sweeps)
		}
		if r.Frames != 20 || r.Kind != KindPressure {
			t.Errorf("result %d: unexpected row %+v", i, r)
		}
		if r.DensityMass <= 0 {
			t.Errorf("result %d: expected injected density, got %v", i, r.DensityMass)
		}
	}
	if results[1].DivergenceL2 >= results[0].DivergenceL2 {
		t.Errorf("more pressure sweeps should leave less divergence: %v vs %v",
			results[1].DivergenceL2, results[0].DivergenceL2)
	}

	var buf bytes.Buffer
	if err := writeResults(&buf, results); err != nil {
		t.Fatalf("writeResults: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "kind,sweeps,frames,divergence_l2") {
		t.Errorf("unexpected header %q", lines[0])
	}
}

func TestRunAllHonoursCancel(t *testing.T) {
	cfg := smallConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runAll(ctx, cfg, KindPressure, []int{5}, 10, 1)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestPlotDivergenceCaption(t *testing.T) {
	chart := plotDivergence([]Result{
		{Kind: KindPressure, Sweeps: 5, DivergenceL2: 0.4},
		{Kind: KindPressure, Sweeps: 40, DivergenceL2: 0.1},
	})
	if !strings.Contains(chart, "pressure divergence L2 at sweeps 5,40") {
		t.Errorf("expected caption in chart, got:\n%s", chart)
	}
}
