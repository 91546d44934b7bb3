package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/docflowGM/holocron/internal/storage"
	"github.com/docflowGM/holocron/internal/storage/memory"
)

type stubLayer struct {
	initErr   error
	initCalls int
}

func (l *stubLayer) Init(_ context.Context, _ *Registry) error {
	l.initCalls++
	return l.initErr
}

func TestRegisterAndBootstrapLifecycle(t *testing.T) {
	r := NewRegistry(Options{Mode: ModeMonitor})
	healthy := &stubLayer{}
	broken := &stubLayer{initErr: errors.New("no event source")}
	late := &stubLayer{}

	if err := r.RegisterLayer("healthy", healthy); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := r.RegisterLayer("broken", broken); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := r.RegisterLayer("late", late); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := r.RegisterLayer("healthy", healthy); !errors.Is(err, ErrDuplicateLayer) {
		t.Errorf("duplicate RegisterLayer() error = %v, want ErrDuplicateLayer", err)
	}

	err := r.Bootstrap(context.Background())
	if err == nil {
		t.Error("Bootstrap() error = nil, want the broken layer's failure")
	}

	states := r.LayerStates()
	if states["healthy"] != StateActive {
		t.Errorf("healthy state = %q, want active", states["healthy"])
	}
	if states["broken"] != StateFailed {
		t.Errorf("broken state = %q, want failed", states["broken"])
	}
	if states["late"] != StateActive {
		t.Errorf("late state = %q, want active despite earlier failure", states["late"])
	}
	if late.initCalls != 1 {
		t.Errorf("late layer initialized %d times, want 1", late.initCalls)
	}

	if err := r.Disable("late"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	if r.LayerStates()["late"] != StateDisabled {
		t.Error("late layer not disabled")
	}
	if err := r.Disable("ghost"); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("Disable(ghost) error = %v, want ErrUnknownLayer", err)
	}
}

func TestReportModes(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewRegistry(Options{Mode: ModeOff, Store: store})
	if err := r.RegisterLayer("sovereignty", &stubLayer{}); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	if err := r.Report(ctx, "sovereignty", storage.SeverityCritical, "bypass", nil, ReportOptions{}); err != nil {
		t.Errorf("off-mode Report() error = %v", err)
	}
	if _, _, total := r.Summary(); total != 0 {
		t.Errorf("off-mode recorded %d violations, want 0", total)
	}

	r.SetMode(ModeMonitor)
	if err := r.Report(ctx, "sovereignty", storage.SeverityCritical, "bypass", nil, ReportOptions{}); err != nil {
		t.Errorf("monitor-mode Report() error = %v", err)
	}

	r.SetMode(ModeEnforce)
	err := r.Report(ctx, "sovereignty", storage.SeverityCritical, "bypass", nil, ReportOptions{})
	if !errors.Is(err, ErrEnforced) {
		t.Errorf("enforce-mode CRITICAL Report() error = %v, want ErrEnforced", err)
	}
	if err := r.Report(ctx, "sovereignty", storage.SeverityError, "lesser", nil, ReportOptions{}); err != nil {
		t.Errorf("enforce-mode ERROR Report() error = %v, want nil", err)
	}

	if err := r.Report(ctx, "ghost", storage.SeverityWarn, "x", nil, ReportOptions{}); !errors.Is(err, ErrUnknownLayer) {
		t.Errorf("unknown layer Report() error = %v, want ErrUnknownLayer", err)
	}

	violations, err := store.ListViolations(ctx, storage.ViolationFilter{})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(violations) != 3 {
		t.Errorf("persisted %d violations, want 3", len(violations))
	}
}

func TestReportDisabledLayerDropped(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Options{Mode: ModeEnforce})
	if err := r.RegisterLayer("noisy", &stubLayer{}); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if err := r.Disable("noisy"); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}

	if err := r.Report(ctx, "noisy", storage.SeverityCritical, "x", nil, ReportOptions{}); err != nil {
		t.Errorf("disabled layer Report() error = %v, want silent drop", err)
	}
	if _, _, total := r.Summary(); total != 0 {
		t.Errorf("disabled layer recorded %d violations", total)
	}
}

func TestAggregationEscalation(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	r := NewRegistry(Options{Mode: ModeMonitor, Store: store})
	if err := r.RegisterLayer("structure", &stubLayer{}); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	opts := ReportOptions{AggregateKey: "missing-id", Sample: 2, Threshold: 5}
	for i := 0; i < opts.Threshold+1; i++ {
		if err := r.Report(ctx, "structure", storage.SeverityWarn, "item without id", nil, opts); err != nil {
			t.Fatalf("Report() %d error = %v", i, err)
		}
	}

	violations, err := store.ListViolations(ctx, storage.ViolationFilter{})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	// first Sample individually, then one escalated summary
	if len(violations) != opts.Sample+1 {
		t.Fatalf("recorded %d violations, want %d", len(violations), opts.Sample+1)
	}
	summary := violations[len(violations)-1]
	if summary.Severity != storage.SeverityError {
		t.Errorf("summary severity = %q, want escalated ERROR", summary.Severity)
	}
	if summary.Count != opts.Threshold+1 {
		t.Errorf("summary count = %d, want %d", summary.Count, opts.Threshold+1)
	}

	// further occurrences only count, never a second summary
	for i := 0; i < 3; i++ {
		if err := r.Report(ctx, "structure", storage.SeverityWarn, "item without id", nil, opts); err != nil {
			t.Fatalf("Report() error = %v", err)
		}
	}
	violations, err = store.ListViolations(ctx, storage.ViolationFilter{})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(violations) != opts.Sample+1 {
		t.Errorf("recorded %d violations after more reports, want still %d", len(violations), opts.Sample+1)
	}
}

func TestSummaryCounts(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Options{Mode: ModeMonitor})
	for _, id := range []string{"performance", "structure"} {
		if err := r.RegisterLayer(id, &stubLayer{}); err != nil {
			t.Fatalf("RegisterLayer() error = %v", err)
		}
	}
	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	reports := []struct {
		layer    string
		severity storage.Severity
	}{
		{"performance", storage.SeverityWarn},
		{"performance", storage.SeverityWarn},
		{"structure", storage.SeverityError},
	}
	for _, report := range reports {
		if err := r.Report(ctx, report.layer, report.severity, "x", nil, ReportOptions{}); err != nil {
			t.Fatalf("Report() error = %v", err)
		}
	}

	byLayer, bySeverity, total := r.Summary()
	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if byLayer["performance"] != 2 || byLayer["structure"] != 1 {
		t.Errorf("byLayer = %v", byLayer)
	}
	if bySeverity[storage.SeverityWarn] != 2 || bySeverity[storage.SeverityError] != 1 {
		t.Errorf("bySeverity = %v", bySeverity)
	}
}

func TestObserverIsolation(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(Options{Mode: ModeMonitor})
	if err := r.RegisterLayer("structure", &stubLayer{}); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := r.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}

	var order []string
	r.Observe(func(v storage.Violation) {
		order = append(order, "first")
		panic(fmt.Sprintf("observer blew up on %s", v.Layer))
	})
	r.Observe(func(storage.Violation) { order = append(order, "second") })

	if err := r.Report(ctx, "structure", storage.SeverityWarn, "x", nil, ReportOptions{}); err != nil {
		t.Fatalf("Report() error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("observer order = %v, want both called in registration order", order)
	}
}

func TestParseMode(t *testing.T) {
	for _, valid := range []string{"off", "monitor", "enforce"} {
		if _, err := ParseMode(valid); err != nil {
			t.Errorf("ParseMode(%q) error = %v", valid, err)
		}
	}
	if _, err := ParseMode("loud"); err == nil {
		t.Error("ParseMode(loud) should fail")
	}
}
