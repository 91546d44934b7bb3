package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docflowGM/holocron/internal/governance/authority"
	"github.com/docflowGM/holocron/internal/governance/intent"
	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/host"
	apperrors "github.com/docflowGM/holocron/internal/platform/errors"
	"github.com/docflowGM/holocron/internal/storage"
	"github.com/docflowGM/holocron/internal/storage/memory"
)

type kernelFixture struct {
	kernel     Kernel
	host       *host.MemoryHost
	mutations  *memory.Store
	violations *memory.Store
	monitor    *monitor.Registry
}

func newKernel(t *testing.T) *kernelFixture {
	t.Helper()

	h := host.NewMemoryHost()
	h.PutEntity("char-1", map[string]any{
		"credits":     float64(100),
		"skillBudget": float64(4),
	}, nil)

	mutations := memory.NewStore()
	violations := memory.NewStore()
	registry := monitor.NewRegistry(monitor.Options{Mode: monitor.ModeMonitor, Store: violations})

	a, err := authority.New(authority.Options{
		Host:      h,
		Mutations: mutations,
		Monitor:   registry,
	})
	if err != nil {
		t.Fatalf("authority.New() error = %v", err)
	}

	return &kernelFixture{
		kernel: Kernel{
			Compiler:   intent.NewCompiler(intent.Options{}),
			Authority:  a,
			Host:       h,
			Mutations:  mutations,
			Violations: violations,
			Monitor:    registry,
		},
		host:       h,
		mutations:  mutations,
		violations: violations,
		monitor:    registry,
	}
}

func errorCode(t *testing.T, err error) apperrors.Code {
	t.Helper()
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want *apperrors.Error", err)
	}
	return appErr.Code
}

func TestNewServerRequiresKernel(t *testing.T) {
	f := newKernel(t)

	if _, err := NewServer(f.kernel); err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	incomplete := f.kernel
	incomplete.Authority = nil
	if _, err := NewServer(incomplete); err == nil {
		t.Error("NewServer() without authority should fail")
	}
}

func TestCompileStepDoesNotMutate(t *testing.T) {
	f := newKernel(t)
	ctx := context.Background()

	_, out, err := CompileStepHandler(f.kernel)(ctx, nil, CompileStepInput{
		EntityID:   "char-1",
		Step:       intent.StepSkills,
		Selections: map[string]any{"skillIds": []any{"skill-stealth", "skill-pilot"}},
	})
	if err != nil {
		t.Fatalf("compile_step error = %v", err)
	}
	if len(out.Delta.Add["skills"]) != 2 {
		t.Errorf("delta adds %d skills, want 2", len(out.Delta.Add["skills"]))
	}

	snap, err := f.host.TakeSnapshot(ctx, "char-1")
	if err != nil {
		t.Fatalf("TakeSnapshot() error = %v", err)
	}
	if len(snap.Collections["skills"]) != 0 {
		t.Error("compile_step must not apply the delta")
	}
	records, err := f.mutations.ListMutations(ctx, "char-1", 0, 10)
	if err != nil {
		t.Fatalf("ListMutations() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("compile_step left %d audit records, want 0", len(records))
	}
}

func TestApplyStepRecordsMutation(t *testing.T) {
	f := newKernel(t)
	ctx := context.Background()

	_, out, err := ApplyStepHandler(f.kernel)(ctx, nil, ApplyStepInput{
		EntityID:   "char-1",
		Step:       intent.StepCredits,
		Selections: map[string]any{"credits": float64(250)},
	})
	if err != nil {
		t.Fatalf("apply_step error = %v", err)
	}
	if out.Record.Outcome != string(storage.OutcomeApplied) {
		t.Errorf("Outcome = %q, want applied", out.Record.Outcome)
	}
	if out.Record.Origin != toolOrigin {
		t.Errorf("Origin = %q, want %q", out.Record.Origin, toolOrigin)
	}
	if out.Record.Seq != 1 {
		t.Errorf("Seq = %d, want 1", out.Record.Seq)
	}

	snap, err := f.host.TakeSnapshot(ctx, "char-1")
	if err != nil {
		t.Fatalf("TakeSnapshot() error = %v", err)
	}
	if snap.Fields["credits"] != float64(250) {
		t.Errorf("credits = %v, want 250", snap.Fields["credits"])
	}
}

func TestApplyStepValidationErrorCode(t *testing.T) {
	f := newKernel(t)

	_, _, err := ApplyStepHandler(f.kernel)(context.Background(), nil, ApplyStepInput{
		EntityID:   "char-1",
		Step:       intent.StepSkills,
		Selections: map[string]any{},
	})
	if code := errorCode(t, err); code != apperrors.CodeValidationMissingSelection {
		t.Errorf("code = %q, want %q", code, apperrors.CodeValidationMissingSelection)
	}
}

func TestApplyStepEmptyEntity(t *testing.T) {
	f := newKernel(t)

	_, _, err := ApplyStepHandler(f.kernel)(context.Background(), nil, ApplyStepInput{
		Step:       intent.StepCredits,
		Selections: map[string]any{"credits": float64(1)},
	})
	if code := errorCode(t, err); code != apperrors.CodeValidationEmptyEntityID {
		t.Errorf("code = %q, want %q", code, apperrors.CodeValidationEmptyEntityID)
	}
}

func TestRollbackMutationRoundTrip(t *testing.T) {
	f := newKernel(t)
	ctx := context.Background()

	_, applied, err := ApplyStepHandler(f.kernel)(ctx, nil, ApplyStepInput{
		EntityID:   "char-1",
		Step:       intent.StepCredits,
		Selections: map[string]any{"credits": float64(250)},
	})
	if err != nil {
		t.Fatalf("apply_step error = %v", err)
	}

	_, rolled, err := RollbackMutationHandler(f.kernel)(ctx, nil, RollbackMutationInput{
		MutationID: applied.Record.ID,
	})
	if err != nil {
		t.Fatalf("rollback_mutation error = %v", err)
	}
	if rolled.Record.Outcome != string(storage.OutcomeRolledBack) {
		t.Errorf("Outcome = %q, want rolled_back", rolled.Record.Outcome)
	}
	if rolled.Record.RolledBackFrom != applied.Record.ID {
		t.Errorf("RolledBackFrom = %q, want %q", rolled.Record.RolledBackFrom, applied.Record.ID)
	}

	snap, err := f.host.TakeSnapshot(ctx, "char-1")
	if err != nil {
		t.Fatalf("TakeSnapshot() error = %v", err)
	}
	if snap.Fields["credits"] != float64(100) {
		t.Errorf("credits after rollback = %v, want 100", snap.Fields["credits"])
	}
}

func TestRollbackUnknownMutation(t *testing.T) {
	f := newKernel(t)

	_, _, err := RollbackMutationHandler(f.kernel)(context.Background(), nil, RollbackMutationInput{
		MutationID: "no-such-record",
	})
	if code := errorCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("code = %q, want %q", code, apperrors.CodeNotFound)
	}
}

func TestMutationLogExport(t *testing.T) {
	f := newKernel(t)
	ctx := context.Background()

	for _, credits := range []float64{150, 200} {
		if _, _, err := ApplyStepHandler(f.kernel)(ctx, nil, ApplyStepInput{
			EntityID:   "char-1",
			Step:       intent.StepCredits,
			Selections: map[string]any{"credits": credits},
		}); err != nil {
			t.Fatalf("apply_step error = %v", err)
		}
	}

	_, out, err := MutationLogExportHandler(f.kernel)(ctx, nil, MutationLogExportInput{EntityID: "char-1"})
	if err != nil {
		t.Fatalf("mutation_log_export error = %v", err)
	}
	if len(out.Records) != 2 {
		t.Fatalf("exported %d records, want 2", len(out.Records))
	}
	if out.Records[0].Seq != 1 || out.Records[1].Seq != 2 {
		t.Errorf("sequence order = %d, %d, want 1, 2", out.Records[0].Seq, out.Records[1].Seq)
	}

	_, out, err = MutationLogExportHandler(f.kernel)(ctx, nil, MutationLogExportInput{EntityID: "char-1", AfterSeq: 1})
	if err != nil {
		t.Fatalf("mutation_log_export error = %v", err)
	}
	if len(out.Records) != 1 || out.Records[0].Seq != 2 {
		t.Errorf("after_seq export = %+v, want only seq 2", out.Records)
	}
}

func TestEntitySnapshotUnknown(t *testing.T) {
	f := newKernel(t)

	_, _, err := EntitySnapshotHandler(f.kernel)(context.Background(), nil, EntitySnapshotInput{
		EntityID: "never-seeded",
	})
	if code := errorCode(t, err); code != apperrors.CodeNotFound {
		t.Errorf("code = %q, want %q", code, apperrors.CodeNotFound)
	}
}

func TestViolationsExportFilters(t *testing.T) {
	f := newKernel(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seed := []storage.Violation{
		{Layer: "sovereignty", Severity: storage.SeverityCritical, Message: "bypass", EntityID: "char-1", Timestamp: base},
		{Layer: "performance", Severity: storage.SeverityWarn, Message: "slow apply", Timestamp: base.Add(time.Minute)},
	}
	for _, v := range seed {
		if _, err := f.violations.AppendViolation(ctx, v); err != nil {
			t.Fatalf("AppendViolation() error = %v", err)
		}
	}

	_, out, err := ViolationsExportHandler(f.kernel)(ctx, nil, ViolationsExportInput{Layer: "sovereignty"})
	if err != nil {
		t.Fatalf("violations_export error = %v", err)
	}
	if len(out.Violations) != 1 || out.Violations[0].Severity != string(storage.SeverityCritical) {
		t.Errorf("layer filter = %+v, want the one critical sovereignty violation", out.Violations)
	}

	_, _, err = ViolationsExportHandler(f.kernel)(ctx, nil, ViolationsExportInput{Since: "not-a-timestamp"})
	if code := errorCode(t, err); code != apperrors.CodeValidationWrongType {
		t.Errorf("bad since code = %q, want %q", code, apperrors.CodeValidationWrongType)
	}

	_, _, err = ViolationsExportHandler(f.kernel)(ctx, nil, ViolationsExportInput{MinSeverity: "LOUD"})
	if code := errorCode(t, err); code != apperrors.CodeValidationWrongType {
		t.Errorf("bad min_severity code = %q, want %q", code, apperrors.CodeValidationWrongType)
	}
}

type noopLayer struct{}

func (noopLayer) Init(context.Context, *monitor.Registry) error { return nil }

func TestViolationSummary(t *testing.T) {
	f := newKernel(t)
	ctx := context.Background()

	if err := f.monitor.RegisterLayer("structure", noopLayer{}); err != nil {
		t.Fatalf("RegisterLayer() error = %v", err)
	}
	if err := f.monitor.Bootstrap(ctx); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	if err := f.monitor.Report(ctx, "structure", storage.SeverityError, "missing id", nil, monitor.ReportOptions{}); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	_, out, err := ViolationSummaryHandler(f.kernel)(ctx, nil, ViolationSummaryInput{})
	if err != nil {
		t.Fatalf("violation_summary error = %v", err)
	}
	if out.Mode != string(monitor.ModeMonitor) {
		t.Errorf("Mode = %q, want monitor", out.Mode)
	}
	if out.Total != 1 || out.ByLayer["structure"] != 1 {
		t.Errorf("summary counts = %+v, want one structure violation", out)
	}
	if out.BySeverity[string(storage.SeverityError)] != 1 {
		t.Errorf("BySeverity = %+v, want one ERROR", out.BySeverity)
	}
	if out.Layers["structure"] != string(monitor.StateActive) {
		t.Errorf("layer state = %q, want active", out.Layers["structure"])
	}
}
