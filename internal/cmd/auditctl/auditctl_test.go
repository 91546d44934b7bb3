package auditctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"path/filepath"
	"testing"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/storage"
	"github.com/docflowGM/holocron/internal/storage/sqlite"
)

func seedDatabase(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "holocron.db")
	store, err := sqlite.Open(path)
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	for _, credits := range []float64{50, 75} {
		rec := storage.MutationRecord{
			EntityID: "char-1",
			Delta:    delta.Delta{Set: map[string]any{"credits": credits}},
			SnapshotBefore: delta.NewSnapshot("char-1",
				map[string]any{"credits": float64(0)}, nil, time.Now()),
			AppliedAt: time.Now(),
			Origin:    "compiler",
			Outcome:   storage.OutcomeApplied,
		}
		if _, err := store.AppendMutation(ctx, rec); err != nil {
			t.Fatalf("AppendMutation() error = %v", err)
		}
	}
	if _, err := store.AppendViolation(ctx, storage.Violation{
		Layer:     "sovereignty",
		Severity:  storage.SeverityCritical,
		Message:   "bypass",
		EntityID:  "char-1",
		Timestamp: time.Now(),
	}); err != nil {
		t.Fatalf("AppendViolation() error = %v", err)
	}
	return path
}

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("auditctl", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Kind != KindMutations {
		t.Fatalf("expected default kind mutations, got %q", cfg.Kind)
	}
	if cfg.Limit != defaultLimit {
		t.Fatalf("expected default limit %d, got %d", defaultLimit, cfg.Limit)
	}
}

func TestRunExportsMutations(t *testing.T) {
	path := seedDatabase(t)

	var buf bytes.Buffer
	err := Run(context.Background(), Config{
		DBPath:   path,
		Kind:     KindMutations,
		EntityID: "char-1",
		Limit:    10,
	}, &buf)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var exported []mutationExport
	if err := json.Unmarshal(buf.Bytes(), &exported); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(exported) != 2 {
		t.Fatalf("exported %d mutations, want 2", len(exported))
	}
	if exported[0].Seq != 1 || exported[1].Seq != 2 {
		t.Errorf("sequence order = %d, %d, want 1, 2", exported[0].Seq, exported[1].Seq)
	}
	if exported[1].Delta.Set["credits"] != float64(75) {
		t.Errorf("second delta credits = %v, want 75", exported[1].Delta.Set["credits"])
	}
}

func TestRunExportsViolations(t *testing.T) {
	path := seedDatabase(t)

	var buf bytes.Buffer
	err := Run(context.Background(), Config{
		DBPath:      path,
		Kind:        KindViolations,
		Layer:       "sovereignty",
		MinSeverity: string(storage.SeverityError),
		Limit:       10,
	}, &buf)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	var exported []violationExport
	if err := json.Unmarshal(buf.Bytes(), &exported); err != nil {
		t.Fatalf("unmarshal export: %v", err)
	}
	if len(exported) != 1 {
		t.Fatalf("exported %d violations, want 1", len(exported))
	}
	if exported[0].Severity != string(storage.SeverityCritical) {
		t.Errorf("severity = %q, want CRITICAL", exported[0].Severity)
	}
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()
	if err := Run(ctx, Config{Kind: KindMutations}, &bytes.Buffer{}); err == nil {
		t.Error("missing db path should fail")
	}

	path := seedDatabase(t)
	if err := Run(ctx, Config{DBPath: path, Kind: "everything"}, &bytes.Buffer{}); err == nil {
		t.Error("unknown kind should fail")
	}
	if err := Run(ctx, Config{DBPath: path, Kind: KindMutations}, &bytes.Buffer{}); err == nil {
		t.Error("mutation export without entity should fail")
	}
	if err := Run(ctx, Config{DBPath: path, Kind: KindViolations, Since: "yesterday"}, &bytes.Buffer{}); err == nil {
		t.Error("malformed since should fail")
	}
}
