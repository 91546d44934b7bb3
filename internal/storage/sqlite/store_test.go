package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "holocron.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})
	return store
}

func testRecord(entityID string) storage.MutationRecord {
	return storage.MutationRecord{
		EntityID: entityID,
		Delta: delta.Delta{
			Set: map[string]any{"credits": float64(250)},
		},
		SnapshotBefore: delta.NewSnapshot(entityID, map[string]any{
			"credits": float64(100),
		}, nil, time.Now()),
		Origin:  "compiler",
		Outcome: storage.OutcomeApplied,
	}
}

func TestAppendMutationAssignsSequence(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first, err := store.AppendMutation(ctx, testRecord("char-1"))
	if err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}
	if first.Seq != 1 {
		t.Errorf("first Seq = %d, want 1", first.Seq)
	}
	if first.ID == "" {
		t.Error("record id was not assigned")
	}

	second, err := store.AppendMutation(ctx, testRecord("char-1"))
	if err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}
	if second.Seq != 2 {
		t.Errorf("second Seq = %d, want 2", second.Seq)
	}

	other, err := store.AppendMutation(ctx, testRecord("char-2"))
	if err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}
	if other.Seq != 1 {
		t.Errorf("other entity Seq = %d, want 1", other.Seq)
	}
}

func TestAppendMutationValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	missing := testRecord("")
	if _, err := store.AppendMutation(ctx, missing); err == nil {
		t.Error("expected error for missing entity id")
	}

	invalid := testRecord("char-1")
	invalid.Outcome = "exploded"
	if _, err := store.AppendMutation(ctx, invalid); err == nil {
		t.Error("expected error for invalid outcome")
	}
}

func TestGetMutationRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	rec := testRecord("char-1")
	rec.Delta.Add = map[string][]delta.Item{
		"feats": {{"id": "feat-point-blank-shot", "name": "Point-Blank Shot"}},
	}
	rec.Reason = ""

	stored, err := store.AppendMutation(ctx, rec)
	if err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}

	got, err := store.GetMutation(ctx, stored.ID)
	if err != nil {
		t.Fatalf("GetMutation() error = %v", err)
	}
	if got.EntityID != "char-1" {
		t.Errorf("EntityID = %q, want char-1", got.EntityID)
	}
	if got.Outcome != storage.OutcomeApplied {
		t.Errorf("Outcome = %q, want %q", got.Outcome, storage.OutcomeApplied)
	}
	if got.Delta.Set["credits"] != float64(250) {
		t.Errorf("Delta.Set[credits] = %v, want 250", got.Delta.Set["credits"])
	}
	items := got.Delta.Add["feats"]
	if len(items) != 1 || delta.ItemID(items[0]) != "feat-point-blank-shot" {
		t.Errorf("Delta.Add[feats] = %v, want one feat-point-blank-shot item", items)
	}
	if got.SnapshotBefore.Fields["credits"] != float64(100) {
		t.Errorf("SnapshotBefore credits = %v, want 100", got.SnapshotBefore.Fields["credits"])
	}
	if got.AppliedAt.IsZero() {
		t.Error("AppliedAt was not persisted")
	}
}

func TestGetMutationNotFound(t *testing.T) {
	store := openTestStore(t)

	_, err := store.GetMutation(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("GetMutation() error = %v, want ErrNotFound", err)
	}
}

func TestListMutationsAfterSeq(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, err := store.AppendMutation(ctx, testRecord("char-1")); err != nil {
			t.Fatalf("AppendMutation() error = %v", err)
		}
	}
	if _, err := store.AppendMutation(ctx, testRecord("char-2")); err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}

	got, err := store.ListMutations(ctx, "char-1", 2, 10)
	if err != nil {
		t.Fatalf("ListMutations() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ListMutations() returned %d records, want 3", len(got))
	}
	for i, rec := range got {
		want := uint64(3 + i)
		if rec.Seq != want {
			t.Errorf("record %d Seq = %d, want %d", i, rec.Seq, want)
		}
		if rec.EntityID != "char-1" {
			t.Errorf("record %d EntityID = %q, want char-1", i, rec.EntityID)
		}
	}

	limited, err := store.ListMutations(ctx, "char-1", 0, 2)
	if err != nil {
		t.Fatalf("ListMutations() error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("ListMutations() with limit 2 returned %d records", len(limited))
	}

	if _, err := store.ListMutations(ctx, "char-1", 0, 0); err == nil {
		t.Error("expected error for non-positive limit")
	}
}

func TestRollbackRecordFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	original, err := store.AppendMutation(ctx, testRecord("char-1"))
	if err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}

	rollback := testRecord("char-1")
	rollback.Outcome = storage.OutcomeRolledBack
	rollback.Origin = "rollback"
	rollback.RolledBackFrom = original.ID

	stored, err := store.AppendMutation(ctx, rollback)
	if err != nil {
		t.Fatalf("AppendMutation() error = %v", err)
	}

	got, err := store.GetMutation(ctx, stored.ID)
	if err != nil {
		t.Fatalf("GetMutation() error = %v", err)
	}
	if got.RolledBackFrom != original.ID {
		t.Errorf("RolledBackFrom = %q, want %q", got.RolledBackFrom, original.ID)
	}
	if got.Outcome != storage.OutcomeRolledBack {
		t.Errorf("Outcome = %q, want %q", got.Outcome, storage.OutcomeRolledBack)
	}
}

func TestViolationRoundTripAndFilter(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Millisecond)
	seed := []storage.Violation{
		{
			Layer:     "sovereignty",
			Severity:  storage.SeverityCritical,
			Message:   "direct write bypassed governance",
			EntityID:  "char-1",
			Context:   map[string]any{"path": "credits"},
			Timestamp: base,
		},
		{
			Layer:        "performance",
			Severity:     storage.SeverityWarn,
			Message:      "frame budget exceeded",
			AggregateKey: "perf:render",
			Timestamp:    base.Add(time.Second),
		},
		{
			Layer:     "performance",
			Severity:  storage.SeverityError,
			Message:   "frame budget exceeded repeatedly",
			Count:     12,
			Timestamp: base.Add(2 * time.Second),
		},
	}
	for _, v := range seed {
		if _, err := store.AppendViolation(ctx, v); err != nil {
			t.Fatalf("AppendViolation() error = %v", err)
		}
	}

	all, err := store.ListViolations(ctx, storage.ViolationFilter{})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListViolations() returned %d, want 3", len(all))
	}
	if all[0].Layer != "sovereignty" {
		t.Errorf("first violation layer = %q, want sovereignty ordered by timestamp", all[0].Layer)
	}
	if all[0].Context["path"] != "credits" {
		t.Errorf("context round trip = %v, want path=credits", all[0].Context)
	}
	if all[1].Count != 1 {
		t.Errorf("default count = %d, want 1", all[1].Count)
	}
	if all[2].Count != 12 {
		t.Errorf("summary count = %d, want 12", all[2].Count)
	}

	perf, err := store.ListViolations(ctx, storage.ViolationFilter{Layer: "performance"})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(perf) != 2 {
		t.Errorf("layer filter returned %d, want 2", len(perf))
	}

	grave, err := store.ListViolations(ctx, storage.ViolationFilter{MinSeverity: storage.SeverityError})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(grave) != 2 {
		t.Errorf("severity filter returned %d, want 2", len(grave))
	}

	recent, err := store.ListViolations(ctx, storage.ViolationFilter{Since: base.Add(time.Second)})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(recent) != 2 {
		t.Errorf("since filter returned %d, want 2", len(recent))
	}

	limited, err := store.ListViolations(ctx, storage.ViolationFilter{Limit: 1})
	if err != nil {
		t.Fatalf("ListViolations() error = %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("limit filter returned %d, want 1", len(limited))
	}
}
