package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/platform/id"
	"github.com/docflowGM/holocron/internal/storage"
)

// AppendMutation stores a record inside a transaction, assigning its id and
// per-entity sequence number.
func (s *Store) AppendMutation(ctx context.Context, rec storage.MutationRecord) (storage.MutationRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.MutationRecord{}, fmt.Errorf("store is not initialized")
	}
	if rec.EntityID == "" {
		return storage.MutationRecord{}, fmt.Errorf("entity id is required")
	}
	if !rec.Outcome.IsValid() {
		return storage.MutationRecord{}, fmt.Errorf("invalid outcome %q", rec.Outcome)
	}

	if rec.ID == "" {
		recordID, err := id.NewID()
		if err != nil {
			return storage.MutationRecord{}, fmt.Errorf("generate record id: %w", err)
		}
		rec.ID = recordID
	}
	if rec.AppliedAt.IsZero() {
		rec.AppliedAt = time.Now().UTC()
	}
	rec.AppliedAt = rec.AppliedAt.UTC().Truncate(time.Millisecond)

	deltaJSON, err := json.Marshal(rec.Delta)
	if err != nil {
		return storage.MutationRecord{}, fmt.Errorf("marshal delta: %w", err)
	}
	snapshotJSON, err := json.Marshal(snapshotDoc{
		EntityID:    rec.SnapshotBefore.EntityID,
		Fields:      rec.SnapshotBefore.Fields,
		Collections: rec.SnapshotBefore.Collections,
		TakenAt:     rec.SnapshotBefore.TakenAt.UTC().UnixMilli(),
	})
	if err != nil {
		return storage.MutationRecord{}, fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return storage.MutationRecord{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	seq, err := nextSeq(ctx, tx, rec.EntityID)
	if err != nil {
		return storage.MutationRecord{}, err
	}
	rec.Seq = seq

	_, err = tx.ExecContext(ctx, `
		INSERT INTO mutations (
			id, entity_id, seq, delta_json, snapshot_json,
			applied_at, origin, outcome, rolled_back_from, reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.EntityID,
		rec.Seq,
		deltaJSON,
		snapshotJSON,
		rec.AppliedAt.UnixMilli(),
		rec.Origin,
		string(rec.Outcome),
		rec.RolledBackFrom,
		rec.Reason,
	)
	if err != nil {
		return storage.MutationRecord{}, fmt.Errorf("insert mutation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return storage.MutationRecord{}, fmt.Errorf("commit transaction: %w", err)
	}

	return rec, nil
}

// GetMutation retrieves a record by id.
func (s *Store) GetMutation(ctx context.Context, recordID string) (storage.MutationRecord, error) {
	if s == nil || s.sqlDB == nil {
		return storage.MutationRecord{}, fmt.Errorf("store is not initialized")
	}

	row := s.sqlDB.QueryRowContext(ctx, `
		SELECT id, entity_id, seq, delta_json, snapshot_json,
			applied_at, origin, outcome, rolled_back_from, reason
		FROM mutations
		WHERE id = ?
	`, recordID)

	rec, err := scanMutation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return storage.MutationRecord{}, storage.ErrNotFound
		}
		return storage.MutationRecord{}, fmt.Errorf("query mutation: %w", err)
	}
	return rec, nil
}

// ListMutations returns an entity's records with seq > afterSeq, ordered by
// sequence ascending, up to limit.
func (s *Store) ListMutations(ctx context.Context, entityID string, afterSeq uint64, limit int) ([]storage.MutationRecord, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT id, entity_id, seq, delta_json, snapshot_json,
			applied_at, origin, outcome, rolled_back_from, reason
		FROM mutations
		WHERE entity_id = ? AND seq > ?
		ORDER BY seq ASC
		LIMIT ?
	`, entityID, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("query mutations: %w", err)
	}
	defer rows.Close()

	var out []storage.MutationRecord
	for rows.Next() {
		rec, err := scanMutation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan mutation: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mutations: %w", err)
	}
	return out, nil
}

// snapshotDoc is the JSON shape persisted for snapshots. TakenAt is stored
// as Unix milliseconds to match the rest of the schema.
type snapshotDoc struct {
	EntityID    string                  `json:"entity_id"`
	Fields      map[string]any          `json:"fields,omitempty"`
	Collections map[string][]delta.Item `json:"collections,omitempty"`
	TakenAt     int64                   `json:"taken_at"`
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMutation(row rowScanner) (storage.MutationRecord, error) {
	var (
		rec          storage.MutationRecord
		deltaJSON    []byte
		snapshotJSON []byte
		appliedAtMs  int64
		outcome      string
	)

	err := row.Scan(
		&rec.ID,
		&rec.EntityID,
		&rec.Seq,
		&deltaJSON,
		&snapshotJSON,
		&appliedAtMs,
		&rec.Origin,
		&outcome,
		&rec.RolledBackFrom,
		&rec.Reason,
	)
	if err != nil {
		return storage.MutationRecord{}, err
	}

	if err := json.Unmarshal(deltaJSON, &rec.Delta); err != nil {
		return storage.MutationRecord{}, fmt.Errorf("unmarshal delta: %w", err)
	}
	var doc snapshotDoc
	if err := json.Unmarshal(snapshotJSON, &doc); err != nil {
		return storage.MutationRecord{}, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	rec.SnapshotBefore = delta.Snapshot{
		EntityID:    doc.EntityID,
		Fields:      doc.Fields,
		Collections: doc.Collections,
		TakenAt:     time.UnixMilli(doc.TakenAt).UTC(),
	}
	rec.AppliedAt = time.UnixMilli(appliedAtMs).UTC()
	rec.Outcome = storage.Outcome(outcome)
	return rec, nil
}

// nextSeq initializes or increments the per-entity sequence counter inside
// the caller's transaction and returns the sequence for the new record.
func nextSeq(ctx context.Context, tx *sql.Tx, entityID string) (uint64, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO mutation_seq (entity_id, next_seq) VALUES (?, 0)
		ON CONFLICT (entity_id) DO NOTHING
	`, entityID)
	if err != nil {
		return 0, fmt.Errorf("init sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE mutation_seq SET next_seq = next_seq + 1 WHERE entity_id = ?
	`, entityID)
	if err != nil {
		return 0, fmt.Errorf("increment sequence: %w", err)
	}

	var seq uint64
	row := tx.QueryRowContext(ctx, `
		SELECT next_seq FROM mutation_seq WHERE entity_id = ?
	`, entityID)
	if err := row.Scan(&seq); err != nil {
		return 0, fmt.Errorf("read sequence: %w", err)
	}
	return seq, nil
}

var _ storage.MutationLogStore = (*Store)(nil)
