package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docflowGM/holocron/internal/platform/id"
	"github.com/docflowGM/holocron/internal/storage"
)

// AppendViolation stores a violation and returns it with its id set.
func (s *Store) AppendViolation(ctx context.Context, v storage.Violation) (storage.Violation, error) {
	if s == nil || s.sqlDB == nil {
		return storage.Violation{}, fmt.Errorf("store is not initialized")
	}
	if v.Layer == "" {
		return storage.Violation{}, fmt.Errorf("layer is required")
	}

	if v.ID == "" {
		violationID, err := id.NewID()
		if err != nil {
			return storage.Violation{}, fmt.Errorf("generate violation id: %w", err)
		}
		v.ID = violationID
	}
	if v.Timestamp.IsZero() {
		v.Timestamp = time.Now().UTC()
	}
	v.Timestamp = v.Timestamp.UTC().Truncate(time.Millisecond)
	if v.Count <= 0 {
		v.Count = 1
	}

	contextJSON, err := json.Marshal(v.Context)
	if err != nil {
		return storage.Violation{}, fmt.Errorf("marshal context: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
		INSERT INTO violations (
			id, layer, severity, message, context_json,
			aggregate_key, entity_id, count, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		v.ID,
		v.Layer,
		string(v.Severity),
		v.Message,
		contextJSON,
		v.AggregateKey,
		v.EntityID,
		v.Count,
		v.Timestamp.UnixMilli(),
	)
	if err != nil {
		return storage.Violation{}, fmt.Errorf("insert violation: %w", err)
	}

	return v, nil
}

// ListViolations returns violations matching the filter, ordered by
// timestamp ascending. Severity filtering happens in Go because the ranking
// is not lexicographic.
func (s *Store) ListViolations(ctx context.Context, f storage.ViolationFilter) ([]storage.Violation, error) {
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("store is not initialized")
	}

	query := `
		SELECT id, layer, severity, message, context_json,
			aggregate_key, entity_id, count, timestamp
		FROM violations
		WHERE 1 = 1
	`
	var args []any
	if f.Layer != "" {
		query += " AND layer = ?"
		args = append(args, f.Layer)
	}
	if f.EntityID != "" {
		query += " AND entity_id = ?"
		args = append(args, f.EntityID)
	}
	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().UnixMilli())
	}
	query += " ORDER BY timestamp ASC"

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var out []storage.Violation
	for rows.Next() {
		var (
			v           storage.Violation
			severity    string
			contextJSON []byte
			timestampMs int64
		)
		err := rows.Scan(
			&v.ID,
			&v.Layer,
			&severity,
			&v.Message,
			&contextJSON,
			&v.AggregateKey,
			&v.EntityID,
			&v.Count,
			&timestampMs,
		)
		if err != nil {
			return nil, fmt.Errorf("scan violation: %w", err)
		}
		v.Severity = storage.Severity(severity)
		v.Timestamp = time.UnixMilli(timestampMs).UTC()
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &v.Context); err != nil {
				return nil, fmt.Errorf("unmarshal context: %w", err)
			}
		}

		if f.MinSeverity != "" && v.Severity.Rank() < f.MinSeverity.Rank() {
			continue
		}
		out = append(out, v)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate violations: %w", err)
	}
	return out, nil
}

var _ storage.ViolationStore = (*Store)(nil)
