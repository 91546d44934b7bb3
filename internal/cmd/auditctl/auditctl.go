// Package auditctl exports mutation audit records and governance violations
// from a kernel database as JSON, for offline inspection and tooling.
package auditctl

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/platform/config"
	"github.com/docflowGM/holocron/internal/storage"
	"github.com/docflowGM/holocron/internal/storage/sqlite"
)

// Export kinds accepted by the -kind flag.
const (
	KindMutations  = "mutations"
	KindViolations = "violations"
)

// defaultLimit bounds exports when the caller gives no limit.
const defaultLimit = 1000

// Config holds export configuration.
type Config struct {
	DBPath      string `env:"HOLOCRON_DB_PATH"`
	Kind        string
	EntityID    string
	AfterSeq    uint64
	Layer       string
	MinSeverity string
	Since       string
	Limit       int
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	cfg.Kind = KindMutations
	cfg.Limit = defaultLimit

	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "sqlite database path")
	fs.StringVar(&cfg.Kind, "kind", cfg.Kind, "what to export: mutations or violations")
	fs.StringVar(&cfg.EntityID, "entity", cfg.EntityID, "entity id (required for mutations, optional filter for violations)")
	fs.Uint64Var(&cfg.AfterSeq, "after-seq", cfg.AfterSeq, "export mutations with sequence numbers greater than this")
	fs.StringVar(&cfg.Layer, "layer", cfg.Layer, "restrict violations to one monitor layer")
	fs.StringVar(&cfg.MinSeverity, "min-severity", cfg.MinSeverity, "lowest violation severity to include")
	fs.StringVar(&cfg.Since, "since", cfg.Since, "RFC 3339 lower bound on violation time")
	fs.IntVar(&cfg.Limit, "limit", cfg.Limit, "maximum records to export")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type mutationExport struct {
	ID             string         `json:"id"`
	EntityID       string         `json:"entity_id"`
	Seq            uint64         `json:"seq"`
	Delta          delta.Delta    `json:"delta"`
	SnapshotBefore delta.Snapshot `json:"snapshot_before"`
	AppliedAt      time.Time      `json:"applied_at"`
	Origin         string         `json:"origin"`
	Outcome        string         `json:"outcome"`
	RolledBackFrom string         `json:"rolled_back_from,omitempty"`
	Reason         string         `json:"reason,omitempty"`
}

type violationExport struct {
	ID           string         `json:"id"`
	Layer        string         `json:"layer"`
	Severity     string         `json:"severity"`
	Message      string         `json:"message"`
	Context      map[string]any `json:"context,omitempty"`
	AggregateKey string         `json:"aggregate_key,omitempty"`
	EntityID     string         `json:"entity_id,omitempty"`
	Count        int            `json:"count"`
	Timestamp    time.Time      `json:"timestamp"`
}

// Run opens the database and writes the requested export to out.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if cfg.DBPath == "" {
		return fmt.Errorf("database path is required")
	}

	store, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Printf("close database: %v", err)
		}
	}()

	switch cfg.Kind {
	case KindMutations:
		return exportMutations(ctx, cfg, store, out)
	case KindViolations:
		return exportViolations(ctx, cfg, store, out)
	default:
		return fmt.Errorf("kind %q is not supported", cfg.Kind)
	}
}

func exportMutations(ctx context.Context, cfg Config, store *sqlite.Store, out io.Writer) error {
	if cfg.EntityID == "" {
		return fmt.Errorf("entity id is required for a mutation export")
	}
	records, err := store.ListMutations(ctx, cfg.EntityID, cfg.AfterSeq, cfg.Limit)
	if err != nil {
		return fmt.Errorf("list mutations: %w", err)
	}

	exports := make([]mutationExport, len(records))
	for i, rec := range records {
		exports[i] = mutationExport{
			ID:             rec.ID,
			EntityID:       rec.EntityID,
			Seq:            rec.Seq,
			Delta:          rec.Delta,
			SnapshotBefore: rec.SnapshotBefore,
			AppliedAt:      rec.AppliedAt.UTC(),
			Origin:         rec.Origin,
			Outcome:        string(rec.Outcome),
			RolledBackFrom: rec.RolledBackFrom,
			Reason:         rec.Reason,
		}
	}
	return writeJSON(out, exports)
}

func exportViolations(ctx context.Context, cfg Config, store *sqlite.Store, out io.Writer) error {
	filter := storage.ViolationFilter{
		Layer:       cfg.Layer,
		EntityID:    cfg.EntityID,
		MinSeverity: storage.Severity(cfg.MinSeverity),
		Limit:       cfg.Limit,
	}
	if filter.MinSeverity != "" && filter.MinSeverity.Rank() < 0 {
		return fmt.Errorf("min severity %q is not a known severity", cfg.MinSeverity)
	}
	if cfg.Since != "" {
		since, err := time.Parse(time.RFC3339, cfg.Since)
		if err != nil {
			return fmt.Errorf("parse since: %w", err)
		}
		filter.Since = since
	}

	violations, err := store.ListViolations(ctx, filter)
	if err != nil {
		return fmt.Errorf("list violations: %w", err)
	}

	exports := make([]violationExport, len(violations))
	for i, v := range violations {
		exports[i] = violationExport{
			ID:           v.ID,
			Layer:        v.Layer,
			Severity:     string(v.Severity),
			Message:      v.Message,
			Context:      v.Context,
			AggregateKey: v.AggregateKey,
			EntityID:     v.EntityID,
			Count:        v.Count,
			Timestamp:    v.Timestamp.UTC(),
		}
	}
	return writeJSON(out, exports)
}

func writeJSON(out io.Writer, value any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
