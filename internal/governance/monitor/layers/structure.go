package layers

import (
	"context"
	"fmt"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/governance/intent"
	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/storage"
)

// Structure watches for structural-style contamination in entity state:
// collection items without ids, malformed prerequisite blocks. It scans the
// post-state of every governed mutation.
type Structure struct{}

// NewStructure creates the layer.
func NewStructure() *Structure {
	return &Structure{}
}

// Init subscribes to the registry's mutation events.
func (l *Structure) Init(_ context.Context, r *monitor.Registry) error {
	r.ObserveMutations(func(e monitor.MutationEvent) {
		if e.Record.Outcome != storage.OutcomeApplied &&
			e.Record.Outcome != storage.OutcomeRolledBack {
			return
		}
		l.Scan(context.Background(), r, e.After)
	})
	return nil
}

// Scan reports contamination found in the snapshot. Missing ids are ERROR
// because nothing can address the item again; malformed prerequisite
// blocks are WARN because the compiler and checker fail closed on them
// anyway.
func (l *Structure) Scan(ctx context.Context, r *monitor.Registry, snap delta.Snapshot) {
	for name, items := range snap.Collections {
		for i, item := range items {
			if delta.ItemID(item) == "" {
				_ = r.Report(ctx, LayerStructure, storage.SeverityError,
					fmt.Sprintf("collection %q item %d has no id", name, i),
					map[string]any{"collection": name, "index": i},
					monitor.ReportOptions{
						AggregateKey: "structure:missing-id:" + name,
						EntityID:     snap.EntityID,
					},
				)
				continue
			}
			if _, err := intent.ItemPrerequisites(item); err != nil {
				_ = r.Report(ctx, LayerStructure, storage.SeverityWarn,
					fmt.Sprintf("collection %q item %q: %v", name, delta.ItemID(item), err),
					map[string]any{"collection": name, "item": delta.ItemID(item)},
					monitor.ReportOptions{
						AggregateKey: "structure:bad-prerequisites:" + name,
						EntityID:     snap.EntityID,
					},
				)
			}
		}
	}
}
