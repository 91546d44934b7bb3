package layers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/storage"
)

// Performance watches mutation timings against a soft budget. Breaches are
// WARN and escalate to ERROR through aggregation when they repeat. The
// layer only observes; it never cancels the underlying operation.
type Performance struct {
	budget time.Duration
}

// NewPerformance creates the layer with the given per-mutation budget.
func NewPerformance(budget time.Duration) *Performance {
	return &Performance{budget: budget}
}

// Init subscribes to the registry's mutation events.
func (l *Performance) Init(_ context.Context, r *monitor.Registry) error {
	if l.budget <= 0 {
		return errors.New("performance budget must be positive")
	}
	r.ObserveMutations(func(e monitor.MutationEvent) {
		if e.Duration <= l.budget {
			return
		}
		_ = r.Report(context.Background(), LayerPerformance, storage.SeverityWarn,
			fmt.Sprintf("mutation took %s, budget %s", e.Duration, l.budget),
			map[string]any{"elapsed_ms": e.Duration.Milliseconds()},
			monitor.ReportOptions{
				AggregateKey: "performance:apply",
				EntityID:     e.Record.EntityID,
			},
		)
	})
	return nil
}
