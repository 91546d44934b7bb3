package layers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/host"
	"github.com/docflowGM/holocron/internal/storage"
)

// EventStorm detects bursts of host change events: more than limit changes
// inside a sliding window is a storm, reported WARN and escalating through
// aggregation if it keeps up.
type EventStorm struct {
	source ChangeSource
	window time.Duration
	limit  int

	mu    sync.Mutex
	times []time.Time
}

// NewEventStorm creates the layer over a change source.
func NewEventStorm(source ChangeSource, window time.Duration, limit int) *EventStorm {
	return &EventStorm{source: source, window: window, limit: limit}
}

// Init subscribes to the change source.
func (l *EventStorm) Init(_ context.Context, r *monitor.Registry) error {
	if l.source == nil {
		return errors.New("change source is required")
	}
	if l.window <= 0 || l.limit <= 0 {
		return errors.New("window and limit must be positive")
	}
	l.source.Subscribe(func(c host.Change) {
		if count, storming := l.observe(c.At); storming {
			_ = r.Report(context.Background(), LayerEventStorm, storage.SeverityWarn,
				fmt.Sprintf("%d entity changes inside %s", count, l.window),
				map[string]any{"count": count, "window_ms": l.window.Milliseconds()},
				monitor.ReportOptions{AggregateKey: "eventstorm", EntityID: c.EntityID},
			)
		}
	})
	return nil
}

// observe slides the window forward and reports whether the burst limit is
// exceeded.
func (l *EventStorm) observe(at time.Time) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := at.Add(-l.window)
	kept := l.times[:0]
	for _, t := range l.times {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.times = append(kept, at)
	return len(l.times), len(l.times) > l.limit
}
