package layers

import (
	"context"
	"sync"

	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/storage"
)

// Failure origins understood by the asyncfail layer.
const (
	// FailureOriginPanic marks a recovered panic in a kernel goroutine.
	FailureOriginPanic = "panic"
	// FailureOriginHost marks an asynchronous host-side failure.
	FailureOriginHost = "host"
)

// AsyncFailures captures asynchronous failures nobody else observed:
// panics recovered in kernel goroutines and host-reported rejections.
// Panics are ERROR, everything else WARN.
type AsyncFailures struct {
	mu       sync.Mutex
	registry *monitor.Registry
}

// NewAsyncFailures creates the layer.
func NewAsyncFailures() *AsyncFailures {
	return &AsyncFailures{}
}

// Init stores the registry and watches mutation events for rejections.
func (l *AsyncFailures) Init(_ context.Context, r *monitor.Registry) error {
	l.mu.Lock()
	l.registry = r
	l.mu.Unlock()

	r.ObserveMutations(func(e monitor.MutationEvent) {
		if e.Record.Outcome != storage.OutcomeRejected {
			return
		}
		_ = r.Report(context.Background(), LayerAsyncFail, storage.SeverityWarn,
			"host rejected a governed mutation",
			map[string]any{"reason": e.Record.Reason},
			monitor.ReportOptions{
				AggregateKey: "asyncfail:host-rejection",
				EntityID:     e.Record.EntityID,
			},
		)
	})
	return nil
}

// Capture records an unobserved asynchronous failure.
func (l *AsyncFailures) Capture(origin string, err error) {
	l.mu.Lock()
	r := l.registry
	l.mu.Unlock()
	if r == nil || err == nil {
		return
	}

	severity := storage.SeverityWarn
	if origin == FailureOriginPanic {
		severity = storage.SeverityError
	}
	_ = r.Report(context.Background(), LayerAsyncFail, severity,
		"unobserved asynchronous failure",
		map[string]any{"origin": origin, "error": err.Error()},
		monitor.ReportOptions{AggregateKey: "asyncfail:" + origin},
	)
}
