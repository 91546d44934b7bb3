package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/docflowGM/holocron/internal/storage"
)

// Report records a violation observed by a layer. Reports from unknown
// layers fail; reports from disabled or failed layers are dropped. In off
// mode nothing is recorded. In enforce mode a CRITICAL report returns
// ErrEnforced so the offending operation aborts.
func (r *Registry) Report(ctx context.Context, layerID string, severity storage.Severity, message string, vctx map[string]any, opts ReportOptions) error {
	if severity.Rank() < 0 {
		return fmt.Errorf("invalid severity %q", severity)
	}

	r.mu.Lock()
	entry, ok := r.layers[layerID]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownLayer, layerID)
	}
	if entry.state == StateDisabled || entry.state == StateFailed {
		r.mu.Unlock()
		return nil
	}
	if r.mode == ModeOff {
		r.mu.Unlock()
		return nil
	}
	mode := r.mode

	violation, record := r.admitLocked(layerID, severity, message, vctx, opts)
	r.mu.Unlock()

	if record {
		r.record(ctx, violation)
	}

	if mode == ModeEnforce && severity == storage.SeverityCritical {
		return fmt.Errorf("%w: layer %s: %s", ErrEnforced, layerID, message)
	}
	return nil
}

// admitLocked applies aggregation and decides whether this occurrence
// produces a record. Caller holds r.mu.
func (r *Registry) admitLocked(layerID string, severity storage.Severity, message string, vctx map[string]any, opts ReportOptions) (storage.Violation, bool) {
	violation := storage.Violation{
		Layer:        layerID,
		Severity:     severity,
		Message:      message,
		Context:      vctx,
		AggregateKey: opts.AggregateKey,
		EntityID:     opts.EntityID,
		Count:        1,
		Timestamp:    time.Now().UTC(),
	}

	if opts.AggregateKey == "" {
		r.countLocked(violation)
		return violation, true
	}

	sample := opts.Sample
	if sample <= 0 {
		sample = r.defSample
	}
	threshold := opts.Threshold
	if threshold <= 0 {
		threshold = r.defSample
	}

	agg, ok := r.aggregates[opts.AggregateKey]
	if !ok {
		agg = &aggregateState{}
		r.aggregates[opts.AggregateKey] = agg
	}
	agg.count++

	switch {
	case agg.count <= sample:
		r.countLocked(violation)
		return violation, true
	case agg.count > threshold && !agg.escalated:
		agg.escalated = true
		violation.Severity = severity.Escalate()
		violation.Message = fmt.Sprintf("%s (%d occurrences)", message, agg.count)
		violation.Count = agg.count
		r.countLocked(violation)
		return violation, true
	default:
		// counted, not recorded
		return storage.Violation{}, false
	}
}

func (r *Registry) countLocked(v storage.Violation) {
	r.byLayer[v.Layer]++
	r.bySeverity[v.Severity]++
	r.total++
}

// record persists the violation and fans it out to observers, isolating
// each observer's failure from the others.
func (r *Registry) record(ctx context.Context, violation storage.Violation) {
	if r.store != nil {
		stored, err := r.store.AppendViolation(ctx, violation)
		if err != nil {
			r.logger.Printf("monitor: persist violation failed: %v", err)
		} else {
			violation = stored
		}
	}

	r.mu.Lock()
	observers := append([]ViolationObserver(nil), r.violationObs...)
	r.mu.Unlock()

	for _, fn := range observers {
		r.invokeViolationObserver(fn, violation)
	}
}

func (r *Registry) invokeViolationObserver(fn ViolationObserver, violation storage.Violation) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("monitor: violation observer panicked: %v", rec)
		}
	}()
	fn(violation)
}
