// Package monitor is the runtime invariant watcher: a registry of
// independent layers that report severity-tagged violations through one
// shared surface with aggregation, sampling, and escalation. The registry
// is an explicit value owned by the process and injected where needed;
// there are no package globals.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/docflowGM/holocron/internal/governance/delta"
	"github.com/docflowGM/holocron/internal/storage"
)

// Mode controls what violations do beyond being recorded.
type Mode string

const (
	// ModeOff records nothing.
	ModeOff Mode = "off"
	// ModeMonitor records violations without behavioral effect.
	ModeMonitor Mode = "monitor"
	// ModeEnforce additionally aborts operations that report CRITICAL.
	ModeEnforce Mode = "enforce"
)

// ParseMode validates a mode string from configuration.
func ParseMode(value string) (Mode, error) {
	switch Mode(value) {
	case ModeOff, ModeMonitor, ModeEnforce:
		return Mode(value), nil
	}
	return "", fmt.Errorf("unknown monitor mode %q", value)
}

// ErrEnforced is returned by Report when a CRITICAL violation lands in
// enforce mode. The offending operation must abort; this is the only
// severity with a behavioral effect.
var ErrEnforced = errors.New("critical violation in enforce mode")

// ErrUnknownLayer indicates a report or disable for an unregistered layer.
var ErrUnknownLayer = errors.New("unknown layer")

// ErrDuplicateLayer indicates a second registration under the same id.
var ErrDuplicateLayer = errors.New("layer already registered")

// Layer is one registered watcher. Layers must not depend on each other's
// internal state; they talk only through the registry's Report surface.
type Layer interface {
	// Init prepares the layer and hooks it into its sources. Called once
	// during Bootstrap, in registration order.
	Init(ctx context.Context, r *Registry) error
}

// LayerState tracks a layer through its lifecycle.
type LayerState string

const (
	StateRegistered  LayerState = "registered"
	StateInitialized LayerState = "initialized"
	StateActive      LayerState = "active"
	StateDisabled    LayerState = "disabled"
	StateFailed      LayerState = "failed"
)

// ReportOptions tunes aggregation for a report. With an AggregateKey, the
// first Sample occurrences are recorded individually, later ones only
// counted; when the count crosses Threshold, exactly one summary record is
// emitted with the severity escalated one level.
type ReportOptions struct {
	AggregateKey string
	Sample       int
	Threshold    int
	EntityID     string
}

// ViolationObserver receives every recorded violation, synchronously, in
// registration order.
type ViolationObserver func(storage.Violation)

// MutationEvent is published by the mutation authority after every decided
// mutation so layers can watch the write path without coupling to it.
type MutationEvent struct {
	Record   storage.MutationRecord
	After    delta.Snapshot
	Duration time.Duration
}

// MutationObserver receives mutation events.
type MutationObserver func(MutationEvent)

// Options configures a Registry.
type Options struct {
	Mode Mode
	// SampleThreshold is the default Sample and Threshold for aggregated
	// reports that do not set their own.
	SampleThreshold int
	// Store persists violations; nil keeps them in counters only.
	Store storage.ViolationStore
	// Logger receives registry diagnostics; nil uses the default logger.
	Logger *log.Logger
}

type layerEntry struct {
	layer Layer
	state LayerState
}

type aggregateState struct {
	count     int
	escalated bool
}

// Registry owns the layer table, the violation counters, and the observer
// lists. Safe for concurrent use.
type Registry struct {
	mu         sync.Mutex
	mode       Mode
	defSample  int
	store      storage.ViolationStore
	logger     *log.Logger
	layers     map[string]*layerEntry
	order      []string
	aggregates map[string]*aggregateState
	byLayer    map[string]int
	bySeverity map[storage.Severity]int
	total      int

	violationObs []ViolationObserver
	mutationObs  []MutationObserver
}

// NewRegistry creates a registry in the given mode.
func NewRegistry(opts Options) *Registry {
	mode := opts.Mode
	if mode == "" {
		mode = ModeMonitor
	}
	sample := opts.SampleThreshold
	if sample <= 0 {
		sample = 3
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		mode:       mode,
		defSample:  sample,
		store:      opts.Store,
		logger:     logger,
		layers:     map[string]*layerEntry{},
		aggregates: map[string]*aggregateState{},
		byLayer:    map[string]int{},
		bySeverity: map[storage.Severity]int{},
	}
}

// Mode returns the registry's current mode.
func (r *Registry) Mode() Mode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}

// SetMode changes the registry's mode at runtime.
func (r *Registry) SetMode(mode Mode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

// RegisterLayer adds a layer under a stable id. Registration order is
// bootstrap priority order.
func (r *Registry) RegisterLayer(id string, layer Layer) error {
	if id == "" {
		return fmt.Errorf("layer id is required")
	}
	if layer == nil {
		return fmt.Errorf("layer %q is nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.layers[id]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateLayer, id)
	}
	r.layers[id] = &layerEntry{layer: layer, state: StateRegistered}
	r.order = append(r.order, id)
	return nil
}

// Bootstrap initializes registered layers in priority order. A failing
// layer is marked failed and skipped; the others still come up. The
// returned error joins the individual failures.
func (r *Registry) Bootstrap(ctx context.Context) error {
	r.mu.Lock()
	order := append([]string(nil), r.order...)
	r.mu.Unlock()

	var errs []error
	for _, id := range order {
		r.mu.Lock()
		entry, ok := r.layers[id]
		if !ok || entry.state != StateRegistered {
			r.mu.Unlock()
			continue
		}
		entry.state = StateInitialized
		layer := entry.layer
		r.mu.Unlock()

		if err := layer.Init(ctx, r); err != nil {
			r.mu.Lock()
			entry.state = StateFailed
			r.mu.Unlock()
			r.logger.Printf("monitor: layer %s failed to initialize: %v", id, err)
			errs = append(errs, fmt.Errorf("layer %s: %w", id, err))
			continue
		}

		r.mu.Lock()
		entry.state = StateActive
		r.mu.Unlock()
	}
	return errors.Join(errs...)
}

// Disable turns a layer off without affecting the others.
func (r *Registry) Disable(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.layers[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownLayer, id)
	}
	entry.state = StateDisabled
	return nil
}

// LayerStates returns a copy of the per-layer lifecycle states.
func (r *Registry) LayerStates() map[string]LayerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]LayerState, len(r.layers))
	for id, entry := range r.layers {
		out[id] = entry.state
	}
	return out
}

// Observe registers a violation observer.
func (r *Registry) Observe(fn ViolationObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violationObs = append(r.violationObs, fn)
}

// ObserveMutations registers a mutation observer.
func (r *Registry) ObserveMutations(fn MutationObserver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mutationObs = append(r.mutationObs, fn)
}

// PublishMutation fans a mutation event out to the mutation observers. A
// panicking observer is isolated from the rest.
func (r *Registry) PublishMutation(event MutationEvent) {
	r.mu.Lock()
	observers := append([]MutationObserver(nil), r.mutationObs...)
	r.mu.Unlock()

	for _, fn := range observers {
		r.invokeMutationObserver(fn, event)
	}
}

func (r *Registry) invokeMutationObserver(fn MutationObserver, event MutationEvent) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Printf("monitor: mutation observer panicked: %v", rec)
		}
	}()
	fn(event)
}

// Summary returns violation counts by layer, by severity, and in total.
func (r *Registry) Summary() (byLayer map[string]int, bySeverity map[storage.Severity]int, total int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byLayer = make(map[string]int, len(r.byLayer))
	for layer, count := range r.byLayer {
		byLayer[layer] = count
	}
	bySeverity = make(map[storage.Severity]int, len(r.bySeverity))
	for severity, count := range r.bySeverity {
		bySeverity[severity] = count
	}
	return byLayer, bySeverity, r.total
}
