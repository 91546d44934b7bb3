package layers

import (
	"context"
	"fmt"
	"sync"

	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/storage"
)

// Surface watches host-reported render-surface health. A surface drawing
// with zero or negative extents is degenerate geometry and an ERROR.
type Surface struct {
	mu       sync.Mutex
	registry *monitor.Registry
}

// NewSurface creates the layer.
func NewSurface() *Surface {
	return &Surface{}
}

// Init stores the registry.
func (l *Surface) Init(_ context.Context, r *monitor.Registry) error {
	l.mu.Lock()
	l.registry = r
	l.mu.Unlock()
	return nil
}

// ObserveGeometry records one host-reported surface measurement.
func (l *Surface) ObserveGeometry(surfaceID string, width, height float64) {
	l.mu.Lock()
	r := l.registry
	l.mu.Unlock()
	if r == nil {
		return
	}
	if width > 0 && height > 0 {
		return
	}
	_ = r.Report(context.Background(), LayerSurface, storage.SeverityError,
		fmt.Sprintf("surface %q rendered with degenerate geometry %gx%g", surfaceID, width, height),
		map[string]any{"surface": surfaceID, "width": width, "height": height},
		monitor.ReportOptions{AggregateKey: "surface:" + surfaceID},
	)
}
