package layers

import (
	"context"
	"errors"

	"github.com/docflowGM/holocron/internal/governance/monitor"
	"github.com/docflowGM/holocron/internal/host"
	"github.com/docflowGM/holocron/internal/storage"
)

// Sovereignty watches host change notifications for writes that did not go
// through the mutation authority. Any such write means the governance
// invariant itself was bypassed, which is the one CRITICAL-by-design case.
type Sovereignty struct {
	source ChangeSource
}

// NewSovereignty creates the layer over a change source.
func NewSovereignty(source ChangeSource) *Sovereignty {
	return &Sovereignty{source: source}
}

// Init subscribes to the change source.
func (l *Sovereignty) Init(_ context.Context, r *monitor.Registry) error {
	if l.source == nil {
		return errors.New("change source is required")
	}
	l.source.Subscribe(func(c host.Change) {
		if c.Origin == host.OriginAuthority {
			return
		}
		// The bypassing write already landed; in enforce mode the report's
		// ErrEnforced has no operation left to abort, so it is dropped here.
		_ = r.Report(context.Background(), LayerSovereignty, storage.SeverityCritical,
			"entity state changed outside the mutation authority",
			map[string]any{"origin": c.Origin},
			monitor.ReportOptions{EntityID: c.EntityID},
		)
	})
	return nil
}
