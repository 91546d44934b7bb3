// Package layers holds the kernel's watcher layers. Each layer is
// independent, hooks its own sources during Init, and talks to the rest of
// the system only through the monitor registry's Report surface.
package layers

import "github.com/docflowGM/holocron/internal/host"

// Stable layer identifiers, also the bootstrap priority order.
const (
	LayerSovereignty = "sovereignty"
	LayerStructure   = "structure"
	LayerAsyncFail   = "asyncfail"
	LayerPerformance = "performance"
	LayerEventStorm  = "eventstorm"
	LayerSurface     = "surface"
)

// ChangeSource is anything that can feed host change notifications to a
// layer. The in-memory host satisfies it.
type ChangeSource interface {
	Subscribe(host.ChangeObserver)
}
