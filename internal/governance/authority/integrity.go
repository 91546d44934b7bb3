package authority

import (
	"context"
	"fmt"

	"github.com/docflowGM/holocron/internal/governance/delta"
)

// scheduleIntegrity queues exactly one integrity pass for the entity. While
// a pass is outstanding the entity stays pending and newer snapshots
// replace the queued one instead of spawning redundant passes; the running
// goroutine drains until no newer snapshot remains.
func (a *Authority) scheduleIntegrity(entityID string, after delta.Snapshot, q *entityQueue) {
	if a.checker == nil {
		return
	}

	q.mu.Lock()
	snap := after.Clone()
	q.latest = &snap
	if q.pendingIntegrity {
		q.mu.Unlock()
		return
	}
	q.pendingIntegrity = true
	q.mu.Unlock()

	a.passWG.Add(1)
	go a.integrityLoop(entityID, q)
}

func (a *Authority) integrityLoop(entityID string, q *entityQueue) {
	defer a.passWG.Done()
	defer func() {
		if rec := recover(); rec != nil {
			q.mu.Lock()
			q.pendingIntegrity = false
			q.latest = nil
			q.mu.Unlock()
			a.onFailure("panic", fmt.Errorf("integrity pass for %s: %v", entityID, rec))
		}
	}()

	for {
		q.mu.Lock()
		snap := q.latest
		q.latest = nil
		if snap == nil {
			q.pendingIntegrity = false
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		a.runIntegrityPass(entityID, *snap)
	}
}

// runIntegrityPass evaluates the snapshot and persists findings not
// already known for the entity. Nothing here blocks or undoes the mutation
// that triggered it.
func (a *Authority) runIntegrityPass(entityID string, snap delta.Snapshot) {
	found := a.checker.Evaluate(snap)
	added, _, _ := a.checker.Delta(entityID, found)
	if a.violations == nil {
		return
	}
	for _, violation := range added {
		if _, err := a.violations.AppendViolation(context.Background(), violation); err != nil {
			a.onFailure("integrity", err)
		}
	}
}
