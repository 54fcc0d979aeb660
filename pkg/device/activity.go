package device

import (
	"sync"
	"time"
)

// Activity tracks whether the device is busy with a workflow. The power
// manager uses IdleSince to decide when to sleep.
type Activity struct {
	mu        sync.Mutex
	busy      bool
	idleSince time.Time
	now       func() time.Time
}

// NewActivity returns an idle monitor. A nil clock uses time.Now.
func NewActivity(now func() time.Time) *Activity {
	if now == nil {
		now = time.Now
	}
	return &Activity{now: now, idleSince: now()}
}

// MarkBusy records the start of a workflow.
func (a *Activity) MarkBusy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.busy = true
}

// MarkIdle records the end of a workflow. It touches memory only.
func (a *Activity) MarkIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.busy {
		a.idleSince = a.now()
	}
	a.busy = false
}

// Busy reports whether a workflow is running.
func (a *Activity) Busy() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.busy
}

// IdleSince returns when the device last became idle.
func (a *Activity) IdleSince() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idleSince
}
