package payments

import (
	"context"
	"sync"
)

// Gateway is the charge-capture collaborator the lifecycle talks to.
// All calls are best-effort from the core's perspective: failures are
// logged and never roll back a committed state transition.
type Gateway interface {
	// Hold places an authorization for the quoted fare when a driver
	// accepts. Returns a gateway reference for later capture/release.
	Hold(ctx context.Context, rideID int64, amount int64, currency, customerID string) (string, error)
	// Capture finalizes a previously held amount at completion.
	Capture(ctx context.Context, ref string) error
	// Release voids the hold when the ride is cancelled.
	Release(ctx context.Context, ref string) error
}

// HoldLedger remembers the gateway reference per ride between accept
// and completion. In-memory is fine: losing it only forfeits a
// capture, never ride-state correctness.
type HoldLedger struct {
	mu   sync.Mutex
	refs map[int64]string
}

func NewHoldLedger() *HoldLedger {
	return &HoldLedger{refs: make(map[int64]string)}
}

func (l *HoldLedger) Put(rideID int64, ref string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refs[rideID] = ref
}

func (l *HoldLedger) Take(rideID int64) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ref, ok := l.refs[rideID]
	if ok {
		delete(l.refs, rideID)
	}
	return ref, ok
}
