package directory

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Directory is the authoritative view of drivers. The selector queries
// it at dispatch time instead of keeping a process-wide cache, trading
// a lookup per dispatch for freedom from stale-state races.
type Directory interface {
	// ListOnlineDrivers returns every driver currently flagged online.
	// No filtering beyond the online flag happens here.
	ListOnlineDrivers(ctx context.Context) ([]models.Driver, error)
	// Upsert records a driver snapshot (location, flags, metadata).
	Upsert(ctx context.Context, d models.Driver) error
	// SetAvailable flips the availability flag. Last writer wins; the
	// flag is advisory, not safety-critical.
	SetAvailable(ctx context.Context, driverID string, available bool) error
	// RecordCompletion bumps the driver's completed-ride count and, if
	// rating > 0, folds it into the running average weighted by rides
	// completed so far.
	RecordCompletion(ctx context.Context, driverID string, rating float64) error
}

// FoldRating returns the weighted running average after adding one
// rating to count prior rides at average old.
func FoldRating(old float64, count int, rating float64) float64 {
	if count < 0 {
		count = 0
	}
	return (old*float64(count) + rating) / float64(count+1)
}

// Memory is a mutex-guarded in-process directory for tests and local
// runs without Redis.
type Memory struct {
	mu      sync.RWMutex
	drivers map[string]models.Driver
}

func NewMemory() *Memory {
	return &Memory{drivers: make(map[string]models.Driver)}
}

func (m *Memory) ListOnlineDrivers(ctx context.Context) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Driver, 0, len(m.drivers))
	for _, d := range m.drivers {
		if d.Online {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *Memory) Upsert(ctx context.Context, d models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Updated = time.Now().UTC()
	m.drivers[d.ID] = d
	return nil
}

func (m *Memory) SetAvailable(ctx context.Context, driverID string, available bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil
	}
	d.Available = available
	m.drivers[driverID] = d
	return nil
}

func (m *Memory) RecordCompletion(ctx context.Context, driverID string, rating float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return nil
	}
	if rating > 0 {
		d.Rating = FoldRating(d.Rating, d.CompletedRides, rating)
	}
	d.CompletedRides++
	m.drivers[driverID] = d
	return nil
}

// Get returns a driver snapshot, online or not. Used by tests and the
// availability endpoint.
func (m *Memory) Get(driverID string) (models.Driver, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[driverID]
	return d, ok
}
