package storage

import (
	"context"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// MemoryStore keeps rides in a mutex-guarded map. The compare-and-set
// in ConditionalUpdate runs under the same lock, which gives the
// linearizable commit the dispatcher relies on within one process.
type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[int64]*models.Ride
	nextID int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rides: make(map[int64]*models.Ride)}
}

func (m *MemoryStore) CreateRide(ctx context.Context, req models.RideRequest, fare models.Fare) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	r := &models.Ride{
		ID:           m.nextID,
		RiderID:      req.RiderID,
		Pickup:       req.Pickup,
		Drop:         req.Drop,
		PickupAddr:   req.PickupAddr,
		DropAddr:     req.DropAddr,
		VehicleClass: req.VehicleClass,
		Fare:         fare,
		Status:       models.StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
	m.rides[r.ID] = r
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) ConditionalUpdate(ctx context.Context, id int64, expected models.RideStatus, patch Patch) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	if r.Status != expected {
		return nil, ErrPreconditionFailed
	}
	apply(r, patch)
	cp := *r
	return &cp, nil
}
