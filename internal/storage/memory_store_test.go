package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/example/ride-dispatch/internal/models"
)

func testRequest() models.RideRequest {
	return models.RideRequest{
		RiderID: "r1",
		Pickup:  models.Coord{Lat: 1, Lng: 1},
		Drop:    models.Coord{Lat: 2, Lng: 2},
	}
}

func TestGetUnknownRide(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.GetRide(context.Background(), 99); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConditionalUpdateChecksStatus(t *testing.T) {
	m := NewMemoryStore()
	r, err := m.CreateRide(context.Background(), testRequest(), models.Fare{Total: 100})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ConditionalUpdate(context.Background(), r.ID, models.StatusAccepted, Patch{Status: models.StatusArrived}); !errors.Is(err, ErrPreconditionFailed) {
		t.Fatalf("expected precondition failure, got %v", err)
	}
	driver := "d1"
	got, err := m.ConditionalUpdate(context.Background(), r.ID, models.StatusPending, Patch{Status: models.StatusAccepted, DriverID: &driver})
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusAccepted || got.DriverID != "d1" {
		t.Fatalf("patch not applied: %+v", got)
	}
}

// Concurrent accept and cancel race on the same pending ride: the
// store's compare-and-set is the tie-breaker and exactly one update
// lands.
func TestConditionalUpdateRace(t *testing.T) {
	m := NewMemoryStore()
	r, _ := m.CreateRide(context.Background(), testRequest(), models.Fare{})

	driver := "d1"
	by := "rider:r1"
	updates := []Patch{
		{Status: models.StatusAccepted, DriverID: &driver},
		{Status: models.StatusCancelled, CancelledBy: &by},
	}
	errs := make(chan error, len(updates))
	var start sync.WaitGroup
	start.Add(1)
	for _, p := range updates {
		p := p
		go func() {
			start.Wait()
			_, err := m.ConditionalUpdate(context.Background(), r.ID, models.StatusPending, p)
			errs <- err
		}()
	}
	start.Done()

	var wins, precond int
	for i := 0; i < len(updates); i++ {
		switch err := <-errs; {
		case err == nil:
			wins++
		case errors.Is(err, ErrPreconditionFailed):
			precond++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || precond != 1 {
		t.Fatalf("wins=%d precondition failures=%d, want 1/1", wins, precond)
	}
}

func TestReturnsCopies(t *testing.T) {
	m := NewMemoryStore()
	r, _ := m.CreateRide(context.Background(), testRequest(), models.Fare{})
	r.Status = models.StatusCompleted // mutate the copy
	got, _ := m.GetRide(context.Background(), r.ID)
	if got.Status != models.StatusPending {
		t.Fatal("store leaked its internal ride pointer")
	}
}
