package ride

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/storage"
)

type recNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recNotifier) Publish(ctx context.Context, to notify.Recipient, event string, payload any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func newService(t *testing.T) (*Service, *directory.Memory, *recNotifier) {
	t.Helper()
	dir := directory.NewMemory()
	n := &recNotifier{}
	s := &Service{
		Store:    storage.NewMemoryStore(),
		Dir:      dir,
		Notifier: n,
	}
	return s, dir, n
}

func validRequest() models.RideRequest {
	return models.RideRequest{
		RiderID:      "rider-1",
		Pickup:       models.Coord{Lat: 12.97, Lng: 77.59},
		Drop:         models.Coord{Lat: 12.90, Lng: 77.62},
		VehicleClass: "car",
	}
}

func TestCreateValidates(t *testing.T) {
	s, _, _ := newService(t)
	_, err := s.Create(context.Background(), models.RideRequest{RiderID: "r"})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	_, err = s.Create(context.Background(), models.RideRequest{
		Pickup: models.Coord{Lat: 1, Lng: 1}, Drop: models.Coord{Lat: 2, Lng: 2},
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for missing rider, got %v", err)
	}
}

func TestCreateAssignsSequenceIDs(t *testing.T) {
	s, _, _ := newService(t)
	a, err := s.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}
	if b.ID <= a.ID {
		t.Fatalf("ids not increasing: %d then %d", a.ID, b.ID)
	}
	if a.Status != models.StatusPending || a.Fare.Total <= 0 {
		t.Fatalf("unexpected ride: %+v", a)
	}
}

func TestConcurrentAcceptExactlyOneWins(t *testing.T) {
	s, _, _ := newService(t)
	r, err := s.Create(context.Background(), validRequest())
	if err != nil {
		t.Fatal(err)
	}

	type result struct {
		driver string
		err    error
	}
	results := make(chan result, 2)
	var start sync.WaitGroup
	start.Add(1)
	for _, id := range []string{"A", "B"} {
		id := id
		go func() {
			start.Wait()
			_, err := s.Accept(context.Background(), r.ID, models.Driver{ID: id})
			results <- result{driver: id, err: err}
		}()
	}
	start.Done()

	var winner string
	var losses int
	for i := 0; i < 2; i++ {
		res := <-results
		if res.err == nil {
			if winner != "" {
				t.Fatal("two accepts succeeded")
			}
			winner = res.driver
		} else if errors.Is(res.err, ErrRideUnavailable) {
			losses++
		} else {
			t.Fatalf("unexpected error: %v", res.err)
		}
	}
	if winner == "" || losses != 1 {
		t.Fatalf("winner=%q losses=%d", winner, losses)
	}

	got, err := s.Get(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.DriverID != winner || got.Status != models.StatusAccepted {
		t.Fatalf("ride driver=%q status=%q, want winner %q accepted", got.DriverID, got.Status, winner)
	}
	if got.OTP == "" || len(got.OTP) != 4 {
		t.Fatalf("expected 4-digit otp, got %q", got.OTP)
	}
}

func TestAcceptOnNonPendingFails(t *testing.T) {
	s, _, _ := newService(t)
	r, _ := s.Create(context.Background(), validRequest())
	if _, err := s.Accept(context.Background(), r.ID, models.Driver{ID: "A"}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Accept(context.Background(), r.ID, models.Driver{ID: "B"})
	if !errors.Is(err, ErrRideUnavailable) {
		t.Fatalf("expected ride unavailable, got %v", err)
	}
	got, _ := s.Get(context.Background(), r.ID)
	if got.DriverID != "A" {
		t.Fatalf("driver assignment overwritten: %q", got.DriverID)
	}
}

func TestArriveGuards(t *testing.T) {
	s, _, _ := newService(t)
	r, _ := s.Create(context.Background(), validRequest())
	if _, err := s.Arrive(context.Background(), r.ID, "A"); !errors.Is(err, ErrNotAssignedDriver) {
		t.Fatalf("arrive before accept: %v", err)
	}
	s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})
	if _, err := s.Arrive(context.Background(), r.ID, "B"); !errors.Is(err, ErrNotAssignedDriver) {
		t.Fatalf("arrive by stranger: %v", err)
	}
	got, err := s.Arrive(context.Background(), r.ID, "A")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusArrived || got.ArrivedAt == nil {
		t.Fatalf("unexpected ride after arrive: %+v", got)
	}
	if _, err := s.Arrive(context.Background(), r.ID, "A"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double arrive: %v", err)
	}
}

func TestActivateHappyPathAndReuse(t *testing.T) {
	s, _, n := newService(t)
	r, _ := s.Create(context.Background(), validRequest())
	r, _ = s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})

	if _, err := s.Activate(context.Background(), r.ID, "wrong"); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("wrong code: %v", err)
	}
	got, err := s.Activate(context.Background(), r.ID, r.OTP)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusStarted || !got.OTPVerified || got.StartedAt == nil {
		t.Fatalf("unexpected ride after activate: %+v", got)
	}
	if _, err := s.Activate(context.Background(), r.ID, r.OTP); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second activate: %v", err)
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	found := false
	for _, e := range n.events {
		if e == models.EventRideStarted {
			found = true
		}
	}
	if !found {
		t.Fatal("rideStarted never published")
	}
}

func TestActivateOTPFreshnessWindow(t *testing.T) {
	s, _, _ := newService(t)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := base
	s.Now = func() time.Time { return now }

	r, _ := s.Create(context.Background(), validRequest())
	r, _ = s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})

	now = base.Add(4*time.Minute + 59*time.Second)
	if _, err := s.Activate(context.Background(), r.ID, r.OTP); err != nil {
		t.Fatalf("activate at 4m59s should succeed: %v", err)
	}

	r2, _ := s.Create(context.Background(), validRequest())
	now = base
	r2, _ = s.Accept(context.Background(), r2.ID, models.Driver{ID: "A"})
	now = base.Add(5*time.Minute + time.Second)
	if _, err := s.Activate(context.Background(), r2.ID, r2.OTP); !errors.Is(err, ErrOTPExpired) {
		t.Fatalf("activate at 5m01s should expire: %v", err)
	}
}

func TestOTPBypassOnlyWhenEnabled(t *testing.T) {
	s, _, _ := newService(t)
	r, _ := s.Create(context.Background(), validRequest())
	r, _ = s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})
	wrong := "0000"
	if r.OTP == wrong {
		wrong = "0001"
	}
	if _, err := s.Activate(context.Background(), r.ID, wrong); !errors.Is(err, ErrOTPInvalid) {
		t.Fatalf("fixed code accepted without the test seam: %v", err)
	}

	s.Cfg.OTPTestBypass = true
	s.Cfg.OTPBypassCode = "9999"
	if _, err := s.Activate(context.Background(), r.ID, "9999"); err != nil {
		t.Fatalf("bypass code rejected with the seam on: %v", err)
	}
}

func TestResendOTPResetsAge(t *testing.T) {
	s, _, _ := newService(t)
	base := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	now := base
	s.Now = func() time.Time { return now }

	r, _ := s.Create(context.Background(), validRequest())
	r, _ = s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})

	now = base.Add(10 * time.Minute)
	r2, err := s.ResendOTP(context.Background(), r.ID)
	if err != nil {
		t.Fatal(err)
	}
	now = base.Add(12 * time.Minute)
	if _, err := s.Activate(context.Background(), r.ID, r2.OTP); err != nil {
		t.Fatalf("fresh code rejected: %v", err)
	}
}

func TestResendOTPRequiresAwaitingState(t *testing.T) {
	s, _, _ := newService(t)
	r, _ := s.Create(context.Background(), validRequest())
	if _, err := s.ResendOTP(context.Background(), r.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resend on pending: %v", err)
	}
}

func TestCompleteGuardsAndStats(t *testing.T) {
	s, dir, _ := newService(t)
	dir.Upsert(context.Background(), models.Driver{ID: "A", Rating: 4, CompletedRides: 1, Online: true, Available: true})

	r, _ := s.Create(context.Background(), validRequest())
	if _, err := s.Complete(context.Background(), r.ID, "A", 5); !errors.Is(err, ErrNotAssignedDriver) {
		t.Fatalf("complete before accept: %v", err)
	}
	r, _ = s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})
	if _, err := s.Complete(context.Background(), r.ID, "A", 5); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete before start: %v", err)
	}
	if _, err := s.Activate(context.Background(), r.ID, r.OTP); err != nil {
		t.Fatal(err)
	}
	got, err := s.Complete(context.Background(), r.ID, "A", 5)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCompleted || got.CompletedAt == nil {
		t.Fatalf("unexpected ride after complete: %+v", got)
	}

	d, _ := dir.Get("A")
	if d.CompletedRides != 2 {
		t.Fatalf("ride count = %d, want 2", d.CompletedRides)
	}
	// weighted running average: (4*1 + 5)/2
	if d.Rating != 4.5 {
		t.Fatalf("rating = %f, want 4.5", d.Rating)
	}
	if !d.Available {
		t.Fatal("driver not returned to pool after completion")
	}
}

func TestCancelRecordsActorAndFreesDriver(t *testing.T) {
	s, dir, _ := newService(t)
	dir.Upsert(context.Background(), models.Driver{ID: "A", Online: true, Available: true})

	r, _ := s.Create(context.Background(), validRequest())
	r, _ = s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})

	if _, err := s.Cancel(context.Background(), r.ID, "driver", "B", "whatever"); !errors.Is(err, ErrNotAssignedDriver) {
		t.Fatalf("cancel by stranger driver: %v", err)
	}
	got, err := s.Cancel(context.Background(), r.ID, "driver", "A", "vehicle breakdown")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != models.StatusCancelled || got.CancelledBy != "driver:A" || got.CancelReason != "vehicle breakdown" {
		t.Fatalf("unexpected ride after cancel: %+v", got)
	}
	d, _ := dir.Get("A")
	if !d.Available {
		t.Fatal("cancelling driver not returned to pool")
	}

	if _, err := s.Cancel(context.Background(), r.ID, "rider", "rider-1", "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("cancel of terminal ride: %v", err)
	}
}

func TestCancelFromEveryNonTerminalState(t *testing.T) {
	s, _, _ := newService(t)
	advance := map[string]func(r *models.Ride){
		"pending":  func(r *models.Ride) {},
		"accepted": func(r *models.Ride) { s.Accept(context.Background(), r.ID, models.Driver{ID: "A"}) },
		"arrived": func(r *models.Ride) {
			s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})
			s.Arrive(context.Background(), r.ID, "A")
		},
		"started": func(r *models.Ride) {
			s.Accept(context.Background(), r.ID, models.Driver{ID: "A"})
			cur, _ := s.Get(context.Background(), r.ID)
			s.Activate(context.Background(), r.ID, cur.OTP)
		},
	}
	for name, setup := range advance {
		r, err := s.Create(context.Background(), validRequest())
		if err != nil {
			t.Fatal(err)
		}
		setup(r)
		if _, err := s.Cancel(context.Background(), r.ID, "system", "", "test"); err != nil {
			t.Fatalf("cancel from %s: %v", name, err)
		}
	}
}
