package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/selector"
)

// ErrNoSupply means no driver was online at all. Surfaced separately
// from "no match" so the rider UI can show "searching" rather than an
// error.
var ErrNoSupply = errors.New("no drivers online")

// Coordinator fans a ride offer out to ranked candidates and resolves
// the first-acceptance race. The ride store's compare-and-set is the
// arbiter; the coordinator only routes offers and notices around it.
type Coordinator struct {
	Selector   *selector.Selector
	Rides      *ride.Service
	Notifier   notify.Publisher
	Log        *slog.Logger
	SessionTTL time.Duration // default 45s
	OfferTTL   time.Duration // default 15s, advisory for driver UI

	mu       sync.Mutex
	sessions map[int64]*session
}

// session is the transient in-memory state of one fanout: the
// remaining audience and a single-writer winner slot. It dies with the
// first committed acceptance or the timeout.
type session struct {
	rideID   int64
	mu       sync.Mutex
	audience map[string]models.Driver
	winner   string
	resolved bool
	timer    *time.Timer
}

func NewCoordinator(sel *selector.Selector, rides *ride.Service, notifier notify.Publisher, log *slog.Logger) *Coordinator {
	return &Coordinator{
		Selector: sel,
		Rides:    rides,
		Notifier: notifier,
		Log:      log,
		sessions: make(map[int64]*session),
	}
}

func (c *Coordinator) sessionTTL() time.Duration {
	if c.SessionTTL > 0 {
		return c.SessionTTL
	}
	return 45 * time.Second
}

func (c *Coordinator) offerTTL() time.Duration {
	if c.OfferTTL > 0 {
		return c.OfferTTL
	}
	return 15 * time.Second
}

// Dispatch opens a session for a freshly created ride and broadcasts
// the offer. Returns ErrNoSupply when nobody is online; a non-empty
// pool with zero matches degrades to broadcasting the raw offer to
// the whole pool.
func (c *Coordinator) Dispatch(ctx context.Context, r *models.Ride, req models.RideRequest) error {
	sel, err := c.Selector.Select(ctx, req)
	if err != nil {
		return err
	}
	if len(sel.Pool) == 0 {
		return ErrNoSupply
	}

	audience := make(map[string]models.Driver)
	offers := make([]offer, 0, len(sel.Candidates))
	if len(sel.Candidates) > 0 {
		observability.CandidatePoolSize.Observe(float64(len(sel.Candidates)))
		for _, cand := range sel.Candidates {
			audience[cand.Driver.ID] = cand.Driver
			offers = append(offers, offer{driver: cand.Driver, extra: map[string]any{
				"distance_km": cand.DistanceKm,
				"eta_seconds": cand.ETASeconds,
				"score":       cand.Score,
			}})
		}
		if sel.Degraded {
			observability.DispatchDegraded.Inc()
			c.log().Warn("degraded-match dispatch", "ride", r.ID, "vehicle_class", req.VehicleClass, "pool", len(sel.Pool))
		}
	} else {
		// Supply exhausted for the strict filters: broadcast the raw
		// offer to every online driver. Explicit degraded path.
		observability.DispatchDegraded.Inc()
		c.log().Warn("broadcast dispatch, selection empty", "ride", r.ID, "pool", len(sel.Pool))
		for _, d := range sel.Pool {
			audience[d.ID] = d
			offers = append(offers, offer{driver: d, extra: map[string]any{"broadcast": true}})
		}
	}

	s := &session{rideID: r.ID, audience: audience}
	s.timer = time.AfterFunc(c.sessionTTL(), func() { c.expire(r.ID) })

	c.mu.Lock()
	if old, ok := c.sessions[r.ID]; ok {
		old.timer.Stop()
	}
	c.sessions[r.ID] = s
	c.mu.Unlock()

	observability.DispatchSessions.Inc()

	expiresAt := time.Now().UTC().Add(c.offerTTL())
	for _, o := range offers {
		o := o
		// Best-effort broadcast: no candidate waits on another's
		// delivery or timeout.
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			o.extra["expires_at"] = expiresAt
			env := notify.NewEnvelope(models.EventRideRequest, r, o.extra)
			if err := c.Notifier.Publish(sendCtx, notify.RecipientFor(o.driver.Aliases()...), models.EventRideRequest, env); err != nil {
				c.log().Warn("offer delivery failed", "ride", r.ID, "driver", o.driver.ID, "error", err)
				return
			}
			observability.OffersSent.Inc()
		}()
	}
	return nil
}

type offer struct {
	driver models.Driver
	extra  map[string]any
}

// Accept is a candidate's attempt to take the ride. The lifecycle
// service's conditional commit decides the race; on a win the session
// resolves: losers get a "taken" notice and the rider gets the
// acceptance with the OTP.
func (c *Coordinator) Accept(ctx context.Context, rideID int64, driverID string) (*models.Ride, error) {
	driver := c.driverSnapshot(rideID, driverID)
	r, err := c.Rides.Accept(ctx, rideID, driver)
	if err != nil {
		return nil, err
	}

	losers := c.resolve(rideID, driverID)
	for _, l := range losers {
		l := l
		go func() {
			sendCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			env := notify.NewEnvelope(models.EventRideRejected, r, map[string]any{"reason": "taken"})
			if err := c.Notifier.Publish(sendCtx, notify.RecipientFor(l.Aliases()...), models.EventRideRejected, env); err != nil {
				c.log().Debug("taken notice undelivered", "ride", rideID, "driver", l.ID, "error", err)
			}
		}()
	}

	env := notify.NewEnvelope(models.EventRideAccepted, r, map[string]any{
		"otp":    r.OTP,
		"driver": driver,
	})
	if err := c.Notifier.Publish(ctx, notify.RecipientFor(r.RiderID), models.EventRideAccepted, env); err != nil {
		c.log().Warn("rider acceptance notice failed", "ride", rideID, "error", err)
	}
	return r, nil
}

// Reject removes the driver from the session's remaining audience. It
// never changes the ride and never ends the session; the timeout does
// that if everyone declines.
func (c *Coordinator) Reject(rideID int64, driverID string) {
	c.mu.Lock()
	s, ok := c.sessions[rideID]
	c.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	delete(s.audience, driverID)
	s.mu.Unlock()
}

// Close tears down any open session for the ride, used when the ride
// is cancelled while the fanout is still live.
func (c *Coordinator) Close(rideID int64) {
	c.mu.Lock()
	s, ok := c.sessions[rideID]
	if ok {
		delete(c.sessions, rideID)
	}
	c.mu.Unlock()
	if ok {
		s.timer.Stop()
	}
}

// resolve records the winner and returns the losing audience. The
// session is destroyed; only the first caller gets losers back.
func (c *Coordinator) resolve(rideID int64, winnerID string) []models.Driver {
	c.mu.Lock()
	s, ok := c.sessions[rideID]
	if ok {
		delete(c.sessions, rideID)
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resolved {
		return nil
	}
	s.resolved = true
	s.winner = winnerID
	s.timer.Stop()
	losers := make([]models.Driver, 0, len(s.audience))
	for id, d := range s.audience {
		if id == winnerID {
			continue
		}
		losers = append(losers, d)
	}
	return losers
}

// expire fires when no candidate accepted within the window. The ride
// stays pending for re-dispatch or poll-based discovery, but the rider
// is told "no driver found yet" instead of being left hanging.
func (c *Coordinator) expire(rideID int64) {
	c.mu.Lock()
	s, ok := c.sessions[rideID]
	if ok {
		delete(c.sessions, rideID)
	}
	c.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	resolved := s.resolved
	s.mu.Unlock()
	if resolved {
		return
	}

	observability.DispatchTimeouts.Inc()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	r, err := c.Rides.Get(ctx, rideID)
	if err != nil || r.Status != models.StatusPending {
		return
	}
	c.log().Info("dispatch session expired", "ride", rideID)
	env := notify.NewEnvelope(models.EventRideRequest, r, map[string]any{"status": "no_driver_found"})
	if err := c.Notifier.Publish(ctx, notify.RecipientFor(r.RiderID), models.EventRideRequest, env); err != nil {
		c.log().Warn("no-driver notice failed", "ride", rideID, "error", err)
	}
}

// driverSnapshot recovers the full driver record from the session
// audience when available; a bare id is enough for the commit itself.
func (c *Coordinator) driverSnapshot(rideID int64, driverID string) models.Driver {
	c.mu.Lock()
	s, ok := c.sessions[rideID]
	c.mu.Unlock()
	if ok {
		s.mu.Lock()
		d, found := s.audience[driverID]
		s.mu.Unlock()
		if found {
			return d
		}
	}
	return models.Driver{ID: driverID}
}

func (c *Coordinator) log() *slog.Logger {
	if c.Log != nil {
		return c.Log
	}
	return slog.Default()
}
