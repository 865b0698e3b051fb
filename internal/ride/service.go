package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/payments"
	"github.com/example/ride-dispatch/internal/pricing"
	"github.com/example/ride-dispatch/internal/storage"
)

// Config tunes the lifecycle service.
type Config struct {
	OTPTTL time.Duration // default 5m
	// OTPTestBypass accepts OTPBypassCode in place of the real code.
	// Test seam only; production config must leave it off.
	OTPTestBypass  bool
	OTPBypassCode  string
	CommissionRate float64 // default 0.2
	Surge          float64 // default 1
	Currency       string  // default "inr"
}

func (c Config) withDefaults() Config {
	if c.OTPTTL <= 0 {
		c.OTPTTL = 5 * time.Minute
	}
	if c.CommissionRate <= 0 {
		c.CommissionRate = 0.2
	}
	if c.Surge <= 0 {
		c.Surge = 1
	}
	if c.Currency == "" {
		c.Currency = "inr"
	}
	return c
}

// EventSink receives every committed transition for the event log.
type EventSink interface {
	Emit(ctx context.Context, event string, ride *models.Ride) error
}

// Service owns ride status transitions and their side effects. Every
// transition commits through the store's conditional update, so two
// concurrent actors resolve at the storage layer, not here.
type Service struct {
	Store    storage.RideStore
	Dir      directory.Directory
	Notifier notify.Publisher
	Events   EventSink        // optional
	Gateway  payments.Gateway // optional
	Holds    *payments.HoldLedger
	Cfg      Config
	Log      *slog.Logger

	// Now is a clock override for tests; nil means time.Now.
	Now func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) cfg() Config { return s.Cfg.withDefaults() }

// Create validates the request, quotes the fare, and persists a
// pending ride. Dispatch is the coordinator's job; create only brings
// the aggregate into existence.
func (s *Service) Create(ctx context.Context, req models.RideRequest) (*models.Ride, error) {
	if req.RiderID == "" {
		return nil, fmt.Errorf("%w: rider_id required", ErrValidation)
	}
	if !req.Pickup.Valid() || !req.Drop.Valid() {
		return nil, fmt.Errorf("%w: pickup and drop coordinates required", ErrValidation)
	}
	if req.VehicleClass == "" {
		req.VehicleClass = "car"
	}
	fare := pricing.Quote(req.Pickup, req.Drop, req.VehicleClass, s.cfg().Surge)
	r, err := s.Store.CreateRide(ctx, req, fare)
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(models.StatusPending)).Inc()
	s.emit(ctx, models.EventRideRequest, r)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id int64) (*models.Ride, error) {
	return s.Store.GetRide(ctx, id)
}

// Accept commits driver as the ride's winner. The compare-and-set on
// status=pending is the commit point: exactly one concurrent accept
// can succeed, every other caller gets ErrRideUnavailable.
func (s *Service) Accept(ctx context.Context, rideID int64, driver models.Driver) (*models.Ride, error) {
	observability.AcceptAttempts.Inc()
	now := s.now()
	otp := generateOTP()
	patch := storage.Patch{
		Status:         models.StatusAccepted,
		DriverID:       &driver.ID,
		OTP:            &otp,
		OTPGeneratedAt: &now,
		AcceptedAt:     &now,
	}
	r, err := s.Store.ConditionalUpdate(ctx, rideID, models.StatusPending, patch)
	if err != nil {
		if errors.Is(err, storage.ErrPreconditionFailed) {
			observability.AcceptConflicts.Inc()
			return nil, ErrRideUnavailable
		}
		return nil, err
	}
	observability.AcceptWins.Inc()
	observability.RideTransitions.WithLabelValues(string(models.StatusAccepted)).Inc()

	if err := s.Dir.SetAvailable(ctx, driver.ID, false); err != nil {
		s.log().Warn("driver availability update failed", "driver", driver.ID, "error", err)
	}
	s.holdFare(ctx, r)
	s.emit(ctx, models.EventRideAccepted, r)
	return r, nil
}

// Arrive marks the assigned driver at the pickup point.
func (s *Service) Arrive(ctx context.Context, rideID int64, driverID string) (*models.Ride, error) {
	r, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != driverID {
		return nil, ErrNotAssignedDriver
	}
	if r.Status != models.StatusAccepted {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	r, err = s.Store.ConditionalUpdate(ctx, rideID, models.StatusAccepted, storage.Patch{
		Status:    models.StatusArrived,
		ArrivedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(models.StatusArrived)).Inc()
	s.notifyRider(ctx, models.EventRiderArrived, r, nil)
	s.emit(ctx, models.EventRiderArrived, r)
	return r, nil
}

// Activate is the OTP-gated start: the rider's code proves physical
// pickup before the ride may move to started.
func (s *Service) Activate(ctx context.Context, rideID int64, code string) (*models.Ride, error) {
	r, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusAccepted && r.Status != models.StatusArrived {
		observability.OTPRejected.WithLabelValues("bad_status").Inc()
		return nil, ErrInvalidTransition
	}
	if r.OTPVerified {
		observability.OTPRejected.WithLabelValues("reused").Inc()
		return nil, ErrOTPAlreadyUsed
	}
	cfg := s.cfg()
	bypassed := cfg.OTPTestBypass && cfg.OTPBypassCode != "" && code == cfg.OTPBypassCode
	if !bypassed && code != r.OTP {
		observability.OTPRejected.WithLabelValues("mismatch").Inc()
		return nil, ErrOTPInvalid
	}
	if s.now().Sub(r.OTPGeneratedAt) > cfg.OTPTTL {
		observability.OTPRejected.WithLabelValues("expired").Inc()
		return nil, ErrOTPExpired
	}

	now := s.now()
	verified := true
	r, err = s.Store.ConditionalUpdate(ctx, rideID, r.Status, storage.Patch{
		Status:      models.StatusStarted,
		OTPVerified: &verified,
		StartedAt:   &now,
	})
	if err != nil {
		return nil, err
	}
	observability.OTPVerified.Inc()
	observability.RideTransitions.WithLabelValues(string(models.StatusStarted)).Inc()
	s.notifyRider(ctx, models.EventRideStarted, r, nil)
	s.notifyDriver(ctx, r.DriverID, models.EventRideStarted, r, nil)
	s.emit(ctx, models.EventOTPVerified, r)
	s.emit(ctx, models.EventRideStarted, r)
	return r, nil
}

// ResendOTP regenerates the code and resets its age. Allowed only
// while the ride waits for activation.
func (s *Service) ResendOTP(ctx context.Context, rideID int64) (*models.Ride, error) {
	r, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status != models.StatusAccepted && r.Status != models.StatusArrived {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	otp := generateOTP()
	r, err = s.Store.ConditionalUpdate(ctx, rideID, r.Status, storage.Patch{
		Status:         r.Status,
		OTP:            &otp,
		OTPGeneratedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	s.notifyRider(ctx, models.EventRideAccepted, r, map[string]any{"otp": r.OTP, "resent": true})
	return r, nil
}

// Complete settles the fare and releases the driver back to the pool.
func (s *Service) Complete(ctx context.Context, rideID int64, driverID string, riderRating float64) (*models.Ride, error) {
	r, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.DriverID != driverID {
		return nil, ErrNotAssignedDriver
	}
	if r.Status != models.StatusStarted {
		return nil, ErrInvalidTransition
	}
	now := s.now()
	r, err = s.Store.ConditionalUpdate(ctx, rideID, models.StatusStarted, storage.Patch{
		Status:      models.StatusCompleted,
		CompletedAt: &now,
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(models.StatusCompleted)).Inc()

	settlement := pricing.Settle(r.Fare.Total, s.cfg().CommissionRate)
	if err := s.Dir.RecordCompletion(ctx, driverID, riderRating); err != nil {
		s.log().Warn("driver stats update failed", "driver", driverID, "error", err)
	}
	if err := s.Dir.SetAvailable(ctx, driverID, true); err != nil {
		s.log().Warn("driver availability update failed", "driver", driverID, "error", err)
	}
	s.captureFare(ctx, r)

	extra := map[string]any{"settlement": settlement}
	s.notifyRider(ctx, models.EventRideCompleted, r, extra)
	s.notifyDriver(ctx, driverID, models.EventRideCompleted, r, extra)
	s.emit(ctx, models.EventRideCompleted, r)
	return r, nil
}

// Cancel moves any non-terminal ride to cancelled, recording who and
// why. Concurrent cancel and accept race at the store; whoever commits
// second observes a changed precondition.
func (s *Service) Cancel(ctx context.Context, rideID int64, actor, actorID, reason string) (*models.Ride, error) {
	r, err := s.Store.GetRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if r.Status.Terminal() {
		return nil, ErrInvalidTransition
	}
	if actor == "driver" && r.DriverID != actorID {
		return nil, ErrNotAssignedDriver
	}
	now := s.now()
	by := actor
	if actorID != "" {
		by = actor + ":" + actorID
	}
	r, err = s.Store.ConditionalUpdate(ctx, rideID, r.Status, storage.Patch{
		Status:       models.StatusCancelled,
		CancelledBy:  &by,
		CancelReason: &reason,
		CancelledAt:  &now,
	})
	if err != nil {
		return nil, err
	}
	observability.RideTransitions.WithLabelValues(string(models.StatusCancelled)).Inc()

	if r.DriverID != "" {
		if err := s.Dir.SetAvailable(ctx, r.DriverID, true); err != nil {
			s.log().Warn("driver availability update failed", "driver", r.DriverID, "error", err)
		}
	}
	s.releaseFare(ctx, r)

	extra := map[string]any{"cancelled_by": by, "reason": reason}
	s.notifyRider(ctx, models.EventRideCancelled, r, extra)
	if r.DriverID != "" {
		s.notifyDriver(ctx, r.DriverID, models.EventRideCancelled, r, extra)
	}
	s.emit(ctx, models.EventRideCancelled, r)
	return r, nil
}

func (s *Service) holdFare(ctx context.Context, r *models.Ride) {
	if s.Gateway == nil || s.Holds == nil {
		return
	}
	amount := int64(r.Fare.Total * 100)
	ref, err := s.Gateway.Hold(ctx, r.ID, amount, s.cfg().Currency, r.RiderID)
	if err != nil {
		s.log().Warn("fare hold failed", "ride", r.ID, "error", err)
		return
	}
	s.Holds.Put(r.ID, ref)
}

func (s *Service) captureFare(ctx context.Context, r *models.Ride) {
	if s.Gateway == nil || s.Holds == nil {
		return
	}
	if ref, ok := s.Holds.Take(r.ID); ok {
		if err := s.Gateway.Capture(ctx, ref); err != nil {
			s.log().Warn("fare capture failed", "ride", r.ID, "ref", ref, "error", err)
		}
	}
}

func (s *Service) releaseFare(ctx context.Context, r *models.Ride) {
	if s.Gateway == nil || s.Holds == nil {
		return
	}
	if ref, ok := s.Holds.Take(r.ID); ok {
		if err := s.Gateway.Release(ctx, ref); err != nil {
			s.log().Warn("fare release failed", "ride", r.ID, "ref", ref, "error", err)
		}
	}
}

func (s *Service) notifyRider(ctx context.Context, event string, r *models.Ride, extra map[string]any) {
	if s.Notifier == nil {
		return
	}
	env := notify.NewEnvelope(event, r, extra)
	if err := s.Notifier.Publish(ctx, notify.RecipientFor(r.RiderID), event, env); err != nil {
		s.log().Warn("rider notification failed", "ride", r.ID, "event", event, "error", err)
	}
}

func (s *Service) notifyDriver(ctx context.Context, driverID, event string, r *models.Ride, extra map[string]any) {
	if s.Notifier == nil || driverID == "" {
		return
	}
	env := notify.NewEnvelope(event, r, extra)
	if err := s.Notifier.Publish(ctx, notify.RecipientFor(driverID), event, env); err != nil {
		s.log().Warn("driver notification failed", "ride", r.ID, "event", event, "error", err)
	}
}

func (s *Service) emit(ctx context.Context, event string, r *models.Ride) {
	if s.Events == nil {
		return
	}
	if err := s.Events.Emit(ctx, event, r); err != nil {
		s.log().Warn("event log emit failed", "ride", r.ID, "event", event, "error", err)
	}
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}
