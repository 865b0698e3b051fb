package storage

import (
	"context"
	"errors"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	// ErrNotFound is returned when the ride id is unknown.
	ErrNotFound = errors.New("ride not found")
	// ErrPreconditionFailed is returned when a conditional update finds
	// the ride in a status other than the expected one. Callers use it
	// to detect lost races rather than retry blindly.
	ErrPreconditionFailed = errors.New("ride not in expected status")
)

// Patch is the set of fields a conditional update may apply alongside
// the status change. Nil pointers leave the column untouched.
type Patch struct {
	Status models.RideStatus

	DriverID       *string
	OTP            *string
	OTPGeneratedAt *time.Time
	OTPVerified    *bool
	CancelledBy    *string
	CancelReason   *string

	AcceptedAt  *time.Time
	ArrivedAt   *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// RideStore is the persistence contract for rides. ConditionalUpdate
// must be atomic: "apply patch only if status is still expected". That
// single compare-and-set is what resolves accept/cancel races, so an
// implementation backed by shared storage must push the condition into
// the storage engine, not guard it with process-local locks alone.
type RideStore interface {
	CreateRide(ctx context.Context, req models.RideRequest, fare models.Fare) (*models.Ride, error)
	GetRide(ctx context.Context, id int64) (*models.Ride, error)
	ConditionalUpdate(ctx context.Context, id int64, expected models.RideStatus, patch Patch) (*models.Ride, error)
}

// apply copies patch fields onto r. Shared by the memory store and by
// tests; the Postgres store expresses the same thing as SQL.
func apply(r *models.Ride, patch Patch) {
	r.Status = patch.Status
	if patch.DriverID != nil {
		r.DriverID = *patch.DriverID
	}
	if patch.OTP != nil {
		r.OTP = *patch.OTP
	}
	if patch.OTPGeneratedAt != nil {
		r.OTPGeneratedAt = *patch.OTPGeneratedAt
	}
	if patch.OTPVerified != nil {
		r.OTPVerified = *patch.OTPVerified
	}
	if patch.CancelledBy != nil {
		r.CancelledBy = *patch.CancelledBy
	}
	if patch.CancelReason != nil {
		r.CancelReason = *patch.CancelReason
	}
	if patch.AcceptedAt != nil {
		r.AcceptedAt = patch.AcceptedAt
	}
	if patch.ArrivedAt != nil {
		r.ArrivedAt = patch.ArrivedAt
	}
	if patch.StartedAt != nil {
		r.StartedAt = patch.StartedAt
	}
	if patch.CompletedAt != nil {
		r.CompletedAt = patch.CompletedAt
	}
	if patch.CancelledAt != nil {
		r.CancelledAt = patch.CancelledAt
	}
}
