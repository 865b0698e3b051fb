package ride

import "errors"

var (
	// ErrValidation rejects a malformed request before any side effect.
	ErrValidation = errors.New("invalid request")
	// ErrRideUnavailable means an accept attempt found the ride no
	// longer pending: someone else won, or it was cancelled.
	ErrRideUnavailable = errors.New("ride no longer available")
	// ErrNotAssignedDriver rejects a driver-only transition attempted
	// by anyone but the assigned driver.
	ErrNotAssignedDriver = errors.New("driver not assigned to this ride")
	// ErrInvalidTransition rejects an operation the current status
	// does not allow.
	ErrInvalidTransition = errors.New("transition not allowed from current status")

	ErrOTPInvalid     = errors.New("otp code incorrect")
	ErrOTPExpired     = errors.New("otp code expired")
	ErrOTPAlreadyUsed = errors.New("otp already verified")
)
