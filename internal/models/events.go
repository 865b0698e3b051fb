package models

// Event names published on the notification channel. The payload is a
// ride snapshot plus role-specific enrichment added by the caller.
const (
	EventRideRequest   = "rideRequest"
	EventRideAccepted  = "rideAccepted"
	EventRideRejected  = "rideRejected"
	EventRiderArrived  = "riderArrived"
	EventRideStarted   = "rideStarted"
	EventOTPVerified   = "otpVerified"
	EventRideCompleted = "rideCompleted"
	EventRideCancelled = "rideCancelled"
)
