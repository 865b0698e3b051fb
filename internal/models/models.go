package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is inside the WGS84 range. The
// zero value is treated as "unset" rather than a real point.
func (c Coord) Valid() bool {
	if c.Lat == 0 && c.Lng == 0 {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// RideStatus enumerates the lifecycle states of a ride.
type RideStatus string

const (
	StatusPending   RideStatus = "pending"
	StatusAccepted  RideStatus = "accepted"
	StatusArrived   RideStatus = "arrived"
	StatusStarted   RideStatus = "started"
	StatusCompleted RideStatus = "completed"
	StatusCancelled RideStatus = "cancelled"
)

// Terminal reports whether no further transition is allowed out of s.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// RideRequest is the immutable input a rider submits.
type RideRequest struct {
	RiderID      string     `json:"rider_id"`
	RiderMobile  string     `json:"rider_mobile,omitempty"`
	Pickup       Coord      `json:"pickup"`
	Drop         Coord      `json:"drop"`
	PickupAddr   string     `json:"pickup_address,omitempty"`
	DropAddr     string     `json:"drop_address,omitempty"`
	VehicleClass string     `json:"vehicle_class"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

// Fare carries the commercial breakdown of a ride. Components are
// frozen once the ride starts, except refund adjustments.
type Fare struct {
	Base     float64 `json:"base"`
	Distance float64 `json:"distance"`
	Time     float64 `json:"time"`
	Surge    float64 `json:"surge"`
	Total    float64 `json:"total"`
}

// Settlement is the commission/earnings split computed at completion.
type Settlement struct {
	Commission float64 `json:"commission"`
	Earnings   float64 `json:"earnings"`
}

// Ride is the mutable aggregate root of the lifecycle. Status changes
// go through the store's conditional update; two actors never race on
// direct field writes.
type Ride struct {
	ID      int64  `json:"id"`
	RiderID string `json:"rider_id"`
	// DriverID is empty until accepted and immutable once set.
	DriverID string `json:"driver_id,omitempty"`

	Pickup     Coord  `json:"pickup"`
	Drop       Coord  `json:"drop"`
	PickupAddr string `json:"pickup_address,omitempty"`
	DropAddr   string `json:"drop_address,omitempty"`

	VehicleClass string `json:"vehicle_class"`
	Fare         Fare   `json:"fare"`

	Status RideStatus `json:"status"`

	OTP            string    `json:"-"`
	OTPGeneratedAt time.Time `json:"-"`
	OTPVerified    bool      `json:"otp_verified"`

	CancelledBy  string `json:"cancelled_by,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	AcceptedAt  *time.Time `json:"accepted_at,omitempty"`
	ArrivedAt   *time.Time `json:"arrived_at,omitempty"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
}

// Driver is a snapshot of a driver row from the directory; the core
// never writes it back except through directory availability calls.
type Driver struct {
	ID             string    `json:"id"`
	Mobile         string    `json:"mobile,omitempty"`
	Loc            *Coord    `json:"loc,omitempty"`
	VehicleCode    string    `json:"vehicle_code"`
	Rating         float64   `json:"rating"` // 0..5
	CompletedRides int       `json:"completed_rides"`
	Online         bool      `json:"online"`
	Available      bool      `json:"available"`
	Updated        time.Time `json:"updated,omitempty"`
}

// Aliases returns every address the notification channel may use to
// reach this driver. Collaborating stores disagree on identity, so one
// logical recipient has N delivery routes.
func (d Driver) Aliases() []string {
	out := []string{d.ID}
	if d.Mobile != "" && d.Mobile != d.ID {
		out = append(out, d.Mobile)
	}
	return out
}

// Candidate is a driver scored against one ride request. Derived,
// never persisted; lifetime is a single matching pass.
type Candidate struct {
	Driver     Driver  `json:"driver"`
	DistanceKm float64 `json:"distance_km"`
	ETASeconds float64 `json:"eta_seconds"`
	Score      float64 `json:"score"`
}
