package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/example/ride-dispatch/internal/models"
)

const rideColumns = `id, rider_id, driver_id, pickup_lat, pickup_lng, drop_lat, drop_lng,
	pickup_addr, drop_addr, vehicle_class,
	fare_base, fare_distance, fare_time, fare_surge, fare_total,
	status, otp, otp_generated_at, otp_verified, cancelled_by, cancel_reason,
	created_at, accepted_at, arrived_at, started_at, completed_at, cancelled_at`

// PostgresStore persists rides with the conditional update pushed into
// the database: UPDATE ... WHERE id = $1 AND status = $2. Row-level
// atomicity of that statement is what makes the accept commit
// linearizable across concurrent request handlers and processes.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) CreateRide(ctx context.Context, req models.RideRequest, fare models.Fare) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO rides (rider_id, pickup_lat, pickup_lng, drop_lat, drop_lng,
			pickup_addr, drop_addr, vehicle_class,
			fare_base, fare_distance, fare_time, fare_surge, fare_total,
			status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING `+rideColumns,
		req.RiderID, req.Pickup.Lat, req.Pickup.Lng, req.Drop.Lat, req.Drop.Lng,
		req.PickupAddr, req.DropAddr, req.VehicleClass,
		fare.Base, fare.Distance, fare.Time, fare.Surge, fare.Total,
		models.StatusPending, time.Now().UTC())
	return scanRide(row)
}

func (p *PostgresStore) GetRide(ctx context.Context, id int64) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, id)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (p *PostgresStore) ConditionalUpdate(ctx context.Context, id int64, expected models.RideStatus, patch Patch) (*models.Ride, error) {
	set := []string{"status = $3"}
	args := []any{id, expected, patch.Status}
	add := func(col string, v any) {
		args = append(args, v)
		set = append(set, fmt.Sprintf("%s = $%d", col, len(args)))
	}
	if patch.DriverID != nil {
		add("driver_id", *patch.DriverID)
	}
	if patch.OTP != nil {
		add("otp", *patch.OTP)
	}
	if patch.OTPGeneratedAt != nil {
		add("otp_generated_at", *patch.OTPGeneratedAt)
	}
	if patch.OTPVerified != nil {
		add("otp_verified", *patch.OTPVerified)
	}
	if patch.CancelledBy != nil {
		add("cancelled_by", *patch.CancelledBy)
	}
	if patch.CancelReason != nil {
		add("cancel_reason", *patch.CancelReason)
	}
	if patch.AcceptedAt != nil {
		add("accepted_at", *patch.AcceptedAt)
	}
	if patch.ArrivedAt != nil {
		add("arrived_at", *patch.ArrivedAt)
	}
	if patch.StartedAt != nil {
		add("started_at", *patch.StartedAt)
	}
	if patch.CompletedAt != nil {
		add("completed_at", *patch.CompletedAt)
	}
	if patch.CancelledAt != nil {
		add("cancelled_at", *patch.CancelledAt)
	}

	q := `UPDATE rides SET ` + strings.Join(set, ", ") +
		` WHERE id = $1 AND status = $2 RETURNING ` + rideColumns
	row := p.db.QueryRowContext(ctx, q, args...)
	r, err := scanRide(row)
	if errors.Is(err, sql.ErrNoRows) {
		// Zero rows means either the ride doesn't exist or the status
		// moved under us; look once to report the right condition.
		var cur string
		err := p.db.QueryRowContext(ctx, `SELECT status FROM rides WHERE id = $1`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		return nil, ErrPreconditionFailed
	}
	return r, err
}

func (p *PostgresStore) Close() error { return p.db.Close() }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*models.Ride, error) {
	var r models.Ride
	var driverID, pickupAddr, dropAddr, otp, cancelledBy, cancelReason sql.NullString
	var otpGeneratedAt sql.NullTime
	var acceptedAt, arrivedAt, startedAt, completedAt, cancelledAt sql.NullTime
	err := row.Scan(
		&r.ID, &r.RiderID, &driverID, &r.Pickup.Lat, &r.Pickup.Lng, &r.Drop.Lat, &r.Drop.Lng,
		&pickupAddr, &dropAddr, &r.VehicleClass,
		&r.Fare.Base, &r.Fare.Distance, &r.Fare.Time, &r.Fare.Surge, &r.Fare.Total,
		&r.Status, &otp, &otpGeneratedAt, &r.OTPVerified, &cancelledBy, &cancelReason,
		&r.CreatedAt, &acceptedAt, &arrivedAt, &startedAt, &completedAt, &cancelledAt)
	if err != nil {
		return nil, err
	}
	r.DriverID = driverID.String
	r.PickupAddr = pickupAddr.String
	r.DropAddr = dropAddr.String
	r.OTP = otp.String
	r.CancelledBy = cancelledBy.String
	r.CancelReason = cancelReason.String
	if otpGeneratedAt.Valid {
		r.OTPGeneratedAt = otpGeneratedAt.Time
	}
	setIf := func(dst **time.Time, v sql.NullTime) {
		if v.Valid {
			t := v.Time
			*dst = &t
		}
	}
	setIf(&r.AcceptedAt, acceptedAt)
	setIf(&r.ArrivedAt, arrivedAt)
	setIf(&r.StartedAt, startedAt)
	setIf(&r.CompletedAt, completedAt)
	setIf(&r.CancelledAt, cancelledAt)
	return &r, nil
}
