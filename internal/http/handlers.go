package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/ride"
	"github.com/example/ride-dispatch/internal/storage"
)

func (s *Server) handleRequestRide(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	created, err := s.Rides.Create(r.Context(), req)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	if err := s.Coordinator.Dispatch(r.Context(), created, req); err != nil {
		if errors.Is(err, dispatch.ErrNoSupply) {
			// distinct from an error: the ride exists, nobody is
			// online right now, the client should poll
			writeJSON(w, http.StatusAccepted, map[string]any{
				"ride":   created,
				"status": "no_supply",
			})
			return
		}
		s.logger.Error("dispatch failed", "ride", created.ID, "error", err)
		writeJSON(w, http.StatusAccepted, map[string]any{
			"ride":   created,
			"status": "dispatch_deferred",
		})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"ride":   created,
		"status": "dispatching",
	})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	id := rideID(r)
	got, err := s.Rides.Get(r.Context(), id)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "driver_id required")
		return
	}
	got, err := s.Coordinator.Accept(r.Context(), rideID(r), body.DriverID)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "driver_id required")
		return
	}
	s.Coordinator.Reject(rideID(r), body.DriverID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleArrive(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "driver_id required")
		return
	}
	got, err := s.Rides.Arrive(r.Context(), rideID(r), body.DriverID)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Code == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "code required")
		return
	}
	got, err := s.Rides.Activate(r.Context(), rideID(r), body.Code)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleResendOTP(w http.ResponseWriter, r *http.Request) {
	got, err := s.Rides.ResendOTP(r.Context(), rideID(r))
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string  `json:"driver_id"`
		Rating   float64 `json:"rating"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "driver_id required")
		return
	}
	got, err := s.Rides.Complete(r.Context(), rideID(r), body.DriverID, body.Rating)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Actor   string `json:"actor"` // rider, driver, system
		ActorID string `json:"actor_id"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Actor == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "actor required")
		return
	}
	id := rideID(r)
	got, err := s.Rides.Cancel(r.Context(), id, body.Actor, body.ActorID, body.Reason)
	if err != nil {
		s.writeRideError(w, err)
		return
	}
	s.Coordinator.Close(id)
	writeJSON(w, http.StatusOK, got)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var d models.Driver
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	if d.ID == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "id required")
		return
	}
	d.Online = true
	if s.Locations != nil {
		if err := s.Locations.PublishLocation(d); err != nil {
			s.logger.Warn("location publish failed", "driver", d.ID, "error", err)
		}
	}
	if err := s.Dir.Upsert(r.Context(), d); err != nil {
		s.logger.Error("directory upsert failed", "driver", d.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "directory_unavailable", "try again")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", err.Error())
		return
	}
	driverID := mux.Vars(r)["id"]
	if err := s.Dir.SetAvailable(r.Context(), driverID, body.Available); err != nil {
		s.logger.Error("availability update failed", "driver", driverID, "error", err)
		writeError(w, http.StatusInternalServerError, "directory_unavailable", "try again")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func rideID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

// writeRideError maps the error taxonomy onto HTTP statuses: 400 for
// validation, 404 for unknown rides, 409 for anything the current
// state forbids (so clients re-poll instead of retrying blindly).
func (s *Server) writeRideError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ride.ErrValidation):
		writeError(w, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "ride not found")
	case errors.Is(err, ride.ErrRideUnavailable):
		writeError(w, http.StatusConflict, "ride_unavailable", "ride no longer available")
	case errors.Is(err, ride.ErrNotAssignedDriver):
		writeError(w, http.StatusForbidden, "not_assigned", err.Error())
	case errors.Is(err, ride.ErrInvalidTransition), errors.Is(err, storage.ErrPreconditionFailed):
		writeError(w, http.StatusConflict, "invalid_state", "ride not in expected state")
	case errors.Is(err, ride.ErrOTPAlreadyUsed):
		writeError(w, http.StatusConflict, "otp_used", err.Error())
	case errors.Is(err, ride.ErrOTPInvalid):
		writeError(w, http.StatusBadRequest, "otp_invalid", err.Error())
	case errors.Is(err, ride.ErrOTPExpired):
		writeError(w, http.StatusGone, "otp_expired", err.Error())
	default:
		s.logger.Error("internal error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{"error": code, "message": msg})
}
