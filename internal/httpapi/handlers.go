package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/engine"
	"github.com/example/ride-dispatch/internal/lifecycle"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/store"
)

// route aliases so the handler table reads cleanly
const (
	lifecycleArrive = lifecycle.EventArrive
	lifecycleStart  = lifecycle.EventStart
	lifecycleEnd    = lifecycle.EventEnd
	lifecycleCancel = lifecycle.EventCancel
)

func (s *Server) handleRideRequest(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PassengerID == "" {
		writeError(w, http.StatusBadRequest, "passenger_id is required")
		return
	}
	if req.Fare <= 0 {
		writeError(w, http.StatusBadRequest, "fare must be positive")
		return
	}
	ride, res, err := s.broadcaster.RequestRide(r.Context(), req)
	if err != nil {
		s.logger.Error("ride request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	// an empty broadcast is a business outcome: the ride stays Requested
	// and the dispatcher UI may widen the radius or escalate
	writeJSON(w, http.StatusOK, map[string]any{"ride": ride, "broadcast": res})
}

func (s *Server) handleGetRide(w http.ResponseWriter, r *http.Request) {
	ride, err := s.store.GetRide(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ride)
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	var body struct {
		DriverID string `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id is required")
		return
	}
	res, err := s.coordinator.AcceptOffer(r.Context(), mux.Vars(r)["ride_id"], body.DriverID)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleTransition(ev lifecycle.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ride, err := s.coordinator.Transition(r.Context(), mux.Vars(r)["ride_id"], ev)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ride)
	}
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.store.ChatHistory(r.Context(), mux.Vars(r)["ride_id"])
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) handleDriverLocation(w http.ResponseWriter, r *http.Request) {
	var pos models.DriverPosition
	if err := json.NewDecoder(r.Body).Decode(&pos); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if pos.DriverID == "" {
		writeError(w, http.StatusBadRequest, "driver_id is required")
		return
	}
	// fan out to kafka if configured; the geo upsert below keeps
	// single-node deployments working without it
	if s.locations != nil {
		if err := s.locations.PublishPosition(pos); err != nil {
			s.logger.Warn("location publish failed", "driver_id", pos.DriverID, "error", err)
		}
	}
	s.geo.Upsert(models.Driver{
		ID:          pos.DriverID,
		Loc:         models.Coord{Lat: pos.Lat, Lon: pos.Lon},
		Heading:     pos.Heading,
		VehicleType: pos.VehicleType,
		Available:   pos.Available,
	})
	if s.markSeen(pos.DriverID) {
		observability.DriversOnline.Inc()
	}
	w.WriteHeader(http.StatusNoContent)
}

// markSeen reports whether this is the first position from the driver,
// so the online gauge counts drivers rather than pings.
func (s *Server) markSeen(driverID string) bool {
	s.seenMu.Lock()
	defer s.seenMu.Unlock()
	if _, ok := s.seen[driverID]; ok {
		return false
	}
	s.seen[driverID] = struct{}{}
	return true
}

// writeEngineError maps the engine's error taxonomy onto HTTP statuses.
// Only lock timeouts are advertised as retryable.
func (s *Server) writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrRideNotFound), errors.Is(err, store.ErrOfferNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrLockTimeout):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "ride is contended, retry")
	case errors.Is(err, engine.ErrOfferUnavailable):
		writeJSON(w, http.StatusOK, engine.AcceptResult{Accepted: false})
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
