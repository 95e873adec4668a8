// Package httpapi exposes the dispatch engine over HTTP and websocket.
// Identity and authorization are assumed to have been enforced upstream;
// this layer only translates between the wire and the engine.
package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/engine"
	"github.com/example/ride-dispatch/internal/geo"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/realtime"
	"github.com/example/ride-dispatch/internal/store"
)

// LocationPublisher forwards position updates to the ingest pipeline.
type LocationPublisher interface {
	PublishPosition(pos models.DriverPosition) error
}

type Server struct {
	logger      *slog.Logger
	store       store.Store
	geo         geo.Geo
	broadcaster *engine.Broadcaster
	coordinator *engine.Coordinator
	channel     realtime.Channel
	locations   LocationPublisher // optional
	mux         *mux.Router

	seenMu sync.Mutex
	seen   map[string]struct{} // drivers that have reported a position
}

func New(logger *slog.Logger, st store.Store, g geo.Geo, b *engine.Broadcaster, c *engine.Coordinator, ch realtime.Channel, loc LocationPublisher) *Server {
	s := &Server{
		logger:      logger,
		store:       st,
		geo:         g,
		broadcaster: b,
		coordinator: c,
		channel:     ch,
		locations:   loc,
		mux:         mux.NewRouter(),
		seen:        make(map[string]struct{}),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides/request", s.handleRideRequest).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/arrived", s.handleTransition(lifecycleArrive)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/start", s.handleTransition(lifecycleStart)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/end", s.handleTransition(lifecycleEnd)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/cancel", s.handleTransition(lifecycleCancel)).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{ride_id}/chat", s.handleChatHistory).Methods("GET")
	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/ws/driver/{driver_id}", s.handleDriverWS)
	s.mux.HandleFunc("/ws/passenger/{passenger_id}", s.handlePassengerWS)
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func newID() string { b := make([]byte, 8); _, _ = rand.Read(b); return hex.EncodeToString(b) }
