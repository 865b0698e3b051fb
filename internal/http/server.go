package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/directory"
	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/notify"
	"github.com/example/ride-dispatch/internal/ride"
)

// Server is the HTTP surface of the dispatch engine. Handlers stay
// thin: parse, call the lifecycle service or coordinator, map the
// error taxonomy to status codes.
type Server struct {
	Rides       *ride.Service
	Coordinator *dispatch.Coordinator
	Dir         directory.Directory
	WSReg       *notify.WSRegistry
	Locations   *ingest.LocationProducer // optional

	logger *slog.Logger
	mux    *mux.Router
}

type Deps struct {
	Rides       *ride.Service
	Coordinator *dispatch.Coordinator
	Dir         directory.Directory
	WSReg       *notify.WSRegistry
	Locations   *ingest.LocationProducer
	Logger      *slog.Logger
}

func NewServer(d Deps) *Server {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Rides:       d.Rides,
		Coordinator: d.Coordinator,
		Dir:         d.Dir,
		WSReg:       d.WSReg,
		Locations:   d.Locations,
		logger:      logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/rides", s.handleRequestRide).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}", s.handleGetRide).Methods("GET")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}/accept", s.handleAccept).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}/reject", s.handleReject).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}/arrive", s.handleArrive).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}/activate", s.handleActivate).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}/resend-otp", s.handleResendOTP).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}/complete", s.handleComplete).Methods("POST")
	s.mux.HandleFunc("/api/v1/rides/{id:[0-9]+}/cancel", s.handleCancel).Methods("POST")

	s.mux.HandleFunc("/internal/driver/locations", s.handleDriverLocation).Methods("POST")
	s.mux.HandleFunc("/api/v1/drivers/{id}/availability", s.handleAvailability).Methods("POST")

	s.mux.HandleFunc("/ws/{role:driver|rider}/{id}", s.handleWS)

	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

var upgrader = websocket.Upgrader{}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	alias := vars["id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		http.Error(w, "upgrade failed", http.StatusBadRequest)
		return
	}
	s.WSReg.Add(alias, conn)
	s.logger.Debug("websocket attached", "role", vars["role"], "alias", alias)
}
