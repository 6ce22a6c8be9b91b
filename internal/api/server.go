package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"tada-core/internal/engine"
	"tada-core/internal/eventbus"
	"tada-core/internal/store"
)

// Server is the control plane: pipeline CRUD, status, delivery logs and
// the realtime websocket endpoint.
type Server struct {
	router  *mux.Router
	engine  *engine.Engine
	store   *store.Store
	bus     *eventbus.Bus
	auth    *AuthMiddleware
	limiter *ipLimiter

	httpServer *http.Server
	started    time.Time
}

type Options struct {
	Addr      string
	JWTSecret string
	RateRPS   float64
	RateBurst int
}

func NewServer(eng *engine.Engine, st *store.Store, bus *eventbus.Bus, opts Options) *Server {
	var lookup KeyLookup
	if st != nil {
		lookup = st.LookupAPIKey
	}
	if opts.RateRPS == 0 {
		opts.RateRPS = 10
	}
	if opts.RateBurst == 0 {
		opts.RateBurst = 20
	}

	s := &Server{
		router:  mux.NewRouter(),
		engine:  eng,
		store:   st,
		bus:     bus,
		auth:    NewAuthMiddleware(opts.JWTSecret, lookup),
		limiter: newIPLimiter(opts.RateRPS, opts.RateBurst),
		started: time.Now(),
	}
	s.routes()

	s.httpServer = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.rateLimitMiddleware(corsMiddleware(s.router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/v1").Subrouter()
	v1.Use(s.auth.Middleware)
	v1.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	v1.HandleFunc("/pipelines", s.handleListPipelines).Methods(http.MethodGet)
	v1.HandleFunc("/pipelines", s.handleCreatePipeline).Methods(http.MethodPost)
	v1.HandleFunc("/pipelines/{id}", s.handleGetPipeline).Methods(http.MethodGet)
	v1.HandleFunc("/pipelines/{id}", s.handleUpdatePipeline).Methods(http.MethodPut)
	v1.HandleFunc("/pipelines/{id}/status", s.handleUpdateStatus).Methods(http.MethodPatch)
	v1.HandleFunc("/pipelines/{id}", s.handleDeletePipeline).Methods(http.MethodDelete)
	v1.HandleFunc("/pipelines/{id}/logs", s.handleDeliveryLogs).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	log.Printf("[api] listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[api] write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
