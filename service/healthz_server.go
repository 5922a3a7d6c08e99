package service

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
)

// StatusProvider exposes the state of the current run to the status
// endpoints. Either function may be nil.
type StatusProvider struct {
	Run  func() any
	Mode func(name string) (any, bool)
}

type HealthzServer struct {
	mu     sync.Mutex
	ctx    context.Context
	server *http.Server
	status StatusProvider
}

// Handler returns the CORS wrapped router serving /healthz, /status and
// /status/modes/{mode}.
func (h *HealthzServer) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.Handle).Methods(http.MethodGet)
	r.HandleFunc("/status", h.handleStatus).Methods(http.MethodGet)
	r.HandleFunc("/status/modes/{mode}", h.handleMode).Methods(http.MethodGet)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	return c.Handler(r)
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Handler: h.Handler(),
		Addr:    addr,
	}
	h.mu.Lock()
	h.server = server
	h.ctx = ctx
	h.mu.Unlock()
	return server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	log.Debug("Received health check request", "path", r.URL.Path)
	w.Write([]byte("OK")) //nolint:errcheck
}

func (h *HealthzServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if h.status.Run == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run attached"})
		return
	}
	writeJSON(w, http.StatusOK, h.status.Run())
}

func (h *HealthzServer) handleMode(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["mode"]
	if h.status.Mode == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "no run attached"})
		return
	}
	body, ok := h.status.Mode(name)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "mode " + name + " has not run"})
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	data, err := json.MarshalIndent(body, "", "  ")
	if err != nil {
		log.Error("failed to marshal status response", "error", err)
		code = http.StatusInternalServerError
		data = []byte(`{"error":"internal server error"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		log.Error("failed to send status response", "error", err)
	}
}
