// Package registry exposes the taxi registration HTTP API. A taxi must
// be registered here before the coordinator accepts its socket
// handshake; unregistering revokes that right without touching live
// sessions.
package registry

import (
	"encoding/json"
	"net/http"

	"github.com/kmoreau/citycab/core/model"
	"github.com/kmoreau/citycab/core/store"
	"github.com/kmoreau/citycab/infra/logger"
)

// Handler serves the registration endpoints.
type Handler struct {
	taxis store.TaxiStore
	log   logger.Logger
}

// NewHandler wires a registration handler.
func NewHandler(taxis store.TaxiStore, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Handler{taxis: taxis, log: log}
}

// Register installs the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /taxis/register", h.register)
	mux.HandleFunc("DELETE /taxis/unregister/{id}", h.unregister)
	mux.HandleFunc("GET /taxis/{id}", h.get)
	mux.HandleFunc("GET /taxis", h.list)
}

type registerRequest struct {
	ID string `json:"id"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}
	if _, exists := h.taxis.Find(req.ID); exists {
		http.Error(w, "taxi already registered", http.StatusConflict)
		return
	}
	taxi := model.Taxi{
		ID:        req.ID,
		X:         model.BaseX,
		Y:         model.BaseY,
		Available: true,
		State:     model.TaxiIdle,
	}
	h.taxis.Save(taxi)
	h.log.Infof("taxi %s registered", req.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(taxi)
}

func (h *Handler) unregister(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := h.taxis.Find(id); !ok {
		http.Error(w, "taxi not found", http.StatusNotFound)
		return
	}
	h.taxis.Delete(id)
	h.log.Infof("taxi %s unregistered", id)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	taxi, ok := h.taxis.Find(r.PathValue("id"))
	if !ok {
		http.Error(w, "taxi not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(taxi)
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.taxis.All())
}
