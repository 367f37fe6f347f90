// Package traffic exposes the city traffic verdict over HTTP, backed by
// the weather connector.
package traffic

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/kmoreau/citycab/infra/logger"
)

// StatusFunc resolves the traffic verdict for a city.
type StatusFunc func(ctx context.Context, city string) (string, error)

// Handler serves GET /traffic/status.
type Handler struct {
	status StatusFunc
	log    logger.Logger
}

// NewHandler wires a traffic handler around the verdict source.
func NewHandler(status StatusFunc, log logger.Logger) *Handler {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &Handler{status: status, log: log}
}

// Register installs the routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /traffic/status", h.get)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	status, err := h.status(r.Context(), city)
	if err != nil {
		h.log.Errorf("traffic status for %q: %v", city, err)
		http.Error(w, "traffic status unavailable", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
}
