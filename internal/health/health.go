// Package health serves the readiness/liveness endpoint for load balancers
// and CI.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks storage connectivity (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Handler reports serving status. A nil pinger skips the storage check.
type Handler struct {
	pinger Pinger
}

func NewHandler(pinger Pinger) *Handler {
	return &Handler{pinger: pinger}
}

type response struct {
	Status string `json:"status"`
}

// ServeHTTP handles GET /healthz. Returns 200 serving or 503 not_serving;
// a ping failure is a response, not an HTTP error.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := "serving"
	code := http.StatusOK
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.pinger.PingContext(ctx); err != nil {
			status = "not_serving"
			code = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(response{Status: status})
}
