package handlers

import (
	"net/http"

	"github.com/pliu/smartaid/internal/store"
)

type HealthHandler struct {
	Store store.Store
}

func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Ping(); err != nil {
		respondWithError(w, r, http.StatusServiceUnavailable, "database unavailable", err)
		return
	}
	respondWithJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
