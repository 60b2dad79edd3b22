package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"skiff/internal/retention"
	"skiff/pkg/logger"
)

// RegisterOps mounts operator endpoints on the gateway. The role-key
// middleware keeps these reachable with backend and admin keys only.
func RegisterOps(r *mux.Router) {
	r.HandleFunc("/api/retention/run", runRetention).Methods(http.MethodPost)
}

// runRetention triggers a single retention sweep outside the cron
// schedule, for operators reclaiming space on demand.
func runRetention(w http.ResponseWriter, r *http.Request) {
	if err := retention.RunImmediate(); err != nil {
		logger.Error("retention_trigger_failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "retention run failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}
