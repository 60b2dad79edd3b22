package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"skiff/pkg/auth"
	"skiff/pkg/logger"
	"skiff/pkg/logstore"
)

// RegisterLogs mounts the log store's write and read endpoints. Both are
// tenant-token gated; the token's subject names the tenant whose log
// stream is touched.
func RegisterLogs(r *mux.Router, cache *auth.SecretCache) {
	gated := r.NewRoute().Subrouter()
	gated.Use(auth.RequireTenant(cache))
	gated.HandleFunc("/write", writeLogs).Methods(http.MethodPost)
	gated.HandleFunc("/list", listLogs).Methods(http.MethodGet)
}

type logWriteEntry struct {
	TS  string `json:"ts"`
	Log string `json:"log"`
}

func writeLogs(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var in []logWriteEntry
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	entries := make([]logstore.Entry, 0, len(in))
	for _, e := range in {
		ts, err := strconv.ParseInt(e.TS, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid ts")
			return
		}
		entries = append(entries, logstore.Entry{TS: ts, Log: e.Log})
	}
	if err := logstore.Write(claims.Sub, entries); err != nil {
		logger.Error("log_write_failed", "tenant", claims.Sub, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	logOps.WithLabelValues("write").Inc()
	writeJSON(w, http.StatusOK, map[string]int{"written": len(entries)})
}

func listLogs(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		jsonError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q := r.URL.Query()

	var before int64
	if v := q.Get("before"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			jsonError(w, http.StatusBadRequest, "invalid before")
			return
		}
		before = n
	}
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			jsonError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	rows, err := logstore.Query(claims.Sub, before, q.Get("search"), limit)
	if err != nil {
		logger.Error("log_query_failed", "tenant", claims.Sub, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	logOps.WithLabelValues("list").Inc()
	writeJSON(w, http.StatusOK, rows)
}
