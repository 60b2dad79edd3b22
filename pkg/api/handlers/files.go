package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"skiff/pkg/files"
	"skiff/pkg/logger"
)

// FilesDeps carries the sandbox and the best-effort op-record shipper into
// the file API handlers.
type FilesDeps struct {
	Sandbox *files.Sandbox
	Shipper *files.Shipper
}

// RegisterFiles mounts the sandboxed file API on the gateway router.
func RegisterFiles(r *mux.Router, deps FilesDeps) {
	h := &filesHandler{deps: deps}
	r.HandleFunc("/api/files", h.list).Methods(http.MethodGet)
	r.HandleFunc("/api/files/move", h.move).Methods(http.MethodPost)
	r.HandleFunc("/api/files/{path:.*}", h.get).Methods(http.MethodGet)
	r.HandleFunc("/api/files/{path:.*}", h.put).Methods(http.MethodPut)
	r.HandleFunc("/api/files/{path:.*}", h.del).Methods(http.MethodDelete)
}

type filesHandler struct {
	deps FilesDeps
}

// record ships the one-line op record after the response status is known.
func (h *filesHandler) record(method, path string, status int, start time.Time, nbytes int) {
	go h.deps.Shipper.Record(method, path, status, time.Since(start), nbytes)
}

func (h *filesHandler) list(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	infos, err := h.deps.Sandbox.List()
	if err != nil {
		logger.Error("files_list_failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		h.record("LIST", "/", http.StatusInternalServerError, start, 0)
		return
	}
	fileOps.WithLabelValues("list").Inc()
	writeJSON(w, http.StatusOK, infos)
	h.record("LIST", "/", http.StatusOK, start, len(infos))
}

func (h *filesHandler) get(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := mux.Vars(r)["path"]
	data, err := h.deps.Sandbox.Get(path)
	if err != nil {
		status := filesErrStatus(err)
		jsonError(w, status, filesErrMsg(err))
		h.record("GET", path, status, start, 0)
		return
	}
	fileOps.WithLabelValues("get").Inc()
	w.Header().Set("Content-Type", "application/octet-stream")
	_, _ = w.Write(data)
	h.record("GET", path, http.StatusOK, start, len(data))
}

func (h *filesHandler) put(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := mux.Vars(r)["path"]
	// mux strips the trailing slash from the capture; recover the
	// directory-marker convention from the raw URL
	if len(r.URL.Path) > 0 && r.URL.Path[len(r.URL.Path)-1] == '/' && path != "" && path[len(path)-1] != '/' {
		path += "/"
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "unreadable body")
		h.record("PUT", path, http.StatusBadRequest, start, 0)
		return
	}
	if err := h.deps.Sandbox.Put(path, body); err != nil {
		status := filesErrStatus(err)
		jsonError(w, status, filesErrMsg(err))
		h.record("PUT", path, status, start, len(body))
		return
	}
	fileOps.WithLabelValues("put").Inc()
	w.WriteHeader(http.StatusNoContent)
	h.record("PUT", path, http.StatusNoContent, start, len(body))
}

func (h *filesHandler) del(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	path := mux.Vars(r)["path"]
	if err := h.deps.Sandbox.Delete(path); err != nil {
		status := filesErrStatus(err)
		jsonError(w, status, filesErrMsg(err))
		h.record("DELETE", path, status, start, 0)
		return
	}
	fileOps.WithLabelValues("delete").Inc()
	w.WriteHeader(http.StatusNoContent)
	h.record("DELETE", path, http.StatusNoContent, start, 0)
}

func (h *filesHandler) move(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req struct {
		From string `json:"from"`
		To   string `json:"to"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.From == "" || req.To == "" {
		jsonError(w, http.StatusBadRequest, "from and to required")
		return
	}
	if err := h.deps.Sandbox.Move(req.From, req.To); err != nil {
		status := filesErrStatus(err)
		jsonError(w, status, filesErrMsg(err))
		h.record("MOVE", req.From, status, start, 0)
		return
	}
	fileOps.WithLabelValues("move").Inc()
	w.WriteHeader(http.StatusNoContent)
	h.record("MOVE", req.From, http.StatusNoContent, start, 0)
}

func filesErrStatus(err error) int {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, files.ErrIsDirectory), errors.Is(err, files.ErrEscapesRoot):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func filesErrMsg(err error) string {
	switch {
	case errors.Is(err, files.ErrNotFound):
		return "not found"
	case errors.Is(err, files.ErrIsDirectory):
		return "path is a directory"
	case errors.Is(err, files.ErrEscapesRoot):
		return "invalid path"
	default:
		return "internal error"
	}
}
