package handlers

import (
	"html/template"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gorilla/mux"

	"skiff/pkg/config"
	"skiff/pkg/files"
)

// RegisterPreview mounts the tenant-configured static serving surface.
// Routes come from the sandbox's serving config file; a broken config
// renders a diagnostic page instead of a bare 500, since the tenant can
// fix it themselves.
func RegisterPreview(r *mux.Router, cache *config.StaticCache, sandbox *files.Sandbox) {
	h := &previewHandler{cache: cache, sandbox: sandbox}
	r.PathPrefix("/preview/").Handler(http.StripPrefix("/preview", h))
	r.Handle("/preview", http.RedirectHandler("/preview/", http.StatusMovedPermanently))
}

type previewHandler struct {
	cache   *config.StaticCache
	sandbox *files.Sandbox
}

var diagTmpl = template.Must(template.New("diag").Parse(`<!doctype html>
<html><head><title>preview config error</title></head>
<body style="font-family:monospace;padding:2em">
<h1>Preview configuration error</h1>
<p>The serving config in your sandbox could not be loaded:</p>
<pre>{{.}}</pre>
<p>Fix the file and reload this page.</p>
</body></html>`))

func (h *previewHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.cache.Get()
	if err != nil {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = diagTmpl.Execute(w, err.Error())
		return
	}
	if cfg == nil {
		http.Error(w, "no serving config in sandbox", http.StatusNotFound)
		return
	}

	reqPath := r.URL.Path
	if reqPath == "" {
		reqPath = "/"
	}
	for _, route := range cfg.Static {
		if !strings.HasPrefix(reqPath, route.Prefix) {
			continue
		}
		rel := strings.TrimPrefix(reqPath, route.Prefix)
		abs, rerr := h.sandbox.Resolve(filepath.Join(route.Dir, rel))
		if rerr != nil {
			http.Error(w, "invalid path", http.StatusBadRequest)
			return
		}
		if fi, serr := os.Stat(abs); serr == nil && !fi.IsDir() {
			http.ServeFile(w, r, abs)
			return
		}
		// single-page apps route unknown paths to the index document
		if cfg.SPA {
			if idx, ierr := h.sandbox.Resolve(filepath.Join(route.Dir, "index.html")); ierr == nil {
				if _, serr := os.Stat(idx); serr == nil {
					http.ServeFile(w, r, idx)
					return
				}
			}
		}
	}
	http.NotFound(w, r)
}
