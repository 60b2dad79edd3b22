package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"skiff/pkg/auth"
	"skiff/pkg/logger"
	"skiff/pkg/tenant"
)

// RegisterTenants mounts the tenant registry and token minting endpoints
// on the gateway router.
func RegisterTenants(r *mux.Router, tokenTTL time.Duration) {
	r.HandleFunc("/api/tenants", createTenant).Methods(http.MethodPost)
	r.HandleFunc("/api/tenants", listTenants).Methods(http.MethodGet)
	r.HandleFunc("/api/tenants/{slug}", getTenant).Methods(http.MethodGet)
	r.HandleFunc("/api/tenants/{slug}/token", mintTenantToken(tokenTTL)).Methods(http.MethodPost)
}

// tenantView is the external shape of a tenant. Secrets never leave the
// process.
type tenantView struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"created_at"`
}

func viewOf(t tenant.Tenant) tenantView {
	return tenantView{ID: t.ID, DisplayName: t.DisplayName, Slug: t.Slug, CreatedAt: t.CreatedAt}
}

func createTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid json")
		return
	}
	t, err := tenant.Create(req.Name)
	if err != nil {
		switch {
		case errors.Is(err, tenant.ErrEmptyName):
			jsonError(w, http.StatusBadRequest, "name required")
		case errors.Is(err, tenant.ErrSlugExhausted):
			jsonError(w, http.StatusConflict, "name unavailable")
		default:
			logger.Error("tenant_create_failed", "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}
	tenantOps.WithLabelValues("create").Inc()
	writeJSON(w, http.StatusCreated, viewOf(t))
}

func listTenants(w http.ResponseWriter, r *http.Request) {
	ts, err := tenant.List()
	if err != nil {
		logger.Error("tenant_list_failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]tenantView, 0, len(ts))
	for _, t := range ts {
		out = append(out, viewOf(t))
	}
	tenantOps.WithLabelValues("list").Inc()
	writeJSON(w, http.StatusOK, out)
}

func getTenant(w http.ResponseWriter, r *http.Request) {
	slug := mux.Vars(r)["slug"]
	t, err := tenant.Get(slug)
	if err != nil {
		if errors.Is(err, tenant.ErrNotFound) {
			jsonError(w, http.StatusNotFound, "not found")
			return
		}
		logger.Error("tenant_get_failed", "slug", slug, "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
		return
	}
	tenantOps.WithLabelValues("get").Inc()
	writeJSON(w, http.StatusOK, viewOf(t))
}

// mintTenantToken signs a short-lived token scoped to the tenant and its
// bucket, which shares the tenant's slug.
func mintTenantToken(ttl time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["slug"]
		t, err := tenant.Get(slug)
		if err != nil {
			if errors.Is(err, tenant.ErrNotFound) {
				jsonError(w, http.StatusNotFound, "not found")
				return
			}
			logger.Error("tenant_get_failed", "slug", slug, "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}
		tok, err := auth.MintToken(t.Slug, t.Slug, t.Secrets[0], ttl)
		if err != nil {
			logger.Error("token_mint_failed", "slug", slug, "error", err)
			jsonError(w, http.StatusInternalServerError, "internal error")
			return
		}
		tenantOps.WithLabelValues("token").Inc()
		writeJSON(w, http.StatusOK, map[string]string{
			"token":  tok,
			"bucket": t.Slug,
		})
	}
}
