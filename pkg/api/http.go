package api

import (
	"time"

	"github.com/gorilla/mux"

	"skiff/pkg/api/handlers"
	"skiff/pkg/auth"
	"skiff/pkg/config"
	"skiff/pkg/files"
	"skiff/pkg/term"
)

// NewBlobRouter builds the router for the blob listener: the path-style
// object protocol only.
func NewBlobRouter() *mux.Router {
	r := mux.NewRouter()
	handlers.RegisterBlob(r)
	return r
}

// NewLogsRouter builds the router for the log store listener. All routes
// are tenant-token gated through the secret cache.
func NewLogsRouter(cache *auth.SecretCache) *mux.Router {
	r := mux.NewRouter()
	handlers.RegisterLogs(r, cache)
	return r
}

// GatewayDeps carries everything the gateway surface needs.
type GatewayDeps struct {
	SecretCache *auth.SecretCache
	Sandbox     *files.Sandbox
	Shipper     *files.Shipper
	StaticCache *config.StaticCache
	Terminal    term.Options
	TokenTTL    time.Duration
}

// NewGatewayRouter builds the gateway router: tenant registry and token
// minting, the sandboxed file API, the terminal WebSocket and the static
// preview surface. Role-key and CORS gating is applied by the caller as
// listener middleware.
func NewGatewayRouter(deps GatewayDeps) *mux.Router {
	r := mux.NewRouter()
	handlers.RegisterTenants(r, deps.TokenTTL)
	handlers.RegisterOps(r)

	// file api and terminal carry tenant tokens
	gated := r.NewRoute().Subrouter()
	gated.Use(auth.RequireTenant(deps.SecretCache))
	handlers.RegisterFiles(gated, handlers.FilesDeps{Sandbox: deps.Sandbox, Shipper: deps.Shipper})
	gated.Handle("/ws", term.Handler(deps.Terminal))

	handlers.RegisterPreview(r, deps.StaticCache, deps.Sandbox)
	return r
}
