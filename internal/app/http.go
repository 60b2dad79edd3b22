package app

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"

	"skiff/pkg/api"
	"skiff/pkg/auth"
	"skiff/pkg/store"
	"skiff/pkg/telemetry"
	"skiff/pkg/term"
)

// readyzHandler reports storage readiness plus the running version.
func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !store.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	ver := a.version
	if ver == "" {
		ver = "dev"
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok","version":"` + ver + `"}`))
}

// healthzHandler handles the /healthz endpoint.
func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// addProbes mounts the health endpoints every listener carries.
func (a *App) addProbes(r *mux.Router) {
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.readyzHandler).Methods(http.MethodGet)
}

// startHTTP builds the three listeners, starts each in a goroutine and
// returns a channel carrying the first fatal server error.
func (a *App) startHTTP(_ context.Context) <-chan error {
	cfg := a.eff.Config

	// blob listener: object protocol only
	blobRouter := api.NewBlobRouter()
	a.addProbes(blobRouter)

	// logs listener: tenant-token gated write/read
	logsRouter := api.NewLogsRouter(a.secretCache)
	a.addProbes(logsRouter)

	// gateway listener: tenants, files, terminal, preview, ops surfaces
	gwRouter := api.NewGatewayRouter(api.GatewayDeps{
		SecretCache: a.secretCache,
		Sandbox:     a.sandbox,
		Shipper:     a.shipper(),
		StaticCache: a.staticCache,
		Terminal: term.Options{
			Shell:   cfg.Terminal.Shell,
			Workdir: a.terminalWorkdir(),
			Env:     cfg.Terminal.Env,
		},
		TokenTTL: cfg.Security.TokenTTL.Duration(),
	})
	a.addProbes(gwRouter)
	gwRouter.Handle("/metrics", promhttp.Handler())
	gwRouter.PathPrefix("/docs/").Handler(httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))
	gwRouter.Handle("/openapi.yaml", http.FileServer(http.Dir("./docs")))

	secCfg := auth.SecConfig{
		AllowedOrigins: append([]string{}, cfg.Security.CORS.AllowedOrigins...),
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		IPWhitelist:    append([]string{}, cfg.Security.IPWhitelist...),
		BackendKeys:    map[string]struct{}{},
		FrontendKeys:   map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range cfg.Security.APIKeys.Backend {
		secCfg.BackendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Frontend {
		secCfg.FrontendKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		secCfg.AdminKeys[k] = struct{}{}
	}

	gwHandler := auth.AuthenticateRequestMiddleware(secCfg)(gwRouter)
	gwHandler = telemetry.Middleware(gwHandler)

	errCh := make(chan error, 3)
	a.serve(cfg.GatewayAddr(), gwHandler, errCh)
	a.serve(cfg.BlobAddr(), telemetry.Middleware(blobRouter), errCh)
	a.serve(cfg.LogsAddr(), telemetry.Middleware(logsRouter), errCh)
	return errCh
}

func (a *App) serve(addr string, h http.Handler, errCh chan<- error) {
	srv := &http.Server{Addr: addr, Handler: h}
	a.servers = append(a.servers, srv)
	cert := a.eff.Config.Server.TLS.CertFile
	key := a.eff.Config.Server.TLS.KeyFile
	go func() {
		if cert != "" && key != "" {
			errCh <- srv.ListenAndServeTLS(cert, key)
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()
}
