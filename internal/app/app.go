package app

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"skiff/internal/retention"
	"skiff/pkg/auth"
	"skiff/pkg/banner"
	"skiff/pkg/blob"
	"skiff/pkg/config"
	"skiff/pkg/files"
	"skiff/pkg/logger"
	"skiff/pkg/state"
	"skiff/pkg/store"
	"skiff/pkg/tenant"
)

// App encapsulates the server components and lifecycle: the shared pebble
// store plus the three HTTP listeners (blob, logs, gateway).
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	sandbox     *files.Sandbox
	staticCache *config.StaticCache
	secretCache *auth.SecretCache

	servers []*http.Server
	cancel  context.CancelFunc
}

// New initializes resources that do not require a running context: config
// validation, state dirs, the pebble store, the sandbox and the caches. It
// does not start listeners; call Run to start those and block until
// shutdown.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	applyDefaults(&eff)
	if err := validateConfig(eff); err != nil {
		return nil, err
	}

	runtimeCfg := &config.RuntimeConfig{BackendKeys: map[string]struct{}{}}
	for _, k := range eff.Config.Security.APIKeys.Backend {
		runtimeCfg.BackendKeys[k] = struct{}{}
	}
	config.SetRuntime(runtimeCfg)

	if err := state.EnsureStateDirs(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to prepare state dirs under %s: %w", eff.DBPath, err)
	}
	if err := store.Open(eff.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", eff.DBPath, err)
	}
	if cs := eff.Config.Storage.ChunkSize.Int64(); cs > 0 {
		blob.SetChunkSize(cs)
	}

	sandbox, err := files.NewSandbox(eff.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare sandbox root %s: %w", eff.Root, err)
	}

	staticPath := eff.Config.Sandbox.StaticConfig
	if staticPath == "" {
		staticPath = filepath.Join(sandbox.Root, "serve.json")
	}
	staticCache, err := config.NewStaticCache(staticPath)
	if err != nil {
		return nil, fmt.Errorf("failed to watch static config %s: %w", staticPath, err)
	}

	secretCache := auth.NewSecretCache(func(slug string) ([]string, error) {
		t, terr := tenant.Get(slug)
		if terr != nil {
			return nil, terr
		}
		return t.Secrets, nil
	})

	return &App{
		eff:         eff,
		version:     version,
		commit:      commit,
		buildDate:   buildDate,
		sandbox:     sandbox,
		staticCache: staticCache,
		secretCache: secretCache,
	}, nil
}

func applyDefaults(eff *config.EffectiveConfigResult) {
	if eff.DBPath == "" {
		eff.DBPath = "./.database"
	}
	if eff.Root == "" {
		eff.Root = "./sandbox"
	}
}

// Run starts the retention scheduler and the HTTP listeners, and blocks
// until ctx is canceled or a fatal server error occurs.
func (a *App) Run(ctx context.Context) error {
	a.printBanner()

	retCancel, err := retention.Start(ctx, a.eff.Config)
	if err != nil {
		return err
	}
	defer retCancel()

	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		a.shutdown()
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			a.shutdown()
			return err
		}
		return nil
	}
}

// shutdown drains the listeners with a bounded grace period and closes the
// store.
func (a *App) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, srv := range a.servers {
		if serr := srv.Shutdown(ctx); serr != nil {
			logger.Warn("http_shutdown_error", "addr", srv.Addr, "error", serr)
		}
	}
	_ = a.staticCache.Close()
	if serr := store.Close(); serr != nil {
		logger.Warn("store_close_error", "error", serr)
	}
	logger.Info("shutdown_complete")
}

// printBanner prints the startup banner and build info.
func (a *App) printBanner() {
	verStr := a.version
	if a.commit != "none" && a.commit != "" {
		verStr += " (" + a.commit + ")"
	}
	if a.buildDate != "unknown" && a.buildDate != "" {
		verStr += " @ " + a.buildDate
	}
	banner.PrintWithEff(a.eff, verStr)
}
