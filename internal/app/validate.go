package app

import (
	"fmt"
	"os"

	"skiff/pkg/config"
	"skiff/pkg/files"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DBPath == "" {
		return fmt.Errorf("database path is empty: set --db flag, SKIFF_DB_PATH env, or storage.db_path in config")
	}
	if eff.Root == "" {
		return fmt.Errorf("sandbox root is empty: set --root flag, SKIFF_SANDBOX_ROOT env, or sandbox.root in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if shell := eff.Config.Terminal.Shell; shell != "" {
		if _, err := os.Stat(shell); err != nil {
			return fmt.Errorf("terminal shell not accessible: %w", err)
		}
	}

	if addrs := map[string]string{
		"gateway": eff.Config.GatewayAddr(),
		"blob":    eff.Config.BlobAddr(),
		"logs":    eff.Config.LogsAddr(),
	}; hasDuplicateAddr(addrs) {
		return fmt.Errorf("listener addresses must be distinct: gateway=%s blob=%s logs=%s",
			addrs["gateway"], addrs["blob"], addrs["logs"])
	}
	return nil
}

func hasDuplicateAddr(addrs map[string]string) bool {
	seen := map[string]bool{}
	for _, a := range addrs {
		if seen[a] {
			return true
		}
		seen[a] = true
	}
	return false
}

// shipper builds the file-op record shipper when HTTP log shipping is
// configured; nil disables it.
func (a *App) shipper() *files.Shipper {
	h := a.eff.Config.Logging.HTTP
	if !h.Enabled || h.URL == "" {
		return nil
	}
	return files.NewShipper(h.URL, h.Bearer)
}

// terminalWorkdir defaults terminal sessions into the sandbox root so a
// fresh shell lands on the tenant's files.
func (a *App) terminalWorkdir() string {
	if wd := a.eff.Config.Terminal.Workdir; wd != "" {
		return wd
	}
	return a.sandbox.Root
}
