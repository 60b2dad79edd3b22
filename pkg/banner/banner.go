package banner

import (
	"fmt"

	"skiff/pkg/config"
)

const banner = `
███████╗██╗  ██╗██╗███████╗███████╗
██╔════╝██║ ██╔╝██║██╔════╝██╔════╝
███████╗█████╔╝ ██║█████╗  █████╗
╚════██║██╔═██╗ ██║██╔══╝  ██╔══╝
███████║██║  ██╗██║██║     ██║
╚══════╝╚═╝  ╚═╝╚═╝╚═╝     ╚═╝
`

// PrintWithEff prints the startup banner with the effective configuration:
// listener addresses, storage paths, config source and a readiness
// checklist.
func PrintWithEff(eff config.EffectiveConfigResult, version string) {
	cfg := eff.Config

	fmt.Print(banner)
	fmt.Println("== Config =====================================================")
	if cfg != nil {
		fmt.Printf("Gateway:  %s\n", cfg.GatewayAddr())
		fmt.Printf("Blob:     %s\n", cfg.BlobAddr())
		fmt.Printf("Logs:     %s\n", cfg.LogsAddr())
	}
	fmt.Printf("DB Path:  %s\n", eff.DBPath)
	fmt.Printf("Sandbox:  %s\n", eff.Root)
	if version != "" {
		fmt.Printf("Version:  %s\n", version)
	}
	src := eff.Source
	if src == "" {
		src = "flags"
	}
	fmt.Printf("Config:   %s\n", src)

	fmt.Println("\n== Endpoints ==================================================")
	fmt.Println("Blob:    GET/PUT/DELETE /{bucket}/{key}   GET /{bucket}?list-type=2")
	fmt.Println("Logs:    POST /write   GET /list?before=&search=&limit=")
	fmt.Println("Gateway: /api/tenants  /api/files  /ws  /preview  /metrics  /docs")

	fmt.Println("\n== Production? ================================================")
	be, fe, ak := 0, 0, 0
	if cfg != nil {
		be = len(cfg.Security.APIKeys.Backend)
		fe = len(cfg.Security.APIKeys.Frontend)
		ak = len(cfg.Security.APIKeys.Admin)
	}
	if be > 0 {
		fmt.Printf("- Backend API keys: OK (%d)\n", be)
	} else {
		fmt.Println("- Backend API keys: MISSING (required for backend services)")
	}
	if fe > 0 {
		fmt.Printf("- Frontend API keys: OK (%d)\n", fe)
	} else {
		fmt.Println("- Frontend API keys: MISSING (required for client access)")
	}
	if ak > 0 {
		fmt.Printf("- Admin API keys: OK (%d)\n", ak)
	} else {
		fmt.Println("- Admin API keys: MISSING (required for admin tooling)")
	}
	tlsOK := cfg != nil && cfg.Server.TLS.CertFile != "" && cfg.Server.TLS.KeyFile != ""
	if tlsOK {
		fmt.Println("- TLS: configured")
	} else {
		fmt.Println("- TLS: NOT configured (use a terminating proxy or set server.tls)")
	}
	fmt.Println()
}
