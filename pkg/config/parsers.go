package config

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Flags holds parsed command-line flag values and which were set.
type Flags struct {
	Addr   string
	DB     string
	Root   string
	Config string
	Set    map[string]bool
}

// EnvResult holds the results of applying environment overrides.
type EnvResult struct {
	BackendKeys map[string]struct{}
	EnvUsed     bool
}

// EffectiveConfigResult holds the result of LoadEffectiveConfig.
type EffectiveConfigResult struct {
	Config *Config
	DBPath string
	Root   string
	Source string // "flags", "config", or "env"
}

// ParseConfigFlags parses command-line flags and returns them as a Flags struct.
func ParseConfigFlags() Flags {
	addrPtr := flag.String("addr", ":8080", "gateway HTTP listen address")
	dbPtr := flag.String("db", "./.database", "Pebble DB path")
	rootPtr := flag.String("root", "./sandbox", "sandbox root for the file API")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return Flags{Addr: *addrPtr, DB: *dbPtr, Root: *rootPtr, Config: *cfgPtr, Set: setFlags}
}

// ParseConfigFile resolves the config path and loads the YAML file. It
// returns the parsed config, a boolean indicating whether the file was
// present, and an error for fatal parsing problems.
func ParseConfigFile(flags Flags) (*Config, bool, error) {
	cfgPath := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := Load(cfgPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Config{}, false, nil
		}
		return nil, false, err
	}
	return cfg, true, nil
}

// ParseConfigEnvs reads environment variables into a fresh Config and
// returns that env-only config plus an EnvResult describing keys present
// and whether envs were used. This function does not mutate any caller
// provided config.
func ParseConfigEnvs() (*Config, EnvResult) {
	envCfg := &Config{}
	envUsed := false
	parseList := func(v string) []string {
		if v == "" {
			return nil
		}
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("SKIFF_GATEWAY_ADDR"); v != "" {
		envUsed = true
		envCfg.Server.GatewayAddr = v
	} else if v := os.Getenv("SKIFF_ADDR"); v != "" {
		envUsed = true
		envCfg.Server.GatewayAddr = v
	}
	if v := os.Getenv("SKIFF_BLOB_ADDR"); v != "" {
		envUsed = true
		envCfg.Server.BlobAddr = v
	}
	if v := os.Getenv("SKIFF_LOGS_ADDR"); v != "" {
		envUsed = true
		envCfg.Server.LogsAddr = v
	}

	if v := os.Getenv("SKIFF_DB_PATH"); v != "" {
		envUsed = true
		envCfg.Storage.DBPath = v
	}
	if v := os.Getenv("SKIFF_CHUNK_SIZE"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			envUsed = true
			envCfg.Storage.ChunkSize = SizeBytes(n)
		}
	}
	if v := os.Getenv("SKIFF_SANDBOX_ROOT"); v != "" {
		envUsed = true
		envCfg.Sandbox.Root = v
	}
	if v := os.Getenv("SKIFF_STATIC_CONFIG"); v != "" {
		envUsed = true
		envCfg.Sandbox.StaticConfig = v
	}
	if v := os.Getenv("SKIFF_SHELL"); v != "" {
		envUsed = true
		envCfg.Terminal.Shell = v
	}
	if v := os.Getenv("SKIFF_SHELL_WORKDIR"); v != "" {
		envUsed = true
		envCfg.Terminal.Workdir = v
	}

	if v := os.Getenv("SKIFF_CORS_ORIGINS"); v != "" {
		envUsed = true
		envCfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("SKIFF_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("SKIFF_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("SKIFF_IP_WHITELIST"); v != "" {
		envUsed = true
		envCfg.Security.IPWhitelist = parseList(v)
	}
	if v := os.Getenv("SKIFF_API_BACKEND_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Backend = parseList(v)
	}
	if v := os.Getenv("SKIFF_API_FRONTEND_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Frontend = parseList(v)
	}
	if v := os.Getenv("SKIFF_API_ADMIN_KEYS"); v != "" {
		envUsed = true
		envCfg.Security.APIKeys.Admin = parseList(v)
	}
	if v := os.Getenv("SKIFF_TOKEN_TTL"); v != "" {
		if td, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			envUsed = true
			envCfg.Security.TokenTTL = Duration(td)
		}
	}

	if v := os.Getenv("SKIFF_LOG_HTTP_URL"); v != "" {
		envUsed = true
		envCfg.Logging.HTTP.Enabled = true
		envCfg.Logging.HTTP.URL = v
	}
	if v := os.Getenv("SKIFF_LOG_HTTP_BEARER"); v != "" {
		envUsed = true
		envCfg.Logging.HTTP.Bearer = v
	}

	if c := os.Getenv("SKIFF_TLS_CERT"); c != "" {
		envUsed = true
		envCfg.Server.TLS.CertFile = c
	}
	if k := os.Getenv("SKIFF_TLS_KEY"); k != "" {
		envUsed = true
		envCfg.Server.TLS.KeyFile = k
	}

	backendKeys := make(map[string]struct{})
	for _, k := range envCfg.Security.APIKeys.Backend {
		backendKeys[k] = struct{}{}
	}
	return envCfg, EnvResult{BackendKeys: backendKeys, EnvUsed: envUsed}
}

// LoadEffectiveConfig decides which single source to use (flags, config
// file, or env) and returns the effective config plus resolved db path and
// sandbox root. It honors an explicit flags.Config (user provided --config)
// by using the config file only; otherwise it uses flags if any flags
// are set; else if a config file exists it uses that; otherwise env.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, fileExists bool, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult

	// If user explicitly passed --config, require the file to exist and use it.
	if flags.Set["config"] {
		if !fileExists {
			return res, fmt.Errorf("config file %s not found", flags.Config)
		}
		res.Config = fileCfg
		res.DBPath = fileCfg.Storage.DBPath
		res.Root = fileCfg.Sandbox.Root
		res.Source = "config"
		return res, nil
	}

	// If user passed any non-config flags, use flags exclusively.
	if flags.Set["addr"] || flags.Set["db"] || flags.Set["root"] {
		out := &Config{}
		out.Server.GatewayAddr = flags.Addr
		out.Storage.DBPath = flags.DB
		out.Sandbox.Root = flags.Root
		if !flags.Set["db"] {
			if p := strings.TrimSpace(envCfg.Storage.DBPath); p != "" {
				out.Storage.DBPath = p
			} else if p := strings.TrimSpace(fileCfg.Storage.DBPath); p != "" {
				out.Storage.DBPath = p
			}
		}
		if !flags.Set["root"] {
			if p := strings.TrimSpace(envCfg.Sandbox.Root); p != "" {
				out.Sandbox.Root = p
			} else if p := strings.TrimSpace(fileCfg.Sandbox.Root); p != "" {
				out.Sandbox.Root = p
			}
		}
		res.Config = out
		res.DBPath = out.Storage.DBPath
		res.Root = out.Sandbox.Root
		res.Source = "flags"
		return res, nil
	}

	// No explicit flags: prefer file config if present, otherwise env.
	if fileExists {
		res.Config = fileCfg
		res.DBPath = fileCfg.Storage.DBPath
		res.Root = fileCfg.Sandbox.Root
		res.Source = "config"
		return res, nil
	}
	res.Config = envCfg
	res.DBPath = envCfg.Storage.DBPath
	res.Root = envCfg.Sandbox.Root
	res.Source = "env"
	return res, nil
}
