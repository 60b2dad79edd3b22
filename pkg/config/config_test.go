package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestSizeBytesUnmarshal(t *testing.T) {
	var s struct {
		V SizeBytes `yaml:"v"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("v: 4MB"), &s))
	require.Equal(t, int64(4*1000*1000), s.V.Int64())

	require.NoError(t, yaml.Unmarshal([]byte("v: 1048576"), &s))
	require.Equal(t, int64(1048576), s.V.Int64())

	require.NoError(t, yaml.Unmarshal([]byte("v: \"\""), &s))
	require.Equal(t, int64(0), s.V.Int64())

	require.Error(t, yaml.Unmarshal([]byte("v: lots"), &s))
}

func TestDurationUnmarshal(t *testing.T) {
	var s struct {
		V Duration `yaml:"v"`
	}
	require.NoError(t, yaml.Unmarshal([]byte("v: 90s"), &s))
	require.Equal(t, 90*time.Second, s.V.Duration())

	// bare numbers read as seconds
	require.NoError(t, yaml.Unmarshal([]byte("v: 2"), &s))
	require.Equal(t, 2*time.Second, s.V.Duration())

	require.Error(t, yaml.Unmarshal([]byte("v: soon"), &s))
}

func TestListenerAddrDefaults(t *testing.T) {
	var c Config
	require.Equal(t, ":8080", c.GatewayAddr())
	require.Equal(t, ":8787", c.BlobAddr())
	require.Equal(t, ":8788", c.LogsAddr())

	c.Server.GatewayAddr = "127.0.0.1:9000"
	require.Equal(t, "127.0.0.1:9000", c.GatewayAddr())
}

func TestStripJSONComments(t *testing.T) {
	in := []byte(`{
  // routing table
  "static": [{"prefix": "/", "dir": "dist"}], /* inline */
  "spa": true,
  "note": "text with // not a comment and \" escaped"
}`)
	var cfg struct {
		Static []map[string]string `json:"static"`
		SPA    bool                `json:"spa"`
		Note   string              `json:"note"`
	}
	require.NoError(t, json.Unmarshal(StripJSONComments(in), &cfg))
	require.Len(t, cfg.Static, 1)
	require.True(t, cfg.SPA)
	require.Equal(t, `text with // not a comment and " escaped`, cfg.Note)
}

func TestLoadEffectiveConfigPrecedence(t *testing.T) {
	fileCfg := &Config{}
	fileCfg.Storage.DBPath = "/from/file"
	fileCfg.Sandbox.Root = "/file/root"
	envCfg := &Config{}
	envCfg.Storage.DBPath = "/from/env"

	// explicit config flag requires the file and uses it exclusively
	eff, err := LoadEffectiveConfig(Flags{Config: "c.yaml", Set: map[string]bool{"config": true}}, fileCfg, true, envCfg, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "config", eff.Source)
	require.Equal(t, "/from/file", eff.DBPath)

	_, err = LoadEffectiveConfig(Flags{Config: "missing.yaml", Set: map[string]bool{"config": true}}, &Config{}, false, envCfg, EnvResult{})
	require.Error(t, err)

	// non-config flags win, with env then file filling unset values
	eff, err = LoadEffectiveConfig(Flags{Addr: ":9999", DB: "./.database", Root: "./sandbox", Set: map[string]bool{"addr": true}}, fileCfg, true, envCfg, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "flags", eff.Source)
	require.Equal(t, ":9999", eff.Config.GatewayAddr())
	require.Equal(t, "/from/env", eff.DBPath)
	require.Equal(t, "/file/root", eff.Root)

	// no flags: file beats env
	eff, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, fileCfg, true, envCfg, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "config", eff.Source)

	eff, err = LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, false, envCfg, EnvResult{})
	require.NoError(t, err)
	require.Equal(t, "env", eff.Source)
	require.Equal(t, "/from/env", eff.DBPath)
}

func TestStaticCacheReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "serve.json")

	cache, err := NewStaticCache(path)
	require.NoError(t, err)
	defer cache.Close()

	// absent file means no static serving, not an error
	cfg, err := cache.Get()
	require.NoError(t, err)
	require.Nil(t, cfg)

	require.NoError(t, os.WriteFile(path, []byte(`{"static":[{"prefix":"/","dir":"dist"}]}`), 0o644))
	cfg, err = cache.Get()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	require.Equal(t, "dist", cfg.Static[0].Dir)

	// a broken edit surfaces the parse error to the caller
	require.NoError(t, os.WriteFile(path, []byte(`{"static":`), 0o644))
	cache.mu.Lock()
	cache.dirty = true
	cache.mu.Unlock()
	_, err = cache.Get()
	require.Error(t, err)
}
