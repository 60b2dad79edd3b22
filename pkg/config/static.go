package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"skiff/pkg/logger"
)

// StaticConfig is the tenant-editable serving config read from the sandbox
// (JSON with comments allowed). It drives the preview surface.
type StaticConfig struct {
	Static []StaticRoute `json:"static"`
	SPA    bool          `json:"spa"`
}

// StaticRoute maps a URL prefix to a directory under the sandbox root.
type StaticRoute struct {
	Prefix string `json:"prefix"`
	Dir    string `json:"dir"`
}

// Validate checks route shape early so errors can be surfaced as a
// diagnostic page instead of failing per-request.
func (c *StaticConfig) Validate() error {
	for i, r := range c.Static {
		if !strings.HasPrefix(r.Prefix, "/") {
			return fmt.Errorf("static[%d].prefix must start with '/': %q", i, r.Prefix)
		}
		if r.Dir == "" {
			return fmt.Errorf("static[%d].dir is empty", i)
		}
		if strings.Contains(r.Dir, "..") {
			return fmt.Errorf("static[%d].dir must stay inside the sandbox: %q", i, r.Dir)
		}
	}
	return nil
}

// StaticCache caches the parsed static config and refreshes it when the
// file changes. Invalidation is event-driven via fsnotify with a
// modification-time check as fallback for editors that replace the file.
type StaticCache struct {
	path string

	mu      sync.RWMutex
	cfg     *StaticConfig
	loadErr error
	modTime time.Time
	dirty   bool

	watcher *fsnotify.Watcher
}

// NewStaticCache builds a cache for the given config file path and starts
// watching it. A missing file is not an error: Get returns a nil config
// until the tenant creates one.
func NewStaticCache(path string) (*StaticCache, error) {
	c := &StaticCache{path: path, dirty: true}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		// fall back to pure mtime polling on systems without inotify
		logger.Warn("static_config_watch_unavailable", "path", path, "error", err)
		return c, nil
	}
	c.watcher = w
	// watch the directory: editors typically rename over the file
	dir := path
	if i := strings.LastIndexByte(path, '/'); i > 0 {
		dir = path[:i]
	}
	if err := w.Add(dir); err != nil {
		logger.Warn("static_config_watch_failed", "dir", dir, "error", err)
	}
	go c.watch()
	return c, nil
}

func (c *StaticCache) watch() {
	for {
		select {
		case ev, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if ev.Name == c.path {
				c.mu.Lock()
				c.dirty = true
				c.mu.Unlock()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			logger.Warn("static_config_watch_error", "error", err)
		}
	}
}

// Close stops the underlying watcher.
func (c *StaticCache) Close() error {
	if c.watcher != nil {
		return c.watcher.Close()
	}
	return nil
}

// Get returns the current static config. It reloads when the watcher marked
// the cache dirty or the file modification time moved. A parse or
// validation failure is returned to the caller (rendered as a diagnostic
// page by the gateway) while keeping the previous good config cached.
func (c *StaticCache) Get() (*StaticConfig, error) {
	c.mu.RLock()
	needs := c.dirty
	mod := c.modTime
	c.mu.RUnlock()

	if !needs {
		if fi, err := os.Stat(c.path); err == nil && !fi.ModTime().Equal(mod) {
			needs = true
		}
	}
	if needs {
		c.reload()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.loadErr != nil {
		return c.cfg, c.loadErr
	}
	return c.cfg, nil
}

func (c *StaticCache) reload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = false

	b, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.cfg, c.loadErr, c.modTime = nil, nil, time.Time{}
			return
		}
		c.loadErr = fmt.Errorf("read %s: %w", c.path, err)
		return
	}
	var cfg StaticConfig
	if err := json.Unmarshal(StripJSONComments(b), &cfg); err != nil {
		c.loadErr = fmt.Errorf("parse %s: %w", c.path, err)
		return
	}
	if err := cfg.Validate(); err != nil {
		c.loadErr = fmt.Errorf("invalid %s: %w", c.path, err)
		return
	}
	if fi, err := os.Stat(c.path); err == nil {
		c.modTime = fi.ModTime()
	}
	c.cfg, c.loadErr = &cfg, nil
	logger.Info("static_config_loaded", "path", c.path, "routes", len(cfg.Static))
}

// StripJSONComments removes // line and /* block */ comments from JSON
// while leaving string contents (including escaped quotes) untouched, so
// tenants can annotate their serving config.
func StripJSONComments(in []byte) []byte {
	out := make([]byte, 0, len(in))
	var inStr, esc, line, block bool
	for i := 0; i < len(in); i++ {
		ch := in[i]
		switch {
		case line:
			if ch == '\n' {
				line = false
				out = append(out, ch)
			}
		case block:
			if ch == '*' && i+1 < len(in) && in[i+1] == '/' {
				block = false
				i++
			}
		case inStr:
			out = append(out, ch)
			if esc {
				esc = false
			} else if ch == '\\' {
				esc = true
			} else if ch == '"' {
				inStr = false
			}
		case ch == '"':
			inStr = true
			out = append(out, ch)
		case ch == '/' && i+1 < len(in) && in[i+1] == '/':
			line = true
			i++
		case ch == '/' && i+1 < len(in) && in[i+1] == '*':
			block = true
			i++
		default:
			out = append(out, ch)
		}
	}
	return out
}
