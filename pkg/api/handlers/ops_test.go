package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"skiff/internal/retention"
	"skiff/pkg/config"
	"skiff/pkg/logstore"
	"skiff/pkg/state"
	"skiff/pkg/store"
)

func TestRetentionTrigger(t *testing.T) {
	dbPath := t.TempDir()
	if err := store.Open(dbPath); err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := state.EnsureStateDirs(dbPath); err != nil {
		t.Fatalf("state dirs: %v", err)
	}

	r := mux.NewRouter()
	RegisterOps(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	// without a registered config the trigger fails cleanly
	resp, err := http.Post(srv.URL+"/api/retention/run", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("trigger without config: status %d", resp.StatusCode)
	}

	retention.SetConfig(&config.Config{})

	stale := time.Now().Add(-9 * 24 * time.Hour).UnixNano()
	if err := logstore.Write("acme-ops", []logstore.Entry{{TS: stale, Log: "stale trigger row"}}); err != nil {
		t.Fatalf("write: %v", err)
	}

	resp, err = http.Post(srv.URL+"/api/retention/run", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("trigger status %d", resp.StatusCode)
	}

	survived := false
	if err := store.PrefixScan([]byte("l\x00acme-ops\x00"), func(_, _ []byte) bool {
		survived = true
		return false
	}); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if survived {
		t.Fatalf("stale row survived triggered sweep")
	}
}
