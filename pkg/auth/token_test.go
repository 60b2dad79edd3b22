package auth

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	tok, err := MintToken("acme", "acme", "s3cret", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := VerifyToken(tok, []string{"s3cret"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Sub != "acme" || claims.Bucket != "acme" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := MintToken("acme", "acme", "right", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := VerifyToken(tok, []string{"wrong"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
	// second secret in the candidate list still validates
	claims, err := VerifyToken(tok, []string{"wrong", "right"})
	if err != nil {
		t.Fatalf("multi-secret verify: %v", err)
	}
	if claims.Sub != "acme" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestVerifyRejectsExpired(t *testing.T) {
	tok, err := MintToken("acme", "acme", "s3cret", -time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := VerifyToken(tok, []string{"s3cret"}); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token accepted: %v", err)
	}
}

func TestVerifyRejectsGarbage(t *testing.T) {
	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := VerifyToken(tok, []string{"s3cret"}); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("VerifyToken(%q) err = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestSecretCacheRefreshesAfterRotation(t *testing.T) {
	secrets := []string{"old"}
	fetches := 0
	cache := NewSecretCache(func(slug string) ([]string, error) {
		fetches++
		if slug != "acme" {
			return nil, fmt.Errorf("unknown tenant %s", slug)
		}
		out := make([]string, len(secrets))
		copy(out, secrets)
		return out, nil
	})

	tok, err := MintToken("acme", "acme", "old", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := cache.Verify(tok); err != nil {
		t.Fatalf("initial verify: %v", err)
	}
	if fetches != 1 {
		t.Fatalf("fetches = %d, want 1", fetches)
	}

	// rotate: a token minted with the new secret fails against the cache,
	// triggering one refresh and a retry
	secrets = []string{"new"}
	tok2, err := MintToken("acme", "acme", "new", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := cache.Verify(tok2); err != nil {
		t.Fatalf("post-rotation verify: %v", err)
	}
	if fetches != 2 {
		t.Fatalf("fetches = %d, want 2", fetches)
	}

	// the old token is now invalid against both cached and fresh secrets
	if _, err := cache.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("stale token accepted: %v", err)
	}
}

func TestSecretCacheUnknownTenant(t *testing.T) {
	cache := NewSecretCache(func(slug string) ([]string, error) {
		return nil, errors.New("not found")
	})
	tok, err := MintToken("ghost", "ghost", "whatever", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := cache.Verify(tok); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("err = %v, want ErrInvalidToken", err)
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	r.Header.Set("Authorization", "Bearer abc123")
	if got := BearerToken(r); got != "abc123" {
		t.Fatalf("header token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws?token=qs456", nil)
	if got := BearerToken(r); got != "qs456" {
		t.Fatalf("query token = %q", got)
	}

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	if got := BearerToken(r); got != "" {
		t.Fatalf("empty request produced token %q", got)
	}
}

func TestRequireTenant(t *testing.T) {
	cache := NewSecretCache(func(slug string) ([]string, error) {
		if slug == "acme" {
			return []string{"s3cret"}, nil
		}
		return nil, errors.New("not found")
	})

	var seen Claims
	h := RequireTenant(cache)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	// no token
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/files", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", rec.Code)
	}

	// bad token
	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/api/files", nil)
	r.Header.Set("Authorization", "Bearer nonsense")
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token: status %d", rec.Code)
	}

	// valid token reaches the handler with claims in context
	tok, err := MintToken("acme", "acme", "s3cret", time.Minute)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	rec = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/api/files", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("valid token: status %d, body %s", rec.Code, rec.Body.String())
	}
	if seen.Sub != "acme" || seen.Bucket != "acme" {
		t.Fatalf("context claims = %+v", seen)
	}
}
