package auth

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"skiff/pkg/logger"
	"skiff/pkg/utils"
)

// SecretFetcher loads the current secrets for a tenant slug from the
// registry. Returning an empty slice means the tenant is unknown.
type SecretFetcher func(slug string) ([]string, error)

// SecretCache memoizes tenant secrets for the process lifetime. Lookups
// take a read lock so concurrent requests do not serialize; a failed
// verification refreshes the cached secrets once and retries, which covers
// secret rotation without a restart.
type SecretCache struct {
	mu    sync.RWMutex
	byTen map[string][]string
	fetch SecretFetcher
}

func NewSecretCache(fetch SecretFetcher) *SecretCache {
	return &SecretCache{byTen: make(map[string][]string), fetch: fetch}
}

func (c *SecretCache) get(slug string) ([]string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byTen[slug]
	return s, ok
}

func (c *SecretCache) refresh(slug string) ([]string, error) {
	s, err := c.fetch(slug)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.byTen[slug] = s
	c.mu.Unlock()
	return s, nil
}

// Verify checks a token against the cached secrets of the tenant named in
// its subject claim, refreshing from the registry and retrying exactly once
// when the cached set fails.
func (c *SecretCache) Verify(token string) (Claims, error) {
	slug, err := peekSubject(token)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}
	secrets, ok := c.get(slug)
	if !ok {
		if secrets, err = c.refresh(slug); err != nil {
			logger.Warn("secret_fetch_failed", "tenant", slug, "error", err)
			return Claims{}, ErrInvalidToken
		}
	}
	claims, verr := VerifyToken(token, secrets)
	if verr == nil {
		return claims, nil
	}
	// cached secrets may be stale after a rotation
	if secrets, err = c.refresh(slug); err != nil {
		logger.Warn("secret_refresh_failed", "tenant", slug, "error", err)
		return Claims{}, ErrInvalidToken
	}
	return VerifyToken(token, secrets)
}

type ctxClaimsKey struct{}

// ClaimsFromContext returns the verified claims placed by RequireTenant,
// or false when the request did not pass through it.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(ctxClaimsKey{}).(Claims)
	return c, ok
}

// BearerToken extracts the raw token from an Authorization header or, as a
// browser-friendly fallback, a token query parameter.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return strings.TrimSpace(r.URL.Query().Get("token"))
}

// RequireTenant rejects requests without a valid tenant token and injects
// the verified claims into the request context.
func RequireTenant(cache *SecretCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tok := BearerToken(r)
			if tok == "" {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			claims, err := cache.Verify(tok)
			if err != nil {
				logger.Warn("token_rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			ctx := context.WithValue(r.Context(), ctxClaimsKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
