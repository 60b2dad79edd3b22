package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the verified identity carried by a tenant token. Sub is the
// tenant slug; Bucket is the storage bucket the token is scoped to.
type Claims struct {
	Sub    string
	Bucket string
}

// ErrInvalidToken is the single error surfaced for any verification
// failure. Callers must not learn which verification step failed.
var ErrInvalidToken = errors.New("auth: invalid token")

// DefaultTokenTTL applies when configuration does not set one.
const DefaultTokenTTL = time.Hour

// MintToken signs a short-lived HS256 token scoped to a tenant and its
// bucket.
func MintToken(slug, bucket, secret string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    slug,
		"bucket": bucket,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	})
	return tok.SignedString([]byte(secret))
}

// peekSubject reads the unverified subject claim so the verifier knows
// which tenant's secrets to try. Never trust the result before VerifyToken
// succeeds.
func peekSubject(token string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", ErrInvalidToken
	}
	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, _ := mc["sub"].(string)
	if sub == "" {
		return "", ErrInvalidToken
	}
	return sub, nil
}

// VerifyToken tries each candidate secret in order and returns the claims
// of the first one that validates the signature and expiry.
func VerifyToken(token string, secrets []string) (Claims, error) {
	for _, secret := range secrets {
		parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, ErrInvalidToken
			}
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil || !parsed.Valid {
			continue
		}
		mc, ok := parsed.Claims.(jwt.MapClaims)
		if !ok {
			continue
		}
		sub, _ := mc["sub"].(string)
		bucket, _ := mc["bucket"].(string)
		if sub == "" {
			continue
		}
		return Claims{Sub: sub, Bucket: bucket}, nil
	}
	return Claims{}, ErrInvalidToken
}
