package tenant

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"skiff/pkg/logger"
	"skiff/pkg/store"
)

// Tenant maps a human-chosen display name to a unique routable slug and
// the secrets used to verify tokens minted for it. The slug doubles as the
// tenant's storage bucket id and is immutable once assigned.
type Tenant struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Slug        string    `json:"slug"`
	CreatedAt   time.Time `json:"created_at"`
	Secrets     []string  `json:"secrets"`
}

var (
	ErrEmptyName = errors.New("tenant: display name empty")
	ErrNotFound  = errors.New("tenant: not found")
	// ErrSlugExhausted means the base slug and all numeric-suffix
	// variants were taken.
	ErrSlugExhausted = errors.New("tenant: no free slug")
)

const maxSlugAttempts = 100

func key(slug string) []byte {
	return []byte("tn\x00" + slug)
}

// Slugify derives the URL-safe routing key from a display name: lowercase,
// keep only alphanumerics, spaces and hyphens, collapse whitespace runs to
// single hyphens, trim edge hyphens.
func Slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var sb strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			sb.WriteRune(r)
		case r == ' ' || r == '\t':
			sb.WriteRune(' ')
		}
	}
	out := strings.Join(strings.Fields(sb.String()), "-")
	return strings.Trim(out, "-")
}

// NewSecret mints an opaque 64-hex-char verification secret.
func NewSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// Create registers a tenant. Slug collisions get numeric suffixes -1, -2
// and so on up to a bounded attempt count.
func Create(displayName string) (Tenant, error) {
	name := strings.TrimSpace(displayName)
	if name == "" {
		return Tenant{}, ErrEmptyName
	}
	base := Slugify(name)
	if base == "" {
		return Tenant{}, ErrEmptyName
	}

	slug := base
	for i := 0; ; i++ {
		if i > maxSlugAttempts {
			return Tenant{}, ErrSlugExhausted
		}
		if i > 0 {
			slug = fmt.Sprintf("%s-%d", base, i)
		}
		exists, err := store.Has(key(slug))
		if err != nil {
			return Tenant{}, err
		}
		if !exists {
			break
		}
	}

	secret, err := NewSecret()
	if err != nil {
		return Tenant{}, err
	}
	t := Tenant{
		ID:          uuid.NewString(),
		DisplayName: name,
		Slug:        slug,
		CreatedAt:   time.Now().UTC(),
		Secrets:     []string{secret},
	}
	if err := save(t); err != nil {
		return Tenant{}, err
	}
	logger.Info("tenant_created", "slug", slug, "name", name)
	return t, nil
}

// Get looks up a tenant by exact slug. Tenants persisted before secrets
// existed get one minted and saved on first read.
func Get(slug string) (Tenant, error) {
	v, err := store.Get(key(slug))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Tenant{}, ErrNotFound
		}
		return Tenant{}, err
	}
	var t Tenant
	if err := json.Unmarshal(v, &t); err != nil {
		return Tenant{}, err
	}
	if len(t.Secrets) == 0 {
		secret, serr := NewSecret()
		if serr != nil {
			return Tenant{}, serr
		}
		t.Secrets = []string{secret}
		if serr := save(t); serr != nil {
			return Tenant{}, serr
		}
		logger.Info("tenant_secret_backfilled", "slug", slug)
	}
	return t, nil
}

// List returns all tenants newest-first.
func List() ([]Tenant, error) {
	out := []Tenant{}
	err := store.PrefixScan([]byte("tn\x00"), func(_, v []byte) bool {
		var t Tenant
		if json.Unmarshal(v, &t) == nil {
			out = append(out, t)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func save(t Tenant) error {
	v, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return store.Set(key(t.Slug), v)
}
