package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"sync"

	"github.com/datapunk/lake/pkg/lakeerr"
)

// Role is an RBAC role assigned to a validated API key.
type Role string

const (
	RoleReader Role = "reader"
	RoleWriter Role = "writer"
	RoleAdmin  Role = "admin"
)

// Principal is the identity and role a validated request is acting as.
type Principal struct {
	Tenant string
	Role   Role
}

// keyRecord is one registered API key's stored hash and assigned identity.
// The raw key is never retained — only sha256(key) is compared against,
// using a constant-time comparison to avoid timing side-channels.
type keyRecord struct {
	hash   [sha256.Size]byte
	tenant string
	role   Role
}

// KeyStore holds the set of valid API keys for a deployment. Keys are
// indexed by tenant so a single tenant can rotate through multiple
// credentials (e.g. during key rotation) without invalidating in-flight
// clients.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string][]keyRecord // tenant -> records
}

// NewKeyStore builds an empty KeyStore.
func NewKeyStore() *KeyStore {
	return &KeyStore{keys: make(map[string][]keyRecord)}
}

// Register adds a valid (tenant, apiKey, role) triple. The plaintext key is
// hashed immediately and not retained.
func (ks *KeyStore) Register(tenant, apiKey string, role Role) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	ks.keys[tenant] = append(ks.keys[tenant], keyRecord{
		hash:   sha256.Sum256([]byte(apiKey)),
		tenant: tenant,
		role:   role,
	})
}

// Revoke removes every key registered for tenant.
func (ks *KeyStore) Revoke(tenant string) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	delete(ks.keys, tenant)
}

// Validate checks apiKey against tenant's registered keys via a
// constant-time hash comparison, returning the matching Principal. A tenant
// with no matching key is a policy-kind error (surfaced as 401 by the
// handler, not the generic lakeerr.HTTPStatus 403 for KindPolicy).
func (ks *KeyStore) Validate(tenant, apiKey string) (Principal, error) {
	ks.mu.RLock()
	records := ks.keys[tenant]
	ks.mu.RUnlock()

	want := sha256.Sum256([]byte(apiKey))
	for _, r := range records {
		if subtle.ConstantTimeCompare(want[:], r.hash[:]) == 1 {
			return Principal{Tenant: r.tenant, Role: r.role}, nil
		}
	}
	return Principal{}, lakeerr.New(lakeerr.KindPolicy, "unauthorized", "invalid api key").WithField("api_key")
}
