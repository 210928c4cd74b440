package api

import (
	"sync"

	"github.com/datapunk/lake/pkg/lakeerr"
)

// Resource names the action an incoming request performs, checked against
// a Principal's Role.
type Resource string

const (
	ResourceQuery Resource = "query"
	ResourceAdmin Resource = "admin"
)

// rolePermissions is the static role -> allowed-resources table. Readers
// and writers may only query; admins may also use the admin resource.
var rolePermissions = map[Role]map[Resource]bool{
	RoleReader: {ResourceQuery: true},
	RoleWriter: {ResourceQuery: true},
	RoleAdmin:  {ResourceQuery: true, ResourceAdmin: true},
}

// Quota bounds how much of a resource a tenant may consume per evaluation
// window; zero means unlimited.
type Quota struct {
	MaxQueriesPerWindow int
}

// Policy enforces RBAC (role -> resource allow/deny) plus a per-tenant
// quota on top of it. Quota accounting here is a simple in-memory counter
// reset by the caller (typically on the same cadence as the rate
// limiter's sliding window); the hard per-request throttle itself lives in
// pkg/cache.RateLimiter, which Policy does not duplicate.
type Policy struct {
	mu     sync.Mutex
	quotas map[string]Quota
	usage  map[string]int
}

// NewPolicy builds an empty Policy with no tenant quotas configured (quota
// enforcement is then a no-op; only role/resource checks apply).
func NewPolicy() *Policy {
	return &Policy{quotas: make(map[string]Quota), usage: make(map[string]int)}
}

// SetQuota configures tenant's quota for resource-bearing requests.
func (p *Policy) SetQuota(tenant string, q Quota) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotas[tenant] = q
}

// ResetUsage clears every tenant's usage counter. Nothing in this package
// calls it; the caller decides when a quota window ends.
func (p *Policy) ResetUsage() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.usage = make(map[string]int)
}

// Check enforces role->resource allow/deny and then the tenant quota, which
// counts every permitted request whatever its resource. It increments the
// tenant's usage counter on success.
func (p *Policy) Check(principal Principal, resource Resource) error {
	if !rolePermissions[principal.Role][resource] {
		return lakeerr.New(lakeerr.KindPolicy, "forbidden", "role not permitted for this resource").
			WithField("role")
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	quota, ok := p.quotas[principal.Tenant]
	if !ok || quota.MaxQueriesPerWindow <= 0 {
		p.usage[principal.Tenant]++
		return nil
	}
	if p.usage[principal.Tenant] >= quota.MaxQueriesPerWindow {
		return lakeerr.New(lakeerr.KindPolicy, "quota_exceeded", "tenant quota exceeded for this window")
	}
	p.usage[principal.Tenant]++
	return nil
}
