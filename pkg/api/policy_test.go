package api

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicyAllowsReaderToQuery(t *testing.T) {
	p := NewPolicy()
	err := p.Check(Principal{Tenant: "acme", Role: RoleReader}, ResourceQuery)
	assert.NoError(t, err)
}

func TestPolicyDeniesReaderAdmin(t *testing.T) {
	p := NewPolicy()
	err := p.Check(Principal{Tenant: "acme", Role: RoleReader}, ResourceAdmin)
	assert.Error(t, err)
}

func TestPolicyAllowsAdminEverything(t *testing.T) {
	p := NewPolicy()
	assert.NoError(t, p.Check(Principal{Tenant: "acme", Role: RoleAdmin}, ResourceQuery))
	assert.NoError(t, p.Check(Principal{Tenant: "acme", Role: RoleAdmin}, ResourceAdmin))
}

func TestPolicyEnforcesQuota(t *testing.T) {
	p := NewPolicy()
	p.SetQuota("acme", Quota{MaxQueriesPerWindow: 2})
	principal := Principal{Tenant: "acme", Role: RoleReader}

	assert.NoError(t, p.Check(principal, ResourceQuery))
	assert.NoError(t, p.Check(principal, ResourceQuery))
	assert.Error(t, p.Check(principal, ResourceQuery))
}

func TestPolicyResetUsage(t *testing.T) {
	p := NewPolicy()
	p.SetQuota("acme", Quota{MaxQueriesPerWindow: 1})
	principal := Principal{Tenant: "acme", Role: RoleReader}

	assert.NoError(t, p.Check(principal, ResourceQuery))
	assert.Error(t, p.Check(principal, ResourceQuery))

	p.ResetUsage()
	assert.NoError(t, p.Check(principal, ResourceQuery))
}

func TestPolicyUnlimitedWithoutQuota(t *testing.T) {
	p := NewPolicy()
	principal := Principal{Tenant: "acme", Role: RoleReader}
	for i := 0; i < 100; i++ {
		assert.NoError(t, p.Check(principal, ResourceQuery))
	}
}
