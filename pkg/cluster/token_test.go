package cluster

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateProducesDistinctTokens(t *testing.T) {
	tm := NewTokenManager()
	a, err := tm.Generate(time.Minute)
	require.NoError(t, err)
	b, err := tm.Generate(time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, a.Token, b.Token)
}

func TestValidateAcceptsFreshToken(t *testing.T) {
	tm := NewTokenManager()
	jt, err := tm.Generate(time.Minute)
	require.NoError(t, err)
	assert.NoError(t, tm.Validate(jt.Token))
}

func TestValidateRejectsUnknownToken(t *testing.T) {
	tm := NewTokenManager()
	assert.Error(t, tm.Validate("does-not-exist"))
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	tm := NewTokenManager()
	jt, err := tm.Generate(-time.Second)
	require.NoError(t, err)
	assert.Error(t, tm.Validate(jt.Token))
}

func TestRevokeInvalidatesToken(t *testing.T) {
	tm := NewTokenManager()
	jt, err := tm.Generate(time.Minute)
	require.NoError(t, err)
	tm.Revoke(jt.Token)
	assert.Error(t, tm.Validate(jt.Token))
}

func TestCleanupExpiredRemovesOnlyExpiredTokens(t *testing.T) {
	tm := NewTokenManager()
	expired, err := tm.Generate(-time.Second)
	require.NoError(t, err)
	fresh, err := tm.Generate(time.Minute)
	require.NoError(t, err)

	tm.CleanupExpired()

	assert.Error(t, tm.Validate(expired.Token))
	assert.NoError(t, tm.Validate(fresh.Token))
}
