// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/internal/policy"
)

func alwaysExists(string) bool { return true }

func TestCreateAndVerifyKey(t *testing.T) {
	km := NewKeyManager(alwaysExists)
	key, raw, err := km.CreateKey("owner1", policy.PolicyUser, ScopeUser, "", 0, "", "")
	require.NoError(t, err)
	require.NotEmpty(t, raw)

	verified, reason := km.VerifyKey(raw)
	require.Equal(t, "OK", reason)
	assert.Equal(t, key.KeyID, verified.KeyID)
}

func TestRevokedKeyNeverReverifies(t *testing.T) {
	km := NewKeyManager(alwaysExists)
	key, raw, err := km.CreateKey("owner1", policy.PolicyUser, ScopeUser, "", 0, "", "")
	require.NoError(t, err)

	require.NoError(t, km.RevokeKey(key.KeyID))
	_, reason := km.VerifyKey(raw)
	assert.NotEqual(t, "OK", reason)
}

func TestRotateKeyProducesSuccessorAndRevokesPredecessor(t *testing.T) {
	km := NewKeyManager(alwaysExists)
	old, oldRaw, err := km.CreateKey("owner1", policy.PolicyUser, ScopeUser, "", 0, "", "")
	require.NoError(t, err)

	next, nextRaw, err := km.RotateKey(old.KeyID)
	require.NoError(t, err)

	assert.Equal(t, old.PolicyID, next.PolicyID)
	assert.Equal(t, old.Scope, next.Scope)

	_, reason := km.VerifyKey(oldRaw)
	assert.NotEqual(t, "OK", reason, "predecessor secret must not re-verify after rotation")

	verifiedNext, reason := km.VerifyKey(nextRaw)
	require.Equal(t, "OK", reason)
	assert.Equal(t, next.KeyID, verifiedNext.KeyID)
}

func TestReactivateRevokedKeyFails(t *testing.T) {
	km := NewKeyManager(alwaysExists)
	key, _, err := km.CreateKey("owner1", policy.PolicyUser, ScopeUser, "", 0, "", "")
	require.NoError(t, err)
	require.NoError(t, km.RevokeKey(key.KeyID))
	assert.Error(t, km.ReactivateKey(key.KeyID))
}

func TestSessionCreateAndExpire(t *testing.T) {
	sm := NewSessionManager(nil)
	s := sm.CreateSession("key_1", "owner_1", time.Millisecond, nil)
	assert.NotEmpty(t, s.SessionID)

	time.Sleep(5 * time.Millisecond)
	_, ok := sm.GetSession(s.SessionID)
	assert.False(t, ok)
}

func TestTokenRoundTrip(t *testing.T) {
	secret := []byte("a-very-long-test-secret-of-32-bytes!!")
	tok := NewAuthToken("key_1", "owner_1", policy.PolicyUser, ScopeUser, time.Hour)
	signed, err := tok.Encode(secret)
	require.NoError(t, err)

	decoded, err := DecodeAuthToken(signed, secret)
	require.NoError(t, err)
	assert.Equal(t, tok.TokenID, decoded.TokenID)
	assert.Equal(t, tok.KeyID, decoded.KeyID)
	assert.False(t, decoded.IsExpired())
}

func TestExpiredTokenDecodeFails(t *testing.T) {
	secret := []byte("a-very-long-test-secret-of-32-bytes!!")
	tok := NewAuthToken("key_1", "owner_1", policy.PolicyUser, ScopeUser, -time.Hour)
	signed, err := tok.Encode(secret)
	require.NoError(t, err)

	_, err = DecodeAuthToken(signed, secret)
	assert.Error(t, err)
}

func TestGateway_APIKeyWinsOverBearer(t *testing.T) {
	pe := policy.NewEngine()
	km := NewKeyManager(func(id string) bool { _, ok := pe.GetPolicy(id); return ok })
	gw := NewGateway(km, pe, []byte("a-very-long-test-secret-of-32-bytes!!"))

	key, raw, err := km.CreateKey("owner1", policy.PolicyUser, ScopeUser, "", 0, "", "")
	require.NoError(t, err)

	ctx, err := gw.Authenticate(raw, "garbage-bearer-token")
	require.NoError(t, err)
	assert.Equal(t, key.KeyID, ctx.KeyID)
}

func TestGateway_BearerRevalidatesBackingKey(t *testing.T) {
	pe := policy.NewEngine()
	km := NewKeyManager(func(id string) bool { _, ok := pe.GetPolicy(id); return ok })
	gw := NewGateway(km, pe, []byte("a-very-long-test-secret-of-32-bytes!!"))

	key, _, err := km.CreateKey("owner1", policy.PolicyUser, ScopeUser, "", 0, "", "")
	require.NoError(t, err)
	ctx := &AuthContext{KeyID: key.KeyID, OwnerID: key.OwnerID, PolicyID: key.PolicyID, Scope: key.Scope}
	token, _, err := gw.CreateToken(ctx)
	require.NoError(t, err)

	require.NoError(t, km.RevokeKey(key.KeyID))

	_, err = gw.Authenticate("", token)
	assert.Error(t, err, "bearer token must be rejected once its backing key is revoked")
}

func TestRateLimitFirstOverLimitRejectedWithoutFurtherIncrement(t *testing.T) {
	pe := policy.NewEngine()
	km := NewKeyManager(alwaysExists)
	gw := NewGateway(km, pe, []byte("secret"))
	ctx := &AuthContext{KeyID: "key_x"}
	limits := policy.RateLimit{PerMinute: 2}

	ok1, _ := gw.CheckRateLimit(ctx, limits)
	ok2, _ := gw.CheckRateLimit(ctx, limits)
	ok3, reason := gw.CheckRateLimit(ctx, limits)

	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
	assert.Contains(t, reason, "rate limit")
}
