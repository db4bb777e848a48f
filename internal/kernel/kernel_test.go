// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/internal/policy"
)

func TestDefaultKernelPolicyAllowsByDefault(t *testing.T) {
	pe := policy.NewEngine()
	k := NewEnforcer(pe)

	d := k.EnforceOperatorInvoke("op1", "https://example.com/x", "POST", ActorContext{})
	assert.True(t, d.Allowed)
}

func TestInsecureTransportDenied(t *testing.T) {
	pe := policy.NewEngine()
	k := NewEnforcer(pe)

	d := k.EnforceOperatorInvoke("op1", "http://example.com/x", "POST", ActorContext{})
	require.False(t, d.Allowed)
	assert.Regexp(t, "(?i)insecure transport", d.Reason)
}

func TestLocalhostHTTPAllowed(t *testing.T) {
	pe := policy.NewEngine()
	k := NewEnforcer(pe)

	d := k.EnforceOperatorInvoke("op1", "http://localhost:8080/x", "POST", ActorContext{})
	assert.True(t, d.Allowed)
}

func TestKernelDenyListBlocksEndpointPrefix(t *testing.T) {
	pe := policy.NewEngine()
	k := NewEnforcer(pe)

	pe.PatchPolicy(DefaultKernelPolicy, func(p *policy.Policy) {
		p.DeniedEndpoints = []string{"https://blocked.example.com"}
	})

	d := k.EnforceOperatorInvoke("op1", "https://blocked.example.com/path", "GET", ActorContext{})
	require.False(t, d.Allowed)
	assert.Equal(t, DefaultKernelPolicy, d.PolicyID)
}

func TestBreakGlassRequiresBothFlagAndMaster(t *testing.T) {
	pe := policy.NewEngine()
	k := NewEnforcer(pe)
	pe.PatchPolicy(DefaultKernelPolicy, func(p *policy.Policy) {
		p.DeniedEndpoints = []string{"https://blocked.example.com"}
	})

	// flag alone, non-master actor policy: must not bypass.
	d := k.EnforceOperatorInvoke("op1", "https://blocked.example.com/path", "GET",
		ActorContext{KernelBypass: true, ActorPolicyID: policy.PolicyUser})
	assert.False(t, d.Allowed)

	// flag + master actor policy: bypasses.
	d = k.EnforceOperatorInvoke("op1", "https://blocked.example.com/path", "GET",
		ActorContext{KernelBypass: true, ActorPolicyID: policy.PolicyMaster})
	assert.True(t, d.Allowed)
}

func TestEnforceMemoryStoreUsesMemoryNamespace(t *testing.T) {
	pe := policy.NewEngine()
	k := NewEnforcer(pe)
	d := k.EnforceMemoryStore("general", ActorContext{})
	assert.True(t, d.Allowed)
}

func TestEnforceDiscoveryRegisterInsecure(t *testing.T) {
	pe := policy.NewEngine()
	k := NewEnforcer(pe)
	d := k.EnforceDiscoveryRegister("rest_api", "http://example.com/x", "GET", ActorContext{})
	assert.False(t, d.Allowed)
}
