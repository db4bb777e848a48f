// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
package discovery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/internal/kernel"
	"controlplane/internal/policy"
)

func TestDiscoverFromSource_ProbeRegistersRespondingPaths(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path == "/health" {
			w.WriteHeader(200)
			return
		}
		w.WriteHeader(404)
	}))
	defer srv.Close()

	pe := policy.NewEngine()
	enf := kernel.NewEnforcer(pe)
	e := NewEngine(enf)
	e.RegisterSource(&Source{SourceID: "src1", BaseURL: srv.URL, DiscoveryMethod: MethodProbe, Active: true})

	n, err := e.DiscoverFromSource(context.Background(), "src1", kernel.ActorContext{})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	caps := e.SearchCapabilities("", "")
	require.Len(t, caps, 1)
	assert.Contains(t, caps[0].Endpoint, "/health")
}

func TestDiscoverFromSource_KernelDeniesInsecureEndpoint(t *testing.T) {
	pe := policy.NewEngine()
	enf := kernel.NewEnforcer(pe)
	e := NewEngine(enf)

	// A manifest listing an insecure http:// endpoint to a non-local
	// host must be denied by kernel enforcement before it is stored.
	manifest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"capabilities":[{"name":"risky","type":"rest_api","endpoint":"http://93.184.216.34/do","method":"POST"}]}`))
	}))
	defer manifest.Close()

	e.RegisterSource(&Source{SourceID: "src1", BaseURL: manifest.URL, DiscoveryMethod: MethodManifest, Active: true})

	n, err := e.DiscoverFromSource(context.Background(), "src1", kernel.ActorContext{})
	require.NoError(t, err)
	assert.Equal(t, 0, n, "insecure-transport capability must be denied, not stored")
	assert.Empty(t, e.SearchCapabilities("", ""))
}

func TestDiscoverFromSource_PromotionHookFiresOnStore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	pe := policy.NewEngine()
	enf := kernel.NewEnforcer(pe)
	e := NewEngine(enf)
	e.RegisterSource(&Source{SourceID: "src1", BaseURL: srv.URL, DiscoveryMethod: MethodProbe, Active: true})

	var promoted []Capability
	e.OnDiscovery(func(c Capability) { promoted = append(promoted, c) })

	n, err := e.DiscoverFromSource(context.Background(), "src1", kernel.ActorContext{})
	require.NoError(t, err)
	assert.Len(t, promoted, n)
}

func TestDiscoverOpenAPI_BuildsCapabilityPerPathAndVerb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"paths": {
				"/widgets": {
					"get": {"operationId": "listWidgets"},
					"post": {"requestBody": {"content": {"application/json": {"schema": {"type": "object"}}}}}
				}
			}
		}`))
	}))
	defer srv.Close()

	caps, err := discoverOpenAPI(context.Background(), srv.Client(), &Source{SourceID: "s1", BaseURL: srv.URL})
	require.NoError(t, err)
	require.Len(t, caps, 2)

	names := map[string]bool{}
	for _, c := range caps {
		names[c.Name] = true
	}
	assert.True(t, names["listWidgets"])
	assert.True(t, names["POST_/widgets"])
}

func TestHealthCheck_MarksUnreachableEndpointUnhealthy(t *testing.T) {
	pe := policy.NewEngine()
	enf := kernel.NewEnforcer(pe)
	e := NewEngine(enf)
	e.capabilities["cap_1"] = &Capability{CapabilityID: "cap_1", Endpoint: "http://127.0.0.1:1", Method: "GET"}

	_ = e.HealthCheck(context.Background(), "cap_1")
	c, _ := e.GetCapability("cap_1")
	assert.False(t, c.IsHealthy)
	assert.Equal(t, int64(1), c.FailureCount)
}

func TestSearchCapabilities_FiltersByTypeAndQuery(t *testing.T) {
	pe := policy.NewEngine()
	enf := kernel.NewEnforcer(pe)
	e := NewEngine(enf)
	e.capabilities["a"] = &Capability{CapabilityID: "a", Name: "listWidgets", CapabilityType: CapRESTAPI}
	e.capabilities["b"] = &Capability{CapabilityID: "b", Name: "getGadget", CapabilityType: CapGraphQL}

	rest := e.SearchCapabilities("", CapRESTAPI)
	require.Len(t, rest, 1)
	assert.Equal(t, "listWidgets", rest[0].Name)

	byQuery := e.SearchCapabilities("widget", "")
	require.Len(t, byQuery, 1)
}
