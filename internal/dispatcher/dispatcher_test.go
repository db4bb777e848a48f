// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/internal/discovery"
	"controlplane/internal/kernel"
	"controlplane/internal/memory"
	"controlplane/internal/operator"
	"controlplane/internal/policy"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *operator.Registry, *memory.Registry, *discovery.Engine) {
	t.Helper()
	pe := policy.NewEngine()
	enf := kernel.NewEnforcer(pe)
	ops := operator.NewRegistry(enf, nil)
	mem := memory.New(nil, enf)
	disc := discovery.NewEngine(enf)
	return New(mem, ops, disc), ops, mem, disc
}

func TestThink_QueryRoutesToMemoryAndDiscovery(t *testing.T) {
	d, _, mem, disc := newTestDispatcher(t)
	_, err := mem.Store(memory.TypeFact, map[string]interface{}{"text": "widgets are great"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	disc.RegisterSource(&discovery.Source{SourceID: "s1"})

	result, err := d.Think(context.Background(), Thought{Type: TypeQuery, Content: map[string]interface{}{"text": "widgets"}}, kernel.ActorContext{})
	require.NoError(t, err)
	out := result.(map[string]interface{})
	assert.Contains(t, out, "memories")
	assert.Contains(t, out, "capabilities")
}

func TestThink_CommandRoutesToOperatorInvoke(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	d, ops, _, _ := newTestDispatcher(t)
	sig := &operator.Signature{OperatorID: operator.OperatorID(srv.URL, "POST"), Type: operator.TypeCompute, EndpointURL: srv.URL, Method: "POST", RequestTemplate: map[string]interface{}{}}
	require.NoError(t, ops.Register(sig))

	result, err := d.Think(context.Background(), Thought{Type: TypeCommand, Content: map[string]interface{}{"operator_id": sig.OperatorID}}, kernel.ActorContext{})
	require.NoError(t, err)
	inv := result.(*operator.Invocation)
	assert.True(t, inv.Success)
}

func TestThink_CommandMissingOperatorIDFails(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	_, err := d.Think(context.Background(), Thought{Type: TypeCommand, Content: map[string]interface{}{}}, kernel.ActorContext{})
	assert.Error(t, err)
}

func TestThink_ObservationStoresMemoryAndMatchesPatterns(t *testing.T) {
	d, _, mem, _ := newTestDispatcher(t)
	mem.RecognizePattern("p1", map[string]interface{}{"kind": "alert"}, nil)

	result, err := d.Think(context.Background(), Thought{
		Type:    TypeObservation,
		Content: map[string]interface{}{"text": "cpu spike"},
		Context: map[string]interface{}{"kind": "alert"},
	}, kernel.ActorContext{})
	require.NoError(t, err)
	out := result.(map[string]interface{})
	assert.NotNil(t, out["memory"])
	matches := out["pattern_matches"].([]*memory.Pattern)
	assert.Len(t, matches, 1)
}

func TestThink_ReflectionAggregatesPriorThoughtTypes(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	_, err := d.Think(context.Background(), Thought{Type: TypeObservation, Content: map[string]interface{}{"text": "x"}}, kernel.ActorContext{})
	require.NoError(t, err)
	_, err = d.Think(context.Background(), Thought{Type: TypeObservation, Content: map[string]interface{}{"text": "y"}}, kernel.ActorContext{})
	require.NoError(t, err)

	result, err := d.Think(context.Background(), Thought{Type: TypeReflection}, kernel.ActorContext{})
	require.NoError(t, err)
	out := result.(map[string]interface{})
	counts := out["by_type"].(map[string]int)
	assert.Equal(t, 2, counts["observation"])
}

func TestThink_PlanningListsActiveGoalsAndHealthyCapabilities(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	d.CreateGoal("ship the feature", 1)

	result, err := d.Think(context.Background(), Thought{Type: TypePlanning}, kernel.ActorContext{})
	require.NoError(t, err)
	out := result.(map[string]interface{})
	goals := out["goals"].([]*Goal)
	require.Len(t, goals, 1)
	assert.Equal(t, "ship the feature", goals[0].Description)
}

func TestThink_LearningRegistersPatternAndMemory(t *testing.T) {
	d, _, mem, _ := newTestDispatcher(t)
	result, err := d.Think(context.Background(), Thought{
		Type: TypeLearning,
		Content: map[string]interface{}{
			"name":     "retry_on_timeout",
			"trigger":  map[string]interface{}{"error": "timeout"},
			"response": map[string]interface{}{"action": "retry"},
		},
	}, kernel.ActorContext{})
	require.NoError(t, err)
	pattern := result.(*memory.Pattern)
	assert.Equal(t, "retry_on_timeout", pattern.Name)
	assert.Equal(t, 1, mem.Stats().TotalPatterns)
}

func TestThink_UnknownTypeReturnsError(t *testing.T) {
	d, _, _, _ := newTestDispatcher(t)
	_, err := d.Think(context.Background(), Thought{Type: Type("nonsense")}, kernel.ActorContext{})
	assert.Error(t, err)
}

func TestThink_EveryProcessedThoughtStoredAsLowImportanceMemory(t *testing.T) {
	d, _, mem, _ := newTestDispatcher(t)
	before := mem.Stats().TotalMemories
	_, err := d.Think(context.Background(), Thought{Type: TypeReflection}, kernel.ActorContext{})
	require.NoError(t, err)
	assert.Equal(t, before+1, mem.Stats().TotalMemories)
}

func TestPromotionHook_RegistersOperatorFromDiscoveredCapability(t *testing.T) {
	d, ops, _, _ := newTestDispatcher(t)
	cap := discovery.Capability{
		Name: "search_products", CapabilityType: discovery.CapRESTAPI,
		Endpoint: "https://api.example.com/search", Method: "POST",
		Headers: map[string]string{"x-source": "s1", "x-discovery-method": "openapi"},
	}
	d.PromotionHook(cap)

	sig, ok := ops.Get(operator.OperatorID(cap.Endpoint, "POST"))
	require.True(t, ok)
	assert.Equal(t, operator.TypeSearch, sig.Type)
	assert.Equal(t, "s1", sig.Headers["x-source"])
}

func TestPromotionHook_MCPCapabilityUsesMCPMethodAndToolNameHeader(t *testing.T) {
	d, ops, _, _ := newTestDispatcher(t)
	cap := discovery.Capability{
		Name: "lookup_tool", CapabilityType: discovery.CapMCPTool,
		Endpoint: "https://mcp.example.com", Method: "POST",
		Headers: map[string]string{"x-source": "s1"},
	}
	d.PromotionHook(cap)

	sig, ok := ops.Get(operator.OperatorID(cap.Endpoint, "MCP"))
	require.True(t, ok)
	assert.Equal(t, "MCP", sig.Method)
	assert.Equal(t, "lookup_tool", sig.Headers["x-tool-name"])
}
