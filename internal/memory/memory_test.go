// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/internal/kernel"
	"controlplane/internal/policy"
)

func newTestRegistry(t *testing.T) (*Registry, *policy.Engine) {
	pe := policy.NewEngine()
	enf := kernel.NewEnforcer(pe)
	return New(nil, enf), pe
}

func TestStore_IdenticalContentDedupsToSameID(t *testing.T) {
	r, _ := newTestRegistry(t)
	content := map[string]interface{}{"text": "the sky is blue", "source": "obs1"}

	m1, err := r.Store(TypeFact, content, []string{"weather"}, 0.4, kernel.ActorContext{})
	require.NoError(t, err)
	m2, err := r.Store(TypeFact, content, []string{"weather"}, 0.9, kernel.ActorContext{})
	require.NoError(t, err)

	assert.Equal(t, m1.MemoryID, m2.MemoryID)
	assert.Equal(t, 0.4, m2.Importance, "second store must return the existing record, not overwrite it")
	assert.Equal(t, 1, r.Stats().TotalMemories)
}

func TestStore_DifferentKeyOrderProducesSameID(t *testing.T) {
	r, _ := newTestRegistry(t)
	a := map[string]interface{}{"x": 1, "y": 2}
	b := map[string]interface{}{"y": 2, "x": 1}

	ma, err := r.Store(TypeFact, a, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	mb, err := r.Store(TypeFact, b, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	assert.Equal(t, ma.MemoryID, mb.MemoryID)
}

func TestStore_DifferentContentProducesDifferentID(t *testing.T) {
	r, _ := newTestRegistry(t)
	m1, err := r.Store(TypeFact, map[string]interface{}{"text": "a"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	m2, err := r.Store(TypeFact, map[string]interface{}{"text": "b"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	assert.NotEqual(t, m1.MemoryID, m2.MemoryID)
}

func TestStore_KernelDenialWritesNothing(t *testing.T) {
	r, pe := newTestRegistry(t)
	pe.Seed(&policy.Policy{
		PolicyID: "kpol_deny_fact", IsActive: true,
		Permissions: []policy.Permission{{ResourceType: policy.ResourceSystem, Level: policy.LevelNone}},
	})

	_, err := r.Store(TypeFact, map[string]interface{}{"text": "denied"}, nil, 0.5, kernel.ActorContext{})
	assert.Error(t, err)
	assert.Equal(t, 0, r.Stats().TotalMemories)
}

func TestRecallByID_BumpsAccessCountAndImportance(t *testing.T) {
	r, _ := newTestRegistry(t)
	m, err := r.Store(TypeFact, map[string]interface{}{"text": "hi"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	got, ok := r.RecallByID(m.MemoryID)
	require.True(t, ok)
	assert.Equal(t, int64(1), got.AccessCount)
	assert.InDelta(t, 0.55, got.Importance, 1e-9)
}

func TestRecallByTags_IntersectionSemantics(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Store(TypeFact, map[string]interface{}{"text": "one"}, []string{"a", "b"}, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	_, err = r.Store(TypeFact, map[string]interface{}{"text": "two"}, []string{"a"}, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	out := r.RecallByTags([]string{"a", "b"}, "", 0)
	require.Len(t, out, 1)
	assert.Equal(t, "one", out[0].Content["text"])
}

func TestRecallByTags_FiltersByType(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Store(TypeFact, map[string]interface{}{"text": "fact1"}, []string{"x"}, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	_, err = r.Store(TypeEvent, map[string]interface{}{"text": "event1"}, []string{"x"}, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	out := r.RecallByTags([]string{"x"}, TypeEvent, 0)
	require.Len(t, out, 1)
	assert.Equal(t, TypeEvent, out[0].Type)
}

func TestRecallByQuery_NoEmbedderFallsBackToImportanceRecency(t *testing.T) {
	r, _ := newTestRegistry(t)
	_, err := r.Store(TypeFact, map[string]interface{}{"text": "low"}, nil, 0.1, kernel.ActorContext{})
	require.NoError(t, err)
	_, err = r.Store(TypeFact, map[string]interface{}{"text": "high"}, nil, 0.9, kernel.ActorContext{})
	require.NoError(t, err)

	out := r.RecallByQuery("anything", 0)
	require.Len(t, out, 2)
	assert.Equal(t, "high", out[0].Content["text"])
}

func TestRecallByQuery_EmbedderRanksByCosineSimilarity(t *testing.T) {
	embedder := func(q string) []float64 {
		switch q {
		case "target":
			return []float64{1, 0}
		case "near":
			return []float64{0.9, 0.1}
		case "far":
			return []float64{0, 1}
		default:
			return []float64{1, 0}
		}
	}
	r := New(embedder, nil)
	_, err := r.Store(TypeFact, map[string]interface{}{"text": "far"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	_, err = r.Store(TypeFact, map[string]interface{}{"text": "near"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	out := r.RecallByQuery("target", 0)
	require.Len(t, out, 2)
	assert.Equal(t, "near", out[0].Content["text"])
}

func TestApplyDecay_SubtractsRateTimesDeltaFlooredAtZero(t *testing.T) {
	r := New(nil, nil)
	m, err := r.Store(TypeFact, map[string]interface{}{"text": "x"}, nil, 0.05, kernel.ActorContext{})
	require.NoError(t, err)

	r.decayRate = 0.1
	r.ApplyDecay(1 * time.Hour)
	assert.Equal(t, 0.0, m.Importance)
}

func TestForget_BulkRemovesBelowImportanceThreshold(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Store(TypeFact, map[string]interface{}{"text": "weak"}, []string{"t"}, 0.1, kernel.ActorContext{})
	require.NoError(t, err)
	_, err = r.Store(TypeFact, map[string]interface{}{"text": "strong"}, []string{"t"}, 0.9, kernel.ActorContext{})
	require.NoError(t, err)

	n := r.Forget("", 0.5)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, r.Stats().TotalMemories)

	out := r.RecallByTags([]string{"t"}, "", 0)
	require.Len(t, out, 1)
	assert.Equal(t, "strong", out[0].Content["text"])
}

func TestForget_ByIDRemovesFromIndices(t *testing.T) {
	r := New(nil, nil)
	m, err := r.Store(TypeFact, map[string]interface{}{"text": "x"}, []string{"tag1"}, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	n := r.Forget(m.MemoryID, 0)
	assert.Equal(t, 1, n)
	assert.Empty(t, r.RecallByTags([]string{"tag1"}, "", 0))
}

func TestLink_IsSymmetric(t *testing.T) {
	r := New(nil, nil)
	m1, err := r.Store(TypeFact, map[string]interface{}{"text": "a"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	m2, err := r.Store(TypeFact, map[string]interface{}{"text": "b"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	require.NoError(t, r.Link(m1.MemoryID, m2.MemoryID))
	assert.Contains(t, m1.LinkedIDs, m2.MemoryID)
	assert.Contains(t, m2.LinkedIDs, m1.MemoryID)
}

func TestLink_UnknownIDFails(t *testing.T) {
	r := New(nil, nil)
	m1, err := r.Store(TypeFact, map[string]interface{}{"text": "a"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	assert.Error(t, r.Link(m1.MemoryID, "mem_does_not_exist"))
}

func TestCompress_LinksSummaryToEverySource(t *testing.T) {
	r := New(nil, nil)
	m1, err := r.Store(TypeFact, map[string]interface{}{"text": "a"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	m2, err := r.Store(TypeFact, map[string]interface{}{"text": "b"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	summary, err := r.Compress([]string{m1.MemoryID, m2.MemoryID}, "a and b happened", kernel.ActorContext{})
	require.NoError(t, err)
	assert.Contains(t, summary.LinkedIDs, m1.MemoryID)
	assert.Contains(t, summary.LinkedIDs, m2.MemoryID)
	assert.Equal(t, TypeSummary, summary.Type)
}

func TestPatternMatches_RegexAndEqualityConditions(t *testing.T) {
	r := New(nil, nil)
	p := r.RecognizePattern("greeting", map[string]interface{}{
		"intent": "chat",
		"text":   map[string]interface{}{"$regex": `^hello`},
	}, map[string]interface{}{"reply": "hi there"})

	matches := r.MatchPatterns(map[string]interface{}{"intent": "chat", "text": "hello world"})
	require.Len(t, matches, 1)
	assert.Equal(t, p.PatternID, matches[0].PatternID)
	assert.Equal(t, int64(1), matches[0].MatchCount)

	none := r.MatchPatterns(map[string]interface{}{"intent": "chat", "text": "goodbye world"})
	assert.Empty(t, none)
}

func TestPatternMatches_MissingKeyNeverMatches(t *testing.T) {
	r := New(nil, nil)
	r.RecognizePattern("needs_field", map[string]interface{}{"foo": "bar"}, nil)

	matches := r.MatchPatterns(map[string]interface{}{"other": "value"})
	assert.Empty(t, matches)
}

func TestStats_CountsByType(t *testing.T) {
	r := New(nil, nil)
	_, err := r.Store(TypeFact, map[string]interface{}{"text": "a"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)
	_, err = r.Store(TypeEvent, map[string]interface{}{"text": "b"}, nil, 0.5, kernel.ActorContext{})
	require.NoError(t, err)

	s := r.Stats()
	assert.Equal(t, 2, s.TotalMemories)
	assert.Equal(t, 1, s.ByType["fact"])
	assert.Equal(t, 1, s.ByType["event"])
}
