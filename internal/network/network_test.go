// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
package network

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/internal/kernel"
	"controlplane/internal/operator"
)

type stubInvoker struct {
	calls int
	want  *operator.Invocation
}

func (s *stubInvoker) Invoke(ctx context.Context, operatorID string, inputs map[string]interface{}, timeout time.Duration, actorCtx kernel.ActorContext) *operator.Invocation {
	s.calls++
	if s.want != nil {
		return s.want
	}
	return &operator.Invocation{OperatorID: operatorID, Success: true, Outputs: map[string]interface{}{"ok": true}}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestConnectSlotsIsSymmetric(t *testing.T) {
	n := New(nil)
	a := n.CreateSlot("generic", nil, nil)
	b := n.CreateSlot("generic", nil, nil)
	require.NoError(t, n.ConnectSlots(a.SlotID, b.SlotID))

	_, aHasB := a.Connections[b.SlotID]
	_, bHasA := b.Connections[a.SlotID]
	assert.True(t, aHasB)
	assert.True(t, bHasA)
}

func TestSendSignal_DirectDeliveryEnqueuesAtTarget(t *testing.T) {
	n := New(nil)
	a := n.CreateSlot("generic", nil, nil)
	b := n.CreateSlot("generic", nil, nil)

	n.SendSignal(&Signal{SignalID: "s1", Type: SignalQuery, SourceSlot: a.SlotID, TargetSlot: b.SlotID, Payload: map[string]interface{}{}, TTL: 5})
	assert.Len(t, b.SignalQueue, 1)
	assert.Empty(t, a.SignalQueue)
}

func TestSendSignal_BroadcastDecrementsTTLAndAppendsPath(t *testing.T) {
	n := New(nil)
	a := n.CreateSlot("generic", nil, nil)
	b := n.CreateSlot("generic", nil, nil)
	require.NoError(t, n.ConnectSlots(a.SlotID, b.SlotID))

	n.SendSignal(&Signal{SignalID: "bc1", Type: SignalBroadcast, SourceSlot: a.SlotID, Payload: map[string]interface{}{}, TTL: 2})

	require.Len(t, b.SignalQueue, 1)
	clone := b.SignalQueue[0]
	assert.Equal(t, 1, clone.TTL)
	assert.Equal(t, []string{a.SlotID}, clone.Path)
}

func TestSendSignal_TTLExhaustedDropsBroadcastClone(t *testing.T) {
	n := New(nil)
	a := n.CreateSlot("generic", nil, nil)
	b := n.CreateSlot("generic", nil, nil)
	require.NoError(t, n.ConnectSlots(a.SlotID, b.SlotID))

	n.SendSignal(&Signal{SignalID: "bc1", Type: SignalBroadcast, SourceSlot: a.SlotID, Payload: map[string]interface{}{}, TTL: 1})
	assert.Empty(t, b.SignalQueue, "ttl-1 decrements to 0 and must be dropped, not enqueued")
}

func TestSchedulerTick_DequeuesAndInvokesBinding(t *testing.T) {
	inv := &stubInvoker{}
	n := New(inv)
	slot := n.CreateSlot("generic", nil, nil)

	_, err := n.AddBinding(slot.SlotID, TriggerPattern{SignalTypes: []SignalType{SignalQuery}}, "invoke_operator", map[string]interface{}{"operator_id": "opr_x"})
	require.NoError(t, err)

	n.SendSignal(&Signal{SignalID: "s1", Type: SignalQuery, SourceSlot: slot.SlotID, TargetSlot: slot.SlotID, Payload: map[string]interface{}{"q": "hi"}, TTL: 5})

	n.Start()
	defer n.Stop()

	waitFor(t, time.Second, func() bool { return inv.calls > 0 })
	assert.Equal(t, 1, inv.calls)
}

func TestBinding_MaxInvocationsEnforced(t *testing.T) {
	b := &ReactiveBinding{MaxInvocations: 1, InvocationCount: 1}
	assert.False(t, b.CanInvoke(time.Now()))
}

func TestBinding_ThrottleEnforced(t *testing.T) {
	b := &ReactiveBinding{MaxInvocations: -1, ThrottleMS: 1000, LastInvocation: time.Now()}
	assert.False(t, b.CanInvoke(time.Now()))
	assert.True(t, b.CanInvoke(time.Now().Add(2*time.Second)))
}

func TestTransformBinding_AppliesRegisteredTransform(t *testing.T) {
	n := New(nil)
	n.RegisterTransform("upper_q", func(p map[string]interface{}) map[string]interface{} {
		out := copyPayload(p)
		if s, ok := out["q"].(string); ok {
			out["q"] = s + "_transformed"
		}
		return out
	})

	slot := n.CreateSlot("generic", nil, nil)
	_, err := n.AddBinding(slot.SlotID, TriggerPattern{}, "transform", map[string]interface{}{"transform": "upper_q"})
	require.NoError(t, err)

	signal := &Signal{SignalID: "s1", Type: SignalQuery, SourceSlot: slot.SlotID, TargetSlot: slot.SlotID, Payload: map[string]interface{}{"q": "hi"}, TTL: 5}
	n.SendSignal(signal)

	n.tick()
	assert.Equal(t, "hi_transformed", signal.Payload["q"])
}

func TestHealthCheck_ResetsErrorAfterTimeout(t *testing.T) {
	n := New(nil)
	slot := n.CreateSlot("generic", nil, nil)
	slot.State = StateError
	slot.LastActivity = time.Now().Add(-2 * time.Minute)

	n.healthCheck()
	assert.Equal(t, StateListening, slot.State)
	assert.Equal(t, int64(0), slot.ErrorCount)
}

func TestHealthCheck_IdlesStaleListeningSlot(t *testing.T) {
	n := New(nil)
	slot := n.CreateSlot("generic", nil, nil)
	slot.State = StateListening
	slot.LastActivity = time.Now().Add(-6 * time.Minute)

	n.healthCheck()
	assert.Equal(t, StateIdle, slot.State)
}

func TestGetState_CountsConnectionsOnce(t *testing.T) {
	n := New(nil)
	a := n.CreateSlot("generic", nil, nil)
	b := n.CreateSlot("generic", nil, nil)
	require.NoError(t, n.ConnectSlots(a.SlotID, b.SlotID))

	state := n.GetState()
	assert.Equal(t, 2, state.Slots)
	assert.Equal(t, 1, state.Connections)
}
