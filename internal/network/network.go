// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package network

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"controlplane/internal/kernel"
	"controlplane/internal/obs"
	"controlplane/internal/operator"
)

const (
	schedulerTick  = 10 * time.Millisecond
	healthTick     = 10 * time.Second
	errorResetAge  = 60 * time.Second
	idleTimeoutAge = 300 * time.Second
)

// TransformFunc mutates a signal payload. Transforms are looked up by
// registered name from a binding's action_config, since Go bindings
// carry no callables across the wire the way the source's in-process
// closures did.
type TransformFunc func(map[string]interface{}) map[string]interface{}

// Invoker is the operator-invocation surface the network needs.
type Invoker interface {
	Invoke(ctx context.Context, operatorID string, inputs map[string]interface{}, timeout time.Duration, actorCtx kernel.ActorContext) *operator.Invocation
}

// Network is the substrate of cooperatively scheduled reactive slots
// (spec.md §4.5).
type Network struct {
	mu    sync.Mutex
	slots map[string]*ReactiveSlot

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	registry   Invoker
	transforms map[string]TransformFunc
	log        *obs.Logger
}

// State is the serializable snapshot returned by GetState.
type State struct {
	Running     bool             `json:"running"`
	Slots       int              `json:"slots"`
	Connections int              `json:"connections"`
	States      map[string]int   `json:"states"`
	SlotDetails []Snapshot       `json:"slot_details,omitempty"`
}

// New constructs a Network bound to an operator invoker.
func New(registry Invoker) *Network {
	return &Network{
		slots:      make(map[string]*ReactiveSlot),
		registry:   registry,
		transforms: make(map[string]TransformFunc),
		log:        obs.New("network"),
	}
}

// RegisterTransform installs a named payload transform usable by
// "transform" bindings.
func (n *Network) RegisterTransform(name string, fn TransformFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.transforms[name] = fn
}

// Start launches the scheduler and health-check loops. Calling Start
// twice is a no-op.
func (n *Network) Start() {
	n.mu.Lock()
	if n.running {
		n.mu.Unlock()
		return
	}
	n.running = true
	n.stopCh = make(chan struct{})
	n.mu.Unlock()

	n.wg.Add(2)
	go n.signalLoop()
	go n.healthLoop()
	n.log.Info("", "", "network started", nil)
}

// Stop halts both loops and blocks until they exit.
func (n *Network) Stop() {
	n.mu.Lock()
	if !n.running {
		n.mu.Unlock()
		return
	}
	n.running = false
	close(n.stopCh)
	n.mu.Unlock()

	n.wg.Wait()
	n.log.Info("", "", "network stopped", nil)
}

// CreateSlot adds a new slot in the LISTENING state.
func (n *Network) CreateSlot(slotType string, operatorIDs []string, data map[string]interface{}) *ReactiveSlot {
	if data == nil {
		data = make(map[string]interface{})
	}
	slot := &ReactiveSlot{
		SlotID:      "slot_" + uuid.NewString()[:12],
		SlotType:    slotType,
		State:       StateListening,
		Data:        data,
		OperatorIDs: append([]string(nil), operatorIDs...),
		Connections: make(map[string]struct{}),
		CreatedAt:   time.Now(),
		LastActivity: time.Now(),
	}

	n.mu.Lock()
	n.slots[slot.SlotID] = slot
	n.mu.Unlock()

	n.log.Info("", "", "slot created", map[string]interface{}{"slot_id": slot.SlotID, "slot_type": slotType})
	return slot
}

// ConnectSlots creates a symmetric connection between two slots.
func (n *Network) ConnectSlots(a, b string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	sa, ok := n.slots[a]
	if !ok {
		return fmt.Errorf("slot not found: %s", a)
	}
	sb, ok := n.slots[b]
	if !ok {
		return fmt.Errorf("slot not found: %s", b)
	}
	sa.Connections[b] = struct{}{}
	sb.Connections[a] = struct{}{}
	return nil
}

// AddBinding attaches a reactive binding to a slot.
func (n *Network) AddBinding(slotID string, trigger TriggerPattern, actionType string, actionConfig map[string]interface{}) (*ReactiveBinding, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	slot, ok := n.slots[slotID]
	if !ok {
		return nil, fmt.Errorf("slot not found: %s", slotID)
	}

	binding := &ReactiveBinding{
		BindingID:      "bind_" + uuid.NewString()[:8],
		TriggerPattern: trigger,
		ActionType:     actionType,
		ActionConfig:   actionConfig,
		MaxInvocations: -1,
	}
	slot.Bindings = append(slot.Bindings, binding)
	return binding, nil
}

// SendSignal delivers a signal directly (target_slot set) or
// broadcasts it to source_slot's neighbors (target_slot empty).
// Broadcast clones decrement TTL and append to path; a clone with
// TTL <= 0 is dropped without being enqueued.
func (n *Network) SendSignal(signal *Signal) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if signal.TargetSlot != "" {
		if target, ok := n.slots[signal.TargetSlot]; ok {
			target.SignalQueue = append(target.SignalQueue, signal)
		}
		return
	}

	source, ok := n.slots[signal.SourceSlot]
	if !ok {
		return
	}
	for neighbor := range source.Connections {
		target, ok := n.slots[neighbor]
		if !ok {
			continue
		}
		ttl := signal.TTL - 1
		if ttl <= 0 {
			continue
		}
		clone := &Signal{
			SignalID:   signal.SignalID,
			Type:       signal.Type,
			SourceSlot: signal.SourceSlot,
			TargetSlot: neighbor,
			Payload:    copyPayload(signal.Payload),
			Timestamp:  signal.Timestamp,
			TTL:        ttl,
			Path:       append(append([]string(nil), signal.Path...), signal.SourceSlot),
		}
		target.SignalQueue = append(target.SignalQueue, clone)
	}
}

func copyPayload(p map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// InvokeOperator runs an operator from a slot's context, tracking the
// slot's EXECUTING/ERROR transitions around the call.
func (n *Network) InvokeOperator(ctx context.Context, slotID, operatorID string, inputs map[string]interface{}) map[string]interface{} {
	n.mu.Lock()
	slot, ok := n.slots[slotID]
	if !ok {
		n.mu.Unlock()
		return map[string]interface{}{"success": false, "error": "Slot not found"}
	}
	found := false
	for _, id := range slot.OperatorIDs {
		if id == operatorID {
			found = true
			break
		}
	}
	if !found {
		slot.OperatorIDs = append(slot.OperatorIDs, operatorID)
	}
	slot.State = StateExecuting
	slot.LastActivity = time.Now()
	n.mu.Unlock()

	if n.registry == nil {
		return map[string]interface{}{"success": false, "error": "no operator registry bound"}
	}

	inv := n.registry.Invoke(ctx, operatorID, inputs, 30*time.Second, kernel.ActorContext{})

	n.mu.Lock()
	if inv.Success {
		slot.State = StateListening
	} else {
		slot.State = StateError
		slot.ErrorCount++
	}
	n.mu.Unlock()

	return map[string]interface{}{
		"success": inv.Success, "outputs": inv.Outputs,
		"latency_ms": inv.LatencyMS, "error": inv.Error,
	}
}

// ListSlots returns a snapshot of every slot, for API/diagnostic
// listing endpoints.
func (n *Network) ListSlots() []Snapshot {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Snapshot, 0, len(n.slots))
	for _, s := range n.slots {
		out = append(out, s.ToSnapshot())
	}
	return out
}

// GetState summarizes running status, slot counts, and per-state
// distribution.
func (n *Network) GetState() State {
	n.mu.Lock()
	defer n.mu.Unlock()

	states := map[string]int{
		string(StateIdle): 0, string(StateListening): 0, string(StateProcessing): 0,
		string(StateExecuting): 0, string(StateWaiting): 0, string(StateError): 0, string(StateStopped): 0,
	}
	conns := 0
	for _, s := range n.slots {
		states[string(s.State)]++
		conns += len(s.Connections)
	}

	return State{
		Running: n.running, Slots: len(n.slots),
		Connections: conns / 2, States: states,
	}
}

func (n *Network) signalLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(schedulerTick)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.tick()
		}
	}
}

func (n *Network) tick() {
	n.mu.Lock()
	candidates := make([]*ReactiveSlot, 0, len(n.slots))
	for _, s := range n.slots {
		if len(s.SignalQueue) == 0 {
			continue
		}
		if s.State != StateListening && s.State != StateIdle {
			continue
		}
		candidates = append(candidates, s)
	}

	var work []*Signal
	slots := make([]*ReactiveSlot, 0, len(candidates))
	for _, s := range candidates {
		signal := s.SignalQueue[0]
		s.SignalQueue = s.SignalQueue[1:]
		if signal.TTL <= 0 {
			continue
		}
		s.State = StateProcessing
		work = append(work, signal)
		slots = append(slots, s)
	}
	n.mu.Unlock()

	for i, signal := range work {
		n.processSignal(slots[i], signal)
	}
}

func (n *Network) processSignal(slot *ReactiveSlot, signal *Signal) {
	n.mu.Lock()
	slot.SignalCount++
	slot.LastActivity = time.Now()
	bindings := append([]*ReactiveBinding(nil), slot.Bindings...)
	n.mu.Unlock()

	func() {
		defer func() {
			if r := recover(); r != nil {
				n.mu.Lock()
				slot.State = StateError
				slot.ErrorCount++
				n.mu.Unlock()
				n.log.Error("", "", "signal processing panic", map[string]interface{}{"slot_id": slot.SlotID, "panic": fmt.Sprint(r)})
			}
		}()

		now := time.Now()
		for _, b := range bindings {
			if !b.Matches(signal) || !b.CanInvoke(now) {
				continue
			}
			n.executeBinding(slot, b, signal)
			n.mu.Lock()
			b.InvocationCount++
			b.LastInvocation = now
			n.mu.Unlock()
		}
	}()

	n.mu.Lock()
	if slot.State == StateProcessing {
		slot.State = StateListening
	}
	n.mu.Unlock()
}

func (n *Network) executeBinding(slot *ReactiveSlot, binding *ReactiveBinding, signal *Signal) {
	switch binding.ActionType {
	case "invoke_operator":
		operatorID, _ := binding.ActionConfig["operator_id"].(string)
		if operatorID == "" {
			return
		}
		inputs := copyPayload(signal.Payload)
		if extra, ok := binding.ActionConfig["extra_inputs"].(map[string]interface{}); ok {
			for k, v := range extra {
				inputs[k] = v
			}
		}
		n.InvokeOperator(context.Background(), slot.SlotID, operatorID, inputs)

	case "forward":
		target, _ := binding.ActionConfig["target_slot"].(string)
		if target == "" {
			return
		}
		n.SendSignal(&Signal{
			SignalID:   "fwd_" + signal.SignalID,
			Type:       signal.Type,
			SourceSlot: slot.SlotID,
			TargetSlot: target,
			Payload:    signal.Payload,
			TTL:        signal.TTL - 1,
			Path:       append(append([]string(nil), signal.Path...), slot.SlotID),
			Timestamp:  time.Now(),
		})

	case "transform":
		name, _ := binding.ActionConfig["transform"].(string)
		n.mu.Lock()
		fn, ok := n.transforms[name]
		n.mu.Unlock()
		if ok && fn != nil {
			signal.Payload = fn(signal.Payload)
		}
	}
}

func (n *Network) healthLoop() {
	defer n.wg.Done()
	ticker := time.NewTicker(healthTick)
	defer ticker.Stop()

	for {
		select {
		case <-n.stopCh:
			return
		case <-ticker.C:
			n.healthCheck()
		}
	}
}

func (n *Network) healthCheck() {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := time.Now()
	for _, s := range n.slots {
		if s.State == StateError && now.Sub(s.LastActivity) > errorResetAge {
			s.State = StateListening
			s.ErrorCount = 0
		}
		if s.State == StateListening && now.Sub(s.LastActivity) > idleTimeoutAge {
			s.State = StateIdle
		}
	}
}
