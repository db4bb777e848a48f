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

// Package network implements the reactive slot network: a bounded
// graph of cooperatively scheduled slots that react to signals by
// invoking operators, forwarding, or transforming payloads.
package network

import "time"

// SlotState is the lifecycle state of a ReactiveSlot.
type SlotState string

const (
	StateIdle       SlotState = "idle"
	StateListening  SlotState = "listening"
	StateProcessing SlotState = "processing"
	StateExecuting  SlotState = "executing"
	StateWaiting    SlotState = "waiting"
	StateError      SlotState = "error"
	StateStopped    SlotState = "stopped"
)

// SignalType classifies a Signal's intent.
type SignalType string

const (
	SignalQuery          SignalType = "query"
	SignalResponse       SignalType = "response"
	SignalBroadcast      SignalType = "broadcast"
	SignalHeartbeat      SignalType = "heartbeat"
	SignalDiscovery      SignalType = "discovery"
	SignalOperatorInvoke SignalType = "operator_invoke"
	SignalError          SignalType = "error"
)

// defaultSignalTTL bounds hop count for broadcast signals absent an
// explicit value.
const defaultSignalTTL = 5

// Signal is a message passed between slots.
type Signal struct {
	SignalID   string
	Type       SignalType
	SourceSlot string
	TargetSlot string // empty means broadcast to source's neighbors
	Payload    map[string]interface{}
	Timestamp  time.Time
	TTL        int
	Path       []string
}

// ReactiveBinding ties a trigger pattern to an action, evaluated in
// declaration order against every signal a slot dequeues.
type ReactiveBinding struct {
	BindingID      string
	TriggerPattern TriggerPattern
	ActionType     string // invoke_operator, forward, transform
	ActionConfig   map[string]interface{}

	DebounceMS     int
	ThrottleMS     int
	MaxInvocations int // negative means unbounded

	InvocationCount int
	LastInvocation  time.Time
}

// TriggerPattern is the matching criteria for a ReactiveBinding.
type TriggerPattern struct {
	SignalTypes     []SignalType // signal.Type must be one of these, if non-empty
	PayloadContains map[string]interface{}
}

// Matches reports whether signal satisfies the binding's trigger.
func (b *ReactiveBinding) Matches(signal *Signal) bool {
	if len(b.TriggerPattern.SignalTypes) > 0 {
		found := false
		for _, st := range b.TriggerPattern.SignalTypes {
			if st == signal.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for k, v := range b.TriggerPattern.PayloadContains {
		if signal.Payload[k] != v {
			return false
		}
	}
	return true
}

// CanInvoke reports whether the binding's rate limits permit another
// invocation right now.
func (b *ReactiveBinding) CanInvoke(now time.Time) bool {
	if b.MaxInvocations >= 0 && b.InvocationCount >= b.MaxInvocations {
		return false
	}
	if b.ThrottleMS > 0 && !b.LastInvocation.IsZero() {
		if now.Sub(b.LastInvocation) < time.Duration(b.ThrottleMS)*time.Millisecond {
			return false
		}
	}
	return true
}

// ReactiveSlot is the fundamental schedulable unit of the network.
type ReactiveSlot struct {
	SlotID      string
	SlotType    string
	State       SlotState
	Data        map[string]interface{}
	OperatorIDs []string
	Connections map[string]struct{}
	SignalQueue []*Signal
	Bindings    []*ReactiveBinding

	CreatedAt    time.Time
	LastActivity time.Time
	SignalCount  int64
	ErrorCount   int64
}

// Snapshot is the serializable view of a ReactiveSlot used by get_state/to_dict.
type Snapshot struct {
	SlotID           string   `json:"slot_id"`
	Type             string   `json:"type"`
	State            string   `json:"state"`
	Operators        []string `json:"operators"`
	Connections      []string `json:"connections"`
	Bindings         int      `json:"bindings"`
	SignalsProcessed int64    `json:"signals_processed"`
}

// ToSnapshot serializes a slot for API/diagnostic output.
func (s *ReactiveSlot) ToSnapshot() Snapshot {
	conns := make([]string, 0, len(s.Connections))
	for c := range s.Connections {
		conns = append(conns, c)
	}
	return Snapshot{
		SlotID: s.SlotID, Type: s.SlotType, State: string(s.State),
		Operators: append([]string(nil), s.OperatorIDs...), Connections: conns,
		Bindings: len(s.Bindings), SignalsProcessed: s.SignalCount,
	}
}
