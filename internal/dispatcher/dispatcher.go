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

// Package dispatcher implements the "brain": a thin classifier that
// routes an inbound thought to whichever of the operator registry,
// reactive network, discovery engine or memory store handles its
// type. It holds no domain intelligence beyond that routing table.
package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"controlplane/internal/discovery"
	"controlplane/internal/kernel"
	"controlplane/internal/memory"
	"controlplane/internal/obs"
	"controlplane/internal/operator"
)

// Type is the classification a thought is tagged with.
type Type string

const (
	TypeQuery       Type = "query"
	TypeCommand     Type = "command"
	TypeObservation Type = "observation"
	TypeReflection  Type = "reflection"
	TypePlanning    Type = "planning"
	TypeLearning    Type = "learning"
)

const thoughtHistorySize = 200

// Thought is one unit of routed input.
type Thought struct {
	ThoughtID   string
	Type        Type
	Content     map[string]interface{}
	Context     map[string]interface{}
	ProcessedAt time.Time
}

// Goal is a lightweight planning target (spec.md §6 `POST /api/brain/goals`).
type Goal struct {
	GoalID      string
	Description string
	Priority    int
	Active      bool
	CreatedAt   time.Time
}

// Dispatcher routes thoughts to the four domain subsystems.
type Dispatcher struct {
	mu    sync.Mutex
	goals map[string]*Goal

	history    []*Thought // ring buffer, bounded at thoughtHistorySize
	historyPos int

	memories   *memory.Registry
	operators  *operator.Registry
	discoveryE *discovery.Engine
	log        *obs.Logger
}

// New wires a Dispatcher to the four subsystems it routes into.
func New(memories *memory.Registry, operators *operator.Registry, discoveryE *discovery.Engine) *Dispatcher {
	return &Dispatcher{
		goals:      make(map[string]*Goal),
		memories:   memories,
		operators:  operators,
		discoveryE: discoveryE,
		log:        obs.New("dispatcher"),
	}
}

// Think classifies and routes one thought, then stores it as a
// low-importance memory regardless of outcome.
func (d *Dispatcher) Think(ctx context.Context, thought Thought, actorCtx kernel.ActorContext) (interface{}, error) {
	if thought.ThoughtID == "" {
		thought.ThoughtID = "thought_" + uuid.NewString()[:12]
	}
	thought.ProcessedAt = time.Now()

	var result interface{}
	var err error

	switch thought.Type {
	case TypeQuery:
		result, err = d.routeQuery(thought)
	case TypeCommand:
		result, err = d.routeCommand(ctx, thought, actorCtx)
	case TypeObservation:
		result, err = d.routeObservation(thought, actorCtx)
	case TypeReflection:
		result = d.routeReflection()
	case TypePlanning:
		result = d.routePlanning()
	case TypeLearning:
		result, err = d.routeLearning(thought, actorCtx)
	default:
		err = fmt.Errorf("unknown thought type: %q", thought.Type)
	}

	d.appendHistory(&thought)

	if d.memories != nil {
		content := map[string]interface{}{"type": string(thought.Type), "content": thought.Content}
		if _, storeErr := d.memories.Store(memory.TypeObservation, content, []string{"thought", string(thought.Type)}, 0.1, actorCtx); storeErr != nil {
			d.log.Warn("", "", "thought memory store failed", map[string]interface{}{"error": storeErr.Error()})
		}
	}

	return result, err
}

func textOf(content map[string]interface{}) string {
	if v, ok := content["text"].(string); ok {
		return v
	}
	if v, ok := content["query"].(string); ok {
		return v
	}
	return ""
}

func (d *Dispatcher) routeQuery(thought Thought) (interface{}, error) {
	q := textOf(thought.Content)
	out := map[string]interface{}{}
	if d.memories != nil {
		out["memories"] = d.memories.RecallByQuery(q, 10)
	}
	if d.discoveryE != nil {
		out["capabilities"] = d.discoveryE.SearchCapabilities(q, "")
	}
	return out, nil
}

func (d *Dispatcher) routeCommand(ctx context.Context, thought Thought, actorCtx kernel.ActorContext) (interface{}, error) {
	if d.operators == nil {
		return nil, fmt.Errorf("no operator registry wired")
	}
	operatorID, _ := thought.Content["operator_id"].(string)
	if operatorID == "" {
		return nil, fmt.Errorf("command thought requires content.operator_id")
	}
	inputs, _ := thought.Content["inputs"].(map[string]interface{})
	timeout := 30 * time.Second
	if ms, ok := thought.Content["timeout_ms"].(float64); ok && ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	return d.operators.Invoke(ctx, operatorID, inputs, timeout, actorCtx), nil
}

func (d *Dispatcher) routeObservation(thought Thought, actorCtx kernel.ActorContext) (interface{}, error) {
	var stored *memory.Memory
	if d.memories != nil {
		m, err := d.memories.Store(memory.TypeObservation, thought.Content, []string{"observation"}, 0.3, actorCtx)
		if err != nil {
			return nil, err
		}
		stored = m
	}
	var matches []*memory.Pattern
	if d.memories != nil && thought.Context != nil {
		matches = d.memories.MatchPatterns(thought.Context)
	}
	return map[string]interface{}{"memory": stored, "pattern_matches": matches}, nil
}

// routeReflection aggregates stats over the last N processed thoughts
// (the bounded history ring itself).
func (d *Dispatcher) routeReflection() interface{} {
	d.mu.Lock()
	defer d.mu.Unlock()

	counts := make(map[string]int)
	total := 0
	for _, t := range d.history {
		if t == nil {
			continue
		}
		counts[string(t.Type)]++
		total++
	}
	return map[string]interface{}{"total_thoughts": total, "by_type": counts}
}

func (d *Dispatcher) routePlanning() interface{} {
	d.mu.Lock()
	var activeGoals []*Goal
	for _, g := range d.goals {
		if g.Active {
			activeGoals = append(activeGoals, g)
		}
	}
	d.mu.Unlock()

	var healthy []*discovery.Capability
	if d.discoveryE != nil {
		for _, c := range d.discoveryE.SearchCapabilities("", "") {
			if c.IsHealthy {
				healthy = append(healthy, c)
			}
		}
	}
	return map[string]interface{}{"goals": activeGoals, "healthy_capabilities": healthy}
}

func (d *Dispatcher) routeLearning(thought Thought, actorCtx kernel.ActorContext) (interface{}, error) {
	name, _ := thought.Content["name"].(string)
	trigger, _ := thought.Content["trigger"].(map[string]interface{})
	response, _ := thought.Content["response"].(map[string]interface{})
	if name == "" || trigger == nil {
		return nil, fmt.Errorf("learning thought requires content.name and content.trigger")
	}

	var pattern *memory.Pattern
	if d.memories != nil {
		pattern = d.memories.RecognizePattern(name, trigger, response)
		if _, err := d.memories.Store(memory.TypeSkill, thought.Content, []string{"learned", name}, 0.5, actorCtx); err != nil {
			return nil, err
		}
	}
	return pattern, nil
}

func (d *Dispatcher) appendHistory(t *Thought) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.history == nil {
		d.history = make([]*Thought, thoughtHistorySize)
	}
	d.history[d.historyPos] = t
	d.historyPos = (d.historyPos + 1) % thoughtHistorySize
}

// CreateGoal registers a new active planning goal.
func (d *Dispatcher) CreateGoal(description string, priority int) *Goal {
	g := &Goal{
		GoalID: "goal_" + uuid.NewString()[:12], Description: description,
		Priority: priority, Active: true, CreatedAt: time.Now(),
	}
	d.mu.Lock()
	d.goals[g.GoalID] = g
	d.mu.Unlock()
	return g
}

// PromotionHook is the default discovery promotion hook (spec.md
// §4.6/§4.8): it classifies a discovered Capability's name by the
// §4.4 lexical rules and registers it as an operator, with headers
// carrying discovery provenance.
func (d *Dispatcher) PromotionHook(c discovery.Capability) {
	if d.operators == nil {
		return
	}
	headers := map[string]string{}
	for k, v := range c.Headers {
		headers[k] = v
	}
	if c.CapabilityType == discovery.CapMCPTool {
		headers["x-tool-name"] = c.Name
	}

	method := c.Method
	if c.CapabilityType == discovery.CapMCPTool {
		method = "MCP"
	}

	sig := &operator.Signature{
		OperatorID:       operator.OperatorID(c.Endpoint, method),
		Type:             operator.ClassifyByLexicalHeuristic(c.Name, method),
		EndpointURL:      c.Endpoint,
		Method:           method,
		Headers:          headers,
		RequestTemplate:  map[string]interface{}{},
		ResponseSchema:   c.OutputSchema,
		OutputExtractors: map[string]string{},
	}
	if err := d.operators.Register(sig); err != nil {
		d.log.Warn("", "", "promotion hook registration failed", map[string]interface{}{"capability": c.Name, "error": err.Error()})
	}
}
