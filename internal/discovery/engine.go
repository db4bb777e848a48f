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

package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"controlplane/internal/kernel"
	"controlplane/internal/obs"
)

// Enforcer is the narrow kernel surface the discovery engine needs.
type Enforcer interface {
	EnforceDiscoveryRegister(capabilityType, endpoint, method string, ctx kernel.ActorContext) kernel.Decision
}

// Hook is invoked with every Capability that passes kernel enforcement
// and is stored. The default hook, wired by internal/dispatcher, is
// what promotes a Capability into an OperatorSignature.
type Hook func(Capability)

// Engine scans registered sources and maintains the live capability
// catalog (spec.md §4.6).
type Engine struct {
	mu           sync.RWMutex
	sources      map[string]*Source
	capabilities map[string]*Capability

	hooks    []Hook
	enforcer Enforcer
	client   *http.Client
	replica  *CassandraReplica
	log      *obs.Logger
}

// NewEngine constructs a discovery Engine.
func NewEngine(enforcer Enforcer) *Engine {
	return &Engine{
		sources:      make(map[string]*Source),
		capabilities: make(map[string]*Capability),
		enforcer:     enforcer,
		client:       &http.Client{Timeout: 15 * time.Second},
		log:          obs.New("discovery"),
	}
}

// WithCassandraReplica attaches an optional Cassandra mirror and warms
// the in-memory catalog from it.
func (e *Engine) WithCassandraReplica(r *CassandraReplica) error {
	caps, err := r.Load()
	if err != nil {
		return err
	}
	e.mu.Lock()
	for _, c := range caps {
		e.capabilities[c.CapabilityID] = c
	}
	e.replica = r
	e.mu.Unlock()
	return nil
}

// RegisterSource adds a scan target.
func (e *Engine) RegisterSource(src *Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sources[src.SourceID] = src
}

// OnDiscovery registers a promotion hook.
func (e *Engine) OnDiscovery(h Hook) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.hooks = append(e.hooks, h)
}

func capabilityID(sourceID string, c *Capability) string {
	sum := sha256.Sum256([]byte(sourceID + "|" + c.Name + "|" + c.Endpoint + "|" + c.Method))
	return "cap_" + hex.EncodeToString(sum[:])[:16]
}

// DiscoverAll scans every active source, returning the number of
// sources actually probed and the total capabilities registered across
// all of them (a source that errors still counts as probed).
func (e *Engine) DiscoverAll(ctx context.Context, actorCtx kernel.ActorContext) (sourcesProbed, totalCapabilities int) {
	e.mu.RLock()
	sources := make([]*Source, 0, len(e.sources))
	for _, s := range e.sources {
		if s.Active {
			sources = append(sources, s)
		}
	}
	e.mu.RUnlock()

	for _, s := range sources {
		sourcesProbed++
		n, err := e.DiscoverFromSource(ctx, s.SourceID, actorCtx)
		if err != nil {
			e.log.Warn("", "", "discovery scan failed", map[string]interface{}{"source_id": s.SourceID, "error": err.Error()})
			continue
		}
		totalCapabilities += n
	}
	return sourcesProbed, totalCapabilities
}

// DiscoverFromSource scans one source, filters discovered capabilities
// through kernel enforcement, stores the survivors, and fans them out
// to every registered hook.
func (e *Engine) DiscoverFromSource(ctx context.Context, sourceID string, actorCtx kernel.ActorContext) (int, error) {
	e.mu.RLock()
	src, ok := e.sources[sourceID]
	e.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("discovery source not found: %s", sourceID)
	}

	var found []Capability
	var err error
	switch src.DiscoveryMethod {
	case MethodOpenAPI:
		found, err = discoverOpenAPI(ctx, e.client, src)
	case MethodGraphQL:
		found, err = discoverGraphQL(ctx, e.client, src)
	case MethodProbe:
		found, err = discoverProbe(ctx, e.client, src)
	case MethodManifest:
		found, err = discoverManifest(ctx, e.client, src)
	case MethodMCP:
		found, err = discoverMCP(ctx, src)
	default:
		return 0, fmt.Errorf("no prober wired for discovery method %q", src.DiscoveryMethod)
	}
	if err != nil {
		return 0, err
	}

	registered := 0
	for i := range found {
		candidate := found[i]
		if e.enforcer != nil {
			decision := e.enforcer.EnforceDiscoveryRegister(string(candidate.CapabilityType), candidate.Endpoint, candidate.Method, actorCtx)
			if !decision.Allowed {
				e.log.Warn("", "", "capability discovery denied", map[string]interface{}{"name": candidate.Name, "reason": decision.Reason})
				continue
			}
		}

		candidate.CapabilityID = capabilityID(sourceID, &candidate)
		if candidate.Headers == nil {
			candidate.Headers = map[string]string{}
		}
		candidate.Headers["x-source"] = sourceID
		candidate.Headers["x-discovery-method"] = string(src.DiscoveryMethod)

		e.mu.Lock()
		e.capabilities[candidate.CapabilityID] = &candidate
		hooks := append([]Hook(nil), e.hooks...)
		replica := e.replica
		e.mu.Unlock()

		if replica != nil {
			if err := replica.Save(&candidate); err != nil {
				e.log.Warn("", "", "cassandra replica save failed", map[string]interface{}{"error": err.Error()})
			}
		}

		for _, h := range hooks {
			h(candidate)
		}
		registered++
	}
	return registered, nil
}

// GetCapability returns a capability by id.
func (e *Engine) GetCapability(id string) (*Capability, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	c, ok := e.capabilities[id]
	return c, ok
}

// SearchCapabilities does a case-insensitive substring match on name,
// optionally filtered by capability type.
func (e *Engine) SearchCapabilities(query string, capType CapabilityType) []*Capability {
	e.mu.RLock()
	defer e.mu.RUnlock()

	query = strings.ToLower(query)
	var out []*Capability
	for _, c := range e.capabilities {
		if capType != "" && c.CapabilityType != capType {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(c.Name), query) {
			continue
		}
		out = append(out, c)
	}
	return out
}

// HealthCheck probes a single capability's endpoint with GET and
// updates its response-time EMA and health flag.
func (e *Engine) HealthCheck(ctx context.Context, capabilityID string) error {
	e.mu.RLock()
	c, ok := e.capabilities[capabilityID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("capability not found: %s", capabilityID)
	}
	if c.Method == "MCP" {
		return nil // MCP health is judged by the backing connector, not an HTTP probe.
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, "GET", c.Endpoint, nil)
	if err != nil {
		return err
	}
	resp, err := e.client.Do(req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000.0

	e.mu.Lock()
	defer e.mu.Unlock()
	c.LastChecked = time.Now()
	if err != nil || resp.StatusCode >= 500 {
		c.IsHealthy = false
		c.FailureCount++
		return nil
	}
	resp.Body.Close()
	c.IsHealthy = true
	c.SuccessCount++
	if c.AvgResponseMS == 0 {
		c.AvgResponseMS = elapsed
	} else {
		c.AvgResponseMS = 0.2*elapsed + 0.8*c.AvgResponseMS
	}
	return nil
}

// HealthCheckAll probes every known capability.
func (e *Engine) HealthCheckAll(ctx context.Context) {
	e.mu.RLock()
	ids := make([]string, 0, len(e.capabilities))
	for id := range e.capabilities {
		ids = append(ids, id)
	}
	e.mu.RUnlock()

	for _, id := range ids {
		_ = e.HealthCheck(ctx, id)
	}
}

// Stats summarizes the capability catalog.
type Stats struct {
	TotalCapabilities int            `json:"total_capabilities"`
	HealthyCount      int            `json:"healthy_count"`
	ByType            map[string]int `json:"by_type"`
	Sources           int            `json:"sources"`
}

func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Stats{ByType: make(map[string]int), Sources: len(e.sources)}
	for _, c := range e.capabilities {
		s.TotalCapabilities++
		if c.IsHealthy {
			s.HealthyCount++
		}
		s.ByType[string(c.CapabilityType)]++
	}
	return s
}
