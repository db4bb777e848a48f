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

package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"controlplane/internal/kernel"
	"controlplane/internal/obs"
)

const defaultDecayRate = 0.01 // importance lost per hour, absent an explicit rate

// Embedder computes a vector embedding for a recall query; nil
// disables semantic recall (mode 4 of spec.md §4.7 is used instead).
type Embedder func(query string) []float64

// Enforcer is the narrow kernel surface the memory store needs.
type Enforcer interface {
	EnforceMemoryStore(memoryType string, ctx kernel.ActorContext) kernel.Decision
}

// Backend is an optional durable mirror of the memory store.
type Backend interface {
	Save(m *Memory) error
	Load() ([]*Memory, error)
}

// Registry is the content-addressed memory store.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Memory
	byTag map[string]map[string]struct{} // tag -> set of memory ids
	byType map[Type]map[string]struct{}

	patterns map[string]*Pattern

	embedder  Embedder
	decayRate float64
	enforcer  Enforcer
	backend   Backend
	log       *obs.Logger
}

// New constructs an empty Registry. embedder and enforcer may be nil;
// a nil enforcer allows every store (used in tests and standalone
// tooling that never faces an untrusted actor).
func New(embedder Embedder, enforcer Enforcer) *Registry {
	return &Registry{
		byID:      make(map[string]*Memory),
		byTag:     make(map[string]map[string]struct{}),
		byType:    make(map[Type]map[string]struct{}),
		patterns:  make(map[string]*Pattern),
		embedder:  embedder,
		decayRate: defaultDecayRate,
		enforcer:  enforcer,
		log:       obs.New("memory"),
	}
}

// WithBackend attaches an optional durable mirror and warms the
// in-memory store from it.
func (r *Registry) WithBackend(b Backend) error {
	loaded, err := b.Load()
	if err != nil {
		return err
	}
	r.mu.Lock()
	for _, m := range loaded {
		r.byID[m.MemoryID] = m
		r.indexLocked(m)
	}
	r.backend = b
	r.mu.Unlock()
	return nil
}

// generateID computes sha-256(canonical-json(content)), matching
// store-level dedup: identical content always yields the same id.
func generateID(content map[string]interface{}) (string, error) {
	canon, err := canonicalJSON(content)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canon)
	return "mem_" + hex.EncodeToString(sum[:])[:16], nil
}

// Store writes a memory, deduping on content-derived id: storing the
// same content twice returns the existing record unchanged. actorCtx
// is checked against kernel's memory_store enforcement before any
// mutation; a denial returns an error and writes nothing.
func (r *Registry) Store(memType Type, content map[string]interface{}, tags []string, importance float64, actorCtx kernel.ActorContext) (*Memory, error) {
	if r.enforcer != nil {
		if d := r.enforcer.EnforceMemoryStore(string(memType), actorCtx); !d.Allowed {
			return nil, fmt.Errorf("memory store denied: %s", d.Reason)
		}
	}

	id, err := generateID(content)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if existing, ok := r.byID[id]; ok {
		r.mu.Unlock()
		return existing, nil
	}

	m := &Memory{
		MemoryID: id, Type: memType, Content: content, Tags: append([]string(nil), tags...),
		Importance: importance, CreatedAt: time.Now(), AccessedAt: time.Now(),
	}
	if r.embedder != nil {
		if q, ok := content["text"].(string); ok {
			m.Embedding = r.embedder(q)
		}
	}

	r.byID[id] = m
	r.indexLocked(m)
	backend := r.backend
	r.mu.Unlock()

	if backend != nil {
		if err := backend.Save(m); err != nil {
			r.log.Warn("", "", "memory backend save failed", map[string]interface{}{"memory_id": id, "error": err.Error()})
		}
	}
	return m, nil
}

func (r *Registry) indexLocked(m *Memory) {
	for _, tag := range m.Tags {
		if r.byTag[tag] == nil {
			r.byTag[tag] = make(map[string]struct{})
		}
		r.byTag[tag][m.MemoryID] = struct{}{}
	}
	if r.byType[m.Type] == nil {
		r.byType[m.Type] = make(map[string]struct{})
	}
	r.byType[m.Type][m.MemoryID] = struct{}{}
}

func (r *Registry) deindexLocked(m *Memory) {
	for _, tag := range m.Tags {
		delete(r.byTag[tag], m.MemoryID)
	}
	delete(r.byType[m.Type], m.MemoryID)
}

// RecallByID fetches one memory, bumping its access stats.
func (r *Registry) RecallByID(id string) (*Memory, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.byID[id]
	if ok {
		m.Access()
	}
	return m, ok
}

// RecallByTags returns memories indexed under every given tag
// (intersection semantics), optionally filtered by type, ranked by
// (importance, recency) descending. Recalled memories have their
// access stats bumped.
func (r *Registry) RecallByTags(tags []string, memType Type, limit int) []*Memory {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(tags) == 0 {
		return nil
	}
	var candidateIDs map[string]struct{}
	for i, tag := range tags {
		ids := r.byTag[tag]
		if i == 0 {
			candidateIDs = make(map[string]struct{}, len(ids))
			for id := range ids {
				candidateIDs[id] = struct{}{}
			}
			continue
		}
		for id := range candidateIDs {
			if _, ok := ids[id]; !ok {
				delete(candidateIDs, id)
			}
		}
	}

	var out []*Memory
	for id := range candidateIDs {
		m := r.byID[id]
		if m == nil {
			continue
		}
		if memType != "" && m.Type != memType {
			continue
		}
		out = append(out, m)
	}

	sortByImportanceRecency(out)
	out = applyLimit(out, limit)
	for _, m := range out {
		m.Access()
	}
	return out
}

// RecallByQuery performs semantic recall when an embedder is
// configured (cosine similarity, descending); otherwise it falls back
// to the (importance, recency) ranking of spec.md §4.7 mode 4.
func (r *Registry) RecallByQuery(query string, limit int) []*Memory {
	r.mu.Lock()
	defer r.mu.Unlock()

	all := make([]*Memory, 0, len(r.byID))
	for _, m := range r.byID {
		all = append(all, m)
	}

	if r.embedder != nil {
		qv := r.embedder(query)
		sort.Slice(all, func(i, j int) bool {
			return cosineSimilarity(qv, all[i].Embedding) > cosineSimilarity(qv, all[j].Embedding)
		})
	} else {
		sortByImportanceRecency(all)
	}

	all = applyLimit(all, limit)
	for _, m := range all {
		m.Access()
	}
	return all
}

func sortByImportanceRecency(memories []*Memory) {
	sort.Slice(memories, func(i, j int) bool {
		if memories[i].Importance != memories[j].Importance {
			return memories[i].Importance > memories[j].Importance
		}
		return memories[i].AccessedAt.After(memories[j].AccessedAt)
	})
}

func applyLimit(memories []*Memory, limit int) []*Memory {
	if limit > 0 && len(memories) > limit {
		return memories[:limit]
	}
	return memories
}

func cosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return -1
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return -1
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ApplyDecay subtracts decayRate*delta from every memory's importance,
// floored at 0.
func (r *Registry) ApplyDecay(delta time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.byID {
		m.Decay(r.decayRate, delta)
	}
}

// Forget removes a memory by id, or bulk-removes every memory whose
// importance is below belowImportance when id is empty.
func (r *Registry) Forget(id string, belowImportance float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		m, ok := r.byID[id]
		if !ok {
			return 0
		}
		r.deindexLocked(m)
		delete(r.byID, id)
		return 1
	}

	removed := 0
	for mid, m := range r.byID {
		if m.Importance < belowImportance {
			r.deindexLocked(m)
			delete(r.byID, mid)
			removed++
		}
	}
	return removed
}

// Link creates a symmetric association between two memories.
func (r *Registry) Link(a, b string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ma, ok := r.byID[a]
	if !ok {
		return fmt.Errorf("memory not found: %s", a)
	}
	mb, ok := r.byID[b]
	if !ok {
		return fmt.Errorf("memory not found: %s", b)
	}
	ma.LinkedIDs = appendUnique(ma.LinkedIDs, b)
	mb.LinkedIDs = appendUnique(mb.LinkedIDs, a)
	return nil
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// Compress summarizes a set of memories into one new summary memory
// linked back to each original.
func (r *Registry) Compress(ids []string, summaryText string, actorCtx kernel.ActorContext) (*Memory, error) {
	summary, err := r.Store(TypeSummary, map[string]interface{}{"text": summaryText, "source_count": len(ids)}, []string{"compressed"}, 0.5, actorCtx)
	if err != nil {
		return nil, err
	}
	for _, id := range ids {
		_ = r.Link(summary.MemoryID, id)
	}
	return summary, nil
}

// RecognizePattern creates a trigger/response pattern.
func (r *Registry) RecognizePattern(name string, trigger, response map[string]interface{}) *Pattern {
	p := &Pattern{
		PatternID: "pat_" + uuid.NewString()[:12], Name: name,
		TriggerConditions: trigger, ResponseTemplate: response,
		Confidence: 0.5, CreatedAt: time.Now(),
	}
	r.mu.Lock()
	r.patterns[p.PatternID] = p
	r.mu.Unlock()
	return p
}

// MatchPatterns returns every pattern whose trigger_conditions match
// ctx, bumping each match's counter.
func (r *Registry) MatchPatterns(ctx map[string]interface{}) []*Pattern {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*Pattern
	for _, p := range r.patterns {
		if patternMatches(p.TriggerConditions, ctx) {
			p.MatchCount++
			out = append(out, p)
		}
	}
	return out
}

// patternMatches implements spec.md §4.7's trigger semantics: every
// key in conditions must be present in ctx and equal, except a value
// shaped {"$regex": r} which performs a regex test against the
// corresponding ctx value instead of equality.
func patternMatches(conditions, ctx map[string]interface{}) bool {
	for k, want := range conditions {
		got, present := ctx[k]
		if !present {
			return false
		}
		if spec, ok := want.(map[string]interface{}); ok {
			if pattern, ok := spec["$regex"].(string); ok {
				re, err := regexp.Compile(pattern)
				if err != nil {
					return false
				}
				s, ok := got.(string)
				if !ok || !re.MatchString(s) {
					return false
				}
				continue
			}
		}
		if got != want {
			return false
		}
	}
	return true
}

// Stats summarizes the store.
type Stats struct {
	TotalMemories int            `json:"total_memories"`
	ByType        map[string]int `json:"by_type"`
	TotalPatterns int            `json:"total_patterns"`
}

func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Stats{TotalMemories: len(r.byID), ByType: make(map[string]int), TotalPatterns: len(r.patterns)}
	for _, m := range r.byID {
		s.ByType[string(m.Type)]++
	}
	return s
}
