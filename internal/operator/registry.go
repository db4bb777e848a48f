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

package operator

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"controlplane/internal/kernel"
	"controlplane/internal/obs"
)

const historyRingSize = 500

// Enforcer is the subset of kernel.Enforcer the registry needs,
// narrowed to an interface so tests can substitute a stub.
type Enforcer interface {
	EnforceOperatorInvoke(operatorID, endpoint, method string, ctx kernel.ActorContext) kernel.Decision
}

// Catalog is the persistence contract for the operator catalog
// (spec.md §4.4 "Persistence"): a full snapshot rewrite after every
// mutation. internal/storage provides file- and Postgres-backed
// implementations.
type Catalog interface {
	Save(signatures []*Signature) error
	Load() ([]*Signature, error)
}

// Registry owns the operator catalog and implements the uniform
// invoke contract of spec.md §4.4.
type Registry struct {
	mu      sync.Mutex
	byID    map[string]*Signature
	history []*Invocation // ring buffer, bounded at historyRingSize
	histPos int

	enforcer Enforcer
	catalog  Catalog
	client   *http.Client
	log      *obs.Logger
}

// NewRegistry constructs a Registry. catalog may be nil to disable
// persistence (used in tests).
func NewRegistry(enforcer Enforcer, catalog Catalog) *Registry {
	r := &Registry{
		byID:     make(map[string]*Signature),
		enforcer: enforcer,
		catalog:  catalog,
		client:   &http.Client{},
		log:      obs.New("operator"),
	}
	if catalog != nil {
		if sigs, err := catalog.Load(); err == nil {
			for _, s := range sigs {
				r.byID[s.OperatorID] = s
			}
		}
	}
	return r
}

// OperatorID computes the stable content-hash id of endpoint|method.
func OperatorID(endpoint, method string) string {
	sum := sha256.Sum256([]byte(endpoint + "|" + method))
	return "opr_" + hex.EncodeToString(sum[:])[:16]
}

// Register adds or replaces a Signature in the catalog and persists
// the full catalog.
func (r *Registry) Register(sig *Signature) error {
	r.mu.Lock()
	r.byID[sig.OperatorID] = sig
	snapshot := r.snapshotLocked()
	r.mu.Unlock()
	return r.persist(snapshot)
}

func (r *Registry) snapshotLocked() []*Signature {
	out := make([]*Signature, 0, len(r.byID))
	for _, s := range r.byID {
		out = append(out, s)
	}
	return out
}

func (r *Registry) persist(snapshot []*Signature) error {
	if r.catalog == nil {
		return nil
	}
	if err := r.catalog.Save(snapshot); err != nil {
		r.log.Error("", "", "catalog persistence failed", map[string]interface{}{"error": err.Error()})
		return err
	}
	return nil
}

// Get returns a signature by id.
func (r *Registry) Get(operatorID string) (*Signature, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[operatorID]
	return s, ok
}

// GetByType returns all signatures of a given Type.
func (r *Registry) GetByType(t Type) []*Signature {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*Signature
	for _, s := range r.byID {
		if s.Type == t {
			out = append(out, s)
		}
	}
	return out
}

// ListAll returns every registered signature.
func (r *Registry) ListAll() []*Signature {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshotLocked()
}

// Invoke runs the uniform invocation algorithm of spec.md §4.4 steps 1-8.
func (r *Registry) Invoke(ctx context.Context, operatorID string, inputs map[string]interface{}, timeout time.Duration, actorCtx kernel.ActorContext) *Invocation {
	inv := &Invocation{
		InvocationID: "inv_" + uuid.NewString(),
		OperatorID:   operatorID,
		Inputs:       inputs,
		Timestamp:    time.Now(),
	}

	// Step 1: lookup.
	r.mu.Lock()
	sig, ok := r.byID[operatorID]
	r.mu.Unlock()
	if !ok {
		inv.Success = false
		inv.Error = "Operator not found"
		r.appendHistory(inv)
		return inv
	}

	// Step 2: kernel enforcement. Deny performs zero outbound I/O.
	if r.enforcer != nil {
		decision := r.enforcer.EnforceOperatorInvoke(sig.OperatorID, sig.EndpointURL, sig.Method, actorCtx)
		if !decision.Allowed {
			inv.Success = false
			inv.Error = decision.Reason
			r.appendHistory(inv)
			return inv
		}
	}

	start := time.Now()

	// Step 3: request building.
	requestBody := buildRequest(sig.RequestTemplate, inputs)

	// Step 4: dispatch by method, bounded by timeout.
	callCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	status, respBody, err := r.dispatch(callCtx, sig, requestBody)
	latencyMS := float64(time.Since(start).Microseconds()) / 1000.0
	inv.LatencyMS = latencyMS

	if err != nil {
		inv.Success = false
		if callCtx.Err() == context.DeadlineExceeded {
			inv.Error = "Timeout"
		} else {
			inv.Error = err.Error()
		}
		r.updateStats(sig, false, latencyMS)
		r.appendHistory(inv)
		return inv
	}

	// Step 5: success classification.
	success := status >= 200 && status < 300
	inv.Success = success
	if !success {
		inv.Error = fmt.Sprintf("downstream status %d: %.200s", status, string(respBody))
	}

	// Step 6: output extraction.
	inv.Outputs = extractOutputs(sig.OutputExtractors, respBody)

	// Step 7: stats update (mutually exclusive section).
	r.updateStats(sig, success, latencyMS)

	// Step 8: history.
	r.appendHistory(inv)

	return inv
}

// buildRequest implements spec.md §4.4 step 3: start from the
// template, then for each input substitute the literal token $k
// inside template string values, else assign request[k]=v when k is
// not already a template key.
func buildRequest(template map[string]interface{}, inputs map[string]interface{}) map[string]interface{} {
	req := make(map[string]interface{}, len(template)+len(inputs))
	for k, v := range template {
		req[k] = v
	}

	for k, v := range inputs {
		token := "$" + k
		substituted := false
		for tk, tv := range req {
			sv, ok := tv.(string)
			if !ok {
				continue
			}
			if sv == token {
				req[tk] = v
				substituted = true
			} else if strings.Contains(sv, token) {
				req[tk] = strings.ReplaceAll(sv, token, fmt.Sprint(v))
				substituted = true
			}
		}
		if !substituted {
			if _, exists := req[k]; !exists {
				req[k] = v
			}
		}
	}
	return req
}

// dispatch sends the request per spec.md §4.4 step 4 and returns the
// HTTP status and raw response body. MCP dispatch is delegated to
// dispatchMCP.
func (r *Registry) dispatch(ctx context.Context, sig *Signature, body map[string]interface{}) (int, []byte, error) {
	if sig.Method == "MCP" {
		return r.dispatchMCP(ctx, sig, body)
	}

	var req *http.Request
	var err error

	if sig.Method == "GET" {
		u, perr := url.Parse(sig.EndpointURL)
		if perr != nil {
			return 0, nil, perr
		}
		q := u.Query()
		for k, v := range body {
			q.Set(k, fmt.Sprint(v))
		}
		u.RawQuery = q.Encode()
		req, err = http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	} else {
		payload, merr := json.Marshal(body)
		if merr != nil {
			return 0, nil, merr
		}
		req, err = http.NewRequestWithContext(ctx, sig.Method, sig.EndpointURL, bytes.NewReader(payload))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return 0, nil, err
	}
	for k, v := range sig.Headers {
		req.Header.Set(k, v)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// dispatchMCP resolves the backing transport from headers (x-source,
// x-tool-name) set by the discovery promotion hook. The MCP client
// library itself is treated as a black-box transport per spec.md's
// Non-goals; this wraps it behind the same (status, body) shape as
// the HTTP path so Invoke's remaining steps are protocol-agnostic.
func (r *Registry) dispatchMCP(ctx context.Context, sig *Signature, body map[string]interface{}) (int, []byte, error) {
	source := sig.Headers["x-source"]
	tool := sig.Headers["x-tool-name"]
	if source == "" || tool == "" {
		return 0, nil, fmt.Errorf("MCP dispatch requires x-source and x-tool-name headers")
	}
	result, err := mcpClientCallTool(ctx, sig.EndpointURL, tool, body)
	if err != nil {
		return 0, nil, err
	}
	return 200, result, nil
}

// extractOutputs implements spec.md §4.4 step 6: dotted-path JSONPath-
// like extraction, numeric components addressing array indices.
// `raw` always carries the unparsed body.
func extractOutputs(extractors map[string]string, raw []byte) map[string]interface{} {
	outputs := map[string]interface{}{"raw": string(raw)}

	var parsed interface{}
	hasJSON := json.Unmarshal(raw, &parsed) == nil

	for name, path := range extractors {
		if !hasJSON {
			outputs[name] = nil
			continue
		}
		outputs[name] = walkPath(parsed, path)
	}
	return outputs
}

func walkPath(v interface{}, path string) interface{} {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return v
	}
	parts := strings.Split(path, ".")
	cur := v
	for _, part := range parts {
		if part == "" {
			continue
		}
		if idx, err := strconv.Atoi(part); err == nil {
			arr, ok := cur.([]interface{})
			if !ok || idx < 0 || idx >= len(arr) {
				return nil
			}
			cur = arr[idx]
			continue
		}
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil
		}
		next, exists := m[part]
		if !exists {
			return nil
		}
		cur = next
	}
	return cur
}

// updateStats is the "mutually exclusive section" of spec.md §4.4 step
// 7: EMA with alpha=0.2 for latency, alpha=0.05 for success rate, plus
// the per-invoke consistency_score formula.
func (r *Registry) updateStats(sig *Signature, success bool, latencyMS float64) {
	const latencyAlpha = 0.2
	const successAlpha = 0.05

	r.mu.Lock()
	defer r.mu.Unlock()

	if sig.CallCount == 0 {
		sig.AvgLatencyMS = latencyMS
	} else {
		sig.AvgLatencyMS = latencyAlpha*latencyMS + (1-latencyAlpha)*sig.AvgLatencyMS
	}

	successVal := 0.0
	if success {
		successVal = 1.0
	}
	if sig.CallCount == 0 {
		sig.SuccessRate = successVal
	} else {
		sig.SuccessRate = successAlpha*successVal + (1-successAlpha)*sig.SuccessRate
	}

	sig.CallCount++
	sig.LastUsed = time.Now()

	consistencyFactor := 1.0
	if sig.CallCount <= 5 {
		consistencyFactor = 0.5
	}
	sig.ConsistencyScore = sig.SuccessRate * consistencyFactor

	snapshot := r.snapshotLocked()
	go func() { _ = r.persist(snapshot) }()
}

func (r *Registry) appendHistory(inv *Invocation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.history == nil {
		r.history = make([]*Invocation, historyRingSize)
	}
	r.history[r.histPos] = inv
	r.histPos = (r.histPos + 1) % historyRingSize
}

// History returns the bounded invocation history, most recent last.
func (r *Registry) History() []*Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Invocation, 0, historyRingSize)
	for i := 0; i < historyRingSize; i++ {
		idx := (r.histPos + i) % historyRingSize
		if r.history != nil && r.history[idx] != nil {
			out = append(out, r.history[idx])
		}
	}
	return out
}
