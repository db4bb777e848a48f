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

package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Reserved, fixed default policy ids (spec.md §4.1 "Defaults").
const (
	PolicyMaster   = "pol_master"
	PolicyAdmin    = "pol_admin"
	PolicyUser     = "pol_user"
	PolicyReadonly = "pol_readonly"
)

// Engine owns the policy catalog and implements the deterministic,
// no-I/O access algorithm of spec.md §4.1.
//
// Readers take a snapshot under a read lock; writers swap entries
// under a write lock, matching the "readers are lock-free snapshots,
// writers swap under a mutex" guidance in spec.md §5.
type Engine struct {
	mu        sync.RWMutex
	policies  map[string]*Policy
	idCounter uint64
}

// NewEngine constructs an Engine seeded with the four reserved default
// policies.
func NewEngine() *Engine {
	e := &Engine{policies: make(map[string]*Policy)}
	e.seedDefaults()
	return e
}

func strPtr(s string) *string { return &s }

func (e *Engine) seedDefaults() {
	now := time.Now()
	all := []ResourceType{ResourceOperator, ResourceSlot, ResourceNetwork, ResourceKey,
		ResourcePolicy, ResourceUser, ResourceAudit, ResourceSystem}

	masterPerms := make([]Permission, 0, len(all))
	for _, rt := range all {
		masterPerms = append(masterPerms, Permission{ResourceType: rt, Level: LevelMaster})
	}

	adminPerms := make([]Permission, 0, len(all))
	for _, rt := range all {
		adminPerms = append(adminPerms, Permission{ResourceType: rt, Level: LevelAdmin})
	}

	userPerms := []Permission{
		{ResourceType: ResourceOperator, Level: LevelExecute},
		{ResourceType: ResourceNetwork, Level: LevelExecute},
		{ResourceType: ResourceSystem, Level: LevelRead},
	}

	readonlyPerms := []Permission{
		{ResourceType: ResourceOperator, Level: LevelRead},
		{ResourceType: ResourceNetwork, Level: LevelRead},
		{ResourceType: ResourceSystem, Level: LevelRead},
	}

	defaults := []*Policy{
		{
			PolicyID: PolicyMaster, Name: "Master", Description: "Full access.",
			Permissions: masterPerms,
			RateLimits:  RateLimit{PerMinute: 1000, PerHour: 50000, PerDay: 1000000, Burst: 100},
			IsActive:    true, CreatedBy: "system", CreatedAt: now, UpdatedAt: now,
		},
		{
			PolicyID: PolicyAdmin, Name: "Admin", Description: "Administrative access.",
			Permissions: adminPerms,
			RateLimits:  RateLimit{PerMinute: 300, PerHour: 10000, PerDay: 100000, Burst: 50},
			IsActive:    true, CreatedBy: "system", CreatedAt: now, UpdatedAt: now,
		},
		{
			PolicyID: PolicyUser, Name: "User", Description: "Standard user access.",
			Permissions: userPerms,
			RateLimits:  RateLimit{PerMinute: 60, PerHour: 1000, PerDay: 10000, Burst: 10},
			IsActive:    true, CreatedBy: "system", CreatedAt: now, UpdatedAt: now,
		},
		{
			PolicyID: PolicyReadonly, Name: "Read-only", Description: "Read-only access.",
			Permissions: readonlyPerms,
			RateLimits:  RateLimit{PerMinute: 30, PerHour: 500, PerDay: 5000, Burst: 5},
			IsActive:    true, CreatedBy: "system", CreatedAt: now, UpdatedAt: now,
		},
	}

	for _, p := range defaults {
		e.policies[p.PolicyID] = p
	}
}

// CreatePolicy assigns a new id (pol_<hash>) and stores the policy.
func (e *Engine) CreatePolicy(name, description string, perms []Permission) *Policy {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.idCounter++
	seed := name + ":" + strconv.FormatUint(e.idCounter, 10)
	sum := sha256.Sum256([]byte(seed))
	id := "pol_" + hex.EncodeToString(sum[:])[:12]

	now := time.Now()
	p := &Policy{
		PolicyID: id, Name: name, Description: description,
		Permissions: perms, IsActive: true,
		CreatedBy: "api", CreatedAt: now, UpdatedAt: now,
	}
	e.policies[id] = p
	return p
}

// Seed installs a policy under its own fixed PolicyID, overwriting any
// existing entry with that id. Used for well-known ids (the four
// defaults, kpol_default) that must not go through CreatePolicy's
// generated id assignment.
func (e *Engine) Seed(p *Policy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.PolicyID] = p
}

// GetPolicy returns a copy-free pointer to the stored policy (callers
// must not mutate it; use PatchPolicy).
func (e *Engine) GetPolicy(policyID string) (*Policy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.policies[policyID]
	return p, ok
}

// ListPolicies returns all policies.
func (e *Engine) ListPolicies() []*Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Policy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, p)
	}
	return out
}

// PatchPolicy applies a mutation function to a copy of the named
// policy and swaps the copy in under the write lock.
func (e *Engine) PatchPolicy(policyID string, patch func(*Policy)) (*Policy, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	old, ok := e.policies[policyID]
	if !ok {
		return nil, false
	}
	p := *old
	patch(&p)
	p.UpdatedAt = time.Now()
	e.policies[policyID] = &p
	return &p, true
}

// DeletePolicy removes a policy, refusing the four reserved defaults.
func (e *Engine) DeletePolicy(policyID string) error {
	switch policyID {
	case PolicyMaster, PolicyAdmin, PolicyUser, PolicyReadonly:
		return fmt.Errorf("policy %q is a reserved default and cannot be deleted", policyID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.policies[policyID]; !ok {
		return fmt.Errorf("policy not found: %s", policyID)
	}
	delete(e.policies, policyID)
	return nil
}

// CheckAccess implements spec.md §4.1's deterministic algorithm steps
// 1, 2 and 4 (step 3, endpoint-specific prefix matching, lives in
// CheckEndpointAccess).
func (e *Engine) CheckAccess(policyID string, rt ResourceType, resourceID string, required Level, ctx Context) (bool, string) {
	e.mu.RLock()
	p, ok := e.policies[policyID]
	e.mu.RUnlock()

	if !ok {
		return false, "policy not found"
	}
	if !p.IsActive {
		return false, "policy is inactive"
	}

	if reason, denied := checkRestrictions(p.Restrictions, ctx); denied {
		return false, reason
	}

	level := maxPermissionLevel(p.Permissions, rt, resourceID)
	if level < required {
		return false, fmt.Sprintf("insufficient permission: have %d, need %d", level, required)
	}
	return true, "OK"
}

func checkRestrictions(r Restriction, ctx Context) (string, bool) {
	now := time.Now()
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return "policy not yet valid", true
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return "policy has expired", true
	}
	if ctx.IP != "" {
		for _, denied := range r.DeniedIPs {
			if denied == ctx.IP {
				return "ip denied", true
			}
		}
		if len(r.AllowedIPs) > 0 {
			found := false
			for _, allowed := range r.AllowedIPs {
				if allowed == ctx.IP {
					found = true
					break
				}
			}
			if !found {
				return "ip not in allow list", true
			}
		}
	}
	return "", false
}

func maxPermissionLevel(perms []Permission, rt ResourceType, resourceID string) Level {
	max := LevelNone
	for _, p := range perms {
		if p.matches(rt, resourceID) && p.Level > max {
			max = p.Level
		}
	}
	return max
}

// CheckOperatorAccess applies the explicit allowed/denied operator
// lists (deny wins) before falling back to CheckAccess(OPERATOR,
// EXECUTE).
func (e *Engine) CheckOperatorAccess(policyID, operatorID string, ctx Context) (bool, string) {
	e.mu.RLock()
	p, ok := e.policies[policyID]
	e.mu.RUnlock()
	if !ok {
		return false, "policy not found"
	}

	for _, denied := range p.DeniedOperators {
		if operatorID == denied {
			return false, "operator explicitly denied"
		}
	}
	if len(p.AllowedOperators) > 0 {
		found := false
		for _, allowed := range p.AllowedOperators {
			if operatorID == allowed {
				found = true
				break
			}
		}
		if !found {
			return false, "operator not in allow list"
		}
	}

	return e.CheckAccess(policyID, ResourceOperator, operatorID, LevelExecute, ctx)
}

// CheckEndpointAccess applies prefix-matched endpoint allow/deny lists
// (deny wins) then maps the HTTP method to a required level and falls
// back to CheckAccess(SYSTEM, level).
func (e *Engine) CheckEndpointAccess(policyID, endpoint, method string, ctx Context) (bool, string) {
	e.mu.RLock()
	p, ok := e.policies[policyID]
	e.mu.RUnlock()
	if !ok {
		return false, "policy not found"
	}

	for _, prefix := range p.DeniedEndpoints {
		if strings.HasPrefix(endpoint, prefix) {
			return false, "endpoint explicitly denied"
		}
	}
	if len(p.AllowedEndpoints) > 0 {
		found := false
		for _, prefix := range p.AllowedEndpoints {
			if strings.HasPrefix(endpoint, prefix) {
				found = true
				break
			}
		}
		if !found {
			return false, "endpoint not in allow list"
		}
	}

	level := LevelForMethod(method)
	return e.CheckAccess(policyID, ResourceSystem, endpoint, level, ctx)
}
