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

// Package kernel implements the global, second-tier authorization
// layer evaluated after a caller's own policy has already passed.
//
// Kernel policies share the policy.Policy document shape and are
// identified by the "kpol_" id prefix. A default kpol_default policy
// grants MASTER on every resource type, so kernel enforcement is
// operationally a deny-list unless an operator deploys additional
// kernel policies (spec.md §9 flags this explicitly; it is preserved).
package kernel

import (
	"fmt"
	"strings"
	"time"

	"controlplane/internal/obs"
	"controlplane/internal/policy"
)

const (
	kernelPolicyPrefix  = "kpol_"
	DefaultKernelPolicy = "kpol_default"
)

// Decision is the outcome of a kernel enforcement call.
type Decision struct {
	Allowed  bool
	Reason   string
	PolicyID string // empty when allowed via bypass or no active kernel policy denied
}

// ActorContext carries the caller facts the kernel needs: the ip for
// restriction checks, the caller's own policy id (for break-glass) and
// an explicit break-glass flag.
type ActorContext struct {
	IP            string
	ActorPolicyID string
	KernelBypass  bool
}

// Enforcer evaluates kernel policies before any side-effecting
// operation. All three entry points are synchronous from the caller's
// perspective and fail closed: any internal error is treated as deny.
type Enforcer struct {
	policies *policy.Engine
	log      *obs.Logger
}

// NewEnforcer wires an Enforcer to a policy.Engine and seeds
// kpol_default if absent.
func NewEnforcer(policies *policy.Engine) *Enforcer {
	e := &Enforcer{policies: policies, log: obs.New("kernel")}
	e.ensureDefaultPolicy()
	return e
}

func (e *Enforcer) ensureDefaultPolicy() {
	if _, ok := e.policies.GetPolicy(DefaultKernelPolicy); ok {
		return
	}

	all := []policy.ResourceType{
		policy.ResourceSystem, policy.ResourceOperator, policy.ResourceNetwork,
		policy.ResourceSlot, policy.ResourceAudit, policy.ResourceKey,
		policy.ResourcePolicy, policy.ResourceUser,
	}
	perms := make([]policy.Permission, 0, len(all))
	for _, rt := range all {
		perms = append(perms, policy.Permission{ResourceType: rt, Level: policy.LevelMaster})
	}

	// kpol_default must carry the fixed, well-known id (kernel-policy
	// enumeration and break-glass both key off the "kpol_" prefix and
	// this exact id), so it is seeded directly rather than through
	// CreatePolicy's generated id assignment.
	e.policies.Seed(&policy.Policy{
		PolicyID:    DefaultKernelPolicy,
		Name:        "Kernel Default",
		Description: "Kernel baseline policy (allow-all unless constrained).",
		Permissions: perms,
		IsActive:    true,
		CreatedBy:   "system",
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	})
}

// ListKernelPolicies returns every policy whose id starts with
// "kpol_", optionally filtered to active ones.
func (e *Enforcer) ListKernelPolicies(activeOnly bool) []*policy.Policy {
	var out []*policy.Policy
	for _, p := range e.policies.ListPolicies() {
		if !strings.HasPrefix(p.PolicyID, kernelPolicyPrefix) {
			continue
		}
		if activeOnly && !p.IsActive {
			continue
		}
		out = append(out, p)
	}
	return out
}

// canBypass implements the break-glass rule: an explicit
// kernel_bypass flag AND MASTER on SYSTEM/"kernel" for the caller's
// own policy. This is the only way to skip kernel policy evaluation.
func (e *Enforcer) canBypass(ctx ActorContext) bool {
	if ctx.ActorPolicyID == "" || !ctx.KernelBypass {
		return false
	}
	allowed, _ := e.policies.CheckAccess(ctx.ActorPolicyID, policy.ResourceSystem, "kernel", policy.LevelMaster, policy.Context{IP: ctx.IP})
	return allowed
}

// insecureTransport reports whether endpoint uses http:// to a
// non-local host, which is non-bypassable except via break-glass.
func insecureTransport(endpoint string) bool {
	if !strings.HasPrefix(endpoint, "http://") {
		return false
	}
	for _, local := range []string{"http://localhost", "http://127.0.0.1", "http://0.0.0.0"} {
		if strings.HasPrefix(endpoint, local) {
			return false
		}
	}
	return true
}

func (e *Enforcer) logDecision(op string, d Decision) {
	if d.Allowed {
		e.log.Info("", "", op+" allowed", map[string]interface{}{"policy_id": d.PolicyID})
	} else {
		e.log.Warn("", "", op+" denied", map[string]interface{}{"policy_id": d.PolicyID, "reason": d.Reason})
	}
}

// EnforceOperatorInvoke implements spec.md §4.2's first entry point.
func (e *Enforcer) EnforceOperatorInvoke(operatorID, endpoint, method string, ctx ActorContext) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Allowed: false, Reason: fmt.Sprintf("kernel enforcement panic: %v", r)}
		}
		e.logDecision("operator_invoke", d)
	}()

	if e.canBypass(ctx) {
		return Decision{Allowed: true, Reason: "Kernel bypass granted"}
	}
	if insecureTransport(endpoint) {
		return Decision{Allowed: false, Reason: "Insecure transport: HTTPS required"}
	}
	for _, p := range e.ListKernelPolicies(true) {
		pc := policy.Context{IP: ctx.IP}
		if allowed, reason := e.policies.CheckOperatorAccess(p.PolicyID, operatorID, pc); !allowed {
			return Decision{Allowed: false, Reason: fmt.Sprintf("Denied by %s: %s", p.PolicyID, reason), PolicyID: p.PolicyID}
		}
		if allowed, reason := e.policies.CheckEndpointAccess(p.PolicyID, endpoint, method, pc); !allowed {
			return Decision{Allowed: false, Reason: fmt.Sprintf("Denied by %s: %s", p.PolicyID, reason), PolicyID: p.PolicyID}
		}
	}
	return Decision{Allowed: true, Reason: "Allowed"}
}

// EnforceMemoryStore implements spec.md §4.2's second entry point.
func (e *Enforcer) EnforceMemoryStore(memoryType string, ctx ActorContext) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Allowed: false, Reason: fmt.Sprintf("kernel enforcement panic: %v", r)}
		}
		e.logDecision("memory_store", d)
	}()

	if e.canBypass(ctx) {
		return Decision{Allowed: true, Reason: "Kernel bypass granted"}
	}
	resourceID := "memory:" + memoryType
	for _, p := range e.ListKernelPolicies(true) {
		if allowed, reason := e.policies.CheckAccess(p.PolicyID, policy.ResourceSystem, resourceID, policy.LevelWrite, policy.Context{IP: ctx.IP}); !allowed {
			return Decision{Allowed: false, Reason: fmt.Sprintf("Denied by %s: %s", p.PolicyID, reason), PolicyID: p.PolicyID}
		}
	}
	return Decision{Allowed: true, Reason: "Allowed"}
}

// EnforceDiscoveryRegister implements spec.md §4.2's third entry point.
func (e *Enforcer) EnforceDiscoveryRegister(capabilityType, endpoint, method string, ctx ActorContext) (d Decision) {
	defer func() {
		if r := recover(); r != nil {
			d = Decision{Allowed: false, Reason: fmt.Sprintf("kernel enforcement panic: %v", r)}
		}
		e.logDecision("discovery_register", d)
	}()

	if e.canBypass(ctx) {
		return Decision{Allowed: true, Reason: "Kernel bypass granted"}
	}
	if insecureTransport(endpoint) {
		return Decision{Allowed: false, Reason: "Insecure transport: HTTPS required"}
	}
	resourceID := "discovery:" + capabilityType
	for _, p := range e.ListKernelPolicies(true) {
		pc := policy.Context{IP: ctx.IP}
		if allowed, reason := e.policies.CheckAccess(p.PolicyID, policy.ResourceSystem, resourceID, policy.LevelExecute, pc); !allowed {
			return Decision{Allowed: false, Reason: fmt.Sprintf("Denied by %s: %s", p.PolicyID, reason), PolicyID: p.PolicyID}
		}
		if allowed, reason := e.policies.CheckEndpointAccess(p.PolicyID, endpoint, method, pc); !allowed {
			return Decision{Allowed: false, Reason: fmt.Sprintf("Denied by %s: %s", p.PolicyID, reason), PolicyID: p.PolicyID}
		}
	}
	return Decision{Allowed: true, Reason: "Allowed"}
}
