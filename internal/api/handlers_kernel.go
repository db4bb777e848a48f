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

package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"controlplane/internal/apierr"
	"controlplane/internal/auth"
	"controlplane/internal/policy"
)

const kernelPolicyPrefix = "kpol_"

// handleKernelPoliciesCollection implements GET/POST
// /api/kernel/policies. Every kernel route requires MASTER on
// SYSTEM/"kernel", matching the break-glass grant the kernel itself
// checks for bypass.
func (s *Server) handleKernelPoliciesCollection(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	if !s.authorize(w, ac, policy.ResourceSystem, "kernel", policy.LevelMaster) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"policies": s.container.Kernel.ListKernelPolicies(false),
		})

	case http.MethodPost:
		var req createPolicyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" {
			apierr.BadRequest(w, "name is required")
			return
		}
		perms := toPermissions(req.Permissions)
		created := s.container.Policies.CreatePolicy(kernelPolicyPrefix+req.Name, req.Description, perms)
		// re-seed under the kernel prefix: CreatePolicy assigns a pol_
		// id, but kernel policy enumeration keys strictly off kpol_.
		polID := created.PolicyID
		created.PolicyID = kernelPolicyPrefix + strings.TrimPrefix(created.PolicyID, "pol_")
		s.container.Policies.Seed(created)
		_ = s.container.Policies.DeletePolicy(polID)
		writeJSON(w, http.StatusCreated, map[string]interface{}{"policy_id": created.PolicyID, "name": created.Name})
	}
}

// handleKernelPolicyByID implements GET/PATCH/DELETE
// /api/kernel/policies/{id}.
func (s *Server) handleKernelPolicyByID(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	if !s.authorize(w, ac, policy.ResourceSystem, "kernel", policy.LevelMaster) {
		return
	}

	id := mux.Vars(r)["id"]
	if !strings.HasPrefix(id, kernelPolicyPrefix) {
		apierr.BadRequest(w, "id must have the kpol_ prefix")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, ok := s.container.Policies.GetPolicy(id)
		if !ok {
			apierr.NotFound(w, "kernel policy not found: "+id)
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodPatch:
		var req struct {
			Description *string             `json:"description"`
			Permissions *[]policyPermission `json:"permissions"`
			IsActive    *bool               `json:"is_active"`
		}
		if !decodeJSON(w, r, &req) {
			return
		}
		updated, ok := s.container.Policies.PatchPolicy(id, func(p *policy.Policy) {
			if req.Description != nil {
				p.Description = *req.Description
			}
			if req.Permissions != nil {
				p.Permissions = toPermissions(*req.Permissions)
			}
			if req.IsActive != nil {
				p.IsActive = *req.IsActive
			}
		})
		if !ok {
			apierr.NotFound(w, "kernel policy not found: "+id)
			return
		}
		writeJSON(w, http.StatusOK, updated)

	case http.MethodDelete:
		if err := s.container.Policies.DeletePolicy(id); err != nil {
			apierr.BadRequest(w, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": "deleted", "policy_id": id})
	}
}
