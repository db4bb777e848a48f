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

	"controlplane/internal/apierr"
	"controlplane/internal/auth"
	"controlplane/internal/policy"
)

type createPolicyRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Permissions []policyPermission  `json:"permissions"`
}

type policyPermission struct {
	ResourceType string  `json:"resource_type"`
	ResourceID   *string `json:"resource_id"`
	Level        string  `json:"level"`
}

func levelFromString(s string) policy.Level {
	switch s {
	case "read":
		return policy.LevelRead
	case "execute":
		return policy.LevelExecute
	case "write":
		return policy.LevelWrite
	case "admin":
		return policy.LevelAdmin
	case "master":
		return policy.LevelMaster
	default:
		return policy.LevelNone
	}
}

func toPermissions(in []policyPermission) []policy.Permission {
	out := make([]policy.Permission, 0, len(in))
	for _, p := range in {
		out = append(out, policy.Permission{
			ResourceType: policy.ParseResourceType(p.ResourceType),
			ResourceID:   p.ResourceID,
			Level:        levelFromString(p.Level),
		})
	}
	return out
}

// handlePoliciesCollection implements GET/POST /api/policies.
func (s *Server) handlePoliciesCollection(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.authorize(w, ac, policy.ResourcePolicy, "", policy.LevelRead) {
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"policies": s.container.Policies.ListPolicies()})

	case http.MethodPost:
		if !s.authorize(w, ac, policy.ResourcePolicy, "", policy.LevelAdmin) {
			return
		}
		var req createPolicyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Name == "" {
			apierr.BadRequest(w, "name is required")
			return
		}

		perms := toPermissions(req.Permissions)
		var created *policy.Policy
		var err error
		if s.container.PolicyMirror != nil {
			created, err = s.container.PolicyMirror.CreatePolicy(r.Context(), req.Name, req.Description, perms)
		} else {
			created = s.container.Policies.CreatePolicy(req.Name, req.Description, perms)
		}
		if err != nil {
			apierr.Internal(w, "policy persistence failed: "+err.Error())
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{"policy_id": created.PolicyID, "name": created.Name})
	}
}
