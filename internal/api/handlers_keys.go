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

	"github.com/gorilla/mux"

	"controlplane/internal/apierr"
	"controlplane/internal/auth"
	"controlplane/internal/policy"
)

type keySummary struct {
	KeyID     string  `json:"key_id"`
	KeyPrefix string  `json:"key_prefix"`
	OwnerID   string  `json:"owner_id"`
	PolicyID  string  `json:"policy_id"`
	Scope     string  `json:"scope"`
	Status    string  `json:"status"`
	Name      string  `json:"name,omitempty"`
	CreatedAt string  `json:"created_at"`
	ExpiresAt *string `json:"expires_at,omitempty"`
}

func summarizeKey(k *auth.APIKey) keySummary {
	s := keySummary{
		KeyID: k.KeyID, KeyPrefix: k.KeyPrefix, OwnerID: k.OwnerID,
		PolicyID: k.PolicyID, Scope: string(k.Scope), Status: string(k.Status),
		Name: k.Name, CreatedAt: k.CreatedAt.Format(httpTimeFormat),
	}
	if k.ExpiresAt != nil {
		t := k.ExpiresAt.Format(httpTimeFormat)
		s.ExpiresAt = &t
	}
	return s
}

type createKeyRequest struct {
	Scope        string                 `json:"scope"`
	PolicyID     string                 `json:"policy_id"`
	ExpiresDays  int                    `json:"expires_days"`
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	Metadata     map[string]interface{} `json:"metadata"`
}

// handleKeysCollection implements GET/POST /api/keys.
func (s *Server) handleKeysCollection(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !s.authorize(w, ac, policy.ResourceKey, "", policy.LevelRead) {
			return
		}
		keys := s.container.Keys.ListKeys(ac.OwnerID, nil, nil)
		out := make([]keySummary, 0, len(keys))
		for _, k := range keys {
			out = append(out, summarizeKey(k))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"keys": out})

	case http.MethodPost:
		if !s.authorize(w, ac, policy.ResourceKey, "", policy.LevelWrite) {
			return
		}
		var req createKeyRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Scope == "" {
			apierr.BadRequest(w, "scope is required")
			return
		}
		policyID := req.PolicyID
		if policyID == "" {
			policyID = ac.PolicyID
		}
		key, raw, err := s.container.Keys.CreateKey(ac.OwnerID, policyID, auth.KeyScope(req.Scope), "", req.ExpiresDays, req.Name, req.Description)
		if err != nil {
			apierr.BadRequest(w, err.Error())
			return
		}

		resp := map[string]interface{}{
			"key_id":  key.KeyID,
			"api_key": raw,
			"scope":   string(key.Scope),
			"warning": "This is the only time the raw key is shown. Store it securely.",
		}
		if key.ExpiresAt != nil {
			resp["expires_at"] = key.ExpiresAt.Format(httpTimeFormat)
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

// handleKeyByID implements DELETE /api/keys/{id}.
func (s *Server) handleKeyByID(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	if !s.authorize(w, ac, policy.ResourceKey, "", policy.LevelWrite) {
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.container.Keys.RevokeKey(id); err != nil {
		apierr.NotFound(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "revoked", "key_id": id})
}
