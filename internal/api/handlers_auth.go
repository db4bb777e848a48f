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
	"encoding/json"
	"net/http"

	"controlplane/internal/apierr"
	"controlplane/internal/auth"
)

type loginRequest struct {
	APIKey string `json:"api_key"`
}

// handleLogin implements POST /api/auth/login: exchanges a raw api key
// for a signed token and a durable session.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.APIKey == "" {
		apierr.BadRequest(w, "api_key is required")
		return
	}

	ac, err := s.container.Auth.Authenticate(req.APIKey, "")
	if err != nil {
		apierr.Unauthenticated(w, err.Error())
		return
	}
	ac.IP = clientIP(r)
	ac.UserAgent = r.Header.Get("User-Agent")

	token, ttl, err := s.container.Auth.CreateToken(ac)
	if err != nil {
		apierr.Internal(w, "token issuance failed")
		return
	}

	sess := s.container.Sessions.CreateSession(ac.KeyID, ac.OwnerID, ttl, map[string]interface{}{
		"ip": ac.IP, "user_agent": ac.UserAgent,
	})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"session_id": sess.SessionID,
		"expires_in": int(ttl.Seconds()),
		"scope":      ac.Scope,
	})
}

type logoutRequest struct {
	SessionID string `json:"session_id"`
}

// handleLogout implements POST /api/auth/logout. A missing session_id
// is a no-op success: logout is idempotent by design.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	var req logoutRequest
	_ = decodeOptional(r, &req)
	if req.SessionID != "" {
		s.container.Sessions.DeleteSession(req.SessionID)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "logged_out"})
}

// handleRefresh implements POST /api/auth/refresh: mints a fresh token
// for the already-authenticated caller's backing key.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	token, ttl, err := s.container.Auth.CreateToken(ac)
	if err != nil {
		apierr.Internal(w, "token issuance failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token": token, "expires_in": int(ttl.Seconds()),
	})
}

// decodeOptional reads an optional JSON body, tolerating an empty one
// rather than treating it as malformed (used for routes whose body is
// entirely optional, e.g. logout's session_id).
func decodeOptional(r *http.Request, dst interface{}) error {
	if r.ContentLength == 0 {
		return nil
	}
	r.Body = http.MaxBytesReader(nil, r.Body, maxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}
