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
	"time"

	"github.com/gorilla/mux"

	"controlplane/internal/auth"
	"controlplane/internal/policy"
)

// handleOperatorsList implements GET /api/operators.
func (s *Server) handleOperatorsList(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"operators": s.container.Operators.ListAll()})
}

type invokeRequest struct {
	Input     map[string]interface{} `json:"input"`
	TimeoutMS int                     `json:"timeout_ms"`
}

// handleOperatorInvoke implements POST /api/operators/{name}/invoke.
// name addresses an operator by its content-hash OperatorID.
func (s *Server) handleOperatorInvoke(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	name := mux.Vars(r)["name"]
	if !s.authorize(w, ac, policy.ResourceOperator, name, policy.LevelExecute) {
		return
	}

	var req invokeRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	timeout := 30 * time.Second
	if req.TimeoutMS > 0 {
		timeout = time.Duration(req.TimeoutMS) * time.Millisecond
	}

	inv := s.container.Operators.Invoke(r.Context(), name, req.Input, timeout, actorContext(ac))
	writeJSON(w, http.StatusOK, map[string]interface{}{"operator": name, "result": inv})
}
