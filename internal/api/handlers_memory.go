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
	"controlplane/internal/memory"
)

type storeMemoryRequest struct {
	Type       string                 `json:"type"`
	Content    map[string]interface{} `json:"content"`
	Tags       []string               `json:"tags"`
	Importance float64                `json:"importance"`
}

// handleMemoryStore implements POST /api/memory/store.
func (s *Server) handleMemoryStore(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}

	var req storeMemoryRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		apierr.BadRequest(w, "type is required")
		return
	}

	m, err := s.container.Memories.Store(memory.Type(req.Type), req.Content, req.Tags, req.Importance, actorContext(ac))
	if err != nil {
		apierr.Forbidden(w, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

type recallRequest struct {
	Query string   `json:"query"`
	Tags  []string `json:"tags"`
	Type  string   `json:"type"`
	Limit int      `json:"limit"`
}

// handleMemoryRecall implements POST /api/memory/recall: recall by
// tags when tags is non-empty, else falls back to query recall.
func (s *Server) handleMemoryRecall(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}

	var req recallRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var results []*memory.Memory
	if len(req.Tags) > 0 {
		results = s.container.Memories.RecallByTags(req.Tags, memory.Type(req.Type), limit)
	} else {
		results = s.container.Memories.RecallByQuery(req.Query, limit)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"memories": results, "count": len(results)})
}

// handleMemoryStats implements GET /api/memory/stats.
func (s *Server) handleMemoryStats(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	writeJSON(w, http.StatusOK, s.container.Memories.Stats())
}
