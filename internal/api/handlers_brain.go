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

	"github.com/google/uuid"

	"controlplane/internal/apierr"
	"controlplane/internal/auth"
	"controlplane/internal/dispatcher"
	"controlplane/internal/policy"
)

type thinkRequest struct {
	Type    string                 `json:"type"`
	Content map[string]interface{} `json:"content"`
	Context map[string]interface{} `json:"context"`
}

// handleBrainThink implements POST /api/brain/think.
func (s *Server) handleBrainThink(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	if !s.authorize(w, ac, policy.ResourceSystem, "brain", policy.LevelExecute) {
		return
	}

	var req thinkRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		apierr.BadRequest(w, "type is required")
		return
	}

	// Think receives the thought by value, so the id and timestamp the
	// response reports are assigned here before the call.
	thought := dispatcher.Thought{
		ThoughtID:   "thought_" + uuid.NewString()[:12],
		Type:        dispatcher.Type(req.Type),
		Content:     req.Content,
		Context:     req.Context,
		ProcessedAt: time.Now(),
	}
	result, err := s.container.Brain.Think(r.Context(), thought, actorContext(ac))
	if err != nil {
		apierr.BadRequest(w, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"thought_id":   thought.ThoughtID,
		"result":       result,
		"processed_at": thought.ProcessedAt.Format(httpTimeFormat),
	})
}

type createGoalRequest struct {
	Description string `json:"description"`
	Priority    int    `json:"priority"`
}

// handleBrainGoals implements POST /api/brain/goals.
func (s *Server) handleBrainGoals(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}

	var req createGoalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Description == "" {
		apierr.BadRequest(w, "description is required")
		return
	}

	g := s.container.Brain.CreateGoal(req.Description, req.Priority)
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"goal_id":     g.GoalID,
		"description": g.Description,
	})
}
