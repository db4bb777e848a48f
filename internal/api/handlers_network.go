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
	"controlplane/internal/network"
	"controlplane/internal/policy"
)

// handleNetworkSlots implements GET /api/network/slots.
func (s *Server) handleNetworkSlots(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"slots": s.container.Network.ListSlots(),
		"state": s.container.Network.GetState(),
	})
}

type sendSignalRequest struct {
	Type    string                 `json:"type"`
	Payload map[string]interface{} `json:"payload"`
	Source  string                 `json:"source"`
	Target  string                 `json:"target"`
}

// handleNetworkSignal implements POST /api/network/signal.
func (s *Server) handleNetworkSignal(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	if !s.authorize(w, ac, policy.ResourceNetwork, "", policy.LevelExecute) {
		return
	}

	var req sendSignalRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Type == "" {
		apierr.BadRequest(w, "type is required")
		return
	}

	signalID := "sig_" + uuid.NewString()[:12]
	s.container.Network.SendSignal(&network.Signal{
		SignalID:   signalID,
		Type:       network.SignalType(req.Type),
		SourceSlot: req.Source,
		TargetSlot: req.Target,
		Payload:    req.Payload,
		Timestamp:  time.Now(),
		TTL:        5,
	})
	writeJSON(w, http.StatusOK, map[string]interface{}{"signal_id": signalID, "emitted": true})
}
