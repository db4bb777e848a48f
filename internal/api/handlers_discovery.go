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

	"controlplane/internal/auth"
	"controlplane/internal/discovery"
	"controlplane/internal/policy"
)

// handleDiscoveryCapabilities implements GET /api/discovery/capabilities.
func (s *Server) handleDiscoveryCapabilities(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}

	q := r.URL.Query()
	caps := s.container.Discovery.SearchCapabilities(q.Get("query"), discovery.CapabilityType(q.Get("type")))
	writeJSON(w, http.StatusOK, map[string]interface{}{"capabilities": caps})
}

// handleDiscoveryDiscover implements POST /api/discovery/discover.
func (s *Server) handleDiscoveryDiscover(w http.ResponseWriter, r *http.Request, ac *auth.AuthContext) {
	if !s.checkRateLimit(w, ac) {
		return
	}
	if !s.authorize(w, ac, policy.ResourceSystem, "discovery", policy.LevelAdmin) {
		return
	}

	sourcesProbed, totalCapabilities := s.container.Discovery.DiscoverAll(r.Context(), actorContext(ac))
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"discovery_complete": true,
		"sources_probed":     sourcesProbed,
		"total_capabilities": totalCapabilities,
	})
}
