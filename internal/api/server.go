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

// Package api wires the composition root's subsystems to the HTTP
// surface of spec.md §6: one gorilla/mux router, rs/cors preflight
// handling, Prometheus instrumentation, and a uniform apierr envelope
// on every failure path.
package api

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"controlplane/internal/apierr"
	"controlplane/internal/app"
)

// Server owns the HTTP router and every handler's dependencies.
type Server struct {
	container *app.Container
	router    *mux.Router
}

// NewServer builds the full route table against container.
func NewServer(container *app.Container) *Server {
	s := &Server{container: container, router: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the fully wrapped http.Handler (CORS + security
// headers + panic recovery), suitable for http.ListenAndServe.
func (s *Server) Handler() http.Handler {
	origins := s.container.Config.CORSAllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "X-API-Key", "Content-Type"},
		AllowCredentials: true,
	})
	recovered := apierr.Recover(func(rec interface{}) {
		log.Printf("api: recovered panic: %v", rec)
	})(s.router)
	return c.Handler(securityHeaders(recovered))
}

// ListenAndServe starts the HTTP server on cfg.Port with the
// read/write timeouts named in the environment.
func (s *Server) ListenAndServe() error {
	cfg := s.container.Config
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      s.Handler(),
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) routes() {
	r := s.router

	r.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	r.HandleFunc("/api/auth/login", s.handleLogin).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/logout", s.requireAuth(s.handleLogout)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/auth/refresh", s.requireAuth(s.handleRefresh)).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/keys", s.requireAuth(s.handleKeysCollection)).Methods("GET", "POST", "OPTIONS")
	r.HandleFunc("/api/keys/{id}", s.requireAuth(s.handleKeyByID)).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/api/policies", s.requireAuth(s.handlePoliciesCollection)).Methods("GET", "POST", "OPTIONS")

	r.HandleFunc("/api/kernel/policies", s.requireAuth(s.handleKernelPoliciesCollection)).Methods("GET", "POST", "OPTIONS")
	r.HandleFunc("/api/kernel/policies/{id}", s.requireAuth(s.handleKernelPolicyByID)).Methods("GET", "PATCH", "DELETE", "OPTIONS")

	r.HandleFunc("/api/brain/think", s.requireAuth(s.handleBrainThink)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/brain/goals", s.requireAuth(s.handleBrainGoals)).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/network/slots", s.requireAuth(s.handleNetworkSlots)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/network/signal", s.requireAuth(s.handleNetworkSignal)).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/discovery/capabilities", s.requireAuth(s.handleDiscoveryCapabilities)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/discovery/discover", s.requireAuth(s.handleDiscoveryDiscover)).Methods("POST", "OPTIONS")

	r.HandleFunc("/api/memory/store", s.requireAuth(s.handleMemoryStore)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/memory/recall", s.requireAuth(s.handleMemoryRecall)).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/memory/stats", s.requireAuth(s.handleMemoryStats)).Methods("GET", "OPTIONS")

	r.HandleFunc("/api/operators", s.requireAuth(s.handleOperatorsList)).Methods("GET", "OPTIONS")
	r.HandleFunc("/api/operators/{name}/invoke", s.requireAuth(s.handleOperatorInvoke)).Methods("POST", "OPTIONS")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   serviceVersion,
	})
}
