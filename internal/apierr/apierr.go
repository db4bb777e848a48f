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

// Package apierr centralizes the HTTP error envelope (spec.md §7's wire
// convention) instead of scattering http.Error calls across handlers.
package apierr

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// envelope is the wire shape every error response uses: {"error": "<message>"}.
type envelope struct {
	Error string `json:"error"`
}

// Write sends status with message wrapped in the error envelope.
func Write(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: message})
}

// BadRequest writes a 400 with a precise field-level message.
func BadRequest(w http.ResponseWriter, message string) {
	Write(w, http.StatusBadRequest, message)
}

// Unauthenticated writes a 401; spec.md §7 names "Authentication
// required" and "Invalid credentials" as its two literal messages.
func Unauthenticated(w http.ResponseWriter, message string) {
	Write(w, http.StatusUnauthorized, message)
}

// Forbidden writes a 403 carrying a policy or kernel denial reason.
func Forbidden(w http.ResponseWriter, reason string) {
	Write(w, http.StatusForbidden, reason)
}

// NotFound writes a 404 for a missing resource.
func NotFound(w http.ResponseWriter, message string) {
	Write(w, http.StatusNotFound, message)
}

// RateLimited writes a 429 with the Retry-After header spec.md §7
// requires (60s, matching the policy engine's rate-limit window).
func RateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	Write(w, http.StatusTooManyRequests, "rate limit exceeded")
}

// Internal writes a 500 with a sanitized message — callers must never
// pass a raw error's message here if it might leak internals.
func Internal(w http.ResponseWriter, message string) {
	if message == "" {
		message = "internal server error"
	}
	Write(w, http.StatusInternalServerError, message)
}

// Recover returns middleware that converts any panic in next into a
// sanitized 500, per spec.md §7's "HTTP layer maps exceptions to 500"
// propagation policy. The panic value itself is logged by the caller's
// logger, never echoed to the client.
func Recover(onPanic func(recovered interface{})) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if onPanic != nil {
						onPanic(rec)
					}
					Internal(w, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
