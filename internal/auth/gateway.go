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

package auth

import (
	"fmt"
	"sync"
	"time"

	"controlplane/internal/policy"
)

// AuthContext is the per-request authenticated identity.
type AuthContext struct {
	KeyID     string
	OwnerID   string
	PolicyID  string
	Scope     KeyScope
	IP        string
	UserAgent string
}

// Gateway is the single-entry authentication surface of spec.md §4.3:
// it turns an api key or bearer token into an AuthContext, and
// delegates access checks to the policy engine.
type Gateway struct {
	keys     *KeyManager
	policies *policy.Engine
	secret   []byte
	tokenTTL time.Duration

	mu     sync.Mutex
	limits map[string]*rateWindow // key_id -> sliding window counters
}

type rateWindow struct {
	minuteCount, hourCount, dayCount int
	minuteReset, hourReset, dayReset time.Time
}

// NewGateway constructs a Gateway. secret is the JWT_SECRET material
// used to sign/verify bearer tokens (see internal/app for the
// production fail-fast validation of this value).
func NewGateway(keys *KeyManager, policies *policy.Engine, secret []byte) *Gateway {
	return &Gateway{
		keys: keys, policies: policies, secret: secret,
		tokenTTL: time.Hour,
		limits:   make(map[string]*rateWindow),
	}
}

// Authenticate resolves an AuthContext from an api key or bearer
// token. If both are present, the api key wins. Bearer tokens are
// decoded, checked for expiry, and their backing key is re-validated —
// a token whose key has since been revoked or suspended is rejected
// even though the token's own embedded expiry has not elapsed.
func (g *Gateway) Authenticate(apiKey, bearerToken string) (*AuthContext, error) {
	if apiKey != "" {
		key, reason := g.keys.VerifyKey(apiKey)
		if key == nil {
			return nil, fmt.Errorf("invalid credentials: %s", reason)
		}
		g.keys.RecordUsage(key.KeyID)
		return &AuthContext{KeyID: key.KeyID, OwnerID: key.OwnerID, PolicyID: key.PolicyID, Scope: key.Scope}, nil
	}

	if bearerToken != "" {
		tok, err := DecodeAuthToken(bearerToken, g.secret)
		if err != nil {
			return nil, fmt.Errorf("invalid credentials: %w", err)
		}
		if tok.IsExpired() {
			return nil, fmt.Errorf("invalid credentials: token expired")
		}
		key, ok := g.keys.GetKey(tok.KeyID)
		if !ok {
			return nil, fmt.Errorf("invalid credentials: backing key not found")
		}
		if valid, reason := key.IsValid(); !valid {
			return nil, fmt.Errorf("invalid credentials: %s", reason)
		}
		g.keys.RecordUsage(key.KeyID)
		return &AuthContext{KeyID: key.KeyID, OwnerID: key.OwnerID, PolicyID: key.PolicyID, Scope: key.Scope}, nil
	}

	return nil, fmt.Errorf("authentication required")
}

// CreateToken mints and signs a fresh AuthToken for an AuthContext.
func (g *Gateway) CreateToken(ctx *AuthContext) (string, time.Duration, error) {
	tok := NewAuthToken(ctx.KeyID, ctx.OwnerID, ctx.PolicyID, ctx.Scope, g.tokenTTL)
	signed, err := tok.Encode(g.secret)
	return signed, g.tokenTTL, err
}

// RefreshToken re-validates the backing key and mints a new token.
func (g *Gateway) RefreshToken(bearerToken string) (string, time.Duration, error) {
	tok, err := DecodeAuthToken(bearerToken, g.secret)
	if err != nil {
		return "", 0, err
	}
	key, ok := g.keys.GetKey(tok.KeyID)
	if !ok {
		return "", 0, fmt.Errorf("backing key not found")
	}
	if valid, reason := key.IsValid(); !valid {
		return "", 0, fmt.Errorf("key no longer valid: %s", reason)
	}
	return g.CreateToken(&AuthContext{KeyID: key.KeyID, OwnerID: key.OwnerID, PolicyID: key.PolicyID, Scope: key.Scope})
}

// CheckAccess delegates to the policy engine on the context's policy id.
func (g *Gateway) CheckAccess(ctx *AuthContext, rt policy.ResourceType, resourceID string, required policy.Level) (bool, string) {
	return g.policies.CheckAccess(ctx.PolicyID, rt, resourceID, required, policy.Context{IP: ctx.IP})
}

// Authorize is an alias kept for readability at call sites that assert
// rather than merely check ("authorize this write", vs "can they read").
func (g *Gateway) Authorize(ctx *AuthContext, rt policy.ResourceType, resourceID string, required policy.Level) (bool, string) {
	return g.CheckAccess(ctx, rt, resourceID, required)
}

// CheckRateLimit maintains a sliding-window counter per key_id across
// minute/hour/day windows. Windows reset lazily when they elapse. The
// first request past any limit is rejected without incrementing that
// window further (decrements are never required).
func (g *Gateway) CheckRateLimit(ctx *AuthContext, limits policy.RateLimit) (bool, string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	w, ok := g.limits[ctx.KeyID]
	now := time.Now()
	if !ok {
		w = &rateWindow{minuteReset: now.Add(time.Minute), hourReset: now.Add(time.Hour), dayReset: now.Add(24 * time.Hour)}
		g.limits[ctx.KeyID] = w
	}

	if now.After(w.minuteReset) {
		w.minuteCount = 0
		w.minuteReset = now.Add(time.Minute)
	}
	if now.After(w.hourReset) {
		w.hourCount = 0
		w.hourReset = now.Add(time.Hour)
	}
	if now.After(w.dayReset) {
		w.dayCount = 0
		w.dayReset = now.Add(24 * time.Hour)
	}

	if limits.PerMinute > 0 && w.minuteCount >= limits.PerMinute {
		return false, "rate limit exceeded (per-minute)"
	}
	if limits.PerHour > 0 && w.hourCount >= limits.PerHour {
		return false, "rate limit exceeded (per-hour)"
	}
	if limits.PerDay > 0 && w.dayCount >= limits.PerDay {
		return false, "rate limit exceeded (per-day)"
	}

	w.minuteCount++
	w.hourCount++
	w.dayCount++
	return true, "OK"
}
