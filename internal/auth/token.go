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
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthToken is the short-lived signed envelope minted from a valid
// key. It round-trips through Encode/Decode: decoding an un-expired,
// correctly-signed token reproduces the same fields.
type AuthToken struct {
	TokenID   string
	KeyID     string
	OwnerID   string
	PolicyID  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Scope     KeyScope
}

type tokenClaims struct {
	TokenID  string `json:"token_id"`
	KeyID    string `json:"key_id"`
	OwnerID  string `json:"owner_id"`
	PolicyID string `json:"policy_id"`
	Scope    string `json:"scope"`
	jwt.RegisteredClaims
}

func newTokenID() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return "tok_" + hex.EncodeToString(buf)
}

// NewAuthToken builds an unsigned token envelope valid for ttl.
func NewAuthToken(keyID, ownerID, policyID string, scope KeyScope, ttl time.Duration) *AuthToken {
	now := time.Now()
	return &AuthToken{
		TokenID: newTokenID(), KeyID: keyID, OwnerID: ownerID, PolicyID: policyID,
		IssuedAt: now, ExpiresAt: now.Add(ttl), Scope: scope,
	}
}

// Encode signs the token with secret using HS256.
func (t *AuthToken) Encode(secret []byte) (string, error) {
	claims := tokenClaims{
		TokenID: t.TokenID, KeyID: t.KeyID, OwnerID: t.OwnerID, PolicyID: t.PolicyID,
		Scope: string(t.Scope),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(t.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// DecodeAuthToken verifies and parses a signed token. An expired or
// invalid-signature token yields (nil, err); callers must not treat a
// decode error as anything other than "not authenticated".
func DecodeAuthToken(raw string, secret []byte) (*AuthToken, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("token expired")
		}
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	var issuedAt, expiresAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}

	return &AuthToken{
		TokenID: claims.TokenID, KeyID: claims.KeyID, OwnerID: claims.OwnerID,
		PolicyID: claims.PolicyID, Scope: KeyScope(claims.Scope),
		IssuedAt: issuedAt, ExpiresAt: expiresAt,
	}, nil
}

// IsExpired reports whether the token's embedded expiry has passed.
func (t *AuthToken) IsExpired() bool {
	return time.Now().After(t.ExpiresAt)
}
