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

// Package auth implements the key manager, session manager and
// authentication gateway of spec.md §4.3.
package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// rawKeyPrefix is the neutral literal prefix for issued raw secrets:
// <prefix>_<scope>_<base64url(24 bytes)>. The original product prefix
// ("fgk_") is intentionally not carried over.
const rawKeyPrefix = "ectl"

// KeyScope is the scope of an API key.
type KeyScope string

const (
	ScopeMaster   KeyScope = "master"
	ScopeAdmin    KeyScope = "admin"
	ScopeUser     KeyScope = "user"
	ScopeService  KeyScope = "service"
	ScopeReadonly KeyScope = "readonly"
	ScopeCustom   KeyScope = "custom"
)

// KeyStatus is the lifecycle state of an API key.
type KeyStatus string

const (
	StatusActive    KeyStatus = "active"
	StatusSuspended KeyStatus = "suspended"
	StatusRevoked   KeyStatus = "revoked"
	StatusExpired   KeyStatus = "expired"
)

// APIKey is the persisted record for an issued key. The raw secret is
// never stored, only its sha-256 hash and a non-secret 16-char prefix
// for display/identification.
type APIKey struct {
	KeyID      string
	KeyHash    string
	KeyPrefix  string
	OwnerID    string
	OwnerEmail string
	PolicyID   string
	Scope      KeyScope
	Status     KeyStatus
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
	UseCount   int
	Name       string
	Description string
}

// IsValid reports whether the key may currently be used.
func (k *APIKey) IsValid() (bool, string) {
	switch k.Status {
	case StatusRevoked:
		return false, "Key has been revoked"
	case StatusSuspended:
		return false, "Key is suspended"
	case StatusExpired:
		return false, "Key has expired"
	}
	if k.ExpiresAt != nil && time.Now().After(*k.ExpiresAt) {
		return false, "Key has expired"
	}
	return true, "OK"
}

// Verify checks a raw secret against this key's hash in constant time.
func (k *APIKey) Verify(raw string) bool {
	sum := sha256.Sum256([]byte(raw))
	computed := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(computed), []byte(k.KeyHash)) == 1
}

// KeyManager owns API key issuance, verification and lifecycle
// transitions. Revocation is terminal: a revoked key's hash is removed
// from the lookup table permanently, so no raw secret re-verifies
// after revoke, even a rotated predecessor's secret.
type KeyManager struct {
	mu         sync.RWMutex
	byID       map[string]*APIKey
	byHash     map[string]string // hash -> key_id
	idSeq      uint64
	policyExists func(policyID string) bool
}

// NewKeyManager constructs a KeyManager. policyExists is consulted by
// CreateKey to enforce that keys only reference real policies.
func NewKeyManager(policyExists func(string) bool) *KeyManager {
	return &KeyManager{
		byID:         make(map[string]*APIKey),
		byHash:       make(map[string]string),
		policyExists: policyExists,
	}
}

func generateRawKey(scope KeyScope) (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%s", rawKeyPrefix, scope, base64.RawURLEncoding.EncodeToString(buf)), nil
}

// CreateKey issues a new key for owner under policyID/scope. The raw
// secret is returned exactly once; only its hash is retained.
func (m *KeyManager) CreateKey(owner, policyID string, scope KeyScope, ownerEmail string, expiresInDays int, name, description string) (*APIKey, string, error) {
	if m.policyExists != nil && !m.policyExists(policyID) {
		return nil, "", fmt.Errorf("policy not found: %s", policyID)
	}

	raw, err := generateRawKey(scope)
	if err != nil {
		return nil, "", fmt.Errorf("generating key: %w", err)
	}
	sum := sha256.Sum256([]byte(raw))
	hash := hex.EncodeToString(sum[:])
	prefix := raw
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}

	m.mu.Lock()
	m.idSeq++
	keyID := fmt.Sprintf("key_%08x", m.idSeq)
	var expiresAt *time.Time
	if expiresInDays > 0 {
		t := time.Now().Add(time.Duration(expiresInDays) * 24 * time.Hour)
		expiresAt = &t
	}

	key := &APIKey{
		KeyID: keyID, KeyHash: hash, KeyPrefix: prefix,
		OwnerID: owner, OwnerEmail: ownerEmail,
		PolicyID: policyID, Scope: scope, Status: StatusActive,
		CreatedAt: time.Now(), ExpiresAt: expiresAt,
		Name: name, Description: description,
	}
	m.byID[keyID] = key
	m.byHash[hash] = keyID
	m.mu.Unlock()

	return key, raw, nil
}

// VerifyKey hashes raw, looks it up, and validates status/expiry.
func (m *KeyManager) VerifyKey(raw string) (*APIKey, string) {
	if raw == "" || len(raw) < len(rawKeyPrefix)+1 || raw[:len(rawKeyPrefix)] != rawKeyPrefix {
		return nil, "Invalid key format"
	}
	sum := sha256.Sum256([]byte(raw))
	hash := hex.EncodeToString(sum[:])

	m.mu.RLock()
	keyID, ok := m.byHash[hash]
	var key *APIKey
	if ok {
		key = m.byID[keyID]
	}
	m.mu.RUnlock()

	if key == nil {
		return nil, "Key not found"
	}
	if !hmac.Equal([]byte(key.KeyHash), []byte(hash)) {
		return nil, "Key not found"
	}
	if valid, reason := key.IsValid(); !valid {
		return nil, reason
	}
	return key, "OK"
}

// GetKey fetches a key by id.
func (m *KeyManager) GetKey(keyID string) (*APIKey, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.byID[keyID]
	return k, ok
}

// ListKeys returns keys matching the given optional filters.
func (m *KeyManager) ListKeys(owner string, scope *KeyScope, status *KeyStatus) []*APIKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*APIKey, 0, len(m.byID))
	for _, k := range m.byID {
		if owner != "" && k.OwnerID != owner {
			continue
		}
		if scope != nil && k.Scope != *scope {
			continue
		}
		if status != nil && k.Status != *status {
			continue
		}
		out = append(out, k)
	}
	return out
}

// RotateKey atomically issues a successor with identical
// owner/policy/scope and revokes the predecessor.
func (m *KeyManager) RotateKey(keyID string) (*APIKey, string, error) {
	old, ok := m.GetKey(keyID)
	if !ok {
		return nil, "", fmt.Errorf("key not found: %s", keyID)
	}

	next, raw, err := m.CreateKey(old.OwnerID, old.PolicyID, old.Scope, old.OwnerEmail, 0, old.Name+" (rotated)", old.Description)
	if err != nil {
		return nil, "", err
	}
	if err := m.RevokeKey(keyID); err != nil {
		return nil, "", err
	}
	return next, raw, nil
}

// RevokeKey marks a key REVOKED and removes it from the hash lookup
// table permanently (it is kept in byID for audit visibility).
func (m *KeyManager) RevokeKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byID[keyID]
	if !ok {
		return fmt.Errorf("key not found: %s", keyID)
	}
	k.Status = StatusRevoked
	delete(m.byHash, k.KeyHash)
	return nil
}

// SuspendKey marks a key SUSPENDED (reversible via ReactivateKey).
func (m *KeyManager) SuspendKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byID[keyID]
	if !ok {
		return fmt.Errorf("key not found: %s", keyID)
	}
	k.Status = StatusSuspended
	return nil
}

// ReactivateKey restores a SUSPENDED key to ACTIVE. Revoked keys can
// never be reactivated.
func (m *KeyManager) ReactivateKey(keyID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.byID[keyID]
	if !ok {
		return fmt.Errorf("key not found: %s", keyID)
	}
	if k.Status == StatusRevoked {
		return fmt.Errorf("cannot reactivate a revoked key")
	}
	k.Status = StatusActive
	return nil
}

// SeedMasterKey registers a pre-existing key hash under ScopeMaster,
// used at startup to install the MASTER_KEY_HASH-configured root key
// whose raw secret is provisioned out-of-band and never seen by this
// process. policyID is typically policy.PolicyMaster.
func (m *KeyManager) SeedMasterKey(hash, policyID string) *APIKey {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := hash
	if len(prefix) > 16 {
		prefix = prefix[:16]
	}
	key := &APIKey{
		KeyID: "key_master", KeyHash: hash, KeyPrefix: prefix,
		OwnerID: "system", PolicyID: policyID, Scope: ScopeMaster,
		Status: StatusActive, CreatedAt: time.Now(),
		Name: "Seeded master key",
	}
	m.byID[key.KeyID] = key
	m.byHash[hash] = key.KeyID
	return key
}

// RecordUsage bumps use_count/last_used_at for a key.
func (m *KeyManager) RecordUsage(keyID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if k, ok := m.byID[keyID]; ok {
		now := time.Now()
		k.LastUsedAt = &now
		k.UseCount++
	}
}
