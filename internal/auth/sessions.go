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
	"encoding/json"
	"sync"
	"time"
)

// Session is a stateful, TTL-bound record created on login.
type Session struct {
	SessionID    string
	KeyID        string
	OwnerID      string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	LastActivity time.Time
	Data         map[string]interface{}
	RequestCount int
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

func (s *Session) touch() {
	s.LastActivity = time.Now()
	s.RequestCount++
}

// SessionStore is the KV backing interface a SessionManager may use
// for durability (§6 storage adapter contract, KV shape).
type SessionStore interface {
	Set(key string, value []byte, ttl time.Duration) error
	Get(key string) ([]byte, bool)
	Delete(key string) error
}

const defaultSessionTTL = time.Hour

// SessionManager manages session lifecycle. An in-memory cache always
// exists; an optional SessionStore provides durability (e.g. the Redis
// KV adapter in internal/storage).
type SessionManager struct {
	mu         sync.Mutex
	sessions   map[string]*Session
	store      SessionStore
	defaultTTL time.Duration
}

// NewSessionManager constructs a SessionManager. store may be nil for
// pure in-memory operation (used in tests and single-process defaults).
func NewSessionManager(store SessionStore) *SessionManager {
	return &SessionManager{
		sessions:   make(map[string]*Session),
		store:      store,
		defaultTTL: defaultSessionTTL,
	}
}

func newSessionID() string {
	buf := make([]byte, 16) // 128 bits of entropy per spec.md §4.3
	_, _ = rand.Read(buf)
	return "sess_" + hex.EncodeToString(buf)
}

// CreateSession starts a new session for keyID/ownerID.
func (m *SessionManager) CreateSession(keyID, ownerID string, ttl time.Duration, data map[string]interface{}) *Session {
	if ttl <= 0 {
		ttl = m.defaultTTL
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	now := time.Now()
	s := &Session{
		SessionID: newSessionID(), KeyID: keyID, OwnerID: ownerID,
		CreatedAt: now, ExpiresAt: now.Add(ttl), LastActivity: now,
		Data: data,
	}

	m.mu.Lock()
	m.sessions[s.SessionID] = s
	m.mu.Unlock()

	m.persist(s)
	return s
}

// persist mirrors a session to the durable store, if one is attached.
// Failures are swallowed: the in-memory cache remains authoritative
// within this process, and a durability gap only matters on restart.
func (m *SessionManager) persist(s *Session) {
	if m.store == nil {
		return
	}
	body, err := json.Marshal(s)
	if err != nil {
		return
	}
	_ = m.store.Set(s.SessionID, body, time.Until(s.ExpiresAt))
}

// loadFromStore fetches and unmarshals a session from the durable
// store, used by GetSession as a fallback when the in-memory cache
// missed (e.g. after a process restart).
func (m *SessionManager) loadFromStore(sessionID string) (*Session, bool) {
	if m.store == nil {
		return nil, false
	}
	raw, ok := m.store.Get(sessionID)
	if !ok {
		return nil, false
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, false
	}
	if s.IsExpired() {
		_ = m.store.Delete(sessionID)
		return nil, false
	}
	return &s, true
}

// GetSession fetches a live session, checking the in-memory cache
// first and evicting it if expired.
func (m *SessionManager) GetSession(sessionID string) (*Session, bool) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok && s.IsExpired() {
		delete(m.sessions, sessionID)
		ok = false
	}
	m.mu.Unlock()
	if ok {
		return s, true
	}

	loaded, ok := m.loadFromStore(sessionID)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	m.sessions[sessionID] = loaded
	m.mu.Unlock()
	return loaded, true
}

// TouchSession updates last-activity / request-count on a session.
func (m *SessionManager) TouchSession(sessionID string) bool {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return false
	}
	m.mu.Lock()
	s.touch()
	m.mu.Unlock()
	m.persist(s)
	return true
}

// ExtendSession pushes the expiry forward by extraTTL (or the default).
func (m *SessionManager) ExtendSession(sessionID string, extraTTL time.Duration) bool {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return false
	}
	if extraTTL <= 0 {
		extraTTL = m.defaultTTL
	}
	m.mu.Lock()
	s.ExpiresAt = time.Now().Add(extraTTL)
	s.touch()
	m.mu.Unlock()
	m.persist(s)
	return true
}

// DeleteSession removes a session from both the cache and the durable
// store.
func (m *SessionManager) DeleteSession(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if m.store != nil {
		_ = m.store.Delete(sessionID)
	}
}

// SetData/GetData manipulate a session's opaque data map.
func (m *SessionManager) SetData(sessionID, key string, value interface{}) bool {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return false
	}
	m.mu.Lock()
	s.Data[key] = value
	m.mu.Unlock()
	m.persist(s)
	return true
}

func (m *SessionManager) GetData(sessionID, key string) (interface{}, bool) {
	s, ok := m.GetSession(sessionID)
	if !ok {
		return nil, false
	}
	m.mu.Lock()
	v, ok := s.Data[key]
	m.mu.Unlock()
	return v, ok
}

// ListSessions returns non-expired sessions, optionally filtered by owner.
func (m *SessionManager) ListSessions(owner string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		if s.IsExpired() {
			continue
		}
		if owner != "" && s.OwnerID != owner {
			continue
		}
		out = append(out, s)
	}
	return out
}

// CleanupExpired removes expired sessions from the cache and returns
// the number removed.
func (m *SessionManager) CleanupExpired() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, s := range m.sessions {
		if s.IsExpired() {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}
