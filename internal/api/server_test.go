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
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"controlplane/internal/app"
)

const testMasterKey = "ectl_master_test-only-secret-do-not-use"

func testContainer(t *testing.T) (*app.Container, string) {
	t.Helper()
	sum := sha256.Sum256([]byte(testMasterKey))
	cfg := &app.Config{
		Environment:           "development",
		Port:                  "0",
		JWTSecret:             []byte("test-signing-secret-at-least-32-bytes!!"),
		MasterKeyHash:         hex.EncodeToString(sum[:]),
		OperatorCatalogDriver: "file",
		OperatorCatalogPath:   filepath.Join(t.TempDir(), "operators.catalog.json"),
		TabularDriver:         "postgres",
		MemoryStoreDriver:     "memory",
		ReadTimeoutSeconds:    15,
		WriteTimeoutSeconds:   30,
	}
	c, err := app.NewContainer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, testMasterKey
}

func doJSON(t *testing.T, h http.Handler, method, path, apiKey string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth_RespondsWithoutAuth(t *testing.T) {
	c, _ := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestLogin_IssuesTokenForMasterKey(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/auth/login", "", map[string]string{"api_key": masterKey})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["token"])
	assert.NotEmpty(t, body["session_id"])
	assert.Equal(t, "master", body["scope"])
}

func TestLogin_RejectsUnknownKey(t *testing.T) {
	c, _ := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/auth/login", "", map[string]string{"api_key": "ectl_user_not-a-real-key"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKeysCollection_RequiresAuth(t *testing.T) {
	c, _ := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/keys", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestKeysCollection_MasterCanCreateAndListKeys(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	createRec := doJSON(t, s.Handler(), http.MethodPost, "/api/keys", masterKey, map[string]interface{}{
		"scope": "user", "name": "ci-bot",
	})
	require.Equal(t, http.StatusCreated, createRec.Code)

	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	assert.NotEmpty(t, created["api_key"])
	assert.NotEmpty(t, created["key_id"])

	listRec := doJSON(t, s.Handler(), http.MethodGet, "/api/keys", masterKey, nil)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listed map[string]interface{}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listed))
	keys, ok := listed["keys"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, keys)
}

func TestKeyByID_MasterCanRevoke(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	createRec := doJSON(t, s.Handler(), http.MethodPost, "/api/keys", masterKey, map[string]interface{}{"scope": "user"})
	require.Equal(t, http.StatusCreated, createRec.Code)
	var created map[string]interface{}
	require.NoError(t, json.Unmarshal(createRec.Body.Bytes(), &created))
	keyID := created["key_id"].(string)

	revokeRec := doJSON(t, s.Handler(), http.MethodDelete, "/api/keys/"+keyID, masterKey, nil)
	require.Equal(t, http.StatusOK, revokeRec.Code)

	var revoked map[string]interface{}
	require.NoError(t, json.Unmarshal(revokeRec.Body.Bytes(), &revoked))
	assert.Equal(t, "revoked", revoked["status"])
}

func TestPoliciesCollection_MasterCanCreatePolicy(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/policies", masterKey, map[string]interface{}{
		"name":        "read-only-reports",
		"description": "read access to reports",
		"permissions": []map[string]interface{}{
			{"resource_type": "system", "level": "read"},
		},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body["policy_id"], "pol_")
}

func TestBrainThink_RoutesQueryThought(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/brain/think", masterKey, map[string]interface{}{
		"type":    "query",
		"content": map[string]interface{}{"query": "hello"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["thought_id"])
}

func TestNetworkSlots_ListsCreatedSlots(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	c.Network.CreateSlot("test", nil, nil)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/network/slots", masterKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	slots, ok := body["slots"].([]interface{})
	require.True(t, ok)
	assert.Len(t, slots, 1)
}

func TestDiscoveryDiscover_ReportsSourcesProbed(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodPost, "/api/discovery/discover", masterKey, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["discovery_complete"])
	assert.Equal(t, float64(0), body["sources_probed"])
}

func TestMemoryStoreAndRecall_RoundTrips(t *testing.T) {
	c, masterKey := testContainer(t)
	s := NewServer(c)

	storeRec := doJSON(t, s.Handler(), http.MethodPost, "/api/memory/store", masterKey, map[string]interface{}{
		"type":       "fact",
		"content":    map[string]interface{}{"text": "the sky is blue"},
		"tags":       []string{"color"},
		"importance": 0.5,
	})
	require.Equal(t, http.StatusCreated, storeRec.Code)

	recallRec := doJSON(t, s.Handler(), http.MethodPost, "/api/memory/recall", masterKey, map[string]interface{}{
		"tags": []string{"color"},
	})
	require.Equal(t, http.StatusOK, recallRec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(recallRec.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
}

func TestOperatorsList_RequiresAuth(t *testing.T) {
	c, _ := testContainer(t)
	s := NewServer(c)

	rec := doJSON(t, s.Handler(), http.MethodGet, "/api/operators", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
