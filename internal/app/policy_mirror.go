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

package app

import (
	"context"
	"encoding/json"
	"fmt"

	"controlplane/internal/policy"
	"controlplane/internal/storage"
)

// PolicyMirror wraps a policy.Engine with a durable write-through
// mirror on a Tabular backend. The engine itself stays exactly what
// spec.md §4.1 calls it: deterministic, no I/O. Persistence is bolted
// on here at the composition root instead, so CheckAccess and the rest
// of the hot path never touch a database.
type PolicyMirror struct {
	*policy.Engine
	db     storage.Tabular
	driver string
}

const createPolicyMirrorTable = `CREATE TABLE IF NOT EXISTS policy_mirror (
	policy_id VARCHAR(64) PRIMARY KEY,
	body TEXT NOT NULL
)`

// NewPolicyMirror constructs the mirror, creating its backing table if
// needed, and replays any previously persisted policies into engine
// (on top of engine's own seeded defaults, which a persisted row with
// the same id silently overwrites).
func NewPolicyMirror(ctx context.Context, engine *policy.Engine, db storage.Tabular, driver string) (*PolicyMirror, error) {
	m := &PolicyMirror{Engine: engine, db: db, driver: driver}

	if res := db.Execute(ctx, createPolicyMirrorTable, nil); !res.Success {
		return nil, fmt.Errorf("create policy_mirror table: %s", res.Error)
	}

	res := db.Execute(ctx, "SELECT body FROM policy_mirror", nil)
	if !res.Success {
		return nil, fmt.Errorf("load policy_mirror rows: %s", res.Error)
	}
	for _, row := range res.Results {
		raw, ok := row["body"].(string)
		if !ok {
			continue
		}
		var p policy.Policy
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			continue
		}
		engine.Seed(&p)
	}
	return m, nil
}

func (m *PolicyMirror) persist(ctx context.Context, p *policy.Policy) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal policy %s: %w", p.PolicyID, err)
	}
	res := m.db.Execute(ctx, m.upsertStatement(), []interface{}{p.PolicyID, string(body)})
	if !res.Success {
		return fmt.Errorf("persist policy %s: %s", p.PolicyID, res.Error)
	}
	return nil
}

// upsertStatement returns a driver-appropriate upsert. Both postgres
// and mysql understand their own ON CONFLICT/ON DUPLICATE KEY dialect,
// so the mirror must pick the right one rather than relying on a
// lowest-common-denominator statement.
func (m *PolicyMirror) upsertStatement() string {
	if m.driver == "mysql" {
		return "INSERT INTO policy_mirror (policy_id, body) VALUES (?, ?) ON DUPLICATE KEY UPDATE body = VALUES(body)"
	}
	return "INSERT INTO policy_mirror (policy_id, body) VALUES ($1, $2) ON CONFLICT (policy_id) DO UPDATE SET body = EXCLUDED.body"
}

// CreatePolicy creates the policy in the underlying engine and mirrors
// it to the durable store. The in-memory engine remains the source of
// truth for every read; a mirror write failure is returned to the
// caller but never unwinds the already-committed in-memory policy.
func (m *PolicyMirror) CreatePolicy(ctx context.Context, name, description string, perms []policy.Permission) (*policy.Policy, error) {
	p := m.Engine.CreatePolicy(name, description, perms)
	if err := m.persist(ctx, p); err != nil {
		return p, err
	}
	return p, nil
}

// PatchPolicy applies patch via the engine and re-persists the result.
func (m *PolicyMirror) PatchPolicy(ctx context.Context, policyID string, patch func(*policy.Policy)) (*policy.Policy, bool, error) {
	p, ok := m.Engine.PatchPolicy(policyID, patch)
	if !ok {
		return nil, false, nil
	}
	if err := m.persist(ctx, p); err != nil {
		return p, true, err
	}
	return p, true, nil
}

// DeletePolicy removes the policy from the engine and its mirror row.
func (m *PolicyMirror) DeletePolicy(ctx context.Context, policyID string) error {
	if err := m.Engine.DeletePolicy(policyID); err != nil {
		return err
	}
	stmt := "DELETE FROM policy_mirror WHERE policy_id = $1"
	if m.driver == "mysql" {
		stmt = "DELETE FROM policy_mirror WHERE policy_id = ?"
	}
	res := m.db.Execute(ctx, stmt, []interface{}{policyID})
	if !res.Success {
		return fmt.Errorf("delete mirrored policy %s: %s", policyID, res.Error)
	}
	return nil
}
