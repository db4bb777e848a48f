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

package discovery

import (
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"
)

// CassandraReplica mirrors the in-memory capability catalog into a
// Cassandra/ScyllaDB keyspace, so a probe's findings survive process
// restarts even when no relational backend is configured. It is
// optional: Engine works fully in-memory when no replica is attached.
type CassandraReplica struct {
	session *gocql.Session
}

// NewCassandraReplica connects using the same "cassandra://host:port/keyspace"
// URL shape as the teacher's cassandra connector and ensures the
// capabilities table exists.
func NewCassandraReplica(connectionURL string) (*CassandraReplica, error) {
	hosts, keyspace, err := parseCassandraURL(connectionURL)
	if err != nil {
		return nil, err
	}

	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("cassandra replica: %w", err)
	}

	r := &CassandraReplica{session: session}
	if err := r.ensureSchema(); err != nil {
		session.Close()
		return nil, err
	}
	return r, nil
}

func (r *CassandraReplica) ensureSchema() error {
	return r.session.Query(`
		CREATE TABLE IF NOT EXISTS capabilities (
			capability_id text PRIMARY KEY,
			name text,
			capability_type text,
			endpoint text,
			method text,
			discovery_method text,
			source text,
			is_healthy boolean,
			last_checked timestamp
		)`).Exec()
}

// Save upserts a capability row. Cassandra INSERT is an upsert by
// primary key, matching the catalog's replace-on-rediscovery semantics.
func (r *CassandraReplica) Save(c *Capability) error {
	return r.session.Query(
		`INSERT INTO capabilities (capability_id, name, capability_type, endpoint, method, discovery_method, source, is_healthy, last_checked) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.CapabilityID, c.Name, string(c.CapabilityType), c.Endpoint, c.Method,
		string(c.DiscoveryMethod), c.Source, c.IsHealthy, c.LastChecked,
	).Exec()
}

// Load reads back every replicated capability (used to warm the
// in-memory catalog on startup).
func (r *CassandraReplica) Load() ([]*Capability, error) {
	iter := r.session.Query(`SELECT capability_id, name, capability_type, endpoint, method, discovery_method, source, is_healthy, last_checked FROM capabilities`).Iter()

	var out []*Capability
	var c Capability
	var capType, discMethod string
	for iter.Scan(&c.CapabilityID, &c.Name, &capType, &c.Endpoint, &c.Method, &discMethod, &c.Source, &c.IsHealthy, &c.LastChecked) {
		c.CapabilityType = CapabilityType(capType)
		c.DiscoveryMethod = Method(discMethod)
		cp := c
		out = append(out, &cp)
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the Cassandra session.
func (r *CassandraReplica) Close() { r.session.Close() }

func parseCassandraURL(url string) ([]string, string, error) {
	url = strings.TrimPrefix(url, "cassandra://")
	parts := strings.Split(url, "/")
	if len(parts) != 2 || parts[1] == "" {
		return nil, "", fmt.Errorf("invalid cassandra connection url, expected cassandra://host:port/keyspace")
	}
	hosts := strings.Split(parts[0], ",")
	return hosts, parts[1], nil
}
