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

package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"controlplane/internal/operator"
)

// PostgresCatalog persists the operator catalog (operator.Catalog) as a
// full snapshot rewrite after every mutation, one JSONB row per
// signature keyed by operator id.
type PostgresCatalog struct {
	db *sql.DB
}

// NewPostgresCatalog opens dbURL and ensures the catalog table exists.
func NewPostgresCatalog(dbURL string) (*PostgresCatalog, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect operator catalog: %w", err)
	}

	c := &PostgresCatalog{db: db}
	if err := c.initSchema(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewPostgresCatalogFromDB wraps an already-open *sql.DB without
// touching its schema, letting tests substitute a sqlmock connection.
func NewPostgresCatalogFromDB(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) initSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS operator_catalog (
			operator_id VARCHAR(64) PRIMARY KEY,
			signature JSONB NOT NULL
		)`)
	return err
}

// Save replaces the catalog table contents with signatures, inside a
// single transaction.
func (c *PostgresCatalog) Save(signatures []*operator.Signature) error {
	tx, err := c.db.Begin()
	if err != nil {
		return err
	}

	if _, err := tx.Exec("DELETE FROM operator_catalog"); err != nil {
		tx.Rollback()
		return err
	}

	for _, sig := range signatures {
		blob, err := json.Marshal(sig)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("marshal signature %s: %w", sig.OperatorID, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO operator_catalog (operator_id, signature) VALUES ($1, $2)`,
			sig.OperatorID, blob,
		); err != nil {
			tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// Load reads every signature in the catalog table.
func (c *PostgresCatalog) Load() ([]*operator.Signature, error) {
	rows, err := c.db.Query(`SELECT signature FROM operator_catalog`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*operator.Signature
	for rows.Next() {
		var blob []byte
		if err := rows.Scan(&blob); err != nil {
			return nil, err
		}
		sig := &operator.Signature{}
		if err := json.Unmarshal(blob, sig); err != nil {
			return nil, fmt.Errorf("unmarshal signature: %w", err)
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (c *PostgresCatalog) Close() error { return c.db.Close() }

// FileCatalog is the zero-dependency Catalog backend: a single JSON
// snapshot file, used unless OPERATOR_CATALOG_DRIVER=postgres selects
// PostgresCatalog.
type FileCatalog struct {
	path string
}

// NewFileCatalog targets a JSON snapshot file at path.
func NewFileCatalog(path string) *FileCatalog {
	return &FileCatalog{path: path}
}

func (f *FileCatalog) Save(signatures []*operator.Signature) error {
	blob, err := json.MarshalIndent(signatures, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileCatalog) Load() ([]*operator.Signature, error) {
	blob, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sigs []*operator.Signature
	if err := json.Unmarshal(blob, &sigs); err != nil {
		return nil, fmt.Errorf("unmarshal catalog snapshot: %w", err)
	}
	return sigs, nil
}
