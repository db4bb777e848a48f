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
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// SQLTabular implements the Tabular adapter over database/sql, driven
// by whichever driver its *sql.DB was opened with — "postgres" (via
// lib/pq) by default, or "mysql" (via go-sql-driver/mysql) when
// TABULAR_DRIVER=mysql selects the alternate backend.
type SQLTabular struct {
	db *sql.DB
}

// NewPostgresTabular opens a Postgres-backed Tabular adapter.
func NewPostgresTabular(dsn string) (*SQLTabular, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return &SQLTabular{db: db}, nil
}

// NewMySQLTabular opens a MySQL-backed Tabular adapter (the
// TABULAR_DRIVER=mysql alternate backend).
func NewMySQLTabular(dsn string) (*SQLTabular, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	return &SQLTabular{db: db}, nil
}

// NewSQLTabular wraps an already-open *sql.DB, letting tests
// substitute a go-sqlmock-backed connection.
func NewSQLTabular(db *sql.DB) *SQLTabular { return &SQLTabular{db: db} }

// Execute runs one statement and returns its rows (for a query) or
// affected-row count (for a mutation) in the uniform TabularResult
// shape.
func (t *SQLTabular) Execute(ctx context.Context, query string, params []interface{}) TabularResult {
	rows, err := t.db.QueryContext(ctx, query, params...)
	if err != nil {
		res, execErr := t.db.ExecContext(ctx, query, params...)
		if execErr != nil {
			return TabularResult{Success: false, Error: execErr.Error()}
		}
		affected, _ := res.RowsAffected()
		return TabularResult{Success: true, Meta: map[string]interface{}{"rows_affected": affected}}
	}
	defer rows.Close()

	results, err := scanRows(rows)
	if err != nil {
		return TabularResult{Success: false, Error: err.Error()}
	}
	return TabularResult{Success: true, Results: results, Meta: map[string]interface{}{"row_count": len(results)}}
}

// Batch runs every statement in order inside one transaction, failing
// the whole batch if any statement errors.
func (t *SQLTabular) Batch(ctx context.Context, statements []BatchStatement) TabularResult {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return TabularResult{Success: false, Error: err.Error()}
	}

	var allResults []map[string]interface{}
	for _, stmt := range statements {
		rows, qerr := tx.QueryContext(ctx, stmt.SQL, stmt.Params...)
		if qerr != nil {
			if _, execErr := tx.ExecContext(ctx, stmt.SQL, stmt.Params...); execErr != nil {
				tx.Rollback()
				return TabularResult{Success: false, Error: execErr.Error()}
			}
			continue
		}
		rowResults, serr := scanRows(rows)
		rows.Close()
		if serr != nil {
			tx.Rollback()
			return TabularResult{Success: false, Error: serr.Error()}
		}
		allResults = append(allResults, rowResults...)
	}

	if err := tx.Commit(); err != nil {
		return TabularResult{Success: false, Error: err.Error()}
	}
	return TabularResult{Success: true, Results: allResults, Meta: map[string]interface{}{"statement_count": len(statements)}}
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Close releases the underlying connection pool.
func (t *SQLTabular) Close() error { return t.db.Close() }
