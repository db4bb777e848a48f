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
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"controlplane/internal/operator"
)

func TestMemoryKV_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	if err := kv.Set(ctx, "foo", []byte("bar"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := kv.Get(ctx, "foo")
	if err != nil || !ok || string(val) != "bar" {
		t.Fatalf("Get = %q, %v, %v", val, ok, err)
	}

	if err := kv.Delete(ctx, "foo"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "foo"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestMemoryKV_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	if err := kv.Set(ctx, "session:1", []byte("token"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := kv.Get(ctx, "session:1"); ok {
		t.Fatal("expected expired key to be absent")
	}
}

func TestMemoryKV_ListFiltersByPrefixAndSorts(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	kv.Set(ctx, "keys:b", []byte("2"), 0)
	kv.Set(ctx, "keys:a", []byte("1"), 0)
	kv.Set(ctx, "sessions:z", []byte("3"), 0)

	got, err := kv.List(ctx, "keys:")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []string{"keys:a", "keys:b"}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("List = %v, want %v", got, want)
	}
}

func newMiniredisKV(t *testing.T) (*RedisKV, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewRedisKVFromClient(client, "test:"), mr
}

func TestRedisKV_SetGetDelete(t *testing.T) {
	kv, mr := newMiniredisKV(t)
	defer mr.Close()
	ctx := context.Background()

	if err := kv.Set(ctx, "foo", []byte("bar"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := kv.Get(ctx, "foo")
	if err != nil || !ok || string(val) != "bar" {
		t.Fatalf("Get = %q, %v, %v", val, ok, err)
	}

	if err := kv.Delete(ctx, "foo"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := kv.Get(ctx, "foo"); ok {
		t.Fatal("expected key to be gone after Delete")
	}
}

func TestRedisKV_GetMissingKeyReturnsNotOK(t *testing.T) {
	kv, mr := newMiniredisKV(t)
	defer mr.Close()

	_, ok, err := kv.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected ok=false for missing key")
	}
}

func TestRedisKV_TTLExpiresInMiniredis(t *testing.T) {
	kv, mr := newMiniredisKV(t)
	defer mr.Close()
	ctx := context.Background()

	kv.Set(ctx, "session:1", []byte("token"), time.Second)
	mr.FastForward(2 * time.Second)

	if _, ok, _ := kv.Get(ctx, "session:1"); ok {
		t.Fatal("expected expired key to be absent")
	}
}

func TestRedisKV_ListStripsPrefix(t *testing.T) {
	kv, mr := newMiniredisKV(t)
	defer mr.Close()
	ctx := context.Background()

	kv.Set(ctx, "keys:a", []byte("1"), 0)
	kv.Set(ctx, "keys:b", []byte("2"), 0)

	got, err := kv.List(ctx, "keys:")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("List returned %d entries, want 2", len(got))
	}
	for _, k := range got {
		if k != "keys:a" && k != "keys:b" {
			t.Errorf("unexpected key %q in List output", k)
		}
	}
}

func TestSQLTabular_ExecuteReturnsRowsOnSuccessfulQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "name"}).AddRow(1, "alpha").AddRow(2, "beta")
	mock.ExpectQuery("SELECT id, name FROM widgets").WillReturnRows(rows)

	tab := NewSQLTabular(db)
	result := tab.Execute(context.Background(), "SELECT id, name FROM widgets", nil)

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if len(result.Results) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(result.Results))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLTabular_ExecuteFallsBackToExecOnMutation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("UPDATE widgets SET name = \\$1 WHERE id = \\$2").
		WillReturnError(fmt.Errorf("query not permitted on mutation"))
	mock.ExpectExec("UPDATE widgets SET name = \\$1 WHERE id = \\$2").
		WithArgs("gamma", 1).
		WillReturnResult(sqlmock.NewResult(0, 1))

	tab := NewSQLTabular(db)
	result := tab.Execute(context.Background(), "UPDATE widgets SET name = $1 WHERE id = $2", []interface{}{"gamma", 1})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Meta["rows_affected"] != int64(1) {
		t.Fatalf("expected rows_affected=1, got %v", result.Meta["rows_affected"])
	}
}

func TestSQLTabular_BatchRollsBackOnFirstFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO widgets").
		WillReturnError(fmt.Errorf("not a query"))
	mock.ExpectExec("INSERT INTO widgets").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO widgets").
		WillReturnError(fmt.Errorf("not a query"))
	mock.ExpectExec("INSERT INTO widgets").
		WillReturnError(fmt.Errorf("constraint violation"))
	mock.ExpectRollback()

	tab := NewSQLTabular(db)
	result := tab.Batch(context.Background(), []BatchStatement{
		{SQL: "INSERT INTO widgets (name) VALUES ($1)", Params: []interface{}{"one"}},
		{SQL: "INSERT INTO widgets (name) VALUES ($1)", Params: []interface{}{"two"}},
	})

	if result.Success {
		t.Fatal("expected batch failure on second statement")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestSQLTabular_BatchCommitsOnAllSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO widgets").
		WillReturnError(fmt.Errorf("not a query"))
	mock.ExpectExec("INSERT INTO widgets").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("INSERT INTO widgets").
		WillReturnError(fmt.Errorf("not a query"))
	mock.ExpectExec("INSERT INTO widgets").
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	tab := NewSQLTabular(db)
	result := tab.Batch(context.Background(), []BatchStatement{
		{SQL: "INSERT INTO widgets (name) VALUES ($1)", Params: []interface{}{"one"}},
		{SQL: "INSERT INTO widgets (name) VALUES ($1)", Params: []interface{}{"two"}},
	})

	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Meta["statement_count"] != 2 {
		t.Fatalf("expected statement_count=2, got %v", result.Meta["statement_count"])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestFileCatalog_RoundTripsSignatures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	cat := NewFileCatalog(path)

	sigs := []*operator.Signature{
		{OperatorID: "opr_abc", Type: operator.TypeRetrieve, EndpointURL: "https://x/y", Method: "GET"},
	}
	if err := cat.Save(sigs); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := cat.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].OperatorID != "opr_abc" {
		t.Fatalf("Load = %+v, want one signature opr_abc", loaded)
	}
}

func TestFileCatalog_LoadMissingFileReturnsEmpty(t *testing.T) {
	cat := NewFileCatalog(filepath.Join(t.TempDir(), "missing.json"))
	loaded, err := cat.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected nil snapshot for missing file, got %+v", loaded)
	}
}

func TestPostgresCatalog_SaveDeletesAndReinserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM operator_catalog").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO operator_catalog").
		WithArgs("opr_abc", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	cat := NewPostgresCatalogFromDB(db)
	err = cat.Save([]*operator.Signature{{OperatorID: "opr_abc", Method: "GET"}})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestPostgresCatalog_Load(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	blob := `{"OperatorID":"opr_abc","Method":"GET"}`
	rows := sqlmock.NewRows([]string{"signature"}).AddRow([]byte(blob))
	mock.ExpectQuery("SELECT signature FROM operator_catalog").WillReturnRows(rows)

	cat := NewPostgresCatalogFromDB(db)
	loaded, err := cat.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 1 || loaded[0].OperatorID != "opr_abc" {
		t.Fatalf("Load = %+v", loaded)
	}
}

func TestMemoryObjectKey_PrefixesWithMemories(t *testing.T) {
	if got := memoryObjectKey("mem_abc123"); got != "memories/mem_abc123" {
		t.Errorf("memoryObjectKey = %q, want %q", got, "memories/mem_abc123")
	}
	if got := memoryObjectKey("memories/mem_abc123"); got != "memories/mem_abc123" {
		t.Errorf("memoryObjectKey should be idempotent, got %q", got)
	}
}
