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

// Package storage implements the three pluggable storage-adapter
// contracts of spec.md §6: KV, Tabular and Object. Every backend
// (in-memory, Redis, Postgres/MySQL, S3/GCS/Azure Blob) satisfies the
// same narrow interface so callers never branch on which one is live.
package storage

import (
	"context"
	"time"
)

// KV is a namespaced key/value store with optional TTL.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// TabularResult is the uniform shape of an execute/batch call.
type TabularResult struct {
	Success bool
	Results []map[string]interface{}
	Meta    map[string]interface{}
	Error   string
}

// Tabular is a relational execute/batch adapter.
type Tabular interface {
	Execute(ctx context.Context, sql string, params []interface{}) TabularResult
	Batch(ctx context.Context, statements []BatchStatement) TabularResult
}

// BatchStatement is one statement in a Tabular.Batch call.
type BatchStatement struct {
	SQL    string
	Params []interface{}
}

// ObjectMeta describes one stored object's metadata.
type ObjectMeta struct {
	Key         string
	Size        int64
	ContentType string
	Metadata    map[string]string
	ModifiedAt  time.Time
}

// Object is a key-addressed blob store.
type Object interface {
	Get(ctx context.Context, key string) ([]byte, ObjectMeta, error)
	Put(ctx context.Context, key string, value []byte, contentType string, metadata map[string]string) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]ObjectMeta, error)
	Head(ctx context.Context, key string) (ObjectMeta, error)
}
