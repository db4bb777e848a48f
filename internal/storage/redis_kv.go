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
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisKV backs the KV adapter with Redis, namespacing every key under
// a fixed prefix (e.g. "sessions:" or "keys:" per spec.md §6).
type RedisKV struct {
	client *redis.Client
	prefix string
}

// NewRedisKV dials addr and returns a namespaced KV adapter.
func NewRedisKV(addr, password string, db int, prefix string) *RedisKV {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     50,
	})
	return &RedisKV{client: client, prefix: prefix}
}

// NewRedisKVFromClient wraps an already-constructed client, letting
// tests substitute a miniredis-backed instance.
func NewRedisKVFromClient(client *redis.Client, prefix string) *RedisKV {
	return &RedisKV{client: client, prefix: prefix}
}

func (r *RedisKV) namespaced(key string) string { return r.prefix + key }

func (r *RedisKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, r.namespaced(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

func (r *RedisKV) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return r.client.Set(ctx, r.namespaced(key), value, ttl).Err()
}

func (r *RedisKV) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, r.namespaced(key)).Err()
}

func (r *RedisKV) List(ctx context.Context, prefix string) ([]string, error) {
	iter := r.client.Scan(ctx, 0, r.namespaced(prefix)+"*", 0).Iterator()
	var out []string
	for iter.Next(ctx) {
		out = append(out, iter.Val()[len(r.prefix):])
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying Redis connection pool.
func (r *RedisKV) Close() error { return r.client.Close() }
