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
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"controlplane/internal/auth"
	"controlplane/internal/discovery"
	"controlplane/internal/dispatcher"
	"controlplane/internal/kernel"
	"controlplane/internal/memory"
	"controlplane/internal/network"
	"controlplane/internal/obs"
	"controlplane/internal/operator"
	"controlplane/internal/policy"
	"controlplane/internal/storage"
)

// Container is the composition root: every subsystem is built exactly
// once here and threaded into the HTTP layer by constructor injection,
// replacing the teacher's module-level singletons (spec.md §9).
type Container struct {
	Config *Config
	Log    *obs.Logger

	Policies  *policy.Engine
	Kernel    *kernel.Enforcer
	Keys      *auth.KeyManager
	Sessions  *auth.SessionManager
	Auth      *auth.Gateway
	Operators *operator.Registry
	Network   *network.Network
	Discovery *discovery.Engine
	Memories  *memory.Registry
	Brain     *dispatcher.Dispatcher

	SessionKV storage.KV
	KeysKV    storage.KV
	Objects   storage.Object
	Tabular   storage.Tabular
	PolicyMirror *PolicyMirror

	closers []func() error
}

// sessionStoreAdapter adapts storage.KV's context-taking methods to
// auth.SessionStore's synchronous contract.
type sessionStoreAdapter struct{ kv storage.KV }

func (s sessionStoreAdapter) Set(key string, value []byte, ttl time.Duration) error {
	return s.kv.Set(context.Background(), key, value, ttl)
}
func (s sessionStoreAdapter) Get(key string) ([]byte, bool) {
	val, ok, err := s.kv.Get(context.Background(), key)
	if err != nil {
		return nil, false
	}
	return val, ok
}
func (s sessionStoreAdapter) Delete(key string) error {
	return s.kv.Delete(context.Background(), key)
}

// NewContainer builds every subsystem from cfg. Callers must call
// Close when done to release any backend connections.
func NewContainer(cfg *Config) (*Container, error) {
	c := &Container{Config: cfg, Log: obs.New("app")}

	c.Policies = policy.NewEngine()
	if err := c.attachPolicyMirror(cfg); err != nil {
		return nil, fmt.Errorf("attach policy mirror: %w", err)
	}
	c.Kernel = kernel.NewEnforcer(c.Policies)

	c.Keys = auth.NewKeyManager(func(policyID string) bool {
		_, ok := c.Policies.GetPolicy(policyID)
		return ok
	})
	if cfg.MasterKeyHash != "" {
		c.Keys.SeedMasterKey(cfg.MasterKeyHash, policy.PolicyMaster)
	}

	sessionKV, err := c.buildSessionKV()
	if err != nil {
		return nil, fmt.Errorf("build session store: %w", err)
	}
	c.SessionKV = sessionKV
	c.Sessions = auth.NewSessionManager(sessionStoreAdapter{kv: sessionKV})

	c.Auth = auth.NewGateway(c.Keys, c.Policies, cfg.JWTSecret)

	catalog, err := c.buildCatalog()
	if err != nil {
		return nil, fmt.Errorf("build operator catalog: %w", err)
	}
	c.Operators = operator.NewRegistry(c.Kernel, catalog)

	c.Network = network.New(c.Operators)

	c.Discovery = discovery.NewEngine(c.Kernel)

	c.Memories = memory.New(nil, c.Kernel)
	if err := c.attachMemoryBackend(cfg); err != nil {
		return nil, fmt.Errorf("attach memory backend: %w", err)
	}

	c.Brain = dispatcher.New(c.Memories, c.Operators, c.Discovery)
	c.Discovery.OnDiscovery(c.Brain.PromotionHook)

	keysKV, err := c.buildKeysKV()
	if err != nil {
		return nil, fmt.Errorf("build keys store: %w", err)
	}
	c.KeysKV = keysKV

	objects, err := c.buildObjectStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("build object store: %w", err)
	}
	c.Objects = objects

	return c, nil
}

func (c *Container) buildSessionKV() (storage.KV, error) {
	if c.Config.RedisURL == "" {
		return storage.NewMemoryKV(), nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: c.Config.RedisURL})
	kv := storage.NewRedisKVFromClient(client, c.Config.RedisPrefix+"sessions:")
	c.addCloser(kv.Close)
	return kv, nil
}

func (c *Container) buildKeysKV() (storage.KV, error) {
	if c.Config.RedisURL == "" {
		return storage.NewMemoryKV(), nil
	}
	client := goredis.NewClient(&goredis.Options{Addr: c.Config.RedisURL})
	kv := storage.NewRedisKVFromClient(client, c.Config.RedisPrefix+"keys:")
	c.addCloser(kv.Close)
	return kv, nil
}

func (c *Container) buildCatalog() (operator.Catalog, error) {
	switch c.Config.OperatorCatalogDriver {
	case "postgres":
		if c.Config.DatabaseURL == "" {
			return nil, fmt.Errorf("OPERATOR_CATALOG_DRIVER=postgres requires DATABASE_URL")
		}
		cat, err := storage.NewPostgresCatalog(c.Config.DatabaseURL)
		if err != nil {
			return nil, err
		}
		c.addCloser(cat.Close)
		return cat, nil
	default:
		return storage.NewFileCatalog(c.Config.OperatorCatalogPath), nil
	}
}

func (c *Container) buildObjectStore(cfg *Config) (storage.Object, error) {
	if cfg.ObjectStoreBucket == "" {
		return nil, nil
	}
	ctx := context.Background()
	switch cfg.ObjectStoreDriver {
	case "gcs":
		o, err := storage.NewGCSObject(ctx, cfg.ObjectStoreBucket)
		if err != nil {
			return nil, err
		}
		c.addCloser(o.Close)
		return o, nil
	case "azblob":
		accountURL := fmt.Sprintf("https://%s.blob.core.windows.net/", cfg.ObjectStoreBucket)
		return storage.NewAzureBlobObject(accountURL, cfg.ObjectStoreBucket)
	default:
		return storage.NewS3Object(ctx, cfg.ObjectStoreBucket)
	}
}

// attachPolicyMirror wires a durable write-through mirror for the
// policy engine when a database is configured. The engine stays usable
// with no database at all (development default): every policy lives
// only in memory and resets on restart.
func (c *Container) attachPolicyMirror(cfg *Config) error {
	if cfg.DatabaseURL == "" {
		return nil
	}
	var tab storage.Tabular
	var err error
	switch cfg.TabularDriver {
	case "mysql":
		tab, err = storage.NewMySQLTabular(cfg.DatabaseURL)
	default:
		tab, err = storage.NewPostgresTabular(cfg.DatabaseURL)
	}
	if err != nil {
		return err
	}
	c.Tabular = tab
	c.addCloser(tab.(*storage.SQLTabular).Close)

	mirror, err := NewPolicyMirror(context.Background(), c.Policies, tab, cfg.TabularDriver)
	if err != nil {
		return err
	}
	c.PolicyMirror = mirror
	return nil
}

func (c *Container) attachMemoryBackend(cfg *Config) error {
	if cfg.MemoryStoreDriver != "mongo" {
		return nil
	}
	if cfg.MongoURI == "" {
		return fmt.Errorf("MEMORY_STORE_DRIVER=mongo requires MONGO_URI")
	}
	backend, err := memory.NewMongoBackend(context.Background(), cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return err
	}
	return c.Memories.WithBackend(backend)
}

func (c *Container) addCloser(fn func() error) {
	c.closers = append(c.closers, fn)
}

// Close releases every backend connection opened while building the
// container, in reverse construction order.
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
