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

// Package app is the composition root: it builds every subsystem once
// (policy, kernel, auth, operator, network, discovery, memory,
// dispatcher, storage adapters) and threads them into the HTTP layer,
// replacing the teacher's module-level singletons with constructor
// injection (spec.md §9's design note).
package app

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config is loaded once at startup from the environment, matching the
// teacher's cmd/orchestrator doc-comment convention of naming every
// recognized env var up front.
type Config struct {
	Environment       string // "production", "staging", "development"
	Port              string
	JWTSecret         []byte
	MasterKeyHash     string
	OperatorCatalogDriver string // "file" | "postgres"
	OperatorCatalogPath   string
	DatabaseURL       string
	RedisURL          string
	RedisPrefix       string
	ObjectStoreDriver string // "s3" | "gcs" | "azblob"
	ObjectStoreBucket string
	TabularDriver     string // "postgres" | "mysql"
	MemoryStoreDriver string // "memory" | "mongo"
	MongoURI          string
	MongoDatabase     string
	SecretSource      string // "" | "aws" | "azure"
	CORSAllowOrigins  []string
	ReadTimeoutSeconds  int
	WriteTimeoutSeconds int
}

const minJWTSecretBytes = 32

// LoadConfig reads the environment and validates it. In production, a
// missing or too-short JWT_SECRET refuses to start (spec.md §6 and the
// teacher's fail-fast startup convention).
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Environment:           getenvDefault("ENVIRONMENT", "development"),
		Port:                  getenvDefault("PORT", "8080"),
		MasterKeyHash:         os.Getenv("MASTER_KEY_HASH"),
		OperatorCatalogDriver: getenvDefault("OPERATOR_CATALOG_DRIVER", "file"),
		OperatorCatalogPath:   getenvDefault("OPERATOR_CATALOG_PATH", "operators.catalog.json"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RedisURL:              os.Getenv("REDIS_URL"),
		RedisPrefix:           getenvDefault("REDIS_PREFIX", "ctlplane:"),
		ObjectStoreDriver:     getenvDefault("OBJECT_STORE_DRIVER", "s3"),
		ObjectStoreBucket:     os.Getenv("OBJECT_STORE_BUCKET"),
		TabularDriver:         getenvDefault("TABULAR_DRIVER", "postgres"),
		MemoryStoreDriver:     getenvDefault("MEMORY_STORE_DRIVER", "memory"),
		MongoURI:              os.Getenv("MONGO_URI"),
		MongoDatabase:         getenvDefault("MONGO_DATABASE", "controlplane"),
		SecretSource:          os.Getenv("SECRET_SOURCE"),
		CORSAllowOrigins:      splitCSV(os.Getenv("CORS_ALLOW_ORIGINS")),
		ReadTimeoutSeconds:    getenvInt("HTTP_READ_TIMEOUT_SECONDS", 15),
		WriteTimeoutSeconds:   getenvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30),
	}

	secret, err := resolveJWTSecret(cfg.SecretSource)
	if err != nil {
		return nil, err
	}
	cfg.JWTSecret = secret

	if cfg.Environment == "production" && len(cfg.JWTSecret) < minJWTSecretBytes {
		return nil, fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minJWTSecretBytes)
	}

	return cfg, nil
}

// resolveJWTSecret follows the order named in SPEC_FULL's §4.3
// expansion: SECRET_SOURCE env (aws/azure) -> literal env var.
func resolveJWTSecret(source string) ([]byte, error) {
	switch source {
	case "aws":
		return resolveSecretFromAWS("JWT_SECRET")
	case "azure":
		return resolveSecretFromAzure("JWT_SECRET")
	default:
		return []byte(os.Getenv("JWT_SECRET")), nil
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getenvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
