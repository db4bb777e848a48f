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

// Package discovery scans registered sources for externally-reachable
// capabilities and promotes the ones that pass kernel enforcement into
// the operator catalog.
package discovery

import "time"

// CapabilityType classifies what a discovered Capability actually is.
// dns_sd/announcement sources carry this enum for data-model parity
// with the original catalog but have no wired prober (see DESIGN.md).
type CapabilityType string

const (
	CapRESTAPI   CapabilityType = "rest_api"
	CapGraphQL   CapabilityType = "graphql"
	CapWebsocket CapabilityType = "websocket"
	CapFunction  CapabilityType = "function"
	CapMCPTool   CapabilityType = "mcp_tool"
	CapModel     CapabilityType = "model"
	CapDatabase  CapabilityType = "database"
	CapStorage   CapabilityType = "storage"
	CapQueue     CapabilityType = "queue"
	CapStream    CapabilityType = "stream"
)

// Method names the discovery strategy used to find a Capability.
type Method string

const (
	MethodOpenAPI     Method = "openapi"
	MethodGraphQL     Method = "graphql_introspect"
	MethodProbe       Method = "probe"
	MethodManifest    Method = "manifest"
	MethodMCP         Method = "mcp"
	MethodDNSSD       Method = "dns_sd"
	MethodAnnounce    Method = "announcement"
)

// AuthType is the credential shape a DiscoverySource presents to its
// backing service during scans.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

// Source is a registered scan target.
type Source struct {
	SourceID        string
	BaseURL         string
	DiscoveryMethod Method
	DiscoveryPath   string // e.g. "/openapi.json", manifest path
	AuthType        AuthType
	AuthCredentials map[string]string
	RefreshInterval time.Duration
	Active          bool
}

// Capability is a discovered external endpoint before promotion to an
// operator.
type Capability struct {
	CapabilityID   string
	Name           string
	CapabilityType CapabilityType
	Endpoint       string
	Method         string
	InputSchema    map[string]interface{}
	OutputSchema   map[string]interface{}
	DiscoveryMethod Method
	Source         string // DiscoverySource.SourceID

	IsHealthy      bool
	AvgResponseMS  float64
	SuccessCount   int64
	FailureCount   int64
	LastChecked    time.Time

	Headers map[string]string // provenance: x-source, x-discovery-method, x-tool-name
}
