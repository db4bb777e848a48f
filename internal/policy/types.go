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

package policy

import "time"

// ResourceType is the kind of thing a Permission grants access to.
// Unknown values round-trip as ResourceUnknown rather than failing
// parse, per the design-notes enum-coercion strategy.
type ResourceType string

const (
	ResourceOperator ResourceType = "operator"
	ResourceSlot     ResourceType = "slot"
	ResourceNetwork  ResourceType = "network"
	ResourceKey      ResourceType = "key"
	ResourcePolicy   ResourceType = "policy"
	ResourceUser     ResourceType = "user"
	ResourceAudit    ResourceType = "audit"
	ResourceSystem   ResourceType = "system"
	ResourceUnknown  ResourceType = "unknown"
)

// ParseResourceType coerces a raw string into a known ResourceType,
// falling back to ResourceUnknown rather than erroring.
func ParseResourceType(s string) ResourceType {
	switch ResourceType(s) {
	case ResourceOperator, ResourceSlot, ResourceNetwork, ResourceKey,
		ResourcePolicy, ResourceUser, ResourceAudit, ResourceSystem:
		return ResourceType(s)
	default:
		return ResourceUnknown
	}
}

// Level is a permission level, 0 (none) through 5 (master).
type Level int

const (
	LevelNone Level = iota
	LevelRead
	LevelExecute
	LevelWrite
	LevelAdmin
	LevelMaster
)

// LevelForMethod maps an HTTP verb to the required permission level,
// per spec.md §4.1 step 3.
func LevelForMethod(method string) Level {
	switch method {
	case "GET", "HEAD":
		return LevelRead
	case "POST":
		return LevelExecute
	case "PUT", "PATCH":
		return LevelWrite
	case "DELETE":
		return LevelAdmin
	default:
		return LevelExecute
	}
}

// Permission grants Level on ResourceType, optionally scoped to a
// single ResourceID. A nil ResourceID is a wildcard across all ids of
// that resource type.
type Permission struct {
	ResourceType ResourceType
	ResourceID   *string
	Level        Level
}

// matches reports whether this permission applies to the given
// resource type and id.
func (p Permission) matches(rt ResourceType, id string) bool {
	if p.ResourceType != rt {
		return false
	}
	if p.ResourceID == nil {
		return true
	}
	return *p.ResourceID == id
}

// RateLimit holds the advisory, process-local rate limit tiers for a
// policy (§4.3 "Rate limit contract").
type RateLimit struct {
	PerMinute int
	PerHour   int
	PerDay    int
	Burst     int
}

// Restriction narrows when/where a policy may be used.
type Restriction struct {
	ValidFrom  *time.Time
	ValidUntil *time.Time
	AllowedIPs []string
	DeniedIPs  []string
}

// Policy is the access-control document attached to a key. Kernel
// policies reuse the same struct and are distinguished only by the
// "kpol_" id prefix (see internal/kernel).
type Policy struct {
	PolicyID         string
	Name             string
	Description      string
	Permissions      []Permission
	AllowedOperators []string
	DeniedOperators  []string
	AllowedEndpoints []string
	DeniedEndpoints  []string
	RateLimits       RateLimit
	Restrictions     Restriction
	IsActive         bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Context carries the caller-supplied facts an access check may
// consult (currently just source IP; extendable without breaking the
// CheckAccess signature).
type Context struct {
	IP string
}
