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

// Package operator implements the uniform operator contract: a named,
// externally-backed function invocable through one call shape
// regardless of the protocol backing it.
package operator

import "time"

// Type is the coarse behavioral classification of an operator
// (spec.md glossary). Unknown/unparseable values degrade to Compute,
// per the design-notes enum-coercion strategy.
type Type string

const (
	TypeStore     Type = "store"
	TypeRetrieve  Type = "retrieve"
	TypeTransform Type = "transform"
	TypeFilter    Type = "filter"
	TypeAggregate Type = "aggregate"
	TypeCompute   Type = "compute"
	TypeInfer     Type = "infer"
	TypeEmbed     Type = "embed"
	TypeSearch    Type = "search"
	TypeSequence  Type = "sequence"
	TypeParallel  Type = "parallel"
	TypeRetry     Type = "retry"
	TypeTimeout   Type = "timeout"
	TypeBroadcast Type = "broadcast"
	TypeRoute     Type = "route"
	TypeGossip    Type = "gossip"
)

// APIPattern is a secondary, informative classification supplementing
// Type (carried over from the original source's behavioral-discovery
// module; not in spec.md's glossary but not excluded by any Non-goal).
type APIPattern string

const (
	PatternRESTCRUD       APIPattern = "rest_crud"
	PatternLLMChat        APIPattern = "llm_chat"
	PatternLLMCompletion  APIPattern = "llm_completion"
	PatternSearchQuery    APIPattern = "search_query"
	PatternEmbedText      APIPattern = "embed_text"
	PatternStoreData      APIPattern = "store_data"
	PatternStreamSSE      APIPattern = "stream_sse"
	PatternUnknown        APIPattern = "unknown"
)

// Signature is the catalog entry for one operator (spec.md §3 Data
// Model). OperatorID is a content hash of endpoint|method and is
// therefore stable across registrations of the same backing call.
type Signature struct {
	OperatorID   string
	Type         Type
	APIPattern   APIPattern
	EndpointURL  string
	Method       string // HTTP verb, or "MCP"
	Headers      map[string]string

	RequestTemplate  map[string]interface{}
	ResponseSchema   map[string]interface{}
	OutputExtractors map[string]string // name -> dotted path
	SuccessIndicators []string

	AvgLatencyMS     float64
	SuccessRate      float64
	ConsistencyScore float64
	CallCount        int64
	LastUsed         time.Time

	Idempotent   bool
	SideEffects  bool
}

// Invocation is one recorded call against an operator.
type Invocation struct {
	InvocationID string
	OperatorID   string
	Inputs       map[string]interface{}
	Outputs      map[string]interface{}
	Success      bool
	LatencyMS    float64
	Error        string
	Timestamp    time.Time
}
