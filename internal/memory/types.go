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

// Package memory implements the content-addressed memory store:
// dedup-on-id storage with tag/type indices, decay, linking, pattern
// recognition and compression.
package memory

import "time"

// Type classifies a stored Memory.
type Type string

const (
	TypeFact       Type = "fact"
	TypeEvent      Type = "event"
	TypeObservation Type = "observation"
	TypePreference Type = "preference"
	TypeSkill      Type = "skill"
	TypeSummary    Type = "summary"
)

// Memory is one content-addressed record.
type Memory struct {
	MemoryID   string
	Type       Type
	Content    map[string]interface{}
	Tags       []string
	Importance float64 // [0,1]
	Embedding  []float64

	LinkedIDs []string

	CreatedAt  time.Time
	AccessedAt time.Time
	AccessCount int64
}

// Access bumps the access counter and boosts importance by 0.05,
// capped at 1.0 — called on every successful recall.
func (m *Memory) Access() {
	m.AccessCount++
	m.AccessedAt = time.Now()
	m.Importance += 0.05
	if m.Importance > 1.0 {
		m.Importance = 1.0
	}
}

// Decay subtracts decayRate*delta from importance, floored at 0.
func (m *Memory) Decay(decayRate float64, delta time.Duration) {
	m.Importance -= decayRate * delta.Hours()
	if m.Importance < 0 {
		m.Importance = 0
	}
}

// Pattern is a recognized recurring trigger->response association.
type Pattern struct {
	PatternID        string
	Name             string
	TriggerConditions map[string]interface{}
	ResponseTemplate map[string]interface{}
	Confidence       float64
	MatchCount       int64
	CreatedAt        time.Time
}
