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

package operator

import (
	"context"
	"time"

	"controlplane/internal/kernel"
)

// Pipeline chains operator ids; between steps, inputs become the
// previous step's outputs.
type Pipeline struct {
	OperatorIDs []string
}

// PipelineResult is returned by Run.
type PipelineResult struct {
	Success     bool
	FailedAtStep int // -1 when Success
	Error       string
	Results     []*Invocation
	FinalOutput map[string]interface{}
}

// Run executes each step of the pipeline in order, feeding one step's
// outputs forward as the next step's inputs. The first failing step
// halts the pipeline.
func (p *Pipeline) Run(ctx context.Context, r *Registry, inputs map[string]interface{}, timeout time.Duration, actorCtx kernel.ActorContext) PipelineResult {
	result := PipelineResult{FailedAtStep: -1}
	current := inputs

	for i, operatorID := range p.OperatorIDs {
		inv := r.Invoke(ctx, operatorID, current, timeout, actorCtx)
		result.Results = append(result.Results, inv)
		if !inv.Success {
			result.Success = false
			result.FailedAtStep = i
			result.Error = inv.Error
			return result
		}
		current = inv.Outputs
	}

	result.Success = true
	result.FinalOutput = current
	return result
}
