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

package discovery

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// mcpListTools opens an SSE session (http(s) base URLs) or a stdio
// session (a command-line base URL, "command args…") and enumerates
// its tools. This is the only place the MCP wire format is touched in
// the discovery package; everything downstream deals in Capability.
func mcpListTools(ctx context.Context, baseURL string) ([]string, error) {
	var c *client.Client
	var err error

	if strings.HasPrefix(baseURL, "http://") || strings.HasPrefix(baseURL, "https://") {
		c, err = client.NewSSEMCPClient(baseURL)
	} else {
		parts := strings.Fields(baseURL)
		if len(parts) == 0 {
			return nil, fmt.Errorf("empty stdio command for MCP source")
		}
		c, err = client.NewStdioMCPClient(parts[0], nil, parts[1:]...)
	}
	if err != nil {
		return nil, fmt.Errorf("mcp client init: %w", err)
	}
	defer c.Close()

	if err := c.Start(ctx); err != nil {
		return nil, fmt.Errorf("mcp transport start: %w", err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "controlplane", Version: "1.0.0"}
	if _, err := c.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("mcp initialize: %w", err)
	}

	result, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp list_tools: %w", err)
	}

	names := make([]string, 0, len(result.Tools))
	for _, t := range result.Tools {
		names = append(names, t.Name)
	}
	return names, nil
}
