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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var probeCandidatePaths = []string{"/health", "/api", "/v1", "/graphql", "/rpc"}

// authHeaders resolves outbound auth headers for a scan request from
// a source's auth_type/auth_credentials.
func authHeaders(src *Source) map[string]string {
	headers := map[string]string{}
	switch src.AuthType {
	case AuthAPIKey:
		if k := src.AuthCredentials["api_key"]; k != "" {
			header := src.AuthCredentials["header"]
			if header == "" {
				header = "X-API-Key"
			}
			headers[header] = k
		}
	case AuthBearer:
		if t := src.AuthCredentials["token"]; t != "" {
			headers["Authorization"] = "Bearer " + t
		}
	case AuthBasic:
		if u, p := src.AuthCredentials["username"], src.AuthCredentials["password"]; u != "" {
			headers["Authorization"] = "Basic " + basicAuthToken(u, p)
		}
	}
	return headers
}

func doGet(ctx context.Context, client *http.Client, url string, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

func doPost(ctx context.Context, client *http.Client, url string, body interface{}, headers map[string]string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return client.Do(req)
}

// discoverOpenAPI implements spec.md §4.6's OpenAPI prober.
func discoverOpenAPI(ctx context.Context, client *http.Client, src *Source) ([]Capability, error) {
	path := src.DiscoveryPath
	if path == "" {
		path = "/openapi.json"
	}
	resp, err := doGet(ctx, client, src.BaseURL+path, authHeaders(src))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("openapi discovery: status %d", resp.StatusCode)
	}

	var doc map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	paths, _ := doc["paths"].(map[string]interface{})
	var caps []Capability
	for p, methodsRaw := range paths {
		methods, ok := methodsRaw.(map[string]interface{})
		if !ok {
			continue
		}
		for verb, opRaw := range methods {
			op, ok := opRaw.(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := op["operationId"].(string)
			if name == "" {
				name = strings.ToUpper(verb) + "_" + p
			}

			var inputSchema map[string]interface{}
			if reqBody, ok := op["requestBody"].(map[string]interface{}); ok {
				if content, ok := reqBody["content"].(map[string]interface{}); ok {
					if appJSON, ok := content["application/json"].(map[string]interface{}); ok {
						inputSchema, _ = appJSON["schema"].(map[string]interface{})
					}
				}
			}

			var outputSchema map[string]interface{}
			if responses, ok := op["responses"].(map[string]interface{}); ok {
				if ok200, ok := responses["200"].(map[string]interface{}); ok {
					if content, ok := ok200["content"].(map[string]interface{}); ok {
						if appJSON, ok := content["application/json"].(map[string]interface{}); ok {
							outputSchema, _ = appJSON["schema"].(map[string]interface{})
						}
					}
				}
			}

			caps = append(caps, Capability{
				Name: name, CapabilityType: CapRESTAPI,
				Endpoint: src.BaseURL + p, Method: strings.ToUpper(verb),
				InputSchema: inputSchema, OutputSchema: outputSchema,
				DiscoveryMethod: MethodOpenAPI, Source: src.SourceID,
			})
		}
	}
	return caps, nil
}

const introspectionQuery = `query IntrospectionQuery { __schema { queryType { name fields { name } } mutationType { name fields { name } } } }`

// discoverGraphQL implements spec.md §4.6's GraphQL prober.
func discoverGraphQL(ctx context.Context, client *http.Client, src *Source) ([]Capability, error) {
	resp, err := doPost(ctx, client, src.BaseURL, map[string]interface{}{"query": introspectionQuery}, authHeaders(src))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("graphql discovery: status %d", resp.StatusCode)
	}

	var body struct {
		Data struct {
			Schema struct {
				QueryType struct {
					Fields []struct{ Name string } `json:"fields"`
				} `json:"queryType"`
				MutationType struct {
					Fields []struct{ Name string } `json:"fields"`
				} `json:"mutationType"`
			} `json:"__schema"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, err
	}

	var caps []Capability
	for _, f := range body.Data.Schema.QueryType.Fields {
		caps = append(caps, Capability{
			Name: f.Name, CapabilityType: CapGraphQL, Endpoint: src.BaseURL, Method: "QUERY",
			DiscoveryMethod: MethodGraphQL, Source: src.SourceID,
		})
	}
	for _, f := range body.Data.Schema.MutationType.Fields {
		caps = append(caps, Capability{
			Name: f.Name, CapabilityType: CapGraphQL, Endpoint: src.BaseURL, Method: "MUTATION",
			DiscoveryMethod: MethodGraphQL, Source: src.SourceID,
		})
	}
	return caps, nil
}

// discoverProbe implements spec.md §4.6's fixed-path prober.
func discoverProbe(ctx context.Context, client *http.Client, src *Source) ([]Capability, error) {
	var caps []Capability
	for _, p := range probeCandidatePaths {
		start := time.Now()
		resp, err := doGet(ctx, client, src.BaseURL+p, authHeaders(src))
		if err != nil {
			continue
		}
		elapsed := float64(time.Since(start).Microseconds()) / 1000.0
		resp.Body.Close()
		if resp.StatusCode >= 400 {
			continue
		}
		caps = append(caps, Capability{
			Name: "probe" + strings.ReplaceAll(p, "/", "_"), CapabilityType: CapRESTAPI,
			Endpoint: src.BaseURL + p, Method: "GET",
			DiscoveryMethod: MethodProbe, Source: src.SourceID,
			IsHealthy: true, AvgResponseMS: elapsed, LastChecked: time.Now(),
		})
	}
	return caps, nil
}

// discoverManifest implements spec.md §4.6's manifest prober.
func discoverManifest(ctx context.Context, client *http.Client, src *Source) ([]Capability, error) {
	path := src.DiscoveryPath
	if path == "" {
		path = "/manifest.json"
	}
	resp, err := doGet(ctx, client, src.BaseURL+path, authHeaders(src))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("manifest discovery: status %d", resp.StatusCode)
	}

	var doc struct {
		Capabilities []struct {
			Name         string                 `json:"name"`
			Type         string                 `json:"type"`
			Endpoint     string                 `json:"endpoint"`
			Method       string                 `json:"method"`
			InputSchema  map[string]interface{} `json:"input_schema"`
			OutputSchema map[string]interface{} `json:"output_schema"`
		} `json:"capabilities"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	var caps []Capability
	for _, c := range doc.Capabilities {
		caps = append(caps, Capability{
			Name: c.Name, CapabilityType: CapabilityType(c.Type), Endpoint: c.Endpoint, Method: c.Method,
			InputSchema: c.InputSchema, OutputSchema: c.OutputSchema,
			DiscoveryMethod: MethodManifest, Source: src.SourceID,
		})
	}
	return caps, nil
}

// discoverMCP implements spec.md §4.6's MCP prober: one Capability per
// tool reported by list_tools(), method="MCP", endpoint=base_url.
func discoverMCP(ctx context.Context, src *Source) ([]Capability, error) {
	tools, err := mcpListTools(ctx, src.BaseURL)
	if err != nil {
		return nil, err
	}

	var caps []Capability
	for _, tool := range tools {
		caps = append(caps, Capability{
			Name: tool, CapabilityType: CapMCPTool, Endpoint: src.BaseURL, Method: "MCP",
			DiscoveryMethod: MethodMCP, Source: src.SourceID,
			Headers: map[string]string{"x-source": src.SourceID, "x-discovery-method": string(MethodMCP), "x-tool-name": tool},
		})
	}
	return caps, nil
}
