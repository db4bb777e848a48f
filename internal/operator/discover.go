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
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
)

// lexicalTypeRules implements spec.md §4.4's behavioral-discovery
// lexical heuristic: the first matching substring (in declaration
// order) over the lowercased URL wins.
var lexicalTypeRules = []struct {
	substr string
	typ    Type
}{
	{"search", TypeSearch}, {"find", TypeSearch}, {"query", TypeSearch},
	{"embed", TypeEmbed},
	{"chat", TypeInfer}, {"complete", TypeInfer},
	{"store", TypeStore}, {"save", TypeStore},
	{"get", TypeRetrieve}, {"fetch", TypeRetrieve},
}

// commonOutputKeys lists the response keys behavioral discovery probes
// for when inferring output extractor paths.
var commonOutputKeys = [][]string{
	{"data", "result", "output"},
	{"id", "uuid"},
	{"message", "text", "content"},
}

// ClassifyByLexicalHeuristic infers an OperatorType from a URL by the
// §4.4 substring rules, falling back to the HTTP verb, and finally to
// Compute when nothing matches.
func ClassifyByLexicalHeuristic(rawURL, method string) Type {
	lower := strings.ToLower(rawURL)
	for _, rule := range lexicalTypeRules {
		if strings.Contains(lower, rule.substr) {
			return rule.typ
		}
	}
	switch strings.ToUpper(method) {
	case "GET":
		return TypeRetrieve
	case "POST", "PUT", "PATCH":
		return TypeStore
	default:
		return TypeCompute
	}
}

// inferOutputExtractors inspects a parsed JSON response body for the
// common key families named in spec.md §4.4 and returns a
// name->dotted-path extractor map for whichever families are present
// at the top level.
func inferOutputExtractors(parsed interface{}) map[string]string {
	m, ok := parsed.(map[string]interface{})
	if !ok {
		return nil
	}
	extractors := make(map[string]string)
	for _, family := range commonOutputKeys {
		for _, key := range family {
			if _, present := m[key]; present {
				extractors[key] = key
				break
			}
		}
	}
	return extractors
}

// Discover probes endpoint with a small payload set, infers an
// OperatorType, a response schema and output extractors, and registers
// the resulting Signature (spec.md §4.4 "Behavioral discovery").
func (r *Registry) Discover(ctx context.Context, endpointURL, method string, probePayload map[string]interface{}) (*Signature, error) {
	var body io.Reader
	if probePayload != nil && method != "GET" {
		payload, err := json.Marshal(probePayload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpointURL, body)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.client.Do(req)
	sig := &Signature{
		OperatorID:  OperatorID(endpointURL, method),
		Type:        ClassifyByLexicalHeuristic(endpointURL, method),
		EndpointURL: endpointURL,
		Method:      method,
	}
	if err != nil {
		sig.APIPattern = PatternUnknown
		r.Register(sig)
		return sig, nil
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	var parsed interface{}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 && json.Unmarshal(raw, &parsed) == nil {
		if schema, ok := parsed.(map[string]interface{}); ok {
			sig.ResponseSchema = schema
		}
		sig.OutputExtractors = inferOutputExtractors(parsed)
	}

	if err := r.Register(sig); err != nil {
		return nil, err
	}
	return sig, nil
}
