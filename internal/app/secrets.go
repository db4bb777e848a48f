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
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// resolveSecretFromAWS fetches secretName's current value from AWS
// Secrets Manager, named by the AWS_SECRET_ID env var (falling back to
// secretName itself), used when SECRET_SOURCE=aws.
func resolveSecretFromAWS(secretName string) ([]byte, error) {
	secretID := os.Getenv("AWS_SECRET_ID")
	if secretID == "" {
		secretID = secretName
	}

	ctx := context.Background()
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	client := secretsmanager.NewFromConfig(cfg)
	out, err := client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretID),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch secret %s from Secrets Manager: %w", secretID, err)
	}
	if out.SecretString != nil {
		return []byte(*out.SecretString), nil
	}
	return out.SecretBinary, nil
}

// resolveSecretFromAzure fetches secretName from Azure Key Vault,
// using the vault URI in AZURE_KEYVAULT_URL, authenticated via the
// environment/managed-identity credential chain, used when
// SECRET_SOURCE=azure.
func resolveSecretFromAzure(secretName string) ([]byte, error) {
	vaultURL := os.Getenv("AZURE_KEYVAULT_URL")
	if vaultURL == "" {
		return nil, fmt.Errorf("AZURE_KEYVAULT_URL must be set when SECRET_SOURCE=azure")
	}
	return fetchAzureKeyVaultSecret(vaultURL, secretName)
}
