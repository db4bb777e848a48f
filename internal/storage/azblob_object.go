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

package storage

import (
	"bytes"
	"context"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
)

// AzureBlobObject is the Object adapter selected by
// OBJECT_STORE_DRIVER=azblob.
type AzureBlobObject struct {
	client    *azblob.Client
	container string
}

// NewAzureBlobObject authenticates against accountURL with a managed
// identity / environment credential chain and targets container.
func NewAzureBlobObject(accountURL, container string) (*AzureBlobObject, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, err
	}
	client, err := azblob.NewClient(accountURL, cred, nil)
	if err != nil {
		return nil, err
	}
	return &AzureBlobObject{client: client, container: container}, nil
}

func (o *AzureBlobObject) Get(ctx context.Context, key string) ([]byte, ObjectMeta, error) {
	resp, err := o.client.DownloadStream(ctx, o.container, key, nil)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	meta := ObjectMeta{Key: key, Size: int64(len(data))}
	if resp.ContentType != nil {
		meta.ContentType = *resp.ContentType
	}
	if resp.LastModified != nil {
		meta.ModifiedAt = *resp.LastModified
	}
	return data, meta, nil
}

func (o *AzureBlobObject) Put(ctx context.Context, key string, value []byte, contentType string, metadata map[string]string) error {
	meta := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		val := v
		meta[k] = &val
	}
	ct := contentType
	_, err := o.client.UploadStream(ctx, o.container, key, bytes.NewReader(value), &azblob.UploadStreamOptions{
		Metadata:    meta,
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &ct},
	})
	return err
}

func (o *AzureBlobObject) Delete(ctx context.Context, key string) error {
	_, err := o.client.DeleteBlob(ctx, o.container, key, nil)
	return err
}

func (o *AzureBlobObject) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	var out []ObjectMeta
	pager := o.client.NewListBlobsFlatPager(o.container, &azblob.ListBlobsFlatOptions{Prefix: &prefix})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, b := range page.Segment.BlobItems {
			m := ObjectMeta{Key: *b.Name}
			if b.Properties != nil {
				if b.Properties.ContentLength != nil {
					m.Size = *b.Properties.ContentLength
				}
				if b.Properties.LastModified != nil {
					m.ModifiedAt = *b.Properties.LastModified
				}
			}
			out = append(out, m)
		}
	}
	return out, nil
}

func (o *AzureBlobObject) Head(ctx context.Context, key string) (ObjectMeta, error) {
	props, err := o.client.ServiceClient().NewContainerClient(o.container).NewBlobClient(key).GetProperties(ctx, nil)
	if err != nil {
		return ObjectMeta{}, err
	}
	meta := ObjectMeta{Key: key}
	if props.ContentLength != nil {
		meta.Size = *props.ContentLength
	}
	if props.ContentType != nil {
		meta.ContentType = *props.ContentType
	}
	if props.LastModified != nil {
		meta.ModifiedAt = *props.LastModified
	}
	return meta, nil
}
