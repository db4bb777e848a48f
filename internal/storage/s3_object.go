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
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Object is the default Object adapter: an S3-backed blob store.
// Keys are used exactly as the caller passes them; memoryObjectKey
// builds the "memories/{id}" form but S3Object does not apply it.
type S3Object struct {
	client *s3.Client
	bucket string
}

// NewS3Object loads the default AWS config chain and targets bucket.
func NewS3Object(ctx context.Context, bucket string) (*S3Object, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}
	return &S3Object{client: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

func (o *S3Object) Get(ctx context.Context, key string) ([]byte, ObjectMeta, error) {
	out, err := o.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(o.bucket), Key: aws.String(key)})
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	meta := ObjectMeta{Key: key, Size: aws.ToInt64(out.ContentLength), Metadata: out.Metadata}
	if out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		meta.ModifiedAt = *out.LastModified
	}
	return data, meta, nil
}

func (o *S3Object) Put(ctx context.Context, key string, value []byte, contentType string, metadata map[string]string) error {
	_, err := o.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(o.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(value),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	return err
}

func (o *S3Object) Delete(ctx context.Context, key string) error {
	_, err := o.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(o.bucket), Key: aws.String(key)})
	return err
}

func (o *S3Object) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	out, err := o.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(o.bucket), Prefix: aws.String(prefix)})
	if err != nil {
		return nil, err
	}
	metas := make([]ObjectMeta, 0, len(out.Contents))
	for _, obj := range out.Contents {
		m := ObjectMeta{Key: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
		if obj.LastModified != nil {
			m.ModifiedAt = *obj.LastModified
		}
		metas = append(metas, m)
	}
	return metas, nil
}

func (o *S3Object) Head(ctx context.Context, key string) (ObjectMeta, error) {
	out, err := o.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(o.bucket), Key: aws.String(key)})
	if err != nil {
		return ObjectMeta{}, err
	}
	meta := ObjectMeta{Key: key, Size: aws.ToInt64(out.ContentLength), Metadata: out.Metadata}
	if out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		meta.ModifiedAt = *out.LastModified
	}
	return meta, nil
}

// memoryObjectKey builds the "memories/{id}" key named in spec.md §6.
func memoryObjectKey(id string) string {
	if strings.HasPrefix(id, "memories/") {
		return id
	}
	return "memories/" + id
}
