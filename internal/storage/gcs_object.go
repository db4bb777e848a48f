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
	"context"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// GCSObject is the Object adapter selected by OBJECT_STORE_DRIVER=gcs.
type GCSObject struct {
	client *storage.Client
	bucket string
}

// NewGCSObject builds a GCS-backed Object adapter using application
// default credentials.
func NewGCSObject(ctx context.Context, bucket string) (*GCSObject, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &GCSObject{client: client, bucket: bucket}, nil
}

func (o *GCSObject) obj(key string) *storage.ObjectHandle {
	return o.client.Bucket(o.bucket).Object(key)
}

func (o *GCSObject) Get(ctx context.Context, key string) ([]byte, ObjectMeta, error) {
	r, err := o.obj(key).NewReader(ctx)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, ObjectMeta{}, err
	}
	return data, ObjectMeta{Key: key, Size: r.Attrs.Size, ContentType: r.Attrs.ContentType, ModifiedAt: r.Attrs.LastModified}, nil
}

func (o *GCSObject) Put(ctx context.Context, key string, value []byte, contentType string, metadata map[string]string) error {
	w := o.obj(key).NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	if _, err := w.Write(value); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

func (o *GCSObject) Delete(ctx context.Context, key string) error {
	return o.obj(key).Delete(ctx)
}

func (o *GCSObject) List(ctx context.Context, prefix string) ([]ObjectMeta, error) {
	it := o.client.Bucket(o.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var out []ObjectMeta
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		out = append(out, ObjectMeta{Key: attrs.Name, Size: attrs.Size, ContentType: attrs.ContentType, ModifiedAt: attrs.Updated})
	}
	return out, nil
}

func (o *GCSObject) Head(ctx context.Context, key string) (ObjectMeta, error) {
	attrs, err := o.obj(key).Attrs(ctx)
	if err != nil {
		return ObjectMeta{}, err
	}
	return ObjectMeta{Key: attrs.Name, Size: attrs.Size, ContentType: attrs.ContentType, Metadata: attrs.Metadata, ModifiedAt: attrs.Updated}, nil
}

// Close releases the underlying GCS client.
func (o *GCSObject) Close() error { return o.client.Close() }
