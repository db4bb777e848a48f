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

package memory

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// mongoDoc is the wire shape stored in the memories collection. Memory
// content is schemaless by design, so it round-trips as bson.M rather
// than a typed field set.
type mongoDoc struct {
	MemoryID    string                 `bson:"memory_id"`
	Type        string                 `bson:"type"`
	Content     map[string]interface{} `bson:"content"`
	Tags        []string               `bson:"tags"`
	Importance  float64                `bson:"importance"`
	Embedding   []float64              `bson:"embedding,omitempty"`
	LinkedIDs   []string               `bson:"linked_ids,omitempty"`
	CreatedAt   time.Time              `bson:"created_at"`
	AccessedAt  time.Time              `bson:"accessed_at"`
	AccessCount int64                  `bson:"access_count"`
}

// MongoBackend mirrors the memory store into a MongoDB collection,
// giving it durability across restarts without constraining the
// in-memory recall paths to a query language.
type MongoBackend struct {
	coll *mongo.Collection
}

// NewMongoBackend connects to uri and targets database/memories.
func NewMongoBackend(ctx context.Context, uri, database string) (*MongoBackend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}
	coll := client.Database(database).Collection("memories")
	return &MongoBackend{coll: coll}, nil
}

// Save upserts a memory document by memory_id.
func (b *MongoBackend) Save(m *Memory) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := mongoDoc{
		MemoryID: m.MemoryID, Type: string(m.Type), Content: m.Content, Tags: m.Tags,
		Importance: m.Importance, Embedding: m.Embedding, LinkedIDs: m.LinkedIDs,
		CreatedAt: m.CreatedAt, AccessedAt: m.AccessedAt, AccessCount: m.AccessCount,
	}
	_, err := b.coll.UpdateOne(ctx,
		bson.M{"memory_id": m.MemoryID},
		bson.M{"$set": doc},
		options.Update().SetUpsert(true),
	)
	return err
}

// Load reads back every replicated memory (used to warm the in-memory
// store on startup).
func (b *MongoBackend) Load() ([]*Memory, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cur, err := b.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var out []*Memory
	for cur.Next(ctx) {
		var doc mongoDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		out = append(out, &Memory{
			MemoryID: doc.MemoryID, Type: Type(doc.Type), Content: doc.Content, Tags: doc.Tags,
			Importance: doc.Importance, Embedding: doc.Embedding, LinkedIDs: doc.LinkedIDs,
			CreatedAt: doc.CreatedAt, AccessedAt: doc.AccessedAt, AccessCount: doc.AccessCount,
		})
	}
	return out, cur.Err()
}
