package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// payloadFragmentID is the payload key holding the original fragment id of a point.
const payloadFragmentID = "fragment_id"

// pointNamespace scopes the deterministic point UUIDs derived from fragment ids.
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("meishi/fragment"))

// PointsAPI is the subset of pb.PointsClient used by QdrantIndex.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeletePoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient used by QdrantIndex.
type CollectionsAPI interface {
	List(ctx context.Context, in *pb.ListCollectionsRequest, opts ...grpc.CallOption) (*pb.ListCollectionsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// QdrantIndex is a VectorIndex backed by a Qdrant collection over gRPC.
// Points use cosine distance; Qdrant reports cosine similarity as the score.
type QdrantIndex struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	collection  string
	dimensions  int
	timeout     time.Duration
}

// NewQdrantIndex connects to Qdrant at addr and ensures the collection exists.
func NewQdrantIndex(ctx context.Context, addr, collection string, dimensions int) (*QdrantIndex, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("dimensions must be positive")
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial qdrant %s: %w", addr, err)
	}
	q := NewQdrantIndexWithClients(pb.NewPointsClient(conn), pb.NewCollectionsClient(conn), collection, dimensions)
	q.conn = conn
	if err := q.EnsureCollection(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return q, nil
}

// NewQdrantIndexWithClients builds an index over existing clients without dialing.
func NewQdrantIndexWithClients(points PointsAPI, collections CollectionsAPI, collection string, dimensions int) *QdrantIndex {
	return &QdrantIndex{
		points:      points,
		collections: collections,
		collection:  collection,
		dimensions:  dimensions,
		timeout:     10 * time.Second,
	}
}

// Type returns the index type identifier.
func (q *QdrantIndex) Type() string {
	return string(IndexTypeQdrant)
}

// EnsureCollection creates the collection if it doesn't exist.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	list, err := q.collections.List(ctx, &pb.ListCollectionsRequest{})
	if err != nil {
		return fmt.Errorf("list collections: %w", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == q.collection {
			return nil
		}
	}
	_, err = q.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(q.dimensions),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", q.collection, err)
	}
	return nil
}

// PointID returns the deterministic Qdrant point UUID of a fragment id.
func PointID(fragmentID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(fragmentID)).String()
}

func pointIDs(ids []string) []*pb.PointId {
	out := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		out[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(id)}}
	}
	return out
}

// Upsert stores vectors; point ids are derived from fragment ids so re-adding overwrites.
func (q *QdrantIndex) Upsert(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch")
	}
	if len(ids) == 0 {
		return nil
	}
	pids := pointIDs(ids)
	points := make([]*pb.PointStruct, len(ids))
	for i, id := range ids {
		if len(vectors[i]) != q.dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(vectors[i]), q.dimensions)
		}
		points[i] = &pb.PointStruct{
			Id: pids[i],
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: vectors[i]},
				},
			},
			Payload: map[string]*pb.Value{
				payloadFragmentID: {Kind: &pb.Value_StringValue{StringValue: id}},
			},
		}
	}
	wait := true
	_, err := q.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search performs k-NN cosine search and maps points back to fragment ids.
func (q *QdrantIndex) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	if len(query) != q.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), q.dimensions)
	}
	if k <= 0 {
		return nil, nil
	}
	resp, err := q.points.Search(ctx, &pb.SearchPoints{
		CollectionName: q.collection,
		Vector:         query,
		Limit:          uint64(k),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	results := make([]*VectorResult, 0, len(resp.GetResult()))
	for _, p := range resp.GetResult() {
		id := p.GetPayload()[payloadFragmentID].GetStringValue()
		if id == "" {
			continue
		}
		results = append(results, &VectorResult{ID: id, Score: float64(p.GetScore())})
	}
	return results, nil
}

// Remove deletes points by fragment id.
func (q *QdrantIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	wait := true
	_, err := q.points.Delete(ctx, &pb.DeletePoints{
		CollectionName: q.collection,
		Wait:           &wait,
		Points: &pb.PointsSelector{
			PointsSelectorOneOf: &pb.PointsSelector_Points{
				Points: &pb.PointsIdsList{Ids: pointIDs(ids)},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("delete %d points: %w", len(ids), err)
	}
	return nil
}

// Reset drops and recreates the collection.
func (q *QdrantIndex) Reset(ctx context.Context) error {
	if _, err := q.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: q.collection}); err != nil {
		return fmt.Errorf("delete collection %s: %w", q.collection, err)
	}
	return q.EnsureCollection(ctx)
}

// Save is a no-op; Qdrant persists server side.
func (q *QdrantIndex) Save(path string) error { return nil }

// Load is a no-op; Qdrant persists server side.
func (q *QdrantIndex) Load(path string) error { return nil }

// Size returns the exact point count.
func (q *QdrantIndex) Size(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()
	exact := true
	resp, err := q.points.Count(ctx, &pb.CountPoints{CollectionName: q.collection, Exact: &exact})
	if err != nil {
		return 0, fmt.Errorf("count points: %w", err)
	}
	return int(resp.GetResult().GetCount()), nil
}

// Close closes the underlying gRPC connection, if this index owns one.
func (q *QdrantIndex) Close() error {
	if q.conn == nil {
		return nil
	}
	return q.conn.Close()
}
