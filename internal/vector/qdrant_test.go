package vector

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
)

// --- Mocks ---

type mockPoints struct {
	upserted   *pb.UpsertPoints
	upsertErr  error
	deleted    *pb.DeletePoints
	deleteErr  error
	searchReq  *pb.SearchPoints
	searchResp *pb.SearchResponse
	searchErr  error
	count      uint64
	countErr   error
}

func (m *mockPoints) Upsert(_ context.Context, in *pb.UpsertPoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.upserted = in
	return &pb.PointsOperationResponse{}, m.upsertErr
}

func (m *mockPoints) Delete(_ context.Context, in *pb.DeletePoints, _ ...grpc.CallOption) (*pb.PointsOperationResponse, error) {
	m.deleted = in
	return &pb.PointsOperationResponse{}, m.deleteErr
}

func (m *mockPoints) Search(_ context.Context, in *pb.SearchPoints, _ ...grpc.CallOption) (*pb.SearchResponse, error) {
	m.searchReq = in
	return m.searchResp, m.searchErr
}

func (m *mockPoints) Count(_ context.Context, _ *pb.CountPoints, _ ...grpc.CallOption) (*pb.CountResponse, error) {
	if m.countErr != nil {
		return nil, m.countErr
	}
	return &pb.CountResponse{Result: &pb.CountResult{Count: m.count}}, nil
}

type mockCollections struct {
	existing  []string
	listErr   error
	created   *pb.CreateCollection
	createErr error
	deleted   bool
	deleteErr error
}

func (m *mockCollections) List(_ context.Context, _ *pb.ListCollectionsRequest, _ ...grpc.CallOption) (*pb.ListCollectionsResponse, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	resp := &pb.ListCollectionsResponse{}
	for _, name := range m.existing {
		resp.Collections = append(resp.Collections, &pb.CollectionDescription{Name: name})
	}
	return resp, nil
}

func (m *mockCollections) Create(_ context.Context, in *pb.CreateCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.created = in
	return &pb.CollectionOperationResponse{Result: true}, m.createErr
}

func (m *mockCollections) Delete(_ context.Context, _ *pb.DeleteCollection, _ ...grpc.CallOption) (*pb.CollectionOperationResponse, error) {
	m.deleted = true
	m.existing = nil
	return &pb.CollectionOperationResponse{Result: true}, m.deleteErr
}

func scored(fragmentID string, score float32) *pb.ScoredPoint {
	return &pb.ScoredPoint{
		Id:    &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(fragmentID)}},
		Score: score,
		Payload: map[string]*pb.Value{
			payloadFragmentID: {Kind: &pb.Value_StringValue{StringValue: fragmentID}},
		},
	}
}

// --- Tests ---

func TestQdrantIndex_EnsureCollection(t *testing.T) {
	cols := &mockCollections{existing: []string{"cards"}}
	q := NewQdrantIndexWithClients(&mockPoints{}, cols, "cards", 4)
	if err := q.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if cols.created != nil {
		t.Error("existing collection should not be recreated")
	}

	cols = &mockCollections{}
	q = NewQdrantIndexWithClients(&mockPoints{}, cols, "cards", 384)
	if err := q.EnsureCollection(context.Background()); err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	if cols.created == nil {
		t.Fatal("missing collection was not created")
	}
	params := cols.created.GetVectorsConfig().GetParams()
	if params.GetSize() != 384 {
		t.Errorf("size=%d, want 384", params.GetSize())
	}
	if params.GetDistance() != pb.Distance_Cosine {
		t.Errorf("distance=%v, want cosine", params.GetDistance())
	}
}

func TestQdrantIndex_EnsureCollectionErrors(t *testing.T) {
	tests := []struct {
		name string
		cols *mockCollections
	}{
		{"list fails", &mockCollections{listErr: errors.New("rpc fail")}},
		{"create fails", &mockCollections{createErr: errors.New("create fail")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewQdrantIndexWithClients(&mockPoints{}, tt.cols, "cards", 4)
			if err := q.EnsureCollection(context.Background()); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestQdrantIndex_Upsert(t *testing.T) {
	pts := &mockPoints{}
	q := NewQdrantIndexWithClients(pts, &mockCollections{}, "cards", 2)

	if err := q.Upsert(context.Background(), []string{"X_0", "X_1"}, [][]float32{{1, 0}, {0, 1}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if pts.upserted == nil || len(pts.upserted.GetPoints()) != 2 {
		t.Fatalf("upserted=%v, want 2 points", pts.upserted)
	}

	p := pts.upserted.GetPoints()[0]
	if p.GetId().GetUuid() != PointID("X_0") {
		t.Errorf("point id=%s, want %s", p.GetId().GetUuid(), PointID("X_0"))
	}
	if got := p.GetPayload()[payloadFragmentID].GetStringValue(); got != "X_0" {
		t.Errorf("fragment id payload=%q", got)
	}
	if !pts.upserted.GetWait() {
		t.Error("upsert should wait for the write")
	}
}

func TestQdrantIndex_UpsertValidation(t *testing.T) {
	pts := &mockPoints{}
	q := NewQdrantIndexWithClients(pts, &mockCollections{}, "cards", 2)
	ctx := context.Background()
	if err := q.Upsert(ctx, nil, nil); err != nil {
		t.Errorf("empty upsert: %v", err)
	}
	if pts.upserted != nil {
		t.Error("empty upsert should not call qdrant")
	}
	if err := q.Upsert(ctx, []string{"a"}, [][]float32{{1, 0, 0}}); err == nil {
		t.Error("expected dimension mismatch error")
	}
	if err := q.Upsert(ctx, []string{"a", "b"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected length mismatch error")
	}

	pts.upsertErr = errors.New("unavailable")
	if err := q.Upsert(ctx, []string{"a"}, [][]float32{{1, 0}}); err == nil {
		t.Error("expected upstream error")
	}
}

func TestPointID_deterministic(t *testing.T) {
	if PointID("Ada Lovelace-abc123_0") != PointID("Ada Lovelace-abc123_0") {
		t.Error("same fragment id should map to the same point id")
	}
	if PointID("Ada Lovelace-abc123_0") == PointID("Ada Lovelace-abc123_1") {
		t.Error("different fragment ids should map to different point ids")
	}
}

func TestQdrantIndex_Search(t *testing.T) {
	pts := &mockPoints{searchResp: &pb.SearchResponse{Result: []*pb.ScoredPoint{
		scored("X_2", 0.9),
		scored("Y_1", 0.8),
		{Score: 0.7}, // no payload, skipped
	}}}
	q := NewQdrantIndexWithClients(pts, &mockCollections{}, "cards", 2)

	results, err := q.Search(context.Background(), []float32{1, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "X_2" {
		t.Errorf("top result=%s, want X_2", results[0].ID)
	}
	if d := results[0].Distance(); math.Abs(float64(d)-0.1) > 1e-6 {
		t.Errorf("distance=%v, want 0.1", d)
	}
	if pts.searchReq.GetLimit() != 5 {
		t.Errorf("limit=%d, want 5", pts.searchReq.GetLimit())
	}

	if _, err := q.Search(context.Background(), []float32{1}, 5); err == nil {
		t.Error("expected dimension mismatch error")
	}

	pts.searchErr = errors.New("down")
	if _, err := q.Search(context.Background(), []float32{1, 0}, 5); err == nil {
		t.Error("expected upstream error")
	}
}

func TestQdrantIndex_RemoveReset(t *testing.T) {
	pts := &mockPoints{count: 8}
	cols := &mockCollections{existing: []string{"cards"}}
	q := NewQdrantIndexWithClients(pts, cols, "cards", 2)
	ctx := context.Background()

	if err := q.Remove(ctx, []string{"X_0", "X_1"}); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if pts.deleted == nil || len(pts.deleted.GetPoints().GetPoints().GetIds()) != 2 {
		t.Fatalf("deleted=%v, want 2 ids", pts.deleted)
	}

	if n, err := q.Size(ctx); err != nil || n != 8 {
		t.Errorf("Size=(%d, %v), want 8", n, err)
	}

	if err := q.Reset(ctx); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if !cols.deleted {
		t.Error("reset should drop the collection")
	}
	if cols.created == nil {
		t.Error("reset should recreate the collection")
	}

	for name, err := range map[string]error{"Save": q.Save("ignored"), "Load": q.Load("ignored"), "Close": q.Close()} {
		if err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestQdrantIndex_SizeReportsCountFailure(t *testing.T) {
	down := errors.New("rpc error: code = DeadlineExceeded desc = context deadline exceeded")
	q := NewQdrantIndexWithClients(&mockPoints{count: 8, countErr: down}, &mockCollections{}, "cards", 2)

	n, err := q.Size(context.Background())
	if !errors.Is(err, down) {
		t.Fatalf("Size error=%v, want %v", err, down)
	}
	if n != 0 {
		t.Errorf("Size=%d on failure", n)
	}
	if !strings.Contains(err.Error(), "count points") {
		t.Errorf("error %q should name the operation", err)
	}
}
