package vectorindex

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	qdrant "github.com/qdrant/go-client/qdrant"

	"github.com/localmind/assistant/internal/corerr"
)

// QdrantConfig configures the remote Qdrant backend. Host/Port default to
// the stock local instance; APIKey is optional.
type QdrantConfig struct {
	Host    string
	Port    int
	APIKey  string
	Timeout time.Duration
}

// QdrantIndex is the remote Index backend, grounded on
// _examples/original_source/src/vector/qdrant_manager.rs: one collection
// create/drop, point upsert/search/get/delete, and a health check mapped
// onto the Qdrant gRPC client instead of the original's bespoke REST calls.
type QdrantIndex struct {
	client  *qdrant.Client
	timeout time.Duration
}

// NewQdrantIndex dials the configured Qdrant instance. The caller owns the
// returned client's lifetime; there is no background reconnect loop —
// failures surface as corerr.BackendUnavailable on each call instead.
func NewQdrantIndex(cfg QdrantConfig) (*QdrantIndex, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendUnavailable, "dial qdrant", err)
	}
	return &QdrantIndex{
		client:  client,
		timeout: cfg.Timeout,
	}, nil
}

func distanceOf(m DistanceMetric) qdrant.Distance {
	switch m {
	case DistanceEuclidean:
		return qdrant.Distance_Euclid
	case DistanceDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func (q *QdrantIndex) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, q.timeout)
}

func (q *QdrantIndex) CreateCollection(ctx context.Context, schema CollectionSchema) error {
	cctx, cancel := q.ctx(ctx)
	defer cancel()
	_, err := q.client.CreateCollection(cctx, &qdrant.CreateCollection{
		CollectionName: schema.Name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(schema.VectorSize),
			Distance: distanceOf(schema.DistanceMetric),
		}),
	})
	if err != nil {
		return corerr.Wrap(corerr.BackendFailure, "create collection "+schema.Name, err)
	}
	return nil
}

func (q *QdrantIndex) DeleteCollection(ctx context.Context, name string) error {
	cctx, cancel := q.ctx(ctx)
	defer cancel()
	_, err := q.client.DeleteCollection(cctx, name)
	if err != nil {
		return corerr.Wrap(corerr.BackendFailure, "delete collection "+name, err)
	}
	return nil
}

func (q *QdrantIndex) Upsert(ctx context.Context, collection string, points ...Point) error {
	if len(points) == 0 {
		return nil
	}
	cctx, cancel := q.ctx(ctx)
	defer cancel()

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		payload, err := payloadToQdrant(p.Payload)
		if err != nil {
			return corerr.Wrap(corerr.SerializationError, "encode payload for point "+p.ID, err)
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: payload,
		})
	}

	waitUpsert := true
	_, err := q.client.Upsert(cctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         qpoints,
		Wait:           &waitUpsert,
	})
	if err != nil {
		return corerr.Wrap(corerr.BackendFailure, "upsert into "+collection, err)
	}
	return nil
}

func (q *QdrantIndex) Delete(ctx context.Context, collection, id string) error {
	cctx, cancel := q.ctx(ctx)
	defer cancel()
	_, err := q.client.Delete(cctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorIDs([]*qdrant.PointId{qdrant.NewIDUUID(id)}),
	})
	if err != nil {
		return corerr.Wrap(corerr.BackendFailure, "delete "+id+" from "+collection, err)
	}
	return nil
}

func (q *QdrantIndex) Search(ctx context.Context, collection string, query SearchQuery) ([]SearchResult, error) {
	cctx, cancel := q.ctx(ctx)
	defer cancel()

	limit := uint64(query.Limit)
	if limit == 0 {
		limit = 10
	}

	req := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(query.Vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if query.Threshold > 0 {
		req.ScoreThreshold = &query.Threshold
	}

	resp, err := q.client.Query(cctx, req)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "search "+collection, err)
	}

	results := make([]SearchResult, 0, len(resp.GetResult()))
	for _, hit := range resp.GetResult() {
		payload := payloadFromQdrant(hit.GetPayload())
		// Qdrant has no native AND/NOT/OR tree matching this package's
		// Filter shape; apply it client-side over the returned payload
		// (the original_source chroma.rs adapter does the same).
		if !query.Filter.Matches(payload) {
			continue
		}
		results = append(results, SearchResult{
			ID:      idToString(hit.GetId()),
			Score:   hit.GetScore(),
			Payload: payload,
		})
	}
	return results, nil
}

func (q *QdrantIndex) Get(ctx context.Context, collection, id string) (*Point, error) {
	cctx, cancel := q.ctx(ctx)
	defer cancel()

	resp, err := q.client.Get(cctx, &qdrant.GetPoints{
		CollectionName: collection,
		Ids:            []*qdrant.PointId{qdrant.NewIDUUID(id)},
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "get "+id+" from "+collection, err)
	}
	if len(resp.GetResult()) == 0 {
		return nil, corerr.New(corerr.NotFound, "point "+id+" not found in "+collection)
	}
	hit := resp.GetResult()[0]
	return &Point{
		ID:      idToString(hit.GetId()),
		Vector:  hit.GetVectors().GetVector().GetData(),
		Payload: payloadFromQdrant(hit.GetPayload()),
	}, nil
}

func (q *QdrantIndex) Clear(ctx context.Context, collection string) error {
	cctx, cancel := q.ctx(ctx)
	defer cancel()
	_, err := q.client.Delete(cctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Points:         qdrant.NewPointsSelectorFilter(&qdrant.Filter{}),
	})
	if err != nil {
		return corerr.Wrap(corerr.BackendFailure, "clear "+collection, err)
	}
	return nil
}

func (q *QdrantIndex) HealthCheck(ctx context.Context) bool {
	cctx, cancel := q.ctx(ctx)
	defer cancel()
	_, err := q.client.ListCollections(cctx)
	return err == nil
}

func (q *QdrantIndex) Status(ctx context.Context) (Status, error) {
	cctx, cancel := q.ctx(ctx)
	defer cancel()
	names, err := q.client.ListCollections(cctx)
	if err != nil {
		return Status{Running: false, CheckedAt: time.Now()}, nil
	}
	var totalPoints int
	for _, name := range names {
		info, err := q.client.GetCollectionInfo(cctx, name)
		if err == nil {
			totalPoints += int(info.GetPointsCount())
		}
	}
	return Status{
		Running:     true,
		Collections: len(names),
		Points:      totalPoints,
		CheckedAt:   time.Now(),
	}, nil
}

func idToString(id *qdrant.PointId) string {
	if uuid := id.GetUuid(); uuid != "" {
		return uuid
	}
	return fmt.Sprintf("%d", id.GetNum())
}

func payloadToQdrant(payload map[string]interface{}) (map[string]*qdrant.Value, error) {
	out := make(map[string]*qdrant.Value, len(payload))
	for k, v := range payload {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}
		out[k] = qdrant.NewValue(generic)
	}
	return out, nil
}

func payloadFromQdrant(payload map[string]*qdrant.Value) map[string]interface{} {
	out := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		out[k] = v.AsInterface()
	}
	return out
}
