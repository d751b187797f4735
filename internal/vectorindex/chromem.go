package vectorindex

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/localmind/assistant/internal/corerr"
)

const payloadMetaKey = "_payload_json"

// ChromemIndex is the embedded, no-external-process Index backend used when
// no vector.host is configured. Grounded on
// _examples/original_source/src/services/chroma.rs's collection-per-name,
// document-with-metadata shape, ported onto chromem-go's embedded store.
//
// chromem-go's native "where" filter only supports flat string equality, so
// the AND/NOT/OR/range tree from §4.7 is applied client-side against a
// serialized payload stashed in each document's metadata, exactly like the
// Qdrant adapter's post-filter step.
type ChromemIndex struct {
	db *chromem.DB

	mu      sync.Mutex
	schemas map[string]CollectionSchema
}

// NewChromemIndex opens (or creates) a chromem-go database rooted at path.
// An empty path keeps everything in memory.
func NewChromemIndex(path string) (*ChromemIndex, error) {
	var db *chromem.DB
	var err error
	if path == "" {
		db = chromem.NewDB()
	} else {
		db, err = chromem.NewPersistentDB(path, false)
	}
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendUnavailable, "open chromem db at "+path, err)
	}
	return &ChromemIndex{db: db, schemas: make(map[string]CollectionSchema)}, nil
}

func (c *ChromemIndex) CreateCollection(ctx context.Context, schema CollectionSchema) error {
	_, err := c.db.CreateCollection(schema.Name, nil, nil)
	if err != nil {
		return corerr.Wrap(corerr.BackendFailure, "create collection "+schema.Name, err)
	}
	c.mu.Lock()
	c.schemas[schema.Name] = schema
	c.mu.Unlock()
	return nil
}

func (c *ChromemIndex) DeleteCollection(ctx context.Context, name string) error {
	if err := c.db.DeleteCollection(name); err != nil {
		return corerr.Wrap(corerr.BackendFailure, "delete collection "+name, err)
	}
	c.mu.Lock()
	delete(c.schemas, name)
	c.mu.Unlock()
	return nil
}

func (c *ChromemIndex) collection(name string) (*chromem.Collection, error) {
	col := c.db.GetCollection(name, nil)
	if col == nil {
		return nil, corerr.New(corerr.NotFound, "collection "+name+" does not exist")
	}
	return col, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, name string, points ...Point) error {
	col, err := c.collection(name)
	if err != nil {
		return err
	}
	for _, p := range points {
		raw, err := json.Marshal(p.Payload)
		if err != nil {
			return corerr.Wrap(corerr.SerializationError, "encode payload for point "+p.ID, err)
		}
		meta := flattenMetadata(p.Payload)
		meta[payloadMetaKey] = string(raw)
		doc := chromem.Document{
			ID:       p.ID,
			Metadata: meta,
			Embedding: p.Vector,
		}
		// AddDocument overwrites by ID, giving the last-writer-wins
		// semantics §4.7 requires for concurrent upserts to the same id.
		if err := col.AddDocument(ctx, doc); err != nil {
			return corerr.Wrap(corerr.BackendFailure, "upsert "+p.ID+" into "+name, err)
		}
	}
	return nil
}

func (c *ChromemIndex) Delete(ctx context.Context, name, id string) error {
	col, err := c.collection(name)
	if err != nil {
		return err
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return corerr.Wrap(corerr.BackendFailure, "delete "+id+" from "+name, err)
	}
	return nil
}

func (c *ChromemIndex) Search(ctx context.Context, name string, query SearchQuery) ([]SearchResult, error) {
	col, err := c.collection(name)
	if err != nil {
		return nil, err
	}

	limit := query.Limit
	if limit <= 0 {
		limit = 10
	}
	// Over-fetch so the client-side filter still has enough candidates left
	// after rejecting non-matches; chromem has no server-side AND/NOT/OR.
	fetchN := limit * 4
	if fetchN > col.Count() {
		fetchN = col.Count()
	}
	if fetchN == 0 {
		return nil, nil
	}

	results, err := col.QueryEmbedding(ctx, query.Vector, fetchN, nil, nil)
	if err != nil {
		return nil, corerr.Wrap(corerr.BackendFailure, "search "+name, err)
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })

	out := make([]SearchResult, 0, limit)
	for _, r := range results {
		if query.Threshold > 0 && r.Similarity < query.Threshold {
			continue
		}
		payload := unmarshalPayload(r.Metadata)
		if !query.Filter.Matches(payload) {
			continue
		}
		out = append(out, SearchResult{ID: r.ID, Score: r.Similarity, Payload: payload})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (c *ChromemIndex) Get(ctx context.Context, name, id string) (*Point, error) {
	col, err := c.collection(name)
	if err != nil {
		return nil, err
	}
	doc, err := col.GetByID(ctx, id)
	if err != nil {
		return nil, corerr.New(corerr.NotFound, "point "+id+" not found in "+name)
	}
	return &Point{
		ID:      doc.ID,
		Vector:  doc.Embedding,
		Payload: unmarshalPayload(doc.Metadata),
	}, nil
}

func (c *ChromemIndex) Clear(ctx context.Context, name string) error {
	schema, hadSchema := c.schemas[name]
	if err := c.DeleteCollection(ctx, name); err != nil {
		return err
	}
	if hadSchema {
		return c.CreateCollection(ctx, schema)
	}
	return c.CreateCollection(ctx, CollectionSchema{Name: name})
}

func (c *ChromemIndex) HealthCheck(ctx context.Context) bool {
	return c.db != nil
}

func (c *ChromemIndex) Status(ctx context.Context) (Status, error) {
	names := c.db.ListCollections()
	total := 0
	for name := range names {
		if col := c.db.GetCollection(name, nil); col != nil {
			total += col.Count()
		}
	}
	return Status{
		Running:     true,
		Version:     "embedded",
		Collections: len(names),
		Points:      total,
		CheckedAt:   time.Now(),
	}, nil
}

// flattenMetadata keeps string and json.Number fields mirrored into
// chromem's native metadata map so its own equality "where" filters remain
// usable by callers that bypass this package's Filter tree. Other value
// types (bool, float64, slices, ...) are not mirrored.
func flattenMetadata(payload map[string]interface{}) map[string]string {
	meta := make(map[string]string, len(payload))
	for k, v := range payload {
		switch val := v.(type) {
		case string:
			meta[k] = val
		case json.Number:
			meta[k] = val.String()
		}
	}
	return meta
}

func unmarshalPayload(meta map[string]string) map[string]interface{} {
	raw, ok := meta[payloadMetaKey]
	if !ok {
		return nil
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &payload); err != nil {
		return nil
	}
	return payload
}
