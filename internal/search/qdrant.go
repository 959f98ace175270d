package search

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"

	"github.com/fairdoc-ai/fairdoc/config"
)

// Point is one content chunk to upsert into the vector store.
type Point struct {
	ID          string
	Vector      []float32
	Filename    string
	Page        int
	ContentType string
	Content     string
	ImagePath   string
}

// Hit is one ranked search result.
type Hit struct {
	ID       string
	Score    float32
	Filename string
	Page     int
}

// Index implements semantic search over document content backed by
// Qdrant.
type Index struct {
	client     *qdrant.Client
	collection string
	dims       uint64
	logger     *log.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("search: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("search: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewIndex connects to the Qdrant server via gRPC.
func NewIndex(cfg config.QdrantConfig, logger *log.Logger) (*Index, error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[SEARCH] ", log.LstdFlags)
	}
	host, port, useTLS, err := parseURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("search: connect to qdrant at %s:%d: %w", host, port, err)
	}

	dims := cfg.Dims
	if dims == 0 {
		dims = 384
	}

	return &Index{
		client:     client,
		collection: cfg.Collection,
		dims:       dims,
		logger:     logger,
	}, nil
}

// EnsureCollection creates the collection if it doesn't already exist
// and ensures the payload indexes are present. CreateFieldIndex is
// idempotent on Qdrant, so index creation is always attempted.
func (q *Index) EnsureCollection(ctx context.Context) error {
	exists, err := q.client.CollectionExists(ctx, q.collection)
	if err != nil {
		return fmt.Errorf("search: check collection exists: %w", err)
	}

	if !exists {
		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: q.collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.dims,
				Distance: qdrant.Distance_Cosine,
			}),
		}); err != nil {
			return fmt.Errorf("search: create collection %q: %w", q.collection, err)
		}
		q.logger.Printf("qdrant: created collection %s dims=%d", q.collection, q.dims)
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range []string{"filename", "content_type"} {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: q.collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("search: ensure index on %q: %w", field, err)
		}
	}
	return nil
}

// Upsert writes the given points into the collection.
func (q *Index) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	qpoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		if uint64(len(p.Vector)) != q.dims {
			return fmt.Errorf("search: vector for %s has %d dims, collection expects %d", p.ID, len(p.Vector), q.dims)
		}
		payload := map[string]interface{}{
			"filename":     p.Filename,
			"page":         int64(p.Page),
			"content_type": p.ContentType,
		}
		if p.Content != "" {
			payload["content"] = p.Content
		}
		if p.ImagePath != "" {
			payload["image_path"] = p.ImagePath
		}
		qpoints = append(qpoints, &qdrant.PointStruct{
			Id:      qdrant.NewID(p.ID),
			Vectors: qdrant.NewVectors(p.Vector...),
			Payload: qdrant.NewValueMap(payload),
		})
	}

	wait := true
	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.collection,
		Points:         qpoints,
		Wait:           &wait,
	})
	if err != nil {
		return fmt.Errorf("search: upsert %d points: %w", len(qpoints), err)
	}
	return nil
}

// DeleteByFilename removes all points belonging to a document, keeping
// re-processing from leaving stale vectors behind.
func (q *Index) DeleteByFilename(ctx context.Context, filename string) error {
	_, err := q.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: q.collection,
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("filename", filename),
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("search: delete points for %q: %w", filename, err)
	}
	return nil
}

// Search returns the top results for a query vector, optionally
// filtered to a single document.
func (q *Index) Search(ctx context.Context, vector []float32, limit uint64, filename string) ([]Hit, error) {
	if uint64(len(vector)) != q.dims {
		return nil, fmt.Errorf("search: query vector has %d dims, collection expects %d", len(vector), q.dims)
	}
	if limit == 0 {
		limit = 5
	}

	query := &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
	}
	if filename != "" {
		query.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch("filename", filename),
			},
		}
	}

	results, err := q.client.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search: query: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hit := Hit{Score: r.GetScore()}
		if id := r.GetId(); id != nil {
			hit.ID = id.GetUuid()
		}
		if payload := r.GetPayload(); payload != nil {
			if v, ok := payload["filename"]; ok {
				hit.Filename = v.GetStringValue()
			}
			if v, ok := payload["page"]; ok {
				hit.Page = int(v.GetIntegerValue())
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Healthy reports whether Qdrant answers a health check, caching the
// result briefly and collapsing concurrent probes.
func (q *Index) Healthy(ctx context.Context) error {
	const ttl = 15 * time.Second
	if last := q.healthAt.Load(); last != 0 && time.Since(time.Unix(0, last)) < ttl {
		if errp, ok := q.healthErr.Load().(*error); ok && errp != nil {
			return *errp
		}
	}

	_, err, _ := q.healthGroup.Do("health", func() (interface{}, error) {
		_, err := q.client.HealthCheck(ctx)
		q.healthErr.Store(&err)
		q.healthAt.Store(time.Now().UnixNano())
		return nil, err
	})
	return err
}
