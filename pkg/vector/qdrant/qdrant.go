// Package qdrant provides a Qdrant vector driver over the gRPC go-client.
package qdrant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/papercomputeco/qagent/pkg/vector"
)

const (
	// DefaultPort is Qdrant's gRPC port.
	DefaultPort = 6334

	// DefaultCollectionName is the default collection for qagent chunks.
	DefaultCollectionName = "qagent"

	payloadDocID    = "doc_id"
	payloadSource   = "source"
	payloadSequence = "sequence"
	payloadText     = "text"
	payloadOrdinal  = "ordinal"

	metadataModel = "qagent_model"
)

// Driver implements vector.Driver against a Qdrant collection using cosine
// distance.
type Driver struct {
	client     *qdrant.Client
	collection string
	dims       uint
	model      string
	logger     *slog.Logger
}

// Config holds configuration for the Qdrant driver.
type Config struct {
	// Target is "host" or "host:port" of the gRPC endpoint.
	Target string

	// APIKey is sent when set.
	APIKey string

	// UseTLS enables TLS on the gRPC connection.
	UseTLS bool

	// Collection defaults to DefaultCollectionName.
	Collection string

	// Dimensions sizes the collection on creation and is enforced on Add.
	Dimensions uint

	// Model is the embedder identity recorded in the collection metadata.
	// Opening a collection recorded with another identity fails with
	// vector.ErrModelMismatch.
	Model string
}

// NewDriver connects to Qdrant and ensures the collection exists with the
// configured dimension.
func NewDriver(ctx context.Context, c Config, logger *slog.Logger) (*Driver, error) {
	if c.Target == "" {
		return nil, errors.New("qdrant target is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("qdrant embedding dimensions cannot be 0, must be configured")
	}

	host, port, err := splitTarget(c.Target)
	if err != nil {
		return nil, err
	}

	collection := c.Collection
	if collection == "" {
		collection = DefaultCollectionName
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: c.APIKey,
		UseTLS: c.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", vector.ErrConnection, err)
	}

	d := &Driver{
		client:     client,
		collection: collection,
		dims:       c.Dimensions,
		model:      c.Model,
		logger:     logger,
	}

	if err := d.ensureCollection(ctx); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("connected to Qdrant",
		"host", host,
		"port", port,
		"collection", collection,
		"dimensions", c.Dimensions,
	)
	return d, nil
}

func splitTarget(target string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(target)
	if err != nil {
		// no port given
		return target, DefaultPort, nil //nolint:nilerr
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid qdrant port %q: %w", portStr, err)
	}
	return host, port, nil
}

func (d *Driver) ensureCollection(ctx context.Context) error {
	exists, err := d.client.CollectionExists(ctx, d.collection)
	if err != nil {
		return fmt.Errorf("%w: checking collection %q: %w", vector.ErrConnection, d.collection, err)
	}

	if exists {
		info, err := d.client.GetCollectionInfo(ctx, d.collection)
		if err != nil {
			return fmt.Errorf("reading collection %q: %w", d.collection, err)
		}
		size := info.GetConfig().GetParams().GetVectorsConfig().GetParams().GetSize()
		if size != 0 && size != uint64(d.dims) {
			return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, configured %d",
				vector.ErrModelMismatch, d.collection, size, d.dims)
		}
		return checkModel(d.collection, d.model, info.GetConfig().GetMetadata())
	}

	create := &qdrant.CreateCollection{
		CollectionName: d.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(d.dims),
			Distance: qdrant.Distance_Cosine,
		}),
	}
	if d.model != "" {
		create.Metadata = qdrant.NewValueMap(map[string]any{metadataModel: d.model})
	}
	if err := d.client.CreateCollection(ctx, create); err != nil {
		return fmt.Errorf("creating collection %q: %w", d.collection, err)
	}
	return nil
}

// checkModel rejects a collection whose metadata records another embedder.
// Collections without a recorded identity are accepted.
func checkModel(collection, model string, metadata map[string]*qdrant.Value) error {
	stored := metadata[metadataModel].GetStringValue()
	if stored == "" || model == "" || stored == model {
		return nil
	}
	return fmt.Errorf("%w: collection %q was built with %q, configured %q",
		vector.ErrModelMismatch, collection, stored, model)
}

// pointID maps a document ID onto the UUID space Qdrant requires.
func pointID(docID string) *qdrant.PointId {
	return qdrant.NewID(uuid.NewSHA1(uuid.NameSpaceURL, []byte(docID)).String())
}

// Add upserts documents and waits for the write to be applied.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.CheckDimensions(d.dims, docs); err != nil {
		return err
	}

	base := time.Now().UnixMicro()
	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      pointID(doc.ID),
			Vectors: qdrant.NewVectors(doc.Embedding...),
			Payload: qdrant.NewValueMap(map[string]any{
				payloadDocID:    doc.ID,
				payloadSource:   doc.Source,
				payloadSequence: int64(doc.Sequence),
				payloadText:     doc.Text,
				payloadOrdinal:  base + int64(i),
			}),
		}
	}

	if _, err := d.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	}); err != nil {
		return fmt.Errorf("upserting points: %w", err)
	}

	d.logger.Debug("added documents to qdrant", "count", len(docs))
	return nil
}

// ReplaceSource upserts docs and then trims the older chunks of source.
// Qdrant has no multi-operation transactions, so a failure between the two
// steps leaves stale trailing chunks until the next replace.
func (d *Driver) ReplaceSource(ctx context.Context, source string, docs []vector.Document) error {
	if err := vector.CheckSource(source, docs); err != nil {
		return err
	}
	if err := d.Add(ctx, docs); err != nil {
		return err
	}
	return d.TrimSource(ctx, source, len(docs))
}

// Query finds the topK most similar documents to the given embedding.
func (d *Driver) Query(ctx context.Context, embedding []float32, topK int) ([]vector.QueryResult, error) {
	if topK <= 0 {
		return nil, nil
	}
	if uint(len(embedding)) != d.dims {
		return nil, fmt.Errorf("%w: query has %d dimensions, store expects %d",
			vector.ErrDimensionMismatch, len(embedding), d.dims)
	}

	points, err := d.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: d.collection,
		Query:          qdrant.NewQuery(embedding...),
		Limit:          qdrant.PtrOf(uint64(topK)),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying points: %w", err)
	}

	results := make([]vector.QueryResult, len(points))
	ordinals := make([]int64, len(points))
	for i, p := range points {
		results[i] = vector.QueryResult{
			Document: fromPayload(p.GetPayload()),
			Score:    p.GetScore(),
		}
		ordinals[i] = p.GetPayload()[payloadOrdinal].GetIntegerValue()
	}

	sortByScoreThenOrdinal(results, ordinals)

	d.logger.Debug("queried qdrant", "results", len(results))
	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qdrant.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}

	points, err := d.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: d.collection,
		Ids:            pointIDs,
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(true),
	})
	if err != nil {
		return nil, fmt.Errorf("getting points: %w", err)
	}

	docs := make([]vector.Document, len(points))
	for i, p := range points {
		docs[i] = fromPayload(p.GetPayload())
		docs[i].Embedding = p.GetVectors().GetVector().GetData()
	}
	return docs, nil
}

// TrimSource deletes the chunks of source with a sequence of at least from.
func (d *Driver) TrimSource(ctx context.Context, source string, from int) error {
	if _, err := d.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: d.collection,
		Wait:           qdrant.PtrOf(true),
		Points: qdrant.NewPointsSelectorFilter(&qdrant.Filter{
			Must: []*qdrant.Condition{
				qdrant.NewMatch(payloadSource, source),
				qdrant.NewRange(payloadSequence, &qdrant.Range{
					Gte: qdrant.PtrOf(float64(from)),
				}),
			},
		}),
	}); err != nil {
		return fmt.Errorf("trimming source %s: %w", source, err)
	}
	return nil
}

// Clear drops the collection and recreates it empty.
func (d *Driver) Clear(ctx context.Context) error {
	if err := d.client.DeleteCollection(ctx, d.collection); err != nil {
		return fmt.Errorf("deleting collection %q: %w", d.collection, err)
	}
	return d.ensureCollection(ctx)
}

// Count returns the exact number of points in the collection.
func (d *Driver) Count(ctx context.Context) (int, error) {
	n, err := d.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: d.collection,
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("counting points: %w", err)
	}
	return int(n), nil
}

// Close closes the gRPC connection.
func (d *Driver) Close() error {
	return d.client.Close()
}

func fromPayload(p map[string]*qdrant.Value) vector.Document {
	return vector.Document{
		ID:       p[payloadDocID].GetStringValue(),
		Source:   p[payloadSource].GetStringValue(),
		Sequence: int(p[payloadSequence].GetIntegerValue()),
		Text:     p[payloadText].GetStringValue(),
	}
}

func sortByScoreThenOrdinal(results []vector.QueryResult, ordinals []int64) {
	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		sa, sb := results[idx[a]].Score, results[idx[b]].Score
		if sa != sb {
			return sa > sb
		}
		return ordinals[idx[a]] < ordinals[idx[b]]
	})

	sorted := make([]vector.QueryResult, len(results))
	for i, j := range idx {
		sorted[i] = results[j]
	}
	copy(results, sorted)
}

var _ vector.Driver = (*Driver)(nil)
