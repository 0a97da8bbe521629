// Package chroma provides a Chroma vector database driver implementation.
package chroma

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/papercomputeco/qagent/pkg/vector"
)

const (
	// DefaultCollectionName is the default collection name for storing qagent chunks.
	DefaultCollectionName = "qagent"

	// DefaultMaxRetries is the default number of connection attempts.
	DefaultMaxRetries = 5

	// DefaultRetryDelay is the delay before the first retry.
	DefaultRetryDelay = 500 * time.Millisecond

	// DefaultMaxRetryDelay caps the exponential backoff.
	DefaultMaxRetryDelay = 5 * time.Second

	collectionsPath = "/api/v2/tenants/default_tenant/databases/default_database/collections"

	metadataModel      = "qagent:model"
	metadataDimensions = "qagent:dimensions"
)

// Driver implements vector.Driver using Chroma's REST API.
type Driver struct {
	baseURL        string
	collectionName string
	collectionID   string
	dims           uint
	model          string
	httpClient     *http.Client
	logger         *slog.Logger
}

// Config holds configuration for the Chroma driver.
type Config struct {
	// URL is the Chroma server URL (e.g., "http://localhost:8000").
	URL string

	// CollectionName is the name of the collection to use.
	// Defaults to DefaultCollectionName if empty.
	CollectionName string

	// Dimensions, when set, is enforced on every Add.
	Dimensions uint

	// Model is the embedder identity recorded in the collection metadata.
	// Opening a collection recorded with another identity or dimension fails
	// with vector.ErrModelMismatch.
	Model string

	// MaxRetries is the number of attempts made to reach Chroma on startup.
	MaxRetries int

	// RetryDelay is the initial delay between attempts. It doubles on every
	// retry up to MaxRetryDelay.
	RetryDelay    time.Duration
	MaxRetryDelay time.Duration
}

// NewDriver creates a new Chroma vector driver. Chroma may still be starting
// when qagent launches, so collection setup is retried with backoff.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	if c.URL == "" {
		return nil, errors.New("chroma URL is required")
	}

	collectionName := c.CollectionName
	if collectionName == "" {
		collectionName = DefaultCollectionName
	}
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	delay := c.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	maxDelay := c.MaxRetryDelay
	if maxDelay <= 0 {
		maxDelay = DefaultMaxRetryDelay
	}

	d := &Driver{
		baseURL:        c.URL,
		collectionName: collectionName,
		dims:           c.Dimensions,
		model:          c.Model,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger,
	}

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		collectionID, err := d.getOrCreateCollection(context.Background())
		if err == nil {
			d.collectionID = collectionID
			lastErr = nil
			break
		}
		if errors.Is(err, vector.ErrModelMismatch) {
			return nil, err
		}
		lastErr = err

		if attempt < maxRetries {
			logger.Warn("chroma not ready, retrying",
				"attempt", attempt,
				"delay", delay,
				"error", err,
			)
			time.Sleep(delay)
			delay = min(delay*2, maxDelay)
		}
	}
	if lastErr != nil {
		return nil, fmt.Errorf("%w: getting or creating collection %q after %d attempts: %w",
			vector.ErrConnection, collectionName, maxRetries, lastErr)
	}

	logger.Info("connected to Chroma",
		"url", c.URL,
		"collection", collectionName,
		"collection_id", d.collectionID,
	)

	return d, nil
}

// getOrCreateCollection gets an existing collection or creates a new one
// using cosine space.
func (d *Driver) getOrCreateCollection(ctx context.Context) (string, error) {
	var collection chromaCollection
	err := d.do(ctx, http.MethodGet, collectionsPath+"/"+d.collectionName, nil, &collection)
	if err == nil {
		if err := d.checkMetadata(collection.Metadata); err != nil {
			return "", err
		}
		return collection.ID, nil
	}

	metadata := map[string]any{"hnsw:space": "cosine"}
	if d.model != "" {
		metadata[metadataModel] = d.model
	}
	if d.dims != 0 {
		metadata[metadataDimensions] = int64(d.dims)
	}
	createBody := chromaCreateRequest{
		Name:     d.collectionName,
		Metadata: metadata,
	}
	if err := d.do(ctx, http.MethodPost, collectionsPath, createBody, &collection); err != nil {
		return "", fmt.Errorf("creating collection: %w", err)
	}
	return collection.ID, nil
}

// checkMetadata rejects a collection recorded with another embedder. A
// collection without recorded values was created before they were written
// and is accepted.
func (d *Driver) checkMetadata(m map[string]any) error {
	if v, ok := m[metadataModel].(string); ok && d.model != "" && v != d.model {
		return fmt.Errorf("%w: collection %q was built with %q, configured %q",
			vector.ErrModelMismatch, d.collectionName, v, d.model)
	}
	// JSON numbers decode as float64
	if v, ok := m[metadataDimensions].(float64); ok && d.dims != 0 && uint(v) != d.dims {
		return fmt.Errorf("%w: collection %q holds %d-dimensional vectors, configured %d",
			vector.ErrModelMismatch, d.collectionName, uint(v), d.dims)
	}
	return nil
}

func (d *Driver) collectionPath(op string) string {
	return fmt.Sprintf("%s/%s/%s", collectionsPath, d.collectionID, op)
}

// do sends a JSON request and decodes the JSON response into out when out is
// non-nil. Any status outside 2xx is an error carrying the response body.
func (d *Driver) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, d.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// Add upserts documents with their embeddings.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.CheckDimensions(d.dims, docs); err != nil {
		return err
	}

	base := time.Now().UnixMicro()
	reqBody := chromaUpsertRequest{
		IDs:        make([]string, len(docs)),
		Embeddings: make([][]float32, len(docs)),
		Metadatas:  make([]map[string]any, len(docs)),
		Documents:  make([]string, len(docs)),
	}
	for i, doc := range docs {
		reqBody.IDs[i] = doc.ID
		reqBody.Embeddings[i] = doc.Embedding
		reqBody.Documents[i] = doc.Text
		reqBody.Metadatas[i] = map[string]any{
			"source":   doc.Source,
			"sequence": doc.Sequence,
			"ordinal":  base + int64(i),
		}
	}

	if err := d.do(ctx, http.MethodPost, d.collectionPath("upsert"), reqBody, nil); err != nil {
		return fmt.Errorf("upserting documents: %w", err)
	}

	d.logger.Debug("added documents to chroma", "count", len(docs))
	return nil
}

// ReplaceSource upserts docs and then trims the older chunks of source.
// Chroma has no multi-operation transactions, so a failure between the two
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

	reqBody := chromaQueryRequest{
		QueryEmbeddings: [][]float32{embedding},
		NResults:        topK,
		Include:         []string{"metadatas", "distances", "documents"},
	}

	var queryResp chromaQueryResponse
	if err := d.do(ctx, http.MethodPost, d.collectionPath("query"), reqBody, &queryResp); err != nil {
		return nil, fmt.Errorf("querying: %w", err)
	}

	// Process first group (we only query with one embedding)
	if len(queryResp.IDs) == 0 || len(queryResp.IDs[0]) == 0 {
		return nil, nil
	}

	ids := queryResp.IDs[0]
	var distances []float32
	if len(queryResp.Distances) > 0 {
		distances = queryResp.Distances[0]
	}
	var metadatas []map[string]any
	if len(queryResp.Metadatas) > 0 {
		metadatas = queryResp.Metadatas[0]
	}
	var documents []string
	if len(queryResp.Documents) > 0 {
		documents = queryResp.Documents[0]
	}

	results := make([]vector.QueryResult, len(ids))
	ordinals := make([]float64, len(ids))
	for i, id := range ids {
		results[i].ID = id
		if i < len(metadatas) {
			results[i].Source, results[i].Sequence, ordinals[i] = fromMetadata(metadatas[i])
		}
		if i < len(documents) {
			results[i].Text = documents[i]
		}
		// cosine space distance is 1 - cosine similarity
		if i < len(distances) {
			results[i].Score = 1 - distances[i]
		}
	}

	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ra, rb := results[idx[a]], results[idx[b]]
		if ra.Score != rb.Score {
			return ra.Score > rb.Score
		}
		return ordinals[idx[a]] < ordinals[idx[b]]
	})
	sorted := make([]vector.QueryResult, len(results))
	for i, j := range idx {
		sorted[i] = results[j]
	}

	d.logger.Debug("queried chroma", "results", len(sorted))
	return sorted, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	reqBody := chromaGetRequest{
		IDs:     ids,
		Include: []string{"metadatas", "documents", "embeddings"},
	}

	var getResp chromaGetResponse
	if err := d.do(ctx, http.MethodPost, d.collectionPath("get"), reqBody, &getResp); err != nil {
		return nil, fmt.Errorf("getting documents: %w", err)
	}

	docs := make([]vector.Document, len(getResp.IDs))
	for i, id := range getResp.IDs {
		docs[i].ID = id
		if i < len(getResp.Metadatas) {
			docs[i].Source, docs[i].Sequence, _ = fromMetadata(getResp.Metadatas[i])
		}
		if i < len(getResp.Documents) {
			docs[i].Text = getResp.Documents[i]
		}
		if i < len(getResp.Embeddings) {
			docs[i].Embedding = getResp.Embeddings[i]
		}
	}

	return docs, nil
}

// TrimSource deletes the chunks of source with a sequence of at least from.
func (d *Driver) TrimSource(ctx context.Context, source string, from int) error {
	reqBody := chromaDeleteRequest{
		Where: map[string]any{
			"$and": []map[string]any{
				{"source": map[string]any{"$eq": source}},
				{"sequence": map[string]any{"$gte": from}},
			},
		},
	}

	if err := d.do(ctx, http.MethodPost, d.collectionPath("delete"), reqBody, nil); err != nil {
		return fmt.Errorf("trimming source %s: %w", source, err)
	}
	return nil
}

// Clear drops the collection and creates it again empty.
func (d *Driver) Clear(ctx context.Context) error {
	if err := d.do(ctx, http.MethodDelete, collectionsPath+"/"+d.collectionName, nil, nil); err != nil {
		return fmt.Errorf("deleting collection: %w", err)
	}

	collectionID, err := d.getOrCreateCollection(ctx)
	if err != nil {
		return err
	}
	d.collectionID = collectionID

	d.logger.Debug("cleared chroma collection", "collection_id", collectionID)
	return nil
}

// Count returns the number of documents in the collection.
func (d *Driver) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.do(ctx, http.MethodGet, d.collectionPath("count"), nil, &n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	d.httpClient.CloseIdleConnections()
	return nil
}

func fromMetadata(m map[string]any) (source string, sequence int, ordinal float64) {
	if m == nil {
		return "", 0, 0
	}
	source, _ = m["source"].(string)
	if seq, ok := m["sequence"].(float64); ok {
		sequence = int(seq)
	}
	ordinal, _ = m["ordinal"].(float64)
	return source, sequence, ordinal
}

var _ vector.Driver = (*Driver)(nil)
