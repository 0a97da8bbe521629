// Package sqlitevec provides a SQLite-backed vector driver using sqlite-vec.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/qagent/pkg/vector"
)

const (
	metaModel      = "model"
	metaDimensions = "dimensions"
)

// Driver implements vector.Driver using SQLite with sqlite-vec.
type Driver struct {
	db     *sql.DB
	dims   uint
	logger *slog.Logger
}

// Config holds configuration for the SQLite vec driver.
type Config struct {
	// DBPath is the path to the SQLite database file.
	// Use ":memory:" for an in-memory database.
	DBPath string

	// Dimensions is the number of dimensions for the embedding vectors.
	Dimensions uint

	// Model is the embedding model name recorded in the store. Opening a
	// store built with another model fails with vector.ErrModelMismatch.
	Model string
}

// NewDriver creates a new SQLite vector driver backed by sqlite-vec.
func NewDriver(c Config, logger *slog.Logger) (*Driver, error) {
	// enable connection to have sqlite-vec extension
	sqlite_vec.Auto()

	if c.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if c.Dimensions == 0 {
		return nil, errors.New("sqlite-vec embedding dimensions cannot be 0, must be configured")
	}

	db, err := sql.Open("sqlite3", c.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// ":memory:" databases are per connection
	db.SetMaxOpenConns(1)

	var vecVersion string
	if err := db.QueryRow("SELECT vec_version()").Scan(&vecVersion); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite-vec not available: %w", err)
	}

	if err := migrate(db, c.Dimensions); err != nil {
		db.Close()
		return nil, err
	}

	if err := checkMeta(db, c.Model, c.Dimensions); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqlite-vec vector driver initialized",
		"db_path", c.DBPath,
		"dimensions", c.Dimensions,
		"model", c.Model,
		"vec_version", vecVersion,
	)

	return &Driver{
		db:     db,
		dims:   c.Dimensions,
		logger: logger,
	}, nil
}

func migrate(db *sql.DB, dims uint) error {
	// vec0 virtual tables use integer rowids, so chunk rows carry the string
	// document ID and map onto the vec0 rowid.
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vec_documents (
			rowid INTEGER PRIMARY KEY AUTOINCREMENT,
			doc_id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL DEFAULT '',
			sequence INTEGER NOT NULL DEFAULT 0,
			text TEXT NOT NULL DEFAULT ''
		)
	`); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}

	if _, err := db.Exec(
		`CREATE INDEX IF NOT EXISTS idx_vec_documents_source ON vec_documents(source, sequence)`,
	); err != nil {
		return fmt.Errorf("creating source index: %w", err)
	}

	createVec := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_embeddings USING vec0(embedding float[%d] distance_metric=cosine)`,
		dims,
	)
	if _, err := db.Exec(createVec); err != nil {
		return fmt.Errorf("creating vec0 table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kb_meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("creating meta table: %w", err)
	}
	return nil
}

// checkMeta records the model and dimension on first open and rejects a
// later open with a different pair.
func checkMeta(db *sql.DB, model string, dims uint) error {
	stored := map[string]string{}
	rows, err := db.Query(`SELECT key, value FROM kb_meta`)
	if err != nil {
		return fmt.Errorf("reading meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return fmt.Errorf("scanning meta: %w", err)
		}
		stored[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating meta: %w", err)
	}

	if v, ok := stored[metaDimensions]; ok && v != strconv.FormatUint(uint64(dims), 10) {
		return fmt.Errorf("%w: store holds %s-dimensional vectors, configured %d",
			vector.ErrModelMismatch, v, dims)
	}
	if v, ok := stored[metaModel]; ok && model != "" && v != model {
		return fmt.Errorf("%w: store was built with %q, configured %q",
			vector.ErrModelMismatch, v, model)
	}

	if _, err := db.Exec(
		`INSERT OR IGNORE INTO kb_meta(key, value) VALUES (?, ?)`,
		metaDimensions, strconv.FormatUint(uint64(dims), 10),
	); err != nil {
		return fmt.Errorf("writing meta: %w", err)
	}
	if model != "" {
		if _, err := db.Exec(
			`INSERT OR IGNORE INTO kb_meta(key, value) VALUES (?, ?)`, metaModel, model,
		); err != nil {
			return fmt.Errorf("writing meta: %w", err)
		}
	}
	return nil
}

// serializeFloat32 converts a float32 slice to a little-endian byte slice
// suitable for sqlite-vec BLOB format.
func serializeFloat32(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// deserializeFloat32 converts a little-endian byte slice back to a float32 slice.
func deserializeFloat32(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding blob length %d: must be divisible by 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// Add stores documents with their embeddings in one transaction.
// If a document with the same ID already exists, it is updated in place and
// keeps its rowid, and with it its insertion order.
func (d *Driver) Add(ctx context.Context, docs []vector.Document) error {
	if len(docs) == 0 {
		return nil
	}
	if err := vector.CheckDimensions(d.dims, docs); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := addTx(ctx, tx, docs); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("added documents to sqlite-vec", "count", len(docs))
	return nil
}

// ReplaceSource upserts docs and drops the older chunks of source beyond
// them in one transaction.
func (d *Driver) ReplaceSource(ctx context.Context, source string, docs []vector.Document) error {
	if err := vector.CheckSource(source, docs); err != nil {
		return err
	}
	if err := vector.CheckDimensions(d.dims, docs); err != nil {
		return err
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := addTx(ctx, tx, docs); err != nil {
		return err
	}
	n, err := trimTx(ctx, tx, source, len(docs))
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("replaced source in sqlite-vec",
		"source", source,
		"count", len(docs),
		"trimmed", n,
	)
	return nil
}

func addTx(ctx context.Context, tx *sql.Tx, docs []vector.Document) error {
	for _, doc := range docs {
		embBlob := serializeFloat32(doc.Embedding)

		var existingRowID int64
		err := tx.QueryRowContext(ctx,
			`SELECT rowid FROM vec_documents WHERE doc_id = ?`, doc.ID,
		).Scan(&existingRowID)

		switch {
		case err == nil:
			if _, err := tx.ExecContext(ctx,
				`UPDATE vec_documents SET source = ?, sequence = ?, text = ? WHERE rowid = ?`,
				doc.Source, doc.Sequence, doc.Text, existingRowID,
			); err != nil {
				return fmt.Errorf("updating document %s: %w", doc.ID, err)
			}

			// vec0 does not support UPDATE
			if _, err := tx.ExecContext(ctx,
				`DELETE FROM vec_embeddings WHERE rowid = ?`, existingRowID,
			); err != nil {
				return fmt.Errorf("deleting old embedding for doc %s: %w", doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				existingRowID, embBlob,
			); err != nil {
				return fmt.Errorf("re-inserting embedding for doc %s: %w", doc.ID, err)
			}
		case errors.Is(err, sql.ErrNoRows):
			result, err := tx.ExecContext(ctx,
				`INSERT INTO vec_documents(doc_id, source, sequence, text) VALUES (?, ?, ?, ?)`,
				doc.ID, doc.Source, doc.Sequence, doc.Text,
			)
			if err != nil {
				return fmt.Errorf("inserting document %s: %w", doc.ID, err)
			}

			rowID, err := result.LastInsertId()
			if err != nil {
				return fmt.Errorf("getting rowid for doc %s: %w", doc.ID, err)
			}

			if _, err := tx.ExecContext(ctx,
				`INSERT INTO vec_embeddings(rowid, embedding) VALUES (?, ?)`,
				rowID, embBlob,
			); err != nil {
				return fmt.Errorf("inserting embedding for doc %s: %w", doc.ID, err)
			}
		default:
			return fmt.Errorf("checking for existing document %s: %w", doc.ID, err)
		}
	}
	return nil
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

	rows, err := d.db.QueryContext(ctx, `
		SELECT
			d.doc_id,
			d.source,
			d.sequence,
			d.text,
			ve.distance
		FROM vec_embeddings ve
		INNER JOIN vec_documents d ON d.rowid = ve.rowid
		WHERE ve.embedding MATCH ?
			AND ve.k = ?
		ORDER BY ve.distance, d.rowid
	`, serializeFloat32(embedding), topK)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var results []vector.QueryResult
	for rows.Next() {
		var r vector.QueryResult
		var distance sql.NullFloat64
		if err := rows.Scan(&r.ID, &r.Source, &r.Sequence, &r.Text, &distance); err != nil {
			return nil, fmt.Errorf("scanning query result: %w", err)
		}

		// cosine distance is 1 - cosine similarity. sqlite-vec has no
		// distance for a zero vector, which is similar to nothing.
		if distance.Valid {
			r.Score = float32(1.0 - distance.Float64)
		}
		results = append(results, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating query results: %w", err)
	}

	d.logger.Debug("queried sqlite-vec", "results", len(results))
	return results, nil
}

// Get retrieves documents by their IDs.
func (d *Driver) Get(ctx context.Context, ids []string) ([]vector.Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders, args := inClause(ids)
	query := fmt.Sprintf(`
		SELECT d.doc_id, d.source, d.sequence, d.text, d.rowid
		FROM vec_documents d
		WHERE d.doc_id IN (%s)
		ORDER BY d.rowid
	`, placeholders)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying documents: %w", err)
	}
	defer rows.Close()

	// Collect results first so we can close the rows cursor before
	// issuing additional queries (SQLite uses a single connection).
	type docRow struct {
		doc   vector.Document
		rowID int64
	}
	var docRows []docRow

	for rows.Next() {
		var dr docRow
		if err := rows.Scan(&dr.doc.ID, &dr.doc.Source, &dr.doc.Sequence, &dr.doc.Text, &dr.rowID); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		docRows = append(docRows, dr)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	rows.Close()

	docs := make([]vector.Document, 0, len(docRows))
	for _, dr := range docRows {
		var embBlob []byte
		err := d.db.QueryRowContext(ctx,
			`SELECT embedding FROM vec_embeddings WHERE rowid = ?`, dr.rowID,
		).Scan(&embBlob)
		if err == nil && len(embBlob) > 0 {
			dr.doc.Embedding, _ = deserializeFloat32(embBlob)
		}

		docs = append(docs, dr.doc)
	}

	return docs, nil
}

// TrimSource deletes the chunks of source with a sequence of at least from.
func (d *Driver) TrimSource(ctx context.Context, source string, from int) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := trimTx(ctx, tx, source, from)
	if err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("trimmed source in sqlite-vec",
		"source", source,
		"from", from,
		"count", n,
	)
	return nil
}

func trimTx(ctx context.Context, tx *sql.Tx, source string, from int) (int, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT rowid FROM vec_documents WHERE source = ? AND sequence >= ?`, source, from,
	)
	if err != nil {
		return 0, fmt.Errorf("querying rowids for trim: %w", err)
	}

	var rowIDs []int64
	for rows.Next() {
		var rowID int64
		if err := rows.Scan(&rowID); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scanning rowid: %w", err)
		}
		rowIDs = append(rowIDs, rowID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterating rowids: %w", err)
	}

	if len(rowIDs) == 0 {
		return 0, nil
	}

	for _, rowID := range rowIDs {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM vec_embeddings WHERE rowid = ?`, rowID,
		); err != nil {
			return 0, fmt.Errorf("deleting embedding rowid %d: %w", rowID, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM vec_documents WHERE source = ? AND sequence >= ?`, source, from,
	); err != nil {
		return 0, fmt.Errorf("deleting documents: %w", err)
	}
	return len(rowIDs), nil
}

// Clear deletes every document and embedding in one transaction. The
// recorded model and dimension are kept.
func (d *Driver) Clear(ctx context.Context) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_embeddings`); err != nil {
		return fmt.Errorf("clearing embeddings: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM vec_documents`); err != nil {
		return fmt.Errorf("clearing documents: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	d.logger.Debug("cleared sqlite-vec store")
	return nil
}

// Count returns the number of stored documents.
func (d *Driver) Count(ctx context.Context) (int, error) {
	var n int
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vec_documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

// Close releases resources held by the driver.
func (d *Driver) Close() error {
	return d.db.Close()
}

func inClause(ids []string) (string, []any) {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	return strings.Join(placeholders, ","), args
}
