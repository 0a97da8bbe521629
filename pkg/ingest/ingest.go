// Package ingest turns uploaded files into knowledge base chunks: extract,
// chunk, attach provenance, store.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/papercomputeco/qagent/pkg/chunker"
	"github.com/papercomputeco/qagent/pkg/eventstream"
	"github.com/papercomputeco/qagent/pkg/eventstream/nop"
	"github.com/papercomputeco/qagent/pkg/extract"
	"github.com/papercomputeco/qagent/pkg/knowledge"
	"github.com/papercomputeco/qagent/pkg/logger"
)

// File is one named upload.
type File struct {
	Name string
	Data []byte
}

// FileResult is the outcome of ingesting one file.
type FileResult struct {
	Filename string
	Chunks   int
	Err      error
}

// BatchResult collects per-file outcomes of IngestBatch.
type BatchResult struct {
	Files       []FileResult
	TotalChunks int
}

// Failed returns the results whose ingestion failed.
func (r *BatchResult) Failed() []FileResult {
	var failed []FileResult
	for _, f := range r.Files {
		if f.Err != nil {
			failed = append(failed, f)
		}
	}
	return failed
}

// Err joins every per-file error, or returns nil when all files succeeded.
func (r *BatchResult) Err() error {
	var errs []error
	for _, f := range r.Failed() {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

// Config configures a Pipeline.
type Config struct {
	Knowledge *knowledge.Base

	// Publisher receives an ingested event per stored file. Defaults to the
	// no-op publisher.
	Publisher eventstream.Publisher

	Logger *slog.Logger
}

// Pipeline ingests files into a knowledge base using the default 1000/100
// splitter.
type Pipeline struct {
	kb        *knowledge.Base
	splitter  *chunker.Splitter
	publisher eventstream.Publisher
	logger    *slog.Logger
}

// New creates a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge base is required")
	}
	if cfg.Publisher == nil {
		cfg.Publisher = nop.NewPublisher()
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}

	return &Pipeline{
		kb:        cfg.Knowledge,
		splitter:  chunker.Default(),
		publisher: cfg.Publisher,
		logger:    cfg.Logger,
	}, nil
}

// Ingest stores the chunks of one file under filename and returns how many
// were stored. Re-ingesting the same filename replaces its earlier chunks.
// The file is stored completely or not at all.
func (p *Pipeline) Ingest(ctx context.Context, filename string, raw []byte) (int, error) {
	if filename == "" {
		return 0, errors.New("ingesting file: filename is required")
	}

	res := extract.Extract(filename, raw)
	if res.Fallback != nil {
		p.logger.Warn("extraction fell back to raw text",
			"file", filename,
			"format", res.Format.String(),
			"error", res.Fallback,
		)
	}

	texts := p.splitter.Split(res.Text)
	chunks := make([]knowledge.Chunk, len(texts))
	for i, t := range texts {
		chunks[i] = knowledge.Chunk{
			Text:     t,
			Source:   filename,
			Sequence: i,
		}
	}

	if err := p.kb.Replace(ctx, filename, chunks); err != nil {
		return 0, fmt.Errorf("ingesting %s: %w", filename, err)
	}

	p.logger.Info("file ingested",
		"file", filename,
		"format", res.Format.String(),
		"chunks", len(chunks),
	)

	event := eventstream.NewEvent(eventstream.EventTypeSourceIngested)
	event.Source = filename
	event.Chunks = len(chunks)
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish ingest event", "file", filename, "error", err)
	}

	return len(chunks), nil
}

// IngestBatch ingests files one by one. A failing file is recorded in its
// FileResult and does not stop or undo its siblings.
func (p *Pipeline) IngestBatch(ctx context.Context, files []File) *BatchResult {
	result := &BatchResult{Files: make([]FileResult, 0, len(files))}

	for _, f := range files {
		n, err := p.Ingest(ctx, f.Name, f.Data)
		if err != nil {
			p.logger.Error("file ingestion failed", "file", f.Name, "error", err)
		}
		result.Files = append(result.Files, FileResult{
			Filename: f.Name,
			Chunks:   n,
			Err:      err,
		})
		result.TotalChunks += n
	}

	return result
}

// Remove deletes every chunk of source from the knowledge base.
func (p *Pipeline) Remove(ctx context.Context, source string) error {
	if err := p.kb.RemoveSource(ctx, source); err != nil {
		return err
	}

	event := eventstream.NewEvent(eventstream.EventTypeSourceRemoved)
	event.Source = source
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish remove event", "source", source, "error", err)
	}
	return nil
}

// Clear empties the knowledge base.
func (p *Pipeline) Clear(ctx context.Context) error {
	if err := p.kb.Clear(ctx); err != nil {
		return fmt.Errorf("clearing knowledge base: %w", err)
	}

	event := eventstream.NewEvent(eventstream.EventTypeKnowledgeCleared)
	if err := p.publisher.Publish(ctx, event); err != nil {
		p.logger.Warn("failed to publish clear event", "error", err)
	}
	return nil
}
