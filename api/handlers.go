package api

import (
	"fmt"
	"io"
	"mime/multipart"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/qagent/pkg/ingest"
)

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleIngest ingests the multipart "files" of the request. It answers 200
// when every file was stored, 207 when some failed and 400 when no file was
// sent.
func (s *Server) handleIngest(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "multipart form with one or more \"files\" is required",
		})
	}

	headers := form.File["files"]
	if len(headers) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "no files provided",
		})
	}

	files := make([]ingest.File, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: fmt.Sprintf("reading %s: %v", fh.Filename, err),
			})
		}
		files = append(files, ingest.File{Name: fh.Filename, Data: data})
	}

	result := s.config.Ingester.IngestBatch(c.Context(), files)

	resp := IngestResponse{
		Files:       make([]IngestFileResult, 0, len(result.Files)),
		TotalChunks: result.TotalChunks,
	}
	for _, f := range result.Files {
		fr := IngestFileResult{Filename: f.Filename, Chunks: f.Chunks}
		if f.Err != nil {
			fr.Error = f.Err.Error()
		}
		resp.Files = append(resp.Files, fr)
	}

	failed := len(result.Failed())
	if failed > 0 {
		resp.Message = fmt.Sprintf("Ingested %d of %d files (%d chunks), %d failed.",
			len(files)-failed, len(files), result.TotalChunks, failed)
		return c.Status(fiber.StatusMultiStatus).JSON(resp)
	}

	resp.Message = fmt.Sprintf("Successfully ingested %d files (%d chunks).", len(files), result.TotalChunks)
	return c.JSON(resp)
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// handleClear empties the knowledge base.
func (s *Server) handleClear(c *fiber.Ctx) error {
	if err := s.config.Ingester.Clear(c.Context()); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(MessageResponse{Message: "Knowledge base cleared."})
}

// handleGetSource returns the stored chunks of one source file in sequence
// order.
func (s *Server) handleGetSource(c *fiber.Ctx) error {
	source := c.Params("source")
	if source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "source parameter required"})
	}

	chunks, err := s.config.Knowledge.Chunks(c.Context(), source)
	if err != nil {
		return s.writeError(c, err)
	}
	if len(chunks) == 0 {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Error: fmt.Sprintf("No chunks stored for %s.", source),
		})
	}

	resp := SourceResponse{
		Source: source,
		Chunks: make([]SourceChunk, len(chunks)),
	}
	for i, ch := range chunks {
		resp.Chunks[i] = SourceChunk{Sequence: ch.Sequence, Text: ch.Text}
	}
	return c.JSON(resp)
}

// handleRemoveSource deletes every chunk of one source file.
func (s *Server) handleRemoveSource(c *fiber.Ctx) error {
	source := c.Params("source")
	if source == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "source parameter required"})
	}

	if err := s.config.Ingester.Remove(c.Context(), source); err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(MessageResponse{Message: fmt.Sprintf("Removed %s.", source)})
}

// handleStats returns the number of stored chunks.
func (s *Server) handleStats(c *fiber.Ctx) error {
	n, err := s.config.Knowledge.Count(c.Context())
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(StatsResponse{Documents: n})
}
