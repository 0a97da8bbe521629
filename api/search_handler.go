package api

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	apisearch "github.com/papercomputeco/qagent/api/search"
)

// handleSearchEndpoint handles GET /v1/search requests.
// Query parameters:
//   - query (required): the search query text
//   - top_k (optional, default retrieval.top_k): number of results to return
func (s *Server) handleSearchEndpoint(c *fiber.Ctx) error {
	query := c.Query("query")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Error: "query parameter is required",
		})
	}

	topK := 0
	if topKStr := c.Query("top_k"); topKStr != "" {
		parsed, err := strconv.Atoi(topKStr)
		if err != nil || parsed <= 0 {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "top_k must be a positive integer",
			})
		}
		topK = parsed
	}

	output, err := apisearch.Search(c.Context(), query, topK, s.config.Retriever, s.logger)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(output)
}

// handleRetrieve handles POST /v1/retrieve: the formatted context for a
// query plus the matches it was built from.
func (s *Server) handleRetrieve(c *fiber.Ctx) error {
	var req QueryRequest
	if ok, err := s.parseBody(c, &req); !ok {
		return err
	}

	output, err := apisearch.Search(c.Context(), req.Query, req.TopK, s.config.Retriever, s.logger)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(output)
}
