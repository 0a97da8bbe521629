package api

import (
	"github.com/gofiber/fiber/v2"
)

func (s *Server) generatorUnavailable(c *fiber.Ctx) error {
	return c.Status(fiber.StatusServiceUnavailable).JSON(ErrorResponse{
		Error: "generation is not configured",
	})
}

// handleGenerateTests handles POST /v1/generate/tests. It answers 404 when
// the knowledge base holds nothing relevant to the query.
func (s *Server) handleGenerateTests(c *fiber.Ctx) error {
	if s.config.Generator == nil {
		return s.generatorUnavailable(c)
	}

	var req QueryRequest
	if ok, err := s.parseBody(c, &req); !ok {
		return err
	}

	res, err := s.config.Generator.TestCases(c.Context(), req.Query, req.TopK)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(TestCasesResponse{
		Query:        req.Query,
		TestCases:    res.TestCases,
		Sources:      res.Sources,
		PromptTokens: res.PromptTokens,
	})
}

// handleGenerateSelenium handles POST /v1/generate/selenium.
func (s *Server) handleGenerateSelenium(c *fiber.Ctx) error {
	if s.config.Generator == nil {
		return s.generatorUnavailable(c)
	}

	var req SeleniumRequest
	if ok, err := s.parseBody(c, &req); !ok {
		return err
	}

	script, err := s.config.Generator.Script(c.Context(), req.TestCase, req.HTMLContent)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(SeleniumResponse{SeleniumScript: script})
}
