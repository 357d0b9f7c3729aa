package server

import (
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"github.com/joseph-ayodele/fieldmedia/internal/common"
	"github.com/joseph-ayodele/fieldmedia/internal/events"
	"github.com/joseph-ayodele/fieldmedia/internal/processor"
)

type sanitizeRequest struct {
	MediaID string `json:"mediaId"`
	Context string `json:"context"`
}

var sanitizeRequestSchema = common.NewJSONSchema("sanitize-request.json", map[string]any{
	"type":     "object",
	"required": []any{"mediaId", "context"},
	"properties": map[string]any{
		"mediaId": map[string]any{"type": "string", "minLength": 1},
		"context": map[string]any{"type": "string", "enum": []any{"portal", "public", "download"}},
	},
})

func (s *Server) process(c *fiber.Ctx) error {
	body := c.Body()
	if err := events.ValidateProcessRequest(body); err != nil {
		return err
	}
	var req processor.Request
	if err := json.Unmarshal(body, &req); err != nil {
		return badRequest("malformed request body")
	}
	res, err := s.deps.Processor.Process(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) sanitize(c *fiber.Ctx) error {
	body := c.Body()
	if err := sanitizeRequestSchema.Validate(body); err != nil {
		return err
	}
	var req sanitizeRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return badRequest("malformed request body")
	}
	res, err := s.deps.Sanitizer.Sanitize(c.UserContext(), req.MediaID, req.Context)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) invalidate(c *fiber.Ctx) error {
	id := c.Params("mediaId")
	if err := s.deps.Sanitizer.Invalidate(c.UserContext(), id); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true})
}

func (s *Server) report(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	businessID := c.Query("businessId")
	v := common.NewValidator().
		Field("businessId", businessID, common.Required, common.PathSegment).
		Field("jobId", jobID, common.Required, common.PathSegment)
	if err := v.Err(); err != nil {
		return err
	}

	out, err := s.deps.Reports.JobMediaXLSX(c.UserContext(), businessID, jobID)
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s-media.xlsx"`, jobID))
	return c.Send(out)
}
