package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/tractionlabs/aigateway/pkg/models"
	"github.com/tractionlabs/aigateway/pkg/registry"
)

// listTopicsHandler handles GET /ai/topics: the active single-shot
// catalogue with caller-facing parameter descriptors.
func (s *Server) listTopicsHandler(c *echo.Context) error {
	singleShot := models.TopicTypeSingleShot
	topics := s.topics.List(registry.ListFilter{Type: &singleShot, ActiveOnly: true})

	views := make([]TopicView, 0, len(topics))
	for _, t := range topics {
		views = append(views, topicView(t))
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true, Data: views})
}

// getSchemaHandler handles GET /ai/schemas/:name: the JSON Schema document
// for a registered response model.
func (s *Server) getSchemaHandler(c *echo.Context) error {
	name := c.Param("name")
	if name == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "schema name is required")
	}

	doc, err := s.schemas.JSONSchema(name)
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "schema "+name+" is not registered")
	}
	return c.JSON(http.StatusOK, doc)
}
