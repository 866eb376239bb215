package entity

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/entitymap"
	"github.com/Ramsey-B/clover/pkg/models"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Handler serves the entity map read API.
type Handler struct {
	view *entitymap.View
}

// NewHandler creates a handler over view.
func NewHandler(view *entitymap.View) *Handler {
	return &Handler{view: view}
}

// Register registers entity routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/entities", h.GetEntities)
	g.GET("/stats", h.GetStats)
	g.POST("/reload", h.Reload)
}

// ListResponse is a page of entity rows.
type ListResponse struct {
	Entities []models.Record `json:"entities"`
	Total    int             `json:"total"`
	Offset   int             `json:"offset,omitempty"`
	Limit    int             `json:"limit,omitempty"`
}

// GetEntities looks rows up by field and value, or pages through the map
// when no field is given.
func (h *Handler) GetEntities(c echo.Context) error {
	field := c.QueryParam("field")
	value := c.QueryParam("value")

	if field != "" || value != "" {
		if field == "" || value == "" {
			return httperror.NewHTTPError(http.StatusBadRequest, "field and value must be given together")
		}
		rows := h.view.Lookup(field, value)
		if len(rows) == 0 {
			return httperror.NewHTTPErrorf(http.StatusNotFound, "no entity with %s=%s", field, value)
		}
		return c.JSON(http.StatusOK, ListResponse{Entities: rows, Total: len(rows)})
	}

	offset, err := intParam(c, "offset", 0)
	if err != nil {
		return err
	}
	limit, err := intParam(c, "limit", defaultLimit)
	if err != nil {
		return err
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	rows, total := h.view.List(offset, limit)
	return c.JSON(http.StatusOK, ListResponse{Entities: rows, Total: total, Offset: offset, Limit: limit})
}

// GetStats returns a summary of the served snapshot.
func (h *Handler) GetStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.view.Stats())
}

// Reload re-reads the committed snapshot.
func (h *Handler) Reload(c echo.Context) error {
	if err := h.view.Reload(c.Request().Context()); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, h.view.Stats())
}

func intParam(c echo.Context, name string, def int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, httperror.NewHTTPErrorf(http.StatusBadRequest, "%s must be a non-negative integer", name)
	}
	return v, nil
}
