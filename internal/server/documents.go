package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/fairdoc-ai/fairdoc/internal/runstate"
	"github.com/fairdoc-ai/fairdoc/internal/store"
)

// DocumentsHandler exposes stored document content, FAIR metadata and
// run status.
type DocumentsHandler struct {
	Store  *store.Store
	Status *runstate.Repository
}

type pageResponse struct {
	Page      int        `json:"page"`
	Type      string     `json:"type"`
	Content   string     `json:"content,omitempty"`
	ImagePath string     `json:"image_path,omitempty"`
	TableData [][]string `json:"table_data,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

type documentResponse struct {
	Filename string         `json:"filename"`
	Pages    []pageResponse `json:"pages"`
}

func (h *DocumentsHandler) Register(g *echo.Group) {
	g.GET("", h.list)
	g.GET("/:filename", h.get)
	g.GET("/:filename/metadata", h.metadata)
	g.GET("/:filename/status", h.status)
}

func (h *DocumentsHandler) list(c echo.Context) error {
	files, err := h.Store.ListDocuments(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"documents": files})
}

func (h *DocumentsHandler) get(c echo.Context) error {
	filename := c.Param("filename")
	rows, err := h.Store.GetDocumentContent(c.Request().Context(), filename)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return echo.NewHTTPError(http.StatusNotFound, "document not found")
	}

	resp := documentResponse{Filename: filename, Pages: make([]pageResponse, 0, len(rows))}
	for _, row := range rows {
		resp.Pages = append(resp.Pages, pageResponse{
			Page:      row.Page,
			Type:      row.ContentType,
			Content:   row.Content,
			ImagePath: row.ImagePath,
			TableData: row.TableData,
			CreatedAt: row.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *DocumentsHandler) metadata(c echo.Context) error {
	filename := c.Param("filename")
	meta, err := h.Store.GetFAIRMetadata(c.Request().Context(), filename)
	if err != nil {
		return err
	}
	if meta == nil {
		return echo.NewHTTPError(http.StatusNotFound, "metadata not found")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"filename": filename, "metadata": meta})
}

func (h *DocumentsHandler) status(c echo.Context) error {
	if h.Status == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "run status backend not configured")
	}
	rec, err := h.Status.Get(c.Request().Context(), c.Param("filename"))
	if err != nil {
		return err
	}
	if rec == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no run recorded")
	}
	return c.JSON(http.StatusOK, rec)
}
