package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/fairdoc-ai/fairdoc/internal/search"
	"github.com/fairdoc-ai/fairdoc/internal/store"
)

// SearchHandler answers semantic queries: embed the query, search the
// vector index, then hydrate each hit from the relational rows.
type SearchHandler struct {
	Store    *store.Store
	Index    *search.Index
	Embedder interface {
		Embed(ctx context.Context, input []string) ([][]float32, error)
	}
}

type searchHit struct {
	Filename  string     `json:"filename"`
	Page      int        `json:"page"`
	Type      string     `json:"type"`
	Content   string     `json:"content,omitempty"`
	ImagePath string     `json:"image_path,omitempty"`
	TableData [][]string `json:"table_data,omitempty"`
	Score     float32    `json:"score"`
}

func (h *SearchHandler) Register(e *echo.Echo) {
	e.GET("/search", h.search)
}

func (h *SearchHandler) search(c echo.Context) error {
	query := c.QueryParam("query")
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "query parameter is required")
	}
	limit := uint64(5)
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil || n == 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}

	ctx := c.Request().Context()
	vectors, err := h.Embedder.Embed(ctx, []string{query})
	if err != nil {
		return err
	}
	if len(vectors) != 1 {
		return echo.NewHTTPError(http.StatusBadGateway, "embedding backend returned no vector")
	}

	hits, err := h.Index.Search(ctx, vectors[0], limit, c.QueryParam("filename"))
	if err != nil {
		return err
	}

	results := make([]searchHit, 0, len(hits))
	for _, hit := range hits {
		row, err := h.Store.GetContentByQdrantID(ctx, hit.ID)
		if err != nil {
			return err
		}
		if row == nil {
			// Index entry with no backing row, skip it.
			continue
		}
		results = append(results, searchHit{
			Filename:  row.Filename,
			Page:      row.Page,
			Type:      row.ContentType,
			Content:   row.Content,
			ImagePath: row.ImagePath,
			TableData: row.TableData,
			Score:     hit.Score,
		})
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"query": query, "results": results})
}
