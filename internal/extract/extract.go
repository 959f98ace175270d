package extract

import (
	"context"
)

// Page is one page of extracted text. Page ordering is preserved by all
// extractors; pages without text are omitted.
type Page struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// Table is one extracted table as a 2D cell grid.
type Table struct {
	Page  int        `json:"page"`
	Table [][]string `json:"table"`
}

// Image is one extracted image written to disk.
type Image struct {
	Page int    `json:"page"`
	Path string `json:"path"`
}

// Extractor is the boundary to PDF text/table/image extraction. Empty
// results are valid; a document may have no tables or images.
type Extractor interface {
	ExtractText(ctx context.Context, path string) ([]Page, error)
	ExtractTables(ctx context.Context, path string) ([]Table, error)
	ExtractImages(ctx context.Context, path string) ([]Image, error)
}
