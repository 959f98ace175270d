package extract

import (
	"context"
	"fmt"
	"sort"

	"github.com/fairdoc-ai/fairdoc/config"
)

// SidecarClient talks to a PDF extraction sidecar service over HTTP.
// The sidecar owns the parsing internals; this client only preserves
// page ordering and validates shapes.
type SidecarClient struct {
	endpoint string
	http     *HTTPClient
}

// NewSidecarClient creates an extractor backed by the configured sidecar.
func NewSidecarClient(cfg config.ExtractConfig) *SidecarClient {
	return &SidecarClient{
		endpoint: cfg.Endpoint,
		http:     NewHTTPClient(cfg.Timeout, cfg.Retries, 0),
	}
}

type extractRequest struct {
	Path string `json:"path"`
}

// ExtractText returns the ordered per-page text of the document.
func (c *SidecarClient) ExtractText(ctx context.Context, path string) ([]Page, error) {
	var out struct {
		Pages []Page `json:"pages"`
	}
	if err := c.http.DoJSON(ctx, "POST", c.endpoint+"/extract/text", nil, extractRequest{Path: path}, &out); err != nil {
		return nil, fmt.Errorf("extract text %s: %w", path, err)
	}
	sort.SliceStable(out.Pages, func(i, j int) bool { return out.Pages[i].Page < out.Pages[j].Page })
	return out.Pages, nil
}

// ExtractTables returns all tables found in the document, in page order.
func (c *SidecarClient) ExtractTables(ctx context.Context, path string) ([]Table, error) {
	var out struct {
		Tables []Table `json:"tables"`
	}
	if err := c.http.DoJSON(ctx, "POST", c.endpoint+"/extract/tables", nil, extractRequest{Path: path}, &out); err != nil {
		return nil, fmt.Errorf("extract tables %s: %w", path, err)
	}
	sort.SliceStable(out.Tables, func(i, j int) bool { return out.Tables[i].Page < out.Tables[j].Page })
	return out.Tables, nil
}

// ExtractImages returns paths of images the sidecar wrote to shared
// storage, in page order.
func (c *SidecarClient) ExtractImages(ctx context.Context, path string) ([]Image, error) {
	var out struct {
		Images []Image `json:"images"`
	}
	if err := c.http.DoJSON(ctx, "POST", c.endpoint+"/extract/images", nil, extractRequest{Path: path}, &out); err != nil {
		return nil, fmt.Errorf("extract images %s: %w", path, err)
	}
	sort.SliceStable(out.Images, func(i, j int) bool { return out.Images[i].Page < out.Images[j].Page })
	return out.Images, nil
}
