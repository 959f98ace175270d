package extract

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fairdoc-ai/fairdoc/config"
)

func TestSidecarExtractTextOrdersPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/extract/text" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Path != "/papers/x.pdf" {
			t.Fatalf("path = %s", req.Path)
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"pages": []map[string]interface{}{
				{"page": 2, "text": "second"},
				{"page": 1, "text": "first"},
			},
		})
	}))
	defer srv.Close()

	c := NewSidecarClient(config.ExtractConfig{Endpoint: srv.URL, Timeout: 5 * time.Second})
	pages, err := c.ExtractText(context.Background(), "/papers/x.pdf")
	if err != nil {
		t.Fatalf("extract text: %v", err)
	}
	if len(pages) != 2 || pages[0].Page != 1 || pages[1].Text != "second" {
		t.Fatalf("pages = %+v", pages)
	}
}

func TestSidecarRetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"tables": []map[string]interface{}{{"page": 1, "table": [][]string{{"a"}}}},
		})
	}))
	defer srv.Close()

	c := NewSidecarClient(config.ExtractConfig{Endpoint: srv.URL, Timeout: 5 * time.Second, Retries: 2})
	tables, err := c.ExtractTables(context.Background(), "/papers/x.pdf")
	if err != nil {
		t.Fatalf("extract tables: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected a retry, got %d call(s)", calls)
	}
	if len(tables) != 1 || tables[0].Table[0][0] != "a" {
		t.Fatalf("tables = %+v", tables)
	}
}

func TestSidecarSurfacesTerminalError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such file", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewSidecarClient(config.ExtractConfig{Endpoint: srv.URL, Timeout: 5 * time.Second})
	if _, err := c.ExtractImages(context.Background(), "/papers/missing.pdf"); err == nil {
		t.Fatalf("expected error for 404 response")
	}
}
