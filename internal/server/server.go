package server

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairdoc-ai/fairdoc/config"
	"github.com/fairdoc-ai/fairdoc/internal/runstate"
	"github.com/fairdoc-ai/fairdoc/internal/search"
	"github.com/fairdoc-ai/fairdoc/internal/store"
	"github.com/fairdoc-ai/fairdoc/provider"
)

// Run wires the storage backends and starts the HTTP API.
func Run(cfg *config.Config, addr string) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ctx := context.Background()
	if err := Migrate("file://migrations", cfg.Storage.Postgres, "up", 0); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	st, err := store.New(cfg.Storage.Postgres)
	if err != nil {
		return err
	}

	idx, err := search.NewIndex(cfg.Storage.Qdrant, log.New(log.Writer(), "[QDRANT] ", log.LstdFlags))
	if err != nil {
		return err
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		return fmt.Errorf("ensure collection: %w", err)
	}

	e.GET("/healthz", func(c echo.Context) error {
		if err := st.DB.PingContext(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "postgres: "+err.Error())
		}
		if err := idx.Healthy(c.Request().Context()); err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "qdrant: "+err.Error())
		}
		return c.String(http.StatusOK, "ok")
	})

	llm, err := provider.New(cfg.LLM)
	if err != nil {
		return err
	}

	// Run state is optional for the read API; degrade without it.
	var status *runstate.Repository
	if cfg.Storage.Redis.Host != "" {
		status, err = runstate.Connect(ctx, cfg.Storage.Redis)
		if err != nil {
			baseLogger.Printf("redis unavailable, run status endpoint degraded: %v", err)
			status = nil
		}
	}

	dh := &DocumentsHandler{Store: st, Status: status}
	dh.Register(e.Group("/documents"))

	sh := &SearchHandler{Store: st, Index: idx, Embedder: llm}
	sh.Register(e)

	if addr == "" {
		addr = cfg.Server.Address
		if addr == "" {
			addr = ":10010"
		}
	}
	log.Printf("listening on %s", addr)
	return e.Start(addr)
}
