package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig("")

	if cfg.Agents.ExtractorIterations != 6 {
		t.Fatalf("extractor iterations = %d", cfg.Agents.ExtractorIterations)
	}
	if cfg.Agents.CuratorIterations != 10 {
		t.Fatalf("curator iterations = %d", cfg.Agents.CuratorIterations)
	}
	if cfg.Agents.QualityIterations != 8 {
		t.Fatalf("quality iterations = %d", cfg.Agents.QualityIterations)
	}
	if cfg.Pipeline.ExtractChunkSize != 8000 || cfg.Pipeline.CurateChunkSize != 4000 || cfg.Pipeline.ChunkOverlap != 200 {
		t.Fatalf("chunking defaults = %+v", cfg.Pipeline)
	}
	if cfg.Storage.Qdrant.Collection != "pdf_documents" || cfg.Storage.Qdrant.Dims != 384 {
		t.Fatalf("qdrant defaults = %+v", cfg.Storage.Qdrant)
	}
	if cfg.LLM.Provider != "openai" {
		t.Fatalf("llm provider = %s", cfg.LLM.Provider)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("FAIRDOC_AGENTS_EXTRACTOR_ITERATIONS", "9")
	t.Setenv("FAIRDOC_LLM_MODEL", "gpt-4o")

	cfg := LoadConfig("")
	if cfg.Agents.ExtractorIterations != 9 {
		t.Fatalf("env override ignored: %d", cfg.Agents.ExtractorIterations)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Fatalf("model = %s", cfg.LLM.Model)
	}
}

func TestLoadConfigAPIKeyFallback(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := LoadConfig("")
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key fallback missed: %q", cfg.LLM.APIKey)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{URL: "postgres://u:p@h:5432/d"}
	dsn, err := p.DSN()
	if err != nil || dsn != "postgres://u:p@h:5432/d" {
		t.Fatalf("url passthrough: %q %v", dsn, err)
	}

	p = PostgresConfig{Host: "db", User: "u", Password: "p", DBName: "fairdoc"}
	dsn, err = p.DSN()
	if err != nil {
		t.Fatalf("dsn: %v", err)
	}
	if dsn != "postgres://u:p@db:5432/fairdoc?sslmode=disable" {
		t.Fatalf("dsn = %q", dsn)
	}

	if _, err := (PostgresConfig{}).DSN(); err == nil {
		t.Fatalf("expected error for unconfigured postgres")
	}
}
