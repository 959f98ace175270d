package pipeline

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/fairdoc-ai/fairdoc/config"
	"github.com/fairdoc-ai/fairdoc/internal/agent/core"
	"github.com/fairdoc-ai/fairdoc/internal/agent/telemetry"
	"github.com/fairdoc-ai/fairdoc/internal/extract"
	"github.com/fairdoc-ai/fairdoc/internal/provenance"
	"github.com/fairdoc-ai/fairdoc/internal/runstate"
	"github.com/fairdoc-ai/fairdoc/internal/search"
	"github.com/fairdoc-ai/fairdoc/internal/store"
)

var pipelineTracer trace.Tracer = otel.Tracer("fairdoc/internal/pipeline")

// Stage names, also used as provenance actions.
const (
	StageExtractText         = "extract_text"
	StageExtractFAIR         = "extract_fair_react"
	StageExtractFAIRError    = "extract_fair_react_error"
	StageExtractFAIRFallback = "extract_fair_fallback"
	StageCurate              = "curate"
	StageQualityAssure       = "quality_assure"
	StageStoreContent        = "store_content"
	StageStoreFAIR           = "store_fair"
)

// RunRecord is the mutable state of one document processing invocation.
// Its provenance chain grows by exactly one entry (or one error entry)
// per stage transition before the pipeline advances or aborts.
type RunRecord struct {
	Filename   string                 `json:"filename"`
	Path       string                 `json:"path"`
	Text       string                 `json:"text"`
	Metadata   map[string]interface{} `json:"metadata"`
	Validation map[string]interface{} `json:"validation,omitempty"`
	Quality    map[string]interface{} `json:"quality,omitempty"`
	Provenance []provenance.Entry     `json:"provenance"`
	Status     string                 `json:"status"`
}

// MetadataStore is the relational backend the pipeline writes through.
type MetadataStore interface {
	ReplaceContent(ctx context.Context, filename string, rows []store.ContentRow) error
	UpsertDocument(ctx context.Context, filename, status string) error
	UpdateCurationStatus(ctx context.Context, filename, status string, qualityScore *float64, validationStatus string) error
	UpsertFAIRMetadata(ctx context.Context, filename string, meta map[string]interface{}, chain []provenance.Entry) error
	GetFAIRMetadata(ctx context.Context, filename string) (map[string]interface{}, error)
}

// VectorIndex is the vector store the pipeline upserts content into.
type VectorIndex interface {
	Upsert(ctx context.Context, points []search.Point) error
	DeleteByFilename(ctx context.Context, filename string) error
}

// Embedder turns text into fixed-length vectors matching the index dims.
type Embedder interface {
	Embed(ctx context.Context, input []string) ([][]float32, error)
}

// StatusRepository mirrors run status for API consumers. Optional.
type StatusRepository interface {
	Set(ctx context.Context, rec runstate.Record) error
}

// Deps bundles the external collaborators a pipeline needs. Everything
// is injected explicitly so tests can substitute doubles.
type Deps struct {
	Extractor extract.Extractor
	Store     MetadataStore
	Ledger    provenance.Ledger
	Vectors   VectorIndex
	Embedder  Embedder
	Status    StatusRepository
}

// Pipeline runs the fixed stage sequence for one document at a time.
// Separate documents may be processed concurrently by independent
// pipeline values; the storage backends serialize via their own
// transactional guarantees.
type Pipeline struct {
	cfg    *config.Config
	logger *log.Logger
	telem  *telemetry.Telemetry

	toolbox   *core.Toolbox
	extractAg *core.Agent
	curateAg  *core.Agent
	qualityAg *core.Agent

	deps Deps
}

// New builds a pipeline with its three agents bound to the given model.
func New(cfg *config.Config, llm core.LLM, deps Deps, telem *telemetry.Telemetry, logger *log.Logger) (*Pipeline, error) {
	if deps.Extractor == nil {
		return nil, fmt.Errorf("pipeline: extractor is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("pipeline: store is required")
	}
	if deps.Ledger == nil {
		deps.Ledger = provenance.NopLedger{}
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[PIPELINE] ", log.LstdFlags)
	}

	tb := core.NewToolbox(llm)
	return &Pipeline{
		cfg:       cfg,
		logger:    logger,
		telem:     telem,
		toolbox:   tb,
		extractAg: core.NewExtractorAgent(tb, cfg.Agents.ExtractorIterations, llm, telem, logger),
		curateAg:  core.NewCuratorAgent(tb, cfg.Agents.CuratorIterations, llm, telem, logger),
		qualityAg: core.NewQualityAgent(tb, cfg.Agents.QualityIterations, llm, telem, logger),
		deps:      deps,
	}, nil
}

// Run processes one PDF through the full stage sequence. The returned
// record carries the provenance chain accumulated so far even when a
// fatal stage aborts the run.
func (p *Pipeline) Run(ctx context.Context, pdfPath string) (*RunRecord, error) {
	ctx, span := pipelineTracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("pdf.path", pdfPath)))
	defer span.End()

	rec := &RunRecord{
		Filename: filepath.Base(pdfPath),
		Path:     pdfPath,
		Metadata: map[string]interface{}{},
		Status:   runstate.StatusProcessing,
	}

	p.setStatus(ctx, rec, "")
	if err := p.deps.Store.UpsertDocument(ctx, rec.Filename, rec.Status); err != nil {
		p.logger.Printf("upsert document row: %v", err)
	}

	if err := p.stageExtractText(ctx, rec); err != nil {
		p.fail(ctx, rec, span, err)
		return rec, err
	}
	p.stageExtractFAIR(ctx, rec)
	p.stageCurate(ctx, rec)
	p.stageQualityAssure(ctx, rec)
	if err := p.stageStoreContent(ctx, rec); err != nil {
		p.fail(ctx, rec, span, err)
		return rec, err
	}
	if err := p.stageStoreFAIR(ctx, rec); err != nil {
		p.fail(ctx, rec, span, err)
		return rec, err
	}

	rec.Status = runstate.StatusCompleted
	p.setStatus(ctx, rec, "")
	if err := p.deps.Store.UpsertDocument(ctx, rec.Filename, rec.Status); err != nil {
		p.logger.Printf("upsert document row: %v", err)
	}
	p.logger.Printf("run completed for %s: %d provenance entries", rec.Filename, len(rec.Provenance))
	return rec, nil
}

// stageExtractText is fatal on failure: nothing downstream can proceed
// without text.
func (p *Pipeline) stageExtractText(ctx context.Context, rec *RunRecord) error {
	started := time.Now()
	pages, err := p.deps.Extractor.ExtractText(ctx, rec.Path)
	if err != nil {
		p.record(ctx, rec, provenance.NewEntry(StageExtractText, "pdf_extractor", "").WithError(err), started)
		return fmt.Errorf("%s: %w", StageExtractText, err)
	}

	parts := make([]string, 0, len(pages))
	for _, page := range pages {
		parts = append(parts, page.Text)
	}
	rec.Text = strings.Join(parts, "\n\n")

	entry := provenance.NewEntry(StageExtractText, "pdf_extractor", provenance.StatusSuccess)
	entry.Output = map[string]interface{}{"pages": len(pages), "characters": len(rec.Text)}
	p.record(ctx, rec, entry, started)
	return nil
}

// stageExtractFAIR runs the extractor agent and never re-raises: on
// failure it falls back to a single direct metadata-extraction tool
// call, a strictly weaker but always-available path.
func (p *Pipeline) stageExtractFAIR(ctx context.Context, rec *RunRecord) {
	started := time.Now()
	chunk := FirstChunk(rec.Text, p.extractChunkSize(), p.chunkOverlap())

	obs := core.Observation{"text": chunk}
	final, iters, err := p.extractAg.Run(ctx, obs)
	if err != nil {
		p.record(ctx, rec, provenance.NewEntry(StageExtractFAIRError, core.RoleExtractor, "").WithError(err), started)
		p.fallbackExtract(ctx, rec, chunk)
		return
	}

	rec.Metadata = ExtractMetadataFromResult(final, map[string]interface{}{})

	entry := provenance.NewEntry(StageExtractFAIR, core.RoleExtractor, provenance.StatusSuccess)
	entry.Output = map[string]interface{}{"fields": len(rec.Metadata)}
	entry.Meta = agentMeta(final, iters)
	p.record(ctx, rec, entry, started)
}

func (p *Pipeline) fallbackExtract(ctx context.Context, rec *RunRecord, chunk string) {
	started := time.Now()
	result, err := p.toolbox.ExtractMetadata().Run(ctx, chunk)
	if err != nil {
		p.record(ctx, rec, provenance.NewEntry(StageExtractFAIRFallback, core.ToolExtractMetadata, "").WithError(err), started)
		return
	}
	if md, ok := result["metadata"].(map[string]interface{}); ok {
		rec.Metadata = md
	}

	entry := provenance.NewEntry(StageExtractFAIRFallback, core.ToolExtractMetadata, provenance.StatusSuccess)
	entry.Output = map[string]interface{}{"fields": len(rec.Metadata)}
	p.record(ctx, rec, entry, started)
}

// stageCurate runs the curator agent over a smaller chunk of the text.
// Failure is logged but swallowed.
func (p *Pipeline) stageCurate(ctx context.Context, rec *RunRecord) {
	p.runImprovementStage(ctx, rec, StageCurate, p.curateAg, "curated")
}

// stageQualityAssure mirrors curate with the quality assessor role.
func (p *Pipeline) stageQualityAssure(ctx context.Context, rec *RunRecord) {
	p.runImprovementStage(ctx, rec, StageQualityAssure, p.qualityAg, "quality_assured")
}

func (p *Pipeline) runImprovementStage(ctx context.Context, rec *RunRecord, stage string, agent *core.Agent, curationStatus string) {
	started := time.Now()
	chunk := FirstChunk(rec.Text, p.curateChunkSize(), p.chunkOverlap())

	obs := core.Observation{
		"text":     chunk,
		"metadata": rec.Metadata,
	}
	if existing, err := p.deps.Store.GetFAIRMetadata(ctx, rec.Filename); err == nil && existing != nil {
		obs["existing_metadata"] = existing
	}

	final, iters, err := agent.Run(ctx, obs)
	if err != nil {
		p.record(ctx, rec, provenance.NewEntry(stage, agent.Name(), "").WithError(err), started)
		return
	}

	// Shallow merge: keys returned by the agent win.
	for k, v := range ExtractMetadataFromResult(final, map[string]interface{}{}) {
		rec.Metadata[k] = v
	}
	rec.Quality = ExtractQualityFromResult(final, rec.Quality)
	rec.Validation = ExtractValidationFromResult(final, rec.Validation)

	entry := provenance.NewEntry(stage, agent.Name(), provenance.StatusSuccess)
	entry.Output = map[string]interface{}{"fields": len(rec.Metadata)}
	if score, ok := QualityScore(rec.Quality); ok {
		entry.Output["quality_score"] = score
	}
	entry.Meta = agentMeta(final, iters)
	p.record(ctx, rec, entry, started)

	p.updateCuration(ctx, rec, curationStatus)
}

// stageStoreContent persists content rows and their vectors. Fatal on
// failure: content must be durably stored before metadata finalization.
func (p *Pipeline) stageStoreContent(ctx context.Context, rec *RunRecord) error {
	started := time.Now()

	rows, inputs, err := p.collectContent(ctx, rec)
	if err == nil {
		err = p.persistContent(ctx, rec.Filename, rows, inputs)
	}
	if err != nil {
		p.record(ctx, rec, provenance.NewEntry(StageStoreContent, "content_store", "").WithError(err), started)
		return fmt.Errorf("%s: %w", StageStoreContent, err)
	}

	entry := provenance.NewEntry(StageStoreContent, "content_store", provenance.StatusSuccess)
	entry.Output = map[string]interface{}{"rows": len(rows)}
	p.record(ctx, rec, entry, started)
	return nil
}

func (p *Pipeline) collectContent(ctx context.Context, rec *RunRecord) ([]store.ContentRow, []string, error) {
	pages, err := p.deps.Extractor.ExtractText(ctx, rec.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("extract text: %w", err)
	}
	tables, err := p.deps.Extractor.ExtractTables(ctx, rec.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("extract tables: %w", err)
	}
	images, err := p.deps.Extractor.ExtractImages(ctx, rec.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("extract images: %w", err)
	}

	var rows []store.ContentRow
	var inputs []string
	for _, page := range pages {
		rows = append(rows, store.ContentRow{
			Filename:    rec.Filename,
			Page:        page.Page,
			ContentType: store.ContentTypeText,
			Content:     page.Text,
			QdrantID:    uuid.New().String(),
		})
		inputs = append(inputs, page.Text)
	}
	for _, table := range tables {
		rows = append(rows, store.ContentRow{
			Filename:    rec.Filename,
			Page:        table.Page,
			ContentType: store.ContentTypeTable,
			TableData:   table.Table,
			QdrantID:    uuid.New().String(),
		})
		inputs = append(inputs, fmt.Sprintf("%v", table.Table))
	}
	for _, image := range images {
		rows = append(rows, store.ContentRow{
			Filename:    rec.Filename,
			Page:        image.Page,
			ContentType: store.ContentTypeImage,
			ImagePath:   image.Path,
			QdrantID:    uuid.New().String(),
		})
		inputs = append(inputs, fmt.Sprintf("Image from page %d", image.Page))
	}
	return rows, inputs, nil
}

func (p *Pipeline) persistContent(ctx context.Context, filename string, rows []store.ContentRow, inputs []string) error {
	if err := p.deps.Store.ReplaceContent(ctx, filename, rows); err != nil {
		return fmt.Errorf("store content rows: %w", err)
	}
	if p.deps.Vectors == nil || p.deps.Embedder == nil || len(rows) == 0 {
		return nil
	}

	vectors, err := p.deps.Embedder.Embed(ctx, inputs)
	if err != nil {
		return fmt.Errorf("embed content: %w", err)
	}
	if len(vectors) != len(rows) {
		return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vectors), len(rows))
	}

	points := make([]search.Point, len(rows))
	for i, row := range rows {
		points[i] = search.Point{
			ID:          row.QdrantID,
			Vector:      vectors[i],
			Filename:    row.Filename,
			Page:        row.Page,
			ContentType: row.ContentType,
			Content:     row.Content,
			ImagePath:   row.ImagePath,
		}
	}
	if err := p.deps.Vectors.DeleteByFilename(ctx, filename); err != nil {
		return fmt.Errorf("clear stale vectors: %w", err)
	}
	if err := p.deps.Vectors.Upsert(ctx, points); err != nil {
		return fmt.Errorf("upsert vectors: %w", err)
	}
	return nil
}

// stageStoreFAIR persists the final metadata and the entire provenance
// chain, then records the terminal curation status.
func (p *Pipeline) stageStoreFAIR(ctx context.Context, rec *RunRecord) error {
	started := time.Now()

	entry := provenance.NewEntry(StageStoreFAIR, "metadata_store", provenance.StatusSuccess)
	entry.Output = map[string]interface{}{"fields": len(rec.Metadata)}

	// The persisted chain includes this stage's own entry.
	chain := append(append([]provenance.Entry{}, rec.Provenance...), entry)
	if err := p.deps.Store.UpsertFAIRMetadata(ctx, rec.Filename, rec.Metadata, chain); err != nil {
		p.record(ctx, rec, provenance.NewEntry(StageStoreFAIR, "metadata_store", "").WithError(err), started)
		return fmt.Errorf("%s: %w", StageStoreFAIR, err)
	}

	p.record(ctx, rec, entry, started)
	p.updateCuration(ctx, rec, "stored")
	return nil
}

// record implements the provenance dual-write: append to the in-memory
// chain, then best-effort durable ledger write. The two reflect the
// same event but are not transactionally atomic with each other.
func (p *Pipeline) record(ctx context.Context, rec *RunRecord, entry provenance.Entry, started time.Time) {
	rec.Provenance = append(rec.Provenance, entry)
	if err := p.deps.Ledger.Append(ctx, rec.Filename, entry); err != nil {
		p.logger.Printf("ledger append %s/%s: %v", rec.Filename, entry.Action, err)
	}
	if p.telem != nil {
		p.telem.RecordStageEvent(ctx, telemetry.StageEvent{
			Stage:    entry.Action,
			Status:   entry.Status,
			Duration: time.Since(started),
		})
	}
	if entry.Status == provenance.StatusError {
		p.logger.Printf("stage %s failed for %s: %s", entry.Action, rec.Filename, entry.Error)
	}
}

func (p *Pipeline) updateCuration(ctx context.Context, rec *RunRecord, status string) {
	var scorePtr *float64
	if score, ok := QualityScore(rec.Quality); ok {
		scorePtr = &score
	}
	validation := ""
	if rec.Validation != nil {
		if valid, ok := rec.Validation["is_valid"].(bool); ok {
			if valid {
				validation = "valid"
			} else {
				validation = "invalid"
			}
		}
	}
	if err := p.deps.Store.UpdateCurationStatus(ctx, rec.Filename, status, scorePtr, validation); err != nil {
		p.logger.Printf("update curation status for %s: %v", rec.Filename, err)
	}
	p.setStatus(ctx, rec, "")
}

func (p *Pipeline) fail(ctx context.Context, rec *RunRecord, span trace.Span, err error) {
	rec.Status = runstate.StatusFailed
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.setStatus(ctx, rec, err.Error())
	if uerr := p.deps.Store.UpsertDocument(ctx, rec.Filename, rec.Status); uerr != nil {
		p.logger.Printf("upsert document row: %v", uerr)
	}
}

func (p *Pipeline) setStatus(ctx context.Context, rec *RunRecord, errMsg string) {
	if p.deps.Status == nil {
		return
	}
	srec := runstate.Record{Filename: rec.Filename, Status: rec.Status, Error: errMsg}
	if score, ok := QualityScore(rec.Quality); ok {
		srec.QualityScore = &score
	}
	if err := p.deps.Status.Set(ctx, srec); err != nil {
		p.logger.Printf("set run state for %s: %v", rec.Filename, err)
	}
}

func (p *Pipeline) extractChunkSize() int {
	if p.cfg.Pipeline.ExtractChunkSize > 0 {
		return p.cfg.Pipeline.ExtractChunkSize
	}
	return DefaultExtractChunkSize
}

func (p *Pipeline) curateChunkSize() int {
	if p.cfg.Pipeline.CurateChunkSize > 0 {
		return p.cfg.Pipeline.CurateChunkSize
	}
	return DefaultCurateChunkSize
}

func (p *Pipeline) chunkOverlap() int {
	if p.cfg.Pipeline.ChunkOverlap > 0 {
		return p.cfg.Pipeline.ChunkOverlap
	}
	return DefaultChunkOverlap
}

func agentMeta(final core.Observation, iters []core.IterationRecord) map[string]interface{} {
	meta := map[string]interface{}{"iterations": iters}
	if thought, ok := final[core.KeyFinalThought].(string); ok {
		meta["final_thought"] = thought
	}
	return meta
}
