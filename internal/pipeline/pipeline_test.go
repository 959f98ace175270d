package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/fairdoc-ai/fairdoc/config"
	"github.com/fairdoc-ai/fairdoc/internal/extract"
	"github.com/fairdoc-ai/fairdoc/internal/provenance"
	"github.com/fairdoc-ai/fairdoc/internal/runstate"
	"github.com/fairdoc-ai/fairdoc/internal/search"
	"github.com/fairdoc-ai/fairdoc/internal/store"
)

type funcLLM struct {
	fn func(prompt string) (string, error)
}

func (f *funcLLM) Generate(ctx context.Context, prompt string) (string, error) {
	return f.fn(prompt)
}

// happyLLM routes by prompt content: tool prompts get JSON payloads, each
// agent performs one tool call and then finishes.
func happyLLM() *funcLLM {
	return &funcLLM{fn: func(prompt string) (string, error) {
		switch {
		case strings.Contains(prompt, "Extract comprehensive FAIR metadata from physics research paper"):
			return `{"title": "Test Paper", "doi": "10.1000/test"}`, nil
		case strings.Contains(prompt, "Assess FAIR compliance quality deeply"):
			return `{"quality_score": 0.9}`, nil
		case strings.Contains(prompt, "Validate FAIR metadata comprehensively"):
			return `{"is_valid": true}`, nil
		case strings.Contains(prompt, "\nObservation: "):
			return "Thought: complete\nAction: FINISH", nil
		case strings.Contains(prompt, "metadata extraction agent"):
			return "Thought: extract first\nAction: extract_metadata\nAction Input: sample", nil
		case strings.Contains(prompt, "advanced curation agent"):
			return "Thought: assess\nAction: assess_quality\nAction Input: {}", nil
		case strings.Contains(prompt, "quality assurance agent"):
			return "Thought: validate\nAction: validate_metadata\nAction Input: {}", nil
		default:
			return "Thought: done\nAction: FINISH", nil
		}
	}}
}

type fakeExtractor struct {
	textErr error
	pages   []extract.Page
	tables  []extract.Table
	images  []extract.Image
}

func (f *fakeExtractor) ExtractText(ctx context.Context, path string) ([]extract.Page, error) {
	if f.textErr != nil {
		return nil, f.textErr
	}
	return f.pages, nil
}

func (f *fakeExtractor) ExtractTables(ctx context.Context, path string) ([]extract.Table, error) {
	return f.tables, nil
}

func (f *fakeExtractor) ExtractImages(ctx context.Context, path string) ([]extract.Image, error) {
	return f.images, nil
}

type fakeStore struct {
	contentRows  []store.ContentRow
	docStatus    map[string]string
	fairMeta     map[string]interface{}
	fairChain    []provenance.Entry
	ledger       []provenance.Entry
	curationLog  []string
	existingMeta map[string]interface{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{docStatus: map[string]string{}}
}

func (f *fakeStore) ReplaceContent(ctx context.Context, filename string, rows []store.ContentRow) error {
	f.contentRows = rows
	return nil
}

func (f *fakeStore) UpsertDocument(ctx context.Context, filename, status string) error {
	f.docStatus[filename] = status
	return nil
}

func (f *fakeStore) UpdateCurationStatus(ctx context.Context, filename, status string, qualityScore *float64, validationStatus string) error {
	f.curationLog = append(f.curationLog, status)
	return nil
}

func (f *fakeStore) UpsertFAIRMetadata(ctx context.Context, filename string, meta map[string]interface{}, chain []provenance.Entry) error {
	f.fairMeta = meta
	f.fairChain = chain
	return nil
}

func (f *fakeStore) GetFAIRMetadata(ctx context.Context, filename string) (map[string]interface{}, error) {
	return f.existingMeta, nil
}

func (f *fakeStore) Append(ctx context.Context, filename string, e provenance.Entry) error {
	f.ledger = append(f.ledger, e)
	return nil
}

type fakeIndex struct {
	points  []search.Point
	deleted []string
}

func (f *fakeIndex) Upsert(ctx context.Context, points []search.Point) error {
	f.points = points
	return nil
}

func (f *fakeIndex) DeleteByFilename(ctx context.Context, filename string) error {
	f.deleted = append(f.deleted, filename)
	return nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, input []string) ([][]float32, error) {
	out := make([][]float32, len(input))
	for i := range input {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type fakeStatus struct {
	last runstate.Record
}

func (f *fakeStatus) Set(ctx context.Context, rec runstate.Record) error {
	f.last = rec
	return nil
}

func testConfig() *config.Config {
	return &config.Config{
		Agents:   config.AgentsConfig{ExtractorIterations: 3, CuratorIterations: 3, QualityIterations: 3},
		Pipeline: config.PipelineConfig{ExtractChunkSize: 8000, CurateChunkSize: 4000, ChunkOverlap: 200},
	}
}

func actions(chain []provenance.Entry) []string {
	out := make([]string, len(chain))
	for i, e := range chain {
		out[i] = e.Action
	}
	return out
}

func TestPipelineRunCompletes(t *testing.T) {
	st := newFakeStore()
	idx := &fakeIndex{}
	status := &fakeStatus{}
	extractor := &fakeExtractor{
		pages:  []extract.Page{{Page: 1, Text: "first page"}, {Page: 2, Text: "second page"}},
		tables: []extract.Table{{Page: 2, Table: [][]string{{"a", "b"}}}},
		images: []extract.Image{{Page: 1, Path: "images/fig1.png"}},
	}

	p, err := New(testConfig(), happyLLM(), Deps{
		Extractor: extractor,
		Store:     st,
		Ledger:    st,
		Vectors:   idx,
		Embedder:  fakeEmbedder{},
		Status:    status,
	}, nil, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	rec, err := p.Run(context.Background(), "/papers/sample.pdf")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if rec.Status != runstate.StatusCompleted {
		t.Fatalf("status = %s", rec.Status)
	}
	if rec.Metadata["title"] != "Test Paper" {
		t.Fatalf("metadata = %v", rec.Metadata)
	}

	want := []string{
		StageExtractText, StageExtractFAIR, StageCurate,
		StageQualityAssure, StageStoreContent, StageStoreFAIR,
	}
	got := actions(rec.Provenance)
	if len(got) != len(want) {
		t.Fatalf("chain = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain[%d] = %s, want %s", i, got[i], want[i])
		}
		if rec.Provenance[i].Status != provenance.StatusSuccess {
			t.Fatalf("chain[%d] status = %s", i, rec.Provenance[i].Status)
		}
	}
	// Every chain entry was mirrored to the durable ledger.
	if len(st.ledger) != len(rec.Provenance) {
		t.Fatalf("ledger has %d entries, chain has %d", len(st.ledger), len(rec.Provenance))
	}

	// Two pages, one table, one image.
	if len(st.contentRows) != 4 {
		t.Fatalf("content rows = %d", len(st.contentRows))
	}
	if len(idx.points) != 4 {
		t.Fatalf("vector points = %d", len(idx.points))
	}
	if len(idx.deleted) != 1 || idx.deleted[0] != "sample.pdf" {
		t.Fatalf("stale vectors not cleared: %v", idx.deleted)
	}
	for _, point := range idx.points {
		if point.ID == "" {
			t.Fatalf("point without id")
		}
	}

	// The persisted chain includes the store_fair entry itself.
	if len(st.fairChain) != len(rec.Provenance) {
		t.Fatalf("persisted chain = %d entries", len(st.fairChain))
	}
	if st.fairMeta["doi"] != "10.1000/test" {
		t.Fatalf("persisted metadata = %v", st.fairMeta)
	}
	if st.docStatus["sample.pdf"] != runstate.StatusCompleted {
		t.Fatalf("document status = %s", st.docStatus["sample.pdf"])
	}
	if status.last.Status != runstate.StatusCompleted {
		t.Fatalf("run state = %+v", status.last)
	}
	if status.last.QualityScore == nil || *status.last.QualityScore != 0.9 {
		t.Fatalf("quality score = %v", status.last.QualityScore)
	}

	wantCuration := []string{"curated", "quality_assured", "stored"}
	if len(st.curationLog) != len(wantCuration) {
		t.Fatalf("curation updates = %v", st.curationLog)
	}
	for i := range wantCuration {
		if st.curationLog[i] != wantCuration[i] {
			t.Fatalf("curation[%d] = %s", i, st.curationLog[i])
		}
	}
}

func TestPipelineFallsBackWhenModelFails(t *testing.T) {
	st := newFakeStore()
	extractor := &fakeExtractor{pages: []extract.Page{{Page: 1, Text: "page"}}}
	llm := &funcLLM{fn: func(string) (string, error) { return "", errors.New("model down") }}

	p, err := New(testConfig(), llm, Deps{
		Extractor: extractor,
		Store:     st,
		Ledger:    st,
		Vectors:   &fakeIndex{},
		Embedder:  fakeEmbedder{},
	}, nil, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	rec, err := p.Run(context.Background(), "/papers/sample.pdf")
	if err != nil {
		t.Fatalf("agent failures must not abort the run: %v", err)
	}
	if rec.Status != runstate.StatusCompleted {
		t.Fatalf("status = %s", rec.Status)
	}

	want := []string{
		StageExtractText, StageExtractFAIRError, StageExtractFAIRFallback,
		StageCurate, StageQualityAssure, StageStoreContent, StageStoreFAIR,
	}
	got := actions(rec.Provenance)
	if len(got) != len(want) {
		t.Fatalf("chain = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("chain[%d] = %s, want %s", i, got[i], want[i])
		}
	}

	byAction := map[string]provenance.Entry{}
	for _, e := range rec.Provenance {
		byAction[e.Action] = e
	}
	if byAction[StageExtractFAIRError].Status != provenance.StatusError {
		t.Fatalf("react stage should record an error entry")
	}
	// The fallback tool degrades to its safe default and still succeeds.
	if byAction[StageExtractFAIRFallback].Status != provenance.StatusSuccess {
		t.Fatalf("fallback should succeed")
	}
	if byAction[StageCurate].Status != provenance.StatusError {
		t.Fatalf("curate failure should be recorded and swallowed")
	}
	if len(rec.Metadata) != 0 {
		t.Fatalf("fallback default should be empty metadata: %v", rec.Metadata)
	}
}

func TestPipelineFatalOnTextExtraction(t *testing.T) {
	st := newFakeStore()
	status := &fakeStatus{}
	extractor := &fakeExtractor{textErr: errors.New("corrupt pdf")}

	p, err := New(testConfig(), happyLLM(), Deps{
		Extractor: extractor,
		Store:     st,
		Ledger:    st,
		Status:    status,
	}, nil, nil)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	rec, err := p.Run(context.Background(), "/papers/broken.pdf")
	if err == nil {
		t.Fatalf("expected fatal error")
	}
	if rec.Status != runstate.StatusFailed {
		t.Fatalf("status = %s", rec.Status)
	}
	if len(rec.Provenance) != 1 || rec.Provenance[0].Status != provenance.StatusError {
		t.Fatalf("chain = %v", actions(rec.Provenance))
	}
	if status.last.Status != runstate.StatusFailed || status.last.Error == "" {
		t.Fatalf("run state = %+v", status.last)
	}
	if st.docStatus["broken.pdf"] != runstate.StatusFailed {
		t.Fatalf("document status = %s", st.docStatus["broken.pdf"])
	}
}
