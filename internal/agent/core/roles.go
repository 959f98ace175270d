package core

import (
	"log"

	"github.com/fairdoc-ai/fairdoc/internal/agent/telemetry"
)

// Role names as they appear in provenance entries.
const (
	RoleExtractor = "metadata_extractor"
	RoleCurator   = "curation_agent"
	RoleQuality   = "quality_agent"
)

// Default iteration budgets per role. The budget is the only hard stop:
// the convergence thresholds below live in the role instructions and are
// judged by the model itself, not enforced by the engine.
const (
	DefaultExtractorIterations = 6
	DefaultCuratorIterations   = 10
	DefaultQualityIterations   = 8
)

const extractorInstruction = `You are an advanced metadata extraction agent for physics research papers. Your goal is to extract comprehensive FAIR-compliant metadata.

Reasoning process:
1. First, extract initial metadata using extract_metadata tool
2. Validate completeness using validate_metadata tool
3. If missing fields or low completeness_score, enrich using enrich_metadata tool
4. Extract vocabularies (PACS, MeSH) using extract_vocabularies tool
5. Re-validate to ensure quality
6. Iterate until metadata is complete (completeness_score > 0.9) and valid
7. Return FINISH when metadata meets quality standards

Be methodical: extract -> validate -> enrich -> validate -> finish`

const curatorInstruction = `You are an advanced curation agent for physics research data. Your goal is to ensure metadata meets FAIR standards with quality_score >= 0.8.

Deep reasoning process:
1. Assess current quality using assess_quality tool - understand what's missing
2. If quality_score < 0.8, analyze which FAIR principles need improvement:
   - Findable: Check PIDs, use generate_pids if missing
   - Accessible: Verify license, repository_url, data_availability
   - Interoperable: Ensure vocabularies exist, use extract_vocabularies if needed
   - Reusable: Check methodology, provenance information
3. Enrich systematically using enrich_metadata tool for missing elements
4. Validate improvements using validate_metadata tool
5. If conflicts detected, resolve using resolve_conflicts tool intelligently
6. Re-assess quality - check if score improved
7. Iterate until quality_score >= 0.8 AND all FAIR principles score > 0.7
8. Return FINISH when quality threshold is consistently met

Think deeply about what's needed, don't just apply tools randomly. Be strategic.`

const qualityInstruction = `You are a deep quality assurance agent. Your goal is to ensure metadata achieves high FAIR compliance (quality_score >= 0.85).

Deep quality analysis process:
1. Assess quality comprehensively using assess_quality tool - understand detailed FAIR scores
2. Analyze each FAIR dimension:
   - Findable: Are PIDs present? Is metadata rich? Use generate_pids if needed
   - Accessible: Is license clear? Repository accessible? Data available?
   - Interoperable: Are standards used? Vocabularies present? Use extract_vocabularies
   - Reusable: Is methodology clear? Provenance tracked? License appropriate?
3. Identify specific gaps from quality_assessment recommendations
4. Systematically improve using enrich_metadata, extract_vocabularies, generate_pids
5. Validate improvements using validate_metadata
6. Re-assess quality - check if improvements raised scores
7. Iterate until quality_score >= 0.85 AND each FAIR dimension >= 0.8
8. Return FINISH when quality is consistently high

Be thorough and analytical. Don't stop until quality is excellent.`

// NewExtractorAgent binds the engine to the metadata extraction role.
func NewExtractorAgent(tb *Toolbox, maxIterations int, llm LLM, telem *telemetry.Telemetry, logger *log.Logger) *Agent {
	if maxIterations <= 0 {
		maxIterations = DefaultExtractorIterations
	}
	tools := []*Tool{
		tb.ExtractMetadata(),
		tb.ValidateMetadata(),
		tb.EnrichMetadata(),
		tb.ExtractVocabularies(),
	}
	return NewAgent(RoleExtractor, extractorInstruction, tools, maxIterations, llm, telem, logger)
}

// NewCuratorAgent binds the engine to the curation role.
func NewCuratorAgent(tb *Toolbox, maxIterations int, llm LLM, telem *telemetry.Telemetry, logger *log.Logger) *Agent {
	if maxIterations <= 0 {
		maxIterations = DefaultCuratorIterations
	}
	tools := []*Tool{
		tb.ValidateMetadata(),
		tb.EnrichMetadata(),
		tb.AssessQuality(),
		tb.ResolveConflicts(),
		tb.GeneratePIDs(),
		tb.ExtractVocabularies(),
	}
	return NewAgent(RoleCurator, curatorInstruction, tools, maxIterations, llm, telem, logger)
}

// NewQualityAgent binds the engine to the quality assurance role.
func NewQualityAgent(tb *Toolbox, maxIterations int, llm LLM, telem *telemetry.Telemetry, logger *log.Logger) *Agent {
	if maxIterations <= 0 {
		maxIterations = DefaultQualityIterations
	}
	tools := []*Tool{
		tb.AssessQuality(),
		tb.EnrichMetadata(),
		tb.ValidateMetadata(),
		tb.ExtractVocabularies(),
		tb.GeneratePIDs(),
	}
	return NewAgent(RoleQuality, qualityInstruction, tools, maxIterations, llm, telem, logger)
}
