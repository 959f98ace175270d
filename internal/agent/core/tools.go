package core

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Tool names. Also the action vocabulary the agents reason over.
const (
	ToolExtractMetadata     = "extract_metadata"
	ToolValidateMetadata    = "validate_metadata"
	ToolEnrichMetadata      = "enrich_metadata"
	ToolAssessQuality       = "assess_quality"
	ToolResolveConflicts    = "resolve_conflicts"
	ToolGeneratePIDs        = "generate_pids"
	ToolExtractVocabularies = "extract_vocabularies"
)

// Sentinel delimiter joining multiple sub-payloads in a string input,
// e.g. "metadata|||text" or "new|||existing".
const inputDelimiter = "|||"

// Prompt truncation limits, matching the chunk windows used upstream.
const (
	maxExtractChars = 8000
	maxEnrichChars  = 4000
)

// Toolbox builds the full tool set against one language model. Every
// tool attempts to parse the model's response as JSON and returns a
// documented safe default on any failure, including a failed model
// call, so the reasoning loop can treat failures as data.
type Toolbox struct {
	llm LLM
}

// NewToolbox creates the tool factory.
func NewToolbox(llm LLM) *Toolbox {
	return &Toolbox{llm: llm}
}

// ExtractMetadata extracts comprehensive FAIR metadata from paper text.
// Safe default: {"metadata": {}}.
func (tb *Toolbox) ExtractMetadata() *Tool {
	return &Tool{
		Name:        ToolExtractMetadata,
		Description: "Extract comprehensive FAIR metadata from text",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			text := textFromInput(input)
			prompt := fmt.Sprintf(`Extract comprehensive FAIR metadata from physics research paper. Return JSON with:
- doi, handle, ark (PIDs)
- title, authors, abstract, keywords
- publication_date, journal, license
- repository_url, data_availability, methodology
- pacs_codes, mesh_terms, subject_classifications
- datacite_schema (full DataCite 4.4 fields)

Extract from: %s`, truncate(text, maxExtractChars))

			result, ok := tb.generateJSON(ctx, prompt)
			if !ok {
				return map[string]interface{}{"metadata": map[string]interface{}{}}, nil
			}
			return map[string]interface{}{"metadata": result}, nil
		},
	}
}

// ValidateMetadata checks completeness, correctness, and FAIR compliance.
// Safe default: {"validation_result": {"is_valid": false, "errors": ["Validation failed"]}}.
func (tb *Toolbox) ValidateMetadata() *Tool {
	return &Tool{
		Name:        ToolValidateMetadata,
		Description: "Validate FAIR metadata for completeness, correctness, and FAIR compliance",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			metadata := metadataFromInput(input)
			prompt := fmt.Sprintf(`Validate FAIR metadata comprehensively. Check:
- Completeness of required fields
- Correctness of formats
- FAIR compliance (Findable, Accessible, Interoperable, Reusable)
Return JSON with is_valid, missing_fields, errors, warnings, completeness_score, fair_scores.

Validate: %s`, marshalIndent(metadata))

			result, ok := tb.generateJSON(ctx, prompt)
			if !ok {
				return map[string]interface{}{"validation_result": map[string]interface{}{
					"is_valid": false,
					"errors":   []interface{}{"Validation failed"},
				}}, nil
			}
			return map[string]interface{}{"validation_result": result}, nil
		},
	}
}

// EnrichMetadata adds missing fields, vocabularies, and DataCite detail.
// Safe default: the input metadata unchanged with "enriched": false.
func (tb *Toolbox) EnrichMetadata() *Tool {
	return &Tool{
		Name:        ToolEnrichMetadata,
		Description: "Enrich metadata with missing fields, PACS codes, MeSH terms, DataCite fields",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			metadata, text := metadataAndTextFromInput(input)
			prompt := fmt.Sprintf(`Enrich metadata by adding missing fields: PACS codes, MeSH terms, related identifiers, enhanced descriptions, missing DataCite fields.

Enrich: %s

From text: %s`, marshalIndent(metadata), truncate(text, maxEnrichChars))

			enriched, ok := tb.generateJSON(ctx, prompt)
			if !ok {
				return map[string]interface{}{"metadata": metadata, "enriched": false}, nil
			}
			merged := make(map[string]interface{}, len(metadata)+len(enriched))
			for k, v := range metadata {
				merged[k] = v
			}
			for k, v := range enriched {
				merged[k] = v
			}
			return map[string]interface{}{"metadata": merged, "enriched": true}, nil
		},
	}
}

// AssessQuality scores FAIR compliance per dimension with recommendations.
// Safe default: {"quality_assessment": {"quality_score": 0.5, "fair_compliance": {}}}.
func (tb *Toolbox) AssessQuality() *Tool {
	return &Tool{
		Name:        ToolAssessQuality,
		Description: "Deeply assess FAIR compliance quality with detailed scoring and recommendations",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			metadata := metadataFromInput(input)
			prompt := fmt.Sprintf(`Assess FAIR compliance quality deeply. Evaluate:
- Findable: PIDs, metadata richness, searchability
- Accessible: License, repository access, data availability
- Interoperable: Standards, vocabularies, formats
- Reusable: License clarity, methodology, provenance
Return JSON with quality_score (0-1), fair_compliance (detailed scores), recommendations, improvement_priority.

Assess: %s`, marshalIndent(metadata))

			result, ok := tb.generateJSON(ctx, prompt)
			if !ok {
				return map[string]interface{}{"quality_assessment": map[string]interface{}{
					"quality_score":   0.5,
					"fair_compliance": map[string]interface{}{},
				}}, nil
			}
			return map[string]interface{}{"quality_assessment": result}, nil
		},
	}
}

// ResolveConflicts merges a new and an existing metadata version.
// Safe default: the new metadata as resolved_data with no conflicts.
func (tb *Toolbox) ResolveConflicts() *Tool {
	return &Tool{
		Name:        ToolResolveConflicts,
		Description: "Intelligently resolve conflicts between new and existing metadata versions",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			newData, existingData := conflictPayloads(input)
			prompt := fmt.Sprintf(`Intelligently resolve conflicts between metadata versions. Analyze differences, prioritize accuracy, merge best information. Return JSON with resolved_data, conflicts (list), resolution_strategy, confidence_score.

New: %s

Existing: %s`, marshalIndent(newData), marshalIndent(existingData))

			result, ok := tb.generateJSON(ctx, prompt)
			if !ok {
				return map[string]interface{}{"conflict_resolution": map[string]interface{}{
					"resolved_data": newData,
					"conflicts":     []interface{}{},
				}}, nil
			}
			return map[string]interface{}{"conflict_resolution": result}, nil
		},
	}
}

// GeneratePIDs extracts or suggests persistent identifiers.
// Safe default: {"pids": {}}.
func (tb *Toolbox) GeneratePIDs() *Tool {
	return &Tool{
		Name:        ToolGeneratePIDs,
		Description: "Generate or extract PIDs (DOI, Handle, ARK) from metadata",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			metadata := metadataFromInput(input)
			prompt := fmt.Sprintf(`Generate or suggest PIDs based on metadata. Extract existing PIDs or suggest new ones. Return JSON with:
- doi: Existing or suggested DOI
- handle: Existing or suggested Handle
- ark: Existing or suggested ARK
- pid_sources: Where PIDs were found/suggested
- pid_confidence: Confidence in PID accuracy

Metadata: %s`, marshalIndent(metadata))

			result, ok := tb.generateJSON(ctx, prompt)
			if !ok {
				return map[string]interface{}{"pids": map[string]interface{}{}}, nil
			}
			return map[string]interface{}{"pids": result}, nil
		},
	}
}

// ExtractVocabularies pulls standardized vocabularies from metadata/text.
// Safe default: {"vocabularies": {}}.
func (tb *Toolbox) ExtractVocabularies() *Tool {
	return &Tool{
		Name:        ToolExtractVocabularies,
		Description: "Extract PACS codes, MeSH terms, and subject classifications from metadata and text",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			metadata, text := metadataAndTextFromInput(input)
			prompt := fmt.Sprintf(`Extract standardized vocabularies comprehensively:
- PACS codes: Physics and Astronomy Classification Scheme codes
- MeSH terms: Medical Subject Headings (if applicable)
- Subject classifications: Research areas, domains
Return JSON with pacs_codes (array), mesh_terms (array), subject_classifications (object).

Metadata: %s

Text: %s`, marshalIndent(metadata), truncate(text, maxEnrichChars))

			result, ok := tb.generateJSON(ctx, prompt)
			if !ok {
				return map[string]interface{}{"vocabularies": map[string]interface{}{}}, nil
			}
			return map[string]interface{}{"vocabularies": result}, nil
		},
	}
}

// generateJSON invokes the model and parses its response into a JSON
// object, returning ok=false on any failure.
func (tb *Toolbox) generateJSON(ctx context.Context, prompt string) (map[string]interface{}, bool) {
	response, err := tb.llm.Generate(ctx, prompt)
	if err != nil {
		return nil, false
	}
	result, err := parseJSONObject(response)
	if err != nil {
		return nil, false
	}
	return result, true
}

// parseJSONObject extracts the first balanced JSON object from a model
// response and unmarshals it. Tolerates prose and code fences around
// the object.
func parseJSONObject(response string) (map[string]interface{}, error) {
	start := -1
	depth := 0
	for i, ch := range response {
		if ch == '{' {
			if depth == 0 {
				start = i
			}
			depth++
		} else if ch == '}' {
			if depth > 0 {
				depth--
			}
			if depth == 0 && start != -1 {
				var out map[string]interface{}
				if err := json.Unmarshal([]byte(response[start:i+1]), &out); err != nil {
					return nil, err
				}
				return out, nil
			}
		}
	}
	return nil, fmt.Errorf("no JSON object found in response")
}

// textFromInput accepts a raw string or a map carrying a "text" field.
func textFromInput(input interface{}) string {
	switch v := input.(type) {
	case string:
		return v
	case map[string]interface{}:
		if s, ok := v["text"].(string); ok {
			return s
		}
		return ""
	case Observation:
		if s, ok := v["text"].(string); ok {
			return s
		}
		return ""
	default:
		return fmt.Sprintf("%v", input)
	}
}

// metadataFromInput accepts a map (preferring its "metadata" key), a
// JSON string, or anything else (yielding an empty map).
func metadataFromInput(input interface{}) map[string]interface{} {
	switch v := input.(type) {
	case map[string]interface{}:
		if m, ok := v["metadata"].(map[string]interface{}); ok {
			return m
		}
		return v
	case Observation:
		return metadataFromInput(map[string]interface{}(v))
	case string:
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(v), &m); err == nil {
			return m
		}
		return map[string]interface{}{}
	default:
		return map[string]interface{}{}
	}
}

// metadataAndTextFromInput handles tools needing both a metadata payload
// and source text: either a map with "metadata" and "text" keys, or a
// "metadata|||text" joined string.
func metadataAndTextFromInput(input interface{}) (map[string]interface{}, string) {
	switch v := input.(type) {
	case map[string]interface{}:
		text, _ := v["text"].(string)
		return metadataFromInput(v), text
	case Observation:
		return metadataAndTextFromInput(map[string]interface{}(v))
	case string:
		parts := strings.SplitN(v, inputDelimiter, 2)
		metadata := metadataFromInput(parts[0])
		text := ""
		if len(parts) > 1 {
			text = parts[1]
		}
		return metadata, text
	default:
		return map[string]interface{}{}, ""
	}
}

// conflictPayloads splits a conflict-resolution input into (new, existing):
// a map with new_metadata/existing_metadata keys, or "new|||existing".
func conflictPayloads(input interface{}) (map[string]interface{}, map[string]interface{}) {
	switch v := input.(type) {
	case map[string]interface{}:
		newData, ok := v["new_metadata"].(map[string]interface{})
		if !ok {
			newData = metadataFromInput(v)
		}
		existing, _ := v["existing_metadata"].(map[string]interface{})
		if existing == nil {
			existing = map[string]interface{}{}
		}
		return newData, existing
	case Observation:
		return conflictPayloads(map[string]interface{}(v))
	case string:
		parts := strings.SplitN(v, inputDelimiter, 2)
		newData := metadataFromInput(parts[0])
		existing := map[string]interface{}{}
		if len(parts) > 1 {
			existing = metadataFromInput(parts[1])
		}
		return newData, existing
	default:
		return map[string]interface{}{}, map[string]interface{}{}
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	// Back up to a rune boundary so the cut never yields invalid UTF-8.
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}
