package pipeline

import "testing"

func TestExtractMetadataPrecedence(t *testing.T) {
	def := map[string]interface{}{"default": true}

	// Top-level key wins over last_result.
	obs := map[string]interface{}{
		"metadata":    map[string]interface{}{"source": "top"},
		"last_result": map[string]interface{}{"metadata": map[string]interface{}{"source": "nested"}},
	}
	if got := ExtractMetadataFromResult(obs, def); got["source"] != "top" {
		t.Fatalf("top-level key must win: %v", got)
	}

	// last_result.metadata next.
	obs = map[string]interface{}{
		"last_result": map[string]interface{}{"metadata": map[string]interface{}{"source": "nested"}},
	}
	if got := ExtractMetadataFromResult(obs, def); got["source"] != "nested" {
		t.Fatalf("last_result key expected: %v", got)
	}

	// conflict_resolution.resolved_data as the final fallback before the default.
	obs = map[string]interface{}{
		"last_result": map[string]interface{}{
			"conflict_resolution": map[string]interface{}{
				"resolved_data": map[string]interface{}{"source": "resolved"},
			},
		},
	}
	if got := ExtractMetadataFromResult(obs, def); got["source"] != "resolved" {
		t.Fatalf("resolved_data expected: %v", got)
	}

	if got := ExtractMetadataFromResult(map[string]interface{}{}, def); got["default"] != true {
		t.Fatalf("default expected: %v", got)
	}
}

func TestExtractQualityAndValidation(t *testing.T) {
	obs := map[string]interface{}{
		"last_result": map[string]interface{}{
			"quality_assessment": map[string]interface{}{"quality_score": 0.8},
			"validation_result":  map[string]interface{}{"is_valid": true},
		},
	}
	q := ExtractQualityFromResult(obs, nil)
	if q["quality_score"] != 0.8 {
		t.Fatalf("quality = %v", q)
	}
	v := ExtractValidationFromResult(obs, nil)
	if v["is_valid"] != true {
		t.Fatalf("validation = %v", v)
	}

	// The resolved_data path applies to metadata only.
	obs = map[string]interface{}{
		"last_result": map[string]interface{}{
			"conflict_resolution": map[string]interface{}{
				"resolved_data": map[string]interface{}{"quality_score": 0.1},
			},
		},
	}
	if got := ExtractQualityFromResult(obs, nil); got != nil {
		t.Fatalf("quality must not read resolved_data: %v", got)
	}
}

func TestQualityScore(t *testing.T) {
	if score, ok := QualityScore(map[string]interface{}{"quality_score": 0.75}); !ok || score != 0.75 {
		t.Fatalf("score = %v ok = %v", score, ok)
	}
	if score, ok := QualityScore(map[string]interface{}{"quality_score": 1}); !ok || score != 1 {
		t.Fatalf("integer-shaped score rejected: %v %v", score, ok)
	}
	if _, ok := QualityScore(map[string]interface{}{"quality_score": "high"}); ok {
		t.Fatalf("non-numeric score accepted")
	}
	if _, ok := QualityScore(nil); ok {
		t.Fatalf("nil quality accepted")
	}
}
