package pipeline

// Result-extraction helpers. Different tools publish their results under
// different shapes, so each lookup follows a fixed priority order:
//
//  1. a top-level observation key of the exact name,
//  2. the same key inside the engine's last_result field,
//  3. for metadata, the conflict_resolution.resolved_data nested path
//     inside last_result,
//  4. the caller-supplied default.
//
// This precedence must be preserved exactly.

// ExtractMetadataFromResult locates the metadata mapping in an agent's
// final observation.
func ExtractMetadataFromResult(obs map[string]interface{}, def map[string]interface{}) map[string]interface{} {
	if m, ok := obs["metadata"].(map[string]interface{}); ok {
		return m
	}
	if lr, ok := obs["last_result"].(map[string]interface{}); ok {
		if m, ok := lr["metadata"].(map[string]interface{}); ok {
			return m
		}
		if cr, ok := lr["conflict_resolution"].(map[string]interface{}); ok {
			if m, ok := cr["resolved_data"].(map[string]interface{}); ok {
				return m
			}
		}
	}
	return def
}

// ExtractQualityFromResult locates the quality assessment in an agent's
// final observation.
func ExtractQualityFromResult(obs map[string]interface{}, def map[string]interface{}) map[string]interface{} {
	if m, ok := obs["quality_assessment"].(map[string]interface{}); ok {
		return m
	}
	if lr, ok := obs["last_result"].(map[string]interface{}); ok {
		if m, ok := lr["quality_assessment"].(map[string]interface{}); ok {
			return m
		}
	}
	return def
}

// ExtractValidationFromResult locates the validation result in an
// agent's final observation.
func ExtractValidationFromResult(obs map[string]interface{}, def map[string]interface{}) map[string]interface{} {
	if m, ok := obs["validation_result"].(map[string]interface{}); ok {
		return m
	}
	if lr, ok := obs["last_result"].(map[string]interface{}); ok {
		if m, ok := lr["validation_result"].(map[string]interface{}); ok {
			return m
		}
	}
	return def
}

// QualityScore pulls a numeric quality_score out of a quality
// assessment, tolerating integer-shaped JSON numbers.
func QualityScore(quality map[string]interface{}) (float64, bool) {
	switch v := quality["quality_score"].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
