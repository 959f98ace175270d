package core

import (
	"strings"
)

// Section markers the model is instructed to emit. Matching is
// case-insensitive and tolerant of missing markers: a response with no
// "Action:" defaults to the termination action, and a response with no
// "Action Input:" defaults to an empty input. This function must never
// fail: malformed model output always yields a valid triple.
//
// The marker scanning is deliberately isolated here so replacing the
// model's output format later touches one function.
const (
	markerThought     = "thought:"
	markerAction      = "action:"
	markerActionInput = "action input:"
)

// parseReasoning splits a free-text reasoning step into its
// (thought, action, actionInput) triple.
func parseReasoning(response string) (thought, action, actionInput string) {
	action = FinishAction

	lower := strings.ToLower(response)

	if idx := strings.Index(lower, markerThought); idx >= 0 {
		part := response[idx+len(markerThought):]
		partLower := lower[idx+len(markerThought):]
		if actionIdx := strings.Index(partLower, markerAction); actionIdx >= 0 {
			thought = strings.TrimSpace(part[:actionIdx])
		} else {
			thought = strings.TrimSpace(part)
		}
	}

	if idx := strings.Index(lower, markerAction); idx >= 0 {
		part := response[idx+len(markerAction):]
		partLower := lower[idx+len(markerAction):]
		if inputIdx := strings.Index(partLower, markerActionInput); inputIdx >= 0 {
			action = strings.TrimSpace(part[:inputIdx])
			actionInput = strings.TrimSpace(part[inputIdx+len(markerActionInput):])
		} else {
			// No input section: the action is the remainder of its line.
			line := part
			if nl := strings.IndexByte(line, '\n'); nl >= 0 {
				line = line[:nl]
			}
			action = strings.TrimSpace(line)
		}
	}

	return thought, action, actionInput
}

// isFinish reports whether the parsed action is the termination keyword.
// Only an exact case-insensitive match counts.
func isFinish(action string) bool {
	return strings.EqualFold(strings.TrimSpace(action), FinishAction)
}
