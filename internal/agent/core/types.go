package core

import (
	"context"
)

// Engine-injected observation keys. These are appended by the reasoning
// loop as it progresses and are never present in a caller-supplied
// initial observation.
const (
	KeyLastAction   = "last_action"
	KeyLastResult   = "last_result"
	KeyError        = "error"
	KeyIterations   = "iterations"
	KeyFinalThought = "final_thought"
)

// FinishAction is the termination keyword. Termination triggers only on
// an exact case-insensitive match; substrings do not count.
const FinishAction = "FINISH"

// Observation is the working memory passed into and out of one agent
// invocation. Merge semantics are shallow: tool output keys overwrite
// observation keys of the same name.
type Observation map[string]interface{}

// Clone returns a shallow copy of the observation.
func (o Observation) Clone() Observation {
	out := make(Observation, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Merge applies a shallow overwrite-by-key update.
func (o Observation) Merge(update map[string]interface{}) {
	for k, v := range update {
		o[k] = v
	}
}

// IterationRecord captures one reasoning step inside the loop. Records
// are appended in order and never mutated, regardless of whether the
// chosen action succeeded, failed, or was unrecognized.
type IterationRecord struct {
	Iteration   int    `json:"iteration"`
	Thought     string `json:"thought"`
	Action      string `json:"action"`
	ActionInput string `json:"action_input"`
}

// Tool is one independently invokable capability. Run accepts either a
// ready-made map payload or a delimiter-joined string and must return a
// documented safe default instead of an error when the underlying model
// output cannot be parsed. Tool failures are data, not control flow.
type Tool struct {
	Name        string
	Description string
	Run         func(ctx context.Context, input interface{}) (map[string]interface{}, error)
}

// LLM is the narrow language-model surface the engine and tools consume.
type LLM interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
