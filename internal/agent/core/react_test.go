package core

import (
	"context"
	"errors"
	"testing"
)

type scriptedLLM struct {
	responses []string
	calls     int
	err       error
}

func (s *scriptedLLM) Generate(ctx context.Context, prompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	if len(s.responses) == 0 {
		return "", errors.New("no scripted responses")
	}
	idx := s.calls
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	s.calls++
	return s.responses[idx], nil
}

func TestAgentRunImmediateFinish(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"Thought: done\nAction: FINISH"}}
	agent := NewAgent("tester", "do things", nil, 5, llm, nil, nil)

	obs := Observation{"text": "hello"}
	final, iterations, err := agent.Run(context.Background(), obs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(iterations) != 1 {
		t.Fatalf("expected 1 iteration, got %d", len(iterations))
	}
	if final[KeyFinalThought] != "done" {
		t.Fatalf("final_thought = %v", final[KeyFinalThought])
	}
	if _, ok := obs[KeyFinalThought]; ok {
		t.Fatalf("caller observation must not be mutated")
	}
}

func TestAgentRunToolThenFinish(t *testing.T) {
	tool := &Tool{
		Name: "extract_metadata",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			if input != "the text" {
				t.Fatalf("tool received %v", input)
			}
			return map[string]interface{}{"metadata": map[string]interface{}{"title": "T"}}, nil
		},
	}
	llm := &scriptedLLM{responses: []string{
		"Thought: extract\nAction: extract_metadata\nAction Input: the text",
		"Thought: done\nAction: FINISH",
	}}
	agent := NewAgent("tester", "do things", []*Tool{tool}, 5, llm, nil, nil)

	final, iterations, err := agent.Run(context.Background(), Observation{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(iterations) != 2 {
		t.Fatalf("expected 2 iterations, got %d", len(iterations))
	}
	if final[KeyLastAction] != "extract_metadata" {
		t.Fatalf("last_action = %v", final[KeyLastAction])
	}
	// Tool result keys are merged into the observation.
	md, ok := final["metadata"].(map[string]interface{})
	if !ok || md["title"] != "T" {
		t.Fatalf("merged metadata missing: %v", final["metadata"])
	}
}

func TestAgentRunUnknownActionExhaustsBudget(t *testing.T) {
	llm := &scriptedLLM{responses: []string{"Thought: hm\nAction: launch_rocket\nAction Input: x"}}
	agent := NewAgent("tester", "do things", nil, 3, llm, nil, nil)

	final, iterations, err := agent.Run(context.Background(), Observation{})
	if err != nil {
		t.Fatalf("unknown actions must not fail the run: %v", err)
	}
	if len(iterations) != 3 {
		t.Fatalf("expected the full budget of 3 iterations, got %d", len(iterations))
	}
	if _, ok := final[KeyError].(string); !ok {
		t.Fatalf("expected error key in observation")
	}
	if got := final[KeyIterations].([]IterationRecord); len(got) != 3 {
		t.Fatalf("iterations key = %v", final[KeyIterations])
	}
}

func TestAgentRunToolErrorIsSwallowed(t *testing.T) {
	tool := &Tool{
		Name: "validate_metadata",
		Run: func(ctx context.Context, input interface{}) (map[string]interface{}, error) {
			return nil, errors.New("backend down")
		},
	}
	llm := &scriptedLLM{responses: []string{
		"Thought: check\nAction: validate_metadata\nAction Input: {}",
		"Thought: giving up\nAction: FINISH",
	}}
	agent := NewAgent("tester", "do things", []*Tool{tool}, 5, llm, nil, nil)

	final, _, err := agent.Run(context.Background(), Observation{})
	if err != nil {
		t.Fatalf("tool errors must not fail the run: %v", err)
	}
	if final[KeyError] != "backend down" {
		t.Fatalf("error key = %v", final[KeyError])
	}
	if final[KeyFinalThought] != "giving up" {
		t.Fatalf("final_thought = %v", final[KeyFinalThought])
	}
}

func TestAgentRunModelFailure(t *testing.T) {
	llm := &scriptedLLM{err: errors.New("rate limited")}
	agent := NewAgent("tester", "do things", nil, 5, llm, nil, nil)

	_, _, err := agent.Run(context.Background(), Observation{})
	if err == nil {
		t.Fatalf("expected model failure to surface")
	}
}
