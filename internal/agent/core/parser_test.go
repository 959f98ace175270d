package core

import "testing"

func TestParseReasoning(t *testing.T) {
	cases := []struct {
		name     string
		response string
		thought  string
		action   string
		input    string
	}{
		{
			name:     "full triple",
			response: "Thought: need metadata\nAction: extract_metadata\nAction Input: some text",
			thought:  "need metadata",
			action:   "extract_metadata",
			input:    "some text",
		},
		{
			name:     "case insensitive markers",
			response: "THOUGHT: done now\nACTION: FINISH\nACTION INPUT:",
			thought:  "done now",
			action:   "FINISH",
			input:    "",
		},
		{
			name:     "missing action defaults to finish",
			response: "Thought: nothing left to do",
			thought:  "nothing left to do",
			action:   "FINISH",
			input:    "",
		},
		{
			name:     "missing input takes action line only",
			response: "Thought: validate\nAction: validate_metadata\nsome trailing prose",
			thought:  "validate",
			action:   "validate_metadata",
			input:    "",
		},
		{
			name:     "empty response",
			response: "",
			thought:  "",
			action:   "FINISH",
			input:    "",
		},
		{
			name:     "multiline input preserved",
			response: "Thought: t\nAction: enrich_metadata\nAction Input: {\"title\": \"x\"}|||body\ntext",
			thought:  "t",
			action:   "enrich_metadata",
			input:    "{\"title\": \"x\"}|||body\ntext",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			thought, action, input := parseReasoning(tc.response)
			if thought != tc.thought {
				t.Fatalf("thought = %q, want %q", thought, tc.thought)
			}
			if action != tc.action {
				t.Fatalf("action = %q, want %q", action, tc.action)
			}
			if input != tc.input {
				t.Fatalf("input = %q, want %q", input, tc.input)
			}
		})
	}
}

func TestIsFinish(t *testing.T) {
	if !isFinish("FINISH") || !isFinish("finish") || !isFinish(" Finish ") {
		t.Fatalf("expected case-insensitive FINISH match")
	}
	if isFinish("FINISH now") || isFinish("finished") || isFinish("") {
		t.Fatalf("only an exact match should terminate")
	}
}
