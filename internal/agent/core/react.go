package core

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/fairdoc-ai/fairdoc/internal/agent/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var agentTracer trace.Tracer = otel.Tracer("fairdoc/internal/agent/core")

// Agent drives a reasoning/acting loop over a fixed tool subset. One
// invocation is single-threaded: one reasoning step, then one tool call
// at a time, until the model signals FINISH or the iteration budget is
// exhausted. Budget exhaustion is not a failure; the best observation
// so far is returned.
type Agent struct {
	name          string
	instruction   string
	tools         map[string]*Tool
	toolOrder     []string
	maxIterations int
	llm           LLM
	logger        *log.Logger
	telemetry     *telemetry.Telemetry
}

// NewAgent creates an agent binding the engine to a role instruction, an
// ordered tool subset, and an iteration budget.
func NewAgent(name, instruction string, tools []*Tool, maxIterations int, llm LLM, telem *telemetry.Telemetry, logger *log.Logger) *Agent {
	if logger == nil {
		logger = log.New(log.Writer(), "[AGENT] ", log.LstdFlags)
	}
	if maxIterations <= 0 {
		maxIterations = 5
	}
	a := &Agent{
		name:          name,
		instruction:   instruction,
		tools:         make(map[string]*Tool, len(tools)),
		maxIterations: maxIterations,
		llm:           llm,
		logger:        logger,
		telemetry:     telem,
	}
	for _, t := range tools {
		a.tools[t.Name] = t
		a.toolOrder = append(a.toolOrder, t.Name)
	}
	return a
}

// Name returns the agent's role name.
func (a *Agent) Name() string { return a.name }

// MaxIterations returns the agent's iteration budget.
func (a *Agent) MaxIterations() int { return a.maxIterations }

// Run executes the reasoning loop starting from the given observation.
// The caller-supplied observation is not mutated; the returned one is
// decorated with the ordered iteration list and the last thought
// produced (empty string if never produced).
//
// An error is returned only when the language model itself fails;
// tool failures, unknown actions, and malformed reasoning text are all
// folded into the observation and the loop continues.
func (a *Agent) Run(ctx context.Context, obs Observation) (Observation, []IterationRecord, error) {
	ctx, span := agentTracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.String("agent.name", a.name)))
	defer span.End()

	started := time.Now()
	current := obs.Clone()
	transcript := a.initialPrompt(obs)

	var iterations []IterationRecord
	lastThought := ""

	finish := func() Observation {
		current[KeyIterations] = iterations
		current[KeyFinalThought] = lastThought
		if a.telemetry != nil {
			a.telemetry.RecordAgentEvent(ctx, telemetry.AgentEvent{
				Agent:      a.name,
				Iterations: len(iterations),
				Duration:   time.Since(started),
				Success:    true,
			})
		}
		span.SetAttributes(attribute.Int("agent.iterations", len(iterations)))
		return current
	}

	for i := 0; i < a.maxIterations; i++ {
		response, err := a.llm.Generate(ctx, transcript)
		if err != nil {
			if a.telemetry != nil {
				a.telemetry.RecordAgentEvent(ctx, telemetry.AgentEvent{
					Agent:      a.name,
					Iterations: len(iterations),
					Duration:   time.Since(started),
					Success:    false,
					Error:      err.Error(),
				})
			}
			return nil, iterations, fmt.Errorf("agent %s: model call failed: %w", a.name, err)
		}

		thought, action, actionInput := parseReasoning(response)
		lastThought = thought

		iterations = append(iterations, IterationRecord{
			Iteration:   i + 1,
			Thought:     thought,
			Action:      action,
			ActionInput: actionInput,
		})

		if isFinish(action) {
			a.logger.Printf("agent %s finished after %d iteration(s)", a.name, i+1)
			return finish(), iterations, nil
		}

		tool, ok := a.tools[action]
		if !ok {
			msg := fmt.Sprintf("Unknown action: %s. Available: %s", action, strings.Join(a.toolOrder, ", "))
			current[KeyError] = msg
			transcript += "\n\nError: Unknown action " + action
			continue
		}

		result, err := tool.Run(ctx, actionInput)
		if err != nil {
			current[KeyError] = err.Error()
			transcript += fmt.Sprintf("\n\nError executing %s: %s", action, err.Error())
			continue
		}

		current[KeyLastAction] = action
		current[KeyLastResult] = result
		current.Merge(result)

		transcript += fmt.Sprintf("\n\nThought: %s\nAction: %s\nAction Input: %s\nObservation: %s",
			thought, action, actionInput, marshalIndent(result))
	}

	a.logger.Printf("agent %s exhausted budget of %d iterations", a.name, a.maxIterations)
	return finish(), iterations, nil
}

func (a *Agent) initialPrompt(obs Observation) string {
	return fmt.Sprintf(`%s

Available tools: %s

Format your response as:
Thought: [your reasoning about what to do next]
Action: [tool_name or FINISH]
Action Input: [input for the tool, or empty if FINISH]

Current observation:
%s`, a.instruction, strings.Join(a.toolOrder, ", "), marshalIndent(obs))
}

func marshalIndent(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}
