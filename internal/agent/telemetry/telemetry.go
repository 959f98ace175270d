package telemetry

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/fairdoc-ai/fairdoc/config"
)

var (
	agentRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairdoc_agent_runs_total",
		Help: "Completed ReAct agent invocations by role and outcome.",
	}, []string{"agent", "status"})

	agentIterations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairdoc_agent_iterations_total",
		Help: "Reasoning iterations executed per agent role.",
	}, []string{"agent"})

	llmTokens = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairdoc_llm_tokens_total",
		Help: "LLM tokens consumed, by direction.",
	}, []string{"direction"})

	pipelineStages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fairdoc_pipeline_stage_total",
		Help: "Pipeline stage outcomes by stage name and status.",
	}, []string{"stage", "status"})
)

// Telemetry tracks agent activity, LLM usage, and cost.
type Telemetry struct {
	config config.TelemetryConfig
	logger *log.Logger

	mu      sync.RWMutex
	metrics Metrics
}

// Metrics is a point-in-time snapshot of accumulated counters.
type Metrics struct {
	AgentExecutions map[string]int64
	AgentFailures   map[string]int64
	LLMRequests     int64
	InputTokens     int64
	OutputTokens    int64
	TotalCost       float64
	StageOutcomes   map[string]int64 // "stage/status" -> count
}

// AgentEvent records one completed agent invocation.
type AgentEvent struct {
	Agent      string
	Iterations int
	Duration   time.Duration
	Success    bool
	Error      string
}

// LLMEvent records one language-model call.
type LLMEvent struct {
	Model        string
	InputTokens  int64
	OutputTokens int64
	Cost         float64
	Duration     time.Duration
}

// StageEvent records one pipeline stage outcome.
type StageEvent struct {
	Stage    string
	Status   string
	Duration time.Duration
}

// New creates a telemetry instance.
func New(cfg config.TelemetryConfig) *Telemetry {
	return &Telemetry{
		config: cfg,
		logger: log.New(log.Writer(), "[TELEMETRY] ", log.LstdFlags),
		metrics: Metrics{
			AgentExecutions: make(map[string]int64),
			AgentFailures:   make(map[string]int64),
			StageOutcomes:   make(map[string]int64),
		},
	}
}

// RecordAgentEvent records a completed agent invocation.
func (t *Telemetry) RecordAgentEvent(ctx context.Context, event AgentEvent) {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.AgentExecutions[event.Agent]++
	if !event.Success {
		t.metrics.AgentFailures[event.Agent]++
	}
	t.mu.Unlock()

	status := "success"
	if !event.Success {
		status = "error"
	}
	agentRuns.WithLabelValues(event.Agent, status).Inc()
	agentIterations.WithLabelValues(event.Agent).Add(float64(event.Iterations))

	if t.config.PeriodicLogs {
		t.logger.Printf("agent=%s iterations=%d duration=%s success=%t", event.Agent, event.Iterations, event.Duration, event.Success)
	}
}

// RecordLLMEvent records one language-model call.
func (t *Telemetry) RecordLLMEvent(ctx context.Context, event LLMEvent) {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.LLMRequests++
	t.metrics.InputTokens += event.InputTokens
	t.metrics.OutputTokens += event.OutputTokens
	if t.config.CostTracking {
		t.metrics.TotalCost += event.Cost
	}
	t.mu.Unlock()

	llmTokens.WithLabelValues("input").Add(float64(event.InputTokens))
	llmTokens.WithLabelValues("output").Add(float64(event.OutputTokens))
}

// RecordStageEvent records one pipeline stage outcome.
func (t *Telemetry) RecordStageEvent(ctx context.Context, event StageEvent) {
	if t == nil || !t.config.Enabled {
		return
	}
	t.mu.Lock()
	t.metrics.StageOutcomes[event.Stage+"/"+event.Status]++
	t.mu.Unlock()

	pipelineStages.WithLabelValues(event.Stage, event.Status).Inc()
}

// Snapshot returns a copy of the accumulated metrics.
func (t *Telemetry) Snapshot() Metrics {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Metrics{
		AgentExecutions: make(map[string]int64, len(t.metrics.AgentExecutions)),
		AgentFailures:   make(map[string]int64, len(t.metrics.AgentFailures)),
		LLMRequests:     t.metrics.LLMRequests,
		InputTokens:     t.metrics.InputTokens,
		OutputTokens:    t.metrics.OutputTokens,
		TotalCost:       t.metrics.TotalCost,
		StageOutcomes:   make(map[string]int64, len(t.metrics.StageOutcomes)),
	}
	for k, v := range t.metrics.AgentExecutions {
		out.AgentExecutions[k] = v
	}
	for k, v := range t.metrics.AgentFailures {
		out.AgentFailures[k] = v
	}
	for k, v := range t.metrics.StageOutcomes {
		out.StageOutcomes[k] = v
	}
	return out
}
