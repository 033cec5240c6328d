package agent

import (
	"context"
	"time"

	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/observability"
	"github.com/pavel/operon/internal/tools"
)

// AgentResult is the outcome of one delegated sub-task.
type AgentResult struct {
	Agent    string        `json:"agent"`
	Task     string        `json:"task"`
	Output   string        `json:"output"`
	Success  bool          `json:"success"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Specialist is a named agent that runs the shared task loop over a
// restricted tool subset. Specialists carry no memory of their own; the
// orchestrator persists one condensed record per multi-agent run.
type Specialist struct {
	name        string
	description string
	tools       []string
	directive   string
	loop        *Loop
}

func (s *Specialist) Name() string        { return s.name }
func (s *Specialist) Description() string { return s.description }

func (s *Specialist) Tools() []string {
	out := make([]string, len(s.tools))
	copy(out, s.tools)
	return out
}

func (s *Specialist) Run(ctx context.Context, task string) AgentResult {
	start := time.Now()
	job := task
	if s.directive != "" {
		job = task + "\n\n" + s.directive
	}
	res := s.loop.Run(ctx, job)
	return AgentResult{
		Agent:    s.name,
		Task:     task,
		Output:   res.Output,
		Success:  res.Success,
		Duration: time.Since(start),
		Error:    res.Error,
	}
}

// Specialists builds the default agent set. Tools missing from the
// registry are silently dropped from the subset, so a deployment without
// e.g. the slides tool still gets a working writer.
func Specialists(client llm.Completer, registry *tools.Registry, logger *observability.Logger, maxSteps, maxRetries int) []*Specialist {
	defs := []struct {
		name        string
		description string
		directive   string
		tools       []string
	}{
		{
			name:        "coder",
			description: "Writes, debugs and runs Python code. Use for algorithms, data processing, calculations, scripts.",
			tools:       []string{tools.NameCodeRunner, tools.NameFiles},
		},
		{
			name:        "researcher",
			description: "Searches and analyzes information from the internet. Use for news, facts, current events, market data.",
			tools:       []string{tools.NameWebSearch, tools.NameWebFetch, tools.NameFiles},
		},
		{
			name:        "writer",
			description: "Generates texts, articles, reports, commercial proposals. Saves to files when asked.",
			tools:       []string{tools.NameTextWriter, tools.NameFiles, tools.NameSlides},
		},
		{
			name:        "analyst",
			description: "Analyzes data, builds statistics, creates reports. Use for data analysis, statistics, charts.",
			directive:   "Use pandas/numpy for analysis. Print clear formatted results with statistics.",
			tools:       []string{tools.NameCodeRunner, tools.NameFiles},
		},
	}

	out := make([]*Specialist, 0, len(defs))
	for _, d := range defs {
		out = append(out, &Specialist{
			name:        d.name,
			description: d.description,
			tools:       d.tools,
			directive:   d.directive,
			loop:        NewLoop(client, registry.Subset(d.tools), nil, logger, maxSteps, maxRetries),
		})
	}
	return out
}
