package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kaptinlin/jsonrepair"
	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/memory"
	"github.com/pavel/operon/internal/observability"
	"github.com/pavel/operon/internal/tools"
)

// ErrRouting marks failures to turn a task into a delegation list.
var ErrRouting = errors.New("routing failed")

const routingRules = `
Given a user task, decide:
1. Which agent(s) should handle it
2. If multiple agents are needed, break it into sub-tasks

Respond with ONLY a JSON array:
[
  {"agent": "researcher", "task": "specific sub-task for this agent"},
  {"agent": "writer", "task": "specific sub-task using researcher results"}
]

Rules:
- Use the MINIMUM number of agents needed
- If one agent can do it, use one
- For sequential tasks where one result feeds another, list in order
- Be specific in sub-task descriptions`

// OrchestratorResult aggregates a multi-agent run.
type OrchestratorResult struct {
	TaskID       string        `json:"task_id"`
	Task         string        `json:"task"`
	Success      bool          `json:"success"`
	Output       string        `json:"output"`
	AgentResults []AgentResult `json:"agent_results"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

type delegation struct {
	Agent string `json:"agent"`
	Task  string `json:"task"`
}

// Orchestrator routes a task across specialists and threads each
// success into the next sub-task as context.
type Orchestrator struct {
	llm    llm.Completer
	agents map[string]*Specialist
	order  []string
	memory *memory.Manager
	logger *observability.Logger
}

func NewOrchestrator(client llm.Completer, registry *tools.Registry, mem *memory.Manager, logger *observability.Logger, maxSteps, maxRetries int) *Orchestrator {
	o := &Orchestrator{
		llm:    client,
		agents: make(map[string]*Specialist),
		memory: mem,
		logger: logger,
	}
	for _, s := range Specialists(client, registry, logger, maxSteps, maxRetries) {
		o.agents[s.Name()] = s
		o.order = append(o.order, s.Name())
	}
	return o
}

// Run delegates one task. The run succeeds when at least one specialist
// succeeded; a specialist failure is recorded and the remaining
// delegations still run.
func (o *Orchestrator) Run(ctx context.Context, task string) *OrchestratorResult {
	taskID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	start := time.Now()

	res := &OrchestratorResult{TaskID: taskID, Task: task}

	observability.SetStatus(observability.RoleMulti, task)
	defer observability.SetStatus(observability.RoleIdle, "")

	log.Printf("[%s] Orchestrating: %s", taskID, firstLine(task, 100))
	o.logger.LogTaskStart(taskID, task)

	delegations, err := o.route(ctx, task)
	if err != nil {
		res.Error = err.Error()
		res.Duration = time.Since(start)
		o.logger.LogTaskEnd(taskID, false, res.Duration, 0)
		log.Printf("[%s] %s", taskID, res.Error)
		return res
	}

	names := make([]string, len(delegations))
	for i, d := range delegations {
		names[i] = d.Agent
	}
	o.logger.LogRoute(taskID, names)
	log.Printf("[%s] Delegating to: %s", taskID, strings.Join(names, ", "))

	contextText := ""
	for _, d := range delegations {
		if ctx.Err() != nil {
			break
		}

		agentTask := d.Task
		if contextText != "" {
			agentTask = agentTask + "\n\nContext from previous steps:\n" + contextText
		}

		spec, ok := o.agents[d.Agent]
		if !ok {
			res.AgentResults = append(res.AgentResults, AgentResult{
				Agent: d.Agent,
				Task:  agentTask,
				Error: "Unknown agent: " + d.Agent,
			})
			continue
		}

		r := spec.Run(ctx, agentTask)
		res.AgentResults = append(res.AgentResults, r)
		o.logger.LogDelegate(taskID, d.Agent, r.Success, r.Duration)

		if r.Success {
			contextText += fmt.Sprintf("\n[%s] result:\n%s\n", d.Agent, truncate(r.Output, 800))
		} else {
			log.Printf("[%s] Agent %s failed: %s", taskID, d.Agent, firstLine(r.Error, 100))
		}
	}

	res.Output = strings.TrimSpace(contextText)
	for _, r := range res.AgentResults {
		if r.Success {
			res.Success = true
			break
		}
	}
	res.Duration = time.Since(start)

	if o.memory != nil && res.Success {
		err := o.memory.OnTaskEnd(ctx, memory.Outcome{
			Task:      task,
			Result:    res.Output,
			Success:   true,
			Duration:  res.Duration,
			StepCount: len(res.AgentResults),
			ToolsUsed: o.toolsOf(res.AgentResults),
		})
		if err != nil {
			log.Printf("[%s] Memory save failed: %v", taskID, err)
		}
	}

	o.logger.LogTaskEnd(taskID, res.Success, res.Duration, 0)
	log.Printf("[%s] Orchestration done in %s, %d agents", taskID, res.Duration.Round(time.Millisecond), len(res.AgentResults))
	return res
}

var routeArrayRe = regexp.MustCompile(`\[[\s\S]*\]`)

// route asks the model for a delegation list.
func (o *Orchestrator) route(ctx context.Context, task string) ([]delegation, error) {
	resp, err := o.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: task}},
		System:   o.routingSystem(),
		Tier:     llm.TierBalanced,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRouting, err)
	}

	text := llm.StripFences(resp.Text)
	match := routeArrayRe.FindString(text)
	if match == "" {
		return nil, fmt.Errorf("%w: no delegation array in response: %s", ErrRouting, truncate(text, 200))
	}

	var delegations []delegation
	if err := json.Unmarshal([]byte(match), &delegations); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(match)
		if repErr != nil || json.Unmarshal([]byte(repaired), &delegations) != nil {
			return nil, fmt.Errorf("%w: undecodable delegation array: %s", ErrRouting, truncate(match, 200))
		}
	}
	if len(delegations) == 0 {
		return nil, fmt.Errorf("%w: empty delegation list", ErrRouting)
	}
	return delegations, nil
}

func (o *Orchestrator) routingSystem() string {
	var b strings.Builder
	b.WriteString("You are an orchestrator that delegates tasks to specialized agents.\n\nAvailable agents:\n")
	for _, name := range o.order {
		fmt.Fprintf(&b, "- %q: %s\n", name, o.agents[name].Description())
	}
	b.WriteString(routingRules)
	return b.String()
}

// toolsOf unions the declared tool sets of the agents that succeeded.
func (o *Orchestrator) toolsOf(results []AgentResult) []string {
	var union []string
	seen := make(map[string]bool)
	for _, r := range results {
		if !r.Success {
			continue
		}
		spec, ok := o.agents[r.Agent]
		if !ok {
			continue
		}
		for _, t := range spec.Tools() {
			if !seen[t] {
				seen[t] = true
				union = append(union, t)
			}
		}
	}
	return union
}
