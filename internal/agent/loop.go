package agent

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/memory"
	"github.com/pavel/operon/internal/observability"
	"github.com/pavel/operon/internal/plan"
	"github.com/pavel/operon/internal/planner"
	"github.com/pavel/operon/internal/safety"
	"github.com/pavel/operon/internal/tools"
)

const (
	defaultMaxSteps   = 5
	defaultMaxRetries = 3
)

// StepRecord is the settled outcome of one plan step.
type StepRecord struct {
	StepID       int           `json:"step_id"`
	Tool         string        `json:"tool"`
	Description  string        `json:"description"`
	Output       string        `json:"output"`
	Error        string        `json:"error,omitempty"`
	Success      bool          `json:"success"`
	Duration     time.Duration `json:"duration"`
	Attempts     int           `json:"attempts"`
	QualityScore float64       `json:"quality_score"`
}

// TaskResult is the full outcome of one task run.
type TaskResult struct {
	TaskID       string        `json:"task_id"`
	Task         string        `json:"task"`
	Success      bool          `json:"success"`
	Output       string        `json:"output"`
	Steps        []StepRecord  `json:"steps"`
	TotalTokens  int           `json:"total_tokens"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
	MemoryHits   int           `json:"memory_hits"`
	QualityScore float64       `json:"quality_score"`
}

// Plain writing requests go straight to the text writer; a planner round
// trip adds nothing there. A search cue overrides the shortcut because
// the writer works from the model's own knowledge only.
var writingCues = []string{
	"write", "draft", "compose", "article", "letter", "essay", "post",
	"напиши", "написать", "статью", "текст", "письмо",
}

var searchCues = []string{
	"search", "find", "look up", "news", "latest", "current",
	"найди", "поиск", "новост", "актуальн",
}

// Loop drives one task end to end: recall, plan, execute with retries,
// evaluate, persist.
type Loop struct {
	registry   *tools.Registry
	planner    *planner.Planner
	evaluator  *Evaluator
	gate       *safety.Gate
	memory     *memory.Manager
	logger     *observability.Logger
	maxSteps   int
	maxRetries int
}

func NewLoop(client llm.Completer, registry *tools.Registry, mem *memory.Manager, logger *observability.Logger, maxSteps, maxRetries int) *Loop {
	if maxSteps <= 0 {
		maxSteps = defaultMaxSteps
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Loop{
		registry:   registry,
		planner:    planner.New(client, registry, maxSteps),
		evaluator:  NewEvaluator(client),
		gate:       safety.NewGate(),
		memory:     mem,
		logger:     logger,
		maxSteps:   maxSteps,
		maxRetries: maxRetries,
	}
}

// Run executes one task to completion. The result always comes back;
// failures are carried inside it, never as a Go error.
func (l *Loop) Run(ctx context.Context, task string) *TaskResult {
	taskID := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	start := time.Now()
	ctx, usage := llm.WithUsage(ctx)

	res := &TaskResult{TaskID: taskID, Task: task}
	working := memory.NewWorking(task)

	observability.SetStatus(observability.RoleTask, task)
	defer observability.SetStatus(observability.RoleIdle, "")

	log.Printf("[%s] Task: %s", taskID, firstLine(task, 100))
	l.logger.LogTaskStart(taskID, task)

	memoryContext := ""
	if l.memory != nil {
		hits, err := l.memory.OnTaskStart(ctx, task)
		if err != nil {
			log.Printf("[%s] Memory recall unavailable: %v", taskID, err)
		} else if len(hits) > 0 {
			res.MemoryHits = len(hits)
			memoryContext = memory.FormatHits(hits)
			l.logger.LogMemory(taskID, len(hits))
			log.Printf("[%s] Recalled %d similar tasks", taskID, len(hits))
		}
	}

	steps := l.writingFastPath(taskID, task)
	if steps == nil {
		var err error
		steps, err = l.planAndValidate(ctx, taskID, task, memoryContext)
		if err != nil {
			res.Error = fmt.Sprintf("Planning failed: %v", err)
			return l.finish(ctx, res, working, start, usage, nil)
		}
	} else {
		log.Printf("[%s] Direct writing task, planner skipped", taskID)
	}

	l.logger.LogPlan(taskID, len(steps), steps.Tools())
	log.Printf("[%s] Plan: %d steps using %s", taskID, len(steps), strings.Join(steps.Tools(), ", "))

	var toolsUsed []string
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			res.Error = fmt.Sprintf("Task cancelled: %v", err)
			return l.finish(ctx, res, working, start, usage, toolsUsed)
		}

		rec := l.executeStep(ctx, taskID, task, step, working.Outputs())
		res.Steps = append(res.Steps, rec)
		working.AddStepResult(rec.StepID, rec.Tool, rec.Output, rec.Success)

		if !rec.Success {
			res.Error = fmt.Sprintf("Step %d failed: %s", step.ID, rec.Error)
			return l.finish(ctx, res, working, start, usage, toolsUsed)
		}

		res.Output = rec.Output
		if !slices.Contains(toolsUsed, rec.Tool) {
			toolsUsed = append(toolsUsed, rec.Tool)
		}
	}

	res.Success = true
	return l.finish(ctx, res, working, start, usage, toolsUsed)
}

// writingFastPath returns a single text_writer step for plain writing
// requests, nil for everything else.
func (l *Loop) writingFastPath(taskID, task string) plan.Plan {
	lower := strings.ToLower(task)
	if !matchesAny(lower, writingCues) || matchesAny(lower, searchCues) {
		return nil
	}
	if !l.registry.Has(tools.NameTextWriter) {
		return nil
	}
	return plan.Plan{{
		ID:          1,
		Tool:        tools.NameTextWriter,
		Description: "Write the requested text",
		Input: map[string]any{
			"prompt":   task,
			"filename": fmt.Sprintf("draft_%s.md", taskID),
		},
	}}
}

// planAndValidate runs the planner and checks the plan against the
// registry. One invalid plan earns one full re-plan; a second invalid
// plan fails the task.
func (l *Loop) planAndValidate(ctx context.Context, taskID, task, memoryContext string) (plan.Plan, error) {
	steps, err := l.planner.Plan(ctx, task, memoryContext)
	if err != nil {
		return nil, err
	}
	if verr := plan.Validate(steps, l.registry, l.maxSteps); verr != nil {
		log.Printf("[%s] Plan rejected: %v", taskID, verr)
		steps, err = l.planner.Replan(ctx, task, memoryContext, nil)
		if err != nil {
			return nil, err
		}
		if verr := plan.Validate(steps, l.registry, l.maxSteps); verr != nil {
			return nil, verr
		}
	}
	return steps, nil
}

// executeStep runs one step through the gate, the tool and the evaluator,
// retrying failed attempts up to the retry budget.
func (l *Loop) executeStep(ctx context.Context, taskID, task string, step plan.Step, outputs map[int]string) StepRecord {
	rec := StepRecord{StepID: step.ID, Tool: step.Tool, Description: step.Description}

	log.Printf("[%s] Step %d [%s]: %s", taskID, step.ID, step.Tool, firstLine(step.Description, 80))

	resolved := step.Resolve(outputs)
	input := resolved.Input

	switch step.Tool {
	case tools.NameCodeRunner:
		code, _ := input["code"].(string)
		verdict := l.gate.CheckCode(code)
		l.logger.LogPolicyCheck(taskID, step.ID, verdict.Allowed, verdict.Reason)
		if !verdict.Allowed {
			rec.Error = "Safety block: " + verdict.Reason
			return rec
		}
		if verdict.RequiresConfirmation {
			log.Printf("[%s] Step %d caution: %s", taskID, step.ID, verdict.Reason)
		}
	case tools.NameWebFetch, tools.NameBrowser:
		if rawURL, ok := input["url"].(string); ok && rawURL != "" {
			if verdict := l.gate.CheckTargets([]string{hostOf(rawURL)}); !verdict.Allowed {
				l.logger.LogPolicyCheck(taskID, step.ID, false, verdict.Reason)
				rec.Error = "Safety block: " + verdict.Reason
				return rec
			}
		}
	}

	tool, err := l.registry.Get(step.Tool)
	if err != nil {
		rec.Error = err.Error()
		return rec
	}

	var result tools.Result
	var eval EvalResult
	var duration time.Duration

	for attempt := 1; attempt <= l.maxRetries; attempt++ {
		rec.Attempts = attempt
		if attempt > 1 {
			log.Printf("[%s] Step %d retry %d/%d", taskID, step.ID, attempt, l.maxRetries)
		}

		attemptStart := time.Now()
		result, err = tool.Execute(ctx, input)
		duration = time.Since(attemptStart)

		if err != nil {
			// The invocation itself broke; retrying the same call
			// will not fix the harness.
			rec.Error = fmt.Sprintf("Tool fault: %v", err)
			rec.Duration = duration
			l.logger.LogStep(taskID, step.ID, step.Tool, false, attempt, duration, rec.Error)
			return rec
		}

		eval, err = l.evaluator.Evaluate(ctx, task, step.Description, result)
		if err != nil {
			log.Printf("[%s] Evaluator unavailable, using exit status: %v", taskID, err)
			eval = EvalResult{Success: result.ExitCode == 0, Reason: "Evaluator unavailable, using exit status"}
		}

		l.logger.LogStep(taskID, step.ID, step.Tool, eval.Success, attempt, duration, result.Error)

		if eval.Success {
			rec.Output = result.Output
			rec.Success = true
			rec.Duration = duration
			rec.QualityScore = eval.QualityScore
			return rec
		}

		log.Printf("[%s] Step %d attempt %d failed: %s", taskID, step.ID, attempt, eval.Reason)

		if eval.RetryHint != "" && step.Tool == tools.NameCodeRunner {
			if code, ok := input["code"].(string); ok {
				input["code"] = "# Previous attempt failed: " + eval.RetryHint + "\n" + code
			}
		}
	}

	rec.Output = result.Output
	rec.Error = eval.Reason
	if rec.Error == "" {
		rec.Error = "Max retries exceeded"
	}
	rec.Duration = duration
	return rec
}

// finish seals the result and persists it. Runs that never executed a
// step (planning failures, pre-step cancellation) leave no memory trace.
func (l *Loop) finish(ctx context.Context, res *TaskResult, working *memory.Working, start time.Time, usage *llm.Usage, toolsUsed []string) *TaskResult {
	res.Duration = time.Since(start)
	res.TotalTokens = usage.Total()
	res.QualityScore = aggregateQuality(res.Steps)

	if l.memory != nil && len(res.Steps) > 0 {
		result := res.Output
		if !res.Success {
			result = working.ContextSummary()
		}
		err := l.memory.OnTaskEnd(ctx, memory.Outcome{
			Task:         res.Task,
			Result:       result,
			Success:      res.Success,
			Duration:     res.Duration,
			StepCount:    len(res.Steps),
			ToolsUsed:    toolsUsed,
			QualityScore: res.QualityScore,
		})
		if err != nil {
			log.Printf("[%s] Memory save failed: %v", res.TaskID, err)
		}
	}

	l.logger.LogTaskEnd(res.TaskID, res.Success, res.Duration, res.TotalTokens)
	if res.Success {
		log.Printf("[%s] Task done in %s (%d tokens)", res.TaskID, res.Duration.Round(time.Millisecond), res.TotalTokens)
	} else {
		log.Printf("[%s] Task failed: %s", res.TaskID, res.Error)
	}
	return res
}

func aggregateQuality(steps []StepRecord) float64 {
	var sum float64
	n := 0
	for _, s := range steps {
		if s.Success {
			sum += s.QualityScore
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func matchesAny(s string, cues []string) bool {
	for _, cue := range cues {
		if strings.Contains(s, cue) {
			return true
		}
	}
	return false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return rawURL
	}
	return u.Hostname()
}

func firstLine(s string, n int) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return truncate(s, n)
}
