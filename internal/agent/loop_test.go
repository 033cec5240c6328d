package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/memory"
	"github.com/pavel/operon/internal/tools"
)

// fakeTool plays canned results in order (the last one repeats) and
// records a copy of every input it was called with.
type fakeTool struct {
	name     string
	required []string
	results  []tools.Result
	fault    error
	hook     func()
	calls    []map[string]any
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return f.name + " (test double)" }

func (f *fakeTool) InputSchema() map[string]any {
	return map[string]any{"type": "object", "required": f.required}
}

func (f *fakeTool) Execute(_ context.Context, input map[string]any) (tools.Result, error) {
	copied := make(map[string]any, len(input))
	for k, v := range input {
		copied[k] = v
	}
	f.calls = append(f.calls, copied)
	if f.hook != nil {
		f.hook()
	}
	if f.fault != nil {
		return tools.Result{}, f.fault
	}
	if len(f.results) == 0 {
		return tools.Result{Output: "ok"}, nil
	}
	i := len(f.calls) - 1
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	return f.results[i], nil
}

func loopRegistry(t *testing.T, fakes ...*fakeTool) *tools.Registry {
	t.Helper()
	reg := tools.NewRegistry()
	for _, f := range fakes {
		if err := reg.Register(f); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

const twoStepPlan = `[
  {"id": 1, "tool": "code_runner", "description": "compute the value", "input": {"code": "print(300)"}},
  {"id": 2, "tool": "files", "description": "save the result", "input": {"action": "write", "path": "out.txt", "content": "Result: {{step_1_output}}"}, "depends_on": [1]}
]`

func TestLoopRunsPlannedSteps(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"},
		results: []tools.Result{{Output: "300", ExitCode: 0}}}
	files := &fakeTool{name: "files", required: []string{"action"},
		results: []tools.Result{{Output: "Saved to out.txt", ExitCode: 0}}}
	model := &scriptedLLM{replies: []string{
		`{"category": "data", "tools": ["code_runner", "files"]}`,
		twoStepPlan,
	}}

	loop := NewLoop(model, loopRegistry(t, runner, files), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Calculate 15% of 2000 and save the result")

	if !res.Success {
		t.Fatalf("task failed: %s", res.Error)
	}
	if len(res.TaskID) != 8 {
		t.Errorf("task id = %q", res.TaskID)
	}
	if res.Output != "Saved to out.txt" {
		t.Errorf("output = %q", res.Output)
	}
	if len(res.Steps) != 2 || !res.Steps[0].Success || !res.Steps[1].Success {
		t.Fatalf("steps = %+v", res.Steps)
	}
	if model.requests[0].Tier != llm.TierFast {
		t.Errorf("classifier tier = %q", model.requests[0].Tier)
	}
	if len(files.calls) != 1 || files.calls[0]["content"] != "Result: 300" {
		t.Errorf("placeholder not resolved: %+v", files.calls)
	}
	if res.TotalTokens != 30 {
		t.Errorf("total tokens = %d, want 30", res.TotalTokens)
	}
	if res.QualityScore < 0.79 || res.QualityScore > 0.81 {
		t.Errorf("quality = %v", res.QualityScore)
	}
	if res.Duration <= 0 {
		t.Error("duration not recorded")
	}
}

func TestLoopWritingFastPathSkipsPlanner(t *testing.T) {
	writer := &fakeTool{name: "text_writer", required: []string{"prompt", "filename"},
		results: []tools.Result{{Output: "Autumn settles in slowly...", ExitCode: 0}}}
	model := &scriptedLLM{}

	loop := NewLoop(model, loopRegistry(t, writer), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Write a short essay about autumn")

	if !res.Success {
		t.Fatalf("task failed: %s", res.Error)
	}
	if len(model.requests) != 0 {
		t.Fatalf("writing fast path must not call the model, got %d calls", len(model.requests))
	}
	if len(res.Steps) != 1 || res.Steps[0].Tool != "text_writer" {
		t.Fatalf("steps = %+v", res.Steps)
	}
	call := writer.calls[0]
	if call["prompt"] != "Write a short essay about autumn" {
		t.Errorf("prompt = %v", call["prompt"])
	}
	filename, _ := call["filename"].(string)
	if !strings.HasPrefix(filename, "draft_") || !strings.HasSuffix(filename, ".md") {
		t.Errorf("filename = %q", filename)
	}
	if !strings.Contains(filename, res.TaskID) {
		t.Errorf("filename %q should carry task id %q", filename, res.TaskID)
	}
}

func TestLoopSearchCueDisablesFastPath(t *testing.T) {
	writer := &fakeTool{name: "text_writer", required: []string{"prompt", "filename"}}
	search := &fakeTool{name: "web_search", required: []string{"query"},
		results: []tools.Result{{Output: "three results", ExitCode: 0}}}
	model := &scriptedLLM{replies: []string{
		`{"category": "research", "tools": ["web_search"]}`,
		`[{"id": 1, "tool": "web_search", "description": "find news", "input": {"query": "AI news"}}]`,
	}}

	loop := NewLoop(model, loopRegistry(t, writer, search), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Write a summary of the latest AI news")

	if !res.Success {
		t.Fatalf("task failed: %s", res.Error)
	}
	if len(model.requests) == 0 {
		t.Fatal("search cue must force real planning")
	}
	if len(writer.calls) != 0 {
		t.Error("text_writer should not have been shortcut")
	}
}

func TestLoopFailsFastOnStepFailure(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"},
		results: []tools.Result{{Error: "boom", ExitCode: 1}}}
	files := &fakeTool{name: "files", required: []string{"action"}}
	model := &scriptedLLM{replies: []string{
		`{"category": "code", "tools": ["code_runner"]}`,
		twoStepPlan,
	}}

	loop := NewLoop(model, loopRegistry(t, runner, files), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Compute and store a value")

	if res.Success {
		t.Fatal("task should fail when a step fails")
	}
	if res.Error != "Step 1 failed: Step exited with code 1" {
		t.Errorf("error = %q", res.Error)
	}
	if len(res.Steps) != 1 {
		t.Fatalf("expected fail-fast after step 1, got %d records", len(res.Steps))
	}
	if res.Steps[0].Attempts != 3 {
		t.Errorf("attempts = %d, want full retry budget", res.Steps[0].Attempts)
	}
	if len(runner.calls) != 3 {
		t.Errorf("runner called %d times", len(runner.calls))
	}
	if len(files.calls) != 0 {
		t.Error("later steps must not run after a failure")
	}
	if res.QualityScore != 0 {
		t.Errorf("quality = %v", res.QualityScore)
	}
}

func TestLoopRetryHintStacking(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"}, results: []tools.Result{
		{Error: "boom", ExitCode: 1},
		{Error: "boom", ExitCode: 1},
		{Output: "fixed", ExitCode: 0},
	}}
	model := &scriptedLLM{replies: []string{
		`{"category": "code", "tools": ["code_runner"]}`,
		`[{"id": 1, "tool": "code_runner", "description": "compute", "input": {"code": "print(x)"}}]`,
	}}

	loop := NewLoop(model, loopRegistry(t, runner), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Compute the value of x")

	if !res.Success {
		t.Fatalf("task failed: %s", res.Error)
	}
	if res.Steps[0].Attempts != 3 {
		t.Errorf("attempts = %d", res.Steps[0].Attempts)
	}

	first, _ := runner.calls[0]["code"].(string)
	second, _ := runner.calls[1]["code"].(string)
	third, _ := runner.calls[2]["code"].(string)

	if first != "print(x)" {
		t.Errorf("first attempt code = %q", first)
	}
	hint := "# Previous attempt failed: Fix this error: boom\n"
	if second != hint+"print(x)" {
		t.Errorf("second attempt code = %q", second)
	}
	if third != hint+hint+"print(x)" {
		t.Errorf("hints must stack on the working copy, got %q", third)
	}
}

func TestLoopSafetyBlocksDeniedCode(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"}}
	model := &scriptedLLM{replies: []string{
		`{"category": "code", "tools": ["code_runner"]}`,
		`[{"id": 1, "tool": "code_runner", "description": "clean up", "input": {"code": "import os\nos.system('rm -rf /tmp/x')"}}]`,
	}}

	loop := NewLoop(model, loopRegistry(t, runner), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Clean up the temp directory")

	if res.Success {
		t.Fatal("blocked step must fail the task")
	}
	if len(runner.calls) != 0 {
		t.Fatal("blocked code must never reach the sandbox")
	}
	if len(res.Steps) != 1 {
		t.Fatalf("steps = %+v", res.Steps)
	}
	rec := res.Steps[0]
	if rec.Attempts != 0 {
		t.Errorf("blocked step attempts = %d, want 0", rec.Attempts)
	}
	if !strings.HasPrefix(rec.Error, "Safety block: Blocked pattern detected") {
		t.Errorf("error = %q", rec.Error)
	}
}

func TestLoopBlocksPrivateURL(t *testing.T) {
	fetch := &fakeTool{name: "web_fetch", required: []string{"url"}}
	model := &scriptedLLM{replies: []string{
		`{"category": "research", "tools": ["web_fetch"]}`,
		`[{"id": 1, "tool": "web_fetch", "description": "read metadata service", "input": {"url": "http://169.254.169.254/latest"}}]`,
	}}

	loop := NewLoop(model, loopRegistry(t, fetch), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Fetch instance metadata")

	if res.Success {
		t.Fatal("internal address must be blocked")
	}
	if len(fetch.calls) != 0 {
		t.Fatal("blocked URL must never be fetched")
	}
	if !strings.Contains(res.Steps[0].Error, "Internal network access not allowed") {
		t.Errorf("error = %q", res.Steps[0].Error)
	}
}

func TestLoopInvalidPlanTriggersReplan(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"},
		results: []tools.Result{{Output: "42", ExitCode: 0}}}
	model := &scriptedLLM{replies: []string{
		`{"category": "code", "tools": ["code_runner"]}`,
		`[{"id": 1, "tool": "teleporter", "description": "warp", "input": {}}]`,
		`[{"id": 1, "tool": "code_runner", "description": "compute", "input": {"code": "print(42)"}}]`,
	}}

	loop := NewLoop(model, loopRegistry(t, runner), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Compute the answer")

	if !res.Success {
		t.Fatalf("task failed: %s", res.Error)
	}
	if len(model.requests) != 3 {
		t.Errorf("expected classifier + bad plan + replan, got %d calls", len(model.requests))
	}
	if len(runner.calls) != 1 {
		t.Errorf("runner calls = %d", len(runner.calls))
	}
}

func TestLoopPlanningFailureCarriesError(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"}}
	model := &scriptedLLM{replies: []string{"not json"}}

	loop := NewLoop(model, loopRegistry(t, runner), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Do something inscrutable")

	if res.Success {
		t.Fatal("unplannable task must fail")
	}
	if !strings.HasPrefix(res.Error, "Planning failed:") {
		t.Errorf("error = %q", res.Error)
	}
	if len(res.Steps) != 0 {
		t.Errorf("no steps should run, got %d", len(res.Steps))
	}
	if len(runner.calls) != 0 {
		t.Error("no tool should run without a plan")
	}
}

func TestLoopEvaluatorCrashTrustsExitStatus(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"},
		results: []tools.Result{{Output: "", ExitCode: 0}}}
	model := &scriptedLLM{
		replies: []string{
			`{"category": "code", "tools": ["code_runner"]}`,
			`[{"id": 1, "tool": "code_runner", "description": "run quietly", "input": {"code": "pass"}}]`,
		},
		exhaustedErr: errors.New("rate limited"),
	}

	loop := NewLoop(model, loopRegistry(t, runner), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Run the maintenance script")

	if !res.Success {
		t.Fatalf("exit 0 should be trusted when the evaluator is down: %s", res.Error)
	}
	if len(runner.calls) != 1 {
		t.Errorf("runner calls = %d", len(runner.calls))
	}
	if res.Steps[0].QualityScore != 0 {
		t.Errorf("unjudged step should carry no quality score, got %v", res.Steps[0].QualityScore)
	}
}

func TestLoopToolFaultFailsStep(t *testing.T) {
	runner := &fakeTool{name: "code_runner", required: []string{"code"},
		fault: errors.New("sandbox vanished")}
	model := &scriptedLLM{replies: []string{
		`{"category": "code", "tools": ["code_runner"]}`,
		`[{"id": 1, "tool": "code_runner", "description": "compute", "input": {"code": "print(1)"}}]`,
	}}

	loop := NewLoop(model, loopRegistry(t, runner), nil, nil, 5, 3)
	res := loop.Run(context.Background(), "Compute a value")

	if res.Success {
		t.Fatal("tool fault must fail the task")
	}
	if len(runner.calls) != 1 {
		t.Errorf("a fault must not be retried, got %d calls", len(runner.calls))
	}
	if !strings.Contains(res.Error, "Tool fault: sandbox vanished") {
		t.Errorf("error = %q", res.Error)
	}
}

func TestLoopStopsBetweenStepsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeTool{name: "code_runner", required: []string{"code"},
		results: []tools.Result{{Output: "300", ExitCode: 0}}, hook: cancel}
	files := &fakeTool{name: "files", required: []string{"action"}}
	model := &scriptedLLM{replies: []string{
		`{"category": "data", "tools": ["code_runner", "files"]}`,
		twoStepPlan,
	}}

	loop := NewLoop(model, loopRegistry(t, runner, files), nil, nil, 5, 3)
	res := loop.Run(ctx, "Compute and save")

	if res.Success {
		t.Fatal("cancelled task must not report success")
	}
	if !strings.HasPrefix(res.Error, "Task cancelled:") {
		t.Errorf("error = %q", res.Error)
	}
	if len(res.Steps) != 1 {
		t.Errorf("steps = %d, want 1 before cancellation took effect", len(res.Steps))
	}
	if len(files.calls) != 0 {
		t.Error("no step may start after cancellation")
	}
}

func TestLoopMemoryRecallFeedsPlanner(t *testing.T) {
	dir := t.TempDir()
	embed := func(_ context.Context, _ string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}
	mgr, err := memory.NewManager(filepath.Join(dir, "vectors"), filepath.Join(dir, "outcomes.db"), embed)
	if err != nil {
		t.Fatal(err)
	}
	defer mgr.Close()

	runner := &fakeTool{name: "code_runner", required: []string{"code"},
		results: []tools.Result{{Output: "42", ExitCode: 0}}}
	model := &scriptedLLM{replies: []string{
		`{"category": "code", "tools": ["code_runner"]}`,
		`[{"id": 1, "tool": "code_runner", "description": "compute", "input": {"code": "print(42)"}}]`,
		`{"category": "code", "tools": ["code_runner"]}`,
		`[{"id": 1, "tool": "code_runner", "description": "compute", "input": {"code": "print(42)"}}]`,
	}}

	loop := NewLoop(model, loopRegistry(t, runner), mgr, nil, 5, 3)

	first := loop.Run(context.Background(), "Compute the answer to everything")
	if !first.Success {
		t.Fatalf("first run failed: %s", first.Error)
	}
	if first.MemoryHits != 0 {
		t.Errorf("first run hits = %d", first.MemoryHits)
	}

	second := loop.Run(context.Background(), "Compute the answer again")
	if !second.Success {
		t.Fatalf("second run failed: %s", second.Error)
	}
	if second.MemoryHits != 1 {
		t.Errorf("second run hits = %d", second.MemoryHits)
	}

	planPrompt := model.requests[3].Messages[0].Content
	if !strings.Contains(planPrompt, "Context from similar past tasks:") {
		t.Errorf("recalled context missing from plan prompt: %q", planPrompt)
	}
	if !strings.Contains(planPrompt, "- Task: Compute the answer to everything") {
		t.Errorf("recalled task missing from plan prompt: %q", planPrompt)
	}
}
