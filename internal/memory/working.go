package memory

import "fmt"

// StepResult is one settled step kept in working memory for the duration
// of a task.
type StepResult struct {
	StepID  int
	Tool    string
	Output  string
	Success bool
}

// Working is the per-task short-term memory: settled step results in
// order. Owned by exactly one task loop invocation, never shared.
type Working struct {
	Task    string
	results []StepResult
}

func NewWorking(task string) *Working {
	return &Working{Task: task}
}

func (w *Working) AddStepResult(stepID int, tool, output string, success bool) {
	w.results = append(w.results, StepResult{
		StepID:  stepID,
		Tool:    tool,
		Output:  output,
		Success: success,
	})
}

// Outputs maps successful step IDs to their full outputs, for placeholder
// resolution in later steps.
func (w *Working) Outputs() map[int]string {
	out := make(map[int]string)
	for _, r := range w.results {
		if r.Success {
			out[r.StepID] = r.Output
		}
	}
	return out
}

// ContextSummary renders the settled steps, truncated, for prompts and
// failure records.
func (w *Working) ContextSummary() string {
	if len(w.results) == 0 {
		return ""
	}
	out := "Previous steps results:\n"
	for _, r := range w.results {
		status := "OK"
		if !r.Success {
			status = "FAIL"
		}
		detail := truncate(r.Output, 200)
		if !r.Success && r.Output == "" {
			detail = "(no output)"
		}
		out += fmt.Sprintf("  Step %d [%s] %s: %s\n", r.StepID, r.Tool, status, detail)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
