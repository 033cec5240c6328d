package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/tools"
)

// EvalResult is the evaluator's decision on one step attempt. The
// executor applies it; the evaluator itself never touches step records.
type EvalResult struct {
	Success      bool    `json:"success"`
	Reason       string  `json:"reason"`
	RetryHint    string  `json:"retry_hint"`
	QualityScore float64 `json:"quality_score"`
}

const evaluatorSystem = `You judge whether a step of an automated task succeeded.

You receive the task, the step description, the exit code and the captured output. Judge only this step, not the whole task.

Respond with ONLY a JSON object:
{"success": true, "reason": "short explanation", "retry_hint": "", "quality_score": 0.9}

Rules:
- success: did the step produce what its description promises?
- retry_hint: when success is false, one concrete instruction for the next attempt; otherwise empty.
- quality_score: 0.0 to 1.0, how useful and complete the output is.`

// Evaluator judges a step result: deterministic rules first, a judged
// model call only when the fast path cannot decide.
type Evaluator struct {
	llm llm.Completer
}

func NewEvaluator(completer llm.Completer) *Evaluator {
	return &Evaluator{llm: completer}
}

// Evaluate classifies one attempt. The fast path is deterministic: the
// hard-failure sentinel (exit -1) and non-zero exits with error text fail
// immediately; a clean exit with output succeeds immediately. Everything
// else goes to the judged path on the fast tier.
func (e *Evaluator) Evaluate(ctx context.Context, task, stepDescription string, result tools.Result) (EvalResult, error) {
	if result.ExitCode == -1 {
		return EvalResult{
			Success:   false,
			Reason:    result.Error,
			RetryHint: "Fix the code to avoid timeout or system errors.",
		}, nil
	}

	if result.ExitCode != 0 && result.Error != "" {
		return EvalResult{
			Success:      false,
			Reason:       fmt.Sprintf("Step exited with code %d", result.ExitCode),
			RetryHint:    "Fix this error: " + truncate(result.Error, 300),
			QualityScore: 0.1,
		}, nil
	}

	if result.ExitCode == 0 && result.Error == "" && strings.TrimSpace(result.Output) != "" {
		return EvalResult{
			Success:      true,
			Reason:       "Completed with output",
			QualityScore: 0.8,
		}, nil
	}

	return e.judge(ctx, task, stepDescription, result)
}

func (e *Evaluator) judge(ctx context.Context, task, stepDescription string, result tools.Result) (EvalResult, error) {
	output := result.Output
	if output == "" {
		output = "(empty)"
	}
	errText := result.Error
	if errText == "" {
		errText = "(none)"
	}
	prompt := fmt.Sprintf(
		"Task: %s\nStep: %s\nExit code: %d\nOutput: %s\nStderr: %s",
		task, stepDescription, result.ExitCode,
		truncate(output, 800), truncate(errText, 300),
	)

	resp, err := e.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: prompt}},
		System:   evaluatorSystem,
		Tier:     llm.TierFast,
	})
	if err != nil {
		return EvalResult{}, err
	}
	return parseEval(resp.Text), nil
}

var objectRe = regexp.MustCompile(`\{[\s\S]*\}`)

// parseEval decodes the judged response, clamping the quality score to
// [0,1]. An undecodable response falls back to a lexical scan for an
// affirmative success marker.
func parseEval(text string) EvalResult {
	if match := objectRe.FindString(text); match != "" {
		var out EvalResult
		err := json.Unmarshal([]byte(match), &out)
		if err != nil {
			if repaired, repErr := jsonrepair.JSONRepair(match); repErr == nil {
				err = json.Unmarshal([]byte(repaired), &out)
			}
		}
		if err == nil {
			out.QualityScore = clampScore(out.QualityScore)
			return out
		}
	}

	lower := strings.ToLower(text)
	success := strings.Contains(lower, `"success": true`) || strings.Contains(lower, "success: true")
	res := EvalResult{
		Success:      success,
		Reason:       truncate(text, 200),
		QualityScore: 0.2,
	}
	if success {
		res.QualityScore = 0.8
	} else {
		res.RetryHint = "Review the output and fix the code."
	}
	return res
}

func clampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
