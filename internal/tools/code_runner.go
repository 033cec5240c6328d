package tools

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/pavel/operon/internal/llm"
)

const NameCodeRunner = "code_runner"

const codegenSystem = "Write ONLY executable Python code. " +
	"No markdown, no backticks, no explanation. " +
	"Raw Python only. " +
	"CRITICAL: Every computation result MUST be printed with print(). " +
	"Keep it simple and short."

// CodeRunnerTool executes Python in a scratch directory with a hard
// wall-clock timeout. Timeouts and sandbox failures surface as exit -1,
// which the evaluator treats as a hard failure.
type CodeRunnerTool struct {
	LLM       llm.Completer
	PythonBin string
	Timeout   time.Duration
}

func NewCodeRunnerTool(completer llm.Completer, pythonBin string, timeout time.Duration) *CodeRunnerTool {
	if pythonBin == "" {
		pythonBin = "python3"
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &CodeRunnerTool{LLM: completer, PythonBin: pythonBin, Timeout: timeout}
}

func (c *CodeRunnerTool) Name() string {
	return NameCodeRunner
}

func (c *CodeRunnerTool) Description() string {
	return "Execute Python code in an isolated scratch directory. " +
		"Use for calculations, data processing, scripting. " +
		"Output via print(). No network access assumed."
}

func (c *CodeRunnerTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "Python code to execute",
			},
			"domains": map[string]any{
				"type":        "array",
				"description": "Outbound network hosts the code intends to reach",
			},
			"task_description": map[string]any{
				"type":        "string",
				"description": "What the code is supposed to accomplish",
			},
		},
		"required": []string{"code"},
	}
}

func (c *CodeRunnerTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	code, _ := input["code"].(string)
	taskDescription, _ := input["task_description"].(string)

	if isStub(code) && c.LLM != nil {
		description := taskDescription
		if description == "" {
			description = strings.TrimSpace(strings.TrimLeft(code, "#"))
		}
		generated, err := c.generate(ctx, description)
		if err == nil && generated != "" {
			code = generated
		}
	}

	code = ensurePrint(code)

	result := c.run(ctx, code)

	// Silent success usually means the model forgot to print. Regenerate
	// once with an explicit print requirement and rerun.
	if result.Output == "" && result.ExitCode == 0 && c.LLM != nil {
		description := taskDescription
		if description == "" {
			description = "Execute and print results: " + truncate(code, 200)
		}
		generated, err := c.generate(ctx, description+"\n\nIMPORTANT: Use print() for ALL output.")
		if err == nil && generated != "" {
			result = c.run(ctx, ensurePrint(generated))
		}
	}

	return result, nil
}

func (c *CodeRunnerTool) generate(ctx context.Context, description string) (string, error) {
	prompt := "Write Python code to: " + description +
		"\n\nRules:" +
		"\n- MUST use print() for ALL output; no output = failure" +
		"\n- Use only the standard library + numpy + pandas" +
		"\n- Keep code simple, under 80 lines"

	resp, err := c.LLM.Complete(ctx, llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		System:    codegenSystem,
		Tier:      llm.TierBalanced,
		MaxTokens: 3000,
	})
	if err != nil {
		return "", err
	}
	return llm.StripFences(resp.Text), nil
}

func (c *CodeRunnerTool) run(ctx context.Context, code string) Result {
	dir, err := os.MkdirTemp("", "operon_sandbox_")
	if err != nil {
		return Result{Error: fmt.Sprintf("sandbox setup failed: %v", err), ExitCode: -1}
	}
	defer os.RemoveAll(dir)

	path := filepath.Join(dir, "code.py")
	if err := os.WriteFile(path, []byte(code), 0644); err != nil {
		return Result{Error: fmt.Sprintf("sandbox setup failed: %v", err), ExitCode: -1}
	}

	runCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.PythonBin, path)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	out := strings.TrimSpace(stdout.String())
	errText := strings.TrimSpace(stderr.String())

	if runCtx.Err() != nil {
		return Result{
			Output:   out,
			Error:    fmt.Sprintf("timeout (%s)", c.Timeout),
			ExitCode: -1,
		}
	}

	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return Result{Output: out, Error: errText, ExitCode: exitErr.ExitCode()}
		}
		return Result{Output: out, Error: fmt.Sprintf("sandbox failure: %v", err), ExitCode: -1}
	}

	return Result{Output: out, Error: errText, ExitCode: 0}
}

// isStub reports whether code is just a placeholder comment the planner
// emitted instead of a real implementation.
func isStub(code string) bool {
	trimmed := strings.TrimSpace(code)
	return len(trimmed) < 120 && strings.HasPrefix(trimmed, "#")
}

func ensurePrint(code string) string {
	if strings.Contains(code, "print(") {
		return code
	}
	return code + "\nprint(\"Done.\")"
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
