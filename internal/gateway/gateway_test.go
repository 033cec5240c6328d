package gateway

import (
	"strings"
	"testing"
	"time"

	"github.com/pavel/operon/internal/agent"
)

func TestRenderTaskSuccess(t *testing.T) {
	res := &agent.TaskResult{
		Success:  true,
		Output:   strings.Repeat("й", 50),
		Steps:    []agent.StepRecord{{StepID: 1}, {StepID: 2}},
		Duration: 3500 * time.Millisecond,
	}

	got := renderTask(res, 10)
	if !strings.HasPrefix(got, "Готово\nШагов: 2 | Время: 3.5s") {
		t.Errorf("header = %q", got)
	}
	if strings.Count(got, "й") != 10 {
		t.Errorf("output not clipped to 10 runes: %q", got)
	}
}

func TestRenderTaskFailure(t *testing.T) {
	res := &agent.TaskResult{Success: false, Error: "Step 1 failed: boom"}

	got := renderTask(res, 100)
	if !strings.HasPrefix(got, "Не удалось выполнить\n") || !strings.Contains(got, "Step 1 failed: boom") {
		t.Errorf("got %q", got)
	}
}

func TestRenderOrchestrationNamesSuccessfulAgents(t *testing.T) {
	res := &agent.OrchestratorResult{
		Success: true,
		Output:  "combined",
		AgentResults: []agent.AgentResult{
			{Agent: "coder", Success: true},
			{Agent: "writer", Success: false},
			{Agent: "analyst", Success: true},
		},
		Duration: 2 * time.Second,
	}

	got := renderOrchestration(res, 100)
	if !strings.Contains(got, "Агенты: coder, analyst") {
		t.Errorf("agent list wrong: %q", got)
	}
}

func TestRenderOrchestrationFailureWithoutError(t *testing.T) {
	got := renderOrchestration(&agent.OrchestratorResult{Success: false}, 100)
	if !strings.Contains(got, "все агенты завершились с ошибкой") {
		t.Errorf("got %q", got)
	}
}

func TestRenderStatsWithoutMemory(t *testing.T) {
	if got := renderStats(nil); !strings.Contains(got, "Memory is disabled") {
		t.Errorf("got %q", got)
	}
}

func TestClipKeepsShortStrings(t *testing.T) {
	if got := clip("короткий", 100); got != "короткий" {
		t.Errorf("got %q", got)
	}
}
