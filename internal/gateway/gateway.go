package gateway

import (
	"fmt"
	"strings"

	"github.com/pavel/operon/internal/agent"
	"github.com/pavel/operon/internal/memory"
)

// Messenger defines the interface for communication gateways (Telegram, Discord, etc.)
type Messenger interface {
	// Start begins the message listening loop
	Start() error
	// Send sends a message to a specific chat
	Send(chatID string, text string) error
	// Stop gracefully shuts down the gateway
	Stop() error
}

const multiCommand = "/multi"

// renderTask formats a single-agent result for chat delivery.
func renderTask(res *agent.TaskResult, maxChars int) string {
	if !res.Success {
		return "Не удалось выполнить\n" + clip(res.Error, 500)
	}
	return fmt.Sprintf("Готово\nШагов: %d | Время: %.1fs\n\n%s",
		len(res.Steps), res.Duration.Seconds(), clip(res.Output, maxChars))
}

// renderOrchestration formats a multi-agent result for chat delivery.
func renderOrchestration(res *agent.OrchestratorResult, maxChars int) string {
	if !res.Success {
		reason := res.Error
		if reason == "" {
			reason = "все агенты завершились с ошибкой"
		}
		return "Не удалось выполнить\n" + clip(reason, 500)
	}
	var names []string
	for _, ar := range res.AgentResults {
		if ar.Success {
			names = append(names, ar.Agent)
		}
	}
	return fmt.Sprintf("Готово\nАгенты: %s | Время: %.1fs\n\n%s",
		strings.Join(names, ", "), res.Duration.Seconds(), clip(res.Output, maxChars))
}

func renderStats(mem *memory.Manager) string {
	if mem == nil {
		return "Running.\nMemory is disabled."
	}
	st, err := mem.Stats()
	if err != nil {
		return "Running.\nMemory stats unavailable: " + err.Error()
	}
	return fmt.Sprintf("Running.\nTasks: %d (%d ok) | Avg quality: %.2f | Memories: %d",
		st.TotalTasks, st.Succeeded, st.AvgQuality, st.Memories)
}

// clip cuts on rune boundaries; results are frequently Russian text.
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
