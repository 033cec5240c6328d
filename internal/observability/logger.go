package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeTaskStart   EventType = "task_start"
	EventTypeTaskEnd     EventType = "task_end"
	EventTypePlan        EventType = "plan"
	EventTypeStep        EventType = "step"
	EventTypePolicyCheck EventType = "policy_check"
	EventTypeRoute       EventType = "route"
	EventTypeDelegate    EventType = "delegate"
	EventTypeMemory      EventType = "memory"
	EventTypeHeartbeat   EventType = "heartbeat"
)

// Event represents a structured log entry. TaskID correlates every event
// of one task run.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"task_id,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger writes the task event stream as JSONL, one file per process,
// with a stdout echo. A nil *Logger discards everything.
type Logger struct {
	eventLogPath string
	maxSize      int64
}

func NewLogger(dir string) *Logger {
	if dir == "" {
		dir = "logs"
	}
	return &Logger{
		eventLogPath: filepath.Join(dir, "events.jsonl"),
		maxSize:      10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout and appends it to the
// event log.
func (l *Logger) Log(evt Event) {
	if l == nil {
		return
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))
	l.writeToFile(data)
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.eventLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.eventLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.eventLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.eventLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.eventLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogTaskStart(taskID, task string) {
	l.Log(Event{
		Type:   EventTypeTaskStart,
		TaskID: taskID,
		Data:   map[string]string{"task": task},
	})
}

func (l *Logger) LogTaskEnd(taskID string, success bool, duration time.Duration, totalTokens int) {
	l.Log(Event{
		Type:   EventTypeTaskEnd,
		TaskID: taskID,
		Data: map[string]any{
			"success":          success,
			"duration_seconds": duration.Seconds(),
			"total_tokens":     totalTokens,
		},
	})
}

func (l *Logger) LogPlan(taskID string, steps int, tools []string) {
	l.Log(Event{
		Type:   EventTypePlan,
		TaskID: taskID,
		Data: map[string]any{
			"steps": steps,
			"tools": tools,
		},
	})
}

func (l *Logger) LogStep(taskID string, stepID int, tool string, success bool, attempt int, duration time.Duration, errText string) {
	l.Log(Event{
		Type:   EventTypeStep,
		TaskID: taskID,
		Data: map[string]any{
			"step_id":          stepID,
			"tool":             tool,
			"success":          success,
			"attempt":          attempt,
			"duration_seconds": duration.Seconds(),
			"error":            errText,
		},
	})
}

func (l *Logger) LogPolicyCheck(taskID string, stepID int, allowed bool, reason string) {
	l.Log(Event{
		Type:   EventTypePolicyCheck,
		TaskID: taskID,
		Data: map[string]any{
			"step_id": stepID,
			"allowed": allowed,
			"reason":  reason,
		},
	})
}

func (l *Logger) LogRoute(taskID string, agents []string) {
	l.Log(Event{
		Type:   EventTypeRoute,
		TaskID: taskID,
		Data:   map[string]any{"agents": agents},
	})
}

func (l *Logger) LogDelegate(taskID, agent string, success bool, duration time.Duration) {
	l.Log(Event{
		Type:   EventTypeDelegate,
		TaskID: taskID,
		Data: map[string]any{
			"agent":            agent,
			"success":          success,
			"duration_seconds": duration.Seconds(),
		},
	})
}

func (l *Logger) LogMemory(taskID string, hits int) {
	l.Log(Event{
		Type:   EventTypeMemory,
		TaskID: taskID,
		Data:   map[string]any{"hits": hits},
	})
}

func (l *Logger) LogHeartbeat() {
	l.Log(Event{
		Type: EventTypeHeartbeat,
		Data: map[string]string{"status": "alive"},
	})
}
