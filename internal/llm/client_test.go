package llm

import (
	"context"
	"testing"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/schema"
)

// recordingModel captures the call options and messages it receives and
// plays back a canned response.
type recordingModel struct {
	lastOpts     llms.CallOptions
	lastMessages []llms.MessageContent
	reply        string
	info         map[string]any
}

func (m *recordingModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	m.lastMessages = messages
	m.lastOpts = llms.CallOptions{}
	for _, opt := range options {
		opt(&m.lastOpts)
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{
			{Content: m.reply, GenerationInfo: m.info},
		},
	}, nil
}

func (m *recordingModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.reply, nil
}

func testModels() map[string]string {
	return map[string]string{
		"fast":     "model-fast",
		"balanced": "model-balanced",
		"powerful": "model-powerful",
	}
}

func TestCompleteTierMapping(t *testing.T) {
	model := &recordingModel{reply: "hello"}
	client := NewClientWithModel(model, testModels())

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		System:   "be brief",
		Tier:     TierFast,
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.Text != "hello" {
		t.Errorf("text = %q", resp.Text)
	}
	if model.lastOpts.Model != "model-fast" {
		t.Errorf("model = %q, want model-fast", model.lastOpts.Model)
	}
	if len(model.lastMessages) != 2 {
		t.Fatalf("messages = %d, want system + user", len(model.lastMessages))
	}
	if model.lastMessages[0].Role != schema.ChatMessageTypeSystem {
		t.Errorf("first message role = %v", model.lastMessages[0].Role)
	}
}

func TestCompleteUnknownTierFallsBack(t *testing.T) {
	model := &recordingModel{reply: "x"}
	client := NewClientWithModel(model, testModels())

	if _, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Tier:     Tier("nonsense"),
	}); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if model.lastOpts.Model != "model-balanced" {
		t.Errorf("model = %q, want balanced fallback", model.lastOpts.Model)
	}
}

func TestUsageTracking(t *testing.T) {
	model := &recordingModel{
		reply: "ok",
		info:  map[string]any{"PromptTokens": 11, "CompletionTokens": 7},
	}
	client := NewClientWithModel(model, testModels())

	ctx, usage := WithUsage(context.Background())
	for i := 0; i < 3; i++ {
		if _, err := client.Complete(ctx, Request{
			Messages: []Message{{Role: "user", Content: "hi"}},
		}); err != nil {
			t.Fatalf("Complete failed: %v", err)
		}
	}

	if usage.Calls != 3 {
		t.Errorf("calls = %d", usage.Calls)
	}
	if usage.InputTokens != 33 || usage.OutputTokens != 21 {
		t.Errorf("tokens = %d/%d", usage.InputTokens, usage.OutputTokens)
	}
	if usage.Total() != 54 {
		t.Errorf("total = %d", usage.Total())
	}
}

func TestUsageIgnoredWithoutTracker(t *testing.T) {
	model := &recordingModel{reply: "ok", info: map[string]any{"PromptTokens": 5}}
	client := NewClientWithModel(model, testModels())

	resp, err := client.Complete(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if resp.InputTokens != 5 {
		t.Errorf("input tokens = %d", resp.InputTokens)
	}
}
