package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/pavel/operon/pkg/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// Tier selects how much model to spend on a call.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierPowerful Tier = "powerful"
)

type Message struct {
	Role    string // "user" or "assistant"
	Content string
}

type Request struct {
	Messages  []Message
	System    string
	Tier      Tier
	MaxTokens int
}

type Response struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

func (r *Response) TotalTokens() int {
	return r.InputTokens + r.OutputTokens
}

// Completer is the narrow completion contract the engine consumes.
type Completer interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Client maps tiers to concrete models over one langchaingo backend.
type Client struct {
	model  llms.Model
	models map[Tier]string
}

func NewClient(cfg config.ProviderConfig) (*Client, error) {
	opts := []openai.Option{
		openai.WithToken(cfg.APIKey),
		openai.WithModel(cfg.Models["balanced"]),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}
	return NewClientWithModel(model, cfg.Models), nil
}

// NewClientWithModel wires an existing langchaingo model, mainly for tests.
func NewClientWithModel(model llms.Model, models map[string]string) *Client {
	tiers := map[Tier]string{
		TierFast:     models["fast"],
		TierBalanced: models["balanced"],
		TierPowerful: models["powerful"],
	}
	return &Client{model: model, models: tiers}
}

func (c *Client) modelFor(tier Tier) string {
	if m, ok := c.models[tier]; ok && m != "" {
		return m
	}
	return c.models[TierBalanced]
}

func (c *Client) Complete(ctx context.Context, req Request) (*Response, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.MessageContent{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(req.System)},
		})
	}
	for _, m := range req.Messages {
		role := schema.ChatMessageTypeHuman
		if m.Role == "assistant" {
			role = schema.ChatMessageTypeAI
		}
		messages = append(messages, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}

	opts := []llms.CallOption{llms.WithModel(c.modelFor(req.Tier))}
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}

	resp, err := c.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("completion returned no choices")
	}

	choice := resp.Choices[0]
	out := &Response{
		Text:         choice.Content,
		InputTokens:  intFromInfo(choice.GenerationInfo, "PromptTokens"),
		OutputTokens: intFromInfo(choice.GenerationInfo, "CompletionTokens"),
	}
	Record(ctx, out)
	return out, nil
}

// Embedder exposes the provider's embedding endpoint for the memory store.
func (c *Client) Embedder() (*embeddings.EmbedderImpl, error) {
	client, ok := c.model.(embeddings.EmbedderClient)
	if !ok {
		return nil, errors.New("provider does not support embeddings")
	}
	return embeddings.NewEmbedder(client)
}

func intFromInfo(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
