package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/pavel/operon/internal/llm"
)

const NameTextWriter = "text_writer"

const writerSystemRU = "Ты профессиональный копирайтер и бизнес-консультант. " +
	"Пиши структурированно, убедительно, профессионально. " +
	"Используй markdown-форматирование. " +
	"Отвечай только текстом документа, без вступлений типа 'Вот текст:'."

const writerSystemEN = "You are a professional copywriter and business consultant. " +
	"Write structured, persuasive, professional content in Markdown."

// TextWriterTool generates a long-form document with the model and saves it
// straight to the workspace, so content never has to squeeze through plan
// JSON.
type TextWriterTool struct {
	LLM       llm.Completer
	Workspace string
}

func NewTextWriterTool(completer llm.Completer, workspace string) *TextWriterTool {
	return &TextWriterTool{LLM: completer, Workspace: workspace}
}

func (t *TextWriterTool) Name() string {
	return NameTextWriter
}

func (t *TextWriterTool) Description() string {
	return "Write long-form text content (articles, proposals, reports, letters) and save to file. " +
		"Use this for any writing task that needs to be saved. " +
		"Generates content via AI and saves directly, no JSON size limits."
}

func (t *TextWriterTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"prompt": map[string]any{
				"type":        "string",
				"description": "What to write, full instructions",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "File to save to (e.g. report.md)",
			},
			"language": map[string]any{
				"type":        "string",
				"description": "Language: ru or en",
			},
		},
		"required": []string{"prompt", "filename"},
	}
}

func (t *TextWriterTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	prompt, _ := input["prompt"].(string)
	filename, _ := input["filename"].(string)
	if prompt == "" || filename == "" {
		return Result{Error: "prompt and filename are required", ExitCode: 1}, nil
	}
	language, _ := input["language"].(string)

	system := writerSystemRU
	if language == "en" {
		system = writerSystemEN
	}

	resp, err := t.LLM.Complete(ctx, llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		System:    system,
		Tier:      llm.TierBalanced,
		MaxTokens: 4000,
	})
	if err != nil {
		return Result{Error: fmt.Sprintf("generation failed: %v", err), ExitCode: 1}, nil
	}
	content := strings.TrimSpace(resp.Text)

	if err := os.MkdirAll(t.Workspace, 0755); err != nil {
		return Result{Error: err.Error(), ExitCode: 1}, nil
	}
	path := filepath.Join(t.Workspace, filepath.Base(filename))
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return Result{Error: err.Error(), ExitCode: 1}, nil
	}

	return Result{
		Output: fmt.Sprintf("Saved to %s (%d chars)\n\nPreview:\n%s...",
			path, utf8.RuneCountInString(content), runePrefix(content, 300)),
	}, nil
}

// runePrefix cuts on rune boundaries; generated documents are often Russian.
func runePrefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
