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

const NameSlides = "slides"

const slideExpandSystem = "Пиши только текст слайда. Никаких вступлений. Начинай сразу с содержания."

// SlidesTool builds a Marp Markdown deck. Body slides with thin content get
// expanded through the fast tier before rendering; expansion failures fall
// back to the brief text as given.
type SlidesTool struct {
	LLM       llm.Completer
	Workspace string
}

func NewSlidesTool(completer llm.Completer, workspace string) *SlidesTool {
	return &SlidesTool{LLM: completer, Workspace: workspace}
}

func (s *SlidesTool) Name() string {
	return NameSlides
}

func (s *SlidesTool) Description() string {
	return "Create a slide deck as a Marp Markdown file. " +
		"Provide slides with title and content. " +
		"Content can be brief, it will be expanded automatically."
}

func (s *SlidesTool) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"filename": map[string]any{
				"type": "string",
			},
			"topic": map[string]any{
				"type":        "string",
				"description": "Presentation topic for context",
			},
			"slides": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"title":   map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
				},
			},
		},
		"required": []string{"filename", "slides"},
	}
}

type slide struct {
	Title   string
	Content string
}

func (s *SlidesTool) Execute(ctx context.Context, input map[string]any) (Result, error) {
	filename, _ := input["filename"].(string)
	rawSlides, _ := input["slides"].([]any)
	if filename == "" || len(rawSlides) == 0 {
		return Result{Error: "filename and a non-empty slides array are required", ExitCode: 1}, nil
	}

	deck := make([]slide, 0, len(rawSlides))
	for _, raw := range rawSlides {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		title, _ := m["title"].(string)
		content, _ := m["content"].(string)
		deck = append(deck, slide{Title: title, Content: content})
	}
	if len(deck) == 0 {
		return Result{Error: "slides array holds no objects with title/content", ExitCode: 1}, nil
	}

	topic, _ := input["topic"].(string)
	if topic == "" {
		topic = deck[0].Title
	}

	// The title slide stays as given; body slides with brief content get
	// expanded into bullet points.
	for i := range deck {
		if i == 0 || deck[i].Title == "" || deck[i].Title == deck[0].Title {
			continue
		}
		if utf8.RuneCountInString(deck[i].Content) >= 200 {
			continue
		}
		brief := deck[i].Content
		if brief == "" {
			brief = deck[i].Title
		}
		if expanded := s.expand(ctx, topic, deck[i].Title, brief); expanded != "" {
			deck[i].Content = expanded
		}
	}

	if !strings.HasSuffix(filename, ".md") {
		filename += ".md"
	}
	if err := os.MkdirAll(s.Workspace, 0755); err != nil {
		return Result{Error: err.Error(), ExitCode: 1}, nil
	}
	path := filepath.Join(s.Workspace, filepath.Base(filename))
	if err := os.WriteFile(path, []byte(render(deck)), 0644); err != nil {
		return Result{Error: err.Error(), ExitCode: 1}, nil
	}

	return Result{Output: fmt.Sprintf("Created: %s (%d slides)", path, len(deck))}, nil
}

func (s *SlidesTool) expand(ctx context.Context, topic, title, brief string) string {
	if s.LLM == nil {
		return ""
	}
	prompt := fmt.Sprintf("Тема презентации: %s\nЗаголовок слайда: %s\nКраткое описание: %s\n\n"+
		"Напиши содержимое слайда: 4-6 тезисов через bullet points (символ •). "+
		"Язык: русский. Максимум 500 символов.", topic, title, brief)

	resp, err := s.LLM.Complete(ctx, llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: prompt}},
		System:    slideExpandSystem,
		Tier:      llm.TierFast,
		MaxTokens: 600,
	})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(resp.Text)
}

func render(deck []slide) string {
	var b strings.Builder
	b.WriteString("---\nmarp: true\ntheme: default\npaginate: true\n---\n")
	for i, sl := range deck {
		if i == 0 {
			b.WriteString("\n# " + sl.Title + "\n")
		} else {
			b.WriteString("\n---\n\n## " + sl.Title + "\n")
		}
		if sl.Content != "" {
			b.WriteString("\n" + sl.Content + "\n")
		}
	}
	return b.String()
}
