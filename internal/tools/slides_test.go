package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pavel/operon/internal/llm"
)

func deckInput(filename string, slides ...map[string]any) map[string]any {
	raw := make([]any, len(slides))
	for i, s := range slides {
		raw[i] = s
	}
	return map[string]any{"filename": filename, "slides": raw}
}

func TestSlidesExpandsBriefContent(t *testing.T) {
	dir := t.TempDir()
	model := &scriptedCompleter{replies: []string{"• Рост рынка на 40%\n• Новые модели каждый квартал"}}
	st := NewSlidesTool(model, dir)

	res, err := st.Execute(context.Background(), deckInput("deck.md",
		map[string]any{"title": "Рынок ИИ 2026", "content": "Обзор за год"},
		map[string]any{"title": "Тренды", "content": "кратко"},
	))
	if err != nil {
		t.Fatalf("unexpected fault: %v", err)
	}
	if !res.Success() || !strings.Contains(res.Output, "(2 slides)") {
		t.Fatalf("result = %+v", res)
	}

	data, readErr := os.ReadFile(filepath.Join(dir, "deck.md"))
	if readErr != nil {
		t.Fatalf("deck not written: %v", readErr)
	}
	text := string(data)
	for _, want := range []string{"marp: true", "# Рынок ИИ 2026", "## Тренды", "• Рост рынка на 40%"} {
		if !strings.Contains(text, want) {
			t.Errorf("deck missing %q:\n%s", want, text)
		}
	}

	if len(model.requests) != 1 {
		t.Fatalf("expected one expansion call, got %d", len(model.requests))
	}
	req := model.requests[0]
	if req.Tier != llm.TierFast || req.MaxTokens != 600 {
		t.Errorf("tier = %q maxTokens = %d", req.Tier, req.MaxTokens)
	}
	prompt := req.Messages[0].Content
	if !strings.Contains(prompt, "Тема презентации: Рынок ИИ 2026") ||
		!strings.Contains(prompt, "Заголовок слайда: Тренды") {
		t.Errorf("expansion prompt = %q", prompt)
	}
}

func TestSlidesKeepsLongContent(t *testing.T) {
	long := strings.Repeat("тезис about the market and its direction ", 10)
	model := &scriptedCompleter{}
	st := NewSlidesTool(model, t.TempDir())

	res, _ := st.Execute(context.Background(), deckInput("d",
		map[string]any{"title": "Титул", "content": ""},
		map[string]any{"title": "Детали", "content": long},
	))
	if !res.Success() {
		t.Fatalf("result = %+v", res)
	}
	if len(model.requests) != 0 {
		t.Errorf("long content should not be expanded, got %d calls", len(model.requests))
	}
}

func TestSlidesAppendsExtensionAndSurvivesExpansionFailure(t *testing.T) {
	dir := t.TempDir()
	model := &scriptedCompleter{err: errors.New("model down")}
	st := NewSlidesTool(model, dir)

	res, _ := st.Execute(context.Background(), deckInput("quarterly",
		map[string]any{"title": "Q2", "content": ""},
		map[string]any{"title": "Цифры", "content": "выручка"},
	))
	if !res.Success() {
		t.Fatalf("expansion failure must not fail the deck: %+v", res)
	}

	data, err := os.ReadFile(filepath.Join(dir, "quarterly.md"))
	if err != nil {
		t.Fatalf("deck not written with .md extension: %v", err)
	}
	if !strings.Contains(string(data), "выручка") {
		t.Errorf("brief content lost:\n%s", string(data))
	}
}

func TestSlidesRequiresSlides(t *testing.T) {
	st := NewSlidesTool(&scriptedCompleter{}, t.TempDir())

	res, _ := st.Execute(context.Background(), map[string]any{"filename": "d.md", "slides": []any{}})
	if res.Success() || res.ExitCode != 1 {
		t.Fatalf("result = %+v", res)
	}
}
