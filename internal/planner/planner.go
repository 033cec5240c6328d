package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/plan"
	"github.com/pavel/operon/internal/tools"
)

// ErrPlanning means no valid plan could be produced after exhausting
// every strategy. Fatal to the task.
var ErrPlanning = errors.New("planning failed")

// Lexical cues that mark a task as multi-step. Matched lowercased, in
// both supported languages.
var complexCues = []string{
	"и потом", "затем", "после этого", "сначала", "во-первых",
	"and then", "after that", "first", "multiple", "several steps",
	"сравни", "проанализируй и", "найди и", "создай и отправь",
	"презентаци", "presentation", "slide deck",
}

const complexLengthThreshold = 200

// Planner turns task text into an ordered step plan. Strategy escalates
// from a category-specialized single shot through a generic single shot
// to a two-turn reasoning mode for tasks nothing simpler can handle.
type Planner struct {
	llm      llm.Completer
	registry *tools.Registry
	maxSteps int
}

func New(completer llm.Completer, registry *tools.Registry, maxSteps int) *Planner {
	if maxSteps <= 0 {
		maxSteps = 5
	}
	return &Planner{llm: completer, registry: registry, maxSteps: maxSteps}
}

// Plan runs the full escalation ladder: classify, then specialized
// template for simple tasks, then generic single shot with one retry,
// then reasoning mode. memoryContext carries summaries of similar past
// tasks and may be empty.
func (p *Planner) Plan(ctx context.Context, task, memoryContext string) (plan.Plan, error) {
	category, hints := p.classify(ctx, task)

	if !isComplex(task) && category != CategoryMixed {
		if steps, err := p.specializedPlan(ctx, task, memoryContext, category); err == nil {
			return steps, nil
		}
	}

	return p.Replan(ctx, task, memoryContext, hints)
}

// Replan is the degraded path: generic single shot (retried once with an
// explicit array-only instruction), then reasoning mode. Used directly
// when a produced plan failed validation.
func (p *Planner) Replan(ctx context.Context, task, memoryContext string, hints []string) (plan.Plan, error) {
	if steps, err := p.genericPlan(ctx, task, memoryContext, hints); err == nil {
		return steps, nil
	}
	return p.reasoningPlan(ctx, task, memoryContext)
}

// classify issues a low-cost completion to sort the task into a closed
// category set. Any failure silently defaults to mixed; classification
// is never fatal.
func (p *Planner) classify(ctx context.Context, task string) (Category, []string) {
	resp, err := p.llm.Complete(ctx, llm.Request{
		Messages:  []llm.Message{{Role: "user", Content: task}},
		System:    classifierSystem,
		Tier:      llm.TierFast,
		MaxTokens: 200,
	})
	if err != nil {
		return CategoryMixed, nil
	}

	var out struct {
		Category string   `json:"category"`
		Tools    []string `json:"tools"`
	}
	if err := json.Unmarshal([]byte(llm.StripFences(resp.Text)), &out); err != nil {
		return CategoryMixed, nil
	}

	switch c := Category(out.Category); c {
	case CategoryWriting, CategoryCode, CategoryResearch, CategoryData, CategoryPresentation:
		return c, out.Tools
	default:
		return CategoryMixed, out.Tools
	}
}

func isComplex(task string) bool {
	if len(task) > complexLengthThreshold {
		return true
	}
	lower := strings.ToLower(task)
	for _, cue := range complexCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}

// specializedPlan is the first ladder stage: a single shot against the
// category template, restricted tool set, no retry.
func (p *Planner) specializedPlan(ctx context.Context, task, memoryContext string, category Category) (plan.Plan, error) {
	tpl, ok := templates[category]
	if !ok {
		return nil, fmt.Errorf("no template for category %q", category)
	}

	available := p.registry.Subset(tpl.Tools)
	if len(available.List()) == 0 {
		return nil, fmt.Errorf("no tools available for category %q", category)
	}

	maxSteps := tpl.MaxSteps
	if maxSteps > p.maxSteps {
		maxSteps = p.maxSteps
	}
	system := fmt.Sprintf(specializedSystem, category, available.Describe(), tpl.Guidance, maxSteps, planFormat)

	resp, err := p.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: withMemory(task, memoryContext)}},
		System:   system,
		Tier:     llm.TierBalanced,
	})
	if err != nil {
		return nil, err
	}
	return parseSteps(resp.Text)
}

// genericPlan advertises the full tool set and retries once with an
// explicit "return only the array" instruction when the first response
// is not parseable.
func (p *Planner) genericPlan(ctx context.Context, task, memoryContext string, hints []string) (plan.Plan, error) {
	guidance := planFormat
	if known := p.knownHints(hints); len(known) > 0 {
		guidance = "Likely useful tools: " + strings.Join(known, ", ") + "\n\n" + planFormat
	}
	system := fmt.Sprintf(genericSystem, p.registry.Describe(), guidance)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		content := withMemory(task, memoryContext)
		if attempt > 0 {
			content += "\nIMPORTANT: Return ONLY a valid JSON array, nothing else."
		}
		resp, err := p.llm.Complete(ctx, llm.Request{
			Messages: []llm.Message{{Role: "user", Content: content}},
			System:   system,
			Tier:     llm.TierBalanced,
		})
		if err != nil {
			lastErr = err
			continue
		}
		steps, err := parseSteps(resp.Text)
		if err == nil {
			return steps, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// reasoningPlan is the final ladder stage: a two-turn completion on the
// powerful tier that reasons first and emits the array second. A parse
// failure here is fatal.
func (p *Planner) reasoningPlan(ctx context.Context, task, memoryContext string) (plan.Plan, error) {
	system := fmt.Sprintf(reasoningSystem, p.registry.Describe(), planFormat)

	first, err := p.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: "user", Content: withMemory(task, memoryContext)}},
		System:   system,
		Tier:     llm.TierPowerful,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	if steps, err := parseSteps(first.Text); err == nil {
		return steps, nil
	}

	second, err := p.llm.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "user", Content: withMemory(task, memoryContext)},
			{Role: "assistant", Content: first.Text},
			{Role: "user", Content: reasoningFollowup},
		},
		System: system,
		Tier:   llm.TierPowerful,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	steps, err := parseSteps(second.Text)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlanning, err)
	}
	return steps, nil
}

// knownHints filters classifier tool hints down to registered names.
func (p *Planner) knownHints(hints []string) []string {
	var known []string
	for _, h := range hints {
		if p.registry.Has(h) {
			known = append(known, h)
		}
	}
	return known
}

func withMemory(task, memoryContext string) string {
	if memoryContext == "" {
		return task
	}
	return task + "\n\n" + memoryContextHeader + "\n" + memoryContext
}
