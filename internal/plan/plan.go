package plan

import (
	"regexp"
	"strconv"
)

// Step is a single tool invocation in a plan. Steps are immutable once
// produced by the planner; the executor works on resolved copies.
type Step struct {
	ID          int            `json:"id"`
	Tool        string         `json:"tool"`
	Description string         `json:"description"`
	Input       map[string]any `json:"input"`
	DependsOn   []int          `json:"depends_on,omitempty"`
}

// Plan is an ordered sequence of steps. Insertion order is execution order.
type Plan []Step

// Tools returns the distinct tool names in plan order.
func (p Plan) Tools() []string {
	var names []string
	seen := make(map[string]bool)
	for _, s := range p {
		if !seen[s.Tool] {
			seen[s.Tool] = true
			names = append(names, s.Tool)
		}
	}
	return names
}

var placeholderRe = regexp.MustCompile(`\{\{step_(\d+)_output\}\}`)

// Resolve returns a copy of the step with {{step_N_output}} placeholders in
// its input replaced by the recorded outputs of earlier steps. References to
// steps that are absent or produced no output collapse to the empty string.
func (s Step) Resolve(outputs map[int]string) Step {
	resolved := s
	resolved.Input = resolveValue(s.Input, outputs).(map[string]any)
	return resolved
}

func resolveValue(v any, outputs map[int]string) any {
	switch val := v.(type) {
	case string:
		return placeholderRe.ReplaceAllStringFunc(val, func(m string) string {
			id, err := strconv.Atoi(placeholderRe.FindStringSubmatch(m)[1])
			if err != nil {
				return ""
			}
			return outputs[id]
		})
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			out[k] = resolveValue(inner, outputs)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = resolveValue(inner, outputs)
		}
		return out
	default:
		return v
	}
}
