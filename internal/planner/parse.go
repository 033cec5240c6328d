package planner

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/pavel/operon/internal/llm"
	"github.com/pavel/operon/internal/plan"
)

var errNoArray = errors.New("no JSON array in response")

type rawStep struct {
	ID          int            `json:"id"`
	Tool        string         `json:"tool"`
	Description string         `json:"description"`
	Input       map[string]any `json:"input"`
	DependsOn   []int          `json:"depends_on"`
}

// parseSteps extracts the machine-readable plan from a model response.
// The envelope is free text that must contain one JSON array; code fences
// are stripped, the last balanced array wins, and bare control characters
// inside quoted strings are escaped before decoding. Ordinary decode
// failures get one pass through jsonrepair before giving up.
func parseSteps(text string) (plan.Plan, error) {
	arr, ok := lastArray(llm.StripFences(text))
	if !ok {
		return nil, errNoArray
	}
	arr = escapeControlChars(arr)

	var raw []rawStep
	if err := json.Unmarshal([]byte(arr), &raw); err != nil {
		repaired, repErr := jsonrepair.JSONRepair(arr)
		if repErr != nil {
			return nil, fmt.Errorf("plan is not valid JSON: %w", err)
		}
		if err := json.Unmarshal([]byte(repaired), &raw); err != nil {
			return nil, fmt.Errorf("plan is not valid JSON after repair: %w", err)
		}
	}
	if len(raw) == 0 {
		return nil, errNoArray
	}

	steps := make(plan.Plan, 0, len(raw))
	for i, r := range raw {
		step := plan.Step{
			ID:          r.ID,
			Tool:        r.Tool,
			Description: r.Description,
			Input:       r.Input,
			DependsOn:   r.DependsOn,
		}
		if step.ID == 0 {
			step.ID = i + 1
		}
		if step.Description == "" {
			step.Description = step.Tool
		}
		if step.Input == nil {
			step.Input = map[string]any{}
		}
		steps = append(steps, step)
	}
	return steps, nil
}

// lastArray returns the last balanced top-level JSON array in s. Models
// often prepend free-text reasoning, so earlier bracketed fragments are
// skipped in favor of the final answer.
func lastArray(s string) (string, bool) {
	var found string
	for i := 0; i < len(s); i++ {
		if s[i] != '[' {
			continue
		}
		if end, ok := matchBracket(s, i); ok {
			found = s[i : end+1]
			i = end
		}
	}
	return found, found != ""
}

// matchBracket finds the closing bracket for the opening one at start,
// skipping bracket characters inside quoted strings.
func matchBracket(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}

// escapeControlChars escapes bare control characters inside quoted
// strings. Models occasionally emit literal newlines or tabs inside code
// payloads, which strict JSON decoding rejects.
func escapeControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for _, c := range []byte(s) {
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}
		if escaped {
			escaped = false
			b.WriteByte(c)
			continue
		}
		switch {
		case c == '\\':
			escaped = true
			b.WriteByte(c)
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\n':
			b.WriteString(`\n`)
		case c == '\t':
			b.WriteString(`\t`)
		case c == '\r':
			b.WriteString(`\r`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
