package plan

import (
	"errors"
	"fmt"
)

// ErrInvalid marks a structural plan defect. The executor re-plans once
// through a degraded path when validation fails.
var ErrInvalid = errors.New("invalid plan")

// Lookup is the narrow registry view the validator needs: whether a tool
// exists and which input keys it requires.
type Lookup interface {
	Has(name string) bool
	Required(name string) []string
}

// Validate checks a plan before execution. Pure function, first violation
// wins: non-empty, step cap, registered tools, required input keys, and
// forward-only dependencies. Dependency ids must exist in the plan and be
// strictly smaller than the referencing step's id, which rules out cycles.
func Validate(p Plan, reg Lookup, maxSteps int) error {
	if len(p) == 0 {
		return fmt.Errorf("%w: plan is empty", ErrInvalid)
	}
	if len(p) > maxSteps {
		return fmt.Errorf("%w: %d steps exceeds maximum of %d", ErrInvalid, len(p), maxSteps)
	}

	ids := make(map[int]bool, len(p))
	for _, s := range p {
		ids[s.ID] = true
	}

	for _, s := range p {
		if !reg.Has(s.Tool) {
			return fmt.Errorf("%w: step %d uses unknown tool %q", ErrInvalid, s.ID, s.Tool)
		}
		for _, key := range reg.Required(s.Tool) {
			if _, ok := s.Input[key]; !ok {
				return fmt.Errorf("%w: step %d (%s) is missing required input %q", ErrInvalid, s.ID, s.Tool, key)
			}
		}
		for _, dep := range s.DependsOn {
			if !ids[dep] {
				return fmt.Errorf("%w: step %d depends on missing step %d", ErrInvalid, s.ID, dep)
			}
			if dep >= s.ID {
				return fmt.Errorf("%w: step %d has non-forward dependency on step %d", ErrInvalid, s.ID, dep)
			}
		}
	}
	return nil
}
