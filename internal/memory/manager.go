package memory

import (
	"context"
	"fmt"
	"strings"

	chromem "github.com/philippgille/chromem-go"
)

const recallLimit = 3

// Manager fronts both memory stores. A nil *Manager is valid and means
// memory is disabled; every method is a no-op then.
type Manager struct {
	longTerm *LongTerm
	outcomes *OutcomeStore
}

func NewManager(vectorPath, dbPath string, embed chromem.EmbeddingFunc) (*Manager, error) {
	longTerm, err := NewLongTerm(vectorPath, embed)
	if err != nil {
		return nil, err
	}
	outcomes, err := NewOutcomeStore(dbPath)
	if err != nil {
		return nil, err
	}
	return &Manager{longTerm: longTerm, outcomes: outcomes}, nil
}

// OnTaskStart recalls past tasks similar to the new one. When the
// semantic store is unreachable (embedding endpoint down) it degrades to
// the most recent successful outcomes from the sqlite log.
func (m *Manager) OnTaskStart(ctx context.Context, task string) ([]Hit, error) {
	if m == nil {
		return nil, nil
	}
	hits, err := m.longTerm.Recall(ctx, task, recallLimit)
	if err == nil {
		return hits, nil
	}
	recent, rerr := m.outcomes.Recent(recallLimit)
	if rerr != nil {
		return nil, err
	}
	var fallback []Hit
	for _, o := range recent {
		fallback = append(fallback, Hit{
			Task:         o.Task,
			Result:       o.Result,
			ToolsUsed:    o.ToolsUsed,
			QualityScore: o.QualityScore,
		})
	}
	return fallback, nil
}

// OnTaskEnd persists a finished task to both stores. Failures in one
// store do not stop the write to the other.
func (m *Manager) OnTaskEnd(ctx context.Context, o Outcome) error {
	if m == nil {
		return nil
	}
	var firstErr error
	if err := m.outcomes.Add(o); err != nil {
		firstErr = err
	}
	if err := m.longTerm.Remember(ctx, o); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Stats reports aggregate numbers across the outcome log plus the size
// of the semantic store.
func (m *Manager) Stats() (Stats, error) {
	if m == nil {
		return Stats{}, nil
	}
	st, err := m.outcomes.Stats()
	if err != nil {
		return Stats{}, err
	}
	st.Memories = m.longTerm.Count()
	return st, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.outcomes.Close()
}

// FormatHits renders recalled tasks as plain fact lines. The consumer
// frames them with whatever prompt header fits its use.
func FormatHits(hits []Hit) string {
	if len(hits) == 0 {
		return ""
	}
	var b strings.Builder
	for _, h := range hits {
		fmt.Fprintf(&b, "- Task: %s\n  Tools: %s\n  Result: %s\n",
			truncate(h.Task, 150), strings.Join(h.ToolsUsed, ", "), truncate(h.Result, 200))
	}
	return b.String()
}
