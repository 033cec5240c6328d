package memory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
)

const (
	collectionName = "task-memories"

	// Results below this cosine similarity read as noise, not precedent.
	minSimilarity = 0.5
)

// Hit is one recalled past task relevant to the current one.
type Hit struct {
	Task         string
	Result       string
	ToolsUsed    []string
	QualityScore float64
	Similarity   float32
}

// LongTerm is the semantic memory over past task outcomes. Each finished
// task becomes one embedded document keyed by its description, so future
// tasks can recall how similar work went.
type LongTerm struct {
	db         *chromem.DB
	collection *chromem.Collection
}

func NewLongTerm(path string, embed chromem.EmbeddingFunc) (*LongTerm, error) {
	db, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector store: %w", err)
	}
	collection, err := db.GetOrCreateCollection(collectionName, nil, embed)
	if err != nil {
		return nil, fmt.Errorf("failed to open collection: %w", err)
	}
	return &LongTerm{db: db, collection: collection}, nil
}

// Remember stores a finished task. The task text is what gets embedded;
// everything else rides along as metadata.
func (l *LongTerm) Remember(ctx context.Context, o Outcome) error {
	doc := chromem.Document{
		ID:      uuid.New().String(),
		Content: o.Task,
		Metadata: map[string]string{
			"result":        truncate(o.Result, 2000),
			"success":       strconv.FormatBool(o.Success),
			"tools_used":    strings.Join(o.ToolsUsed, ","),
			"quality_score": strconv.FormatFloat(o.QualityScore, 'f', 2, 64),
			"duration":      strconv.FormatFloat(o.Duration.Seconds(), 'f', 1, 64),
		},
	}
	if err := l.collection.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to store memory: %w", err)
	}
	return nil
}

// Recall returns up to topK successful past tasks similar to the query.
// Low-similarity and failed entries are filtered out after the query.
func (l *LongTerm) Recall(ctx context.Context, query string, topK int) ([]Hit, error) {
	count := l.collection.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	results, err := l.collection.Query(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("recall query failed: %w", err)
	}

	var hits []Hit
	for _, r := range results {
		if r.Similarity < minSimilarity {
			continue
		}
		if r.Metadata["success"] != "true" {
			continue
		}
		hit := Hit{
			Task:       r.Content,
			Result:     r.Metadata["result"],
			Similarity: r.Similarity,
		}
		if tools := r.Metadata["tools_used"]; tools != "" {
			hit.ToolsUsed = strings.Split(tools, ",")
		}
		if q, err := strconv.ParseFloat(r.Metadata["quality_score"], 64); err == nil {
			hit.QualityScore = q
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Count reports the number of stored memories.
func (l *LongTerm) Count() int {
	return l.collection.Count()
}
