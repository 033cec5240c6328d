package memory

import (
	"database/sql"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// Outcome is one finished task as persisted to the durable outcome log.
type Outcome struct {
	Task         string
	Result       string
	Success      bool
	Duration     time.Duration
	StepCount    int
	ToolsUsed    []string
	QualityScore float64
}

// Stats aggregates the outcome log for status reporting. Memories is
// the semantic store's document count, filled in by the manager.
type Stats struct {
	TotalTasks  int
	Succeeded   int
	AvgQuality  float64
	AvgDuration time.Duration
	Memories    int
}

// OutcomeStore is the append-only sqlite log of finished tasks. It backs
// the recency fallback when semantic recall is unavailable.
type OutcomeStore struct {
	DB *sql.DB
}

func NewOutcomeStore(dbPath string) (*OutcomeStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	query := `CREATE TABLE IF NOT EXISTS task_memories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		task TEXT,
		result TEXT,
		success INTEGER,
		duration_seconds REAL,
		step_count INTEGER,
		tools_used TEXT,
		quality_score REAL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`
	if _, err := db.Exec(query); err != nil {
		db.Close()
		return nil, err
	}

	return &OutcomeStore{DB: db}, nil
}

func (s *OutcomeStore) Add(o Outcome) error {
	query := `INSERT INTO task_memories (task, result, success, duration_seconds, step_count, tools_used, quality_score)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	success := 0
	if o.Success {
		success = 1
	}
	_, err := s.DB.Exec(query, o.Task, truncate(o.Result, 2000), success,
		o.Duration.Seconds(), o.StepCount, strings.Join(o.ToolsUsed, ","), o.QualityScore)
	return err
}

// Recent returns the latest successful outcomes, newest first.
func (s *OutcomeStore) Recent(limit int) ([]Outcome, error) {
	query := `SELECT task, result, tools_used, quality_score, duration_seconds
		FROM task_memories WHERE success = 1 ORDER BY created_at DESC, id DESC LIMIT ?`
	rows, err := s.DB.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []Outcome
	for rows.Next() {
		var o Outcome
		var toolsCSV string
		var seconds float64
		if err := rows.Scan(&o.Task, &o.Result, &toolsCSV, &o.QualityScore, &seconds); err != nil {
			return nil, err
		}
		o.Success = true
		o.Duration = time.Duration(seconds * float64(time.Second))
		if toolsCSV != "" {
			o.ToolsUsed = strings.Split(toolsCSV, ",")
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, rows.Err()
}

func (s *OutcomeStore) Stats() (Stats, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(success), 0),
		COALESCE(AVG(quality_score), 0), COALESCE(AVG(duration_seconds), 0)
		FROM task_memories`
	var st Stats
	var avgSeconds float64
	err := s.DB.QueryRow(query).Scan(&st.TotalTasks, &st.Succeeded, &st.AvgQuality, &avgSeconds)
	if err != nil {
		return Stats{}, err
	}
	st.AvgDuration = time.Duration(avgSeconds * float64(time.Second))
	return st, nil
}

func (s *OutcomeStore) Close() error {
	return s.DB.Close()
}
