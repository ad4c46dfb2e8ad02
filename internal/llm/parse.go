package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"taskmaster/internal/domain"
)

// Result is one task's enrichment. A result fully replaces any prior
// enrichment fields on the task; it is never merged.
type Result struct {
	ProcessedText  string  `json:"processed_text"`
	PriorityScore  float64 `json:"priority_score"`
	Category       string  `json:"category"`
	IsLifeCritical bool    `json:"is_life_critical"`
	IsQuickWin     bool    `json:"is_quick_win"`
	Notes          string  `json:"notes"`
}

// wireResult uses pointers so absent fields are distinguishable from zero
// values and can take defensive defaults.
type wireResult struct {
	ProcessedText  *string  `json:"processed_text"`
	PriorityScore  *float64 `json:"priority_score"`
	Category       *string  `json:"category"`
	IsLifeCritical *bool    `json:"is_life_critical"`
	IsQuickWin     *bool    `json:"is_quick_win"`
	Notes          *string  `json:"notes"`
}

const (
	defaultPriority = 0.5
	defaultCategory = "misc"
	fallbackNote    = "Could not process automatically"
)

// decodeBatch extracts the first balanced array span (first '[' to last ']')
// from raw model text and decodes it. It is the strict half of parsing:
// either the whole batch decodes or the caller falls back.
func decodeBatch(raw string) ([]wireResult, error) {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start < 0 || end <= start {
		return nil, fmt.Errorf("no JSON array in response")
	}
	var batch []wireResult
	if err := json.Unmarshal([]byte(raw[start:end+1]), &batch); err != nil {
		return nil, fmt.Errorf("decode array: %w", err)
	}
	return batch, nil
}

// ParseBatch turns raw model text into exactly one Result per task. It is
// total: any decode error or count mismatch yields the fallback result for
// every task rather than partial credit.
func ParseBatch(raw string, tasks []domain.Task) []Result {
	batch, err := decodeBatch(raw)
	if err != nil || len(batch) != len(tasks) {
		return fallbackResults(tasks)
	}
	results := make([]Result, len(tasks))
	for i, w := range batch {
		results[i] = resultFromWire(w, tasks[i])
	}
	return results
}

func resultFromWire(w wireResult, task domain.Task) Result {
	r := Result{
		ProcessedText: task.RawInput,
		PriorityScore: defaultPriority,
		Category:      defaultCategory,
	}
	if w.ProcessedText != nil && *w.ProcessedText != "" {
		r.ProcessedText = *w.ProcessedText
	}
	if w.PriorityScore != nil {
		r.PriorityScore = ClampScore(*w.PriorityScore)
	}
	if w.Category != nil && *w.Category != "" {
		r.Category = *w.Category
	}
	if w.IsLifeCritical != nil {
		r.IsLifeCritical = *w.IsLifeCritical
	}
	if w.IsQuickWin != nil {
		r.IsQuickWin = *w.IsQuickWin
	}
	if w.Notes != nil {
		r.Notes = *w.Notes
	}
	return r
}

func fallbackResults(tasks []domain.Task) []Result {
	results := make([]Result, len(tasks))
	for i, t := range tasks {
		results[i] = Result{
			ProcessedText: t.RawInput,
			PriorityScore: defaultPriority,
			Category:      defaultCategory,
			Notes:         fallbackNote,
		}
	}
	return results
}

// ClampScore forces a priority into [0,1].
func ClampScore(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
