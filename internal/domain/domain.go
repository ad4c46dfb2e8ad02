package domain

// Task statuses.
//
// captured   recorded verbatim, not yet enriched
// processing claimed by an enrichment pass (internal, transient)
// active     enriched, visible on the board
// done       finished by the user
// archived   parked by the user
const (
	StatusCaptured   = "captured"
	StatusProcessing = "processing"
	StatusActive     = "active"
	StatusDone       = "done"
	StatusArchived   = "archived"
)

type Task struct {
	ID               string  `json:"id"`
	RawInput         string  `json:"raw_input"`
	ProcessedText    *string `json:"processed_text,omitempty"`
	Status           string  `json:"status" enum:"captured,processing,active,done,archived"`
	PriorityScore    float64 `json:"priority_score" minimum:"0" maximum:"1"`
	Category         *string `json:"category,omitempty"`
	Notes            *string `json:"notes,omitempty"`
	IsLifeCritical   bool    `json:"is_life_critical"`
	IsQuickWin       bool    `json:"is_quick_win"`
	IsInteresting    bool    `json:"is_interesting"`
	Pinned           bool    `json:"pinned"`
	Recurring        bool    `json:"recurring"`
	RecurringPattern *string `json:"recurring_pattern,omitempty"`
	CreatedAt        string  `json:"created_at" format:"date-time"`
	TouchedAt        string  `json:"touched_at" format:"date-time"`
	DueBy            *string `json:"due_by,omitempty" format:"date-time"`
}

// Text returns the best available description of the task.
func (t Task) Text() string {
	if t.ProcessedText != nil && *t.ProcessedText != "" {
		return *t.ProcessedText
	}
	return t.RawInput
}

// ValidStatus reports whether s is a known task status.
func ValidStatus(s string) bool {
	switch s {
	case StatusCaptured, StatusProcessing, StatusActive, StatusDone, StatusArchived:
		return true
	}
	return false
}

// CanTransition reports whether a user-driven status change is allowed.
// No transition may return a task to captured, and processing is reserved
// for the enrichment pipeline.
func CanTransition(from, to string) bool {
	if !ValidStatus(to) {
		return false
	}
	if to == StatusCaptured || to == StatusProcessing {
		return false
	}
	switch from {
	case StatusCaptured, StatusProcessing:
		return true
	case StatusActive, StatusDone, StatusArchived:
		return to == StatusActive || to == StatusDone || to == StatusArchived
	}
	return false
}

type Stats struct {
	Total              int            `json:"total"`
	ByStatus           map[string]int `json:"by_status"`
	LifeCriticalActive int            `json:"life_critical_active"`
	QuickWins          int            `json:"quick_wins"`
	HighPriority       int            `json:"high_priority"`
}

type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	TaskID  string `json:"task_id,omitempty"`
	Payload string `json:"payload_json"`
}
