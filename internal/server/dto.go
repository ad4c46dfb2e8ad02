package server

import (
	"taskmaster/internal/domain"
)

// Request payloads

type CaptureRequest struct {
	RawInput string `json:"raw_input"`
}

type UpdateTaskRequest struct {
	Status           *string  `json:"status,omitempty" enum:"active,done,archived"`
	PriorityScore    *float64 `json:"priority_score,omitempty" minimum:"0" maximum:"1"`
	Category         *string  `json:"category,omitempty"`
	Notes            *string  `json:"notes,omitempty"`
	DueBy            *string  `json:"due_by,omitempty" format:"date-time"`
	Pinned           *bool    `json:"pinned,omitempty"`
	Recurring        *bool    `json:"recurring,omitempty"`
	RecurringPattern *string  `json:"recurring_pattern,omitempty"`
}

type ChatRequest struct {
	Message        string `json:"message"`
	IncludeContext bool   `json:"include_context,omitempty"`
}

// Response payloads

type CaptureResponse struct {
	ID      string `json:"id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type TaskListResponse struct {
	Tasks []domain.Task `json:"tasks"`
	Count int           `json:"count"`
}

type ProcessResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

type SuggestionsResponse struct {
	Suggestions string `json:"suggestions"`
}

type ChatResponse struct {
	Reply        string `json:"reply"`
	ContextTasks int    `json:"context_tasks"`
}
