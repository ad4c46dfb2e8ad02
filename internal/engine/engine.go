package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"taskmaster/internal/config"
	"taskmaster/internal/domain"
	"taskmaster/internal/events"
	"taskmaster/internal/llm"
	"taskmaster/internal/repo"
)

// Engine holds the application operations the API and CLI call into. The
// enrichment processor is injected explicitly; nothing here is a singleton.
type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Processor *llm.Processor
	Logger    *zap.Logger
	Now       func() time.Time
}

func New(db *sql.DB, cfg *config.Config, processor *llm.Processor, logger *zap.Logger) Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Processor: processor,
		Logger:    logger,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) nowRFC3339() string {
	return e.now().UTC().Format(time.RFC3339)
}

// Capture records a raw note instantly. No model call happens here; the
// scheduler (or a manual trigger) enriches it later.
func (e Engine) Capture(ctx context.Context, rawInput string) (domain.Task, error) {
	if rawInput == "" {
		return domain.Task{}, errors.New("raw_input is required")
	}
	now := e.nowRFC3339()
	t := domain.Task{
		ID:            uuid.NewString(),
		RawInput:      rawInput,
		Status:        domain.StatusCaptured,
		PriorityScore: 0.5,
		CreatedAt:     now,
		TouchedAt:     now,
	}
	if err := e.Repo.InsertTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, "task.captured", t.ID, events.EventPayload{"raw_input": rawInput}); err != nil {
		e.Logger.Warn("append capture event", zap.Error(err))
	}
	return t, nil
}

func (e Engine) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return e.Repo.GetTask(ctx, id)
}

func (e Engine) ListTasks(ctx context.Context, status string, limit int) ([]domain.Task, error) {
	if status != "" && !domain.ValidStatus(status) {
		return nil, fmt.Errorf("invalid status %q", status)
	}
	if limit <= 0 {
		limit = 50
	}
	return e.Repo.ListTasks(ctx, repo.TaskFilters{Status: status, Limit: limit})
}

func (e Engine) DeleteTask(ctx context.Context, id string) error {
	if err := e.Repo.DeleteTask(ctx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, "task.deleted", id, nil); err != nil {
		e.Logger.Warn("append delete event", zap.Error(err))
	}
	return nil
}

func (e Engine) Stats(ctx context.Context) (domain.Stats, error) {
	return e.Repo.Stats(ctx)
}

// TaskUpdateOptions are the user-editable fields; nil means unchanged.
type TaskUpdateOptions struct {
	Status           *string
	PriorityScore    *float64
	Category         *string
	Notes            *string
	DueBy            *string
	Pinned           *bool
	Recurring        *bool
	RecurringPattern *string
}

// UpdateTask applies a partial update and refreshes touched_at. Status
// changes go through the transition rules: nothing returns to captured.
func (e Engine) UpdateTask(ctx context.Context, id string, opts TaskUpdateOptions) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if opts.Status != nil {
		if !domain.CanTransition(t.Status, *opts.Status) {
			return domain.Task{}, fmt.Errorf("invalid status transition %s -> %s", t.Status, *opts.Status)
		}
		t.Status = *opts.Status
	}
	if opts.PriorityScore != nil {
		if *opts.PriorityScore < 0 || *opts.PriorityScore > 1 {
			return domain.Task{}, errors.New("priority_score must be within [0,1]")
		}
		t.PriorityScore = *opts.PriorityScore
	}
	if opts.Category != nil {
		t.Category = opts.Category
	}
	if opts.Notes != nil {
		t.Notes = opts.Notes
	}
	if opts.DueBy != nil {
		t.DueBy = opts.DueBy
	}
	if opts.Pinned != nil {
		t.Pinned = *opts.Pinned
	}
	if opts.Recurring != nil {
		t.Recurring = *opts.Recurring
	}
	if opts.RecurringPattern != nil {
		t.RecurringPattern = opts.RecurringPattern
	}
	t.TouchedAt = e.nowRFC3339()
	if err := e.Repo.UpdateTask(ctx, t); err != nil {
		return domain.Task{}, err
	}
	if err := e.Events.Append(ctx, "task.updated", t.ID, events.EventPayload{"status": t.Status}); err != nil {
		e.Logger.Warn("append update event", zap.Error(err))
	}
	return t, nil
}

// ProcessCaptured runs one enrichment pass: release stale claims, claim the
// captured set, enrich against active context, and apply results
// positionally. Every claimed task reaches active, with fallback fields if
// the model was unusable. Returns the number of tasks processed.
func (e Engine) ProcessCaptured(ctx context.Context) (int, error) {
	staleMins := e.Config.Worker.StaleClaimMins
	if staleMins <= 0 {
		staleMins = 10
	}
	cutoff := e.now().UTC().Add(-time.Duration(staleMins) * time.Minute).Format(time.RFC3339)
	if released, err := e.Repo.ReleaseStaleClaims(ctx, cutoff); err != nil {
		return 0, fmt.Errorf("release stale claims: %w", err)
	} else if released > 0 {
		e.Logger.Warn("released stale processing claims", zap.Int64("count", released))
	}

	claimed, err := e.Repo.ClaimCaptured(ctx, e.nowRFC3339())
	if err != nil {
		return 0, fmt.Errorf("claim captured: %w", err)
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	active, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: domain.StatusActive})
	if err != nil {
		e.releaseClaims(ctx, claimed)
		return 0, fmt.Errorf("list active context: %w", err)
	}

	results := e.Processor.EnrichBatch(ctx, claimed, active)
	for i := range claimed {
		if err := e.applyEnrichment(ctx, claimed[i], results[i]); err != nil {
			e.releaseClaims(ctx, claimed[i:])
			return i, fmt.Errorf("apply enrichment to %s: %w", claimed[i].ID, err)
		}
	}
	return len(claimed), nil
}

// applyEnrichment moves one task to active with a fresh set of enrichment
// fields. RawInput and CreatedAt are never touched.
func (e Engine) applyEnrichment(ctx context.Context, t domain.Task, r llm.Result) error {
	t.ProcessedText = &r.ProcessedText
	t.PriorityScore = llm.ClampScore(r.PriorityScore)
	t.Category = optionalString(r.Category)
	t.Notes = optionalString(r.Notes)
	t.IsLifeCritical = r.IsLifeCritical
	t.IsQuickWin = r.IsQuickWin
	t.Status = domain.StatusActive
	t.TouchedAt = e.nowRFC3339()
	if err := e.Repo.UpdateTask(ctx, t); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, "task.enriched", t.ID, events.EventPayload{
		"priority_score": t.PriorityScore,
		"category":       r.Category,
	}); err != nil {
		e.Logger.Warn("append enrich event", zap.Error(err))
	}
	return nil
}

func (e Engine) releaseClaims(ctx context.Context, claimed []domain.Task) {
	ids := make([]string, len(claimed))
	for i, t := range claimed {
		ids[i] = t.ID
	}
	if err := e.Repo.ReleaseClaims(ctx, ids); err != nil {
		e.Logger.Error("release claims after failed cycle", zap.Error(err))
	}
}

// Reprocess re-enriches a single task in place against the current active
// set and returns the updated record.
func (e Engine) Reprocess(ctx context.Context, id string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	active, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: domain.StatusActive})
	if err != nil {
		return domain.Task{}, err
	}
	result := e.Processor.Reprocess(ctx, t, active)
	if err := e.applyEnrichment(ctx, t, result); err != nil {
		return domain.Task{}, err
	}
	return e.Repo.GetTask(ctx, id)
}

// Suggest asks the model what to do next over the active set.
func (e Engine) Suggest(ctx context.Context, userState string) (string, error) {
	active, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: domain.StatusActive})
	if err != nil {
		return "", err
	}
	return e.Processor.Suggest(ctx, active, userState), nil
}

// Chat answers a free-text message, optionally grounded in active tasks.
// Returns the reply and how many tasks were included as context.
func (e Engine) Chat(ctx context.Context, message string, includeContext bool) (string, int, error) {
	if message == "" {
		return "", 0, errors.New("message is required")
	}
	var contextTasks []domain.Task
	if includeContext {
		active, err := e.Repo.ListTasks(ctx, repo.TaskFilters{Status: domain.StatusActive})
		if err != nil {
			return "", 0, err
		}
		contextTasks = active
	}
	reply, included := e.Processor.Chat(ctx, message, contextTasks)
	return reply, included, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
