package engine_test

import (
	"context"
	"testing"
	"time"

	"taskmaster/internal/config"
	"taskmaster/internal/db"
	"taskmaster/internal/domain"
	"taskmaster/internal/engine"
	"taskmaster/internal/llm"
	"taskmaster/internal/migrate"
)

// scriptedSender returns canned replies in order, then sentinel error text.
type scriptedSender struct {
	replies  []string
	requests []llm.SendRequest
}

func (s *scriptedSender) Send(_ context.Context, req llm.SendRequest) string {
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return llm.ErrorText("script exhausted")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply
}

type testEnv struct {
	Engine engine.Engine
	Sender *scriptedSender
	Ctx    context.Context
}

func newTestEnv(t *testing.T, replies ...string) testEnv {
	t.Helper()
	dir := t.TempDir()
	if _, err := db.EnsureWorkspace(dir); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sender := &scriptedSender{replies: replies}
	eng := engine.New(conn, config.Default(), llm.NewProcessor(sender, nil), nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Sender: sender, Ctx: context.Background()}
}

func TestCaptureIsInstant(t *testing.T) {
	env := newTestEnv(t)
	task, err := env.Engine.Capture(env.Ctx, "milk??")
	if err != nil {
		t.Fatalf("capture: %v", err)
	}
	if task.Status != domain.StatusCaptured {
		t.Fatalf("status = %s, want captured", task.Status)
	}
	if task.PriorityScore != 0.5 {
		t.Fatalf("priority = %f, want 0.5", task.PriorityScore)
	}
	// no model call on capture
	if len(env.Sender.requests) != 0 {
		t.Fatalf("capture made %d model calls", len(env.Sender.requests))
	}
	got, err := env.Engine.GetTask(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RawInput != "milk??" {
		t.Fatalf("raw input = %q", got.RawInput)
	}
}

func TestCaptureRequiresInput(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Capture(env.Ctx, ""); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestProcessCapturedEnrichesBatch(t *testing.T) {
	env := newTestEnv(t, `[
		{"processed_text": "Buy milk", "priority_score": 0.6, "category": "shopping", "is_quick_win": true},
		{"processed_text": "Refill meds", "priority_score": 0.95, "category": "health", "is_life_critical": true}
	]`)
	a, _ := env.Engine.Capture(env.Ctx, "milk")
	// distinct timestamps keep claim order deterministic
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC) }
	b, _ := env.Engine.Capture(env.Ctx, "meds")

	count, err := env.Engine.ProcessCaptured(env.Ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	first, _ := env.Engine.GetTask(env.Ctx, a.ID)
	if first.Status != domain.StatusActive {
		t.Fatalf("status = %s, want active", first.Status)
	}
	if first.ProcessedText == nil || *first.ProcessedText != "Buy milk" {
		t.Fatalf("processed text = %v", first.ProcessedText)
	}
	if !first.IsQuickWin || first.IsLifeCritical {
		t.Fatalf("flags wrong: %+v", first)
	}
	// raw input survives enrichment untouched
	if first.RawInput != "milk" {
		t.Fatalf("raw input = %q", first.RawInput)
	}

	second, _ := env.Engine.GetTask(env.Ctx, b.ID)
	if !second.IsLifeCritical || second.PriorityScore != 0.95 {
		t.Fatalf("second task: %+v", second)
	}
}

func TestProcessCapturedModelFailureFallsBack(t *testing.T) {
	env := newTestEnv(t) // scripted sender immediately returns error text
	task, _ := env.Engine.Capture(env.Ctx, "water the plants")

	count, err := env.Engine.ProcessCaptured(env.Ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.Status != domain.StatusActive {
		t.Fatalf("status = %s, want active even on model failure", got.Status)
	}
	if got.ProcessedText == nil || *got.ProcessedText != "water the plants" {
		t.Fatalf("processed text = %v", got.ProcessedText)
	}
	if got.Category == nil || *got.Category != "misc" {
		t.Fatalf("category = %v", got.Category)
	}
	if got.PriorityScore != 0.5 {
		t.Fatalf("priority = %f", got.PriorityScore)
	}
}

func TestProcessCapturedEmptyQueue(t *testing.T) {
	env := newTestEnv(t)
	count, err := env.Engine.ProcessCaptured(env.Ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if count != 0 {
		t.Fatalf("count = %d", count)
	}
	if len(env.Sender.requests) != 0 {
		t.Fatalf("empty queue made %d model calls", len(env.Sender.requests))
	}
}

func TestProcessCapturedClaimsOnce(t *testing.T) {
	env := newTestEnv(t, `[{"processed_text": "once", "priority_score": 0.5}]`)
	task, _ := env.Engine.Capture(env.Ctx, "only once")

	count, err := env.Engine.ProcessCaptured(env.Ctx)
	if err != nil || count != 1 {
		t.Fatalf("first pass: count=%d err=%v", count, err)
	}
	// second pass finds nothing claimable
	count, err = env.Engine.ProcessCaptured(env.Ctx)
	if err != nil || count != 0 {
		t.Fatalf("second pass: count=%d err=%v", count, err)
	}
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.ProcessedText == nil || *got.ProcessedText != "once" {
		t.Fatalf("processed text = %v", got.ProcessedText)
	}
}

func TestProcessCapturedReleasesStaleClaims(t *testing.T) {
	env := newTestEnv(t, `[{"processed_text": "recovered", "priority_score": 0.5}]`)
	task, _ := env.Engine.Capture(env.Ctx, "stuck note")

	// simulate a crashed worker: claim the task, then advance past the
	// stale-claim window without enriching it
	if _, err := env.Engine.Repo.ClaimCaptured(env.Ctx, "2024-01-01T00:00:00Z"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 20, 0, 0, time.UTC) }

	count, err := env.Engine.ProcessCaptured(env.Ctx)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want stale claim reclaimed", count)
	}
	got, _ := env.Engine.GetTask(env.Ctx, task.ID)
	if got.Status != domain.StatusActive {
		t.Fatalf("status = %s", got.Status)
	}
}

func TestUpdateTaskTransitions(t *testing.T) {
	env := newTestEnv(t, `[{"processed_text": "x", "priority_score": 0.5}]`)
	task, _ := env.Engine.Capture(env.Ctx, "x")
	if _, err := env.Engine.ProcessCaptured(env.Ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	status := domain.StatusDone
	updated, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateOptions{Status: &status})
	if err != nil || updated.Status != domain.StatusDone {
		t.Fatalf("to done: %v", err)
	}
	// done can reopen
	status = domain.StatusActive
	updated, err = env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateOptions{Status: &status})
	if err != nil || updated.Status != domain.StatusActive {
		t.Fatalf("reopen: %v", err)
	}
	// nothing goes back to captured
	status = domain.StatusCaptured
	if _, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateOptions{Status: &status}); err == nil {
		t.Fatal("expected transition error to captured")
	}
}

func TestUpdateTaskValidatesPriority(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.Capture(env.Ctx, "x")
	bad := 1.5
	if _, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateOptions{PriorityScore: &bad}); err == nil {
		t.Fatal("expected priority range error")
	}
	good := 0.8
	updated, err := env.Engine.UpdateTask(env.Ctx, task.ID, engine.TaskUpdateOptions{PriorityScore: &good})
	if err != nil || updated.PriorityScore != 0.8 {
		t.Fatalf("update priority: %v", err)
	}
}

func TestReprocessReplacesEnrichment(t *testing.T) {
	env := newTestEnv(t,
		`[{"processed_text": "first pass", "priority_score": 0.4, "category": "misc"}]`,
		`[{"processed_text": "second pass", "priority_score": 0.8, "category": "health", "is_life_critical": true}]`,
	)
	task, _ := env.Engine.Capture(env.Ctx, "note")
	if _, err := env.Engine.ProcessCaptured(env.Ctx); err != nil {
		t.Fatalf("process: %v", err)
	}

	got, err := env.Engine.Reprocess(env.Ctx, task.ID)
	if err != nil {
		t.Fatalf("reprocess: %v", err)
	}
	if got.ProcessedText == nil || *got.ProcessedText != "second pass" {
		t.Fatalf("processed text = %v", got.ProcessedText)
	}
	if !got.IsLifeCritical || got.PriorityScore != 0.8 {
		t.Fatalf("enrichment not replaced: %+v", got)
	}
}

func TestSuggestWithoutTasks(t *testing.T) {
	env := newTestEnv(t)
	out, err := env.Engine.Suggest(env.Ctx, "tired")
	if err != nil {
		t.Fatalf("suggest: %v", err)
	}
	if out != llm.NoActiveTasksMessage {
		t.Fatalf("out = %q", out)
	}
	if len(env.Sender.requests) != 0 {
		t.Fatal("suggest with no tasks should not call the model")
	}
}

func TestChatIncludesContext(t *testing.T) {
	env := newTestEnv(t,
		`[{"processed_text": "active one", "priority_score": 0.5}]`,
		"doing fine",
	)
	if _, err := env.Engine.Capture(env.Ctx, "a task"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ProcessCaptured(env.Ctx); err != nil {
		t.Fatal(err)
	}
	reply, included, err := env.Engine.Chat(env.Ctx, "how's it going?", true)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}
	if reply != "doing fine" || included != 1 {
		t.Fatalf("reply=%q included=%d", reply, included)
	}
}

func TestDeleteTask(t *testing.T) {
	env := newTestEnv(t)
	task, _ := env.Engine.Capture(env.Ctx, "bye")
	if err := env.Engine.DeleteTask(env.Ctx, task.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := env.Engine.GetTask(env.Ctx, task.ID); err == nil {
		t.Fatal("expected not found after delete")
	}
	if err := env.Engine.DeleteTask(env.Ctx, task.ID); err == nil {
		t.Fatal("expected not found on double delete")
	}
}

func TestStatsCounters(t *testing.T) {
	env := newTestEnv(t, `[
		{"processed_text": "meds", "priority_score": 0.95, "is_life_critical": true},
		{"processed_text": "email", "priority_score": 0.3, "is_quick_win": true}
	]`)
	env.Engine.Capture(env.Ctx, "meds")
	env.Engine.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC) }
	env.Engine.Capture(env.Ctx, "email")
	if _, err := env.Engine.ProcessCaptured(env.Ctx); err != nil {
		t.Fatalf("process: %v", err)
	}
	env.Engine.Capture(env.Ctx, "still captured")

	stats, err := env.Engine.Stats(env.Ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.Total != 3 {
		t.Fatalf("total = %d", stats.Total)
	}
	if stats.ByStatus[domain.StatusCaptured] != 1 || stats.ByStatus[domain.StatusActive] != 2 {
		t.Fatalf("by status = %v", stats.ByStatus)
	}
	if stats.LifeCriticalActive != 1 {
		t.Fatalf("life critical = %d", stats.LifeCriticalActive)
	}
	if stats.QuickWins != 1 {
		t.Fatalf("quick wins = %d", stats.QuickWins)
	}
	if stats.HighPriority != 1 {
		t.Fatalf("high priority = %d", stats.HighPriority)
	}
}
