package worker_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"taskmaster/internal/config"
	"taskmaster/internal/db"
	"taskmaster/internal/domain"
	"taskmaster/internal/engine"
	"taskmaster/internal/llm"
	"taskmaster/internal/migrate"
	"taskmaster/internal/worker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// countingSender counts model calls and always answers with a valid
// one-element batch.
type countingSender struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSender) Send(_ context.Context, _ llm.SendRequest) string {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return `[{"processed_text": "done", "priority_score": 0.5}]`
}

func (s *countingSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func newTestEngine(t *testing.T, sender llm.Sender) engine.Engine {
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
	return engine.New(conn, config.Default(), llm.NewProcessor(sender, nil), nil)
}

func TestSchedulerRunsFirstCycleImmediately(t *testing.T) {
	sender := &countingSender{}
	e := newTestEngine(t, sender)
	if _, err := e.Capture(context.Background(), "note"); err != nil {
		t.Fatalf("capture: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := worker.New(e, time.Hour, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for sender.Calls() == 0 {
		select {
		case <-deadline:
			t.Fatal("first cycle never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	<-done

	got, err := e.ListTasks(context.Background(), domain.StatusActive, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("active tasks = %d, want 1", len(got))
	}
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, &countingSender{})
	ctx, cancel := context.WithCancel(context.Background())
	s := worker.New(e, 10*time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

// panicSender blows up on every call; the scheduler must survive it.
type panicSender struct {
	mu    sync.Mutex
	calls int
}

func (s *panicSender) Send(_ context.Context, _ llm.SendRequest) string {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	panic("model client exploded")
}

func (s *panicSender) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func TestSchedulerSurvivesPanics(t *testing.T) {
	sender := &panicSender{}
	e := newTestEngine(t, sender)
	if _, err := e.Capture(context.Background(), "doomed"); err != nil {
		t.Fatalf("capture: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := worker.New(e, 10*time.Millisecond, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()

	deadline := time.After(5 * time.Second)
	for sender.Calls() < 1 {
		select {
		case <-deadline:
			t.Fatal("cycle never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler died after panic")
	}
}
