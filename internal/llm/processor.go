package llm

import (
	"context"

	"go.uber.org/zap"

	"taskmaster/internal/domain"
)

const (
	batchTemperature   = 0.3
	suggestTemperature = 0.5
	chatTemperature    = 0.5
)

// NoActiveTasksMessage is returned by Suggest without a model call when
// there is nothing to recommend.
const NoActiveTasksMessage = "No active tasks. Add some tasks to get started!"

// Processor composes the context builder, transport, and parser into one
// unit of work per batch. It holds no mutable state and never touches
// storage; given a snapshot of tasks it is safe to invoke concurrently.
type Processor struct {
	sender Sender
	logger *zap.Logger
}

// NewProcessor builds a Processor over any Sender. Construct one at process
// start and pass it to the scheduler and API handlers.
func NewProcessor(sender Sender, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{sender: sender, logger: logger}
}

// EnrichBatch produces one Result per new task, order preserved. A failed
// or malformed model response degrades to fallback results; the transport is
// never retried within a pass.
func (p *Processor) EnrichBatch(ctx context.Context, newTasks, activeTasks []domain.Task) []Result {
	if len(newTasks) == 0 {
		return nil
	}
	prompt := BuildContextPrompt(newTasks, activeTasks)
	raw := p.sender.Send(ctx, SendRequest{
		Prompt:      prompt,
		System:      batchSystemPrompt,
		Temperature: batchTemperature,
	})
	if IsErrorText(raw) {
		p.logger.Warn("model unavailable, using fallback enrichment",
			zap.Int("batch_size", len(newTasks)),
			zap.String("detail", raw))
	}
	return ParseBatch(raw, newTasks)
}

// Reprocess enriches a single task as a one-element batch.
func (p *Processor) Reprocess(ctx context.Context, task domain.Task, contextTasks []domain.Task) Result {
	return p.EnrichBatch(ctx, []domain.Task{task}, contextTasks)[0]
}

// Suggest asks the model for 1-3 next-step recommendations over the top
// tasks by priority. Advisory only: the raw model text is returned verbatim.
func (p *Processor) Suggest(ctx context.Context, tasks []domain.Task, userState string) string {
	if len(tasks) == 0 {
		return NoActiveTasksMessage
	}
	return p.sender.Send(ctx, SendRequest{
		Prompt:      BuildSuggestPrompt(tasks, userState),
		System:      suggestSystemPrompt,
		Temperature: suggestTemperature,
	})
}

// Chat answers free text, optionally grounded in up to 20 active tasks.
// Returns the raw reply and how many tasks were included. Never mutates
// state.
func (p *Processor) Chat(ctx context.Context, message string, contextTasks []domain.Task) (string, int) {
	prompt, included := BuildChatPrompt(message, contextTasks)
	reply := p.sender.Send(ctx, SendRequest{
		Prompt:      prompt,
		System:      chatSystemPrompt,
		Temperature: chatTemperature,
	})
	return reply, included
}
