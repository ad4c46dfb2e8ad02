package llm

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmaster/internal/domain"
)

// stubSender scripts model replies and records every request it saw.
type stubSender struct {
	replies  []string
	requests []SendRequest
}

func (s *stubSender) Send(_ context.Context, req SendRequest) string {
	s.requests = append(s.requests, req)
	if len(s.replies) == 0 {
		return ErrorText("stub exhausted")
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return reply
}

func TestEnrichBatchEmptyMakesNoCall(t *testing.T) {
	stub := &stubSender{}
	p := NewProcessor(stub, nil)
	results := p.EnrichBatch(context.Background(), nil, nil)
	assert.Nil(t, results)
	assert.Empty(t, stub.requests)
}

func TestEnrichBatchHappyPath(t *testing.T) {
	stub := &stubSender{replies: []string{
		`[{"processed_text": "Buy milk", "priority_score": 0.6, "category": "shopping"}]`,
	}}
	p := NewProcessor(stub, nil)
	results := p.EnrichBatch(context.Background(), tasksFromInputs("milk"), nil)
	require.Len(t, results, 1)
	assert.Equal(t, "Buy milk", results[0].ProcessedText)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, batchTemperature, stub.requests[0].Temperature)
	assert.Equal(t, batchSystemPrompt, stub.requests[0].System)
}

func TestEnrichBatchDegradesOnErrorText(t *testing.T) {
	stub := &stubSender{replies: []string{ErrorText("connection refused")}}
	p := NewProcessor(stub, nil)
	results := p.EnrichBatch(context.Background(), tasksFromInputs("a", "b"), nil)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, defaultCategory, r.Category)
		assert.Equal(t, fallbackNote, r.Notes)
	}
}

func TestReprocessSingleton(t *testing.T) {
	stub := &stubSender{replies: []string{
		`[{"processed_text": "Call the dentist", "priority_score": 0.7, "category": "health"}]`,
	}}
	p := NewProcessor(stub, nil)
	r := p.Reprocess(context.Background(), domain.Task{ID: "1", RawInput: "dentist"}, nil)
	assert.Equal(t, "Call the dentist", r.ProcessedText)
	require.Len(t, stub.requests, 1)
	assert.Contains(t, stub.requests[0].Prompt, `1. Raw input: "dentist"`)
}

func TestSuggestNoTasksSkipsTransport(t *testing.T) {
	stub := &stubSender{}
	p := NewProcessor(stub, nil)
	out := p.Suggest(context.Background(), nil, "tired")
	assert.Equal(t, NoActiveTasksMessage, out)
	assert.Empty(t, stub.requests)
}

func TestSuggestUsesTopTasks(t *testing.T) {
	stub := &stubSender{replies: []string{"Start with your meds."}}
	p := NewProcessor(stub, nil)
	var tasks []domain.Task
	for i := 0; i < 20; i++ {
		tasks = append(tasks, domain.Task{ID: fmt.Sprintf("t%d", i), RawInput: fmt.Sprintf("task %d", i), PriorityScore: float64(i) / 20})
	}
	out := p.Suggest(context.Background(), tasks, "")
	assert.Equal(t, "Start with your meds.", out)
	require.Len(t, stub.requests, 1)
	assert.Equal(t, suggestTemperature, stub.requests[0].Temperature)
	assert.Contains(t, stub.requests[0].Prompt, "task 19")
	assert.NotContains(t, stub.requests[0].Prompt, "task 4\n")
}

func TestChatCountsContext(t *testing.T) {
	stub := &stubSender{replies: []string{"You have a lot on."}}
	p := NewProcessor(stub, nil)
	reply, included := p.Chat(context.Background(), "how am I doing?", tasksFromInputs("a", "b", "c"))
	assert.Equal(t, "You have a lot on.", reply)
	assert.Equal(t, 3, included)

	stub.replies = []string{"Just chatting."}
	reply, included = p.Chat(context.Background(), "hello", nil)
	assert.Equal(t, "Just chatting.", reply)
	assert.Zero(t, included)
}
