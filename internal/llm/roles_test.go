package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"taskmaster/internal/domain"
)

func TestSecretaryInterpretFallsBackToEcho(t *testing.T) {
	stub := &stubSender{replies: []string{"I cannot answer that."}}
	out := Secretary{Sender: stub}.Interpret(context.Background(), "milk??")
	assert.Equal(t, "milk??", out.ProcessedText)
	assert.Equal(t, defaultCategory, out.CategoryGuess)
}

func TestSecretaryInterpretParsesObject(t *testing.T) {
	stub := &stubSender{replies: []string{
		`Sure: {"processed_text": "Buy milk", "implicit_urgency": "low", "category_guess": "shopping"}`,
	}}
	out := Secretary{Sender: stub}.Interpret(context.Background(), "milk??")
	assert.Equal(t, "Buy milk", out.ProcessedText)
	assert.Equal(t, "shopping", out.CategoryGuess)
}

func TestPrioritizerAssess(t *testing.T) {
	cases := map[string]float64{
		"I'd rate this 0.85 out of 1.": 0.85,
		"1.0":                          1.0,
		"priority: 0":                  0,
		"no number here":               defaultPriority,
		"score is 3.5":                 0.5, // matches ".5"
	}
	for reply, want := range cases {
		stub := &stubSender{replies: []string{reply}}
		got := Prioritizer{Sender: stub}.Assess(context.Background(), domain.Task{RawInput: "x"})
		assert.Equal(t, want, got, "reply %q", reply)
	}
}

func TestPrioritizerAssessIgnoresErrorText(t *testing.T) {
	// A transport sentinel embeds the status code; its digits must not be
	// mistaken for a score.
	stub := &stubSender{replies: []string{ErrorText("status 500: boom")}}
	got := Prioritizer{Sender: stub}.Assess(context.Background(), domain.Task{RawInput: "x"})
	assert.Equal(t, defaultPriority, got)
}
