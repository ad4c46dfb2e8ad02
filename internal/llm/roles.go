package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"taskmaster/internal/domain"
)

// Role clients share the transport contract but carry their own model
// configuration (see config.Role). They predate the batch processor and
// remain useful for one-off CLI work.

const secretarySystemPrompt = `You are a helpful secretary. The user has severe ADHD and memory issues.
They will give you very short, possibly cryptic notes about tasks or ideas.
Your job is to:
1. Understand what they mean (they know what they mean, even if it's one word)
2. Extract any implicit urgency or importance
3. NOT ask questions - just interpret based on context
4. Return ONLY a JSON object with these fields:
   - processed_text: Your understanding of the task
   - implicit_urgency: low/medium/high
   - is_life_critical: true if it's about health, meds, food, basic survival
   - is_quick_win: true if it seems like a fast task
   - category_guess: your best guess at category
   - notes: any helpful context

Return ONLY valid JSON, no other text.`

const organizerSystemPrompt = `You are a task organizer. Look at these tasks and group them logically.
Consider: similar themes, related activities, what could be done together.
The user has ADHD and works best with loose groupings, not rigid categories.
Return category suggestions as plain text.`

const prioritizerSystemPrompt = `You are assessing task priority for someone with ADHD and memory issues.
Priority factors:
- Life critical (meds, food, health): HIGHEST
- Has deadline approaching: HIGH
- Is blocking other tasks: HIGH
- Is interesting but not urgent: LOWER (these are tempting distractions!)
- Quick wins when stuck: MEDIUM-HIGH

Return ONLY a number between 0 and 1, nothing else.
0.9-1.0: Critical (health, safety, urgent needs)
0.7-0.8: Important (time-sensitive, necessary)
0.5-0.6: Normal (good to do, not urgent)
0.3-0.4: Low (nice to have)
0.0-0.2: Later (can wait indefinitely)`

// Secretary interprets one raw note into a structured understanding.
type Secretary struct {
	Sender Sender
}

type Interpretation struct {
	ProcessedText   string `json:"processed_text"`
	ImplicitUrgency string `json:"implicit_urgency"`
	IsLifeCritical  bool   `json:"is_life_critical"`
	IsQuickWin      bool   `json:"is_quick_win"`
	CategoryGuess   string `json:"category_guess"`
	Notes           string `json:"notes"`
}

// Interpret never fails: unparseable model output degrades to an
// interpretation that echoes the raw input.
func (s Secretary) Interpret(ctx context.Context, rawInput string) Interpretation {
	raw := s.Sender.Send(ctx, SendRequest{
		Prompt:      rawInput,
		System:      secretarySystemPrompt,
		Temperature: 0.3,
	})
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		var out Interpretation
		if err := json.Unmarshal([]byte(raw[start:end+1]), &out); err == nil && out.ProcessedText != "" {
			return out
		}
	}
	return Interpretation{
		ProcessedText:   rawInput,
		ImplicitUrgency: "low",
		CategoryGuess:   defaultCategory,
		Notes:           fallbackNote,
	}
}

// Organizer groups tasks into loose categories. Advisory text only.
type Organizer struct {
	Sender Sender
}

func (o Organizer) Categorize(ctx context.Context, tasks []domain.Task) string {
	var b strings.Builder
	n := len(tasks)
	if n > maxChatTasks {
		n = maxChatTasks
	}
	for _, t := range tasks[:n] {
		fmt.Fprintf(&b, "- %s\n", t.RawInput)
	}
	prompt := fmt.Sprintf("Here are the current tasks:\n%s\nSuggest categories and groupings.", b.String())
	return o.Sender.Send(ctx, SendRequest{
		Prompt:      prompt,
		System:      organizerSystemPrompt,
		Temperature: 0.5,
	})
}

// Prioritizer assesses a single task's priority on the 0-1 scale.
type Prioritizer struct {
	Sender Sender
}

var scorePattern = regexp.MustCompile(`0?\.\d+|[01]\.0|[01]\b`)

// Assess extracts the first 0-1 number from the model's reply, clamped into
// range. Anything unusable defaults to 0.5.
func (p Prioritizer) Assess(ctx context.Context, task domain.Task) float64 {
	info := fmt.Sprintf("Task: %s", task.Text())
	if task.IsLifeCritical {
		info += "\n- This is life critical (health/safety)"
	}
	if task.DueBy != nil {
		info += fmt.Sprintf("\n- Due by: %s", *task.DueBy)
	}
	raw := p.Sender.Send(ctx, SendRequest{
		Prompt:      info,
		System:      prioritizerSystemPrompt,
		Temperature: 0.3,
	})
	if IsErrorText(raw) {
		// Sentinel text can embed digits (status codes). Never score it.
		return defaultPriority
	}
	match := scorePattern.FindString(raw)
	if match == "" {
		return defaultPriority
	}
	score, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return defaultPriority
	}
	return ClampScore(score)
}
