package llm

import (
	"fmt"
	"sort"
	"strings"

	"taskmaster/internal/domain"
)

const (
	maxContextTasks = 10
	maxSuggestTasks = 15
	maxChatTasks    = 20
)

const batchSystemPrompt = `You are a task management assistant for someone with ADHD, CPTSD, and short-term memory loss.

Your job:
1. Understand cryptic/short task inputs (user knows what they mean)
2. Assess REAL priority based on human needs, not just urgency
3. Identify patterns (keeps mentioning food = probably hasn't eaten)
4. Flag life-critical items (meds, food, hydration, health)
5. Note quick wins (fast tasks to build momentum)
6. Don't ask questions - work with what you have

Priority hierarchy:
- CRITICAL (0.9-1.0): Health, safety, meds, basic needs (food/water)
- HIGH (0.7-0.8): Time-sensitive, blocking other tasks, been stuck on this for days
- MEDIUM (0.5-0.6): Normal importance, should do
- LOW (0.3-0.4): Nice to have
- LATER (0.0-0.2): Ideas, interesting but not urgent (these are DISTRACTIONS)

Return ONLY valid JSON array, one object per task, no other text.`

const suggestSystemPrompt = `You are helping someone with ADHD decide what to do next.
Be supportive but direct. Suggest 1-3 specific tasks based on:
- Priority (life critical first)
- Their current state
- Quick wins if they're stuck
- Pattern breaking if hyperfocused on low-priority items

Keep it brief and actionable.`

const chatSystemPrompt = `You are a supportive assistant for someone with ADHD and memory issues.
Answer their message directly and kindly. When their current tasks are listed
below, use them to ground your reply, but never invent tasks they did not
mention. Keep responses short.`

// topByPriority returns at most n tasks ordered by priority descending.
// The sort is stable so ties keep their original relative order.
func topByPriority(tasks []domain.Task, n int) []domain.Task {
	sorted := make([]domain.Task, len(tasks))
	copy(sorted, tasks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].PriorityScore > sorted[j].PriorityScore
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// BuildContextPrompt renders the batch enrichment prompt: the new items,
// a bounded sample of current active work, and the output contract the
// parser depends on. Pure and deterministic.
func BuildContextPrompt(newTasks, activeTasks []domain.Task) string {
	var b strings.Builder
	b.WriteString("# New tasks to process:\n\n")
	for i, t := range newTasks {
		fmt.Fprintf(&b, "%d. Raw input: %q\n", i+1, t.RawInput)
		if t.CreatedAt != "" {
			fmt.Fprintf(&b, "   Created: %s\n", t.CreatedAt)
		}
	}

	if len(activeTasks) > 0 {
		fmt.Fprintf(&b, "\n# Current active tasks (%d total):\n\n", len(activeTasks))
		for _, t := range topByPriority(activeTasks, maxContextTasks) {
			fmt.Fprintf(&b, "- %s\n", t.Text())
			fmt.Fprintf(&b, "  Priority: %.2f, Category: %s\n", t.PriorityScore, categoryOrNone(t))
		}
	}

	b.WriteString(`

# For each new task, return JSON object with:
- processed_text: Your understanding of what they mean
- priority_score: Number 0.0-1.0 (use the hierarchy above)
- category: Short category name (shopping, health, tech, etc.)
- is_life_critical: true/false (is this about survival/health?)
- is_quick_win: true/false (can be done in <10 min?)
- notes: Brief context or observations

Return as JSON array: [{"processed_text": "...", "priority_score": 0.8, ...}, ...]
`)
	return b.String()
}

// BuildSuggestPrompt renders the "what should I do next" prompt from the top
// tasks by priority plus an optional free-form user state.
func BuildSuggestPrompt(tasks []domain.Task, userState string) string {
	var b strings.Builder
	b.WriteString("# Current tasks:\n\n")
	for _, t := range topByPriority(tasks, maxSuggestTasks) {
		var flags []string
		if t.IsLifeCritical {
			flags = append(flags, "LIFE CRITICAL")
		}
		if t.IsQuickWin {
			flags = append(flags, "quick win")
		}
		flagStr := ""
		if len(flags) > 0 {
			flagStr = fmt.Sprintf(" [%s]", strings.Join(flags, ", "))
		}
		fmt.Fprintf(&b, "- [%.2f] %s%s\n", t.PriorityScore, t.Text(), flagStr)
	}
	if userState != "" {
		fmt.Fprintf(&b, "\nUser state: %s\n", userState)
	}
	b.WriteString("\nWhat should they focus on next?")
	return b.String()
}

// BuildChatPrompt renders a conversational prompt. When contextTasks is
// non-empty up to 20 tasks are embedded; the returned count is how many made
// it in.
func BuildChatPrompt(message string, contextTasks []domain.Task) (string, int) {
	if len(contextTasks) == 0 {
		return message, 0
	}
	included := topByPriority(contextTasks, maxChatTasks)
	var b strings.Builder
	b.WriteString("# Current tasks:\n\n")
	for _, t := range included {
		var flags []string
		if t.IsLifeCritical {
			flags = append(flags, "critical")
		}
		if t.IsQuickWin {
			flags = append(flags, "quick win")
		}
		if t.Pinned {
			flags = append(flags, "pinned")
		}
		flagStr := ""
		if len(flags) > 0 {
			flagStr = fmt.Sprintf(" [%s]", strings.Join(flags, ", "))
		}
		fmt.Fprintf(&b, "- [%.2f] %s%s\n", t.PriorityScore, t.Text(), flagStr)
	}
	fmt.Fprintf(&b, "\n# Message:\n%s\n", message)
	return b.String(), len(included)
}

func categoryOrNone(t domain.Task) string {
	if t.Category != nil && *t.Category != "" {
		return *t.Category
	}
	return "none"
}
