package llm

import (
	"fmt"
	"strings"

	"aifit/coach-app/internal/domain"
)

// The conversation model replies with a small JSON envelope so the engine can
// tell "another question" apart from "ready to generate" without scraping
// prose. Envelopes that fail to parse are treated as questions.
const converseEnvelopeInstructions = `Respond with a single JSON object and nothing else:
{"type": "question", "message": "<your next question to the user>"}
or, once you have enough information to build the plan:
{"type": "ready", "message": "<short confirmation for the user>", "context_summary": "<everything you learned, as one paragraph>"}`

func kindDescription(kind domain.PlanKind) string {
	switch kind {
	case domain.PlanKindDiet:
		return "a 7-day diet plan with breakfast, lunch and dinner for every day (snack optional)"
	case domain.PlanKindWorkoutHome:
		return "a 7-day home workout plan using little or no equipment"
	case domain.PlanKindWorkoutGym:
		return "a 7-day gym workout plan"
	default:
		return "a 7-day fitness plan"
	}
}

// ConverseSystemPrompt builds the system prompt for one conversation turn.
func ConverseSystemPrompt(kind domain.PlanKind, collectedContext string, forced bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a fitness coach gathering what you need to build %s.\n", kindDescription(kind))
	b.WriteString("Ask one focused question at a time. Do not generate the plan yet.\n")
	if collectedContext != "" {
		b.WriteString("\nContext gathered so far:\n")
		b.WriteString(collectedContext)
		b.WriteString("\n")
	}
	if forced {
		b.WriteString("\nThe question budget is exhausted. You must reply with type \"ready\" now, summarizing whatever you have.\n")
	}
	b.WriteString("\n")
	b.WriteString(converseEnvelopeInstructions)
	return b.String()
}

// GenerationPrompt builds the single prompt for the plan-generation call from
// the full accumulated context.
func GenerationPrompt(kind domain.PlanKind, collectedContext string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create %s for this user.\n\nUser context:\n%s\n\n", kindDescription(kind), collectedContext)
	b.WriteString("Reply with a single JSON object and nothing else.\n")
	if kind == domain.PlanKindDiet {
		b.WriteString(`Shape:
{
  "name": "<plan name>",
  "days": [
    {
      "day": "Monday",
      "breakfast": {"name": "...", "ingredients": ["..."], "instructions": "...", "calories": 0},
      "lunch": {...},
      "dinner": {...},
      "snack": {...}
    }
  ]
}
All 7 days are required. Breakfast, lunch and dinner are required for every day; snack is optional.`)
	} else {
		b.WriteString(`Shape:
{
  "name": "<plan name>",
  "days": [
    {
      "day": "Monday",
      "focus": "Upper body",
      "rest_day": false,
      "exercises": [{"name": "...", "sets": 3, "reps": "8-12", "rest_seconds": 60, "notes": "..."}]
    }
  ]
}
All 7 days are required. Every non-rest day needs at least one exercise.`)
	}
	return b.String()
}
