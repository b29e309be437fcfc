package llm

import (
	"context"

	"aifit/coach-app/internal/domain"
)

// ConverseResult is one assistant reply in the context-gathering conversation.
type ConverseResult struct {
	// Message is the assistant text shown to the user.
	Message string
	// Kind reports whether the assistant is asking another question or has
	// declared the gathered context sufficient.
	Kind domain.ResponseKind
	// ContextSummary is set on ready replies: the assistant's own summary of
	// everything gathered, appended to the record's collected context.
	ContextSummary string
}

// GenerationBackend is the text-generation service the engine talks to. It
// must be treated as unreliable: calls can time out and replies can be
// malformed. The engine owns extracting structured payloads from Generate's
// raw text before validating them.
type GenerationBackend interface {
	// Converse sends the full ordered conversation plus the accumulated
	// context and returns the next assistant reply. When forced is set the
	// backend must not ask further questions.
	Converse(ctx context.Context, kind domain.PlanKind, history []domain.Turn, collectedContext string, forced bool) (*ConverseResult, error)

	// Generate produces the raw text for a full plan from a single prompt.
	Generate(ctx context.Context, prompt string) (string, error)
}
