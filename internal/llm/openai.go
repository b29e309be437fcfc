package llm

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"aifit/coach-app/internal/config"
	"aifit/coach-app/internal/domain"
	"aifit/coach-app/internal/generation"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
)

// OpenAIBackend implements GenerationBackend on an OpenAI chat model via eino.
type OpenAIBackend struct {
	chatModel *openai.ChatModel
}

// NewOpenAIBackend creates a backend client from the LLM configuration.
func NewOpenAIBackend(ctx context.Context, cfg config.LLMConfig) (*OpenAIBackend, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("llm api key is required")
	}
	model, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.RequestTimeout,
	})
	if err != nil {
		log.Printf("ERROR: Failed to create OpenAI chat model: %v", err)
		return nil, err
	}
	return &OpenAIBackend{chatModel: model}, nil
}

// converseEnvelope is the control envelope conversational replies carry.
type converseEnvelope struct {
	Type           string `json:"type"`
	Message        string `json:"message"`
	ContextSummary string `json:"context_summary"`
}

// Converse sends the full ordered history and returns the parsed assistant
// reply. Replies whose envelope cannot be parsed are treated as plain
// questions rather than dropped.
func (b *OpenAIBackend) Converse(ctx context.Context, kind domain.PlanKind, history []domain.Turn, collectedContext string, forced bool) (*ConverseResult, error) {
	messages := make([]*schema.Message, 0, len(history)+1)
	messages = append(messages, schema.SystemMessage(ConverseSystemPrompt(kind, collectedContext, forced)))
	for _, turn := range history {
		switch turn.Role {
		case domain.RoleAssistant:
			messages = append(messages, schema.AssistantMessage(turn.Text, nil))
		default:
			messages = append(messages, schema.UserMessage(turn.Text))
		}
	}

	reply, err := b.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, err
	}

	result := &ConverseResult{
		Message: reply.Content,
		Kind:    domain.ResponseQuestion,
	}
	block, err := generation.ExtractJSONBlock(reply.Content)
	if err != nil {
		return result, nil
	}
	var envelope converseEnvelope
	if err := json.Unmarshal([]byte(block), &envelope); err != nil || envelope.Message == "" {
		return result, nil
	}
	result.Message = envelope.Message
	if envelope.Type == string(domain.ResponseReady) {
		result.Kind = domain.ResponseReady
		result.ContextSummary = envelope.ContextSummary
	}
	return result, nil
}

// Generate produces raw plan text from a single prompt.
func (b *OpenAIBackend) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []*schema.Message{
		schema.SystemMessage("You generate structured fitness plans as JSON. Reply with JSON only."),
		schema.UserMessage(prompt),
	}
	reply, err := b.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", err
	}
	return reply.Content, nil
}
