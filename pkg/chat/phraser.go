package chat

import (
	"context"
	"fmt"
	"strings"

	"agro-intake-be/pkg/llm"
	"agro-intake-be/pkg/questionnaire"
)

const phraserSystemPrompt = "Eres un asistente virtual que ayuda a recopilar datos específicos " +
	"sobre proyectos agrícolas. Tu tarea es formular preguntas breves, " +
	"claras y directas para obtener información concreta del usuario. " +
	"No des explicaciones ni formules preguntas largas o complejas. " +
	"Limítate a pedir directamente el dato específico indicado por el usuario."

// Phraser turns a questionnaire field into a conversational question.
type Phraser interface {
	Phrase(ctx context.Context, q questionnaire.Question) (string, error)
}

// LLMPhraser asks a language model for a short question about the field.
type LLMPhraser struct {
	provider llm.LLMProvider
}

func NewLLMPhraser(provider llm.LLMProvider) *LLMPhraser {
	return &LLMPhraser{provider: provider}
}

func (p *LLMPhraser) Phrase(ctx context.Context, q questionnaire.Question) (string, error) {
	history := []llm.Message{
		{Role: "system", Content: phraserSystemPrompt},
		{Role: "user", Content: fmt.Sprintf("Formula una pregunta breve y directa para pedir este dato: '%s'", q.Description)},
	}
	out, err := p.provider.Chat(ctx, history, llm.WithTemperature(0.1), llm.WithMaxTokens(50))
	if err != nil {
		return "", fmt.Errorf("phrase question %s: %w", q.ID, err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", fmt.Errorf("phrase question %s: empty completion", q.ID)
	}
	return out, nil
}
