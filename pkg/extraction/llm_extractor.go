// FILE: pkg/extraction/llm_extractor.go
// PURPOSE: Extractor backed by a chat-completion model

package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"agro-intake-be/pkg/llm"
)

const extractionSystemPrompt = "Eres un asistente experto en agricultura que extrae información estructurada " +
	"de descripciones de proyectos agrícolas. A partir del texto proporcionado por el usuario, " +
	"extrae únicamente los siguientes campos en formato JSON. Usa exactamente los nombres de campo proporcionados:\n" +
	"%s\n\n" +
	"Rellena solo los campos que puedas deducir con alta confianza a partir del texto. " +
	"Si algún campo no está presente o no puedes deducirlo con certeza, devuélvelo con valor null. " +
	"No inventes datos. No añadas explicaciones."

// LLMExtractor asks a language model to fill the prompts of one batch.
type LLMExtractor struct {
	provider  llm.LLMProvider
	maxTokens int
}

var _ Extractor = (*LLMExtractor)(nil)

func NewLLMExtractor(provider llm.LLMProvider, maxTokens int) *LLMExtractor {
	if maxTokens <= 0 {
		maxTokens = 1500
	}
	return &LLMExtractor{provider: provider, maxTokens: maxTokens}
}

func (e *LLMExtractor) Extract(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Narration) == "" {
		return nil, fmt.Errorf("extraction: empty narration")
	}

	history := []llm.Message{
		{Role: "system", Content: fmt.Sprintf(extractionSystemPrompt, fieldList(req.QuestionPrompts))},
		{Role: "user", Content: req.Narration},
	}

	raw, err := e.provider.Chat(ctx, history,
		llm.WithTemperature(0),
		llm.WithMaxTokens(e.maxTokens),
		llm.WithJSON(),
	)
	if err != nil {
		return nil, fmt.Errorf("extraction: completion: %w", err)
	}

	data, err := parseExtractionResponse(raw)
	if err != nil {
		return nil, err
	}
	return &Response{Data: data}, nil
}

func fieldList(prompts []string) string {
	lines := make([]string, 0, len(prompts))
	for _, p := range prompts {
		lines = append(lines, "- "+p)
	}
	return strings.Join(lines, "\n")
}

// parseExtractionResponse strips markdown fences and surrounding prose and decodes the
// JSON object the model returned. Null values are dropped.
func parseExtractionResponse(response string) (map[string]interface{}, error) {
	response = strings.TrimSpace(response)
	response = strings.TrimPrefix(response, "```json")
	response = strings.TrimPrefix(response, "```")
	response = strings.TrimSuffix(response, "```")
	response = strings.TrimSpace(response)

	jsonStart := strings.Index(response, "{")
	jsonEnd := strings.LastIndex(response, "}")
	if jsonStart < 0 || jsonEnd <= jsonStart {
		return nil, fmt.Errorf("%w: no JSON object in completion", ErrMalformedResponse)
	}
	response = response[jsonStart : jsonEnd+1]

	var data map[string]interface{}
	if err := json.Unmarshal([]byte(response), &data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}

	// Some models wrap the fields the same way the HTTP service does.
	if inner, ok := data["data"].(map[string]interface{}); ok && len(data) == 1 {
		data = inner
	}

	for k, v := range data {
		if v == nil {
			delete(data, k)
		}
	}
	return data, nil
}
