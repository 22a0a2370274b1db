package extraction

import (
	"fmt"
	"strings"

	"agro-intake-be/pkg/questionnaire"
)

// DefaultBatchSize is the number of questions sent per extraction call.
const DefaultBatchSize = 15

// SplitBatches splits questions into consecutive batches of at most size,
// preserving order. It returns ceil(len/size) batches.
func SplitBatches(questions []questionnaire.Question, size int) [][]questionnaire.Question {
	if size <= 0 {
		size = DefaultBatchSize
	}
	if len(questions) == 0 {
		return nil
	}

	batches := make([][]questionnaire.Question, 0, (len(questions)+size-1)/size)
	for start := 0; start < len(questions); start += size {
		end := start + size
		if end > len(questions) {
			end = len(questions)
		}
		batches = append(batches, questions[start:end:end])
	}
	return batches
}

// Prompt is the text sent for one question. Single-select questions carry their labels:
// "<description> (opciones: <label1>, <label2>, ...)".
func Prompt(q questionnaire.Question) string {
	if q.Type != questionnaire.TypeSelect || len(q.Options) == 0 {
		return q.Description
	}
	return fmt.Sprintf("%s (opciones: %s)", q.Description, strings.Join(q.OptionLabels(), ", "))
}

// Prompts returns the prompts of a batch in order.
func Prompts(batch []questionnaire.Question) []string {
	out := make([]string, 0, len(batch))
	for _, q := range batch {
		out = append(out, Prompt(q))
	}
	return out
}

// lookup finds the answer for q in a response keyed by display text. The service may
// echo the full prompt or only the description, with different spacing or case.
func lookup(data map[string]interface{}, q questionnaire.Question) (interface{}, bool) {
	if v, ok := data[q.Description]; ok {
		return v, true
	}
	prompt := Prompt(q)
	if v, ok := data[prompt]; ok {
		return v, true
	}

	desc := normaliseKey(q.Description)
	full := normaliseKey(prompt)
	for k, v := range data {
		nk := normaliseKey(k)
		if nk == desc || nk == full {
			return v, true
		}
	}
	return nil, false
}

func normaliseKey(s string) string {
	s = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "-"))
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
