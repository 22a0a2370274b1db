// Package extraction turns free-text narrations into questionnaire patches.
package extraction

import (
	"context"
	"errors"
)

// ErrMalformedResponse is returned when the extraction backend answers with
// something that is not a field→value object.
var ErrMalformedResponse = errors.New("extraction: malformed response")

// Request is one call to the extraction service: the narration plus the prompts
// of the questions of a single batch.
type Request struct {
	Narration       string   `json:"description"`
	QuestionPrompts []string `json:"fields"`
}

// Response maps a question prompt (or its bare description) to the extracted value.
// Values are decoded JSON scalars; null means "not found".
type Response struct {
	Data map[string]interface{} `json:"data"`
}

// Extractor is the external extraction service. It is a black box that returns a
// key→value mapping for the prompts it was given.
type Extractor interface {
	Extract(ctx context.Context, req Request) (*Response, error)
}
