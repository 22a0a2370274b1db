package dto

import (
	"time"

	"github.com/google/uuid"
)

type ChatMessageResponse struct {
	Id        uuid.UUID `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Tag       string    `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type SuggestionResponse struct {
	Kind string `json:"kind"`
	Id   string `json:"id"`
}

type SectionProgressResponse struct {
	SectionId string `json:"section_id"`
	Title     string `json:"title"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Percent   int    `json:"percent"`
}

type ProgressResponse struct {
	Total     int                       `json:"total"`
	Completed int                       `json:"completed"`
	Percent   int                       `json:"percent"`
	Sections  []SectionProgressResponse `json:"sections"`
}

type SessionResponse struct {
	Id         string                 `json:"id"`
	Form       map[string]interface{} `json:"form"`
	Statuses   map[string]string      `json:"statuses"`
	Messages   []ChatMessageResponse  `json:"messages"`
	Suggestion *SuggestionResponse    `json:"suggestion,omitempty"`
	Typing     bool                   `json:"typing"`
	Extracting bool                   `json:"extracting"`
	CreatedAt  time.Time              `json:"created_at"`
}

type SendMessageRequest struct {
	Text string `json:"text" validate:"required,max=20000"`
}

type SendMessageResponse struct {
	Messages   []ChatMessageResponse  `json:"messages"`
	Form       map[string]interface{} `json:"form"`
	Extracting bool                   `json:"extracting"`
}

// UpdateAnswersRequest is a direct edit of the form. A null value clears the answer.
type UpdateAnswersRequest struct {
	Answers map[string]interface{} `json:"answers" validate:"required,min=1"`
}

type SectionStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=applicable not_applicable undetermined"`
}

type TranscriptionResponse struct {
	Text        string `json:"text"`
	Transcribed bool   `json:"transcribed"`
	Sent        bool   `json:"sent"`
}

type QuestionOptionResponse struct {
	Code  string `json:"code"`
	Label string `json:"label"`
}

type QuestionResponse struct {
	Id          string                   `json:"id"`
	Description string                   `json:"description"`
	Order       float64                  `json:"order"`
	Type        string                   `json:"type"`
	Required    bool                     `json:"required"`
	Help        string                   `json:"help,omitempty"`
	SectionId   string                   `json:"section_id,omitempty"`
	Options     []QuestionOptionResponse `json:"options,omitempty"`
}

type SectionResponse struct {
	Id      string `json:"id"`
	Title   string `json:"title"`
	General bool   `json:"general"`
}

type QuestionnaireResponse struct {
	Sections  []SectionResponse  `json:"sections"`
	Questions []QuestionResponse `json:"questions"`
}
